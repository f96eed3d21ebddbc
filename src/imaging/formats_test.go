package imaging

import (
	"image"
	"testing"

	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, JPEG, NormalizeFormat("jpeg"))
	assert.Equal(t, JPEG, NormalizeFormat(".JPG"))
	assert.Equal(t, TIFF, NormalizeFormat("tif"))
	assert.Equal(t, WEBP, NormalizeFormat("webp"))
	assert.Equal(t, "", NormalizeFormat(""))
}

func TestFilenameHelpers(t *testing.T) {
	assert.Equal(t, PNG, FormatFromFilename("banner.final.PNG"))
	assert.Equal(t, ".jpeg", Extension(JPEG))
	assert.Equal(t, "banner.jpeg", ReplaceExtension("banner.png", JPEG))
	assert.Equal(t, "banner.jpeg", ReplaceExtension("banner", JPEG))
	assert.Equal(t, "image/webp", ContentType("webp"))
	assert.Equal(t, "application/octet-stream", ContentType("HEIC"))
}

func TestInspect(t *testing.T) {
	data := encodePNGBytes(t, image.NewRGBA(image.Rect(0, 0, 7, 3)))

	info, err := Inspect(data)
	require.Nil(t, err)
	assert.Equal(t, Info{Width: 7, Height: 3, Format: PNG}, info)

	_, err = Inspect([]byte("GIF89a but not really"))
	assert.ErrorIs(t, err, mediaerr.Decode)

	_, err = Inspect(nil)
	assert.ErrorIs(t, err, mediaerr.Validation)
}
