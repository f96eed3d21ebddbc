package imaging

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path"
	"strings"

	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	JPEG = "JPEG"
	PNG  = "PNG"
	GIF  = "GIF"
	WEBP = "WEBP"
	BMP  = "BMP"
	TIFF = "TIFF"
)

// Writes img to w. Lossless encoders ignore quality.
type Encoder func(w io.Writer, img image.Image, quality int) error

type codec struct {
	encode        Encoder
	supportsAlpha bool
	// Output depends on quality. Lossless codecs are encoded once.
	lossy bool
}

func defaultCodecs() map[string]codec {
	return map[string]codec{
		JPEG: {encode: encodeJPEG, lossy: true},
		PNG:  {encode: encodePNG, supportsAlpha: true},
		GIF:  {encode: encodeGIF, supportsAlpha: true},
		BMP:  {encode: encodeBMP},
		TIFF: {encode: encodeTIFF, supportsAlpha: true},
	}
}

func encodeJPEG(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

func encodePNG(w io.Writer, img image.Image, quality int) error {
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	return enc.Encode(w, img)
}

func encodeGIF(w io.Writer, img image.Image, quality int) error {
	return gif.Encode(w, img, &gif.Options{NumColors: 256})
}

func encodeBMP(w io.Writer, img image.Image, quality int) error {
	return bmp.Encode(w, img)
}

func encodeTIFF(w io.Writer, img image.Image, quality int) error {
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// Maps decoder names and file extensions onto the uppercase format names
// stored on assets.
func NormalizeFormat(name string) string {
	name = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(name), "."))
	switch name {
	case "JPG", "JPE", "JFIF":
		return JPEG
	case "TIF":
		return TIFF
	}
	return name
}

func FormatFromFilename(filename string) string {
	return NormalizeFormat(path.Ext(filename))
}

func Extension(format string) string {
	return "." + strings.ToLower(NormalizeFormat(format))
}

// Swaps the extension of filename for the one matching format.
func ReplaceExtension(filename, format string) string {
	return strings.TrimSuffix(filename, path.Ext(filename)) + Extension(format)
}

func ContentType(format string) string {
	switch NormalizeFormat(format) {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	case GIF:
		return "image/gif"
	case WEBP:
		return "image/webp"
	case BMP:
		return "image/bmp"
	case TIFF:
		return "image/tiff"
	}
	return "application/octet-stream"
}

type Info struct {
	Width  int
	Height int
	Format string
}

// Reads dimensions and format from the image header without decoding pixels.
func Inspect(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, mediaerr.New(mediaerr.Validation, nil, "no image data provided")
	}
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, mediaerr.New(mediaerr.Decode, err, "failed to read image header")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, mediaerr.New(mediaerr.Decode, nil, "image has zero size (%dx%d)", cfg.Width, cfg.Height)
	}
	return Info{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: NormalizeFormat(name),
	}, nil
}
