package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validLocal() *MediaAsset {
	return &MediaAsset{
		StorageType: StorageLocal,
		Width:       640,
		Height:      480,
		Format:      "PNG",
		FileSize:    1234,
		Local:       &LocalLocation{Path: "uploads/2025/01/15/logo.png"},
	}
}

func validRemote() *MediaAsset {
	return &MediaAsset{
		StorageType: StorageRemote,
		Width:       640,
		Height:      480,
		Format:      "JPEG",
		FileSize:    1234,
		Remote: &RemoteLocation{
			ID:          "gallery/logo_a1b2c3.jpeg",
			OriginalURL: "https://cdn.example.org/upload/gallery/logo_a1b2c3.jpeg",
		},
	}
}

func TestMediaAssetValidate(t *testing.T) {
	assert.NoError(t, validLocal().Validate())
	assert.NoError(t, validRemote().Validate())

	both := validLocal()
	both.Remote = validRemote().Remote
	assert.ErrorIs(t, both.Validate(), ErrInvalidAsset)

	neither := validRemote()
	neither.Remote = nil
	assert.ErrorIs(t, neither.Validate(), ErrInvalidAsset)

	mismatched := validLocal()
	mismatched.StorageType = StorageRemote
	assert.ErrorIs(t, mismatched.Validate(), ErrInvalidAsset)

	noSize := validLocal()
	noSize.Width = 0
	assert.ErrorIs(t, noSize.Validate(), ErrInvalidAsset)

	noBytes := validRemote()
	noBytes.FileSize = 0
	assert.ErrorIs(t, noBytes.Validate(), ErrInvalidAsset)

	unknown := validLocal()
	unknown.StorageType = "cloudinary"
	assert.ErrorIs(t, unknown.Validate(), ErrInvalidAsset)
}

func TestParseStorageType(t *testing.T) {
	st, ok := ParseStorageType("local")
	assert.True(t, ok)
	assert.Equal(t, StorageLocal, st)

	st, ok = ParseStorageType("remote")
	assert.True(t, ok)
	assert.Equal(t, StorageRemote, st)

	_, ok = ParseStorageType("ftp")
	assert.False(t, ok)
}

func TestDisplayTitle(t *testing.T) {
	a := validLocal()
	a.ID = 7
	assert.Equal(t, "Image 7", a.DisplayTitle())
	a.Title = "Volunteers"
	assert.Equal(t, "Volunteers", a.DisplayTitle())
}
