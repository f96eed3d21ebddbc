package mediadata

import (
	"errors"
	"testing"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/db"
	"github.com/PatchWorkCreations/iriseup-foundation/src/media"
	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
	"github.com/PatchWorkCreations/iriseup-foundation/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func TestRowRoundTripLocal(t *testing.T) {
	asset := &models.MediaAsset{
		ID:          7,
		Title:       "Logo",
		StorageType: models.StorageLocal,
		Folder:      "brand",
		Width:       640,
		Height:      480,
		Format:      "PNG",
		FileSize:    1234,
		CreatedAt:   created,
		UpdatedAt:   created,
		Local:       &models.LocalLocation{Path: "uploads/2025/01/15/logo.png"},
	}

	row := rowFromAsset(asset)
	assert.Equal(t, "uploads/2025/01/15/logo.png", row.LocalPath)
	assert.Empty(t, row.RemoteID)
	assert.Empty(t, row.OriginalURL)

	back := row.toAsset()
	assert.Equal(t, asset, back)
	assert.Nil(t, back.Remote)
}

func TestRowRoundTripRemote(t *testing.T) {
	asset := &models.MediaAsset{
		ID:          8,
		StorageType: models.StorageRemote,
		Folder:      "default",
		Width:       1920,
		Height:      1080,
		Format:      "JPEG",
		FileSize:    98765,
		CreatedAt:   created,
		UpdatedAt:   created,
		Remote: &models.RemoteLocation{
			ID:           "default/photo_ab12cd",
			OriginalURL:  "https://cdn.example.com/upload/default/photo_ab12cd.jpeg",
			WebURL:       "https://cdn.example.com/upload/f_webp,q_80,w_1920/default/photo_ab12cd.jpeg",
			ThumbnailURL: "https://cdn.example.com/upload/f_webp,q_70,w_400/default/photo_ab12cd.jpeg",
		},
	}

	row := rowFromAsset(asset)
	assert.Empty(t, row.LocalPath)
	assert.Equal(t, "default/photo_ab12cd", row.RemoteID)

	back := row.toAsset()
	assert.Equal(t, asset, back)
	assert.Nil(t, back.Local)
	assert.NoError(t, back.Validate())
}

func TestBuildListQuery(t *testing.T) {
	t.Run("no search", func(t *testing.T) {
		qb := buildListQuery(media.ListQuery{Limit: 24})
		assert.NotContains(t, qb.String(), "ILIKE")
		assert.Contains(t, qb.String(), "ORDER BY created_at DESC, id DESC")
		assert.Contains(t, qb.String(), "LIMIT $1")
		assert.NotContains(t, qb.String(), "OFFSET")
		assert.Equal(t, []any{24}, qb.Args())
	})

	t.Run("search and page", func(t *testing.T) {
		qb := buildListQuery(media.ListQuery{Search: " 50%_off ", Limit: 24, Offset: 48})
		assert.Contains(t, qb.String(), "AND (title ILIKE $1 OR folder ILIKE $2)")
		assert.Contains(t, qb.String(), "LIMIT $3")
		assert.Contains(t, qb.String(), "OFFSET $4")
		assert.Equal(t, []any{`%50\%\_off%`, `%50\%\_off%`, 24, 48}, qb.Args())
	})
}

func TestWrapLookupError(t *testing.T) {
	err := wrapLookupError(db.NotFound, 3)
	assert.ErrorIs(t, err, mediaerr.NotFound)
	assert.ErrorIs(t, err, media.ErrNotFound)

	err = wrapLookupError(errors.New("connection reset"), 3)
	assert.ErrorIs(t, err, mediaerr.BackendIO)
	assert.False(t, errors.Is(err, mediaerr.NotFound))
}

func TestCreateRejectsInvalidAsset(t *testing.T) {
	records := NewPostgresRecords(nil)
	_, err := records.Create(t.Context(), &models.MediaAsset{StorageType: models.StorageLocal})
	require.Error(t, err)
	assert.ErrorIs(t, err, mediaerr.Validation)
}
