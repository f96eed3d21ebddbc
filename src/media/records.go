package media

import (
	"context"

	"github.com/PatchWorkCreations/iriseup-foundation/src/models"
)

// Persistence for asset records. Get, Delete and UpdateDetails return an error
// tagged ErrNotFound when there is no record with that id.
type Records interface {
	Create(ctx context.Context, asset *models.MediaAsset) (*models.MediaAsset, error)
	Get(ctx context.Context, id int) (*models.MediaAsset, error)
	Delete(ctx context.Context, id int) error
	UpdateDetails(ctx context.Context, id int, title, folder string) (*models.MediaAsset, error)

	// Search matches title or folder, case-insensitively.
	Count(ctx context.Context, search string) (int, error)
	// Newest first.
	List(ctx context.Context, q ListQuery) ([]*models.MediaAsset, error)
}

type ListQuery struct {
	Search string
	Limit  int
	Offset int
}
