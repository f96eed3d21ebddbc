package media

import (
	"fmt"

	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
)

var (
	ErrValidation  = mediaerr.Validation
	ErrDecode      = mediaerr.Decode
	ErrCompression = mediaerr.Compression
	ErrBackendIO   = mediaerr.BackendIO
	ErrNotFound    = mediaerr.NotFound
)

// Returned by Ingest. Kind is one of the Err* kinds above and also matches
// with errors.Is.
type IngestionError struct {
	Filename string
	Kind     error
	Err      error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("failed to ingest %s (%v): %v", e.Filename, e.Kind, e.Err)
}

func (e *IngestionError) Unwrap() []error {
	return []error{e.Err, e.Kind}
}

// Returned by Delete. The record is still there when this happens.
type DeletionError struct {
	ID   int
	Kind error
	Err  error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("failed to delete media asset %d (%v): %v", e.ID, e.Kind, e.Err)
}

func (e *DeletionError) Unwrap() []error {
	return []error{e.Err, e.Kind}
}

func ingestionError(filename string, err error) *IngestionError {
	return &IngestionError{Filename: filename, Kind: mediaerr.KindOf(err), Err: err}
}

func deletionError(id int, err error) *DeletionError {
	return &DeletionError{ID: id, Kind: mediaerr.KindOf(err), Err: err}
}
