package storage

import (
	"context"
	"regexp"
	"strings"

	"github.com/PatchWorkCreations/iriseup-foundation/src/models"
)

// A place image bytes can live. Implementations only move bytes around; the
// asset record is the caller's business.
type Store interface {
	Type() models.StorageType

	Put(ctx context.Context, in PutInput) (*StoredObject, error)

	// Reports false (and no error) when there was nothing left to delete.
	Delete(ctx context.Context, asset *models.MediaAsset) (bool, error)

	URLs(asset *models.MediaAsset) URLs
}

type PutInput struct {
	Data     []byte
	Filename string
	Folder   string
}

type StoredObject struct {
	Width    int
	Height   int
	Format   string
	FileSize int

	Local  *models.LocalLocation
	Remote *models.RemoteLocation
}

type URLs struct {
	Display   string
	Web       string
	Thumbnail string
}

var REIllegalFilenameChars = regexp.MustCompile(`[^\w\-.]`)

func SanitizeFilename(filename string) string {
	if filename == "" {
		return "unnamed"
	}
	return REIllegalFilenameChars.ReplaceAllString(filename, "_")
}

/*
Cleans a user-supplied folder for use in an object key: each segment is
sanitized like a filename, and empty, "." and ".." segments are dropped.
Returns "default" when nothing is left.
*/
func SanitizeFolder(folder string) string {
	var segments []string
	for _, seg := range strings.Split(folder, "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		segments = append(segments, SanitizeFilename(seg))
	}
	if len(segments) == 0 {
		return "default"
	}
	return strings.Join(segments, "/")
}
