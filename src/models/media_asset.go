package models

import (
	"errors"
	"fmt"
	"time"
)

type StorageType string

const (
	StorageLocal  StorageType = "local"
	StorageRemote StorageType = "remote"
)

func ParseStorageType(s string) (StorageType, bool) {
	switch StorageType(s) {
	case StorageLocal:
		return StorageLocal, true
	case StorageRemote:
		return StorageRemote, true
	}
	return "", false
}

/*
One ingested image. The shared metadata lives on MediaAsset itself; where the
bytes actually live is a union of Local and Remote, selected by StorageType.
Exactly one of the two is set.
*/
type MediaAsset struct {
	ID          int
	Title       string
	StorageType StorageType
	Folder      string

	Width    int
	Height   int
	Format   string // uppercase, e.g. JPEG, PNG, WEBP
	FileSize int    // bytes actually stored

	CreatedAt time.Time
	UpdatedAt time.Time

	Local  *LocalLocation
	Remote *RemoteLocation
}

type LocalLocation struct {
	// Relative to the storage root, slash separated, e.g. uploads/2025/01/15/logo.png
	Path string
}

type RemoteLocation struct {
	ID           string
	OriginalURL  string
	WebURL       string
	ThumbnailURL string
}

var ErrInvalidAsset = errors.New("invalid media asset")

func (a *MediaAsset) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidAsset, fmt.Sprintf(format, args...))
	}

	switch a.StorageType {
	case StorageLocal:
		if a.Local == nil || a.Local.Path == "" {
			return invalid("local asset has no path")
		}
		if a.Remote != nil {
			return invalid("local asset also has a remote location")
		}
	case StorageRemote:
		if a.Remote == nil || a.Remote.ID == "" || a.Remote.OriginalURL == "" {
			return invalid("remote asset has no id or original url")
		}
		if a.Local != nil {
			return invalid("remote asset also has a local path")
		}
	default:
		return invalid("unknown storage type %q", a.StorageType)
	}

	if a.Width <= 0 || a.Height <= 0 {
		return invalid("dimensions must be positive, got %dx%d", a.Width, a.Height)
	}
	if a.FileSize <= 0 {
		return invalid("file size must be positive, got %d", a.FileSize)
	}
	if a.Format == "" {
		return invalid("format is empty")
	}
	return nil
}

func (a *MediaAsset) DisplayTitle() string {
	if a.Title != "" {
		return a.Title
	}
	return fmt.Sprintf("Image %d", a.ID)
}
