package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/config"
	"github.com/PatchWorkCreations/iriseup-foundation/src/imaging"
	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
	"github.com/PatchWorkCreations/iriseup-foundation/src/models"
	"github.com/PatchWorkCreations/iriseup-foundation/src/utils"
	"github.com/google/uuid"
)

const maxCollisionSuffix = 1000

/*
Stores files under Root in date folders: uploads/YYYY/MM/DD/<filename>. Names
that are already taken get _1, _2, ... appended to the stem. Files are created
with O_EXCL, so two uploads racing for the same name never overwrite each
other.
*/
type LocalStore struct {
	Root     string
	MediaURL string

	Now func() time.Time
}

var _ Store = &LocalStore{}

func NewLocalStore(cfg config.MediaConfig) *LocalStore {
	return &LocalStore{
		Root:     cfg.StorageRoot,
		MediaURL: cfg.MediaURL,
		Now:      time.Now,
	}
}

func (s *LocalStore) Type() models.StorageType {
	return models.StorageLocal
}

func (s *LocalStore) Put(ctx context.Context, in PutInput) (*StoredObject, error) {
	info, err := imaging.Inspect(in.Data)
	if err != nil {
		return nil, err
	}

	filename := SanitizeFilename(in.Filename)
	dir := path.Join("uploads", s.now().Format("2006/01/02"))
	absDir := filepath.Join(s.Root, filepath.FromSlash(dir))
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, mediaerr.New(mediaerr.BackendIO, err, "failed to create upload directory")
	}

	name, err := writeExclusive(absDir, filename, in.Data)
	if err != nil {
		return nil, err
	}

	return &StoredObject{
		Width:    info.Width,
		Height:   info.Height,
		Format:   utils.OrDefault(info.Format, imaging.FormatFromFilename(filename)),
		FileSize: len(in.Data),
		Local:    &models.LocalLocation{Path: path.Join(dir, name)},
	}, nil
}

func writeExclusive(dir, filename string, data []byte) (string, error) {
	ext := path.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)

	for i := 0; i <= maxCollisionSuffix+1; i++ {
		var name string
		switch {
		case i == 0:
			name = filename
		case i <= maxCollisionSuffix:
			name = fmt.Sprintf("%s_%d%s", stem, i, ext)
		default:
			name = fmt.Sprintf("%s_%s%s", stem, uuid.New().String(), ext)
		}

		fullPath := filepath.Join(dir, name)
		f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		} else if err != nil {
			return "", mediaerr.New(mediaerr.BackendIO, err, "failed to create file %s", name)
		}

		_, err = f.Write(data)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(fullPath)
			return "", mediaerr.New(mediaerr.BackendIO, err, "failed to write file %s", name)
		}
		return name, nil
	}

	return "", mediaerr.New(mediaerr.BackendIO, nil, "could not find a free name for %s", filename)
}

func (s *LocalStore) Delete(ctx context.Context, asset *models.MediaAsset) (bool, error) {
	if asset.Local == nil || asset.Local.Path == "" {
		return false, mediaerr.New(mediaerr.Validation, nil, "asset %d has no local path", asset.ID)
	}

	fullPath, err := s.resolve(asset.Local.Path)
	if err != nil {
		return false, err
	}

	err = os.Remove(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, mediaerr.New(mediaerr.BackendIO, err, "failed to delete %s", asset.Local.Path)
	}
	return true, nil
}

func (s *LocalStore) URLs(asset *models.MediaAsset) URLs {
	return LocalURLs(s.MediaURL, asset)
}

// Local files have no derived renditions; every URL is the file itself.
func LocalURLs(mediaURL string, asset *models.MediaAsset) URLs {
	if asset.Local == nil {
		return URLs{}
	}
	u := strings.TrimSuffix(mediaURL, "/") + "/" + strings.TrimPrefix(asset.Local.Path, "/")
	return URLs{
		Display:   u,
		Web:       u,
		Thumbnail: u,
	}
}

func (s *LocalStore) resolve(relPath string) (string, error) {
	p := filepath.FromSlash(relPath)
	if !filepath.IsLocal(p) {
		return "", mediaerr.New(mediaerr.Validation, nil, "path %q escapes the storage root", relPath)
	}
	return filepath.Join(s.Root, p), nil
}

func (s *LocalStore) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
