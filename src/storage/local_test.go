package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/config"
	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
	"github.com/PatchWorkCreations/iriseup-foundation/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	s := NewLocalStore(config.MediaConfig{
		StorageRoot: t.TempDir(),
		MediaURL:    "/media/",
	})
	s.Now = func() time.Time {
		return time.Date(2025, time.January, 15, 10, 30, 0, 0, time.UTC)
	}
	return s
}

func TestLocalPut(t *testing.T) {
	s := newTestLocalStore(t)
	data := pngBytes(t, 12, 8)

	obj, err := s.Put(context.Background(), PutInput{Data: data, Filename: "logo.png", Folder: "gallery"})
	require.Nil(t, err)
	require.NotNil(t, obj.Local)
	assert.Nil(t, obj.Remote)
	assert.Equal(t, "uploads/2025/01/15/logo.png", obj.Local.Path)
	assert.Equal(t, 12, obj.Width)
	assert.Equal(t, 8, obj.Height)
	assert.Equal(t, "PNG", obj.Format)
	assert.Equal(t, len(data), obj.FileSize)

	onDisk, err := os.ReadFile(filepath.Join(s.Root, "uploads", "2025", "01", "15", "logo.png"))
	require.Nil(t, err)
	assert.Equal(t, data, onDisk)
}

func TestLocalPutCollisions(t *testing.T) {
	s := newTestLocalStore(t)
	data := pngBytes(t, 4, 4)

	var paths []string
	for i := 0; i < 3; i++ {
		obj, err := s.Put(context.Background(), PutInput{Data: data, Filename: "logo.png"})
		require.Nil(t, err)
		paths = append(paths, obj.Local.Path)
	}
	assert.Equal(t, []string{
		"uploads/2025/01/15/logo.png",
		"uploads/2025/01/15/logo_1.png",
		"uploads/2025/01/15/logo_2.png",
	}, paths)
}

func TestLocalPutConcurrentSameName(t *testing.T) {
	s := newTestLocalStore(t)
	data := pngBytes(t, 4, 4)

	const n = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj, err := s.Put(context.Background(), PutInput{Data: data, Filename: "banner.png"})
			if assert.Nil(t, err) {
				mu.Lock()
				seen[obj.Local.Path] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestLocalPutSanitizesFilename(t *testing.T) {
	s := newTestLocalStore(t)

	obj, err := s.Put(context.Background(), PutInput{Data: pngBytes(t, 2, 2), Filename: "../../hero image.png"})
	require.Nil(t, err)
	assert.Equal(t, "uploads/2025/01/15/.._.._hero_image.png", obj.Local.Path)
}

func TestLocalPutRejectsUndecodable(t *testing.T) {
	s := newTestLocalStore(t)

	_, err := s.Put(context.Background(), PutInput{Data: []byte("not an image"), Filename: "x.png"})
	assert.ErrorIs(t, err, mediaerr.Decode)

	_, statErr := os.Stat(filepath.Join(s.Root, "uploads"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalDelete(t *testing.T) {
	s := newTestLocalStore(t)
	obj, err := s.Put(context.Background(), PutInput{Data: pngBytes(t, 2, 2), Filename: "logo.png"})
	require.Nil(t, err)

	asset := &models.MediaAsset{ID: 1, StorageType: models.StorageLocal, Local: obj.Local}

	deleted, err := s.Delete(context.Background(), asset)
	require.Nil(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(context.Background(), asset)
	require.Nil(t, err)
	assert.False(t, deleted)
}

func TestLocalDeleteRejectsEscapingPaths(t *testing.T) {
	s := newTestLocalStore(t)

	for _, p := range []string{"../outside.png", "/etc/passwd", "uploads/../../x.png", ""} {
		asset := &models.MediaAsset{ID: 1, StorageType: models.StorageLocal, Local: &models.LocalLocation{Path: p}}
		_, err := s.Delete(context.Background(), asset)
		assert.ErrorIs(t, err, mediaerr.Validation, "path %q", p)
	}
}

func TestLocalURLs(t *testing.T) {
	s := newTestLocalStore(t)
	asset := &models.MediaAsset{
		StorageType: models.StorageLocal,
		Local:       &models.LocalLocation{Path: "uploads/2025/01/15/logo.png"},
	}

	urls := s.URLs(asset)
	assert.Equal(t, "/media/uploads/2025/01/15/logo.png", urls.Display)
	assert.Equal(t, urls.Display, urls.Web)
	assert.Equal(t, urls.Display, urls.Thumbnail)

	assert.Equal(t, URLs{}, s.URLs(&models.MediaAsset{StorageType: models.StorageRemote}))
}
