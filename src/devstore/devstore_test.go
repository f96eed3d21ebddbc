package devstore

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PatchWorkCreations/iriseup-foundation/src/config"
	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
	"github.com/PatchWorkCreations/iriseup-foundation/src/models"
	"github.com/PatchWorkCreations/iriseup-foundation/src/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

func do(t *testing.T, method, url string, body []byte) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(b)
}

func TestObjectLifecycle(t *testing.T) {
	s, srv := newTestServer(t)

	res := do(t, http.MethodPut, srv.URL+"/media/default/logo.png", []byte("hello"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, readBody(t, res), "<Code>NoSuchBucket</Code>")

	res = do(t, http.MethodPut, srv.URL+"/media", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = do(t, http.MethodPut, srv.URL+"/media/default/logo.png", []byte("hello"))
	require.Equal(t, http.StatusOK, res.StatusCode)
	_, err := os.Stat(filepath.Join(s.Root, "media", "default~logo.png"))
	assert.NoError(t, err)

	res = do(t, http.MethodHead, srv.URL+"/media/default/logo.png", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "5", res.Header.Get("Content-Length"))

	res = do(t, http.MethodGet, srv.URL+"/media/default/logo.png", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "hello", readBody(t, res))

	res = do(t, http.MethodDelete, srv.URL+"/media/default/logo.png", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res = do(t, http.MethodHead, srv.URL+"/media/default/logo.png", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = do(t, http.MethodGet, srv.URL+"/media/default/logo.png", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, readBody(t, res), "<Code>NoSuchKey</Code>")

	// Deleting again is fine.
	res = do(t, http.MethodDelete, srv.URL+"/media/default/logo.png", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestDeliveryPaths(t *testing.T) {
	_, srv := newTestServer(t)
	do(t, http.MethodPut, srv.URL+"/media", nil)
	do(t, http.MethodPut, srv.URL+"/media/gallery/photo_ab12cd.jpeg", []byte("jpeg bytes"))

	for _, p := range []string{
		"/media/upload/gallery/photo_ab12cd.jpeg",
		"/media/upload/f_webp,q_80,w_1920/gallery/photo_ab12cd.jpeg",
		"/media/upload/f_webp,q_70,w_400/gallery/photo_ab12cd.jpeg",
	} {
		res := do(t, http.MethodGet, srv.URL+p, nil)
		assert.Equal(t, http.StatusOK, res.StatusCode, p)
		assert.Equal(t, "jpeg bytes", readBody(t, res), p)
	}
}

func TestRawKeyUnderUploadFolder(t *testing.T) {
	_, srv := newTestServer(t)
	do(t, http.MethodPut, srv.URL+"/media", nil)
	do(t, http.MethodPut, srv.URL+"/media/upload/flyer.png", []byte("raw object"))
	do(t, http.MethodPut, srv.URL+"/media/flyer.png", []byte("other object"))

	res := do(t, http.MethodGet, srv.URL+"/media/upload/flyer.png", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "raw object", readBody(t, res))

	res = do(t, http.MethodHead, srv.URL+"/media/upload/flyer.png", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// Delivery paths still resolve when no object has the raw key.
	res = do(t, http.MethodGet, srv.URL+"/media/upload/w_400/flyer.png", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "other object", readBody(t, res))
}

func TestDeliveryKey(t *testing.T) {
	key, ok := deliveryKey("upload/f_webp,q_80,w_1920/a/b.png")
	assert.True(t, ok)
	assert.Equal(t, "a/b.png", key)

	key, ok = deliveryKey("upload/a/b.png")
	assert.True(t, ok)
	assert.Equal(t, "a/b.png", key)

	key, ok = deliveryKey("a/b.png")
	assert.False(t, ok)
	assert.Equal(t, "a/b.png", key)
}

func TestRejectsBadNames(t *testing.T) {
	_, srv := newTestServer(t)

	res := do(t, http.MethodPut, srv.URL+"/Not_A_Bucket", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = do(t, http.MethodPost, srv.URL+"/media", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for x := 0; x < 32; x++ {
		img.Set(x, 0, color.RGBA{uint8(x * 8), 50, 150, 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// Runs the remote store through the real S3 client against the dev store.
func TestRemoteStoreAgainstDevstore(t *testing.T) {
	_, srv := newTestServer(t)

	cfg := config.RemoteConfig{
		CloudName:    "media",
		APIKey:       "dev",
		APISecret:    "dev",
		Region:       "us-east-1",
		Endpoint:     srv.URL,
		UsePathStyle: true,
	}
	client, err := storage.NewS3Client(t.Context(), cfg)
	require.NoError(t, err)
	store := storage.NewRemoteStore(client, cfg, config.DefaultTargetBytes, nil)

	// The bucket does not exist yet; the store creates it.
	obj, err := store.Put(t.Context(), storage.PutInput{
		Data:     pngImage(t),
		Filename: "logo.png",
		Folder:   "brand",
	})
	require.NoError(t, err)
	require.NotNil(t, obj.Remote)
	assert.Equal(t, 32, obj.Width)
	assert.Equal(t, 16, obj.Height)
	assert.True(t, strings.HasPrefix(obj.Remote.ID, "brand/logo_"))
	assert.True(t, strings.HasPrefix(obj.Remote.OriginalURL, srv.URL+"/media/upload/brand/logo_"))

	for _, url := range []string{obj.Remote.OriginalURL, obj.Remote.WebURL, obj.Remote.ThumbnailURL} {
		res := do(t, http.MethodGet, url, nil)
		assert.Equal(t, http.StatusOK, res.StatusCode, url)
	}

	asset := &models.MediaAsset{ID: 1, StorageType: models.StorageRemote, Remote: obj.Remote}
	deleted, err := store.Delete(t.Context(), asset)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = store.Delete(t.Context(), asset)
	assert.ErrorIs(t, err, mediaerr.BackendIO)
}
