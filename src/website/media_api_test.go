package website

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PatchWorkCreations/iriseup-foundation/src/config"
	"github.com/PatchWorkCreations/iriseup-foundation/src/imaging"
	"github.com/PatchWorkCreations/iriseup-foundation/src/media"
	"github.com/PatchWorkCreations/iriseup-foundation/src/metrics"
	"github.com/PatchWorkCreations/iriseup-foundation/src/perf"
	"github.com/PatchWorkCreations/iriseup-foundation/src/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSite struct {
	srv *httptest.Server
}

func newTestSite(t *testing.T, uploads config.RateLimitConfig) *testSite {
	t.Helper()

	cfg := config.Defaults().Media
	cfg.StorageRoot = t.TempDir()

	reg := prometheus.NewRegistry()
	m, err := metrics.NewMedia(reg)
	require.NoError(t, err)

	svc := media.NewService(cfg, media.NewMemoryRecords(), imaging.NewCompressor(), storage.NewLocalStore(cfg)).WithMetrics(m)

	perfCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := httptest.NewServer(NewWebsiteRoutes(RoutesConfig{
		Media:         svc,
		MediaConfig:   cfg,
		Uploads:       uploads,
		PerfCollector: perf.RunPerfCollector(perfCtx, 10),
		Gatherer:      reg,
	}))
	t.Cleanup(srv.Close)
	return &testSite{srv: srv}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		img.Set(x, 5, color.RGBA{200, uint8(x), 10, 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (s *testSite) upload(t *testing.T, filename string, data []byte, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if data != nil {
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	res, err := http.Post(s.srv.URL+"/api/media", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func (s *testSite) get(t *testing.T, path string) *http.Response {
	t.Helper()
	res, err := http.Get(s.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func (s *testSite) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	res, err := http.PostForm(s.srv.URL+path, form)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func TestUploadLocal(t *testing.T) {
	site := newTestSite(t, config.RateLimitConfig{})
	data := testPNG(t)

	res := site.upload(t, "logo.png", data, map[string]string{"folder": "brand", "title": "Logo"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	up := decode[uploadResponse](t, res)
	assert.True(t, up.Success)
	assert.Equal(t, 1, up.ID)
	assert.True(t, strings.HasPrefix(up.OriginalURL, "/media/uploads/"), up.OriginalURL)
	assert.True(t, strings.HasSuffix(up.OriginalURL, "/logo.png"), up.OriginalURL)
	assert.Equal(t, up.OriginalURL, up.WebURL)
	assert.Equal(t, up.OriginalURL, up.ThumbnailURL)

	file := site.get(t, up.OriginalURL)
	require.Equal(t, http.StatusOK, file.StatusCode)
	served, err := io.ReadAll(file.Body)
	require.NoError(t, err)
	assert.Equal(t, data, served)

	got := decode[assetResponse](t, site.get(t, "/api/media/1"))
	assert.True(t, got.Success)
	assert.Equal(t, "Logo", got.Asset.Title)
	assert.Equal(t, "brand", got.Asset.Folder)
	assert.Equal(t, "local", got.Asset.StorageType)
	assert.Equal(t, 40, got.Asset.Width)
	assert.Equal(t, 30, got.Asset.Height)
	assert.Equal(t, "PNG", got.Asset.Format)
	assert.Equal(t, len(data), got.Asset.FileSize)
}

func TestUploadErrors(t *testing.T) {
	site := newTestSite(t, config.RateLimitConfig{})

	t.Run("missing file", func(t *testing.T) {
		res := site.upload(t, "", nil, map[string]string{"folder": "brand"})
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		body := decode[errorBody](t, res)
		assert.False(t, body.Success)
		assert.Equal(t, "No image file provided", body.Error)
	})

	t.Run("not multipart", func(t *testing.T) {
		res, err := http.Post(site.srv.URL+"/api/media", "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("remote not configured", func(t *testing.T) {
		res := site.upload(t, "logo.png", testPNG(t), map[string]string{"storage_type": "remote"})
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("unknown storage type", func(t *testing.T) {
		res := site.upload(t, "logo.png", testPNG(t), map[string]string{"storage_type": "floppy"})
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("not an image", func(t *testing.T) {
		res := site.upload(t, "notes.png", []byte("definitely not a png"), nil)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		body := decode[errorBody](t, res)
		assert.Contains(t, body.Error, "decode")
	})

	list := decode[galleryResponse](t, site.get(t, "/api/media"))
	assert.Equal(t, 0, list.Total)
}

func TestListEditDelete(t *testing.T) {
	site := newTestSite(t, config.RateLimitConfig{})
	for _, f := range []struct{ name, folder string }{
		{"a.png", "events"},
		{"b.png", "brand"},
		{"c.png", "events"},
	} {
		res := site.upload(t, f.name, testPNG(t), map[string]string{"folder": f.folder})
		require.Equal(t, http.StatusOK, res.StatusCode)
	}

	all := decode[galleryResponse](t, site.get(t, "/api/media"))
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, 1, all.Page)
	assert.Equal(t, 1, all.NumPages)
	require.Len(t, all.Assets, 3)

	events := decode[galleryResponse](t, site.get(t, "/api/media?search=EVENTS&page=7"))
	assert.Equal(t, 2, events.Total)
	assert.Equal(t, 1, events.Page)
	assert.Equal(t, "EVENTS", events.Search)

	junkPage := decode[galleryResponse](t, site.get(t, "/api/media?page=pizza"))
	assert.Equal(t, 1, junkPage.Page)

	edited := decode[assetResponse](t, site.postForm(t, "/api/media/2/edit", url.Values{"title": {"Brand kit"}}))
	assert.Equal(t, "Brand kit", edited.Asset.Title)
	assert.Equal(t, "brand", edited.Asset.Folder)

	res := site.postForm(t, "/api/media/2/delete", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"success": true}`, readAll(t, res))

	assert.Equal(t, http.StatusNotFound, site.get(t, "/api/media/2").StatusCode)
	assert.Equal(t, http.StatusNotFound, site.postForm(t, "/api/media/2/delete", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, site.postForm(t, "/api/media/99/edit", url.Values{"title": {"x"}}).StatusCode)

	after := decode[galleryResponse](t, site.get(t, "/api/media"))
	assert.Equal(t, 2, after.Total)
}

func readAll(t *testing.T, res *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(b)
}

func TestUploadRateLimit(t *testing.T) {
	site := newTestSite(t, config.RateLimitConfig{PerSecond: 0.001, Burst: 1})

	first := site.upload(t, "a.png", testPNG(t), nil)
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second := site.upload(t, "b.png", testPNG(t), nil)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Equal(t, "1", second.Header.Get("Retry-After"))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, site.get(t, "/api/media").StatusCode)
}

func TestUploadRateLimitIgnoresForwardedFor(t *testing.T) {
	site := newTestSite(t, config.RateLimitConfig{PerSecond: 0.001, Burst: 1})

	post := func(forwardedFor string) *http.Response {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("image", "a.png")
		require.NoError(t, err)
		_, err = fw.Write(testPNG(t))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPost, site.srv.URL+"/api/media", &body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("X-Forwarded-For", forwardedFor)
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { res.Body.Close() })
		return res
	}

	assert.Equal(t, http.StatusOK, post("198.51.100.1").StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, post("198.51.100.2").StatusCode)
}

func TestMetricsAndPerfmon(t *testing.T) {
	site := newTestSite(t, config.RateLimitConfig{})
	require.Equal(t, http.StatusOK, site.upload(t, "a.png", testPNG(t), nil).StatusCode)

	metricsBody := readAll(t, site.get(t, "/metrics"))
	assert.Contains(t, metricsBody, "iriseup_media_operation_duration_seconds")
	assert.Contains(t, metricsBody, "iriseup_media_stored_bytes_total")

	records := decode[[]PerfRecord](t, site.get(t, "/perfmon"))
	require.NotEmpty(t, records)
	var sawUpload bool
	for _, r := range records {
		if r.Method == http.MethodPost && r.Path == "/api/media" {
			sawUpload = true
		}
	}
	assert.True(t, sawUpload)
}

func TestMediaFilesAndNotFound(t *testing.T) {
	site := newTestSite(t, config.RateLimitConfig{})

	assert.Equal(t, http.StatusNotFound, site.get(t, "/media/uploads/nope.png").StatusCode)
	assert.Equal(t, http.StatusNotFound, site.get(t, "/media/").StatusCode)
	assert.Equal(t, http.StatusNotFound, site.get(t, "/no/such/page").StatusCode)
	assert.Equal(t, http.StatusNotFound, site.get(t, "/api/media/abc").StatusCode)
}

func TestParseStorageType(t *testing.T) {
	st, ok := parseStorageType("")
	assert.True(t, ok)
	assert.Equal(t, "local", string(st))

	st, ok = parseStorageType("Cloudinary")
	assert.True(t, ok)
	assert.Equal(t, "remote", string(st))

	_, ok = parseStorageType("floppy")
	assert.False(t, ok)
}
