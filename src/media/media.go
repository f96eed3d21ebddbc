/*
Package media ingests uploaded images: it sizes them, compresses them when they
are over budget, hands them to a storage backend and records the result. It is
also the only place assets are deleted, so that backend objects and records
stay in step.
*/
package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/config"
	"github.com/PatchWorkCreations/iriseup-foundation/src/imaging"
	"github.com/PatchWorkCreations/iriseup-foundation/src/logging"
	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
	"github.com/PatchWorkCreations/iriseup-foundation/src/metrics"
	"github.com/PatchWorkCreations/iriseup-foundation/src/models"
	"github.com/PatchWorkCreations/iriseup-foundation/src/perf"
	"github.com/PatchWorkCreations/iriseup-foundation/src/storage"
	"github.com/PatchWorkCreations/iriseup-foundation/src/utils"
)

const PerPage = 24

type Service struct {
	cfg        config.MediaConfig
	records    Records
	stores     map[models.StorageType]storage.Store
	compressor *imaging.Compressor
	metrics    *metrics.Media
}

// A nil compressor gets one built from cfg's quality range. Stores are keyed
// by their Type; a storage type with no store is rejected at ingest time.
func NewService(cfg config.MediaConfig, records Records, compressor *imaging.Compressor, stores ...storage.Store) *Service {
	if compressor == nil {
		compressor = imaging.NewCompressor(imaging.WithQualityRange(cfg.MinQuality, cfg.MaxQuality))
	}
	s := &Service{
		cfg:        cfg,
		records:    records,
		stores:     map[models.StorageType]storage.Store{},
		compressor: compressor,
	}
	for _, store := range stores {
		s.stores[store.Type()] = store
	}
	return s
}

func (s *Service) WithMetrics(m *metrics.Media) *Service {
	s.metrics = m
	return s
}

func (s *Service) HasStore(t models.StorageType) bool {
	_, ok := s.stores[t]
	return ok
}

type Upload struct {
	Filename string
	// As reported by the client. Zero means unknown, in which case the body is
	// measured.
	Size int64
	Body io.ReadSeeker
}

func (s *Service) Ingest(ctx context.Context, upload Upload, folder string, storageType models.StorageType, title string) (asset *models.MediaAsset, err error) {
	start := time.Now()
	rp := perf.ExtractPerf(ctx)
	filename := storage.SanitizeFilename(upload.Filename)
	logger := logging.ExtractLogger(ctx).With().
		Str("filename", filename).
		Str("storage_type", string(storageType)).
		Logger()

	storedBytes := 0
	defer func() {
		s.metrics.RecordIngest(string(storageType), time.Since(start), storedBytes, err)
	}()

	fail := func(cause error) (*models.MediaAsset, error) {
		logger.Warn().Err(cause).Msg("ingestion failed")
		return nil, ingestionError(filename, cause)
	}

	if upload.Body == nil {
		return fail(mediaerr.New(mediaerr.Validation, nil, "no file provided"))
	}
	store, ok := s.stores[storageType]
	if !ok {
		return fail(mediaerr.New(mediaerr.Validation, nil, "storage type %q is not available", storageType))
	}
	folder = utils.OrDefault(strings.TrimSpace(folder), utils.OrDefault(s.cfg.DefaultFolder, "default"))
	title = utils.OrDefault(strings.TrimSpace(title), utils.OrDefault(strings.TrimSpace(upload.Filename), filename))

	size, err := uploadSize(upload)
	if err != nil {
		return fail(err)
	}
	if s.cfg.MaxUploadBytes > 0 && size > int64(s.cfg.MaxUploadBytes) {
		return fail(mediaerr.New(mediaerr.Validation, nil, "upload is %d bytes, the limit is %d", size, s.cfg.MaxUploadBytes))
	}

	rp.StartBlock("IO", "Read upload")
	data, err := readUpload(upload.Body, s.cfg.MaxUploadBytes)
	rp.EndBlock()
	if err != nil {
		return fail(err)
	}
	if len(data) == 0 {
		return fail(mediaerr.New(mediaerr.Validation, nil, "uploaded file is empty"))
	}

	if len(data) > s.cfg.TargetBytes {
		rp.StartBlock("IMAGE", "Compress")
		res, err := s.compressor.Compress(data, s.cfg.TargetBytes)
		rp.EndBlock()
		if err != nil {
			return fail(err)
		}
		s.metrics.RecordCompression(string(res.Strategy))
		logger.Info().
			Int("original_bytes", len(data)).
			Int("compressed_bytes", len(res.Data)).
			Int("quality", res.Quality).
			Str("strategy", string(res.Strategy)).
			Str("format", res.Format).
			Msg("compressed upload")

		data = res.Data
		filename = imaging.ReplaceExtension(filename, res.Format)
	}

	if len(data) > s.cfg.HardMaxBytes && !s.cfg.AllowOversize {
		return fail(mediaerr.New(mediaerr.Validation, nil, "image is %d bytes after compression, the limit is %d", len(data), s.cfg.HardMaxBytes))
	}

	rp.StartBlock("STORAGE", "Store image")
	obj, err := store.Put(ctx, storage.PutInput{
		Data:     data,
		Filename: filename,
		Folder:   folder,
	})
	rp.EndBlock()
	if err != nil {
		return fail(err)
	}

	newAsset := &models.MediaAsset{
		Title:       title,
		StorageType: store.Type(),
		Folder:      folder,
		Width:       obj.Width,
		Height:      obj.Height,
		Format:      obj.Format,
		FileSize:    obj.FileSize,
		Local:       obj.Local,
		Remote:      obj.Remote,
	}
	if err := newAsset.Validate(); err != nil {
		s.discard(ctx, store, newAsset)
		return fail(mediaerr.New(mediaerr.Validation, err, "storage returned an unusable result"))
	}

	rp.StartBlock("SQL", "Save media asset")
	created, err := s.records.Create(ctx, newAsset)
	rp.EndBlock()
	if err != nil {
		s.discard(ctx, store, newAsset)
		return fail(err)
	}

	storedBytes = created.FileSize
	logger.Info().
		Int("id", created.ID).
		Int("bytes", created.FileSize).
		Str("format", created.Format).
		Msg("ingested image")
	return created, nil
}

func uploadSize(upload Upload) (int64, error) {
	if upload.Size > 0 {
		return upload.Size, nil
	}
	end, err := upload.Body.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, mediaerr.New(mediaerr.BackendIO, err, "failed to measure upload")
	}
	if _, err := upload.Body.Seek(0, io.SeekStart); err != nil {
		return 0, mediaerr.New(mediaerr.BackendIO, err, "failed to rewind upload")
	}
	return end, nil
}

// Reads at most limit bytes (no limit if limit <= 0), so a misreported size
// cannot sneak a huge body past the size check.
func readUpload(body io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, mediaerr.New(mediaerr.BackendIO, err, "failed to read upload")
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(body, int64(limit)+1))
	if err != nil {
		return nil, mediaerr.New(mediaerr.BackendIO, err, "failed to read upload")
	}
	if len(data) > limit {
		return nil, mediaerr.New(mediaerr.Validation, nil, "upload is larger than the limit of %d bytes", limit)
	}
	return data, nil
}

// Removes a stored object whose record could not be saved.
func (s *Service) discard(ctx context.Context, store storage.Store, asset *models.MediaAsset) {
	if _, err := store.Delete(ctx, asset); err != nil {
		logging.ExtractLogger(ctx).Error().Err(err).Msg("failed to remove stored image after ingestion failed; it is now orphaned")
	}
}

// Deletes the stored image, then the record. If the image cannot be deleted
// the record is kept so the delete can be retried.
func (s *Service) Delete(ctx context.Context, asset *models.MediaAsset) (err error) {
	if asset == nil {
		return deletionError(0, mediaerr.New(mediaerr.Validation, nil, "no media asset given"))
	}

	start := time.Now()
	rp := perf.ExtractPerf(ctx)
	logger := logging.ExtractLogger(ctx).With().
		Int("id", asset.ID).
		Str("storage_type", string(asset.StorageType)).
		Logger()
	defer func() {
		s.metrics.RecordDelete(string(asset.StorageType), time.Since(start), err)
	}()

	store, ok := s.stores[asset.StorageType]
	if !ok {
		return deletionError(asset.ID, mediaerr.New(mediaerr.Validation, nil, "storage type %q is not available", asset.StorageType))
	}

	rp.StartBlock("STORAGE", "Delete image")
	deleted, err := store.Delete(ctx, asset)
	rp.EndBlock()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to delete stored image; keeping record")
		return deletionError(asset.ID, err)
	}
	if !deleted {
		logger.Info().Msg("stored image was already gone")
	}

	rp.StartBlock("SQL", "Delete media asset")
	err = s.records.Delete(ctx, asset.ID)
	rp.EndBlock()
	if errors.Is(err, mediaerr.NotFound) {
		logger.Info().Msg("record was already gone")
	} else if err != nil {
		logger.Error().Err(err).Msg("deleted stored image but failed to delete record")
		return deletionError(asset.ID, err)
	}

	logger.Info().Msg("deleted media asset")
	return nil
}

func (s *Service) DeleteByID(ctx context.Context, id int) error {
	asset, err := s.records.Get(ctx, id)
	if err != nil {
		return deletionError(id, err)
	}
	return s.Delete(ctx, asset)
}

func (s *Service) Get(ctx context.Context, id int) (*models.MediaAsset, error) {
	return s.records.Get(ctx, id)
}

type Gallery struct {
	Assets   []*models.MediaAsset
	Search   string
	Page     int
	NumPages int
	Total    int
}

// Pages past the end clamp to the last page.
func (s *Service) List(ctx context.Context, search string, page int) (*Gallery, error) {
	search = strings.TrimSpace(search)
	total, err := s.records.Count(ctx, search)
	if err != nil {
		return nil, err
	}
	numPages := utils.NumPages(total, PerPage)
	page = utils.IntClamp(1, page, numPages)

	assets, err := s.records.List(ctx, ListQuery{
		Search: search,
		Limit:  PerPage,
		Offset: (page - 1) * PerPage,
	})
	if err != nil {
		return nil, err
	}
	return &Gallery{
		Assets:   assets,
		Search:   search,
		Page:     page,
		NumPages: numPages,
		Total:    total,
	}, nil
}

// Empty title or folder keeps the current value.
func (s *Service) UpdateDetails(ctx context.Context, id int, title, folder string) (*models.MediaAsset, error) {
	current, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	title = utils.OrDefault(strings.TrimSpace(title), current.Title)
	folder = utils.OrDefault(strings.TrimSpace(folder), current.Folder)

	updated, err := s.records.UpdateDetails(ctx, id, title, folder)
	if err != nil {
		return nil, err
	}
	logging.ExtractLogger(ctx).Info().Int("id", id).Str("title", title).Str("folder", folder).Msg("updated media details")
	return updated, nil
}

func (s *Service) URLs(asset *models.MediaAsset) storage.URLs {
	switch asset.StorageType {
	case models.StorageLocal:
		return storage.LocalURLs(s.cfg.MediaURL, asset)
	case models.StorageRemote:
		return storage.RemoteURLs(asset)
	}
	return storage.URLs{}
}

func (s *Service) ResolveDisplayURL(asset *models.MediaAsset) string {
	return s.URLs(asset).Display
}

func (s *Service) ResolveWebURL(asset *models.MediaAsset) string {
	return s.URLs(asset).Web
}

func (s *Service) ResolveThumbnailURL(asset *models.MediaAsset) string {
	return s.URLs(asset).Thumbnail
}
