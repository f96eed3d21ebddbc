/*
Package app assembles the media service from configuration. The server and
the CLI commands build the same thing, so they share this.
*/
package app

import (
	"context"

	"github.com/PatchWorkCreations/iriseup-foundation/src/config"
	"github.com/PatchWorkCreations/iriseup-foundation/src/db"
	"github.com/PatchWorkCreations/iriseup-foundation/src/imaging"
	"github.com/PatchWorkCreations/iriseup-foundation/src/logging"
	"github.com/PatchWorkCreations/iriseup-foundation/src/media"
	"github.com/PatchWorkCreations/iriseup-foundation/src/mediadata"
	"github.com/PatchWorkCreations/iriseup-foundation/src/metrics"
	"github.com/PatchWorkCreations/iriseup-foundation/src/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Media struct {
	Service  *media.Service
	Registry *prometheus.Registry
}

/*
Builds the compressor, the local store, the remote store (when credentials are
configured) and the metrics registry, and hands them to a media.Service backed
by records.
*/
func NewMedia(ctx context.Context, cfg config.IriseupConfig, records media.Records) (*Media, error) {
	compressor := imaging.NewCompressor(imaging.WithQualityRange(cfg.Media.MinQuality, cfg.Media.MaxQuality))

	stores := []storage.Store{storage.NewLocalStore(cfg.Media)}
	if cfg.Remote.Enabled() {
		client, err := storage.NewS3Client(ctx, cfg.Remote)
		if err != nil {
			return nil, err
		}
		stores = append(stores, storage.NewRemoteStore(client, cfg.Remote, cfg.Media.TargetBytes, compressor))
		logging.Info().Str("bucket", cfg.Remote.CloudName).Msg("Remote media storage enabled")
	} else {
		logging.Info().Msg("Remote media storage is not configured; only local storage is available")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.NewMedia(reg)
	if err != nil {
		return nil, err
	}

	svc := media.NewService(cfg.Media, records, compressor, stores...).WithMetrics(m)
	return &Media{Service: svc, Registry: reg}, nil
}

type Records struct {
	Records *mediadata.PostgresRecords
	pool    *pgxpool.Pool
}

func ConnectRecords(ctx context.Context, cfg config.PostgresConfig) (*Records, error) {
	pool, err := db.NewConnPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Records{
		Records: mediadata.NewPostgresRecords(pool),
		pool:    pool,
	}, nil
}

func (r *Records) Close() {
	r.pool.Close()
}
