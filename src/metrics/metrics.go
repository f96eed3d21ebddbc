package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
	"github.com/PatchWorkCreations/iriseup-foundation/src/oops"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "iriseup_media"

// Prometheus collectors for the ingestion pipeline. A nil *Media records
// nothing.
type Media struct {
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec
	storedBytes       *prometheus.CounterVec
	compressions      *prometheus.CounterVec
}

func NewMedia(reg prometheus.Registerer) (*Media, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Media{
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of ingest and delete operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "storage_type"}),
		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed ingest and delete operations by error kind.",
		}, []string{"operation", "storage_type", "kind"}),
		storedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stored_bytes_total",
			Help:      "Bytes written to storage backends after compression.",
		}, []string{"storage_type"}),
		compressions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compressions_total",
			Help:      "Compressor runs by the path that produced the result.",
		}, []string{"strategy"}),
	}

	var err error
	if m.operationDuration, err = register(reg, m.operationDuration); err != nil {
		return nil, err
	}
	if m.operationErrors, err = register(reg, m.operationErrors); err != nil {
		return nil, err
	}
	if m.storedBytes, err = register(reg, m.storedBytes); err != nil {
		return nil, err
	}
	if m.compressions, err = register(reg, m.compressions); err != nil {
		return nil, err
	}
	return m, nil
}

// Registers c, or returns the collector already registered under the same
// name so that several services can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, oops.New(err, "failed to register media metrics")
}

func (m *Media) RecordIngest(storageType string, d time.Duration, storedBytes int, err error) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues("ingest", storageType).Observe(d.Seconds())
	if err != nil {
		m.operationErrors.WithLabelValues("ingest", storageType, KindLabel(err)).Inc()
		return
	}
	m.storedBytes.WithLabelValues(storageType).Add(float64(storedBytes))
}

func (m *Media) RecordDelete(storageType string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues("delete", storageType).Observe(d.Seconds())
	if err != nil {
		m.operationErrors.WithLabelValues("delete", storageType, KindLabel(err)).Inc()
	}
}

func (m *Media) RecordCompression(strategy string) {
	if m == nil {
		return
	}
	m.compressions.WithLabelValues(strategy).Inc()
}

func KindLabel(err error) string {
	switch mediaerr.KindOf(err) {
	case mediaerr.Validation:
		return "validation"
	case mediaerr.Decode:
		return "decode"
	case mediaerr.Compression:
		return "compression"
	case mediaerr.NotFound:
		return "not_found"
	}
	return "backend_io"
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
