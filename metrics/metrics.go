// Package metrics exposes the service's Prometheus metrics and the
// standalone metrics HTTP server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the provenance backend. A nil
// *Metrics is a valid no-op receiver so library code never needs to guard
// its instrumentation calls.
type Metrics struct {
	registry *prometheus.Registry

	BlobsStored        prometheus.Counter
	BlobsFetched       prometheus.Counter
	CorruptionDetected prometheus.Counter
	EventsAppended     prometheus.Counter
	KeysIssued         prometheus.Counter
	KeysRevoked        prometheus.Counter
	AnchorsPublished   *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		BlobsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_blobs_stored_total",
			Help: "Total number of blobs written to the content-addressed store",
		}),
		BlobsFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_blobs_fetched_total",
			Help: "Total number of blob reads served",
		}),
		CorruptionDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_corruption_detected_total",
			Help: "Total number of reads whose bytes failed the content hash check",
		}),
		EventsAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_trace_events_appended_total",
			Help: "Total number of custody events appended across all products",
		}),
		KeysIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_keys_issued_total",
			Help: "Total number of document keys issued by the vault",
		}),
		KeysRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_keys_revoked_total",
			Help: "Total number of document keys revoked",
		}),
		AnchorsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provenance_anchors_published_total",
			Help: "Total number of anchor digests by final status",
		}, []string{"status"}),
	}
}

// IncBlobsStored increments the stored-blob counter.
func (m *Metrics) IncBlobsStored() {
	if m != nil {
		m.BlobsStored.Inc()
	}
}

// IncBlobsFetched increments the fetched-blob counter.
func (m *Metrics) IncBlobsFetched() {
	if m != nil {
		m.BlobsFetched.Inc()
	}
}

// IncCorruptionDetected increments the corruption counter.
func (m *Metrics) IncCorruptionDetected() {
	if m != nil {
		m.CorruptionDetected.Inc()
	}
}

// IncEventsAppended increments the appended-event counter.
func (m *Metrics) IncEventsAppended() {
	if m != nil {
		m.EventsAppended.Inc()
	}
}

// IncKeysIssued increments the issued-key counter.
func (m *Metrics) IncKeysIssued() {
	if m != nil {
		m.KeysIssued.Inc()
	}
}

// IncKeysRevoked increments the revoked-key counter.
func (m *Metrics) IncKeysRevoked() {
	if m != nil {
		m.KeysRevoked.Inc()
	}
}

// IncAnchorsPublished increments the anchor counter for a status label.
func (m *Metrics) IncAnchorsPublished(status string) {
	if m != nil {
		m.AnchorsPublished.WithLabelValues(status).Inc()
	}
}

// MetricsServer serves the registry on a dedicated listen address.
type MetricsServer struct {
	srv *http.Server
}

// NewServer creates the metrics HTTP server for the given metrics set.
func NewServer(m *Metrics, listenAddr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:         listenAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe starts serving metrics; it blocks like http.Server.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
