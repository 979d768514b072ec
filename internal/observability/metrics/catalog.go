// Package metrics provides the Prometheus collectors used by the dog catalog,
// the image materializer and the HTTP API.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Resource label values.
const (
	ResourceBreeds = "breeds"
	ResourceImages = "images"
)

// Outcome label values for remote requests and materializations.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeSoftFailure = "soft_failure"
	OutcomeDropped     = "dropped"
	OutcomeSkipped     = "skipped"
)

// CatalogMetrics tracks cache effectiveness, remote calls and background image
// materialization. A nil *CatalogMetrics is valid and records nothing.
type CatalogMetrics struct {
	cacheLookups     *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	persistErrors    *prometheus.CounterVec
	remoteRequests   *prometheus.CounterVec
	remoteDuration   *prometheus.HistogramVec
	materializations *prometheus.CounterVec
	downloadDuration prometheus.Histogram
	queueDepth       prometheus.Gauge
}

// NewCatalogMetrics creates the collectors and registers them with registry.
func NewCatalogMetrics(registry prometheus.Registerer) (*CatalogMetrics, error) {
	m := &CatalogMetrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dogs_cache_lookups_total",
			Help: "Cache lookups by resource and result (hit, miss).",
		}, []string{"resource", "result"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dogs_stale_fallbacks_total",
			Help: "Requests answered from stale cache after a failed refresh.",
		}, []string{"resource"}),
		persistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dogs_cache_persist_errors_total",
			Help: "Failed writes of freshly fetched data to the local store.",
		}, []string{"resource"}),
		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dogs_remote_requests_total",
			Help: "Dog API calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dogs_remote_request_duration_seconds",
			Help:    "Duration of Dog API calls.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"operation"}),
		materializations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dogs_image_materializations_total",
			Help: "Background image materializations by outcome.",
		}, []string{"outcome"}),
		downloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dogs_image_download_duration_seconds",
			Help:    "Duration of image downloads including re-encoding.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dogs_image_queue_depth",
			Help: "Images waiting for a materialization worker.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.cacheLookups, m.fallbacks, m.persistErrors, m.remoteRequests,
		m.remoteDuration, m.materializations, m.downloadDuration, m.queueDepth,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register catalog metrics: %w", err)
		}
	}
	return m, nil
}

// RecordCacheHit counts a cache hit for resource.
func (m *CatalogMetrics) RecordCacheHit(resource string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(resource, "hit").Inc()
}

// RecordCacheMiss counts a cache miss (absent or stale) for resource.
func (m *CatalogMetrics) RecordCacheMiss(resource string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(resource, "miss").Inc()
}

// RecordFallback counts a stale-cache answer after a failed refresh.
func (m *CatalogMetrics) RecordFallback(resource string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(resource).Inc()
}

// RecordPersistError counts a failed cache write.
func (m *CatalogMetrics) RecordPersistError(resource string) {
	if m == nil {
		return
	}
	m.persistErrors.WithLabelValues(resource).Inc()
}

// RecordRemoteRequest records one Dog API call.
func (m *CatalogMetrics) RecordRemoteRequest(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.remoteRequests.WithLabelValues(operation, outcome).Inc()
	m.remoteDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordMaterialization counts a materialization by outcome.
func (m *CatalogMetrics) RecordMaterialization(outcome string) {
	if m == nil {
		return
	}
	m.materializations.WithLabelValues(outcome).Inc()
}

// ObserveDownloadDuration records a completed image download in seconds.
func (m *CatalogMetrics) ObserveDownloadDuration(seconds float64) {
	if m == nil {
		return
	}
	m.downloadDuration.Observe(seconds)
}

// SetQueueDepth reports the number of queued materialization jobs.
func (m *CatalogMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
