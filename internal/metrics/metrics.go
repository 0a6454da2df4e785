// Package metrics provides Prometheus metrics for the resolver service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/crosswalk"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
)

const namespace = "resolver"

// Metrics holds all Prometheus metrics for the service on its own registry
type Metrics struct {
	registry *prometheus.Registry

	// MatchesTotal tracks matched records by method
	MatchesTotal *prometheus.CounterVec
	// BatchDuration tracks batch run duration in seconds
	BatchDuration prometheus.Histogram
	// BatchRecords tracks records per batch
	BatchRecords prometheus.Histogram
	// SkippedTotal tracks records with no name and no identifiers
	SkippedTotal prometheus.Counter
	// FailedTotal tracks records whose match panicked
	FailedTotal prometheus.Counter
	// CacheHitsTotal tracks match cache hits
	CacheHitsTotal prometheus.Counter
	// ReviewQueuedTotal tracks fuzzy_candidate results sent to review
	ReviewQueuedTotal prometheus.Counter
	// IdentifierCollisions is the collision count of the current reference index
	IdentifierCollisions prometheus.Gauge
	// ReferenceOrganizations is the size of the current reference index
	ReferenceOrganizations prometheus.Gauge
	// CrosswalkMutationsTotal tracks committed crosswalk changes
	CrosswalkMutationsTotal *prometheus.CounterVec
	// CrosswalkRecords is the current crosswalk size
	CrosswalkRecords prometheus.Gauge
}

// New creates and registers all metrics
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "records_total",
			Help:      "Total number of matched records by method",
		}, []string{"method"}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Duration of batch runs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		BatchRecords: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "records",
			Help:      "Number of records per batch run",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 7),
		}),
		SkippedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "skipped_total",
			Help:      "Total number of records skipped for having no name and no identifiers",
		}),
		FailedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "failed_total",
			Help:      "Total number of records that failed to match",
		}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of match cache hits",
		}),
		ReviewQueuedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "queued_total",
			Help:      "Total number of results queued for review",
		}),
		IdentifierCollisions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reference",
			Name:      "identifier_collisions",
			Help:      "Identifier collisions in the current reference index",
		}),
		ReferenceOrganizations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reference",
			Name:      "organizations",
			Help:      "Organizations in the current reference index",
		}),
		CrosswalkMutationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crosswalk",
			Name:      "mutations_total",
			Help:      "Total number of committed crosswalk changes by kind and cause",
		}, []string{"kind", "cause"}),
		CrosswalkRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "crosswalk",
			Name:      "records",
			Help:      "Canonical records in the crosswalk",
		}),
	}
}

var _ matching.Recorder = (*Metrics)(nil)

// ObserveMatch counts one classified record
func (m *Metrics) ObserveMatch(method models.MatchMethod) {
	m.MatchesTotal.WithLabelValues(method.String()).Inc()
}

// ObserveBatch records a finished batch run
func (m *Metrics) ObserveBatch(summary matching.BatchSummary) {
	m.BatchDuration.Observe(summary.Duration.Seconds())
	m.BatchRecords.Observe(float64(summary.Total))
	m.SkippedTotal.Add(float64(summary.Skipped))
	m.FailedTotal.Add(float64(summary.Failed))
	m.CacheHitsTotal.Add(float64(summary.CacheHits))
	m.ReviewQueuedTotal.Add(float64(summary.ReviewQueued))
}

// ObserveIndices records the shape of a freshly built reference index
func (m *Metrics) ObserveIndices(report *matching.BuildReport) {
	if report == nil {
		return
	}
	m.ReferenceOrganizations.Set(float64(report.Organizations))
	m.IdentifierCollisions.Set(float64(len(report.Collisions)))
}

// ObserveCrosswalkChange counts a committed crosswalk change
func (m *Metrics) ObserveCrosswalkChange(ch crosswalk.Change) {
	m.CrosswalkMutationsTotal.WithLabelValues(string(ch.Kind), ch.Cause).Inc()
}

// ObserveCrosswalkSize records the current number of canonical records
func (m *Metrics) ObserveCrosswalkSize(n int) {
	m.CrosswalkRecords.Set(float64(n))
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
