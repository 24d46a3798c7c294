// Package observability provides Prometheus metrics for the scan pipeline.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "dex_gem_sentry"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Fetch metrics
	FetchRequests    *prometheus.CounterVec
	PairsFetched     prometheus.Counter
	MalformedRecords prometheus.Counter
	FetchLatency     prometheus.Histogram

	// Cycle metrics
	CyclesTotal    *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	CandidatesLast prometheus.Gauge
	NewPairsTotal  prometheus.Counter

	// State metrics
	SnapshotSize prometheus.Gauge
	DedupSize    prometheus.Gauge

	// Alert metrics
	AlertsTotal *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance backed by its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FetchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Feed requests by result (ok, error)",
		}, []string{"result"}),
		PairsFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "pairs_total",
			Help:      "Total number of pair records decoded from the feed",
		}),
		MalformedRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "malformed_records_total",
			Help:      "Pair records skipped because they could not be decoded",
		}),
		FetchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "latency_seconds",
			Help:      "Feed request latency",
			Buckets:   prometheus.DefBuckets,
		}),

		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "cycles_total",
			Help:      "Scan cycles by status (ok, failed)",
		}, []string{"status"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full scan cycle",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		CandidatesLast: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "candidates",
			Help:      "Number of pairs passing the filter in the last cycle",
		}),
		NewPairsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "new_pairs_total",
			Help:      "Pairs classified as newly discovered",
		}),

		SnapshotSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "snapshot_size",
			Help:      "Number of pairs in the dashboard snapshot",
		}),
		DedupSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "dedup_size",
			Help:      "Number of pair identifiers already alerted",
		}),

		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "sent_total",
			Help:      "Alert deliveries by result (delivered, failed)",
		}, []string{"result"}),
	}
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveFetch records one feed request.
func (m *Metrics) ObserveFetch(start time.Time, pairs, malformed int, err error) {
	if m == nil {
		return
	}
	m.FetchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		m.FetchRequests.WithLabelValues("error").Inc()
		return
	}
	m.FetchRequests.WithLabelValues("ok").Inc()
	m.PairsFetched.Add(float64(pairs))
	m.MalformedRecords.Add(float64(malformed))
}

// ObserveCycle records one finished scan cycle.
func (m *Metrics) ObserveCycle(d time.Duration, candidates, newPairs int, failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "failed"
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.CandidatesLast.Set(float64(candidates))
	m.NewPairsTotal.Add(float64(newPairs))
}

// SetStateSizes updates snapshot and dedup gauges.
func (m *Metrics) SetStateSizes(snapshot, dedup int) {
	if m == nil {
		return
	}
	m.SnapshotSize.Set(float64(snapshot))
	m.DedupSize.Set(float64(dedup))
}

// ObserveAlert records one alert delivery attempt.
func (m *Metrics) ObserveAlert(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.AlertsTotal.WithLabelValues("delivered").Inc()
		return
	}
	m.AlertsTotal.WithLabelValues("failed").Inc()
}
