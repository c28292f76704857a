package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FetchesTotal      *prometheus.CounterVec
	CacheLookupsTotal *prometheus.CounterVec
	EnrichLookups     prometheus.Counter
	BatchesTotal      prometheus.Counter
	EarlyStopsTotal   *prometheus.CounterVec
	PeriodFailures    prometheus.Counter
	RecordsCollected  *prometheus.CounterVec
	CollectDuration   prometheus.Histogram
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// NewMetrics registers the metrics with reg, or the default registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		FetchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "racearchive_fetches_total",
			Help: "Outbound fetches by kind and outcome",
		}, []string{"kind", "outcome"}), // outcome: ok, status, error, disallowed
		CacheLookupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "racearchive_result_cache_lookups_total",
			Help: "Result cache lookups by outcome",
		}, []string{"outcome"}), // hit, negative_hit, miss
		EnrichLookups: f.NewCounter(prometheus.CounterOpts{
			Name: "racearchive_enrich_lookups_total",
			Help: "Detail page lookups spent on enrichment",
		}),
		BatchesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "racearchive_batches_total",
			Help: "Enrichment batches started",
		}),
		EarlyStopsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "racearchive_early_stops_total",
			Help: "Phases that stopped early because the budget ran low",
		}, []string{"phase"}),
		PeriodFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "racearchive_period_failures_total",
			Help: "Listing periods that yielded no records because of a fatal error",
		}),
		RecordsCollected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "racearchive_records_collected_total",
			Help: "Records returned to callers by source",
		}, []string{"source"}),
		CollectDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "racearchive_collect_duration_seconds",
			Help:    "Wall-clock duration of collection runs",
			Buckets: []float64{1, 2.5, 5, 10, 15, 20, 25, 30, 45},
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "racearchive_http_requests_total",
			Help: "API requests by route and status code",
		}, []string{"method", "route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "racearchive_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) IncFetch(kind, outcome string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) IncCacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncEnrichLookup() {
	if m == nil {
		return
	}
	m.EnrichLookups.Inc()
}

func (m *Metrics) IncBatch() {
	if m == nil {
		return
	}
	m.BatchesTotal.Inc()
}

func (m *Metrics) IncEarlyStop(phase string) {
	if m == nil {
		return
	}
	m.EarlyStopsTotal.WithLabelValues(phase).Inc()
}

func (m *Metrics) IncPeriodFailure() {
	if m == nil {
		return
	}
	m.PeriodFailures.Inc()
}

func (m *Metrics) AddRecords(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsCollected.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) ObserveCollect(d time.Duration) {
	if m == nil {
		return
	}
	m.CollectDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusText(code)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
