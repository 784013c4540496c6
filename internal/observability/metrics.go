// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Fetch cycle metrics
	FetchCyclesTotal   *prometheus.CounterVec
	FetchCycleDuration prometheus.Histogram
	CandidatesSeen     *prometheus.CounterVec
	RealtimeEvents     prometheus.Counter

	// Persistence metrics
	TokensUpserted *prometheus.CounterVec
	TokensDeleted  *prometheus.CounterVec
	TokenCount     prometheus.Gauge

	// Enrichment metrics
	EnrichmentAttempts *prometheus.CounterVec
	EnrichmentRetries  prometheus.Counter

	// HTTP metrics
	HTTPRequestDuration *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulFetch   prometheus.Gauge
	LastSuccessfulCleanup prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pumpwatch"
	}

	return &Metrics{
		// Fetch cycle metrics
		FetchCyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "cycles_total",
			Help:      "Total number of fetch cycles by winning source and status",
		}, []string{"source", "status"}),
		FetchCycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "cycle_duration_seconds",
			Help:      "Fetch cycle duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		CandidatesSeen: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "candidates_total",
			Help:      "Total number of token candidates yielded by source",
		}, []string{"source"}),
		RealtimeEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "realtime_events_total",
			Help:      "Total number of new-token events collected over WebSocket",
		}),

		// Persistence metrics
		TokensUpserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "tokens_upserted_total",
			Help:      "Total number of token upserts by result",
		}, []string{"result"}),
		TokensDeleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "tokens_deleted_total",
			Help:      "Total number of stale tokens deleted by reason",
		}, []string{"reason"}),
		TokenCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "token_count",
			Help:      "Current number of stored tokens",
		}),

		// Enrichment metrics
		EnrichmentAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "attempts_total",
			Help:      "Total number of metadata enrichment attempts by status",
		}, []string{"status"}),
		EnrichmentRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "retries_total",
			Help:      "Total number of rate-limited gateway retries",
		}),

		// HTTP metrics
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		// Health metrics
		LastSuccessfulFetch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_fetch_timestamp",
			Help:      "Unix timestamp of last successful fetch cycle",
		}),
		LastSuccessfulCleanup: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cleanup_timestamp",
			Help:      "Unix timestamp of last successful cleanup run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFetchCycle records a completed fetch cycle.
func RecordFetchCycle(source, status string, durationSeconds float64) {
	DefaultMetrics.FetchCyclesTotal.WithLabelValues(source, status).Inc()
	DefaultMetrics.FetchCycleDuration.Observe(durationSeconds)
}

// RecordCandidates increments the per-source candidate counter.
func RecordCandidates(source string, n int) {
	DefaultMetrics.CandidatesSeen.WithLabelValues(source).Add(float64(n))
}

// RecordRealtimeEvents counts events collected from the WebSocket feed.
func RecordRealtimeEvents(n int) {
	DefaultMetrics.RealtimeEvents.Add(float64(n))
}

// RecordUpsert records a token upsert outcome: created, updated or skipped.
func RecordUpsert(result string) {
	DefaultMetrics.TokensUpserted.WithLabelValues(result).Inc()
}

// RecordDeleted records stale-token deletions for one cleanup reason.
func RecordDeleted(reason string, n int64) {
	DefaultMetrics.TokensDeleted.WithLabelValues(reason).Add(float64(n))
}

// RecordEnrichment records a metadata enrichment attempt.
func RecordEnrichment(ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	DefaultMetrics.EnrichmentAttempts.WithLabelValues(status).Inc()
}

// RecordEnrichmentRetry counts a rate-limited gateway retry.
func RecordEnrichmentRetry() {
	DefaultMetrics.EnrichmentRetries.Inc()
}

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(method, path string, status int, seconds float64) {
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(seconds)
}

// UpdateTokenCount updates the stored token count gauge.
func UpdateTokenCount(n int64) {
	DefaultMetrics.TokenCount.Set(float64(n))
}

// MarkFetchSuccess stamps the last successful fetch gauge.
func MarkFetchSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulFetch.Set(float64(unixSeconds))
}

// MarkCleanupSuccess stamps the last successful cleanup gauge.
func MarkCleanupSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulCleanup.Set(float64(unixSeconds))
}
