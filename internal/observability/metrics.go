// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Feed metrics
	FeedFetchLatency *prometheus.HistogramVec
	FeedFetchErrors  *prometheus.CounterVec
	FeedRowsRead     *prometheus.CounterVec

	// Ingestion metrics
	RecordsProcessed *prometheus.CounterVec
	RecordsSkipped   *prometheus.CounterVec
	NormalizerMisses prometheus.Counter

	// Detection metrics
	VariationsDetected *prometheus.CounterVec
	VariationsStored   *prometheus.CounterVec

	// Live API metrics
	LiveFetches      *prometheus.CounterVec
	LiveFetchLatency prometheus.Histogram
	LiveBreakerState prometheus.Gauge
	LiveBreakerTrips prometheus.Counter

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	SinkErrors        *prometheus.CounterVec
	WSClients         prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulBatch prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the metrics on reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "fuel_price_watch"
	}
	f := promauto.With(reg)

	return &Metrics{
		// Feed metrics
		FeedFetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetch_latency_seconds",
			Help:      "Bulk feed download latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"feed"}),
		FeedFetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed bulk feed downloads",
		}, []string{"feed"}),
		FeedRowsRead: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "rows_read_total",
			Help:      "Total number of data rows read from bulk feeds",
		}, []string{"feed"}),

		// Ingestion metrics
		RecordsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_processed_total",
			Help:      "Total number of records processed by upsert result",
		}, []string{"feed", "result"}),
		RecordsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_skipped_total",
			Help:      "Total number of records skipped by reason",
		}, []string{"feed", "reason"}),
		NormalizerMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fuel_name_misses_total",
			Help:      "Total number of fuel names not found in the alias table",
		}),

		// Detection metrics
		VariationsDetected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "variations_detected_total",
			Help:      "Total number of price variations detected",
		}, []string{"source", "direction"}),
		VariationsStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "variations_stored_total",
			Help:      "Total number of price variations persisted by sink",
		}, []string{"sink"}),

		// Live API metrics
		LiveFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "fetches_total",
			Help:      "Total number of live station fetches by outcome",
		}, []string{"outcome"}),
		LiveFetchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "fetch_latency_seconds",
			Help:      "Live station API latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		LiveBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "circuit_breaker_state",
			Help:      "Live API circuit breaker state (0 closed, 1 half-open, 2 open)",
		}),
		LiveBreakerTrips: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of times the live API circuit breaker opened",
		}),

		// Pipeline metrics
		PipelineRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"phase", "status"}),
		PipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "sink_errors_total",
			Help:      "Total number of failed variation sink publishes",
		}, []string{"sink"}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "websocket_clients",
			Help:      "Number of connected variation feed clients",
		}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulBatch: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_batch_timestamp",
			Help:      "Unix timestamp of last successful batch run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFeedFetch records a bulk feed download.
func RecordFeedFetch(feed string, seconds float64, err error) {
	DefaultMetrics.FeedFetchLatency.WithLabelValues(feed).Observe(seconds)
	if err != nil {
		DefaultMetrics.FeedFetchErrors.WithLabelValues(feed).Inc()
	}
}

// RecordRowsRead adds n rows read from feed.
func RecordRowsRead(feed string, n int) {
	DefaultMetrics.FeedRowsRead.WithLabelValues(feed).Add(float64(n))
}

// RecordUpsert increments the processed counter for an upsert result label.
func RecordUpsert(feed, result string) {
	DefaultMetrics.RecordsProcessed.WithLabelValues(feed, result).Inc()
}

// RecordSkip increments the skipped counter for reason.
func RecordSkip(feed, reason string) {
	DefaultMetrics.RecordsSkipped.WithLabelValues(feed, reason).Inc()
}

// RecordNormalizerMiss increments the fuel name miss counter.
func RecordNormalizerMiss() {
	DefaultMetrics.NormalizerMisses.Inc()
}

// RecordVariation increments the detected variations counter.
func RecordVariation(source, direction string) {
	DefaultMetrics.VariationsDetected.WithLabelValues(source, direction).Inc()
}

// RecordVariationsStored adds n variations persisted by sink.
func RecordVariationsStored(sink string, n int) {
	DefaultMetrics.VariationsStored.WithLabelValues(sink).Add(float64(n))
}

// RecordLiveFetch records one live station fetch.
func RecordLiveFetch(outcome string, seconds float64) {
	DefaultMetrics.LiveFetches.WithLabelValues(outcome).Inc()
	DefaultMetrics.LiveFetchLatency.Observe(seconds)
}

// SetLiveBreakerState sets the live breaker state gauge.
func SetLiveBreakerState(state float64, tripped bool) {
	DefaultMetrics.LiveBreakerState.Set(state)
	if tripped {
		DefaultMetrics.LiveBreakerTrips.Inc()
	}
}

// RecordSinkError increments the sink error counter.
func RecordSinkError(sink string) {
	DefaultMetrics.SinkErrors.WithLabelValues(sink).Inc()
}

// SetWSClients sets the websocket client gauge.
func SetWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordPipelineRun records a pipeline run.
func RecordPipelineRun(phase, status string, durationSeconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordBatchSuccess sets the last successful batch timestamp.
func RecordBatchSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulBatch.Set(float64(unixSeconds))
}
