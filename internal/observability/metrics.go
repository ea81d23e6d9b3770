package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Terminal statuses of a generation stream.
const (
	StreamCompleted = "ok"
	StreamFailed    = "failed"
	// StreamAbandoned marks a stream whose caller went away before it ended.
	StreamAbandoned = "abandoned"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supaseed_http_requests_total",
			Help: "Total number of HTTP requests by route pattern.",
		},
		[]string{"method", "path", "status"},
	)
	// Event streams stay open for the whole completion, so the seed routes
	// get buckets well past the defaults.
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supaseed_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path", "status"},
	)

	schemaFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supaseed_schema_fetch_total",
			Help: "Total number of schema fetches by status.",
		},
		[]string{"status"},
	)
	schemaFetchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supaseed_schema_fetch_duration_seconds",
			Help:    "Schema fetch latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	generationStreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supaseed_generation_streams_total",
			Help: "Total number of generation streams by model and terminal status (ok, failed, abandoned).",
		},
		[]string{"model", "status"},
	)
	generationStreamsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "supaseed_generation_streams_in_flight",
			Help: "Number of generation streams currently relaying fragments.",
		},
	)
	generationFragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supaseed_generation_fragments_total",
			Help: "Total number of text fragments relayed to callers.",
		},
	)
	generationFirstFragmentSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supaseed_generation_first_fragment_seconds",
			Help:    "Latency from stream open to the first relayed fragment.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
	)
	archiveWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supaseed_archive_writes_total",
			Help: "Total number of seed archive writes by status.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		schemaFetchTotal,
		schemaFetchDurationSeconds,
		generationStreamsTotal,
		generationStreamsInFlight,
		generationFragmentsTotal,
		generationFirstFragmentSeconds,
		archiveWritesTotal,
	)
}

func ObserveSchemaFetch(err error, elapsed time.Duration) {
	schemaFetchTotal.WithLabelValues(statusLabel(err)).Inc()
	schemaFetchDurationSeconds.Observe(elapsed.Seconds())
}

// ObserveGenerationStream counts a finished stream under one of
// StreamCompleted, StreamFailed or StreamAbandoned.
func ObserveGenerationStream(model, status string) {
	generationStreamsTotal.WithLabelValues(model, status).Inc()
}

// TrackStream marks a stream as in flight until the returned func is called.
func TrackStream() func() {
	generationStreamsInFlight.Inc()
	return generationStreamsInFlight.Dec
}

func ObserveFirstFragment(elapsed time.Duration) {
	generationFirstFragmentSeconds.Observe(elapsed.Seconds())
}

func IncrementFragments() {
	generationFragmentsTotal.Inc()
}

func ObserveArchiveWrite(err error) {
	archiveWritesTotal.WithLabelValues(statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return StreamFailed
	}
	return StreamCompleted
}
