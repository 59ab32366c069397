package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	ordersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lab_orders_created_total",
			Help: "Total number of test orders created",
		},
		[]string{"priority"},
	)

	ordersModified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lab_orders_modified_total",
			Help: "Total number of test order modifications",
		},
	)

	ordersDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lab_orders_deleted_total",
			Help: "Total number of test orders deleted",
		},
		[]string{"mode"},
	)

	resultsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lab_results_ingested_total",
			Help: "Total number of instrument results materialized",
		},
		[]string{"source"},
	)

	duplicateMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lab_duplicate_messages_total",
			Help: "Total number of re-delivered instrument messages rejected by the ingestion guard",
		},
		[]string{"source"},
	)

	flagsComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lab_flags_computed_total",
			Help: "Total number of result flags computed",
		},
		[]string{"flag"},
	)

	reviewPredictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lab_review_predictions_total",
			Help: "Total number of result status predictions by resolving strategy",
		},
		[]string{"strategy"},
	)

	registrySyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lab_registry_syncs_total",
			Help: "Total number of identity registry synchronizations",
		},
		[]string{"outcome"},
	)
)

// RecordOrderCreated increments the orders created counter
func RecordOrderCreated(priority string) {
	ordersCreated.WithLabelValues(priority).Inc()
}

// RecordOrderModified increments the orders modified counter
func RecordOrderModified() {
	ordersModified.Inc()
}

// RecordOrderDeleted increments the orders deleted counter; mode is "soft" or "hard"
func RecordOrderDeleted(mode string) {
	ordersDeleted.WithLabelValues(mode).Inc()
}

// RecordResultIngested increments the results ingested counter
func RecordResultIngested(source string) {
	resultsIngested.WithLabelValues(source).Inc()
}

// RecordDuplicateMessage increments the duplicate message counter
func RecordDuplicateMessage(source string) {
	duplicateMessages.WithLabelValues(source).Inc()
}

// RecordFlagComputed increments the flag counter
func RecordFlagComputed(flag string) {
	flagsComputed.WithLabelValues(flag).Inc()
}

// RecordReviewPrediction increments the prediction counter for a strategy
func RecordReviewPrediction(strategy string) {
	reviewPredictions.WithLabelValues(strategy).Inc()
}

// RecordRegistrySync increments the sync counter; outcome is "changed", "unchanged" or "failed"
func RecordRegistrySync(outcome string) {
	registrySyncs.WithLabelValues(outcome).Inc()
}

// Middleware instruments HTTP handlers
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

// Handler returns the Prometheus metrics endpoint handler
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
