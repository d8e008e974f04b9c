// Package metrics provides Prometheus metrics for harvests, context cache
// publishes, store operations and the HTTP backend.
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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archon_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archon_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	harvestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archon_harvests_total",
			Help: "Total number of project harvests",
		},
		[]string{"status"},
	)

	harvestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "archon_harvest_duration_seconds",
			Help:    "Time to harvest a project into a context document",
			Buckets: prometheus.DefBuckets,
		},
	)

	harvestBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "archon_harvest_document_bytes",
			Help: "Size of the most recent context document",
		},
	)

	harvestFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "archon_harvest_document_files",
			Help: "Number of files in the most recent context document",
		},
	)

	publishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archon_cache_publishes_total",
			Help: "Total number of context cache publishes",
		},
		[]string{"status"},
	)

	publishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "archon_cache_publish_duration_seconds",
			Help:    "Context cache publish round-trip time",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	reasoningTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archon_reasoning_requests_total",
			Help: "Total number of reasoning requests",
		},
		[]string{"kind", "status"},
	)

	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archon_store_operations_total",
			Help: "Total number of remote store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archon_store_operation_duration_seconds",
			Help:    "Remote store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHarvest records one harvest.
func RecordHarvest(duration time.Duration, bytes, files int, success bool) {
	harvestsTotal.WithLabelValues(status(success)).Inc()
	harvestDuration.Observe(duration.Seconds())
	if success {
		harvestBytes.Set(float64(bytes))
		harvestFiles.Set(float64(files))
	}
}

// RecordPublish records one context cache publish.
func RecordPublish(duration time.Duration, success bool) {
	publishesTotal.WithLabelValues(status(success)).Inc()
	publishDuration.Observe(duration.Seconds())
}

// RecordReasoning records one architect or chat request.
func RecordReasoning(kind string, success bool) {
	reasoningTotal.WithLabelValues(kind, status(success)).Inc()
}

// RecordStoreOperation records one remote store call.
func RecordStoreOperation(backend, operation string, duration time.Duration, success bool) {
	storeOperationsTotal.WithLabelValues(backend, operation, status(success)).Inc()
	storeOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration per route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
