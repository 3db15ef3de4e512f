// Package metrics exposes Prometheus collectors for loads and the HTTP query surface.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "job_insights"

// Load outcomes.
const (
	LoadSucceeded = "success"
	LoadFailed    = "failure"
	LoadRejected  = "rejected"
)

var (
	registerOnce sync.Once

	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Load invocations by outcome.",
		},
		[]string{"status"},
	)

	loadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Wall time of load invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	loadedRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loaded_rows",
			Help:      "Rows persisted by the last successful load.",
		},
		[]string{"entity"},
	)

	normalizationWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalization_warnings_total",
			Help:      "Row-level normalization warnings by kind.",
		},
		[]string{"kind"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served.",
		},
		[]string{"method", "path", "status"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Query cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register adds all collectors to the default registry. Safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(loadsTotal, loadDuration, loadedRows, normalizationWarnings,
			requestDuration, requestTotal, cacheLookups)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// ObserveLoad records one load invocation.
func ObserveLoad(status string, elapsed time.Duration) {
	loadsTotal.WithLabelValues(status).Inc()
	loadDuration.Observe(elapsed.Seconds())
}

// SetLoadedRows records the entity sizes of the last successful load.
func SetLoadedRows(companies, jobs, postings int) {
	loadedRows.WithLabelValues("companies").Set(float64(companies))
	loadedRows.WithLabelValues("jobs").Set(float64(jobs))
	loadedRows.WithLabelValues("job_postings").Set(float64(postings))
}

// AddWarnings adds per-kind warning counts.
func AddWarnings(warnings map[string]int) {
	for kind, n := range warnings {
		normalizationWarnings.WithLabelValues(kind).Add(float64(n))
	}
}

// CacheLookup records a cache hit or miss.
func CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware records request count and latency per route pattern.
func HTTPMiddleware(next http.Handler) http.Handler {
	Register()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"path":   path,
			"status": strconv.Itoa(rec.status),
		}
		requestDuration.With(labels).Observe(time.Since(start).Seconds())
		requestTotal.With(labels).Inc()
	})
}
