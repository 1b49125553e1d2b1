// Package metrics exposes Prometheus collectors for the local progress service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	progressQueriesTotal       *prometheus.CounterVec
	progressStopsTotal         *prometheus.CounterVec
	progressJobsStartedTotal   prometheus.Counter
	progressTrackedSubjects    prometheus.Gauge
	progressRateLimitedTotal   prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)

		progressQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "progress_queries_total",
				Help: "Progress queries served, labeled by whether the subject was tracked.",
			},
			[]string{"found"},
		)

		progressStopsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "progress_stops_total",
				Help: "Stop notifications received, labeled by whether the subject was tracked.",
			},
			[]string{"found"},
		)

		progressJobsStartedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "progress_jobs_started_total",
				Help: "Simulated jobs started.",
			},
		)

		progressTrackedSubjects = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "progress_tracked_subjects",
				Help: "Subjects with a step board held in memory.",
			},
		)

		progressRateLimitedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "progress_rate_limited_total",
				Help: "Progress queries rejected with 429.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveQuery counts a progress query.
func ObserveQuery(found bool) {
	if progressQueriesTotal == nil {
		return
	}
	progressQueriesTotal.WithLabelValues(strconv.FormatBool(found)).Inc()
}

// ObserveStop counts a stop notification.
func ObserveStop(found bool) {
	if progressStopsTotal == nil {
		return
	}
	progressStopsTotal.WithLabelValues(strconv.FormatBool(found)).Inc()
}

// ObserveJobStarted counts a simulated job start.
func ObserveJobStarted() {
	if progressJobsStartedTotal == nil {
		return
	}
	progressJobsStartedTotal.Inc()
}

// SetTrackedSubjects records how many boards are held.
func SetTrackedSubjects(n int) {
	if progressTrackedSubjects == nil {
		return
	}
	progressTrackedSubjects.Set(float64(n))
}

// ObserveRateLimited counts a throttled progress query.
func ObserveRateLimited() {
	if progressRateLimitedTotal == nil {
		return
	}
	progressRateLimitedTotal.Inc()
}
