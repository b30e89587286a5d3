// Package metrics exposes Prometheus collectors for the sitedigest service.
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
	jobsTotal                  *prometheus.CounterVec
	stepsTotal                 *prometheus.CounterVec
	stepDurationSeconds        *prometheus.HistogramVec
	retriesTotal               *prometheus.CounterVec
	pagesSummarizedTotal       prometheus.Counter
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitedigest_jobs_total",
				Help: "Total number of scrape jobs processed, labeled by terminal status.",
			},
			[]string{"status"},
		)

		stepsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitedigest_steps_total",
				Help: "Total number of workflow step executions, labeled by step and outcome.",
			},
			[]string{"step", "outcome"},
		)

		stepDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitedigest_step_duration_seconds",
				Help:    "Histogram of workflow step execution latencies.",
				Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60},
			},
			[]string{"step"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitedigest_retries_total",
				Help: "Total number of error-recovery retries, labeled by step.",
			},
			[]string{"step"},
		)

		pagesSummarizedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitedigest_pages_summarized_total",
				Help: "Total number of pages successfully summarized.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitedigest_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given terminal status.
func ObserveJob(status string) {
	if jobsTotal == nil {
		return
	}
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveStep records one step execution.
func ObserveStep(step, outcome string, duration time.Duration) {
	if stepsTotal == nil {
		return
	}
	stepsTotal.WithLabelValues(step, outcome).Inc()
	stepDurationSeconds.WithLabelValues(step).Observe(duration.Seconds())
}

// ObserveRetry increments the retry counter for a step.
func ObserveRetry(step string) {
	if retriesTotal == nil {
		return
	}
	retriesTotal.WithLabelValues(step).Inc()
}

// AddPagesSummarized counts successfully summarized pages.
func AddPagesSummarized(n int) {
	if pagesSummarizedTotal == nil || n <= 0 {
		return
	}
	pagesSummarizedTotal.Add(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
