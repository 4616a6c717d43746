// Package metrics exposes Prometheus collectors for corpus polling, imports
// and the dashboard HTTP server.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/corpuswatch/internal/poller"
)

var (
	pollTicksTotal            *prometheus.CounterVec
	pollConsecutiveErrors     *prometheus.GaugeVec
	pollDurationSeconds       *prometheus.HistogramVec
	activePollers             prometheus.Gauge
	importsTotal              *prometheus.CounterVec
	enrichmentsTotal          *prometheus.CounterVec
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDurationSecond *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pollTicksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpuswatch_poll_ticks_total",
				Help: "Total number of completed poll ticks, labeled by corpus and outcome.",
			},
			[]string{"corpus", "outcome"},
		)

		pollConsecutiveErrors = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "corpuswatch_poll_consecutive_errors",
				Help: "Current number of consecutive failed polls per corpus.",
			},
			[]string{"corpus"},
		)

		pollDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corpuswatch_poll_duration_seconds",
				Help:    "Histogram of poll fetch latencies per corpus.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"corpus"},
		)

		activePollers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpuswatch_active_pollers",
				Help: "Number of corpus pollers currently running.",
			},
		)

		importsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpuswatch_imports_total",
				Help: "Total number of import requests, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		enrichmentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpuswatch_enrichments_total",
				Help: "Total number of enrichment requests, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpuswatch_http_requests_total",
				Help: "Total number of dashboard HTTP requests, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corpuswatch_http_request_duration_seconds",
				Help:    "Histogram of dashboard HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// PollObserver records poller ticks and activity. The zero value is ready to
// use once Init has been called.
type PollObserver struct{}

var _ poller.Observer = PollObserver{}

// ObserveTick implements poller.Observer.
func (PollObserver) ObserveTick(name string, outcome poller.Outcome, elapsed time.Duration, errorCount int) {
	pollTicksTotal.WithLabelValues(name, string(outcome)).Inc()
	if outcome == poller.OutcomeDiscarded {
		return
	}
	pollDurationSeconds.WithLabelValues(name).Observe(elapsed.Seconds())
	pollConsecutiveErrors.WithLabelValues(name).Set(float64(errorCount))
}

// ObserveActive implements poller.Observer.
func (PollObserver) ObserveActive(_ string, active bool) {
	if active {
		activePollers.Inc()
	} else {
		activePollers.Dec()
	}
}

// ObserveImport counts an import request. outcome is typically "started",
// "conflict", "not_found" or "error".
func ObserveImport(outcome string) {
	importsTotal.WithLabelValues(outcome).Inc()
}

// ObserveEnrich counts an enrichment request. outcome takes the same values
// as for ObserveImport.
func ObserveEnrich(outcome string) {
	enrichmentsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSecond.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware records request counts and latencies by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, route, rec.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// Flush keeps the recorder usable as an http.Flusher for SSE handlers.
func (rec *statusRecorder) Flush() {
	_ = http.NewResponseController(rec.ResponseWriter).Flush()
}

// Unwrap lets http.ResponseController reach SetWriteDeadline.
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}
