// Package metrics exposes Prometheus collectors for the audit service.
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

// Audit outcomes used as label values.
const (
	OutcomeSuccess         = "success"
	OutcomeValidationError = "validation_error"
	OutcomeProvisionError  = "provision_error"
	OutcomeAuditError      = "audit_error"
	OutcomeProjectionError = "projection_error"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	auditsTotal                *prometheus.CounterVec
	auditDurationSeconds       *prometheus.HistogramVec
	auditStageSeconds          *prometheus.HistogramVec
	lighthouseRunSeconds       *prometheus.HistogramVec
	browsersActive             prometheus.Gauge

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
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"method", "route"},
		)

		auditsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webaudit_audits_total",
				Help: "Total number of audit requests, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		auditDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webaudit_audit_duration_seconds",
				Help:    "End-to-end audit latency, labeled by outcome.",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		)

		auditStageSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webaudit_audit_stage_seconds",
				Help:    "Latency of each audit lifecycle stage.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		)

		lighthouseRunSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webaudit_lighthouse_run_seconds",
				Help:    "Wall time of Lighthouse CLI runs, labeled by outcome.",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		)

		browsersActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webaudit_browsers_active",
				Help: "Number of headless browsers currently running.",
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
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveAudit records one finished audit request.
func ObserveAudit(outcome string, duration time.Duration) {
	Init()
	auditsTotal.WithLabelValues(outcome).Inc()
	auditDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveStage records the latency of one lifecycle stage (provision, audit, project).
func ObserveStage(stage string, duration time.Duration) {
	Init()
	auditStageSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveLighthouseRun records one Lighthouse CLI execution.
func ObserveLighthouseRun(outcome string, duration time.Duration) {
	Init()
	lighthouseRunSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncBrowsers increments the active browsers gauge.
func IncBrowsers() {
	Init()
	browsersActive.Inc()
}

// DecBrowsers decrements the active browsers gauge.
func DecBrowsers() {
	Init()
	browsersActive.Dec()
}
