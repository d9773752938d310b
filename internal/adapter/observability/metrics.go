// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for system monitoring.
// The package provides comprehensive observability features
// including metrics collection, distributed tracing, and logging.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// ProviderCallsTotal counts provider adapter calls by provider and operation.
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_calls_total",
			Help: "Total number of provider adapter calls by provider and operation",
		},
		[]string{"provider", "operation", "outcome"},
	)
	// ProviderCallDuration records durations of provider calls by provider and operation.
	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_duration_seconds",
			Help:    "Provider adapter call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)

	// JobsClaimedTotal counts jobs claimed by type.
	JobsClaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_claimed_total",
			Help: "Total number of jobs claimed by Worker.RunOnce",
		},
		[]string{"type"},
	)
	// JobsRunning is a gauge of the number of currently running jobs by type.
	JobsRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_running",
			Help: "Number of jobs currently running",
		},
		[]string{"type"},
	)
	// JobsDoneTotal counts jobs finished successfully by type.
	JobsDoneTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_done_total",
			Help: "Total number of jobs finished successfully",
		},
		[]string{"type"},
	)
	// JobsFailedTotal counts jobs permanently failed by type.
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs permanently failed",
		},
		[]string{"type"},
	)
	// JobsRequeuedTotal counts jobs requeued for retry by type.
	JobsRequeuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_requeued_total",
			Help: "Total number of jobs requeued for retry",
		},
		[]string{"type"},
	)

	// BatchesCreatedTotal counts batches created by mode and output type.
	BatchesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batches_created_total",
			Help: "Total number of batches created",
		},
		[]string{"mode", "output_type"},
	)
	// BatchesTerminalTotal counts batches reaching a terminal status.
	BatchesTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batches_terminal_total",
			Help: "Total number of batches reaching a terminal status",
		},
		[]string{"status"},
	)

	// CreditsDebitedCentsTotal sums cents debited from user balances.
	CreditsDebitedCentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_debited_cents_total",
			Help: "Total cents debited from user balances",
		},
	)
	// CreditsRefundedCentsTotal sums cents refunded to user balances.
	CreditsRefundedCentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_refunded_cents_total",
			Help: "Total cents refunded to user balances",
		},
	)

	// JanitorSweepDuration records how long each janitor sweep step takes.
	JanitorSweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "janitor_sweep_duration_seconds",
			Help:    "Janitor sweep step duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
		[]string{"step"},
	)
	// JanitorSweepItemsTotal counts items affected by each janitor sweep step.
	JanitorSweepItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "janitor_sweep_items_total",
			Help: "Items affected by a janitor sweep step",
		},
		[]string{"step"},
	)

	// CircuitBreakerStatus tracks circuit breaker state.
	CircuitBreakerStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_status",
			Help: "Circuit breaker status (0=closed, 1=open, 2=half-open)",
		},
		[]string{"service", "operation"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(ProviderCallsTotal)
	prometheus.MustRegister(ProviderCallDuration)
	prometheus.MustRegister(JobsClaimedTotal)
	prometheus.MustRegister(JobsRunning)
	prometheus.MustRegister(JobsDoneTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(JobsRequeuedTotal)
	prometheus.MustRegister(BatchesCreatedTotal)
	prometheus.MustRegister(BatchesTerminalTotal)
	prometheus.MustRegister(CreditsDebitedCentsTotal)
	prometheus.MustRegister(CreditsRefundedCentsTotal)
	prometheus.MustRegister(JanitorSweepDuration)
	prometheus.MustRegister(JanitorSweepItemsTotal)
	prometheus.MustRegister(CircuitBreakerStatus)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// ClaimJob increments the claimed-jobs counter and the running gauge for the given type.
func ClaimJob(jobType string) {
	JobsClaimedTotal.WithLabelValues(jobType).Inc()
	JobsRunning.WithLabelValues(jobType).Inc()
}

// FinishJobDone marks a job done, decrementing the running gauge.
func FinishJobDone(jobType string) {
	JobsRunning.WithLabelValues(jobType).Dec()
	JobsDoneTotal.WithLabelValues(jobType).Inc()
}

// FinishJobFailed marks a job permanently failed, decrementing the running gauge.
func FinishJobFailed(jobType string) {
	JobsRunning.WithLabelValues(jobType).Dec()
	JobsFailedTotal.WithLabelValues(jobType).Inc()
}

// RequeueJob marks a job requeued for retry, decrementing the running gauge.
func RequeueJob(jobType string) {
	JobsRunning.WithLabelValues(jobType).Dec()
	JobsRequeuedTotal.WithLabelValues(jobType).Inc()
}

// RecordProviderCall records the outcome and duration of one provider adapter call.
func RecordProviderCall(provider, operation, outcome string, dur time.Duration) {
	ProviderCallsTotal.WithLabelValues(provider, operation, outcome).Inc()
	ProviderCallDuration.WithLabelValues(provider, operation).Observe(dur.Seconds())
}

// RecordCircuitBreakerStatus records circuit breaker state.
func RecordCircuitBreakerStatus(service, operation string, status int) {
	CircuitBreakerStatus.WithLabelValues(service, operation).Set(float64(status))
}

// RecordJanitorSweep records one janitor sweep step's duration and item count.
func RecordJanitorSweep(step string, dur time.Duration, items int) {
	JanitorSweepDuration.WithLabelValues(step).Observe(dur.Seconds())
	JanitorSweepItemsTotal.WithLabelValues(step).Add(float64(items))
}
