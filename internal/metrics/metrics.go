package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HealthCheckRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wapool_health_check_runs_total",
			Help: "Health check runs by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	HealthCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wapool_health_check_duration_seconds",
			Help:    "Wall time of a full health check run",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	VerifierCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wapool_verifier_calls_total",
			Help: "Account verifier calls by strategy and verdict",
		},
		[]string{"method", "verdict"},
	)

	VerifierLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wapool_verifier_latency_seconds",
			Help:    "Upstream verification latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	NumberTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wapool_number_transitions_total",
			Help: "State machine transitions applied to numbers",
		},
		[]string{"kind"},
	)

	NumbersByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wapool_numbers",
			Help: "Numbers in the pool by state after the last run",
		},
		[]string{"state"},
	)

	AppFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wapool_app_failures_total",
			Help: "Apps skipped in a run because verification or persistence failed",
		},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wapool_notifications_total",
			Help: "Webhook notification deliveries by outcome",
		},
		[]string{"outcome"},
	)

	Selections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wapool_selections_total",
			Help: "Active number selections by result",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wapool_http_requests_total",
			Help: "HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	HTTPLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wapool_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wapool_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)
)

// ObserveVerification records one verifier call.
func ObserveVerification(method string, active bool, elapsed time.Duration) {
	verdict := "inactive"
	if active {
		verdict = "active"
	}
	VerifierCalls.WithLabelValues(method, verdict).Inc()
	VerifierLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveHTTP records one served request.
func ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
