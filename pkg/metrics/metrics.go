package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Orchestrator metrics
	IterationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iteration_duration_seconds",
			Help:    "Wall-clock duration of a create/iterate/rebuild/rollback cycle",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"operation"}, // "create", "iterate", "rebuild", "rollback"
	)

	BuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "builds_total",
			Help: "Total number of sandbox builds run, by terminal status",
		},
		[]string{"status"}, // "success", "failed"
	)

	RepairAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "repair_attempts_total",
			Help: "Total number of auto-repair attempts issued to the build runner",
		},
	)

	// Credit ledger metrics
	CreditsChargedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_charged_total",
			Help: "Total credits charged against principal balances",
		},
	)

	CreditsGrantedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_granted_total",
			Help: "Total credits granted to principal balances",
		},
	)

	CreditsRefundedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_refunded_total",
			Help: "Total credits refunded to principal balances",
		},
	)

	RateLimitRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejected_total",
			Help: "Total requests rejected by the fixed-window rate limiter",
		},
		[]string{"scope"}, // "prompt", "rebuild", "create_project"
	)

	// Database metrics
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	DBErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Total number of database errors",
		},
	)
)
