package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionChecks counts route-level permission evaluations by outcome (allowed|denied).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicalert_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "result"},
	)

	// UnknownPermissions counts stored grants that do not match a registered permission.
	UnknownPermissions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "civicalert_unknown_permissions_total",
			Help: "Stored permission grants rejected because they are not registered",
		},
	)

	// QuotaDecisions counts quota outcomes (allowed|rejected|degraded) per endpoint.
	QuotaDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicalert_quota_decisions_total",
			Help: "Quota enforcer decisions",
		},
		[]string{"endpoint", "outcome"},
	)

	// LifecycleTransitions counts notification transitions by action and result.
	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicalert_lifecycle_transitions_total",
			Help: "Notification lifecycle transitions",
		},
		[]string{"action", "result"},
	)

	// DispatchSubscribers tracks connected dispatch stream subscribers.
	DispatchSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "civicalert_dispatch_subscribers",
			Help: "Number of connected dispatch stream subscribers",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "civicalert_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
