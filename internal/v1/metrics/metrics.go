package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the collaborative task board server.
//
// Naming convention: namespace_subsystem_name
// - namespace: taskboard (application-level grouping)
// - subsystem: session, room, task, conflict, circuit_breaker, rate_limit, redis (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (sessions, rooms, members)
// - Counter: Cumulative events (mutations processed, conflicts detected)
// - Histogram: Latency distributions (mutation processing time)

var (
	// ActiveSessions tracks the current number of active session-gateway connections.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskboard",
		Subsystem: "session",
		Name:      "connections_active",
		Help:      "Current number of active session connections",
	})

	// RoomMembers tracks the number of sessions subscribed to each room.
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "taskboard",
		Subsystem: "room",
		Name:      "members_count",
		Help:      "Number of sessions subscribed to each room",
	}, []string{"room_kind"})

	// SessionEvents tracks the total number of inbound/outbound session frames processed.
	SessionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "session",
		Name:      "frames_total",
		Help:      "Total session frames processed",
	}, []string{"frame_type", "status"})

	// MutationDuration tracks the time spent executing task-service mutations.
	MutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskboard",
		Subsystem: "task",
		Name:      "mutation_duration_seconds",
		Help:      "Time spent executing task mutations",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	// TaskMutationsTotal tracks the total number of task mutations by outcome.
	TaskMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "task",
		Name:      "mutations_total",
		Help:      "Total task mutations attempted",
	}, []string{"operation", "status"})

	// ConflictsDetected tracks the total number of optimistic-concurrency conflicts detected.
	ConflictsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "conflict",
		Name:      "detected_total",
		Help:      "Total version conflicts detected",
	}, []string{"strategy"})

	// CircuitBreakerState tracks the current state of a circuit breaker.
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "taskboard",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks the total number of requests rejected by a circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks the total number of requests that exceeded the rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks the total number of requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// RedisOperationsTotal tracks the total number of Redis operations.
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks the duration of Redis operations.
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskboard",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// ActivityRecorded tracks the total number of activity records produced.
	ActivityRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "activity",
		Name:      "recorded_total",
		Help:      "Total activity records produced",
	}, []string{"category"})

	// ActivitySinkFailures tracks the total number of activity-sink write failures (fire-and-forget).
	ActivitySinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "activity",
		Name:      "sink_failures_total",
		Help:      "Total activity sink write failures",
	}, []string{"reason"})
)

func IncSession() {
	ActiveSessions.Inc()
}

func DecSession() {
	ActiveSessions.Dec()
}
