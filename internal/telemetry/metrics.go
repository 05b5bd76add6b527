package telemetry

import "github.com/prometheus/client_golang/prometheus"

// BudgetReservationsTotal counts ledger reserve/commit/refund operations by
// outcome, so budget conservation can be monitored externally.
var BudgetReservationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "adlcgate",
		Subsystem: "budget",
		Name:      "operations_total",
		Help:      "Total number of budget ledger operations by kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

// BudgetOverrunTotal counts commits whose spend exceeded the daily budget
// plus the overrun slack and was clamped at that limit.
var BudgetOverrunTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "adlcgate",
		Subsystem: "budget",
		Name:      "overrun_admitted_total",
		Help:      "Total number of budget commits clamped after exceeding the overrun slack allowance.",
	},
)

// BudgetAutoRefundTotal counts stale reservations reclaimed by Reserve
// before it evaluates a new admission, i.e. holds released automatically
// because the holder never committed or refunded within the reservation
// TTL.
var BudgetAutoRefundTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "adlcgate",
		Subsystem: "budget",
		Name:      "auto_refund_total",
		Help:      "Total number of stale reservations automatically reclaimed on access.",
	},
)

// CircuitBreakerTransitionsTotal counts breaker state transitions by model
// and edge.
var CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "adlcgate",
		Subsystem: "breaker",
		Name:      "transitions_total",
		Help:      "Total number of circuit breaker state transitions.",
	},
	[]string{"model", "from_state", "to_state"},
)

// TelemetryDroppedTotal counts telemetry records dropped because the queue
// was full.
var TelemetryDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "adlcgate",
		Subsystem: "telemetry",
		Name:      "dropped_total",
		Help:      "Total number of telemetry records dropped due to a full queue.",
	},
)

// TelemetryDeadLetteredTotal counts telemetry records that exhausted retries
// and were written to the dead-letter sink.
var TelemetryDeadLetteredTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "adlcgate",
		Subsystem: "telemetry",
		Name:      "dead_lettered_total",
		Help:      "Total number of telemetry records moved to the dead-letter sink after exhausting retries.",
	},
)

// RedactionSpansTotal counts PII spans redacted, labeled by entity type.
var RedactionSpansTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "adlcgate",
		Subsystem: "redaction",
		Name:      "spans_total",
		Help:      "Total number of PII spans redacted, by entity type.",
	},
	[]string{"entity_type"},
)

// LockContentionTotal counts draft lock acquisition attempts that found the
// draft already held by another caller.
var LockContentionTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "adlcgate",
		Subsystem: "lock",
		Name:      "contention_total",
		Help:      "Total number of draft lock acquisitions rejected due to an existing holder.",
	},
)

// NewMetricsRegistry builds a Prometheus registry with the Go/process
// collectors plus this package's collectors and any extras supplied by the
// caller.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		BudgetReservationsTotal,
		BudgetOverrunTotal,
		BudgetAutoRefundTotal,
		CircuitBreakerTransitionsTotal,
		TelemetryDroppedTotal,
		TelemetryDeadLetteredTotal,
		RedactionSpansTotal,
		LockContentionTotal,
	)
	reg.MustRegister(extra...)
	return reg
}
