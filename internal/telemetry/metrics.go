package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration tracks the ambient admin HTTP surface's latency.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "stratum",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// --- C1 VectorIndex (§4.1) ---

var VectorBackendOperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "vector",
		Subsystem: "backend",
		Name:      "operation_duration_ms",
		Help:      "Vector backend operation latency in milliseconds.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	},
	[]string{"backend", "op"},
)

var VectorBackendOperationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vector",
		Subsystem: "backend",
		Name:      "operation_total",
		Help:      "Total vector backend operations by status.",
	},
	[]string{"backend", "op", "status"},
)

var VectorBackendErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vector",
		Subsystem: "backend",
		Name:      "errors",
		Help:      "Total vector backend errors by code.",
	},
	[]string{"backend", "code"},
)

// --- C2 GraphStore (§4.2) ---

var GraphWriterQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "graph",
		Subsystem: "writer",
		Name:      "queue_depth",
		Help:      "Number of writes waiting in the graph single-writer queue.",
	},
)

var GraphWriterWaitDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "graph",
		Subsystem: "writer",
		Name:      "wait_duration_ms",
		Help:      "Time a write spent waiting in the single-writer queue.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
	},
)

var GraphWriterTimeoutsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "graph",
		Subsystem: "writer",
		Name:      "timeouts_total",
		Help:      "Total writes that exceeded the writer timeout.",
	},
)

var GraphQueryRejectedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "graph",
		Name:      "query_rejected_total",
		Help:      "Total graph queries rejected for missing the tenant_id predicate.",
	},
)

// --- C6 ComplexityRouter / DecompositionExecutor / PolicyTrainer (§4.6) ---

var RoutingDecisionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "memory",
		Subsystem: "rlm",
		Name:      "routing_decision_total",
		Help:      "Total routing decisions by chosen route.",
	},
	[]string{"route"},
)

var ComplexityScore = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "memory",
		Subsystem: "rlm",
		Name:      "complexity_score",
		Help:      "Distribution of computed query complexity scores.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	},
)

var ExecutionDurationMS = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "memory",
		Subsystem: "rlm",
		Name:      "execution_duration_ms",
		Help:      "Decomposition executor wall-clock duration in milliseconds.",
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	},
)

var ExecutionDepth = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "memory",
		Subsystem: "rlm",
		Name:      "execution_depth",
		Help:      "Decomposition executor recursion depth reached.",
		Buckets:   []float64{0, 1, 2, 3, 4, 5},
	},
)

var ExecutionTokens = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "memory",
		Subsystem: "rlm",
		Name:      "execution_tokens",
		Help:      "Tokens consumed by a decomposition run.",
		Buckets:   []float64{100, 500, 1000, 2500, 5000, 10000, 25000},
	},
)

var TrainingReward = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "memory",
		Subsystem: "rlm",
		Name:      "training_reward",
		Help:      "Reward signal computed per completed trajectory.",
		Buckets:   prometheus.LinearBuckets(-1, 0.2, 11),
	},
)

var TrainingExplorationRate = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "memory",
		Subsystem: "rlm",
		Name:      "training_exploration_rate",
		Help:      "Current exploration rate of the policy trainer.",
	},
)

// --- Promotion / governance (§4.3, §4.5) ---

var PromotionBlockedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "memory",
		Subsystem: "promotion",
		Name:      "blocked",
		Help:      "Total promotions blocked by reason.",
	},
	[]string{"reason"},
)

// All returns every stratum-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		VectorBackendOperationDuration,
		VectorBackendOperationTotal,
		VectorBackendErrors,
		GraphWriterQueueDepth,
		GraphWriterWaitDuration,
		GraphWriterTimeoutsTotal,
		GraphQueryRejectedTotal,
		RoutingDecisionTotal,
		ComplexityScore,
		ExecutionDurationMS,
		ExecutionDepth,
		ExecutionTokens,
		TrainingReward,
		TrainingExplorationRate,
		PromotionBlockedTotal,
	}
}
