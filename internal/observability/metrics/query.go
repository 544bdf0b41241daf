package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychain_queries_total",
			Help: "Answered queries by outcome reason and matched pattern.",
		},
		[]string{"reason", "pattern"},
	)

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querychain_query_duration_seconds",
			Help:    "End-to-end latency of answering a query.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"plan_kind"},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querychain_step_duration_seconds",
			Help:    "Latency of a single tool invocation.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"tool", "operation"},
	)

	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychain_tasks_total",
			Help: "Asynchronous tasks that reached a terminal state.",
		},
		[]string{"status"},
	)

	taskRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "querychain_task_retries_total",
			Help: "Task attempts that were requeued.",
		},
	)
)

// ObserveQuery records one answered query. An empty pattern is reported as
// "none".
func ObserveQuery(reason, pattern, planKind string, duration time.Duration) {
	if pattern == "" {
		pattern = "none"
	}
	if planKind == "" {
		planKind = "none"
	}
	queriesTotal.WithLabelValues(reason, pattern).Inc()
	queryDuration.WithLabelValues(planKind).Observe(duration.Seconds())
}

// ObserveStep records the latency of one executed plan step.
func ObserveStep(tool, operation string, duration time.Duration) {
	stepDuration.WithLabelValues(tool, operation).Observe(duration.Seconds())
}

// ObserveTask records a task reaching status.
func ObserveTask(status string) {
	tasksTotal.WithLabelValues(status).Inc()
}

// ObserveTaskRetry counts a requeued attempt.
func ObserveTaskRetry() {
	taskRetries.Inc()
}
