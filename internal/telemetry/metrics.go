package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — метрики выполнения пайплайна.
type Metrics struct {
	// TasksStarted — количество стартовавших выполнений по задачам.
	TasksStarted *prometheus.CounterVec

	// TasksSucceeded — количество успешных выполнений по задачам.
	TasksSucceeded *prometheus.CounterVec

	// TasksFailed — количество провалившихся выполнений по задачам.
	TasksFailed *prometheus.CounterVec

	// TaskDuration — длительность выполнений по задачам.
	TaskDuration *prometheus.HistogramVec

	// ItemsPublished — количество item'ов, опубликованных в потоки.
	ItemsPublished *prometheus.CounterVec
}

// NewMetrics создаёт и регистрирует метрики.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strelka",
			Name:      "tasks_started_total",
			Help:      "Number of task executions started.",
		}, []string{"task"}),

		TasksSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strelka",
			Name:      "tasks_succeeded_total",
			Help:      "Number of task executions that succeeded.",
		}, []string{"task"}),

		TasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strelka",
			Name:      "tasks_failed_total",
			Help:      "Number of task executions that failed.",
		}, []string{"task"}),

		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "strelka",
			Name:      "task_duration_seconds",
			Help:      "Wall-clock duration of task executions.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"task"}),

		ItemsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strelka",
			Name:      "stream_items_published_total",
			Help:      "Number of items published to data streams.",
		}, []string{"stream"}),
	}

	reg.MustRegister(
		m.TasksStarted,
		m.TasksSucceeded,
		m.TasksFailed,
		m.TaskDuration,
		m.ItemsPublished,
	)

	return m
}
