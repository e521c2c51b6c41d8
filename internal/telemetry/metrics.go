package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка выполнения.
var (
	// ActionExecutions — количество выполнений action по типу и исходу
	// (success, error, cancelled).
	ActionExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actionflow_action_executions_total",
			Help: "Number of action executions by type and outcome.",
		},
		[]string{"type", "status"},
	)

	// ActionDuration — длительность выполнения action.
	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "actionflow_action_duration_seconds",
			Help:    "Action execution duration in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type"},
	)

	// AvailabilityPolls — проверки доступности файловых результатов
	// (available, pending, error).
	AvailabilityPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actionflow_file_availability_polls_total",
			Help: "Number of file availability checks by result.",
		},
		[]string{"result"},
	)

	// StatePersists — сохранения снимка состояния (success, error).
	StatePersists = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actionflow_state_persist_total",
			Help: "Number of execution state writes by result.",
		},
		[]string{"result"},
	)
)
