package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// JobRuns - запуски задач по результату (ok, error, panic)
var JobRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statarb",
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job runs by result",
	},
	[]string{"job", "result"},
)

// JobDuration - длительность запуска задачи
var JobDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "statarb",
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Duration of scheduled job runs",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	},
	[]string{"job"},
)

// JobTriggers - ручные запуски (queued, coalesced)
var JobTriggers = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statarb",
		Subsystem: "scheduler",
		Name:      "job_triggers_total",
		Help:      "Manual job triggers by outcome",
	},
	[]string{"job", "outcome"},
)
