package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики сканера и ранжирования
// ============================================================

// PhaseDuration - длительность фаз сканера
var PhaseDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "statarb",
		Subsystem: "scanner",
		Name:      "phase_duration_seconds",
		Help:      "Duration of pair discovery phases",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	},
	[]string{"phase"},
)

// PhaseSurvivors - сколько символов или пар прошло фазу в последнем прогоне
var PhaseSurvivors = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "statarb",
		Subsystem: "scanner",
		Name:      "phase_survivors",
		Help:      "Symbols or pairs that survived each phase of the last run",
	},
	[]string{"phase"},
)

// UnitFailures - символы и пары, исключённые из прогона из-за ошибок
var UnitFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statarb",
		Subsystem: "scanner",
		Name:      "unit_failures_total",
		Help:      "Symbols or pairs dropped from a run because of errors",
	},
	[]string{"phase", "class"},
)

// PairsSelected - размер отобранного набора в последнем прогоне
var PairsSelected = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "statarb",
		Subsystem: "scanner",
		Name:      "pairs_selected",
		Help:      "Pairs selected by the last discovery run",
	},
)

// RankedPairs - размер последнего снимка ранжирования
var RankedPairs = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "statarb",
		Subsystem: "ranking",
		Name:      "ranked_pairs",
		Help:      "Pairs in the latest ranking snapshot",
	},
)
