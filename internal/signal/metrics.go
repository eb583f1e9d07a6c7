package signal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PairsEvaluated - пары, обработанные генератором, по результату
// (signal, no_signal, error class)
var PairsEvaluated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statarb",
		Subsystem: "signals",
		Name:      "pairs_evaluated_total",
		Help:      "Pairs evaluated by the signal engine by outcome",
	},
	[]string{"outcome"},
)

// SignalsGenerated - сигналы после дедупликации
var SignalsGenerated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statarb",
		Subsystem: "signals",
		Name:      "generated_total",
		Help:      "Signals generated after deduplication",
	},
	[]string{"strategy", "type"},
)

// SignalsPersisted - результат записи сигналов (saved, duplicate, failed)
var SignalsPersisted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statarb",
		Subsystem: "signals",
		Name:      "persisted_total",
		Help:      "Signal writes by result",
	},
	[]string{"result"},
)
