package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики управления позициями
// ============================================================
//
// - решения допуска и открытые/закрытые позиции
// - баланс счёта и число открытых позиций
// - латентность ордеров и тика монитора

// ============ Метрики латентности ============

// OrderExecutionLatency - время исполнения ордера
var OrderExecutionLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "statarb",
		Subsystem: "trading",
		Name:      "order_execution_latency_ms",
		Help:      "Time to execute order in milliseconds",
		Buckets:   []float64{1, 10, 50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"trader", "side"},
)

// MonitorTickDuration - длительность одного прохода монитора
var MonitorTickDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "statarb",
		Subsystem: "trading",
		Name:      "monitor_tick_duration_seconds",
		Help:      "Duration of one position monitor pass",
		Buckets:   prometheus.DefBuckets,
	},
)

// ============ Счётчики событий ============

// AdmissionRejected - отказы в открытии по причине
var AdmissionRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statarb",
		Subsystem: "trading",
		Name:      "admission_rejected_total",
		Help:      "Signals rejected by admission control by reason",
	},
	[]string{"reason"},
)

// PositionsOpened - открытые позиции по стороне
var PositionsOpened = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statarb",
		Subsystem: "trading",
		Name:      "positions_opened_total",
		Help:      "Positions opened by side",
	},
	[]string{"side"},
)

// PositionsClosed - закрытые позиции по причине
var PositionsClosed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statarb",
		Subsystem: "trading",
		Name:      "positions_closed_total",
		Help:      "Positions closed by reason",
	},
	[]string{"reason"},
)

// MonitorErrors - ошибки монитора по этапу (price, zscore, order, persist)
var MonitorErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statarb",
		Subsystem: "trading",
		Name:      "monitor_errors_total",
		Help:      "Position monitor errors by stage",
	},
	[]string{"stage"},
)

// ============ Состояние ============

// OpenPositions - число открытых позиций
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "statarb",
		Subsystem: "trading",
		Name:      "open_positions",
		Help:      "Number of open positions",
	},
)

// Balance - доступный баланс счёта
var Balance = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "statarb",
		Subsystem: "trading",
		Name:      "account_balance",
		Help:      "Available account balance in quote asset",
	},
)

// RealizedPNL - накопленный реализованный pnl с момента старта
var RealizedPNL = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "statarb",
		Subsystem: "trading",
		Name:      "realized_pnl",
		Help:      "Realized pnl since process start",
	},
)
