package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики доступа к бирже
// ============================================================

// requestDuration - длительность HTTP запросов к бирже
var requestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "statarb",
		Subsystem: "exchange",
		Name:      "request_duration_seconds",
		Help:      "Latency of exchange REST requests",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	},
	[]string{"path", "status"},
)

// breakerState - состояние circuit breaker (0 closed, 1 half-open, 2 open)
var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "statarb",
		Subsystem: "exchange",
		Name:      "breaker_state",
		Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open",
	},
	[]string{"name"},
)

// ordersPlaced - размещённые ордера по исполнителю и стороне
var ordersPlaced = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statarb",
		Subsystem: "exchange",
		Name:      "orders_total",
		Help:      "Market orders placed",
	},
	[]string{"trader", "side", "status"},
)

// priceFeedUpdates - обновления mark-цен из websocket потока
var priceFeedUpdates = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "statarb",
		Subsystem: "exchange",
		Name:      "mark_price_updates_total",
		Help:      "Mark price updates received from the stream",
	},
)
