package cache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/thinh267/stat-arb/internal/exchange"
	"github.com/thinh267/stat-arb/internal/models"
)

var cacheRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statarb",
		Subsystem: "cache",
		Name:      "candle_requests_total",
		Help:      "Candle cache lookups by result",
	},
	[]string{"result"},
)

// Tiered - двухуровневое хранилище: L1 в памяти прогона, L2 общий (Redis).
// Значение из L2 копируется в L1, поэтому внутри прогона серия не меняется,
// даже если в L2 её перезапишет другой процесс после истечения TTL.
type Tiered struct {
	l1 Store
	l2 Store
}

// NewTiered создаёт двухуровневое хранилище; l2 может быть nil
func NewTiered(l1, l2 Store) Store {
	if l2 == nil {
		return l1
	}
	return &Tiered{l1: l1, l2: l2}
}

// Get ищет в L1, затем в L2
func (t *Tiered) Get(ctx context.Context, key string) ([]models.Candle, bool) {
	if c, ok := t.l1.Get(ctx, key); ok {
		return c, true
	}
	c, ok := t.l2.Get(ctx, key)
	if !ok {
		return nil, false
	}
	actual, _ := t.l1.SetIfAbsent(ctx, key, c)
	return actual, true
}

// SetIfAbsent записывает в L2, затем фиксирует победившее значение в L1
func (t *Tiered) SetIfAbsent(ctx context.Context, key string, candles []models.Candle) ([]models.Candle, bool) {
	actual, stored := t.l2.SetIfAbsent(ctx, key, candles)
	final, storedL1 := t.l1.SetIfAbsent(ctx, key, actual)
	return final, stored && storedL1
}

// CachedSource - источник рыночных данных с кэшированием свечей.
// Universe и Price не кэшируются.
type CachedSource struct {
	src   exchange.MarketData
	store Store
	now   func() time.Time
}

// NewCachedSource оборачивает источник
func NewCachedSource(src exchange.MarketData, store Store) *CachedSource {
	return &CachedSource{src: src, store: store, now: time.Now}
}

// Universe проксирует запрос к источнику
func (c *CachedSource) Universe(ctx context.Context) ([]exchange.SymbolInfo, error) {
	return c.src.Universe(ctx)
}

// Price проксирует запрос к источнику
func (c *CachedSource) Price(ctx context.Context, symbol string) (float64, error) {
	return c.src.Price(ctx, symbol)
}

// Candles возвращает серию из кэша или загружает и кэширует её.
// При гонке двух загрузок все получают первую записанную серию.
func (c *CachedSource) Candles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	key := CandleKey(symbol, interval, limit, Bucket(interval, c.now()))
	if candles, ok := c.store.Get(ctx, key); ok {
		cacheRequests.WithLabelValues("hit").Inc()
		return candles, nil
	}
	cacheRequests.WithLabelValues("miss").Inc()

	candles, err := c.src.Candles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	actual, _ := c.store.SetIfAbsent(ctx, key, candles)
	return actual, nil
}
