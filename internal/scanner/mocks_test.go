package scanner

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/thinh267/stat-arb/internal/exchange"
	"github.com/thinh267/stat-arb/internal/models"
)

// ============ Mock MarketData ============

type MockMarket struct {
	mu          sync.Mutex
	series      map[string][]models.Candle
	candleErr   map[string]error
	universe    []exchange.SymbolInfo
	universeErr error
	calls       map[string]int
}

func NewMockMarket() *MockMarket {
	return &MockMarket{
		series:    make(map[string][]models.Candle),
		candleErr: make(map[string]error),
		calls:     make(map[string]int),
	}
}

// AddSymbol регистрирует торгуемый символ с историей закрытий
func (m *MockMarket) AddSymbol(symbol string, closes []float64, volume float64) {
	m.series[symbol] = candlesFrom(closes, volume)
	m.universe = append(m.universe, exchange.SymbolInfo{
		Symbol:       symbol,
		QuoteAsset:   "USDT",
		ContractType: "PERPETUAL",
		Status:       "TRADING",
	})
}

func (m *MockMarket) Universe(ctx context.Context) ([]exchange.SymbolInfo, error) {
	if m.universeErr != nil {
		return nil, m.universeErr
	}
	return m.universe, nil
}

func (m *MockMarket) Candles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	m.mu.Lock()
	m.calls[symbol]++
	m.mu.Unlock()

	if err := m.candleErr[symbol]; err != nil {
		return nil, err
	}
	s, ok := m.series[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	if limit < len(s) {
		s = s[len(s)-limit:]
	}
	return append([]models.Candle(nil), s...), nil
}

func (m *MockMarket) Price(ctx context.Context, symbol string) (float64, error) {
	s := m.series[symbol]
	if len(s) == 0 {
		return 0, fmt.Errorf("unknown symbol %s", symbol)
	}
	return s[len(s)-1].Close, nil
}

func (m *MockMarket) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// ============ Mock PairStore ============

type MockPairStore struct {
	mu        sync.Mutex
	batches   [][]*models.Pair
	latest    []*models.Pair
	createErr error
	listErr   error
	nextID    int
}

func NewMockPairStore() *MockPairStore {
	return &MockPairStore{nextID: 1}
}

func (m *MockPairStore) CreateBatch(ctx context.Context, pairs []*models.Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, p := range pairs {
		p.ID = m.nextID
		m.nextID++
		p.CreatedAt = time.Now()
	}
	m.batches = append(m.batches, pairs)
	m.latest = pairs
	return nil
}

func (m *MockPairStore) ListLatestRun(ctx context.Context) ([]*models.Pair, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.latest, nil
}

// ============ Mock RankingStore ============

type MockRankingStore struct {
	mu        sync.Mutex
	snapshots map[time.Time][]models.RankingSnapshot
	saveErr   error
	saves     int
}

func NewMockRankingStore() *MockRankingStore {
	return &MockRankingStore{snapshots: make(map[time.Time][]models.RankingSnapshot)}
}

func (m *MockRankingStore) SaveSnapshot(ctx context.Context, ts time.Time, rows []models.RankingSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snapshots[ts] = append([]models.RankingSnapshot(nil), rows...)
	return nil
}

// ============ Mock StatsStore ============

type MockStatsStore struct {
	saved   []*models.CorrelationStats
	saveErr error
}

func (m *MockStatsStore) Save(ctx context.Context, stats *models.CorrelationStats) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, stats)
	return nil
}

// ============ Генераторы рядов ============

var seriesStart = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

func candlesFrom(closes []float64, volume float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		open := seriesStart.Add(time.Duration(i) * time.Hour)
		out[i] = models.Candle{
			OpenTime:  open,
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    volume,
			CloseTime: open.Add(time.Hour - time.Millisecond),
		}
	}
	return out
}

// trend - линейный рост с небольшим шумом
func trend(n int, base, slope, noise float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = base + slope*float64(i) + noise*rng.NormFloat64()
	}
	return out
}

// wave - синусоида с периодом period свечей
func wave(n int, base, amp float64, period int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + amp*math.Sin(2*math.Pi*float64(i)/float64(period))
	}
	return out
}

// randomWalk - случайное блуждание с шагом step
func randomWalk(n int, base, step float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	out[0] = base
	for i := 1; i < n; i++ {
		out[i] = out[i-1] + step*rng.NormFloat64()
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
