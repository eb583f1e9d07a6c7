package signal

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/thinh267/stat-arb/internal/exchange"
	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/internal/repository"
)

// ============ Mock MarketData ============

type MockMarket struct {
	series map[string][]models.Candle
}

func NewMockMarket() *MockMarket {
	return &MockMarket{series: make(map[string][]models.Candle)}
}

func (m *MockMarket) Add(symbol string, closes []float64) {
	m.series[symbol] = candlesFrom(closes)
}

func (m *MockMarket) Universe(ctx context.Context) ([]exchange.SymbolInfo, error) {
	return nil, nil
}

func (m *MockMarket) Candles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	s, ok := m.series[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	if limit < len(s) {
		s = s[len(s)-limit:]
	}
	return s, nil
}

func (m *MockMarket) Price(ctx context.Context, symbol string) (float64, error) {
	s := m.series[symbol]
	if len(s) == 0 {
		return 0, fmt.Errorf("unknown symbol %s", symbol)
	}
	return s[len(s)-1].Close, nil
}

// ============ Mock RankingSource ============

type MockRanking struct {
	ranked []models.RankedPair
	err    error
}

func (m *MockRanking) Latest(ctx context.Context) ([]models.RankedPair, error) {
	return m.ranked, m.err
}

// ============ Mock PairSource ============

type MockPairs struct {
	latest  []*models.Pair
	ids     map[string]int
	listErr error
}

func NewMockPairs() *MockPairs {
	return &MockPairs{ids: make(map[string]int)}
}

func (m *MockPairs) ListLatestRun(ctx context.Context) ([]*models.Pair, error) {
	return m.latest, m.listErr
}

func (m *MockPairs) ResolvePairID(ctx context.Context, s1, s2 string) (int, error) {
	if id, ok := m.ids[s1+"/"+s2]; ok {
		return id, nil
	}
	if id, ok := m.ids[s2+"/"+s1]; ok {
		return id, nil
	}
	return 0, repository.ErrPairNotFound
}

// ============ Mock SignalStore ============

type MockSignalStore struct {
	mu      sync.Mutex
	saved   map[string]*models.Signal
	saveErr error
	calls   int
	nextID  int
}

func NewMockSignalStore() *MockSignalStore {
	return &MockSignalStore{saved: make(map[string]*models.Signal), nextID: 1}
}

func (m *MockSignalStore) Save(ctx context.Context, s *models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.saveErr != nil {
		return m.saveErr
	}
	key := fmt.Sprintf("%d|%s|%s|%d", s.PairID, s.Symbol, s.SignalType, s.Timestamp.UnixMilli())
	if _, exists := m.saved[key]; exists {
		return repository.ErrSignalExists
	}
	s.ID = m.nextID
	m.nextID++
	m.saved[key] = s
	return nil
}

// ============ Stub Strategy ============

// stubStrategy возвращает по одному сигналу на выбранную ногу каждой пары
type stubStrategy struct {
	side string
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Decide(st *PairState) []*models.Signal {
	leg := st.SelectedLeg()
	return []*models.Signal{{
		Pair1:      st.Pair1,
		Pair2:      st.Pair2,
		Symbol:     leg.Symbol,
		SignalType: s.side,
		ZScore:     st.Spread.Z,
		Timestamp:  st.Timestamp,
		EntryPrice: leg.LastClose(),
		Strategy:   s.Name(),
	}}
}

// ============ Генераторы рядов ============

var seriesStart = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

func candlesFrom(closes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		open := seriesStart.Add(time.Duration(i) * time.Hour)
		out[i] = models.Candle{
			OpenTime:  open,
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    100,
			CloseTime: open.Add(time.Hour - time.Millisecond),
		}
	}
	return out
}

func noisy(n int, base, slope, noise float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = base + slope*float64(i) + noise*rng.NormFloat64()
	}
	return out
}

func linear(n int, base, slope float64) []float64 {
	return noisy(n, base, slope, 0, 0)
}
