package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/internal/repository"
)

// ============ Mock PositionStore ============

type MockPositionStore struct {
	mu        sync.Mutex
	positions map[int]*models.Position
	order     []int
	nextID    int
	closes    int
	createErr error
	listErr   error
	closeErr  error
	recordErr error
}

func NewMockPositionStore() *MockPositionStore {
	return &MockPositionStore{positions: make(map[int]*models.Position), nextID: 1}
}

// Put добавляет позицию как уже сохранённую
func (m *MockPositionStore) Put(p *models.Position) *models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.nextID
	}
	if p.ID >= m.nextID {
		m.nextID = p.ID + 1
	}
	if p.Status == "" {
		p.Status = models.PositionOpen
	}
	cp := *p
	m.positions[p.ID] = &cp
	m.order = append(m.order, p.ID)
	return p
}

func (m *MockPositionStore) Get(id int) *models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (m *MockPositionStore) All() []*models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Position, 0, len(m.order))
	for _, id := range m.order {
		cp := *m.positions[id]
		out = append(out, &cp)
	}
	return out
}

func (m *MockPositionStore) Create(ctx context.Context, p *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.positions {
		if existing.IsOpen() && existing.Symbol == p.Symbol {
			return repository.ErrPositionExists
		}
	}
	p.ID = m.nextID
	m.nextID++
	cp := *p
	m.positions[p.ID] = &cp
	m.order = append(m.order, p.ID)
	return nil
}

func (m *MockPositionStore) ListOpen(ctx context.Context) ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Position
	for _, id := range m.order {
		if p := m.positions[id]; p.IsOpen() {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockPositionStore) HasOpenForSymbol(ctx context.Context, symbol string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.positions {
		if p.IsOpen() && p.Symbol == symbol {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockPositionStore) ExistsForSignal(ctx context.Context, signalID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.positions {
		if p.SignalID == signalID {
			return true, nil
		}
	}
	return false, nil
}

// RecordExit отмечает исполненный выход на открытой позиции
func (m *MockPositionStore) RecordExit(ctx context.Context, id int, orderID string, exitPrice float64, reason string, exitTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	p, ok := m.positions[id]
	if !ok || !p.IsOpen() {
		return repository.ErrPositionClosed
	}
	p.ExitOrderID = orderID
	p.ExitPrice = &exitPrice
	p.Reason = reason
	p.ExitTime = &exitTime
	return nil
}

// SetCloseErr задаёт ошибку записи закрытия (nil - снять)
func (m *MockPositionStore) SetCloseErr(err error) {
	m.mu.Lock()
	m.closeErr = err
	m.mu.Unlock()
}

func (m *MockPositionStore) Close(ctx context.Context, id int, exitPrice, pnl float64, reason string, exitTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeErr != nil {
		return m.closeErr
	}
	p, ok := m.positions[id]
	if !ok || !p.IsOpen() {
		return repository.ErrPositionClosed
	}
	m.closes++
	p.Status = models.PositionClosed
	p.ExitPrice = &exitPrice
	p.PNL = &pnl
	p.Reason = reason
	p.ExitTime = &exitTime
	return nil
}

func (m *MockPositionStore) CapitalSummary(ctx context.Context) (models.CapitalSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s models.CapitalSummary
	for _, p := range m.positions {
		if p.IsOpen() {
			s.OpenCapital += p.Capital()
			s.OpenCount++
			continue
		}
		s.ClosedCount++
		if p.PNL != nil {
			s.RealizedPNL += *p.PNL
		}
	}
	return s, nil
}

// ============ Mock SignalSource ============

type MockSignals struct {
	signals []*models.Signal
	err     error
}

func (m *MockSignals) ListSince(ctx context.Context, since time.Time) ([]*models.Signal, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Signal
	for _, s := range m.signals {
		if !s.CreatedAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

// ============ Mock RankSource / PairLookup ============

type MockRanks struct {
	ranks map[int]int
	err   error
}

func (m *MockRanks) RankForPair(ctx context.Context, pairID int) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	r, ok := m.ranks[pairID]
	if !ok {
		return 0, repository.ErrRankingNotFound
	}
	return r, nil
}

type MockPairs struct {
	pairs map[int]*models.Pair
}

func (m *MockPairs) GetByID(ctx context.Context, id int) (*models.Pair, error) {
	p, ok := m.pairs[id]
	if !ok {
		return nil, repository.ErrPairNotFound
	}
	return p, nil
}

// ============ Mock PriceSource ============

type MockPrices struct {
	mu     sync.Mutex
	prices map[string]float64
}

func NewMockPrices() *MockPrices {
	return &MockPrices{prices: make(map[string]float64)}
}

func (m *MockPrices) Set(symbol string, price float64) {
	m.mu.Lock()
	m.prices[symbol] = price
	m.mu.Unlock()
}

func (m *MockPrices) Price(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return p, nil
}

// ============ Mock ZScorer ============

type MockZScores struct {
	mu  sync.Mutex
	z   map[string]float64
	err error
}

func NewMockZScores() *MockZScores {
	return &MockZScores{z: make(map[string]float64)}
}

func (m *MockZScores) Set(pair1, pair2 string, z float64) {
	m.mu.Lock()
	m.z[pair1+"/"+pair2] = z
	m.mu.Unlock()
}

func (m *MockZScores) ZScore(ctx context.Context, pair1, pair2 string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	z, ok := m.z[pair1+"/"+pair2]
	if !ok {
		return 0, fmt.Errorf("no z-score for %s/%s", pair1, pair2)
	}
	return z, nil
}

// ============ Mock Trader ============

// MockTrader заполняет ордера по MockPrices и запоминает их
type MockTrader struct {
	mu         sync.Mutex
	prices     *MockPrices
	orders     []*models.OrderResult
	fail       map[string]error
	balance    float64
	balanceErr error
}

func NewMockTrader(prices *MockPrices) *MockTrader {
	return &MockTrader{prices: prices, fail: make(map[string]error)}
}

func (m *MockTrader) Name() string { return "mock" }

func (m *MockTrader) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*models.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[symbol]; err != nil {
		return nil, err
	}
	price, err := m.prices.Price(ctx, symbol)
	if err != nil {
		return nil, err
	}
	o := &models.OrderResult{
		OrderID:   fmt.Sprintf("order-%d", len(m.orders)+1),
		Symbol:    symbol,
		Side:      side,
		Quantity:  qty,
		AvgPrice:  price,
		Status:    models.OrderStatusFilled,
		CreatedAt: time.Now().UTC(),
	}
	m.orders = append(m.orders, o)
	return o, nil
}

func (m *MockTrader) AvailableBalance(ctx context.Context) (float64, error) {
	return m.balance, m.balanceErr
}

func (m *MockTrader) Orders() []*models.OrderResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.OrderResult(nil), m.orders...)
}
