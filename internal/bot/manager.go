// Package bot управляет жизненным циклом позиций: распределение капитала
// по рангу пары, допуск, открытие по сигналам и мониторинг выхода
// (TP/SL по ноге и возврат z-score пары к среднему).
package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/thinh267/stat-arb/internal/config"
	"github.com/thinh267/stat-arb/internal/exchange"
	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/pkg/retry"
	"github.com/thinh267/stat-arb/pkg/utils"
)

// Deps - зависимости менеджера позиций
type Deps struct {
	Account   *Account
	Trader    exchange.Trader
	Positions PositionStore
	Signals   SignalSource
	Ranks     RankSource
	Pairs     PairLookup
	Prices    exchange.PriceSource
	ZScores   ZScorer
}

// Manager - менеджер позиций
//
// Два независимых цикла:
//   - OpenFromSignals: недавние сигналы → допуск → ордер → позиция OPEN
//   - Monitor: TP/SL по каждой ноге, затем возврат z-score по паре
//
// Всё состояние позиций хранится в БД; в памяти только баланс счёта,
// который восстанавливается через Restore после рестарта.
type Manager struct {
	cfg       config.TradingConfig
	account   *Account
	executor  *OrderExecutor
	positions PositionStore
	signals   SignalSource
	ranks     RankSource
	pairs     PairLookup
	prices    exchange.PriceSource
	zscores   ZScorer

	openMu    sync.Mutex // один цикл открытия одновременно
	monitorMu sync.Mutex // один проход монитора одновременно
	openCount atomic.Int64

	// исполненные выходы без записанного закрытия, по id позиции (под monitorMu)
	pending map[int]*pendingExit

	onOpened func() // вызывается после цикла открытия с новыми позициями
	persist  retry.Policy

	now func() time.Time
	log *utils.Logger
}

// NewManager создаёт менеджер позиций
func NewManager(cfg config.TradingConfig, deps Deps) *Manager {
	account := deps.Account
	if account == nil {
		account = NewAccount(cfg.DailyLimit)
	}
	return &Manager{
		cfg:       cfg,
		account:   account,
		executor:  NewOrderExecutor(deps.Trader),
		positions: deps.Positions,
		signals:   deps.Signals,
		ranks:     deps.Ranks,
		pairs:     deps.Pairs,
		prices:    deps.Prices,
		zscores:   deps.ZScores,
		pending:   make(map[int]*pendingExit),
		persist:   retry.Persistence(),
		now:       time.Now,
		log:       utils.L().WithComponent("positions"),
	}
}

// Account возвращает счёт менеджера
func (m *Manager) Account() *Account {
	return m.account
}

// OnOpened задаёт обработчик открытия новых позиций. Вызывается до
// запуска циклов; run использует его, чтобы сразу запустить монитор.
func (m *Manager) OnOpened(fn func()) {
	m.onOpened = fn
}

// Restore восстанавливает баланс и число открытых позиций из хранилища
func (m *Manager) Restore(ctx context.Context) error {
	summary, err := m.positions.CapitalSummary(ctx)
	if err != nil {
		return fmt.Errorf("load capital summary: %w", err)
	}

	balance := m.account.Restore(summary)
	m.openCount.Store(int64(summary.OpenCount))
	OpenPositions.Set(float64(summary.OpenCount))

	m.log.Info("account restored",
		zap.String("mode", m.cfg.Mode),
		zap.String("trader", m.executor.Name()),
		zap.Float64("balance", balance),
		zap.Float64("open_capital", summary.OpenCapital),
		zap.Float64("realized_pnl", summary.RealizedPNL),
		zap.Int("open", summary.OpenCount),
		zap.Int("closed", summary.ClosedCount))
	return nil
}

// Interval возвращает паузу до следующего прохода монитора:
// короткую, пока есть открытые позиции, длинную в простое
func (m *Manager) Interval() time.Duration {
	if m.openCount.Load() > 0 {
		return m.cfg.MonitorFastInterval
	}
	return m.cfg.MonitorSlowInterval
}

// available возвращает доступный для открытия баланс. В live режиме
// учитывается и баланс биржи, если его удалось получить.
func (m *Manager) available(ctx context.Context) float64 {
	avail := m.account.Balance()
	if !m.cfg.IsLive() {
		return avail
	}
	remote, err := m.executor.AvailableBalance(ctx)
	if err != nil {
		m.log.Warn("failed to read exchange balance, using tracked balance", zap.Error(err))
		return avail
	}
	if remote < avail {
		return remote
	}
	return avail
}

// setOpenCount обновляет число открытых позиций и gauge
func (m *Manager) setOpenCount(n int) {
	if n < 0 {
		n = 0
	}
	m.openCount.Store(int64(n))
	OpenPositions.Set(float64(n))
}

// positionLog - логгер с полями позиции
func (m *Manager) positionLog(p *models.Position) *utils.Logger {
	return m.log.With(
		utils.PositionID(p.ID),
		utils.PairID(p.PairID),
		utils.Symbol(p.Symbol),
		utils.Side(p.Side))
}
