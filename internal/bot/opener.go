package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/internal/repository"
	"github.com/thinh267/stat-arb/pkg/retry"
	"github.com/thinh267/stat-arb/pkg/utils"
)

// OpenResult - итог цикла открытия
type OpenResult struct {
	Signals  int
	Opened   int
	Rejected int
	Failed   int
	Duration time.Duration
}

// signalGroup - сигналы одной пары в одной свече
type signalGroup struct {
	pairID    int
	timestamp time.Time
	signals   []*models.Signal
}

// OpenFromSignals открывает позиции по сигналам, созданным за последние
// SignalLookbackWindow. Группы (pair_id, timestamp) обрабатываются
// от старых к новым; ошибка по сигналу не прерывает цикл.
func (m *Manager) OpenFromSignals(ctx context.Context) (*OpenResult, error) {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	start := time.Now()
	since := m.now().Add(-m.cfg.SignalLookbackWindow)

	signals, err := m.signals.ListSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list signals since %s: %w", since.UTC().Format(time.RFC3339), err)
	}

	res := &OpenResult{Signals: len(signals)}
	for _, g := range groupSignals(signals) {
		rank, err := m.rankFor(ctx, g.pairID)
		if err != nil {
			m.log.Warn("failed to resolve pair rank", utils.PairID(g.pairID), zap.Error(err))
			res.Failed += len(g.signals)
			continue
		}

		for _, sig := range g.signals {
			err := m.openSignal(ctx, sig, rank)
			switch {
			case err == nil:
				res.Opened++
			case errors.Is(err, models.ErrAdmissionRejected):
				res.Rejected++
			default:
				res.Failed++
			}
		}
	}

	res.Duration = time.Since(start)
	if res.Signals > 0 {
		m.log.Info("open cycle completed",
			zap.Int("signals", res.Signals),
			zap.Int("opened", res.Opened),
			zap.Int("rejected", res.Rejected),
			zap.Int("failed", res.Failed),
			zap.Float64("balance", m.account.Balance()),
			zap.Duration("duration", res.Duration))
	}
	if res.Opened > 0 && m.onOpened != nil {
		m.onOpened()
	}
	return res, nil
}

// groupSignals группирует сигналы по (pair_id, timestamp), от старых к новым
func groupSignals(signals []*models.Signal) []*signalGroup {
	index := make(map[string]*signalGroup)
	var groups []*signalGroup

	for _, sig := range signals {
		key := fmt.Sprintf("%d|%d", sig.PairID, sig.Timestamp.UnixMilli())
		g, ok := index[key]
		if !ok {
			g = &signalGroup{pairID: sig.PairID, timestamp: sig.Timestamp}
			index[key] = g
			groups = append(groups, g)
		}
		g.signals = append(g.signals, sig)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].timestamp.Before(groups[j].timestamp)
	})
	return groups
}

// rankFor возвращает ранг пары из последнего снимка ранжирования,
// а если пары там нет - ранг из прогона сканера
func (m *Manager) rankFor(ctx context.Context, pairID int) (int, error) {
	rank, err := m.ranks.RankForPair(ctx, pairID)
	if err == nil {
		return rank, nil
	}
	if !errors.Is(err, repository.ErrRankingNotFound) {
		return 0, err
	}

	pair, err := m.pairs.GetByID(ctx, pairID)
	if err != nil {
		return 0, err
	}
	return pair.Rank, nil
}

// openSignal проверяет допуск и открывает позицию по сигналу
func (m *Manager) openSignal(ctx context.Context, sig *models.Signal, rank int) error {
	log := m.log.With(
		utils.SignalID(sig.ID),
		utils.PairID(sig.PairID),
		utils.Symbol(sig.Symbol),
		utils.Side(sig.SignalType))

	capital, err := m.admit(ctx, sig, rank)
	if err != nil {
		if reason := rejectReason(err); reason != "" {
			AdmissionRejected.WithLabelValues(reason).Inc()
			log.Debug("signal rejected", utils.Reason(reason), zap.Error(err))
		} else {
			log.Warn("admission check failed", zap.Error(err))
		}
		return err
	}

	if err := m.account.Reserve(capital); err != nil {
		AdmissionRejected.WithLabelValues(rejectBalance).Inc()
		log.Info("signal rejected", utils.Reason(rejectBalance), zap.Error(err))
		return err
	}

	qty := capital / sig.EntryPrice
	order, err := m.executor.Execute(ctx, sig.Symbol, sig.SignalType, qty)
	if err != nil {
		m.account.Refund(capital)
		log.Warn("entry order failed", utils.Capital(capital), zap.Error(err))
		return err
	}

	p := &models.Position{
		PairID:        sig.PairID,
		SignalID:      sig.ID,
		Symbol:        sig.Symbol,
		Side:          sig.SignalType,
		EntryPrice:    order.AvgPrice,
		Quantity:      order.Quantity,
		Status:        models.PositionOpen,
		EntryTime:     m.now().UTC(),
		TakeProfit:    sig.TakeProfit,
		StopLoss:      sig.StopLoss,
		ZScoreAtEntry: sig.ZScore,
		OrderID:       order.OrderID,
	}
	// резерв выравнивается по фактическому заполнению
	m.account.Refund(capital - p.Capital())

	policy := m.persist
	policy.RetryIf = func(err error) bool { return !errors.Is(err, models.ErrDuplicateWrite) }
	if err := retry.Run(ctx, policy, func(ctx context.Context) error {
		return m.positions.Create(ctx, p)
	}); err != nil {
		m.account.Refund(p.Capital())
		log.Error("order filled but position not persisted",
			utils.OrderID(order.OrderID),
			utils.Price(order.AvgPrice),
			utils.Quantity(order.Quantity),
			zap.Error(err))
		return fmt.Errorf("persist position %s: %w", sig.Symbol, err)
	}

	PositionsOpened.WithLabelValues(p.Side).Inc()
	m.setOpenCount(int(m.openCount.Load()) + 1)

	log.Info("position opened",
		utils.PositionID(p.ID),
		utils.OrderID(p.OrderID),
		utils.Price(p.EntryPrice),
		utils.Quantity(p.Quantity),
		utils.Capital(p.Capital()),
		utils.ZScore(p.ZScoreAtEntry),
		zap.Int("rank", rank),
		zap.Float64("take_profit", p.TakeProfit),
		zap.Float64("stop_loss", p.StopLoss))
	return nil
}

// admit проверяет допуск сигнала и возвращает выделенный капитал
func (m *Manager) admit(ctx context.Context, sig *models.Signal, rank int) (float64, error) {
	capital := CapitalForRank(rank, m.cfg.Tiers, m.account.Size())
	if capital <= 0 {
		return 0, reject(rejectRank, "rank %d outside capital tiers", rank)
	}
	if sig.EntryPrice <= 0 {
		return 0, reject(rejectPriceLevel, "non-positive entry price %v", sig.EntryPrice)
	}

	executed, err := m.positions.ExistsForSignal(ctx, sig.ID)
	if err != nil {
		return 0, fmt.Errorf("check signal %d: %w", sig.ID, err)
	}
	if executed {
		return 0, reject(rejectExecuted, "signal %d already executed", sig.ID)
	}

	open, err := m.positions.HasOpenForSymbol(ctx, sig.Symbol)
	if err != nil {
		return 0, fmt.Errorf("check open position %s: %w", sig.Symbol, err)
	}
	if open {
		return 0, reject(rejectOpen, "position already open for %s", sig.Symbol)
	}

	if avail := m.available(ctx); capital > avail {
		return 0, reject(rejectBalance, "capital %.4f exceeds available balance %.4f", capital, avail)
	}
	return capital, nil
}
