package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/internal/repository"
	"github.com/thinh267/stat-arb/pkg/retry"
	"github.com/thinh267/stat-arb/pkg/utils"
)

// MonitorResult - итог прохода монитора
type MonitorResult struct {
	Checked  int
	Closed   int
	Open     int // осталось открытых
	Errors   int
	Duration time.Duration
}

// Monitor выполняет один проход мониторинга открытых позиций.
//
// Сначала каждая нога проверяется на TP/SL по текущей цене, затем для
// каждой пары пересчитывается z-score: при возврате к среднему
// закрываются все оставшиеся ноги пары. Ошибки цены, ордера или записи
// логируются, позиция остаётся OPEN до следующего прохода.
func (m *Manager) Monitor(ctx context.Context) (*MonitorResult, error) {
	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()

	start := time.Now()
	defer func() { MonitorTickDuration.Observe(time.Since(start).Seconds()) }()

	positions, err := m.positions.ListOpen(ctx)
	if err != nil {
		MonitorErrors.WithLabelValues("list").Inc()
		return nil, fmt.Errorf("list open positions: %w", err)
	}

	res := &MonitorResult{Checked: len(positions)}
	var remaining []*models.Position

	// ============ TP/SL по ноге ============
	for _, p := range positions {
		// выход уже исполнен, дописываем только закрытие
		if pe := m.pendingFor(p); pe != nil {
			closed, err := m.completeExit(ctx, p, pe)
			if err != nil {
				res.Errors++
			}
			if closed {
				res.Closed++
			}
			continue
		}

		price, err := m.prices.Price(ctx, p.Symbol)
		if err != nil {
			MonitorErrors.WithLabelValues("price").Inc()
			m.positionLog(p).Warn("failed to fetch price", zap.Error(err))
			res.Errors++
			remaining = append(remaining, p)
			continue
		}

		reason := exitReason(p, price)
		if reason == "" {
			remaining = append(remaining, p)
			continue
		}

		// нога с неудачным закрытием ждёт следующего прохода
		closed, err := m.closePosition(ctx, p, reason)
		if err != nil {
			res.Errors++
		}
		if closed {
			res.Closed++
		}
	}

	// ============ Возврат z-score по паре ============
	for _, legs := range groupByPair(remaining) {
		closed, errs := m.checkReversion(ctx, legs)
		res.Closed += closed
		res.Errors += errs
	}

	res.Open = res.Checked - res.Closed
	m.setOpenCount(res.Open)
	res.Duration = time.Since(start)

	if res.Checked > 0 {
		m.log.Debug("monitor pass completed",
			zap.Int("checked", res.Checked),
			zap.Int("closed", res.Closed),
			zap.Int("open", res.Open),
			zap.Int("errors", res.Errors),
			zap.Duration("duration", res.Duration))
	}
	return res, nil
}

// exitReason возвращает причину закрытия ноги по TP/SL или ""
func exitReason(p *models.Position, price float64) string {
	switch p.Side {
	case models.SignalBuy:
		if p.TakeProfit > 0 && price >= p.TakeProfit {
			return models.ReasonTakeProfit
		}
		if p.StopLoss > 0 && price <= p.StopLoss {
			return models.ReasonStopLoss
		}
	case models.SignalSell:
		if p.TakeProfit > 0 && price <= p.TakeProfit {
			return models.ReasonTakeProfit
		}
		if p.StopLoss > 0 && price >= p.StopLoss {
			return models.ReasonStopLoss
		}
	}
	return ""
}

// Reverted сообщает, вернулся ли z-score к среднему относительно входа:
// вход выше нуля и текущий z < exit, либо вход ниже нуля и z > -exit
func Reverted(entryZ, currentZ, exit float64) bool {
	switch {
	case entryZ > 0:
		return currentZ < exit
	case entryZ < 0:
		return currentZ > -exit
	default:
		return false
	}
}

// groupByPair группирует ноги по pair_id в порядке первого появления
func groupByPair(positions []*models.Position) [][]*models.Position {
	index := make(map[int]int)
	var groups [][]*models.Position
	for _, p := range positions {
		i, ok := index[p.PairID]
		if !ok {
			i = len(groups)
			index[p.PairID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], p)
	}
	return groups
}

// checkReversion закрывает ноги пары при возврате z-score к среднему.
// Для двух и более ног порог считается от z-score входа первой ноги,
// для одиночной ноги - от её собственного.
func (m *Manager) checkReversion(ctx context.Context, legs []*models.Position) (closed, errs int) {
	first := legs[0]
	log := m.log.With(utils.PairID(first.PairID))

	pair, err := m.pairs.GetByID(ctx, first.PairID)
	if err != nil {
		MonitorErrors.WithLabelValues("pair").Inc()
		log.Warn("failed to load pair", zap.Error(err))
		return 0, 1
	}

	z, err := m.zscores.ZScore(ctx, pair.Pair1, pair.Pair2)
	if err != nil {
		MonitorErrors.WithLabelValues("zscore").Inc()
		log.Warn("failed to compute current z-score",
			zap.String("pair", pair.Pair1+"/"+pair.Pair2),
			zap.Error(err))
		return 0, 1
	}

	reason := models.ReasonMeanReversion
	if len(legs) == 1 {
		reason = models.ReasonMeanReversionOneLeg
	}
	if !Reverted(first.ZScoreAtEntry, z, m.cfg.ExitZScore) {
		return 0, 0
	}

	log.Info("z-score reverted",
		zap.Float64("entry_z", first.ZScoreAtEntry),
		utils.ZScore(z),
		zap.Int("legs", len(legs)))

	for _, p := range legs {
		ok, err := m.closePosition(ctx, p, reason)
		if err != nil {
			errs++
		}
		if ok {
			closed++
		}
	}
	return closed, errs
}

// pendingExit - исполненный выходной ордер, закрытие которого ещё не записано
type pendingExit struct {
	orderID  string
	price    float64
	pnl      float64
	reason   string
	exitTime time.Time
}

// pendingFor возвращает незаписанный выход позиции из памяти или из
// отметки RecordExit в хранилище (после рестарта)
func (m *Manager) pendingFor(p *models.Position) *pendingExit {
	if pe, ok := m.pending[p.ID]; ok {
		return pe
	}
	if !p.ExitFilled() {
		return nil
	}

	reason := p.Reason
	if !IsExitReason(reason) {
		reason = models.ReasonMeanReversion
	}
	exitTime := m.now().UTC()
	if p.ExitTime != nil {
		exitTime = *p.ExitTime
	}
	pe := &pendingExit{
		orderID:  p.ExitOrderID,
		price:    *p.ExitPrice,
		pnl:      utils.CalculatePNL(p.Side, p.EntryPrice, *p.ExitPrice, p.Quantity),
		reason:   reason,
		exitTime: exitTime,
	}
	m.pending[p.ID] = pe
	return pe
}

// closePosition закрывает ногу встречным ордером и переводит её в CLOSED.
// Возвращает true, если закрытие выполнил этот вызов. Встречный ордер
// отправляется не более одного раза: после исполнения выход запоминается,
// и при ошибке записи следующие проходы повторяют только запись.
func (m *Manager) closePosition(ctx context.Context, p *models.Position, reason string) (bool, error) {
	log := m.positionLog(p)

	if !CanTransition(p.Status, models.PositionClosed) {
		log.Debug("close skipped", zap.String("status", StatusInfo(p.Status)))
		return false, nil
	}
	if pe := m.pendingFor(p); pe != nil {
		return m.completeExit(ctx, p, pe)
	}
	if !IsExitReason(reason) {
		return false, fmt.Errorf("unknown exit reason %q", reason)
	}

	order, err := m.executor.Exit(ctx, p)
	if err != nil {
		MonitorErrors.WithLabelValues("order").Inc()
		log.Warn("exit order failed, retrying next tick", utils.Reason(reason), zap.Error(err))
		return false, err
	}

	pe := &pendingExit{
		orderID:  order.OrderID,
		price:    order.AvgPrice,
		pnl:      utils.CalculatePNL(p.Side, p.EntryPrice, order.AvgPrice, p.Quantity),
		reason:   reason,
		exitTime: m.now().UTC(),
	}
	m.pending[p.ID] = pe

	if err := m.positions.RecordExit(ctx, p.ID, pe.orderID, pe.price, reason, pe.exitTime); err != nil &&
		!errors.Is(err, repository.ErrPositionClosed) {
		MonitorErrors.WithLabelValues("record").Inc()
		log.Warn("failed to record exit order", utils.OrderID(pe.orderID), zap.Error(err))
	}

	return m.completeExit(ctx, p, pe)
}

// completeExit записывает закрытие по исполненному выходу и рассчитывает счёт
func (m *Manager) completeExit(ctx context.Context, p *models.Position, pe *pendingExit) (bool, error) {
	log := m.positionLog(p)

	policy := m.persist
	policy.RetryIf = func(err error) bool { return !errors.Is(err, repository.ErrPositionClosed) }
	err := retry.Run(ctx, policy, func(ctx context.Context) error {
		return m.positions.Close(ctx, p.ID, pe.price, pe.pnl, pe.reason, pe.exitTime)
	})
	switch {
	case errors.Is(err, repository.ErrPositionClosed):
		delete(m.pending, p.ID)
		p.Status = models.PositionClosed
		log.Error("position was closed concurrently, exit order is unmatched",
			utils.OrderID(pe.orderID),
			utils.Price(pe.price),
			utils.Quantity(p.Quantity))
		return false, nil
	case err != nil:
		MonitorErrors.WithLabelValues("persist").Inc()
		log.Error("exit order filled but close not persisted, retrying write next tick",
			utils.OrderID(pe.orderID),
			utils.Price(pe.price),
			utils.PNL(pe.pnl),
			zap.Error(err))
		return false, err
	}

	delete(m.pending, p.ID)
	exitPrice, pnl, exitTime := pe.price, pe.pnl, pe.exitTime
	p.Status = models.PositionClosed
	p.ExitPrice = &exitPrice
	p.PNL = &pnl
	p.ExitTime = &exitTime
	p.Reason = pe.reason
	p.ExitOrderID = pe.orderID

	m.account.Settle(p.Capital(), pnl)
	RealizedPNL.Add(pnl)
	PositionsClosed.WithLabelValues(pe.reason).Inc()

	log.Info("position closed",
		utils.Reason(pe.reason),
		utils.OrderID(pe.orderID),
		zap.Float64("entry_price", p.EntryPrice),
		utils.Price(exitPrice),
		utils.Quantity(p.Quantity),
		utils.PNL(pnl),
		zap.Float64("balance", m.account.Balance()))
	return true, nil
}
