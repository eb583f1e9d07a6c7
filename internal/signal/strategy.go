package signal

import (
	"fmt"
	"math"
	"strings"

	"github.com/thinh267/stat-arb/internal/config"
	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/pkg/quant"
	"github.com/thinh267/stat-arb/pkg/utils"
)

// Strategy - политика принятия решения по состоянию пары.
// Возвращает ноль или больше сигналов без pair_id.
type Strategy interface {
	Name() string
	Decide(st *PairState) []*models.Signal
}

// NewStrategy создаёт стратегию из конфигурации
func NewStrategy(cfg config.SignalConfig) (Strategy, error) {
	levels := targets{tp: cfg.TakeProfitPct, sl: cfg.StopLossPct}

	switch strings.ToLower(cfg.Strategy) {
	case config.StrategyConfirmation:
		return &ConfirmationStrategy{
			Threshold:        cfg.ZScoreThreshold,
			MinConfirmations: cfg.MinConfirmations,
			targets:          levels,
		}, nil
	case config.StrategyBollinger:
		return &BollingerStrategy{
			Threshold: cfg.BollingerZThreshold,
			targets:   levels,
		}, nil
	case config.StrategyDualLeg:
		return &DualLegStrategy{
			Threshold: cfg.ZScoreThreshold,
			targets:   levels,
		}, nil
	default:
		return nil, fmt.Errorf("unknown signal strategy %q", cfg.Strategy)
	}
}

// targets - проценты TP/SL
type targets struct {
	tp float64
	sl float64
}

// newSignal заполняет общие поля сигнала для ноги leg
func (t targets) newSignal(st *PairState, leg Leg, side, strategy string) *models.Signal {
	last := leg.LastClose()
	tp, sl := utils.TargetLevels(side, last, t.tp, t.sl)
	return &models.Signal{
		Pair1:      st.Pair1,
		Pair2:      st.Pair2,
		Symbol:     leg.Symbol,
		SignalType: side,
		ZScore:     st.Spread.Z,
		Spread:     st.Spread.Spread,
		Timestamp:  st.Timestamp,
		EntryPrice: utils.RoundPrice(last, utils.PriceDecimals),
		TakeProfit: tp,
		StopLoss:   sl,
		Strategy:   strategy,
	}
}

// ============================================================
// confirmation: |z| ≥ 2.0 и не меньше 3 из 4 голосов
// ============================================================

// ConfirmationStrategy торгует ногу с большим momentum в направлении,
// за которое проголосовало большинство слоёв подтверждения
type ConfirmationStrategy struct {
	Threshold        float64
	MinConfirmations int
	targets
}

func (s *ConfirmationStrategy) Name() string { return config.StrategyConfirmation }

func (s *ConfirmationStrategy) Decide(st *PairState) []*models.Signal {
	if math.Abs(st.Spread.Z) < s.Threshold {
		return nil
	}

	leg := st.SelectedLeg()
	ballot := CollectVotes(leg.Closes())
	side := ballot.Decide(s.MinConfirmations)
	if side == "" {
		return nil
	}

	buys, sells := ballot.Count()
	sig := s.newSignal(st, leg, side, s.Name())
	sig.RSIConfirmed = ballot.RSI.Cast()
	sig.MACDConfirmed = ballot.MACD.Cast()
	sig.BollingerConfirmed = ballot.Bollinger.Cast()
	sig.LinearConfirmed = ballot.Trend.Cast()
	sig.Confirmations = buys + sells
	sig.Details = strings.Join(ballot.Details(), "; ")
	return []*models.Signal{sig}
}

// ============================================================
// bollinger: |z| ≥ 2.5 и выход цены за полосу
// ============================================================

// BollingerStrategy покупает ногу под нижней полосой и продаёт над верхней
type BollingerStrategy struct {
	Threshold float64
	targets
}

func (s *BollingerStrategy) Name() string { return config.StrategyBollinger }

func (s *BollingerStrategy) Decide(st *PairState) []*models.Signal {
	if math.Abs(st.Spread.Z) < s.Threshold {
		return nil
	}

	leg := st.SelectedLeg()
	bands, ok := quant.Bollinger(leg.Closes(), bollingerWindow, bollingerK)
	if !ok {
		return nil
	}

	price := leg.LastClose()
	var side, detail string
	switch {
	case price < bands.Lower:
		side, detail = models.SignalBuy, "BOLLINGER_BELOW_LOWER_BUY"
	case price > bands.Upper:
		side, detail = models.SignalSell, "BOLLINGER_ABOVE_UPPER_SELL"
	default:
		return nil
	}

	sig := s.newSignal(st, leg, side, s.Name())
	sig.BollingerConfirmed = true
	sig.Confirmations = 1
	sig.Details = detail
	return []*models.Signal{sig}
}

// ============================================================
// dual_leg: |z| ≥ 2.0, сигнал на обе ноги
// ============================================================

// DualLegStrategy продаёт переоценённую ногу и покупает недооценённую:
// z > 0 - SELL pair1 и BUY pair2, z < 0 - наоборот
type DualLegStrategy struct {
	Threshold float64
	targets
}

func (s *DualLegStrategy) Name() string { return config.StrategyDualLeg }

func (s *DualLegStrategy) Decide(st *PairState) []*models.Signal {
	z := st.Spread.Z
	if math.Abs(z) < s.Threshold {
		return nil
	}

	a, b := st.Legs()
	sideA := models.SignalBuy
	if z > 0 {
		sideA = models.SignalSell
	}
	sideB := models.OppositeSide(sideA)

	detail := fmt.Sprintf("ZSCORE_%.2f_DUAL_LEG", z)
	out := make([]*models.Signal, 0, 2)
	for _, leg := range []struct {
		leg  Leg
		side string
	}{{a, sideA}, {b, sideB}} {
		sig := s.newSignal(st, leg.leg, leg.side, s.Name())
		sig.Details = detail
		out = append(out, sig)
	}
	return out
}
