// Package signal - генерация торговых сигналов по z-score спреда пары
// с подтверждением техническими индикаторами.
package signal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/thinh267/stat-arb/internal/config"
	"github.com/thinh267/stat-arb/internal/exchange"
	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/pkg/quant"
)

// Model - модель спреда пары в пространстве лог-цен.
//
// По выровненной по времени истории оценивается регрессия
// logA = α + β·logB, остаток сравнивается со скользящим средним
// и выборочным std последних Window точек:
//
//	z = (resid − mean(resid[-W:])) / std(resid[-W:])
//
// Одни и те же свечи и окно всегда дают один и тот же z.
type Model struct {
	market         exchange.MarketData
	timeframe      string
	lookback       int
	window         int
	momentumPeriod int
}

// NewModel создаёт модель спреда
func NewModel(cfg config.SignalConfig, market exchange.MarketData) *Model {
	return &Model{
		market:         market,
		timeframe:      cfg.Timeframe,
		lookback:       cfg.Lookback,
		window:         cfg.ZScoreWindow,
		momentumPeriod: cfg.MomentumPeriod,
	}
}

// WithSource возвращает копию модели с другим источником свечей
func (m *Model) WithSource(market exchange.MarketData) *Model {
	cp := *m
	cp.market = market
	return &cp
}

// PairState - состояние пары в последней общей свече
type PairState struct {
	Pair1     string
	Pair2     string
	CandlesA  []models.Candle
	CandlesB  []models.Candle
	Spread    quant.SpreadStats
	Timestamp time.Time // время открытия последней общей свечи
	MomentumA float64
	MomentumB float64
}

// Leg - одна нога пары вместе с её историей
type Leg struct {
	Symbol  string
	Candles []models.Candle
}

// Closes возвращает закрытия ноги
func (l Leg) Closes() []float64 {
	return models.Closes(l.Candles)
}

// LastClose возвращает последнее закрытие ноги
func (l Leg) LastClose() float64 {
	return l.Candles[len(l.Candles)-1].Close
}

// SelectedLeg возвращает ногу с большим |momentum|.
// При равенстве или неопределённом momentum выбирается вторая нога.
func (s *PairState) SelectedLeg() Leg {
	if math.Abs(s.MomentumA) > math.Abs(s.MomentumB) {
		return Leg{Symbol: s.Pair1, Candles: s.CandlesA}
	}
	return Leg{Symbol: s.Pair2, Candles: s.CandlesB}
}

// Legs возвращает обе ноги в порядке пары
func (s *PairState) Legs() (Leg, Leg) {
	return Leg{Symbol: s.Pair1, Candles: s.CandlesA}, Leg{Symbol: s.Pair2, Candles: s.CandlesB}
}

// Evaluate загружает свечи обеих ног и считает z-score спреда
func (m *Model) Evaluate(ctx context.Context, pair1, pair2 string) (*PairState, error) {
	a, err := m.market.Candles(ctx, pair1, m.timeframe, m.lookback)
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", pair1, err)
	}
	b, err := m.market.Candles(ctx, pair2, m.timeframe, m.lookback)
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", pair2, err)
	}
	return m.FromCandles(pair1, pair2, a, b)
}

// FromCandles считает состояние пары по уже загруженным свечам
func (m *Model) FromCandles(pair1, pair2 string, a, b []models.Candle) (*PairState, error) {
	closesA, closesB, times := models.AlignCandles(a, b)
	if len(closesA) < m.window {
		return nil, fmt.Errorf("%w: %d aligned candles for window %d", models.ErrDataQuality, len(closesA), m.window)
	}

	stats, err := quant.SpreadZScore(closesA, closesB, m.window)
	if err != nil {
		return nil, classifyQuant(err)
	}

	return &PairState{
		Pair1:     pair1,
		Pair2:     pair2,
		CandlesA:  a,
		CandlesB:  b,
		Spread:    stats,
		Timestamp: times[len(times)-1],
		MomentumA: quant.Momentum(models.Closes(a), m.momentumPeriod),
		MomentumB: quant.Momentum(models.Closes(b), m.momentumPeriod),
	}, nil
}

// ZScore возвращает текущий z-score пары
func (m *Model) ZScore(ctx context.Context, pair1, pair2 string) (float64, error) {
	st, err := m.Evaluate(ctx, pair1, pair2)
	if err != nil {
		return 0, err
	}
	return st.Spread.Z, nil
}

// classifyQuant переводит ошибки расчёта в доменные классы
func classifyQuant(err error) error {
	switch {
	case errors.Is(err, quant.ErrInsufficientData):
		return fmt.Errorf("%w: %v", models.ErrDataQuality, err)
	case errors.Is(err, quant.ErrUndefined), errors.Is(err, quant.ErrLengthMismatch):
		return fmt.Errorf("%w: %v", models.ErrStatisticalUndefined, err)
	default:
		return err
	}
}
