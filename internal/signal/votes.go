package signal

import (
	"fmt"
	"math"

	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/pkg/quant"
)

// ============================================================
// Слои подтверждения
// ============================================================
//
// Каждый слой голосует BUY, SELL или воздерживается по истории
// выбранной ноги. Detail попадает в Signal.Details.

// Параметры индикаторов
const (
	rsiWindow         = 14
	rsiLookback       = 9 // сравнение с точкой на 9 свечей раньше
	rsiOversold       = 30
	rsiOverbought     = 70
	macdFast          = 12
	macdSlow          = 26
	macdSignal        = 9
	bollingerWindow   = 20
	bollingerK        = 2
	trendWindow       = 24
	trendMinSlope     = 0.001
	trendMaxDeviation = 1.5 // в единицах std остатков
)

// Vote - голос одного слоя
type Vote struct {
	Side   string // BUY, SELL или пусто
	Detail string
}

// Cast сообщает, что слой проголосовал
func (v Vote) Cast() bool {
	return v.Side != ""
}

func buy(detail string) Vote  { return Vote{Side: models.SignalBuy, Detail: detail} }
func sell(detail string) Vote { return Vote{Side: models.SignalSell, Detail: detail} }

// RSIVote - дивергенция/тренд RSI, затем зоны перекупленности
func RSIVote(closes []float64) Vote {
	n := len(closes)
	if n <= rsiLookback {
		return Vote{}
	}
	rsi := quant.RSI(closes, rsiWindow)
	price, pricePrev := closes[n-1], closes[n-1-rsiLookback]
	cur, prev := rsi[n-1], rsi[n-1-rsiLookback]

	switch {
	case price < pricePrev && cur > prev:
		return buy("RSI_BULLISH_DIVERGENCE_BUY")
	case price > pricePrev && cur < prev:
		return sell("RSI_BEARISH_DIVERGENCE_SELL")
	case price > pricePrev && cur > prev:
		return buy("RSI_TREND_UP_BUY")
	case price < pricePrev && cur < prev:
		return sell("RSI_TREND_DOWN_SELL")
	case cur < rsiOversold:
		return buy(fmt.Sprintf("RSI_OVERSOLD_%.1f_BUY", cur))
	case cur > rsiOverbought:
		return sell(fmt.Sprintf("RSI_OVERBOUGHT_%.1f_SELL", cur))
	}
	return Vote{}
}

// MACDVote - пересечение сигнальной линии или положение относительно неё
func MACDVote(closes []float64) Vote {
	n := len(closes)
	if n < 2 {
		return Vote{}
	}
	macd, sig := quant.MACD(closes, macdFast, macdSlow, macdSignal)
	cur, curSig := macd[n-1], sig[n-1]
	prev, prevSig := macd[n-2], sig[n-2]

	switch {
	case cur > curSig && prev <= prevSig:
		return buy("MACD_BULLISH_CROSSOVER_BUY")
	case cur < curSig && prev >= prevSig:
		return sell("MACD_BEARISH_CROSSOVER_SELL")
	case cur > curSig:
		return buy("MACD_BULLISH_MOMENTUM_BUY")
	case cur < curSig:
		return sell("MACD_BEARISH_MOMENTUM_SELL")
	}
	return Vote{}
}

// BollingerVote - пробой полос или сторона средней линии
func BollingerVote(closes []float64) Vote {
	bands, ok := quant.Bollinger(closes, bollingerWindow, bollingerK)
	if !ok {
		return Vote{}
	}
	price := closes[len(closes)-1]

	switch {
	case price > bands.Upper:
		return buy("BOLLINGER_BREAKOUT_UP_BUY")
	case price < bands.Lower:
		return sell("BOLLINGER_BREAKOUT_DOWN_SELL")
	case price > bands.Middle:
		return buy("BOLLINGER_ABOVE_MIDDLE_BUY")
	case price < bands.Middle:
		return sell("BOLLINGER_BELOW_MIDDLE_SELL")
	}
	return Vote{}
}

// TrendVote - наклон линейной регрессии последних 24 свечей.
// Слой молчит, если цена ушла от линии тренда дальше 1.5 std остатков.
func TrendVote(closes []float64) Vote {
	tr, ok := quant.LinearTrend(closes, trendWindow)
	if !ok || math.IsNaN(tr.Slope) {
		return Vote{}
	}
	if tr.Distance > trendMaxDeviation*tr.ResidualStd {
		return Vote{}
	}

	switch {
	case tr.Slope > trendMinSlope:
		return buy(fmt.Sprintf("LINEAR_TREND_UP_%.6f_BUY", tr.Slope))
	case tr.Slope < -trendMinSlope:
		return sell(fmt.Sprintf("LINEAR_TREND_DOWN_%.6f_SELL", tr.Slope))
	}
	return Vote{}
}

// Ballot - итог голосования четырёх слоёв
type Ballot struct {
	RSI       Vote
	MACD      Vote
	Bollinger Vote
	Trend     Vote
}

// CollectVotes опрашивает все слои
func CollectVotes(closes []float64) Ballot {
	return Ballot{
		RSI:       RSIVote(closes),
		MACD:      MACDVote(closes),
		Bollinger: BollingerVote(closes),
		Trend:     TrendVote(closes),
	}
}

func (b Ballot) votes() []Vote {
	return []Vote{b.RSI, b.MACD, b.Bollinger, b.Trend}
}

// Count возвращает число голосов за BUY и SELL
func (b Ballot) Count() (buys, sells int) {
	for _, v := range b.votes() {
		switch v.Side {
		case models.SignalBuy:
			buys++
		case models.SignalSell:
			sells++
		}
	}
	return buys, sells
}

// Decide возвращает сторону, набравшую не меньше min голосов.
// BUY проверяется первым.
func (b Ballot) Decide(min int) string {
	buys, sells := b.Count()
	switch {
	case buys >= min:
		return models.SignalBuy
	case sells >= min:
		return models.SignalSell
	}
	return ""
}

// Details - описания поданных голосов в порядке слоёв
func (b Ballot) Details() []string {
	var out []string
	for _, v := range b.votes() {
		if v.Cast() {
			out = append(out, v.Detail)
		}
	}
	return out
}
