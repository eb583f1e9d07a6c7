package quant

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ============================================================
// Технические индикаторы для подтверждения сигнала
// ============================================================

// RSI - ряд RSI(window) с простым скользящим средним приростов и потерь.
// Первые window значений равны NaN. Нулевые потери дают 100, нулевые
// приросты и потери одновременно - NaN.
func RSI(closes []float64, window int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if window < 1 || len(closes) <= window {
		return out
	}

	for end := window; end < len(closes); end++ {
		var gain, loss float64
		for i := end - window + 1; i <= end; i++ {
			d := closes[i] - closes[i-1]
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
		}
		gain /= float64(window)
		loss /= float64(window)

		switch {
		case loss == 0 && gain == 0:
			out[end] = math.NaN()
		case loss == 0:
			out[end] = 100
		default:
			out[end] = 100 - 100/(1+gain/loss)
		}
	}
	return out
}

// EMA - экспоненциальное среднее со span и поправкой на начало ряда
// (взвешенное среднее всех наблюдений с весами (1-a)^i, a = 2/(span+1))
func EMA(x []float64, span int) []float64 {
	out := make([]float64, len(x))
	if span < 1 {
		span = 1
	}
	decay := 1 - 2/(float64(span)+1)

	var num, den float64
	for i, v := range x {
		num = v + decay*num
		den = 1 + decay*den
		out[i] = num / den
	}
	return out
}

// MACD возвращает линию MACD и сигнальную линию
func MACD(closes []float64, fast, slow, signal int) (macd, signalLine []float64) {
	ef, es := EMA(closes, fast), EMA(closes, slow)
	macd = make([]float64, len(closes))
	for i := range closes {
		macd[i] = ef[i] - es[i]
	}
	return macd, EMA(macd, signal)
}

// Bands - полосы Боллинджера в последней точке
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger считает полосы по последним window закрытиям (выборочное std)
func Bollinger(closes []float64, window int, k float64) (Bands, bool) {
	if window < 2 || len(closes) < window {
		return Bands{}, false
	}
	tail := closes[len(closes)-window:]
	mid := Mean(tail)
	std := StdDev(tail)
	if !valid(std) {
		return Bands{}, false
	}
	return Bands{Upper: mid + k*std, Middle: mid, Lower: mid - k*std}, true
}

// Trend - линейная регрессия последних закрытий по индексу свечи
type Trend struct {
	Slope       float64
	Distance    float64 // |последняя цена − значение линии тренда в последней точке|
	ResidualStd float64 // std остатков (ddof=0)
}

// LinearTrend подгоняет прямую к последним window закрытиям
func LinearTrend(closes []float64, window int) (Trend, bool) {
	if window < 2 || len(closes) < window {
		return Trend{}, false
	}
	ys := closes[len(closes)-window:]
	xs := make([]float64, window)
	for i := range xs {
		xs[i] = float64(i)
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)

	resid := make([]float64, window)
	for i := range ys {
		resid[i] = ys[i] - (alpha + beta*xs[i])
	}

	return Trend{
		Slope:       beta,
		Distance:    math.Abs(resid[window-1]),
		ResidualStd: PopStdDev(resid),
	}, true
}
