// Package quant содержит чистые статистические функции для поиска пар,
// расчёта спреда и технических индикаторов. Пакет не знает о бирже и БД.
package quant

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Ошибки расчёта
var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrUndefined        = errors.New("statistic undefined")
	ErrLengthMismatch   = errors.New("series length mismatch")
)

// valid сообщает, что число конечно
func valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// HasNaN проверяет наличие NaN/Inf в ряду
func HasNaN(x []float64) bool {
	for _, v := range x {
		if !valid(v) {
			return true
		}
	}
	return false
}

// Mean - среднее, NaN для пустого ряда
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// StdDev - выборочное стандартное отклонение (ddof=1), NaN при len < 2
func StdDev(x []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.StdDev(x, nil)
}

// PopStdDev - стандартное отклонение генеральной совокупности (ddof=0)
func PopStdDev(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	_, variance := stat.PopMeanVariance(x, nil)
	return math.Sqrt(variance)
}

// Median - медиана (среднее двух центральных при чётной длине)
func Median(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}

// UniqueCount - количество различных значений
func UniqueCount(x []float64) int {
	seen := make(map[float64]struct{}, len(x))
	for _, v := range x {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// Pearson - корреляция Пирсона. NaN, если у одного из рядов нулевая дисперсия
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return math.NaN()
	}
	if StdDev(x) == 0 || StdDev(y) == 0 {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// RollingCorrelationMean - среднее скользящей корреляции по окну window.
// Окна с неопределённой корреляцией пропускаются; NaN, если определённых нет.
func RollingCorrelationMean(x, y []float64, window int) float64 {
	if len(x) != len(y) || window < 2 || len(x) < window {
		return math.NaN()
	}

	var sum float64
	var n int
	for end := window; end <= len(x); end++ {
		c := Pearson(x[end-window:end], y[end-window:end])
		if valid(c) {
			sum += c
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// PctChange - относительные изменения: out[i] = x[i+1]/x[i] - 1
func PctChange(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i]/x[i-1] - 1
	}
	return out
}

// Volatility - std доходностей × sqrt(periods). Для часовых свечей periods=24
func Volatility(closes []float64, periods float64) float64 {
	return StdDev(PctChange(closes)) * math.Sqrt(periods)
}

// Log возвращает натуральный логарифм каждого элемента
func Log(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Log(v)
	}
	return out
}
