package quant

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// minSpreadStd - ниже этого std остатков считается вырожденным (ошибка округления)
const minSpreadStd = 1e-12

// SpreadStats - состояние спреда пары в последней точке
type SpreadStats struct {
	Alpha  float64 // intercept регрессии logA на logB
	Beta   float64 // hedge ratio
	Spread float64 // последний остаток logA − (α + β·logB)
	Mean   float64 // скользящее среднее остатка
	Std    float64 // скользящее выборочное std остатка
	Z      float64
}

// HedgeRatio оценивает α и β регрессией a = α + β·b.
// β = cov(b, a)/var(b), α = mean(a) − β·mean(b)
func HedgeRatio(a, b []float64) (alpha, beta float64, err error) {
	if len(a) != len(b) {
		return 0, 0, ErrLengthMismatch
	}
	if len(a) < 2 {
		return 0, 0, ErrInsufficientData
	}
	if v := stat.Variance(b, nil); v <= 0 || !valid(v) {
		return 0, 0, fmt.Errorf("%w: zero variance of reference leg", ErrUndefined)
	}
	alpha, beta = stat.LinearRegression(b, a, nil, false)
	return alpha, beta, nil
}

// SpreadZScore считает z-score остатка лог-цен пары в последней точке.
//
// closesA и closesB должны быть выровнены по времени. Ошибка ErrUndefined
// возвращается при неположительном/NaN std окна, ErrInsufficientData -
// если истории меньше окна.
func SpreadZScore(closesA, closesB []float64, window int) (SpreadStats, error) {
	if len(closesA) != len(closesB) {
		return SpreadStats{}, ErrLengthMismatch
	}
	if window < 2 || len(closesA) < window {
		return SpreadStats{}, fmt.Errorf("%w: %d aligned candles for window %d", ErrInsufficientData, len(closesA), window)
	}
	for i := range closesA {
		if closesA[i] <= 0 || closesB[i] <= 0 {
			return SpreadStats{}, fmt.Errorf("%w: non-positive price", ErrUndefined)
		}
	}

	logA, logB := Log(closesA), Log(closesB)
	alpha, beta, err := HedgeRatio(logA, logB)
	if err != nil {
		return SpreadStats{}, err
	}

	resid := make([]float64, len(logA))
	for i := range logA {
		resid[i] = logA[i] - (alpha + beta*logB[i])
	}

	tail := resid[len(resid)-window:]
	mean := Mean(tail)
	std := StdDev(tail)
	if !valid(std) || std <= minSpreadStd {
		return SpreadStats{}, fmt.Errorf("%w: rolling std %v", ErrUndefined, std)
	}

	last := resid[len(resid)-1]
	z := (last - mean) / std
	if !valid(z) {
		return SpreadStats{}, fmt.Errorf("%w: z-score", ErrUndefined)
	}

	return SpreadStats{
		Alpha:  alpha,
		Beta:   beta,
		Spread: last,
		Mean:   mean,
		Std:    std,
		Z:      z,
	}, nil
}

// Momentum - (close[-1] − close[-1-k]) / close[-1-k]; NaN если истории мало
func Momentum(closes []float64, k int) float64 {
	n := len(closes)
	if k < 1 || n < k+1 || closes[n-1-k] == 0 {
		return math.NaN()
	}
	return (closes[n-1] - closes[n-1-k]) / closes[n-1-k]
}
