package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// math.go - торговая арифметика
//
// Назначение:
// Чистые функции для расчёта уровней TP/SL, PnL и округления объёмов.
// Округление цен выполняется через decimal, чтобы 100.0 * 1.02
// давало ровно 102.0000, а не 102.00000000000001.
//
// Функции:
// - RoundPrice: округление цены до N знаков (half away from zero)
// - RoundToLotSize: округление объёма вниз до шага биржи
// - TargetLevels: TP/SL от цены входа для стороны BUY/SELL
// - CalculatePNL: PnL позиции по стороне
// - PercentChange: относительное изменение цены

// PriceDecimals - точность хранения цен входа, TP и SL
const PriceDecimals = 4

// RoundPrice округляет значение до places знаков после запятой
//
// Примеры:
//   - RoundPrice(102.00000000000001, 4) = 102.0
//   - RoundPrice(0.123456, 4) = 0.1235
func RoundPrice(value float64, places int32) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	f, _ := decimal.NewFromFloat(value).Round(places).Float64()
	return f
}

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Округление вниз гарантирует, что ордер не превысит выделенный капитал.
// Если lotSize <= 0, возвращает исходное значение.
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(100.5, 1.0) = 100.0
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	step := decimal.NewFromFloat(lotSize)
	f, _ := v.Div(step).Floor().Mul(step).Float64()
	return f
}

// TargetLevels возвращает (tp, sl) для цены входа и процента.
//
// BUY:  tp = entry × (1 + pct), sl = entry × (1 − pct)
// SELL: tp = entry × (1 − pct), sl = entry × (1 + pct)
// Оба значения округлены до PriceDecimals.
func TargetLevels(side string, entry, takeProfitPct, stopLossPct float64) (tp, sl float64) {
	e := decimal.NewFromFloat(entry)
	one := decimal.NewFromInt(1)
	up := func(pct float64) decimal.Decimal { return e.Mul(one.Add(decimal.NewFromFloat(pct))) }
	down := func(pct float64) decimal.Decimal { return e.Mul(one.Sub(decimal.NewFromFloat(pct))) }

	var tpD, slD decimal.Decimal
	if side == "SELL" {
		tpD, slD = down(takeProfitPct), up(stopLossPct)
	} else {
		tpD, slD = up(takeProfitPct), down(stopLossPct)
	}
	tp, _ = tpD.Round(PriceDecimals).Float64()
	sl, _ = slD.Round(PriceDecimals).Float64()
	return tp, sl
}

// CalculatePNL расчитывает PnL позиции.
//
// Формулы:
//   - BUY  PNL = (exit − entry) × qty
//   - SELL PNL = (entry − exit) × qty
func CalculatePNL(side string, entryPrice, exitPrice, quantity float64) float64 {
	if quantity <= 0 {
		return 0
	}
	switch side {
	case "BUY":
		return (exitPrice - entryPrice) * quantity
	case "SELL":
		return (entryPrice - exitPrice) * quantity
	default:
		return 0
	}
}

// PercentChange возвращает (to − from) / from, 0 при from == 0
func PercentChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from
}
