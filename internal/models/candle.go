package models

import "time"

// Candle - одна свеча OHLCV
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"` // в базовом активе
	CloseTime time.Time `json:"close_time"`
}

// Closes возвращает ряд цен закрытия
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes возвращает ряд объёмов
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// AlignCandles выравнивает два ряда по времени открытия (inner join).
// Возвращает закрытия обеих ног и время открытия общих свечей в порядке
// возрастания.
func AlignCandles(a, b []Candle) (closesA, closesB []float64, times []time.Time) {
	idx := make(map[int64]float64, len(b))
	for _, c := range b {
		idx[c.OpenTime.UnixMilli()] = c.Close
	}

	seen := make(map[int64]struct{}, len(a))
	for _, c := range a {
		key := c.OpenTime.UnixMilli()
		closeB, ok := idx[key]
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		closesA = append(closesA, c.Close)
		closesB = append(closesB, closeB)
		times = append(times, c.OpenTime)
	}
	return closesA, closesB, times
}
