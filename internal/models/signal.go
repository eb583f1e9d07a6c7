package models

import (
	"math"
	"time"
)

// Типы сигналов и стороны ордера
const (
	SignalBuy  = "BUY"
	SignalSell = "SELL"
)

// Signal представляет торговый сигнал по одной ноге пары.
// После сохранения не изменяется; уникален по
// (pair_id, symbol, signal_type, timestamp).
type Signal struct {
	ID                 int       `json:"id" db:"id"`
	PairID             int       `json:"pair_id" db:"pair_id"`
	Pair1              string    `json:"pair1" db:"pair1"`
	Pair2              string    `json:"pair2" db:"pair2"`
	Symbol             string    `json:"symbol" db:"symbol"`           // выбранная нога
	SignalType         string    `json:"signal_type" db:"signal_type"` // BUY, SELL
	ZScore             float64   `json:"z_score" db:"z_score"`
	Spread             float64   `json:"spread" db:"spread"`
	Timestamp          time.Time `json:"timestamp" db:"timestamp"` // время открытия последней свечи
	EntryPrice         float64   `json:"entry_price" db:"entry_price"`
	TakeProfit         float64   `json:"take_profit" db:"take_profit"`
	StopLoss           float64   `json:"stop_loss" db:"stop_loss"`
	RSIConfirmed       bool      `json:"rsi_confirmed" db:"rsi_confirmed"`
	MACDConfirmed      bool      `json:"macd_confirmed" db:"macd_confirmed"`
	BollingerConfirmed bool      `json:"bollinger_confirmed" db:"bollinger_confirmed"`
	LinearConfirmed    bool      `json:"linear_confirmed" db:"linear_confirmed"`
	Confirmations      int       `json:"confirmations" db:"confirmations"`
	Details            string    `json:"details" db:"details"` // голоса через "; "
	Strategy           string    `json:"strategy" db:"strategy"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// AbsZ возвращает |z_score|
func (s *Signal) AbsZ() float64 {
	return math.Abs(s.ZScore)
}

// DedupKey - ключ дедупликации внутри одной генерации
func (s *Signal) DedupKey() string {
	return s.Symbol + "|" + s.SignalType
}
