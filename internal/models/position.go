package models

import "time"

// Статусы позиции
const (
	PositionOpen   = "OPEN"
	PositionClosed = "CLOSED"
)

// Причины закрытия позиции
const (
	ReasonTakeProfit          = "TP hit"
	ReasonStopLoss            = "SL hit"
	ReasonMeanReversion       = "z-score mean reversion"
	ReasonMeanReversionOneLeg = "z-score mean reversion (1 leg)"
)

// Position представляет позицию по одной ноге пары.
// Создаётся OPEN, переходит в CLOSED ровно один раз; CLOSED терминален.
// SignalID ссылается на исполненный сигнал, PNL задаётся только при закрытии.
type Position struct {
	ID            int        `json:"id" db:"id"`
	PairID        int        `json:"pair_id" db:"pair_id"`
	SignalID      int        `json:"signal_id" db:"signal_id"`
	Symbol        string     `json:"symbol" db:"symbol"`
	Side          string     `json:"side" db:"side"`
	EntryPrice    float64    `json:"entry_price" db:"entry_price"`
	Quantity      float64    `json:"quantity" db:"quantity"`
	Status        string     `json:"status" db:"status"`
	EntryTime     time.Time  `json:"entry_time" db:"entry_time"`
	ExitTime      *time.Time `json:"exit_time,omitempty" db:"exit_time"`
	ExitPrice     *float64   `json:"exit_price,omitempty" db:"exit_price"`
	PNL           *float64   `json:"pnl,omitempty" db:"pnl"`
	TakeProfit    float64    `json:"take_profit" db:"take_profit"`
	StopLoss      float64    `json:"stop_loss" db:"stop_loss"`
	ZScoreAtEntry float64    `json:"z_score_at_entry" db:"z_score_at_entry"`
	Reason        string     `json:"reason,omitempty" db:"reason"`
	OrderID       string     `json:"order_id" db:"order_id"`
	ExitOrderID   string     `json:"exit_order_id,omitempty" db:"exit_order_id"` // выход исполнен, закрытие ещё не записано
}

// ExitFilled сообщает, что выходной ордер уже исполнен и записан на позицию
func (p *Position) ExitFilled() bool {
	return p.ExitOrderID != "" && p.ExitPrice != nil
}

// Capital - капитал, заблокированный в позиции при входе
func (p *Position) Capital() float64 {
	return p.EntryPrice * p.Quantity
}

// IsOpen сообщает, открыта ли позиция
func (p *Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// CapitalSummary - агрегаты позиций для восстановления баланса после рестарта
type CapitalSummary struct {
	OpenCapital float64 `json:"open_capital"`
	RealizedPNL float64 `json:"realized_pnl"`
	OpenCount   int     `json:"open_count"`
	ClosedCount int     `json:"closed_count"`
}
