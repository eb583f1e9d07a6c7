package models

import "time"

// OrderResult представляет итог исполнения рыночного ордера
type OrderResult struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"` // BUY, SELL
	Quantity  float64   `json:"quantity"`
	AvgPrice  float64   `json:"avg_price"` // средняя цена исполнения
	Status    string    `json:"status"`    // filled, rejected
	Simulated bool      `json:"simulated"`
	CreatedAt time.Time `json:"created_at"`
}

// Статусы ордера
const (
	OrderStatusFilled   = "filled"
	OrderStatusRejected = "rejected"
)

// OppositeSide возвращает противоположную сторону ордера
func OppositeSide(side string) string {
	if side == SignalBuy {
		return SignalSell
	}
	return SignalBuy
}
