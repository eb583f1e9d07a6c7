package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/pkg/utils"
)

const paperName = "paper"

// PaperTrader исполняет ордера в режиме симуляции: мгновенное
// заполнение по текущей цене, идентификатор ордера - uuid.
// Баланс принадлежит счёту симуляции и читается через balance.
type PaperTrader struct {
	prices  PriceSource
	balance func() float64
	now     func() time.Time
}

// NewPaperTrader создаёт бумажного исполнителя
func NewPaperTrader(prices PriceSource, balance func() float64) *PaperTrader {
	return &PaperTrader{prices: prices, balance: balance, now: time.Now}
}

// Name возвращает имя исполнителя
func (p *PaperTrader) Name() string {
	return paperName
}

// PlaceMarketOrder "исполняет" ордер по текущей цене
func (p *PaperTrader) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*models.OrderResult, error) {
	if err := utils.ValidateSide(side); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, fmt.Errorf("paper order %s: non-positive quantity %v", symbol, qty)
	}

	price, err := p.prices.Price(ctx, symbol)
	if err != nil {
		ordersPlaced.WithLabelValues(paperName, side, "error").Inc()
		return nil, fmt.Errorf("paper order %s: %w", symbol, err)
	}

	ordersPlaced.WithLabelValues(paperName, side, models.OrderStatusFilled).Inc()
	return &models.OrderResult{
		OrderID:   uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  qty,
		AvgPrice:  price,
		Status:    models.OrderStatusFilled,
		Simulated: true,
		CreatedAt: p.now().UTC(),
	}, nil
}

// AvailableBalance возвращает баланс счёта симуляции
func (p *PaperTrader) AvailableBalance(ctx context.Context) (float64, error) {
	if p.balance == nil {
		return 0, nil
	}
	return p.balance(), nil
}
