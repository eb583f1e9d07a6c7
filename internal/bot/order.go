package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/thinh267/stat-arb/internal/exchange"
	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/pkg/retry"
)

// OrderExecutor - исполнитель рыночных ордеров поверх exchange.Trader.
// Ордер отправляется один раз; при ошибке повтор выполняет
// следующий цикл открытия или тик монитора.
type OrderExecutor struct {
	trader exchange.Trader
}

// NewOrderExecutor создаёт исполнитель
func NewOrderExecutor(trader exchange.Trader) *OrderExecutor {
	return &OrderExecutor{trader: trader}
}

// Name возвращает имя исполнителя (paper, binance)
func (e *OrderExecutor) Name() string {
	return e.trader.Name()
}

// Execute размещает рыночный ордер и проверяет заполнение
func (e *OrderExecutor) Execute(ctx context.Context, symbol, side string, qty float64) (*models.OrderResult, error) {
	start := time.Now()
	order, err := retry.Do(ctx, retry.Orders(), func(ctx context.Context) (*models.OrderResult, error) {
		return e.trader.PlaceMarketOrder(ctx, symbol, side, qty)
	}).Unwrap()
	OrderExecutionLatency.WithLabelValues(e.trader.Name(), side).Observe(float64(time.Since(start).Milliseconds()))

	if err != nil {
		return nil, fmt.Errorf("%s %s %.8f: %w", side, symbol, qty, err)
	}
	if order.Status != models.OrderStatusFilled {
		return nil, fmt.Errorf("%s %s order %s not filled: status %s", side, symbol, order.OrderID, order.Status)
	}
	if order.AvgPrice <= 0 || order.Quantity <= 0 {
		return nil, fmt.Errorf("%s %s order %s: empty fill", side, symbol, order.OrderID)
	}
	return order, nil
}

// Exit закрывает позицию встречным рыночным ордером на весь объём
func (e *OrderExecutor) Exit(ctx context.Context, p *models.Position) (*models.OrderResult, error) {
	return e.Execute(ctx, p.Symbol, models.OppositeSide(p.Side), p.Quantity)
}

// AvailableBalance возвращает баланс исполнителя
func (e *OrderExecutor) AvailableBalance(ctx context.Context) (float64, error) {
	return e.trader.AvailableBalance(ctx)
}
