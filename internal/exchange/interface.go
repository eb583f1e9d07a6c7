package exchange

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/thinh267/stat-arb/internal/models"
)

// MarketData - публичные рыночные данные фьючерсов
//
// Используется сканером пар, генератором сигналов и монитором позиций.
// Реализации должны быть потокобезопасными: их делят воркеры всех фаз.
type MarketData interface {
	// Universe возвращает описание контрактов биржи; отбор по Tradable
	// выполняет вызывающая сторона
	Universe(ctx context.Context) ([]SymbolInfo, error)

	// Candles возвращает последние limit свечей, от старых к новым
	Candles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)

	// Price возвращает текущую цену символа
	Price(ctx context.Context, symbol string) (float64, error)
}

// Trader - исполнение рыночных ордеров и баланс
type Trader interface {
	// PlaceMarketOrder размещает рыночный ордер (side: BUY или SELL)
	PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*models.OrderResult, error)

	// AvailableBalance возвращает доступный баланс в quote-валюте
	AvailableBalance(ctx context.Context) (float64, error)

	// Name возвращает имя исполнителя для логов и метрик
	Name() string
}

// SymbolInfo описывает контракт
type SymbolInfo struct {
	Symbol       string
	BaseAsset    string
	QuoteAsset   string
	ContractType string
	Status       string
	StepSize     float64 // шаг количества
	TickSize     float64 // шаг цены
	MinQty       float64
}

// Tradable - бессрочный контракт в статусе TRADING с нужной quote-валютой
func (s SymbolInfo) Tradable(quote string) bool {
	return s.ContractType == "PERPETUAL" && s.Status == "TRADING" && s.QuoteAsset == quote
}

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange   string
	StatusCode int // HTTP статус, 0 для сетевых ошибок
	Code       string
	Message    string
	Original   error
}

func (e *ExchangeError) Error() string {
	if e.StatusCode != 0 {
		return e.Exchange + ": HTTP " + strconv.Itoa(e.StatusCode) + ": " + e.Message
	}
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Retryable сообщает, имеет ли смысл повторить запрос:
// 429/418 (лимиты), 5xx и сетевые ошибки - да, прочие 4xx - нет
func (e *ExchangeError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return e.Original != nil
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusTeapot:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// IsRetryable классифицирует произвольную ошибку запроса к бирже
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return exErr.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
