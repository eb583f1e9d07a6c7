package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/pkg/ratelimit"
	"github.com/thinh267/stat-arb/pkg/retry"
	"github.com/thinh267/stat-arb/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	binanceName       = "binance"
	binanceRecvWindow = "5000"

	pathKlines       = "/fapi/v1/klines"
	pathExchangeInfo = "/fapi/v1/exchangeInfo"
	pathTickerPrice  = "/fapi/v1/ticker/price"
	pathOrder        = "/fapi/v1/order"
	pathBalance      = "/fapi/v2/balance"
)

// BinanceConfig - параметры клиента Binance USDT-M
type BinanceConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	RateLimit  float64 // весов в секунду для рыночных данных
	QuoteAsset string  // валюта баланса
}

// Binance - REST клиент фьючерсов Binance USDT-M
//
// Все запросы проходят через rate limiter (по весам) и circuit breaker;
// рыночные данные повторяются по политикам pkg/retry, ордера - нет.
type Binance struct {
	baseURL    string
	apiKey     string
	secretKey  string
	quoteAsset string

	httpClient *HTTPClient
	limiter    *ratelimit.MultiLimiter
	breaker    *Breaker

	marketPolicy   retry.Policy
	universePolicy retry.Policy
	orderPolicy    retry.Policy

	// шаг количества по символам, заполняется из exchangeInfo
	stepSizes sync.Map

	now func() time.Time
	log *utils.Logger
}

// NewBinance создаёт клиент; httpClient == nil означает общий клиент
func NewBinance(cfg BinanceConfig, httpClient *HTTPClient) *Binance {
	if httpClient == nil {
		httpClient = GetGlobalHTTPClient()
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}

	limiter := ratelimit.NewMultiLimiter()
	limiter.Add(ratelimit.CategoryMarket, cfg.RateLimit, cfg.RateLimit*2)
	limiter.Add(ratelimit.CategoryOrder, 5, 10)

	b := &Binance{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		secretKey:      cfg.APISecret,
		quoteAsset:     cfg.QuoteAsset,
		httpClient:     httpClient,
		limiter:        limiter,
		breaker:        NewBreaker(DefaultBreakerConfig(binanceName)),
		marketPolicy:   retry.MarketData(),
		universePolicy: retry.Universe(),
		orderPolicy:    retry.Orders(),
		now:            time.Now,
		log:            utils.L().WithComponent("binance"),
	}
	for _, p := range []*retry.Policy{&b.marketPolicy, &b.universePolicy, &b.orderPolicy} {
		p.RetryIf = IsRetryable
		name := p.Name
		p.OnRetry = func(attempt int, err error, delay time.Duration) {
			b.log.Warn("retrying exchange request",
				zap.String("policy", name),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		}
	}
	return b
}

// Name возвращает имя биржи
func (b *Binance) Name() string {
	return binanceName
}

// sign создаёт HMAC-SHA256 подпись строки запроса
func (b *Binance) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// klineWeight - вес запроса свечей по документации Binance
func klineWeight(limit int) int {
	switch {
	case limit < 100:
		return 1
	case limit < 500:
		return 2
	case limit <= 1000:
		return 5
	default:
		return 10
	}
}

// doRequest выполняет HTTP запрос к Binance API
func (b *Binance) doRequest(ctx context.Context, method, path string, params url.Values, signed bool, category string, weight int) ([]byte, error) {
	if err := b.limiter.WaitN(ctx, category, weight); err != nil {
		return nil, err
	}

	if params == nil {
		params = url.Values{}
	}
	query := params.Encode()
	if signed {
		if b.apiKey == "" || b.secretKey == "" {
			return nil, retry.Permanent(&ExchangeError{Exchange: binanceName, Message: "API credentials are not configured"})
		}
		params.Set("timestamp", strconv.FormatInt(b.now().UnixMilli(), 10))
		params.Set("recvWindow", binanceRecvWindow)
		query = params.Encode()
		query += "&signature=" + b.sign(query)
	}

	reqURL := b.baseURL + path
	if query != "" {
		reqURL += "?" + query
	}

	return b.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
		if err != nil {
			return nil, err
		}
		if signed {
			req.Header.Set("X-MBX-APIKEY", b.apiKey)
		}

		resp, err := b.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &ExchangeError{Exchange: binanceName, Message: "request failed", Original: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &ExchangeError{Exchange: binanceName, Message: "read body", Original: err}
		}

		if resp.StatusCode != http.StatusOK {
			var apiErr struct {
				Code int    `json:"code"`
				Msg  string `json:"msg"`
			}
			msg := strings.TrimSpace(string(body))
			if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
				msg = apiErr.Msg
			}
			return nil, &ExchangeError{
				Exchange:   binanceName,
				StatusCode: resp.StatusCode,
				Code:       strconv.Itoa(apiErr.Code),
				Message:    msg,
			}
		}
		return body, nil
	})
}

// wrapRemote помечает ошибку, оставшуюся после всех повторов
func wrapRemote(op string, err error) error {
	if IsRetryable(err) || errors.Is(err, ErrCircuitOpen) {
		return fmt.Errorf("%s: %w: %w", op, models.ErrTransientRemote, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ============================================================
// Рыночные данные
// ============================================================

// Candles возвращает limit последних свечей interval для символа
func (b *Binance) Candles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	res := retry.Do(ctx, b.marketPolicy, func(ctx context.Context) ([]models.Candle, error) {
		body, err := b.doRequest(ctx, http.MethodGet, pathKlines, params, false, ratelimit.CategoryMarket, klineWeight(limit))
		if err != nil {
			return nil, err
		}
		return parseKlines(body)
	})
	if !res.OK() {
		return nil, wrapRemote("klines "+symbol, res.Err)
	}
	return res.Value, nil
}

// parseKlines разбирает массив свечей смешанного типа:
// [openTime, "open", "high", "low", "close", "volume", closeTime, ...]
func parseKlines(body []byte) ([]models.Candle, error) {
	var rows [][]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode klines: %w", err))
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 7 {
			return nil, retry.Permanent(fmt.Errorf("kline %d: %d fields", i, len(row)))
		}
		var c models.Candle
		var err error
		openTime, ok1 := row[0].(float64)
		closeTime, ok2 := row[6].(float64)
		if !ok1 || !ok2 {
			return nil, retry.Permanent(fmt.Errorf("kline %d: bad timestamps", i))
		}
		c.OpenTime = utils.FromUnixMillis(int64(openTime))
		c.CloseTime = utils.FromUnixMillis(int64(closeTime))

		fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
		for j, dst := range fields {
			if *dst, err = toFloat(row[j+1]); err != nil {
				return nil, retry.Permanent(fmt.Errorf("kline %d field %d: %w", i, j+1, err))
			}
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseFloat(t, 64)
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol       string `json:"symbol"`
		Status       string `json:"status"`
		ContractType string `json:"contractType"`
		BaseAsset    string `json:"baseAsset"`
		QuoteAsset   string `json:"quoteAsset"`
		Filters      []struct {
			FilterType string `json:"filterType"`
			StepSize   string `json:"stepSize"`
			MinQty     string `json:"minQty"`
			TickSize   string `json:"tickSize"`
		} `json:"filters"`
	} `json:"symbols"`
}

// Universe возвращает описание всех контрактов биржи
func (b *Binance) Universe(ctx context.Context) ([]SymbolInfo, error) {
	res := retry.Do(ctx, b.universePolicy, func(ctx context.Context) ([]SymbolInfo, error) {
		body, err := b.doRequest(ctx, http.MethodGet, pathExchangeInfo, nil, false, ratelimit.CategoryMarket, 1)
		if err != nil {
			return nil, err
		}
		var info exchangeInfoResponse
		if err := json.Unmarshal(body, &info); err != nil {
			return nil, retry.Permanent(fmt.Errorf("decode exchangeInfo: %w", err))
		}

		out := make([]SymbolInfo, 0, len(info.Symbols))
		for _, s := range info.Symbols {
			si := SymbolInfo{
				Symbol:       s.Symbol,
				BaseAsset:    s.BaseAsset,
				QuoteAsset:   s.QuoteAsset,
				ContractType: s.ContractType,
				Status:       s.Status,
			}
			for _, f := range s.Filters {
				switch f.FilterType {
				case "LOT_SIZE":
					si.StepSize, _ = strconv.ParseFloat(f.StepSize, 64)
					si.MinQty, _ = strconv.ParseFloat(f.MinQty, 64)
				case "PRICE_FILTER":
					si.TickSize, _ = strconv.ParseFloat(f.TickSize, 64)
				}
			}
			out = append(out, si)
		}
		return out, nil
	})
	if !res.OK() {
		return nil, wrapRemote("exchangeInfo", res.Err)
	}

	for _, si := range res.Value {
		if si.StepSize > 0 {
			b.stepSizes.Store(si.Symbol, si.StepSize)
		}
	}
	return res.Value, nil
}

// Price возвращает последнюю цену символа
func (b *Binance) Price(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	res := retry.Do(ctx, b.marketPolicy, func(ctx context.Context) (float64, error) {
		body, err := b.doRequest(ctx, http.MethodGet, pathTickerPrice, params, false, ratelimit.CategoryMarket, 1)
		if err != nil {
			return 0, err
		}
		var ticker struct {
			Symbol string `json:"symbol"`
			Price  string `json:"price"`
		}
		if err := json.Unmarshal(body, &ticker); err != nil {
			return 0, retry.Permanent(fmt.Errorf("decode ticker: %w", err))
		}
		price, err := strconv.ParseFloat(ticker.Price, 64)
		if err != nil || price <= 0 {
			return 0, retry.Permanent(fmt.Errorf("invalid price %q", ticker.Price))
		}
		return price, nil
	})
	if !res.OK() {
		return 0, wrapRemote("price "+symbol, res.Err)
	}
	return res.Value, nil
}

// ============================================================
// Торговля
// ============================================================

// PlaceMarketOrder размещает рыночный ордер. Количество округляется
// вниз до шага лота, если шаг известен из exchangeInfo.
func (b *Binance) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*models.OrderResult, error) {
	if err := utils.ValidateSide(side); err != nil {
		return nil, err
	}
	if step, ok := b.stepSizes.Load(symbol); ok {
		qty = utils.RoundToLotSize(qty, step.(float64))
	}
	if qty <= 0 {
		return nil, fmt.Errorf("order %s %s: quantity rounds to zero", symbol, side)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))
	params.Set("newOrderRespType", "RESULT")

	res := retry.Do(ctx, b.orderPolicy, func(ctx context.Context) (*models.OrderResult, error) {
		body, err := b.doRequest(ctx, http.MethodPost, pathOrder, params, true, ratelimit.CategoryOrder, 1)
		if err != nil {
			return nil, err
		}
		var resp struct {
			OrderID     int64  `json:"orderId"`
			Symbol      string `json:"symbol"`
			Status      string `json:"status"`
			Side        string `json:"side"`
			AvgPrice    string `json:"avgPrice"`
			ExecutedQty string `json:"executedQty"`
			UpdateTime  int64  `json:"updateTime"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}

		result := &models.OrderResult{
			OrderID:   strconv.FormatInt(resp.OrderID, 10),
			Symbol:    resp.Symbol,
			Side:      resp.Side,
			Status:    models.OrderStatusFilled,
			CreatedAt: b.now().UTC(),
		}
		result.AvgPrice, _ = strconv.ParseFloat(resp.AvgPrice, 64)
		result.Quantity, _ = strconv.ParseFloat(resp.ExecutedQty, 64)
		if resp.Status != "FILLED" {
			result.Status = models.OrderStatusRejected
		}
		if resp.UpdateTime > 0 {
			result.CreatedAt = utils.FromUnixMillis(resp.UpdateTime)
		}
		return result, nil
	})

	status := "error"
	if res.OK() {
		status = res.Value.Status
	}
	ordersPlaced.WithLabelValues(binanceName, side, status).Inc()

	if !res.OK() {
		return nil, wrapRemote("order "+symbol, res.Err)
	}
	b.log.Info("market order placed",
		utils.Symbol(symbol),
		utils.Side(side),
		utils.Quantity(res.Value.Quantity),
		utils.Price(res.Value.AvgPrice),
		utils.OrderID(res.Value.OrderID))
	return res.Value, nil
}

// AvailableBalance возвращает доступный баланс quote-валюты фьючерсного счёта
func (b *Binance) AvailableBalance(ctx context.Context) (float64, error) {
	res := retry.Do(ctx, b.marketPolicy, func(ctx context.Context) (float64, error) {
		body, err := b.doRequest(ctx, http.MethodGet, pathBalance, nil, true, ratelimit.CategoryOrder, 5)
		if err != nil {
			return 0, err
		}
		var balances []struct {
			Asset            string `json:"asset"`
			AvailableBalance string `json:"availableBalance"`
		}
		if err := json.Unmarshal(body, &balances); err != nil {
			return 0, retry.Permanent(fmt.Errorf("decode balance: %w", err))
		}
		for _, bal := range balances {
			if bal.Asset == b.quoteAsset {
				return strconv.ParseFloat(bal.AvailableBalance, 64)
			}
		}
		return 0, nil
	})
	if !res.OK() {
		return 0, wrapRemote("balance", res.Err)
	}
	return res.Value, nil
}
