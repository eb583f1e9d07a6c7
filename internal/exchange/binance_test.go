package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/pkg/retry"
)

// newTestBinance поднимает httptest сервер и клиент без задержек между повторами
func newTestBinance(t *testing.T, handler http.HandlerFunc) *Binance {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b := NewBinance(BinanceConfig{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		APISecret: "test-secret",
		RateLimit: 1000,
	}, WrapHTTPClient(srv.Client()))
	for _, p := range []*retry.Policy{&b.marketPolicy, &b.universePolicy} {
		p.InitialDelay, p.MaxDelay = 0, 0
	}
	b.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return b
}

const klinesBody = `[
  [1700000000000, "100.5", "101.0", "99.5", "100.8", "1234.5", 1700003599999, "124000.0", 100, "600.0", "60000.0", "0"],
  [1700003600000, "100.8", "102.0", "100.1", "101.9", "987.25", 1700007199999, "99000.0", 80, "500.0", "50000.0", "0"]
]`

func TestBinance_Candles(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathKlines {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "1h" || q.Get("limit") != "2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(klinesBody))
	})

	candles, err := b.Candles(context.Background(), "BTCUSDT", "1h", 2)
	if err != nil {
		t.Fatalf("Candles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles", len(candles))
	}
	c := candles[0]
	if c.OpenTime.UnixMilli() != 1700000000000 || c.CloseTime.UnixMilli() != 1700003599999 {
		t.Errorf("timestamps = %v %v", c.OpenTime, c.CloseTime)
	}
	if c.Open != 100.5 || c.High != 101 || c.Low != 99.5 || c.Close != 100.8 || c.Volume != 1234.5 {
		t.Errorf("candle = %+v", c)
	}
	if candles[1].Close != 101.9 {
		t.Errorf("second close = %v", candles[1].Close)
	}
}

func TestBinance_CandlesRetriesServerErrors(t *testing.T) {
	var calls int32
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(klinesBody))
	})

	candles, err := b.Candles(context.Background(), "BTCUSDT", "1h", 2)
	if err != nil {
		t.Fatalf("Candles: %v", err)
	}
	if len(candles) != 2 || atomic.LoadInt32(&calls) != 3 {
		t.Errorf("candles=%d calls=%d", len(candles), calls)
	}
}

func TestBinance_CandlesExhaustedIsTransient(t *testing.T) {
	var calls int32
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
	})

	_, err := b.Candles(context.Background(), "BTCUSDT", "1h", 2)
	if !errors.Is(err, models.ErrTransientRemote) {
		t.Fatalf("expected ErrTransientRemote, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestBinance_BusinessErrorNotRetried(t *testing.T) {
	var calls int32
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := b.Candles(context.Background(), "NOPEUSDT", "1h", 2)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, models.ErrTransientRemote) {
		t.Error("4xx business error must not be transient")
	}
	var exErr *ExchangeError
	if !errors.As(err, &exErr) || exErr.Code != "-1121" || exErr.Message != "Invalid symbol." {
		t.Errorf("unexpected error %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBinance_Universe(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[
		  {"symbol":"BTCUSDT","status":"TRADING","contractType":"PERPETUAL","baseAsset":"BTC","quoteAsset":"USDT",
		   "filters":[{"filterType":"PRICE_FILTER","tickSize":"0.10"},{"filterType":"LOT_SIZE","stepSize":"0.001","minQty":"0.001"}]},
		  {"symbol":"BTCUSDT_240329","status":"TRADING","contractType":"CURRENT_QUARTER","baseAsset":"BTC","quoteAsset":"USDT","filters":[]},
		  {"symbol":"ETHBUSD","status":"TRADING","contractType":"PERPETUAL","baseAsset":"ETH","quoteAsset":"BUSD","filters":[]},
		  {"symbol":"LUNAUSDT","status":"SETTLING","contractType":"PERPETUAL","baseAsset":"LUNA","quoteAsset":"USDT","filters":[]}
		]}`))
	})

	infos, err := b.Universe(context.Background())
	if err != nil {
		t.Fatalf("Universe: %v", err)
	}
	if len(infos) != 4 {
		t.Fatalf("got %d symbols", len(infos))
	}

	var tradable []string
	for _, si := range infos {
		if si.Tradable("USDT") {
			tradable = append(tradable, si.Symbol)
		}
	}
	if len(tradable) != 1 || tradable[0] != "BTCUSDT" {
		t.Errorf("tradable = %v", tradable)
	}
	if infos[0].StepSize != 0.001 || infos[0].TickSize != 0.1 || infos[0].MinQty != 0.001 {
		t.Errorf("filters = %+v", infos[0])
	}
	if step, ok := b.stepSizes.Load("BTCUSDT"); !ok || step.(float64) != 0.001 {
		t.Errorf("step size not cached: %v %v", step, ok)
	}
}

func TestBinance_Price(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"2012.35","time":1700000000000}`))
	})

	price, err := b.Price(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if price != 2012.35 {
		t.Errorf("price = %v", price)
	}
}

func TestBinance_PlaceMarketOrderSigned(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != pathOrder {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-MBX-APIKEY") != "test-key" {
			t.Error("missing API key header")
		}

		raw := r.URL.RawQuery
		idx := strings.Index(raw, "&signature=")
		if idx < 0 {
			t.Error("missing signature")
			return
		}
		mac := hmac.New(sha256.New, []byte("test-secret"))
		mac.Write([]byte(raw[:idx]))
		if want := hex.EncodeToString(mac.Sum(nil)); raw[idx+len("&signature="):] != want {
			t.Error("signature mismatch")
		}

		q := r.URL.Query()
		if q.Get("quantity") != "0.123" || q.Get("side") != "BUY" || q.Get("type") != "MARKET" {
			t.Errorf("query = %s", raw)
		}
		if q.Get("timestamp") != "1700000000000" {
			t.Errorf("timestamp = %s", q.Get("timestamp"))
		}
		w.Write([]byte(`{"orderId":42,"symbol":"BTCUSDT","status":"FILLED","side":"BUY","avgPrice":"30000.5","executedQty":"0.123","updateTime":1700000000500}`))
	})
	b.stepSizes.Store("BTCUSDT", 0.001)

	res, err := b.PlaceMarketOrder(context.Background(), "BTCUSDT", "BUY", 0.12345)
	if err != nil {
		t.Fatalf("PlaceMarketOrder: %v", err)
	}
	if res.OrderID != "42" || res.AvgPrice != 30000.5 || res.Quantity != 0.123 || res.Status != models.OrderStatusFilled {
		t.Errorf("result = %+v", res)
	}
	if res.Simulated {
		t.Error("live order marked simulated")
	}
}

func TestBinance_PlaceMarketOrderValidation(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent")
	})
	b.stepSizes.Store("BTCUSDT", 0.01)

	if _, err := b.PlaceMarketOrder(context.Background(), "BTCUSDT", "HOLD", 1); err == nil {
		t.Error("invalid side accepted")
	}
	if _, err := b.PlaceMarketOrder(context.Background(), "BTCUSDT", "SELL", 0.001); err == nil {
		t.Error("quantity below step accepted")
	}
}

func TestBinance_SignedWithoutCredentials(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent")
	})
	b.apiKey = ""

	if _, err := b.AvailableBalance(context.Background()); err == nil || errors.Is(err, models.ErrTransientRemote) {
		t.Errorf("expected permanent credentials error, got %v", err)
	}
}

func TestBinance_AvailableBalance(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathBalance {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[{"asset":"BNB","availableBalance":"1.5"},{"asset":"USDT","availableBalance":"87.25"}]`))
	})

	bal, err := b.AvailableBalance(context.Background())
	if err != nil {
		t.Fatalf("AvailableBalance: %v", err)
	}
	if bal != 87.25 {
		t.Errorf("balance = %v", bal)
	}
}

func TestKlineWeight(t *testing.T) {
	tests := []struct {
		limit int
		want  int
	}{
		{24, 1},
		{99, 1},
		{168, 2},
		{500, 5},
		{1000, 5},
		{1500, 10},
	}
	for _, tt := range tests {
		if got := klineWeight(tt.limit); got != tt.want {
			t.Errorf("klineWeight(%d) = %d, want %d", tt.limit, got, tt.want)
		}
	}
}
