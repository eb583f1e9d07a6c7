package exchange

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thinh267/stat-arb/pkg/utils"
)

// markPriceStream - все mark-цены USDT-M раз в секунду
const markPriceStream = "!markPrice@arr@1s"

// PriceSource - источник текущей цены символа
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

type markPrice struct {
	price float64
	at    time.Time
}

// PriceFeed держит последние mark-цены из websocket потока.
// Если цена символа старше maxAge или поток не подключён,
// Price обращается к REST источнику.
type PriceFeed struct {
	rest   PriceSource
	ws     *WSReconnectManager
	maxAge time.Duration

	mu     sync.RWMutex
	prices map[string]markPrice

	now func() time.Time
	log *utils.Logger
}

// NewPriceFeed создаёт поток; wsBaseURL без имени стрима (wss://fstream.binance.com/ws)
func NewPriceFeed(wsBaseURL string, rest PriceSource, maxAge time.Duration) *PriceFeed {
	if maxAge <= 0 {
		maxAge = 5 * time.Second
	}
	f := &PriceFeed{
		rest:   rest,
		maxAge: maxAge,
		prices: make(map[string]markPrice),
		now:    time.Now,
		log:    utils.L().WithComponent("price_feed"),
	}
	url := strings.TrimRight(wsBaseURL, "/") + "/" + markPriceStream
	f.ws = NewWSReconnectManager("mark_price", url, DefaultWSReconnectConfig(), f.handleMessage)
	return f
}

// Start подключается к потоку. Ошибка подключения не фатальна:
// до восстановления цены берутся из REST.
func (f *PriceFeed) Start(ctx context.Context) error {
	return f.ws.Connect(ctx)
}

// Close останавливает поток
func (f *PriceFeed) Close() error {
	return f.ws.Close()
}

// Price возвращает свежую mark-цену или цену из REST
func (f *PriceFeed) Price(ctx context.Context, symbol string) (float64, error) {
	f.mu.RLock()
	mp, ok := f.prices[symbol]
	f.mu.RUnlock()

	if ok && f.now().Sub(mp.at) <= f.maxAge {
		return mp.price, nil
	}
	return f.rest.Price(ctx, symbol)
}

// markPriceEvent - элемент массива !markPrice@arr
type markPriceEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
}

func (f *PriceFeed) handleMessage(message []byte) {
	var events []markPriceEvent
	if err := json.Unmarshal(message, &events); err != nil {
		f.log.Debug("skip unparsable mark price message", zap.Error(err))
		return
	}

	now := f.now()
	f.mu.Lock()
	for _, ev := range events {
		if ev.EventType != "markPriceUpdate" {
			continue
		}
		price, err := strconv.ParseFloat(ev.MarkPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		f.prices[ev.Symbol] = markPrice{price: price, at: now}
	}
	f.mu.Unlock()

	priceFeedUpdates.Add(float64(len(events)))
}
