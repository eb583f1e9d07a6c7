package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/thinh267/stat-arb/internal/exchange"
	"github.com/thinh267/stat-arb/internal/models"
)

func series(closes ...float64) []models.Candle {
	base := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			OpenTime:  base.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    10,
			CloseTime: base.Add(time.Duration(i+1)*time.Hour - time.Millisecond),
		}
	}
	return out
}

// ============================================================
// MemoryCache
// ============================================================

func TestMemoryCache_FirstWriteWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache(0)

	first := series(1, 2, 3)
	second := series(9, 9, 9)

	if _, ok := m.Get(ctx, "k"); ok {
		t.Fatal("empty cache returned a value")
	}
	if got, stored := m.SetIfAbsent(ctx, "k", first); !stored || got[0].Close != 1 {
		t.Fatalf("first write: stored=%v got=%v", stored, got)
	}
	got, stored := m.SetIfAbsent(ctx, "k", second)
	if stored || got[0].Close != 1 {
		t.Errorf("second write must return first series, stored=%v close=%v", stored, got[0].Close)
	}
	if got, ok := m.Get(ctx, "k"); !ok || len(got) != 3 || got[2].Close != 3 {
		t.Errorf("Get = %v %v", got, ok)
	}
}

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache(time.Minute)
	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }

	m.SetIfAbsent(ctx, "k", series(1))
	now = now.Add(2 * time.Minute)

	if _, ok := m.Get(ctx, "k"); ok {
		t.Error("expired entry returned")
	}
	if _, stored := m.SetIfAbsent(ctx, "k", series(2)); !stored {
		t.Error("expired key must accept a new value")
	}

	m.SetIfAbsent(ctx, "old", series(3))
	now = now.Add(2 * time.Minute)
	if _, ok := m.Get(ctx, "old"); ok {
		t.Error("expired entry returned")
	}
	if m.Len() != 1 {
		t.Errorf("Len after expired Get = %d, want 1", m.Len())
	}
}

func TestMemoryCache_SweepsExpiredKeys(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache(time.Minute)
	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }

	// каждый цикл пишет серию под новым ключом бакета
	for i := 0; i < 50; i++ {
		m.SetIfAbsent(ctx, fmt.Sprintf("BTCUSDT:1h:168:%d", i), series(float64(i)))
		now = now.Add(30 * time.Second)
	}

	// живы только записи последней минуты
	if n := m.Len(); n > 4 {
		t.Errorf("Len = %d, expired keys were not swept", n)
	}
	if _, ok := m.Get(ctx, "BTCUSDT:1h:168:49"); !ok {
		t.Error("fresh entry was swept")
	}
}

func TestMemoryCache_NoTTLKeepsEntries(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache(0)
	for i := 0; i < 10; i++ {
		m.SetIfAbsent(ctx, fmt.Sprintf("k%d", i), series(1))
	}
	if m.Len() != 10 {
		t.Errorf("Len = %d, want 10", m.Len())
	}
}

func TestMemoryCache_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache(0)

	var wg sync.WaitGroup
	var storedCount int32
	results := make([]float64, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, stored := m.SetIfAbsent(ctx, "k", series(float64(i)))
			if stored {
				atomic.AddInt32(&storedCount, 1)
			}
			results[i] = got[0].Close
		}(i)
	}
	wg.Wait()

	if storedCount != 1 {
		t.Errorf("stored %d times, want 1", storedCount)
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatalf("writers observed different series: %v", results)
		}
	}
}

// ============================================================
// RedisCache
// ============================================================

func TestRedisCache_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheWithClient(db, 30*time.Minute)

	candles := series(100, 101)
	payload, _ := json.Marshal(candles)
	existing := series(50, 51)
	existingPayload, _ := json.Marshal(existing)

	mock.ExpectSetNX("k1", string(payload), 30*time.Minute).SetVal(true)
	got, stored := rc.SetIfAbsent(ctx, "k1", candles)
	if !stored || got[1].Close != 101 {
		t.Errorf("first write: stored=%v got=%v", stored, got)
	}

	mock.ExpectSetNX("k2", string(payload), 30*time.Minute).SetVal(false)
	mock.ExpectGet("k2").SetVal(string(existingPayload))
	got, stored = rc.SetIfAbsent(ctx, "k2", candles)
	if stored || got[0].Close != 50 {
		t.Errorf("taken key must return existing series, stored=%v got=%v", stored, got)
	}
	if !got[0].OpenTime.Equal(existing[0].OpenTime) {
		t.Errorf("open time round trip: %v vs %v", got[0].OpenTime, existing[0].OpenTime)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRedisCache_Get(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheWithClient(db, time.Minute)

	mock.ExpectGet("missing").RedisNil()
	if _, ok := rc.Get(ctx, "missing"); ok {
		t.Error("redis.Nil must be a miss")
	}

	mock.ExpectGet("broken").SetVal("{not json")
	if _, ok := rc.Get(ctx, "broken"); ok {
		t.Error("corrupted entry must be a miss")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRedisCache_FallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheWithClient(db, time.Minute)
	down := errors.New("connection refused")

	candles := series(7, 8)
	payload, _ := json.Marshal(candles)

	mock.ExpectSetNX("k", string(payload), time.Minute).SetErr(down)
	if _, stored := rc.SetIfAbsent(ctx, "k", candles); !stored {
		t.Error("memory fallback must store the series")
	}

	mock.ExpectGet("k").SetErr(down)
	got, ok := rc.Get(ctx, "k")
	if !ok || got[0].Close != 7 {
		t.Errorf("memory fallback Get = %v %v", got, ok)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// ============================================================
// Tiered и CachedSource
// ============================================================

func TestTiered_CopiesL2IntoL1(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemoryCache(0)
	l2 := NewMemoryCache(0)
	l2.SetIfAbsent(ctx, "k", series(5))

	store := NewTiered(l1, l2)
	got, ok := store.Get(ctx, "k")
	if !ok || got[0].Close != 5 {
		t.Fatalf("Get = %v %v", got, ok)
	}
	if _, ok := l1.Get(ctx, "k"); !ok {
		t.Error("L2 hit must populate L1")
	}

	if NewTiered(l1, nil) != Store(l1) {
		t.Error("nil L2 must return L1 itself")
	}
}

// countingSource считает обращения к бирже
type countingSource struct {
	calls int32
	delay time.Duration
}

func (s *countingSource) Universe(ctx context.Context) ([]exchange.SymbolInfo, error) {
	return []exchange.SymbolInfo{{Symbol: "BTCUSDT"}}, nil
}

func (s *countingSource) Candles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	n := atomic.AddInt32(&s.calls, 1)
	time.Sleep(s.delay)
	return series(float64(n)), nil
}

func (s *countingSource) Price(ctx context.Context, symbol string) (float64, error) {
	return 1, nil
}

func TestCachedSource_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{}
	cs := NewCachedSource(src, NewMemoryCache(0))
	cs.now = func() time.Time { return time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC) }

	a, _ := cs.Candles(ctx, "BTCUSDT", "1h", 168)
	b, _ := cs.Candles(ctx, "BTCUSDT", "1h", 168)
	if src.calls != 1 || a[0].Close != b[0].Close {
		t.Errorf("calls=%d a=%v b=%v", src.calls, a[0].Close, b[0].Close)
	}

	// другой limit - другая серия
	cs.Candles(ctx, "BTCUSDT", "1h", 24)
	if src.calls != 2 {
		t.Errorf("calls=%d, want 2", src.calls)
	}

	// новая свеча - новый ключ
	cs.now = func() time.Time { return time.Date(2024, 1, 15, 11, 0, 1, 0, time.UTC) }
	cs.Candles(ctx, "BTCUSDT", "1h", 168)
	if src.calls != 3 {
		t.Errorf("calls=%d, want 3", src.calls)
	}
}

func TestCachedSource_ConcurrentLoadsAgree(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{delay: 5 * time.Millisecond}
	cs := NewCachedSource(src, NewMemoryCache(0))

	var wg sync.WaitGroup
	closes := make([]float64, 8)
	for i := range closes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := cs.Candles(ctx, "ETHUSDT", "1h", 168)
			if err != nil {
				t.Errorf("Candles: %v", err)
				return
			}
			closes[i] = c[0].Close
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(closes); i++ {
		if closes[i] != closes[0] {
			t.Fatalf("concurrent consumers saw different series: %v", closes)
		}
	}
}

func TestBucket(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 47, 12, 0, time.UTC)
	tests := []struct {
		interval string
		want     time.Time
	}{
		{"1h", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
		{"15m", time.Date(2024, 1, 15, 10, 45, 0, 0, time.UTC)},
		{"4h", time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)},
		{"1d", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"weird", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := Bucket(tt.interval, ts); !got.Equal(tt.want) {
			t.Errorf("Bucket(%s) = %v, want %v", tt.interval, got, tt.want)
		}
	}
}
