package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock - управляемое время для детерминированных тестов
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(rate, burst float64) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	rl := NewRateLimiter(rate, burst)
	rl.now = clock.Now
	rl.lastRefill = clock.Now()
	return rl, clock
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.rate != 10 || rl.burst != 10 {
		t.Errorf("defaults = rate %v burst %v, want 10/10", rl.rate, rl.burst)
	}
}

func TestAllow_Refill(t *testing.T) {
	rl, clock := newTestLimiter(2, 2)

	if !rl.Allow() || !rl.Allow() {
		t.Fatal("full bucket must allow burst")
	}
	if rl.Allow() {
		t.Fatal("empty bucket must reject")
	}

	clock.Advance(500 * time.Millisecond)
	if !rl.Allow() {
		t.Error("one token must be refilled after 500ms at 2/s")
	}
}

func TestWaitN_ConsumesWeight(t *testing.T) {
	rl, _ := newTestLimiter(10, 10)

	if err := rl.WaitN(context.Background(), 4); err != nil {
		t.Fatalf("WaitN: %v", err)
	}
	if got := rl.Tokens(); got != 6 {
		t.Errorf("tokens = %v, want 6", got)
	}
	if err := rl.WaitN(context.Background(), 0); err != nil {
		t.Errorf("zero weight must not block: %v", err)
	}
}

func TestWaitN_ContextCancel(t *testing.T) {
	rl, _ := newTestLimiter(0.001, 1)
	rl.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestMultiLimiter(t *testing.T) {
	ml := NewMultiLimiter()
	ml.Add(CategoryMarket, 100, 100)

	if err := ml.WaitN(context.Background(), CategoryMarket, 5); err != nil {
		t.Fatalf("WaitN: %v", err)
	}
	if err := ml.WaitN(context.Background(), "unknown", 1000); err != nil {
		t.Errorf("unknown category must be unlimited: %v", err)
	}

	l, ok := ml.Get(CategoryMarket)
	if !ok || l.Tokens() > 99 {
		t.Errorf("market limiter not charged: ok=%v tokens=%v", ok, l.Tokens())
	}
	if _, ok := ml.Get(CategoryOrder); ok {
		t.Error("order category was never added")
	}
}
