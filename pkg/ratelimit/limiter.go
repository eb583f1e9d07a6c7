package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter - token bucket с весами запросов
//
// Binance считает лимит в "весах": запрос свечей с limit <= 100 стоит 1,
// до 500 - 2, exchangeInfo - 1. Поэтому ожидание принимает вес запроса,
// а не только количество.
//
// Потокобезопасен: один limiter делят все воркеры сканера и генератора сигналов.
type RateLimiter struct {
	rate       float64 // весов в секунду
	burst      float64 // ёмкость ведра
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex

	now func() time.Time
}

// NewRateLimiter создаёт limiter. rate <= 0 → 10/s, burst < rate → burst = rate
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst < rate {
		burst = rate
	}
	rl := &RateLimiter{
		rate:   rate,
		burst:  burst,
		tokens: burst,
		now:    time.Now,
	}
	rl.lastRefill = rl.now()
	return rl
}

// refill пополняет ведро; вызывается под mu
func (rl *RateLimiter) refill() {
	now := rl.now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.lastRefill = now
}

// Wait блокирует до получения одного токена
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN блокирует до получения weight токенов или отмены контекста.
// Вес больше burst ограничивается burst.
func (rl *RateLimiter) WaitN(ctx context.Context, weight int) error {
	if weight <= 0 {
		return nil
	}
	need := float64(weight)

	for {
		rl.mu.Lock()
		if need > rl.burst {
			need = rl.burst
		}
		rl.refill()
		if rl.tokens >= need {
			rl.tokens -= need
			rl.mu.Unlock()
			return nil
		}
		wait := time.Duration((need - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Allow забирает токен без ожидания
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Tokens возвращает текущее количество токенов
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// ============ Лимиты по категориям запросов ============

// Категории запросов к бирже
const (
	CategoryMarket = "market" // свечи, цены, список инструментов
	CategoryOrder  = "order"  // ордера и аккаунт
)

// MultiLimiter - набор limiter'ов по категориям
type MultiLimiter struct {
	limiters map[string]*RateLimiter
	mu       sync.RWMutex
}

// NewMultiLimiter создаёт пустой набор
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{limiters: make(map[string]*RateLimiter)}
}

// Add регистрирует лимит для категории
func (ml *MultiLimiter) Add(category string, rate, burst float64) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.limiters[category] = NewRateLimiter(rate, burst)
}

// WaitN ожидает weight токенов категории; неизвестная категория не ограничена
func (ml *MultiLimiter) WaitN(ctx context.Context, category string, weight int) error {
	ml.mu.RLock()
	limiter, ok := ml.limiters[category]
	ml.mu.RUnlock()

	if !ok {
		return nil
	}
	return limiter.WaitN(ctx, weight)
}

// Get возвращает limiter категории
func (ml *MultiLimiter) Get(category string) (*RateLimiter, bool) {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	l, ok := ml.limiters[category]
	return l, ok
}
