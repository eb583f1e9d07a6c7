package exchange

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/thinh267/stat-arb/pkg/utils"
)

// ErrCircuitOpen - breaker разомкнут, запрос к бирже не отправлялся
var ErrCircuitOpen = errors.New("exchange circuit open")

// BreakerConfig - параметры circuit breaker
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32        // порог размыкания
	OpenTimeout         time.Duration // время до half-open
	HalfOpenRequests    uint32        // пробные запросы в half-open
	Interval            time.Duration // период сброса счётчиков в closed
}

// DefaultBreakerConfig: размыкание после 5 подряд ошибок, пауза 30s
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
		Interval:            60 * time.Second,
	}
}

// Breaker защищает биржу от лавины запросов при её деградации.
// Бизнес-ошибки (4xx) не считаются отказами.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker создаёт breaker
func NewBreaker(cfg BreakerConfig) *Breaker {
	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(float64(to))
			utils.L().Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	breakerState.WithLabelValues(cfg.Name).Set(0)
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// Execute выполняет fn через breaker
func (b *Breaker) Execute(fn func() ([]byte, error)) ([]byte, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	if err != nil {
		return nil, err
	}
	body, _ := out.([]byte)
	return body, nil
}

// State возвращает текущее состояние
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
