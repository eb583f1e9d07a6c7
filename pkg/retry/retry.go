package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy - параметры повторов для одной категории удалённых вызовов
//
// Задержка перед попыткой n (n начинается с 0):
// delay = min(InitialDelay * Multiplier^n ± jitter, MaxDelay)
//
// Multiplier = 1 даёт фиксированный backoff (1s, 1s, ...),
// который используется для рыночных данных биржи.
type Policy struct {
	// Name - категория вызова, попадает в ошибки и логи
	Name string

	// MaxAttempts - количество попыток включая первую (минимум 1)
	MaxAttempts int

	// InitialDelay - задержка перед второй попыткой
	InitialDelay time.Duration

	// MaxDelay - верхняя граница задержки
	MaxDelay time.Duration

	// Multiplier - рост задержки между попытками
	Multiplier float64

	// JitterFactor - случайная вариация задержки (0.0 - 1.0)
	JitterFactor float64

	// RetryIf решает, стоит ли повторять ошибку. nil = повторять всё,
	// кроме Permanent и отмены контекста
	RetryIf func(error) bool

	// OnRetry вызывается перед каждым повтором
	OnRetry func(attempt int, err error, delay time.Duration)
}

// ============ Категории вызовов ============

// MarketData - свечи и цены: 3 попытки с фиксированной задержкой 1s
func MarketData() Policy {
	return Policy{
		Name:         "market_data",
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     1 * time.Second,
		Multiplier:   1,
	}
}

// Universe - список инструментов: 3 попытки с фиксированной задержкой 2s
func Universe() Policy {
	return Policy{
		Name:         "universe",
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     2 * time.Second,
		Multiplier:   1,
	}
}

// Orders - рыночные ордера: одна попытка, повтор выполняется
// на следующем тике мониторинга, чтобы не удвоить позицию
func Orders() Policy {
	return Policy{
		Name:        "orders",
		MaxAttempts: 1,
	}
}

// Persistence - запросы к БД: 3 попытки, 500ms, 1s
func Persistence() Policy {
	return Policy{
		Name:         "persistence",
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}

// normalize заполняет значения по умолчанию
func (p Policy) normalize() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 1
	}
	if p.JitterFactor < 0 {
		p.JitterFactor = 0
	}
	if p.JitterFactor > 1 {
		p.JitterFactor = 1
	}
	return p
}

// Delay возвращает задержку перед повтором номер attempt (с 0)
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalize()

	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.JitterFactor > 0 {
		delay += delay * p.JitterFactor * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// ============ Результат ============

// Result - явный итог серии попыток вместо nil-значения
type Result[T any] struct {
	Value    T
	Attempts int
	Err      error
}

// OK сообщает об успехе
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Unwrap возвращает значение и ошибку
func (r Result[T]) Unwrap() (T, error) {
	return r.Value, r.Err
}

// Do выполняет op по политике и возвращает Result
//
// Отмена контекста прерывает ожидание между попытками; ошибка
// контекста возвращается как итоговая.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) Result[T] {
	p = p.normalize()

	var res Result[T]
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		res.Attempts = attempt + 1

		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		value, err := op(ctx)
		if err == nil {
			res.Value = value
			res.Err = nil
			return res
		}
		res.Err = err

		if !p.shouldRetry(err) || attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Err = ctx.Err()
			return res
		case <-timer.C:
		}
	}

	var perm *PermanentError
	if errors.As(res.Err, &perm) {
		res.Err = perm.Err
	}
	return res
}

// Run - вариант Do для операций без результата
func Run(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	res := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return res.Err
}

func (p Policy) shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	if p.RetryIf != nil {
		return p.RetryIf(err)
	}
	return true
}

// ============ Классификация ошибок ============

// PermanentError - ошибка, которую не имеет смысла повторять
// (например, неверный символ или недостаточно маржи)
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent помечает ошибку как неповторяемую
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent проверяет, помечена ли ошибка как неповторяемая
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}
