package workerpool

import (
	"context"
	"fmt"
	"sync"
)

// Outcome - результат обработки одного элемента
type Outcome[R any] struct {
	Index int // позиция элемента во входном срезе
	Value R
	Err   error
}

// Process обрабатывает items фиксированным числом воркеров и возвращает
// результаты в порядке входа. Вызов блокируется, пока не обработаны все
// элементы (барьер фазы).
//
// Ошибка или паника одного элемента не прерывает остальные: она попадает
// в Outcome.Err. Отмена ctx означает, что ещё не взятые элементы получают
// ctx.Err() без вызова fn.
func Process[T, R any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, item T) (R, error)) []Outcome[R] {
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	out := make([]Outcome[R], len(items))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = run(ctx, i, items[i], fn)
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return out
}

func run[T, R any](ctx context.Context, i int, item T, fn func(ctx context.Context, item T) (R, error)) (o Outcome[R]) {
	o.Index = i
	if err := ctx.Err(); err != nil {
		o.Err = err
		return o
	}

	defer func() {
		if r := recover(); r != nil {
			o.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	o.Value, o.Err = fn(ctx, item)
	return o
}

// Values возвращает значения успешных результатов в исходном порядке.
// Для каждого неуспешного элемента вызывается onErr (может быть nil).
func Values[R any](outcomes []Outcome[R], onErr func(index int, err error)) []R {
	vals := make([]R, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			if onErr != nil {
				onErr(o.Index, o.Err)
			}
			continue
		}
		vals = append(vals, o.Value)
	}
	return vals
}
