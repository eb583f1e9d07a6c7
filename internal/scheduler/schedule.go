package scheduler

import (
	"time"

	"github.com/thinh267/stat-arb/pkg/utils"
)

// Schedule вычисляет момент следующего запуска после now
type Schedule interface {
	Next(now time.Time) time.Time
}

// Daily - раз в сутки в Hour:Minute UTC
type Daily struct {
	Hour   int
	Minute int
}

// ParseDaily создаёт Daily из "HH:MM"
func ParseDaily(clock string) (Daily, error) {
	h, m, err := utils.ParseClock(clock)
	if err != nil {
		return Daily{}, err
	}
	return Daily{Hour: h, Minute: m}, nil
}

func (d Daily) Next(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), d.Hour, d.Minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Every - через фиксированный интервал после предыдущего запуска
type Every time.Duration

func (e Every) Next(now time.Time) time.Time {
	return now.Add(time.Duration(e))
}

// Aligned - на границах интервала по часам (:00, :15, :30, :45 для 15m)
type Aligned time.Duration

func (a Aligned) Next(now time.Time) time.Time {
	d := time.Duration(a)
	return now.UTC().Truncate(d).Add(d)
}

// Adaptive - интервал определяется функцией на каждом шаге
// (монитор позиций: быстрый при открытых позициях, медленный в простое)
type Adaptive func() time.Duration

func (a Adaptive) Next(now time.Time) time.Time {
	return now.Add(a())
}
