// Package cache - кэш свечей для сканера пар.
//
// Один прогон сканера запрашивает свечи одного символа несколько раз
// (фаза качества и все пары с этим символом). Кэш гарантирует, что
// все потребители прогона видят одну и ту же серию: первая запись
// побеждает, последующие получают сохранённое значение.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/thinh267/stat-arb/internal/models"
)

// Store - хранилище серий свечей
type Store interface {
	// Get возвращает серию по ключу
	Get(ctx context.Context, key string) ([]models.Candle, bool)

	// SetIfAbsent сохраняет серию, если ключа ещё нет, и возвращает
	// значение, которое фактически лежит в кэше. stored = true, если
	// записана именно переданная серия.
	SetIfAbsent(ctx context.Context, key string, candles []models.Candle) (actual []models.Candle, stored bool)
}

// CandleKey строит ключ серии. bucket - начало текущей свечи интервала,
// поэтому закрытие новой свечи даёт новый ключ.
func CandleKey(symbol, interval string, limit int, bucket time.Time) string {
	return fmt.Sprintf("candles:%s:%s:%d:%d", symbol, interval, limit, bucket.Unix())
}

var intervalDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// Bucket возвращает начало свечи interval, содержащей t (UTC).
// Неизвестный интервал округляется до часа.
func Bucket(interval string, t time.Time) time.Time {
	d, ok := intervalDurations[interval]
	if !ok {
		d = time.Hour
	}
	return t.UTC().Truncate(d)
}
