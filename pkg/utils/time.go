package utils

import (
	"fmt"
	"time"
)

// time.go - утилиты для работы со временем
//
// Назначение:
// Границы торгового дня (пары сканера хранятся по дате в UTC),
// конвертация timestamp биржи и парсинг времени запуска по расписанию.

// GetDayStart возвращает начало текущего дня (00:00:00) в UTC
func GetDayStart() time.Time {
	return GetDayStartFrom(time.Now())
}

// GetDayStartFrom возвращает начало дня для указанного времени в UTC
//
// Пример:
//
//	// t: 2024-01-15 14:30:45 UTC
//	GetDayStartFrom(t) // 2024-01-15 00:00:00 UTC
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FromUnixMillis конвертирует миллисекунды Unix (формат Binance) в time.Time UTC
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ParseClock разбирает время суток в формате "HH:MM"
func ParseClock(value string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q, expected HH:MM", value)
	}
	return t.Hour(), t.Minute(), nil
}
