package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// validator.go - валидация входных данных
//
// Используется при разборе конфигурации, ответов биржи и CLI-аргументов.

var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9]{2,30}$`)

// Интервалы свечей Binance USDT-M futures
var validIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true,
}

// NormalizeSymbol приводит символ к виду биржи: BTC-usdt → BTCUSDT
func NormalizeSymbol(symbol string) string {
	r := strings.NewReplacer("-", "", "_", "", "/", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(symbol)))
}

// ValidateSymbol проверяет формат символа (после нормализации)
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !symbolPattern.MatchString(NormalizeSymbol(symbol)) || strings.ContainsAny(symbol, " @") {
		return fmt.Errorf("invalid symbol format: %q", symbol)
	}
	return nil
}

// ValidateInterval проверяет интервал свечей
func ValidateInterval(interval string) error {
	if !validIntervals[interval] {
		return fmt.Errorf("unsupported candle interval: %q", interval)
	}
	return nil
}

// ValidateSide проверяет сторону ордера/сигнала
func ValidateSide(side string) error {
	if side != "BUY" && side != "SELL" {
		return fmt.Errorf("invalid side %q, expected BUY or SELL", side)
	}
	return nil
}
