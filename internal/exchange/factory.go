package exchange

import (
	"fmt"
	"strings"

	"github.com/thinh267/stat-arb/internal/config"
)

// SupportedModes - режимы исполнения ордеров
var SupportedModes = []string{
	config.ModeSimulation,
	config.ModeLive,
}

// NewTrader создаёт исполнителя ордеров по режиму торговли.
// live - реальные ордера через Binance, simulation - бумажные.
func NewTrader(mode string, live *Binance, prices PriceSource, balance func() float64) (Trader, error) {
	switch strings.ToLower(mode) {
	case config.ModeLive:
		if live == nil {
			return nil, fmt.Errorf("live mode requires a configured exchange client")
		}
		return live, nil
	case config.ModeSimulation:
		if prices == nil {
			return nil, fmt.Errorf("simulation mode requires a price source")
		}
		return NewPaperTrader(prices, balance), nil
	default:
		return nil, fmt.Errorf("unsupported trading mode: %s", mode)
	}
}

// IsSupportedMode проверяет, поддерживается ли режим
func IsSupportedMode(mode string) bool {
	mode = strings.ToLower(mode)
	for _, supported := range SupportedModes {
		if mode == supported {
			return true
		}
	}
	return false
}
