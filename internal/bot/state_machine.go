package bot

import "github.com/thinh267/stat-arb/internal/models"

// ValidTransitions определяет допустимые переходы статуса позиции
var ValidTransitions = map[string][]string{
	models.PositionOpen:   {models.PositionClosed},
	models.PositionClosed: {}, // терминальный
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StatusInfo возвращает описание статуса для логов
func StatusInfo(s string) string {
	switch s {
	case models.PositionOpen:
		return "position open, monitored for TP/SL and mean reversion"
	case models.PositionClosed:
		return "position closed"
	default:
		return "unknown status"
	}
}

// IsExitReason проверяет, что причина закрытия известна
func IsExitReason(reason string) bool {
	switch reason {
	case models.ReasonTakeProfit, models.ReasonStopLoss,
		models.ReasonMeanReversion, models.ReasonMeanReversionOneLeg:
		return true
	default:
		return false
	}
}
