package bot

import (
	"fmt"

	"github.com/thinh267/stat-arb/internal/config"
	"github.com/thinh267/stat-arb/internal/models"
)

// Причины отказа в открытии (метка admission_rejected_total)
const (
	rejectRank       = "rank"
	rejectOpen       = "symbol_open"
	rejectExecuted   = "signal_executed"
	rejectBalance    = "balance"
	rejectPriceLevel = "price"
)

// CapitalForRank возвращает капитал для ранга: доля первого уровня,
// чей MaxRank не меньше ранга, от размера счёта. Ранг вне уровней - 0.
func CapitalForRank(rank int, tiers []config.CapitalTier, accountSize float64) float64 {
	if rank < 1 {
		return 0
	}
	for _, t := range tiers {
		if rank <= t.MaxRank {
			return accountSize * t.Fraction
		}
	}
	return 0
}

// rejection - отказ в открытии с причиной для метрики
type rejection struct {
	reason string
	msg    string
}

func (r *rejection) Error() string {
	return r.msg
}

func (r *rejection) Unwrap() error {
	return models.ErrAdmissionRejected
}

func reject(reason, format string, args ...interface{}) error {
	return &rejection{reason: reason, msg: fmt.Sprintf(format, args...)}
}

// rejectReason возвращает причину отказа или "" для прочих ошибок
func rejectReason(err error) string {
	if r, ok := err.(*rejection); ok {
		return r.reason
	}
	return ""
}
