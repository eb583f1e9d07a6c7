package signal

import (
	"context"

	"github.com/thinh267/stat-arb/internal/models"
)

// RankingSource - источник актуального ранжирования пар
type RankingSource interface {
	Latest(ctx context.Context) ([]models.RankedPair, error)
}

// PairSource - пары последнего прогона сканера и поиск id пары по символам
type PairSource interface {
	ListLatestRun(ctx context.Context) ([]*models.Pair, error)
	ResolvePairID(ctx context.Context, s1, s2 string) (int, error)
}

// SignalStore - хранилище сигналов
type SignalStore interface {
	Save(ctx context.Context, s *models.Signal) error
}
