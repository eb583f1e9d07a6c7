package scanner

import (
	"context"
	"time"

	"github.com/thinh267/stat-arb/internal/models"
)

// PairStore - хранилище пар, найденных сканером
type PairStore interface {
	CreateBatch(ctx context.Context, pairs []*models.Pair) error
	ListLatestRun(ctx context.Context) ([]*models.Pair, error)
}

// RankingStore - хранилище снимков ранжирования
type RankingStore interface {
	SaveSnapshot(ctx context.Context, ts time.Time, rows []models.RankingSnapshot) error
}

// StatsStore - хранилище сводки корреляций
type StatsStore interface {
	Save(ctx context.Context, stats *models.CorrelationStats) error
}
