package bot

import (
	"context"
	"time"

	"github.com/thinh267/stat-arb/internal/models"
)

// PositionStore - хранилище позиций (repository.PositionRepository)
type PositionStore interface {
	Create(ctx context.Context, p *models.Position) error
	ListOpen(ctx context.Context) ([]*models.Position, error)
	HasOpenForSymbol(ctx context.Context, symbol string) (bool, error)
	ExistsForSignal(ctx context.Context, signalID int) (bool, error)
	RecordExit(ctx context.Context, id int, orderID string, exitPrice float64, reason string, exitTime time.Time) error
	Close(ctx context.Context, id int, exitPrice, pnl float64, reason string, exitTime time.Time) error
	CapitalSummary(ctx context.Context) (models.CapitalSummary, error)
}

// SignalSource - недавние сигналы (repository.SignalRepository)
type SignalSource interface {
	ListSince(ctx context.Context, since time.Time) ([]*models.Signal, error)
}

// RankSource - ранг пары в последнем снимке (repository.RankingRepository)
type RankSource interface {
	RankForPair(ctx context.Context, pairID int) (int, error)
}

// PairLookup - пара по id (repository.PairRepository)
type PairLookup interface {
	GetByID(ctx context.Context, id int) (*models.Pair, error)
}

// ZScorer пересчитывает текущий z-score пары (signal.Model)
type ZScorer interface {
	ZScore(ctx context.Context, pair1, pair2 string) (float64, error)
}
