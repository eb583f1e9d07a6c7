package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/thinh267/stat-arb/internal/models"
)

// Ошибки репозитория статистики
var (
	ErrStatsNotFound = errors.New("correlation stats not found")
)

// StatsRepository - сводки корреляций по запускам сканера
type StatsRepository struct {
	db *sql.DB
}

// NewStatsRepository создает новый экземпляр репозитория
func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Save записывает сводку корреляций
func (r *StatsRepository) Save(ctx context.Context, stats *models.CorrelationStats) error {
	query := `
		INSERT INTO correlation_stats (date, count, mean, median, std, min, max, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	stats.CreatedAt = time.Now().UTC()

	return r.db.QueryRowContext(ctx, query,
		stats.Date,
		stats.Count,
		stats.Mean,
		stats.Median,
		stats.Std,
		stats.Min,
		stats.Max,
		stats.CreatedAt,
	).Scan(&stats.ID)
}

// Latest возвращает последнюю сводку
func (r *StatsRepository) Latest(ctx context.Context) (*models.CorrelationStats, error) {
	query := `
		SELECT id, date, count, mean, median, std, min, max, created_at
		FROM correlation_stats
		ORDER BY created_at DESC
		LIMIT 1`

	stats := &models.CorrelationStats{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.ID,
		&stats.Date,
		&stats.Count,
		&stats.Mean,
		&stats.Median,
		&stats.Std,
		&stats.Min,
		&stats.Max,
		&stats.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, err
	}
	return stats, nil
}
