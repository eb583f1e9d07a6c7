package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thinh267/stat-arb/internal/models"
)

// Ошибки репозитория пар
var (
	ErrPairNotFound = errors.New("pair not found")
)

const pairColumns = `id, pair1, pair2, date, correlation, rolling_correlation, cointegration_p_value,
		is_cointegrated, volatility_1, volatility_2, rank, created_at`

// PairRepository - работа с таблицей pairs
type PairRepository struct {
	db *sql.DB
}

// NewPairRepository создает новый экземпляр репозитория
func NewPairRepository(db *sql.DB) *PairRepository {
	return &PairRepository{db: db}
}

// CreateBatch сохраняет результат одного запуска сканера в одной транзакции.
// Все пары запуска получают общий created_at, по нему определяется
// актуальный набор.
func (r *PairRepository) CreateBatch(ctx context.Context, pairs []*models.Pair) error {
	if len(pairs) == 0 {
		return nil
	}

	query := `
		INSERT INTO pairs (pair1, pair2, date, correlation, rolling_correlation, cointegration_p_value,
			is_cointegrated, volatility_1, volatility_2, rank, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, pair := range pairs {
		pair.CreatedAt = now
		err := tx.QueryRowContext(ctx, query,
			pair.Pair1,
			pair.Pair2,
			pair.Date,
			pair.Correlation,
			pair.RollingCorrelation,
			pair.CointegrationPValue,
			pair.IsCointegrated,
			pair.Volatility1,
			pair.Volatility2,
			pair.Rank,
			pair.CreatedAt,
		).Scan(&pair.ID)
		if err != nil {
			return fmt.Errorf("failed to insert pair %s/%s: %w", pair.Pair1, pair.Pair2, err)
		}
	}

	return tx.Commit()
}

// GetByID возвращает пару по ID
func (r *PairRepository) GetByID(ctx context.Context, id int) (*models.Pair, error) {
	query := `SELECT ` + pairColumns + ` FROM pairs WHERE id = $1`

	pair, err := scanPair(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPairNotFound
		}
		return nil, err
	}
	return pair, nil
}

// ListLatestRun возвращает пары последнего запуска сканера по рангу
func (r *PairRepository) ListLatestRun(ctx context.Context) ([]*models.Pair, error) {
	query := `
		SELECT ` + pairColumns + `
		FROM pairs
		WHERE created_at = (SELECT MAX(created_at) FROM pairs)
		ORDER BY rank ASC`

	return r.queryPairs(ctx, query)
}

// ListByDate возвращает все пары, найденные за день
func (r *PairRepository) ListByDate(ctx context.Context, date time.Time) ([]*models.Pair, error) {
	query := `
		SELECT ` + pairColumns + `
		FROM pairs
		WHERE date = $1
		ORDER BY created_at DESC, rank ASC`

	return r.queryPairs(ctx, query, date)
}

// ResolvePairID находит самый свежий id пары по символам в любом порядке:
// сначала (s1, s2), затем (s2, s1)
func (r *PairRepository) ResolvePairID(ctx context.Context, s1, s2 string) (int, error) {
	query := `SELECT id FROM pairs WHERE pair1 = $1 AND pair2 = $2 ORDER BY id DESC LIMIT 1`

	for _, order := range [][2]string{{s1, s2}, {s2, s1}} {
		var id int
		err := r.db.QueryRowContext(ctx, query, order[0], order[1]).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
	}
	return 0, ErrPairNotFound
}

func (r *PairRepository) queryPairs(ctx context.Context, query string, args ...interface{}) ([]*models.Pair, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []*models.Pair
	for rows.Next() {
		pair, err := scanPair(rows)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return pairs, nil
}

// rowScanner - общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPair(row rowScanner) (*models.Pair, error) {
	pair := &models.Pair{}
	err := row.Scan(
		&pair.ID,
		&pair.Pair1,
		&pair.Pair2,
		&pair.Date,
		&pair.Correlation,
		&pair.RollingCorrelation,
		&pair.CointegrationPValue,
		&pair.IsCointegrated,
		&pair.Volatility1,
		&pair.Volatility2,
		&pair.Rank,
		&pair.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return pair, nil
}
