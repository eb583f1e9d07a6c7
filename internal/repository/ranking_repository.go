package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thinh267/stat-arb/internal/models"
)

// Ошибки репозитория ранжирования
var (
	ErrRankingNotFound = errors.New("ranking not found")
)

// RankingRepository - работа с таблицей ranking_snapshots (только добавление)
type RankingRepository struct {
	db *sql.DB
}

// NewRankingRepository создает новый экземпляр репозитория
func NewRankingRepository(db *sql.DB) *RankingRepository {
	return &RankingRepository{db: db}
}

// SaveSnapshot записывает снимок ранжирования с общим timestamp
func (r *RankingRepository) SaveSnapshot(ctx context.Context, ts time.Time, rows []models.RankingSnapshot) error {
	if len(rows) == 0 {
		return nil
	}

	query := `
		INSERT INTO ranking_snapshots (timestamp, pair_id, rank, correlation, volatility_1, volatility_2)
		VALUES ($1, $2, $3, $4, $5, $6)`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range rows {
		rows[i].Timestamp = ts
		_, err := tx.ExecContext(ctx, query,
			ts,
			rows[i].PairID,
			rows[i].Rank,
			rows[i].Correlation,
			rows[i].Volatility1,
			rows[i].Volatility2,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("snapshot %s rank %d: %w", ts.Format(time.RFC3339), rows[i].Rank, models.ErrDuplicateWrite)
			}
			return fmt.Errorf("failed to insert ranking for pair %d: %w", rows[i].PairID, err)
		}
	}

	return tx.Commit()
}

// Latest возвращает пары самого свежего снимка по рангу
func (r *RankingRepository) Latest(ctx context.Context) ([]models.RankedPair, error) {
	query := `
		SELECT rs.pair_id, p.pair1, p.pair2, rs.rank, rs.correlation, rs.volatility_1, rs.volatility_2, rs.timestamp
		FROM ranking_snapshots rs
		JOIN pairs p ON p.id = rs.pair_id
		WHERE rs.timestamp = (SELECT MAX(timestamp) FROM ranking_snapshots)
		ORDER BY rs.rank ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranked []models.RankedPair
	for rows.Next() {
		var rp models.RankedPair
		err := rows.Scan(
			&rp.PairID,
			&rp.Pair1,
			&rp.Pair2,
			&rp.Rank,
			&rp.Correlation,
			&rp.Volatility1,
			&rp.Volatility2,
			&rp.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, rp)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return ranked, nil
}

// RankForPair возвращает ранг пары в последнем снимке, где она есть
func (r *RankingRepository) RankForPair(ctx context.Context, pairID int) (int, error) {
	query := `
		SELECT rank FROM ranking_snapshots
		WHERE pair_id = $1
		ORDER BY timestamp DESC
		LIMIT 1`

	var rank int
	err := r.db.QueryRowContext(ctx, query, pairID).Scan(&rank)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrRankingNotFound
		}
		return 0, err
	}
	return rank, nil
}
