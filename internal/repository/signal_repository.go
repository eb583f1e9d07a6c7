package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thinh267/stat-arb/internal/models"
)

// Ошибки репозитория сигналов
var (
	ErrSignalExists = fmt.Errorf("signal already exists: %w", models.ErrDuplicateWrite)
)

const signalColumns = `id, pair_id, pair1, pair2, symbol, signal_type, z_score, spread, timestamp,
		entry_price, take_profit, stop_loss, rsi_confirmed, macd_confirmed, bollinger_confirmed,
		linear_confirmed, confirmations, details, strategy, created_at`

// SignalRepository - работа с таблицей signals
type SignalRepository struct {
	db *sql.DB
}

// NewSignalRepository создает новый экземпляр репозитория
func NewSignalRepository(db *sql.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Save записывает сигнал. Повтор по (pair_id, symbol, signal_type, timestamp)
// возвращает ErrSignalExists.
func (r *SignalRepository) Save(ctx context.Context, s *models.Signal) error {
	query := `
		INSERT INTO signals (pair_id, pair1, pair2, symbol, signal_type, z_score, spread, timestamp,
			entry_price, take_profit, stop_loss, rsi_confirmed, macd_confirmed, bollinger_confirmed,
			linear_confirmed, confirmations, details, strategy, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (pair_id, symbol, signal_type, timestamp) DO NOTHING
		RETURNING id`

	s.CreatedAt = time.Now().UTC()

	err := r.db.QueryRowContext(ctx, query,
		s.PairID,
		s.Pair1,
		s.Pair2,
		s.Symbol,
		s.SignalType,
		s.ZScore,
		s.Spread,
		s.Timestamp,
		s.EntryPrice,
		s.TakeProfit,
		s.StopLoss,
		s.RSIConfirmed,
		s.MACDConfirmed,
		s.BollingerConfirmed,
		s.LinearConfirmed,
		s.Confirmations,
		s.Details,
		s.Strategy,
		s.CreatedAt,
	).Scan(&s.ID)

	if err != nil {
		// ON CONFLICT DO NOTHING не возвращает строк
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return ErrSignalExists
		}
		return err
	}

	return nil
}

// ListSince возвращает сигналы, созданные начиная с since, от старых к новым
func (r *SignalRepository) ListSince(ctx context.Context, since time.Time) ([]*models.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE created_at >= $1
		ORDER BY timestamp ASC, pair_id ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []*models.Signal
	for rows.Next() {
		s := &models.Signal{}
		err := rows.Scan(
			&s.ID,
			&s.PairID,
			&s.Pair1,
			&s.Pair2,
			&s.Symbol,
			&s.SignalType,
			&s.ZScore,
			&s.Spread,
			&s.Timestamp,
			&s.EntryPrice,
			&s.TakeProfit,
			&s.StopLoss,
			&s.RSIConfirmed,
			&s.MACDConfirmed,
			&s.BollingerConfirmed,
			&s.LinearConfirmed,
			&s.Confirmations,
			&s.Details,
			&s.Strategy,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		signals = append(signals, s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return signals, nil
}
