package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thinh267/stat-arb/internal/models"
)

// Ошибки репозитория позиций
var (
	ErrPositionNotFound = errors.New("position not found")
	ErrPositionClosed   = errors.New("position already closed")
	ErrPositionExists   = fmt.Errorf("position already exists: %w", models.ErrDuplicateWrite)
)

const positionColumns = `id, pair_id, COALESCE(signal_id, 0), symbol, side, entry_price, quantity, status,
		entry_time, exit_time, exit_price, pnl, take_profit, stop_loss, z_score_at_entry, reason, order_id, exit_order_id`

// PositionRepository - работа с таблицей positions.
// Единственный писатель позиций - менеджер позиций.
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый экземпляр репозитория
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create записывает открытую позицию. Повтор по signal_id или вторая
// открытая позиция по символу возвращают ErrPositionExists.
func (r *PositionRepository) Create(ctx context.Context, p *models.Position) error {
	query := `
		INSERT INTO positions (pair_id, signal_id, symbol, side, entry_price, quantity, status,
			entry_time, take_profit, stop_loss, z_score_at_entry, order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	if p.Status == "" {
		p.Status = models.PositionOpen
	}
	if p.EntryTime.IsZero() {
		p.EntryTime = time.Now().UTC()
	}

	var signalID interface{}
	if p.SignalID > 0 {
		signalID = p.SignalID
	}

	err := r.db.QueryRowContext(ctx, query,
		p.PairID,
		signalID,
		p.Symbol,
		p.Side,
		p.EntryPrice,
		p.Quantity,
		p.Status,
		p.EntryTime,
		p.TakeProfit,
		p.StopLoss,
		p.ZScoreAtEntry,
		p.OrderID,
	).Scan(&p.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrPositionExists
		}
		return err
	}

	return nil
}

// GetByID возвращает позицию по ID
func (r *PositionRepository) GetByID(ctx context.Context, id int) (*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	p, err := scanPosition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListOpen возвращает открытые позиции, сгруппированные по паре,
// внутри пары - в порядке открытия
func (r *PositionRepository) ListOpen(ctx context.Context) ([]*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE status = $1
		ORDER BY pair_id ASC, entry_time ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, models.PositionOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return positions, nil
}

// HasOpenForSymbol проверяет наличие открытой позиции по символу
func (r *PositionRepository) HasOpenForSymbol(ctx context.Context, symbol string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM positions WHERE symbol = $1 AND status = $2)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, symbol, models.PositionOpen).Scan(&exists)
	return exists, err
}

// ExistsForSignal проверяет, исполнялся ли сигнал
func (r *PositionRepository) ExistsForSignal(ctx context.Context, signalID int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM positions WHERE signal_id = $1)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, signalID).Scan(&exists)
	return exists, err
}

// Close переводит позицию в CLOSED. Переход выполняется только из OPEN;
// повторное закрытие возвращает ErrPositionClosed и ничего не меняет.
func (r *PositionRepository) Close(ctx context.Context, id int, exitPrice, pnl float64, reason string, exitTime time.Time) error {
	query := `
		UPDATE positions
		SET status = $2, exit_price = $3, pnl = $4, reason = $5, exit_time = $6
		WHERE id = $1 AND status = $7`

	result, err := r.db.ExecContext(ctx, query, id, models.PositionClosed, exitPrice, pnl, reason, exitTime, models.PositionOpen)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPositionClosed
	}

	return nil
}

// RecordExit запоминает исполненный выходной ордер на открытой позиции.
// Статус остаётся OPEN до Close; после рестарта закрытие дописывается
// по этой цене без повторного ордера.
func (r *PositionRepository) RecordExit(ctx context.Context, id int, orderID string, exitPrice float64, reason string, exitTime time.Time) error {
	query := `
		UPDATE positions
		SET exit_order_id = $2, exit_price = $3, reason = $4, exit_time = $5
		WHERE id = $1 AND status = $6`

	result, err := r.db.ExecContext(ctx, query, id, orderID, exitPrice, reason, exitTime, models.PositionOpen)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPositionClosed
	}

	return nil
}

// CapitalSummary возвращает капитал открытых позиций и реализованный PnL
func (r *PositionRepository) CapitalSummary(ctx context.Context) (models.CapitalSummary, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'OPEN' THEN entry_price * quantity END), 0),
			COALESCE(SUM(CASE WHEN status = 'CLOSED' THEN pnl END), 0),
			COUNT(*) FILTER (WHERE status = 'OPEN'),
			COUNT(*) FILTER (WHERE status = 'CLOSED')
		FROM positions`

	var s models.CapitalSummary
	err := r.db.QueryRowContext(ctx, query).Scan(&s.OpenCapital, &s.RealizedPNL, &s.OpenCount, &s.ClosedCount)
	return s, err
}

func scanPosition(row rowScanner) (*models.Position, error) {
	p := &models.Position{}
	var (
		exitTime  sql.NullTime
		exitPrice sql.NullFloat64
		pnl       sql.NullFloat64
	)
	err := row.Scan(
		&p.ID,
		&p.PairID,
		&p.SignalID,
		&p.Symbol,
		&p.Side,
		&p.EntryPrice,
		&p.Quantity,
		&p.Status,
		&p.EntryTime,
		&exitTime,
		&exitPrice,
		&pnl,
		&p.TakeProfit,
		&p.StopLoss,
		&p.ZScoreAtEntry,
		&p.Reason,
		&p.OrderID,
		&p.ExitOrderID,
	)
	if err != nil {
		return nil, err
	}
	if exitTime.Valid {
		t := exitTime.Time
		p.ExitTime = &t
	}
	if exitPrice.Valid {
		v := exitPrice.Float64
		p.ExitPrice = &v
	}
	if pnl.Valid {
		v := pnl.Float64
		p.PNL = &v
	}
	return p, nil
}
