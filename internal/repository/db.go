package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PoolSettings - параметры пула соединений
type PoolSettings struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolSettings - 25 открытых, 5 простаивающих, 5 минут жизни
func DefaultPoolSettings() PoolSettings {
	return PoolSettings{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Open создает подключение к PostgreSQL и проверяет его
func Open(ctx context.Context, dsn string, pool PoolSettings) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// schema - таблицы хранилища. Все операторы идемпотентны.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS pairs (
		id SERIAL PRIMARY KEY,
		pair1 VARCHAR(30) NOT NULL,
		pair2 VARCHAR(30) NOT NULL,
		date DATE NOT NULL,
		correlation DOUBLE PRECISION NOT NULL,
		rolling_correlation DOUBLE PRECISION NOT NULL DEFAULT 0,
		cointegration_p_value DOUBLE PRECISION NOT NULL,
		is_cointegrated BOOLEAN NOT NULL DEFAULT false,
		volatility_1 DOUBLE PRECISION NOT NULL DEFAULT 0,
		volatility_2 DOUBLE PRECISION NOT NULL DEFAULT 0,
		rank INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pairs_symbols ON pairs (pair1, pair2, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_pairs_created_at ON pairs (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS ranking_snapshots (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		pair_id INT NOT NULL REFERENCES pairs(id) ON DELETE CASCADE,
		rank INT NOT NULL,
		correlation DOUBLE PRECISION NOT NULL,
		volatility_1 DOUBLE PRECISION NOT NULL DEFAULT 0,
		volatility_2 DOUBLE PRECISION NOT NULL DEFAULT 0,
		UNIQUE (timestamp, rank)
	)`,
	`CREATE TABLE IF NOT EXISTS signals (
		id SERIAL PRIMARY KEY,
		pair_id INT NOT NULL REFERENCES pairs(id) ON DELETE CASCADE,
		pair1 VARCHAR(30) NOT NULL,
		pair2 VARCHAR(30) NOT NULL,
		symbol VARCHAR(30) NOT NULL,
		signal_type VARCHAR(4) NOT NULL,
		z_score DOUBLE PRECISION NOT NULL,
		spread DOUBLE PRECISION NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		take_profit DOUBLE PRECISION NOT NULL,
		stop_loss DOUBLE PRECISION NOT NULL,
		rsi_confirmed BOOLEAN NOT NULL DEFAULT false,
		macd_confirmed BOOLEAN NOT NULL DEFAULT false,
		bollinger_confirmed BOOLEAN NOT NULL DEFAULT false,
		linear_confirmed BOOLEAN NOT NULL DEFAULT false,
		confirmations INT NOT NULL DEFAULT 0,
		details TEXT NOT NULL DEFAULT '',
		strategy VARCHAR(20) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (pair_id, symbol, signal_type, timestamp)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals (created_at)`,
	`CREATE TABLE IF NOT EXISTS positions (
		id SERIAL PRIMARY KEY,
		pair_id INT NOT NULL REFERENCES pairs(id) ON DELETE CASCADE,
		signal_id INT UNIQUE REFERENCES signals(id) ON DELETE SET NULL,
		symbol VARCHAR(30) NOT NULL,
		side VARCHAR(4) NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		status VARCHAR(10) NOT NULL DEFAULT 'OPEN',
		entry_time TIMESTAMPTZ NOT NULL,
		exit_time TIMESTAMPTZ,
		exit_price DOUBLE PRECISION,
		pnl DOUBLE PRECISION,
		take_profit DOUBLE PRECISION NOT NULL,
		stop_loss DOUBLE PRECISION NOT NULL,
		z_score_at_entry DOUBLE PRECISION NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		order_id VARCHAR(64) NOT NULL DEFAULT '',
		exit_order_id VARCHAR(64) NOT NULL DEFAULT ''
	)`,
	`ALTER TABLE positions ADD COLUMN IF NOT EXISTS exit_order_id VARCHAR(64) NOT NULL DEFAULT ''`,
	// не более одной открытой позиции на символ
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open_symbol ON positions (symbol) WHERE status = 'OPEN'`,
	`CREATE TABLE IF NOT EXISTS correlation_stats (
		id SERIAL PRIMARY KEY,
		date DATE NOT NULL,
		count INT NOT NULL,
		mean DOUBLE PRECISION NOT NULL,
		median DOUBLE PRECISION NOT NULL,
		std DOUBLE PRECISION NOT NULL,
		min DOUBLE PRECISION NOT NULL,
		max DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate создает таблицы и индексы, если их нет
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// isUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
