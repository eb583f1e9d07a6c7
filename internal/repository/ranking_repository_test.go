package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/thinh267/stat-arb/internal/models"
)

// ============================================================
// RankingRepository Tests
// ============================================================

func TestRankingRepositorySaveSnapshot(t *testing.T) {
	ts := time.Date(2024, 1, 15, 13, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		mockSetup func(mock sqlmock.Sqlmock)
		expectErr error
		anyErr    bool
	}{
		{
			name: "success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO ranking_snapshots`).
					WithArgs(ts, 3, 1, 0.95, 0.02, 0.03).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec(`INSERT INTO ranking_snapshots`).
					WithArgs(ts, 1, 2, 0.85, 0.04, 0.05).
					WillReturnResult(sqlmock.NewResult(2, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "duplicate rank",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO ranking_snapshots`).
					WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "ranking_snapshots_timestamp_rank_key"`))
				mock.ExpectRollback()
			},
			expectErr: models.ErrDuplicateWrite,
		},
		{
			name: "begin fails",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(errors.New("no connection"))
			},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			rows := []models.RankingSnapshot{
				{PairID: 3, Rank: 1, Correlation: 0.95, Volatility1: 0.02, Volatility2: 0.03},
				{PairID: 1, Rank: 2, Correlation: 0.85, Volatility1: 0.04, Volatility2: 0.05},
			}

			repo := NewRankingRepository(db)
			err = repo.SaveSnapshot(context.Background(), ts, rows)

			switch {
			case tt.expectErr != nil:
				if !errors.Is(err, tt.expectErr) {
					t.Errorf("expected %v, got %v", tt.expectErr, err)
				}
			case tt.anyErr:
				if err == nil {
					t.Error("expected error, got nil")
				}
			default:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if !rows[0].Timestamp.Equal(ts) {
					t.Error("snapshot rows must carry the shared timestamp")
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestRankingRepositoryLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ts := time.Now()
	mock.ExpectQuery(`FROM ranking_snapshots rs JOIN pairs p ON p.id = rs.pair_id`).
		WillReturnRows(sqlmock.NewRows([]string{"pair_id", "pair1", "pair2", "rank", "correlation", "volatility_1", "volatility_2", "timestamp"}).
			AddRow(3, "BTCUSDT", "ETHUSDT", 1, 0.95, 0.02, 0.03, ts).
			AddRow(1, "SOLUSDT", "AVAXUSDT", 2, 0.85, 0.04, 0.05, ts))

	repo := NewRankingRepository(db)
	ranked, err := repo.Latest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked pairs, got %d", len(ranked))
	}
	if ranked[0].PairID != 3 || ranked[0].Rank != 1 || ranked[1].Pair1 != "SOLUSDT" {
		t.Errorf("unexpected ranking: %+v", ranked)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRankingRepositoryRankForPair(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT rank FROM ranking_snapshots WHERE pair_id = \$1`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"rank"}).AddRow(4))
	mock.ExpectQuery(`SELECT rank FROM ranking_snapshots WHERE pair_id = \$1`).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"rank"}))

	repo := NewRankingRepository(db)

	rank, err := repo.RankForPair(context.Background(), 3)
	if err != nil || rank != 4 {
		t.Errorf("RankForPair(3) = %d, %v", rank, err)
	}
	if _, err := repo.RankForPair(context.Background(), 9); !errors.Is(err, ErrRankingNotFound) {
		t.Errorf("expected ErrRankingNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
