package scanner

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/thinh267/stat-arb/internal/cache"
	"github.com/thinh267/stat-arb/internal/config"
	"github.com/thinh267/stat-arb/internal/exchange"
	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/pkg/quant"
	"github.com/thinh267/stat-arb/pkg/retry"
	"github.com/thinh267/stat-arb/pkg/utils"
	"github.com/thinh267/stat-arb/pkg/workerpool"
)

// Refresher пересчитывает корреляцию и волатильность пар последнего
// прогона сканера и записывает новый снимок ранжирования.
// Набор пар не меняется, меняется только их порядок.
type Refresher struct {
	cfg     config.ScannerConfig
	market  exchange.MarketData
	pairs   PairStore
	ranking RankingStore

	now func() time.Time
	log *utils.Logger
}

// NewRefresher создаёт ранжировщик
func NewRefresher(cfg config.ScannerConfig, market exchange.MarketData, pairs PairStore, ranking RankingStore) *Refresher {
	return &Refresher{
		cfg:     cfg,
		market:  market,
		pairs:   pairs,
		ranking: ranking,
		now:     time.Now,
		log:     utils.L().WithComponent("ranking"),
	}
}

// Refresh переранжирует пары последнего прогона сканера
func (r *Refresher) Refresh(ctx context.Context) ([]models.RankingSnapshot, error) {
	pairs, err := r.pairs.ListLatestRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("list latest pairs: %w", err)
	}
	if len(pairs) == 0 {
		r.log.Info("no pairs to rank")
		return nil, nil
	}
	return r.RefreshPairs(ctx, pairs)
}

// RefreshPairs считает метрики для переданных пар и сохраняет снимок.
// Пары с неопределённой корреляцией в снимок не попадают.
func (r *Refresher) RefreshPairs(ctx context.Context, pairs []*models.Pair) ([]models.RankingSnapshot, error) {
	start := r.now()
	defer observePhase("ranking", start)

	src := cache.NewCachedSource(r.market, cache.NewMemoryCache(0))

	outcomes := workerpool.Process(ctx, r.cfg.QualityWorkers, pairs, func(ctx context.Context, p *models.Pair) (models.RankingSnapshot, error) {
		return r.measure(ctx, src, p)
	})

	rows := make([]models.RankingSnapshot, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			p := pairs[o.Index]
			class := models.ErrorClass(o.Err)
			UnitFailures.WithLabelValues("ranking", class).Inc()
			r.log.Warn("pair dropped from ranking",
				utils.PairID(p.ID),
				zap.String("pair", p.Pair1+"/"+p.Pair2),
				zap.String("class", class),
				zap.Error(o.Err))
			continue
		}
		rows = append(rows, o.Value)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Correlation > rows[j].Correlation
	})

	ts := start.UTC()
	for i := range rows {
		rows[i].Rank = i + 1
		rows[i].Timestamp = ts
	}

	if len(rows) == 0 {
		r.log.Warn("ranking produced no rows", zap.Int("pairs", len(pairs)))
		RankedPairs.Set(0)
		return rows, nil
	}

	err := retry.Run(ctx, retry.Persistence(), func(ctx context.Context) error {
		return r.ranking.SaveSnapshot(ctx, ts, rows)
	})
	if err != nil {
		return nil, fmt.Errorf("save ranking snapshot: %w: %w", models.ErrTransientRemote, err)
	}

	RankedPairs.Set(float64(len(rows)))
	r.log.Info("ranking refreshed",
		zap.Int("pairs", len(pairs)),
		zap.Int("ranked", len(rows)),
		zap.Time("timestamp", ts))
	return rows, nil
}

// measure считает корреляцию и волатильности одной пары
func (r *Refresher) measure(ctx context.Context, src exchange.MarketData, p *models.Pair) (models.RankingSnapshot, error) {
	a, err := src.Candles(ctx, p.Pair1, r.cfg.Interval, r.cfg.Lookback)
	if err != nil {
		return models.RankingSnapshot{}, err
	}
	b, err := src.Candles(ctx, p.Pair2, r.cfg.Interval, r.cfg.Lookback)
	if err != nil {
		return models.RankingSnapshot{}, err
	}

	closesA, closesB, _ := models.AlignCandles(a, b)
	if len(closesA) < r.cfg.MinCandles {
		return models.RankingSnapshot{}, fmt.Errorf("%w: %d aligned candles", models.ErrDataQuality, len(closesA))
	}

	corr := quant.Pearson(closesA, closesB)
	if math.IsNaN(corr) {
		return models.RankingSnapshot{}, fmt.Errorf("%w: correlation", models.ErrStatisticalUndefined)
	}

	return models.RankingSnapshot{
		PairID:      p.ID,
		Correlation: corr,
		Volatility1: quant.Volatility(closesA, volatilityPeriods),
		Volatility2: quant.Volatility(closesB, volatilityPeriods),
	}, nil
}
