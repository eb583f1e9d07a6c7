package signal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/thinh267/stat-arb/internal/cache"
	"github.com/thinh267/stat-arb/internal/config"
	"github.com/thinh267/stat-arb/internal/exchange"
	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/internal/repository"
	"github.com/thinh267/stat-arb/pkg/retry"
	"github.com/thinh267/stat-arb/pkg/utils"
	"github.com/thinh267/stat-arb/pkg/workerpool"
)

// Engine - генератор сигналов
//
// Цикл генерации:
//  1. пары из последнего снимка ранжирования (или последнего прогона сканера)
//  2. z-score и решение стратегии по каждой паре в пуле воркеров
//  3. дедупликация по (symbol, signal_type) с максимальным |z|
//  4. запись; уже существующие сигналы пропускаются
type Engine struct {
	cfg      config.SignalConfig
	model    *Model
	strategy Strategy
	shared   cache.Store // общий кэш свечей, может быть nil
	ranking  RankingSource
	pairs    PairSource
	signals  SignalStore

	log *utils.Logger
}

// NewEngine создаёт генератор сигналов
func NewEngine(cfg config.SignalConfig, market exchange.MarketData, shared cache.Store,
	ranking RankingSource, pairs PairSource, signals SignalStore) (*Engine, error) {
	strategy, err := NewStrategy(cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		model:    NewModel(cfg, market),
		strategy: strategy,
		shared:   shared,
		ranking:  ranking,
		pairs:    pairs,
		signals:  signals,
		log:      utils.L().WithComponent("signals"),
	}, nil
}

// Model возвращает модель спреда генератора
func (e *Engine) Model() *Model {
	return e.model
}

// GenerateResult - итог цикла генерации
type GenerateResult struct {
	Pairs      int
	Candidates int
	Signals    []*models.Signal // после дедупликации
	Saved      int
	Duplicates int
	Failed     int
	Duration   time.Duration
}

// Generate выполняет один цикл генерации сигналов
func (e *Engine) Generate(ctx context.Context) (*GenerateResult, error) {
	start := time.Now()
	res := &GenerateResult{}

	ranked, err := e.currentPairs(ctx)
	if err != nil {
		return nil, err
	}
	res.Pairs = len(ranked)
	if len(ranked) == 0 {
		e.log.Info("no ranked pairs, skipping signal generation")
		return res, nil
	}

	// Свечи ноги, входящей в несколько пар, загружаются один раз
	model := e.model.WithSource(cache.NewCachedSource(e.model.market, cache.NewTiered(cache.NewMemoryCache(0), e.shared)))

	outcomes := workerpool.Process(ctx, e.cfg.Workers, ranked, func(ctx context.Context, rp models.RankedPair) ([]*models.Signal, error) {
		st, err := model.Evaluate(ctx, rp.Pair1, rp.Pair2)
		if err != nil {
			return nil, err
		}
		return e.strategy.Decide(st), nil
	})

	var candidates []*models.Signal
	for _, o := range outcomes {
		rp := ranked[o.Index]
		if o.Err != nil {
			PairsEvaluated.WithLabelValues(models.ErrorClass(o.Err)).Inc()
			e.log.Warn("pair skipped",
				utils.PairID(rp.PairID),
				zap.String("pair", rp.Pair1+"/"+rp.Pair2),
				zap.String("class", models.ErrorClass(o.Err)),
				zap.Error(o.Err))
			continue
		}
		if len(o.Value) == 0 {
			PairsEvaluated.WithLabelValues("no_signal").Inc()
			continue
		}
		PairsEvaluated.WithLabelValues("signal").Inc()
		for _, sig := range o.Value {
			sig.PairID = rp.PairID
		}
		candidates = append(candidates, o.Value...)
	}
	res.Candidates = len(candidates)

	res.Signals = Deduplicate(candidates)
	for _, sig := range res.Signals {
		SignalsGenerated.WithLabelValues(sig.Strategy, sig.SignalType).Inc()
		switch err := e.persist(ctx, sig); {
		case err == nil:
			res.Saved++
		case errors.Is(err, models.ErrDuplicateWrite):
			res.Duplicates++
		default:
			res.Failed++
		}
	}

	res.Duration = time.Since(start)
	e.log.Info("signal generation completed",
		zap.String("strategy", e.strategy.Name()),
		zap.Int("pairs", res.Pairs),
		zap.Int("candidates", res.Candidates),
		zap.Int("signals", len(res.Signals)),
		zap.Int("saved", res.Saved),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// currentPairs возвращает пары последнего снимка ранжирования.
// Пока снимков нет, используется последний прогон сканера.
func (e *Engine) currentPairs(ctx context.Context) ([]models.RankedPair, error) {
	ranked, err := e.ranking.Latest(ctx)
	if err != nil {
		e.log.Warn("failed to load ranking, falling back to latest pairs", zap.Error(err))
	}
	if len(ranked) > 0 {
		return ranked, nil
	}

	pairs, err := e.pairs.ListLatestRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("list latest pairs: %w", err)
	}
	out := make([]models.RankedPair, len(pairs))
	for i, p := range pairs {
		out[i] = models.RankedFromPair(p)
	}
	return out, nil
}

// persist привязывает сигнал к свежему id пары и сохраняет его
func (e *Engine) persist(ctx context.Context, sig *models.Signal) error {
	log := e.log.With(
		utils.Symbol(sig.Symbol),
		zap.String("type", sig.SignalType),
		utils.ZScore(sig.ZScore))

	id, err := e.pairs.ResolvePairID(ctx, sig.Pair1, sig.Pair2)
	switch {
	case err == nil:
		sig.PairID = id
	case errors.Is(err, repository.ErrPairNotFound) && sig.PairID != 0:
	default:
		SignalsPersisted.WithLabelValues("failed").Inc()
		log.Error("failed to resolve pair id", zap.Error(err))
		return err
	}

	policy := retry.Persistence()
	policy.RetryIf = func(err error) bool { return !errors.Is(err, models.ErrDuplicateWrite) }

	err = retry.Run(ctx, policy, func(ctx context.Context) error {
		return e.signals.Save(ctx, sig)
	})
	switch {
	case err == nil:
		SignalsPersisted.WithLabelValues("saved").Inc()
		log.Info("signal saved",
			utils.SignalID(sig.ID),
			utils.PairID(sig.PairID),
			utils.Price(sig.EntryPrice),
			zap.Float64("take_profit", sig.TakeProfit),
			zap.Float64("stop_loss", sig.StopLoss),
			zap.String("details", sig.Details))
		return nil
	case errors.Is(err, models.ErrDuplicateWrite):
		SignalsPersisted.WithLabelValues("duplicate").Inc()
		log.Debug("signal already recorded", utils.PairID(sig.PairID))
		return err
	default:
		SignalsPersisted.WithLabelValues("failed").Inc()
		log.Error("failed to save signal", zap.Error(err))
		return err
	}
}

// Deduplicate оставляет для каждой пары (symbol, signal_type) сигнал
// с максимальным |z|. Если на один символ в одной свече остались
// противоположные сигналы, остаётся только сигнал с большим |z|.
// При равенстве побеждает более ранний во входе.
// Результат упорядочен по убыванию |z|.
func Deduplicate(signals []*models.Signal) []*models.Signal {
	byType := keepStrongest(signals, (*models.Signal).DedupKey)
	out := keepStrongest(byType, func(s *models.Signal) string {
		return fmt.Sprintf("%s|%d", s.Symbol, s.Timestamp.UnixMilli())
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AbsZ() > out[j].AbsZ()
	})
	return out
}

// keepStrongest оставляет сигнал с максимальным |z| для каждого ключа,
// сохраняя порядок первого появления ключа
func keepStrongest(signals []*models.Signal, key func(*models.Signal) string) []*models.Signal {
	best := make(map[string]*models.Signal, len(signals))
	order := make([]string, 0, len(signals))

	for _, sig := range signals {
		k := key(sig)
		cur, ok := best[k]
		if !ok {
			order = append(order, k)
			best[k] = sig
			continue
		}
		if sig.AbsZ() > cur.AbsZ() {
			best[k] = sig
		}
	}

	out := make([]*models.Signal, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}
