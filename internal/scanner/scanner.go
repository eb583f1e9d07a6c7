// Package scanner - поиск коинтегрированных пар и их периодическое
// переранжирование.
package scanner

import (
	"context"
	"errors"
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

// volatilityPeriods - число часовых свечей в сутках для масштабирования волатильности
const volatilityPeriods = 24

// errFiltered - пара не прошла порог корреляции или коинтеграции.
// Это штатный отсев, а не сбой.
var errFiltered = errors.New("filtered")

// CointegrationFunc - тест коинтеграции y по x
type CointegrationFunc func(y, x []float64) (quant.CointResult, error)

// Scanner - поиск пар
//
// Прогон состоит из фаз, каждая из которых - барьер над пулом воркеров:
//
//	universe → объём (top percentile) → качество данных → анализ пар → отбор top-N
//
// Символ или пара, на которых произошла ошибка, исключаются только из
// текущего прогона. Свечи одного символа внутри прогона берутся из кэша,
// поэтому все пары видят одну и ту же серию.
type Scanner struct {
	cfg       config.ScannerConfig
	market    exchange.MarketData
	shared    cache.Store // общий кэш (Redis), может быть nil
	pairs     PairStore
	stats     StatsStore
	refresher *Refresher
	coint     CointegrationFunc

	now func() time.Time
	log *utils.Logger
}

// NewScanner создаёт сканер
func NewScanner(cfg config.ScannerConfig, market exchange.MarketData, shared cache.Store,
	pairs PairStore, stats StatsStore, refresher *Refresher) *Scanner {
	return &Scanner{
		cfg:       cfg,
		market:    market,
		shared:    shared,
		pairs:     pairs,
		stats:     stats,
		refresher: refresher,
		coint:     quant.Cointegration,
		now:       time.Now,
		log:       utils.L().WithComponent("scanner"),
	}
}

// ScanResult - итог прогона
type ScanResult struct {
	Universe         int
	VolumeSurvivors  int
	QualitySurvivors int
	PairsAnalyzed    int
	Candidates       int
	Selected         []*models.Pair
	Stats            *models.CorrelationStats
	Ranking          []models.RankingSnapshot
	Duration         time.Duration
}

// symbolSeries - символ вместе с историей, прошедшей проверку качества
type symbolSeries struct {
	symbol  string
	candles []models.Candle
}

type volumeEntry struct {
	symbol string
	volume float64
}

// Run выполняет полный прогон поиска пар
func (s *Scanner) Run(ctx context.Context) (*ScanResult, error) {
	start := s.now()
	res := &ScanResult{}

	// Кэш свечей живёт ровно один прогон
	src := cache.NewCachedSource(s.market, cache.NewTiered(cache.NewMemoryCache(0), s.shared))

	symbols, err := s.universe(ctx, src)
	if err != nil {
		return nil, err
	}
	res.Universe = len(symbols)
	PhaseSurvivors.WithLabelValues("universe").Set(float64(len(symbols)))

	liquid := s.volumePhase(ctx, src, symbols)
	res.VolumeSurvivors = len(liquid)

	series := s.qualityPhase(ctx, src, liquid)
	res.QualitySurvivors = len(series)
	if len(series) < 2 {
		s.log.Warn("not enough symbols for pair analysis", zap.Int("symbols", len(series)))
		res.Duration = s.now().Sub(start)
		return res, nil
	}

	candidates, analyzed := s.pairPhase(ctx, series)
	res.PairsAnalyzed = analyzed
	res.Candidates = len(candidates)

	if len(candidates) > 0 {
		res.Stats = correlationStats(candidates, utils.GetDayStartFrom(start))
	}

	selected := s.selectTop(candidates, utils.GetDayStartFrom(start))
	PairsSelected.Set(float64(len(selected)))
	if len(selected) == 0 {
		s.log.Warn("no pairs passed correlation and cointegration filters",
			zap.Int("analyzed", analyzed))
		res.Duration = s.now().Sub(start)
		return res, nil
	}

	err = retry.Run(ctx, retry.Persistence(), func(ctx context.Context) error {
		return s.pairs.CreateBatch(ctx, selected)
	})
	if err != nil {
		return nil, fmt.Errorf("persist pairs: %w: %w", models.ErrTransientRemote, err)
	}
	res.Selected = selected

	if res.Stats != nil {
		if err := s.stats.Save(ctx, res.Stats); err != nil {
			s.log.Error("failed to save correlation stats", zap.Error(err))
		}
	}

	// Первый снимок ранжирования сразу после отбора
	if s.refresher != nil {
		ranking, err := s.refresher.RefreshPairs(ctx, selected)
		if err != nil {
			s.log.Error("failed to seed ranking snapshot", zap.Error(err))
		}
		res.Ranking = ranking
	}

	res.Duration = s.now().Sub(start)
	s.log.Info("pair discovery completed",
		zap.Int("universe", res.Universe),
		zap.Int("volume_survivors", res.VolumeSurvivors),
		zap.Int("quality_survivors", res.QualitySurvivors),
		zap.Int("pairs_analyzed", res.PairsAnalyzed),
		zap.Int("candidates", res.Candidates),
		zap.Int("selected", len(res.Selected)),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// universe возвращает торгуемые символы, отсортированные по имени
func (s *Scanner) universe(ctx context.Context, src exchange.MarketData) ([]string, error) {
	infos, err := src.Universe(ctx)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}

	excluded := make(map[string]bool, len(s.cfg.ExcludeSymbols))
	for _, sym := range s.cfg.ExcludeSymbols {
		excluded[sym] = true
	}

	symbols := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Tradable(s.cfg.QuoteAsset) && !excluded[info.Symbol] {
			symbols = append(symbols, info.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ============================================================
// Фаза 1: объём
// ============================================================

// volumePhase оставляет верхний перцентиль символов по объёму в quote-валюте
// (close × volume) за последние VolumeLookback свечей
func (s *Scanner) volumePhase(ctx context.Context, src exchange.MarketData, symbols []string) []string {
	defer observePhase("volume", s.now())

	outcomes := workerpool.Process(ctx, s.cfg.VolumeWorkers, symbols, func(ctx context.Context, sym string) (volumeEntry, error) {
		candles, err := src.Candles(ctx, sym, s.cfg.Interval, s.cfg.VolumeLookback)
		if err != nil {
			return volumeEntry{}, err
		}
		var total float64
		for _, c := range candles {
			total += c.Close * c.Volume
		}
		if math.IsNaN(total) {
			return volumeEntry{}, fmt.Errorf("%w: NaN volume", models.ErrDataQuality)
		}
		return volumeEntry{symbol: sym, volume: total}, nil
	})

	entries := workerpool.Values(outcomes, func(i int, err error) {
		s.dropUnit("volume", symbols[i], err)
	})

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].volume > entries[j].volume
	})

	keep := int(math.Ceil(float64(len(entries)) * s.cfg.TopVolumePercentile / 100))
	if keep > len(entries) {
		keep = len(entries)
	}

	out := make([]string, keep)
	for i := 0; i < keep; i++ {
		out[i] = entries[i].symbol
	}
	PhaseSurvivors.WithLabelValues("volume").Set(float64(keep))
	s.log.Info("volume phase completed", zap.Int("symbols", len(symbols)), zap.Int("kept", keep))
	return out
}

// ============================================================
// Фаза 2: качество данных
// ============================================================

func (s *Scanner) qualityPhase(ctx context.Context, src exchange.MarketData, symbols []string) []symbolSeries {
	defer observePhase("quality", s.now())

	outcomes := workerpool.Process(ctx, s.cfg.QualityWorkers, symbols, func(ctx context.Context, sym string) (symbolSeries, error) {
		candles, err := src.Candles(ctx, sym, s.cfg.Interval, s.cfg.Lookback)
		if err != nil {
			return symbolSeries{}, err
		}
		if err := checkQuality(candles, s.cfg.MinCandles); err != nil {
			return symbolSeries{}, err
		}
		return symbolSeries{symbol: sym, candles: candles}, nil
	})

	out := workerpool.Values(outcomes, func(i int, err error) {
		s.dropUnit("quality", symbols[i], err)
	})
	PhaseSurvivors.WithLabelValues("quality").Set(float64(len(out)))
	s.log.Info("quality phase completed", zap.Int("symbols", len(symbols)), zap.Int("kept", len(out)))
	return out
}

// checkQuality отсеивает символы с короткой, константной, NaN историей
// или нулевым объёмом
func checkQuality(candles []models.Candle, minCandles int) error {
	if len(candles) < minCandles {
		return fmt.Errorf("%w: %d candles, need %d", models.ErrDataQuality, len(candles), minCandles)
	}
	closes := models.Closes(candles)
	volumes := models.Volumes(candles)

	if quant.HasNaN(closes) || quant.HasNaN(volumes) {
		return fmt.Errorf("%w: NaN in series", models.ErrDataQuality)
	}
	if quant.StdDev(closes) == 0 || quant.UniqueCount(closes) <= 1 {
		return fmt.Errorf("%w: constant price", models.ErrDataQuality)
	}
	var total float64
	for _, v := range volumes {
		total += v
	}
	if total == 0 {
		return fmt.Errorf("%w: zero volume", models.ErrDataQuality)
	}
	return nil
}

// ============================================================
// Фаза 3: анализ пар
// ============================================================

type pairJob struct {
	a, b symbolSeries
}

func (s *Scanner) pairPhase(ctx context.Context, series []symbolSeries) ([]*models.Pair, int) {
	defer observePhase("pairs", s.now())

	jobs := make([]pairJob, 0, len(series)*(len(series)-1)/2)
	for i := 0; i < len(series); i++ {
		for j := i + 1; j < len(series); j++ {
			jobs = append(jobs, pairJob{a: series[i], b: series[j]})
		}
	}

	outcomes := workerpool.Process(ctx, s.cfg.PairWorkers, jobs, func(ctx context.Context, job pairJob) (*models.Pair, error) {
		return s.analyzePair(job.a, job.b)
	})

	var filtered int
	candidates := make([]*models.Pair, 0)
	for _, o := range outcomes {
		if o.Err != nil {
			if errors.Is(o.Err, errFiltered) {
				filtered++
				continue
			}
			job := jobs[o.Index]
			s.dropUnit("pairs", job.a.symbol+"/"+job.b.symbol, o.Err)
			continue
		}
		candidates = append(candidates, o.Value)
	}

	PhaseSurvivors.WithLabelValues("pairs").Set(float64(len(candidates)))
	s.log.Info("pair phase completed",
		zap.Int("pairs", len(jobs)),
		zap.Int("filtered", filtered),
		zap.Int("candidates", len(candidates)))
	return candidates, len(jobs)
}

// analyzePair считает корреляцию, скользящую корреляцию и тест
// коинтеграции по выровненным по времени закрытиям
func (s *Scanner) analyzePair(a, b symbolSeries) (*models.Pair, error) {
	closesA, closesB, _ := models.AlignCandles(a.candles, b.candles)
	if len(closesA) < s.cfg.MinCandles {
		return nil, fmt.Errorf("%w: %d aligned candles", models.ErrDataQuality, len(closesA))
	}

	corr := quant.Pearson(closesA, closesB)
	if math.IsNaN(corr) {
		return nil, fmt.Errorf("%w: correlation", models.ErrStatisticalUndefined)
	}
	if math.Abs(corr) < s.cfg.CorrelationThreshold {
		return nil, fmt.Errorf("%w: correlation %.4f", errFiltered, corr)
	}

	rolling := quant.RollingCorrelationMean(closesA, closesB, s.cfg.RollingWindow)

	ct, err := s.coint(closesA, closesB)
	if err != nil {
		return nil, fmt.Errorf("%w: cointegration: %v", models.ErrStatisticalUndefined, err)
	}
	if math.IsNaN(ct.PValue) {
		return nil, fmt.Errorf("%w: cointegration p-value", models.ErrStatisticalUndefined)
	}
	if ct.PValue >= s.cfg.CointegrationPValue {
		return nil, fmt.Errorf("%w: p-value %.4f", errFiltered, ct.PValue)
	}

	vol1 := quant.Volatility(closesA, volatilityPeriods)
	vol2 := quant.Volatility(closesB, volatilityPeriods)
	if math.IsNaN(vol1) || math.IsNaN(vol2) {
		return nil, fmt.Errorf("%w: volatility", models.ErrStatisticalUndefined)
	}

	return &models.Pair{
		Pair1:               a.symbol,
		Pair2:               b.symbol,
		Correlation:         corr,
		RollingCorrelation:  rolling,
		CointegrationPValue: ct.PValue,
		IsCointegrated:      true,
		Volatility1:         vol1,
		Volatility2:         vol2,
	}, nil
}

// ============================================================
// Фаза 4: отбор
// ============================================================

// selectTop сортирует кандидатов по корреляции и присваивает ранги 1..N
func (s *Scanner) selectTop(candidates []*models.Pair, date time.Time) []*models.Pair {
	sorted := make([]*models.Pair, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Correlation > sorted[j].Correlation
	})

	n := s.cfg.TopN
	if n > len(sorted) {
		n = len(sorted)
	}
	selected := sorted[:n]
	for i, p := range selected {
		p.Rank = i + 1
		p.Date = date
	}
	return selected
}

// correlationStats - сводка корреляций всех пар, прошедших анализ
func correlationStats(candidates []*models.Pair, date time.Time) *models.CorrelationStats {
	corrs := make([]float64, len(candidates))
	for i, p := range candidates {
		corrs[i] = p.Correlation
	}

	st := &models.CorrelationStats{
		Date:   date,
		Count:  len(corrs),
		Mean:   quant.Mean(corrs),
		Median: quant.Median(corrs),
		Min:    corrs[0],
		Max:    corrs[0],
	}
	if len(corrs) > 1 {
		st.Std = quant.StdDev(corrs)
	}
	for _, c := range corrs {
		st.Min = math.Min(st.Min, c)
		st.Max = math.Max(st.Max, c)
	}
	return st
}

// dropUnit логирует исключение символа или пары из прогона
func (s *Scanner) dropUnit(phase, unit string, err error) {
	class := models.ErrorClass(err)
	UnitFailures.WithLabelValues(phase, class).Inc()
	s.log.Warn("unit dropped from scan",
		zap.String("phase", phase),
		zap.String("unit", unit),
		zap.String("class", class),
		zap.Error(err))
}

func observePhase(phase string, start time.Time) {
	PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}
