package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/thinh267/stat-arb/internal/bot"
	"github.com/thinh267/stat-arb/internal/cache"
	"github.com/thinh267/stat-arb/internal/config"
	"github.com/thinh267/stat-arb/internal/exchange"
	"github.com/thinh267/stat-arb/internal/repository"
	"github.com/thinh267/stat-arb/internal/scanner"
	"github.com/thinh267/stat-arb/internal/signal"
	"github.com/thinh267/stat-arb/pkg/utils"
)

// app - собранные компоненты процесса
type app struct {
	cfg *config.Config
	log *utils.Logger

	db      *sql.DB
	binance *exchange.Binance
	shared  cache.Store
	redis   *cache.RedisCache
	feed    *exchange.PriceFeed

	pairs     *repository.PairRepository
	rankings  *repository.RankingRepository
	signals   *repository.SignalRepository
	positions *repository.PositionRepository
	stats     *repository.StatsRepository

	refresher *scanner.Refresher
	scanner   *scanner.Scanner
	engine    *signal.Engine
	manager   *bot.Manager
}

// loadConfig загружает конфигурацию и инициализирует глобальный logger
func loadConfig() (*config.Config, *utils.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	return cfg, log, nil
}

// openDB подключается к PostgreSQL с настройками пула из конфигурации
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pool := repository.DefaultPoolSettings()
	pool.MaxOpenConns = cfg.Database.MaxOpenConns
	pool.MaxIdleConns = cfg.Database.MaxIdleConns
	return repository.Open(ctx, cfg.Database.DSN(), pool)
}

// newApp собирает все компоненты. withPrices запускает websocket
// поток mark-цен для монитора позиций.
func newApp(ctx context.Context, withPrices bool) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}

	a.db, err = openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	httpCfg := exchange.DefaultHTTPClientConfig()
	if cfg.Exchange.Timeout > 0 {
		httpCfg.TotalTimeout = cfg.Exchange.Timeout
	}
	a.binance = exchange.NewBinance(exchange.BinanceConfig{
		BaseURL:    cfg.Exchange.BaseURL,
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		RateLimit:  cfg.Exchange.RateLimit,
		QuoteAsset: cfg.Scanner.QuoteAsset,
	}, exchange.NewHTTPClient(httpCfg))

	a.shared = a.sharedCache(ctx)

	a.pairs = repository.NewPairRepository(a.db)
	a.rankings = repository.NewRankingRepository(a.db)
	a.signals = repository.NewSignalRepository(a.db)
	a.positions = repository.NewPositionRepository(a.db)
	a.stats = repository.NewStatsRepository(a.db)

	a.refresher = scanner.NewRefresher(cfg.Scanner, a.binance, a.pairs, a.rankings)
	a.scanner = scanner.NewScanner(cfg.Scanner, a.binance, a.shared, a.pairs, a.stats, a.refresher)

	a.engine, err = signal.NewEngine(cfg.Signal, a.binance, a.shared, a.rankings, a.pairs, a.signals)
	if err != nil {
		a.close()
		return nil, err
	}

	var prices exchange.PriceSource = a.binance
	if withPrices {
		a.feed = exchange.NewPriceFeed(cfg.Exchange.WSURL, a.binance, 0)
		if err := a.feed.Start(ctx); err != nil {
			log.Warn("mark price stream unavailable, using REST prices", zap.Error(err))
		}
		prices = a.feed
	}

	account := bot.NewAccount(cfg.Trading.DailyLimit)
	trader, err := exchange.NewTrader(cfg.Trading.Mode, a.binance, prices, account.Balance)
	if err != nil {
		a.close()
		return nil, err
	}

	a.manager = bot.NewManager(cfg.Trading, bot.Deps{
		Account:   account,
		Trader:    trader,
		Positions: a.positions,
		Signals:   a.signals,
		Ranks:     a.rankings,
		Pairs:     a.pairs,
		Prices:    prices,
		ZScores:   a.engine.Model(),
	})
	if err := a.manager.Restore(ctx); err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

// sharedCache возвращает общий кэш свечей: Redis, если настроен, иначе память.
// Недоступный Redis не фатален.
func (a *app) sharedCache(ctx context.Context) cache.Store {
	cfg := a.cfg.Cache
	if cfg.RedisAddr == "" {
		return cache.NewMemoryCache(cfg.TTL)
	}

	rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL)
	if err != nil {
		a.log.Warn("redis unavailable, using in-memory candle cache",
			zap.String("addr", cfg.RedisAddr),
			zap.Error(err))
		return cache.NewMemoryCache(cfg.TTL)
	}
	a.redis = rc
	a.log.Info("candle cache connected", zap.String("addr", cfg.RedisAddr))
	return rc
}

// close освобождает соединения
func (a *app) close() {
	if a.feed != nil {
		if err := a.feed.Close(); err != nil {
			a.log.Warn("failed to close price stream", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("failed to close database", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
