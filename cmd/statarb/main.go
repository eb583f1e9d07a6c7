package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thinh267/stat-arb/internal/api"
	"github.com/thinh267/stat-arb/internal/repository"
	"github.com/thinh267/stat-arb/internal/scheduler"
	"github.com/thinh267/stat-arb/pkg/utils"
)

// Имена задач планировщика (POST /api/v1/jobs/{name})
const (
	jobScan    = "scan"
	jobRank    = "rank"
	jobSignals = "signals"
	jobOpen    = "open"
	jobMonitor = "monitor"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "statarb",
	Short: "Statistical arbitrage engine for crypto perpetual futures",
	Long: `statarb discovers correlated and cointegrated pairs of USDT-M perpetual
contracts, keeps an hourly ranking of them, emits mean-reversion signals
from the spread z-score and manages the resulting positions.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configFile != "" {
			os.Setenv("CONFIG_FILE", configFile)
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all loops and the ops HTTP server",
	RunE:  runAll,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one pair discovery pass",
	RunE: withApp(false, func(ctx context.Context, a *app) error {
		res, err := a.scanner.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("universe=%d volume=%d quality=%d candidates=%d selected=%d duration=%s\n",
			res.Universe, res.VolumeSurvivors, res.QualitySurvivors, res.Candidates, len(res.Selected), res.Duration)
		for _, p := range res.Selected {
			fmt.Printf("%2d  %-14s %-14s corr=%.4f p=%.4f\n", p.Rank, p.Pair1, p.Pair2, p.Correlation, p.CointegrationPValue)
		}
		return nil
	}),
}

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Refresh the ranking of the latest discovered pairs",
	RunE: withApp(false, func(ctx context.Context, a *app) error {
		rows, err := a.refresher.Refresh(ctx)
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Printf("%2d  pair=%d corr=%.4f vol=%.6f/%.6f\n", r.Rank, r.PairID, r.Correlation, r.Volatility1, r.Volatility2)
		}
		return nil
	}),
}

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Run one signal generation pass",
	RunE: withApp(false, func(ctx context.Context, a *app) error {
		res, err := a.engine.Generate(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("pairs=%d candidates=%d saved=%d duplicates=%d failed=%d\n",
			res.Pairs, res.Candidates, res.Saved, res.Duplicates, res.Failed)
		for _, s := range res.Signals {
			fmt.Printf("%-4s %-14s z=%+.3f entry=%.4f tp=%.4f sl=%.4f %s\n",
				s.SignalType, s.Symbol, s.ZScore, s.EntryPrice, s.TakeProfit, s.StopLoss, s.Details)
		}
		return nil
	}),
}

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open positions for recent signals",
	RunE: withApp(false, func(ctx context.Context, a *app) error {
		res, err := a.manager.OpenFromSignals(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("signals=%d opened=%d rejected=%d failed=%d balance=%.4f\n",
			res.Signals, res.Opened, res.Rejected, res.Failed, a.manager.Account().Balance())
		return nil
	}),
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run one position monitoring pass",
	RunE: withApp(false, func(ctx context.Context, a *app) error {
		res, err := a.manager.Monitor(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("checked=%d closed=%d open=%d errors=%d balance=%.4f\n",
			res.Checked, res.Closed, res.Open, res.Errors, a.manager.Account().Balance())
		return nil
	}),
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := ossignal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := repository.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("schema migrated")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML overlay file (overrides CONFIG_FILE)")
	rootCmd.AddCommand(runCmd, scanCmd, rankCmd, signalsCmd, openCmd, monitorCmd, migrateCmd)
}

// withApp собирает компоненты, выполняет fn и освобождает ресурсы
func withApp(withPrices bool, fn func(ctx context.Context, a *app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := ossignal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		a, err := newApp(ctx, withPrices)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, a)
	}
}

// runAll запускает планировщик со всеми циклами и служебный HTTP сервер
func runAll(cmd *cobra.Command, args []string) error {
	ctx, cancel := ossignal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := buildScheduler(a)
	if err != nil {
		return err
	}

	router := api.SetupRoutes(&api.Dependencies{
		DB:         a.db,
		Jobs:       sched,
		APIKeyHash: a.cfg.Security.APIKeyHash,
	})
	server := &http.Server{
		Addr:         a.cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		a.log.Info("starting ops server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("ops server failed", zap.Error(err))
			cancel()
		}
	}()

	a.log.Info("statarb started",
		zap.String("mode", a.cfg.Trading.Mode),
		zap.String("strategy", a.cfg.Signal.Strategy),
		zap.Strings("jobs", sched.Jobs()))

	err = sched.Run(ctx)

	a.log.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		a.log.Error("ops server forced to shutdown", zap.Error(serr))
	}
	return err
}

// buildScheduler регистрирует циклы:
//   - scan: раз в сутки в DAILY_SCAN_TIME
//   - rank: каждые HOURLY_UPDATE_INTERVAL
//   - signals: на границах SIGNAL_CHECK_INTERVAL
//   - open: каждые OPEN_INTERVAL
//   - monitor: 2s при открытых позициях, 5m в простое, сразу после открытия
func buildScheduler(a *app) (*scheduler.Scheduler, error) {
	daily, err := scheduler.ParseDaily(a.cfg.Schedule.DailyScanTime)
	if err != nil {
		return nil, err
	}

	s := scheduler.New()
	jobs := []scheduler.Job{
		{
			Name:     jobScan,
			Schedule: daily,
			Task: func(ctx context.Context) error {
				_, err := a.scanner.Run(ctx)
				return err
			},
		},
		{
			Name:     jobRank,
			Schedule: scheduler.Every(a.cfg.Schedule.HourlyUpdateInterval),
			Task: func(ctx context.Context) error {
				_, err := a.refresher.Refresh(ctx)
				return err
			},
		},
		{
			Name:     jobSignals,
			Schedule: scheduler.Aligned(a.cfg.Schedule.SignalCheckInterval),
			Task: func(ctx context.Context) error {
				_, err := a.engine.Generate(ctx)
				return err
			},
		},
		{
			Name:     jobOpen,
			Schedule: scheduler.Every(a.cfg.Trading.OpenInterval),
			Task: func(ctx context.Context) error {
				_, err := a.manager.OpenFromSignals(ctx)
				return err
			},
		},
		{
			Name:       jobMonitor,
			Schedule:   scheduler.Adaptive(a.manager.Interval),
			RunOnStart: true,
			Task: func(ctx context.Context) error {
				_, err := a.manager.Monitor(ctx)
				return err
			},
		},
	}
	for _, j := range jobs {
		if err := s.Register(j); err != nil {
			return nil, err
		}
	}

	// новая позиция не ждёт длинного интервала простоя
	a.manager.OnOpened(func() {
		if _, err := s.Trigger(jobMonitor); err != nil {
			a.log.Warn("failed to trigger monitor", zap.Error(err))
		}
	})
	return s, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		utils.L().Error("command failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
