package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alejandrodnm/polyhedge/config"
	"github.com/alejandrodnm/polyhedge/internal/adapters/notify"
	"github.com/alejandrodnm/polyhedge/internal/adapters/storage"
	"github.com/alejandrodnm/polyhedge/internal/application/detector"
	"github.com/alejandrodnm/polyhedge/internal/application/executor"
	"github.com/alejandrodnm/polyhedge/internal/application/ledger"
	"github.com/alejandrodnm/polyhedge/internal/application/monitor"
	"github.com/alejandrodnm/polyhedge/internal/domain"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one scan cycle and exit")
	paper := flag.Bool("paper", true, "trade against simulated venues")
	mode := flag.String("mode", "", "execution mode: aggressive|passive|adaptive|timesliced (overrides config)")
	assets := flag.String("assets", "", "comma-separated assets to scan (overrides config)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full tables (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *mode != "" {
		cfg.Execution.Mode = *mode
	}
	if *assets != "" {
		cfg.Detector.Assets = strings.Split(*assets, ",")
	}
	setupLogger(cfg.Log)

	slog.Info("polyhedge starting",
		"config", *configPath,
		"interval", cfg.ScanInterval(),
		"assets", cfg.Detector.Assets,
		"mode", cfg.Execution.Mode,
		"paper", *paper,
		"once", *once,
	)

	if !*paper {
		// Los clientes de venue reales se inyectan aquí cuando existan.
		slog.Error("live venues not wired yet, run with -paper")
		os.Exit(1)
	}
	prediction, hedge := newPaperVenues(cfg)

	var store *storage.SQLiteStorage
	if !*once {
		store, err = storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()
	}

	notifier := notify.NewConsole(*table)

	ledgerCfg := ledger.Config{
		Limits: domain.RiskLimits{
			MaxConcurrentPositions:   cfg.Risk.MaxConcurrentPositions,
			MaxDailyTrades:           cfg.Risk.MaxDailyTrades,
			MaxPositionSizeUSD:       cfg.Detector.MaxPositionSizeUSD,
			MaxAssetConcentrationUSD: cfg.Risk.MaxAssetConcentrationUSD,
			FundingRateThreshold:     cfg.Detector.FundingRateThreshold,
		},
		BreakerMaxLosses: cfg.Risk.BreakerMaxLosses,
		BreakerCooldown:  time.Duration(cfg.Risk.BreakerCooldownMinutes) * time.Minute,
		MaxDrawdownUSD:   cfg.Risk.MaxDrawdownUSD,
	}
	if store != nil {
		ledgerCfg.Storage = store
	}
	book := ledger.New(ledgerCfg)

	det := detector.New(prediction, hedge, detector.Config{
		MinProfitUSD:         cfg.Detector.MinProfitUSD,
		MaxPositionSizeUSD:   cfg.Detector.MaxPositionSizeUSD,
		PredictionFraction:   cfg.Detector.PredictionFraction,
		HedgeFraction:        cfg.Detector.HedgeFraction,
		LiquidityFraction:    cfg.Detector.LiquidityFraction,
		MaxSidePrice:         cfg.Detector.MaxSidePrice,
		MinTargetDistancePct: cfg.Detector.MinTargetDistancePct,
		FundingRateThreshold: cfg.Detector.FundingRateThreshold,
		PredictionFeeRate:    cfg.Fees.PredictionFeeRate,
		HedgeTakerFeeRate:    cfg.Fees.HedgeTakerFeeRate,
		DefaultLeverage:      cfg.Execution.DefaultLeverage,
		RiskFreeRate:         cfg.Detector.RiskFreeRate,
		Workers:              cfg.Detector.AnalysisWorkers,
		RequestsPerSecond:    cfg.Detector.RequestsPerSecond,
	})

	validator := detector.NewValidator(prediction, hedge, detector.ValidatorConfig{
		MaxPriceDriftPct:     0.5,
		FundingRateThreshold: cfg.Detector.FundingRateThreshold,
		DefaultLeverage:      cfg.Execution.DefaultLeverage,
	})

	engine := executor.New(prediction, hedge, book, executor.Config{
		Mode: domain.ParseExecutionMode(cfg.Execution.Mode),
		Planner: executor.PlannerConfig{
			DefaultLeverage: cfg.Execution.DefaultLeverage,
			MaxLeverage:     cfg.Execution.MaxLeverage,
			HighProfitPct:   cfg.Execution.HighProfitPct,
			TimeBudget:      time.Duration(cfg.Execution.TimeBudgetSeconds) * time.Second,
		},
		StopLossPct:        cfg.Execution.StopLossPct,
		TakeProfitFraction: cfg.Execution.TakeProfitFraction,
		FundingHardLimit:   cfg.Detector.FundingRateThreshold * 2,
	})

	mon := monitor.New(hedge, book, monitor.Config{
		Interval:             cfg.MonitorInterval(),
		FundingRateThreshold: cfg.Detector.FundingRateThreshold,
		HardFundingMultiple:  cfg.Monitor.HardFundingMultiple,
	})

	app := &app{
		cfg:       cfg,
		detector:  det,
		validator: validator,
		engine:    engine,
		monitor:   mon,
		ledger:    book,
		notifier:  notifier,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		app.runCycle(ctx)
		return
	}

	app.run(ctx)
	slog.Info("polyhedge stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
