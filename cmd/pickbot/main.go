package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/pickbot/config"
	"github.com/alejandrodnm/pickbot/internal/adapters/feeds"
	"github.com/alejandrodnm/pickbot/internal/adapters/notify"
	"github.com/alejandrodnm/pickbot/internal/adapters/storage"
	"github.com/alejandrodnm/pickbot/internal/application/engine"
	"github.com/alejandrodnm/pickbot/internal/application/stability"
	"github.com/alejandrodnm/pickbot/internal/clock"
	"github.com/alejandrodnm/pickbot/internal/domain"
	"github.com/alejandrodnm/pickbot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "generate today's picks once and exit")
	rotate := flag.Bool("rotate", false, "force rotation for both scopes and exit")
	settle := flag.Bool("settle", false, "run one settlement cycle and exit")
	dryRun := flag.Bool("dry-run", false, "use local fixtures instead of the real feeds")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full pick cards (default: compact 1-line)")
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
	setupLogger(cfg.Log)

	slog.Info("pickbot starting",
		"config", *configPath,
		"sport", cfg.Engine.Sport,
		"checkpoint", cfg.Engine.Checkpoint,
		"tz", cfg.Engine.Timezone,
		"poll_interval", cfg.PollInterval(),
		"dry_run", *dryRun,
	)

	loc, err := cfg.Location()
	if err != nil {
		slog.Error("invalid timezone", "err", err)
		os.Exit(1)
	}
	hour, minute, err := cfg.CheckpointTime()
	if err != nil {
		slog.Error("invalid checkpoint", "err", err)
		os.Exit(1)
	}

	var catalog ports.EventCatalog
	var quotes ports.QuoteFeed
	var enrich ports.EnrichmentFeed
	var results ports.ResultFeed
	if *dryRun {
		fx := feeds.NewFixtures(time.Now())
		catalog, quotes, enrich, results = fx, fx, fx, fx
	} else {
		client := feeds.NewClient(cfg.Feeds.BaseURL, cfg.Feeds.APIKey)
		catalog, quotes, enrich, results = client, client, client, client
	}

	dsn := cfg.Storage.DSN
	if *dryRun {
		dsn = ":memory:"
	}
	store, err := storage.New(dsn)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", dsn)
		os.Exit(1)
	}
	defer store.Close()

	clk := clock.System{}
	guard := stability.New(store, clk)
	scorer := domain.NewScorer(rand.New(rand.NewSource(time.Now().UnixNano())))
	notifier := notify.NewConsole(*table)

	engCfg := engine.DefaultConfig()
	engCfg.Sport = cfg.Engine.Sport
	engCfg.Window = cfg.Window()
	engCfg.Location = loc
	engCfg.MinGrade = domain.Grade(cfg.Engine.MinGrade)
	engCfg.Units = cfg.Engine.Units
	engCfg.CheckpointHour = hour
	engCfg.CheckpointMin = minute
	engCfg.PollInterval = cfg.PollInterval()
	engCfg.SettleLookback = cfg.SettleLookback()
	engCfg.MissWarnAfter = cfg.Engine.MissWarnAfter

	eng := engine.New(engCfg, catalog, quotes, enrich, results, store, guard, scorer, notifier, clk)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *settle:
		runSettle(ctx, eng, engCfg.SettleLookback)
		return
	case *rotate:
		runScopes(ctx, eng.ForceRotate)
		return
	case *once, *dryRun:
		runScopes(ctx, eng.GenerateToday)
		return
	}

	sched := engine.NewScheduler(eng)
	sched.Start(ctx)
	<-ctx.Done()
	sched.Stop()

	slog.Info("pickbot stopped cleanly")
}

func runScopes(ctx context.Context, gen func(context.Context, domain.Scope) (*domain.Pick, error)) {
	for _, scope := range domain.Scopes {
		pick, err := gen(ctx, scope)
		if err != nil {
			slog.Error("generation failed", "scope", scope, "err", err)
			os.Exit(1)
		}
		if pick == nil {
			slog.Warn("no pick available", "scope", scope)
		}
	}
}

func runSettle(ctx context.Context, eng *engine.Engine, lookback time.Duration) {
	now := time.Now()
	n, err := eng.GradePending(ctx, now.Add(-lookback), now)
	if err != nil {
		slog.Error("settlement failed", "err", err)
		os.Exit(1)
	}
	slog.Info("settlement complete", "settled", n)
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
