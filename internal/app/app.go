// Package app assembles the service from configuration. Both commands use
// it: cmd/api runs every component, cmd/ingest drives single operations.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prosvitlo/prosvitlo-data/internal/cache"
	"github.com/prosvitlo/prosvitlo-data/internal/changes"
	"github.com/prosvitlo/prosvitlo-data/internal/colortable"
	"github.com/prosvitlo/prosvitlo-data/internal/config"
	"github.com/prosvitlo/prosvitlo-data/internal/db"
	"github.com/prosvitlo/prosvitlo-data/internal/engine"
	"github.com/prosvitlo/prosvitlo-data/internal/interval"
	"github.com/prosvitlo/prosvitlo-data/internal/maintenance"
	"github.com/prosvitlo/prosvitlo-data/internal/metrics"
	"github.com/prosvitlo/prosvitlo-data/internal/notifications"
	"github.com/prosvitlo/prosvitlo-data/internal/poller"
	"github.com/prosvitlo/prosvitlo-data/internal/schedule"
	"github.com/prosvitlo/prosvitlo-data/internal/source"
)

// App holds the wired components.
type App struct {
	Config    *config.Config
	Pool      *db.Pool // nil when running in memory
	Store     schedule.Store
	Ledger    notifications.Ledger
	Hashes    changes.Store
	Scheduler *notifications.Scheduler
	Engine    *engine.Engine
	Fetcher   *source.Fetcher
	Cache     *cache.Cache
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	closers []func()
}

// Build connects the configured backends and wires the engine. Without a
// DATABASE_URL every store lives in memory.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Metrics: metrics.New(),
		Cache:   cache.New(cfg.CacheEnabled, cfg.CacheTTL),
		Logger:  logger,
	}

	if cfg.HasDatabase() {
		logger.Info("Connecting to database...")
		pool, err := db.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := db.Migrate(ctx, pool.Pool); err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("Database connected",
			"min_conns", cfg.DBPoolMinConns,
			"max_conns", cfg.DBPoolMaxConns)
		a.Pool = pool
		a.Store = schedule.NewPgStore(pool.Pool)
		a.Ledger = notifications.NewPgLedger(pool.Pool)
		a.Hashes = changes.NewPgStore(pool.Pool)
	} else {
		logger.Warn("DATABASE_URL not set, state is kept in memory only")
		a.Store = schedule.NewMemoryStore()
		a.Ledger = notifications.NewMemoryLedger()
		a.Hashes = changes.NewMemoryStore()
	}

	if cfg.RedisURL != "" {
		rs, err := changes.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { rs.Close() })
		a.Hashes = rs
		logger.Info("Source hashes shared through Redis")
	}

	classifier, err := colortable.NewClassifier(cfg.ColorClassifier)
	if err != nil {
		a.Close()
		return nil, err
	}
	parser := colortable.NewParser(colortable.DefaultGeometry(), classifier, logger)

	sender, err := notifications.BuildSender(cfg.PushGatewayURL, cfg.PushAPIKey,
		cfg.TelegramToken, cfg.TelegramChannel, cfg.FetchTimeout, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build sender: %w", err)
	}

	a.Scheduler = notifications.NewScheduler(a.Store, a.Ledger, sender, notifications.Options{
		Region:  cfg.Region,
		Planner: notifications.NewPlanner(cfg.NotifyLead, cfg.NotifyPossible, cfg.Location),
		Metrics: a.Metrics,
	}, logger)

	a.Engine = engine.New(changes.NewDetector(a.Hashes, logger), parser, a.Store, a.Scheduler, engine.Options{
		Region:       cfg.Region,
		Location:     cfg.Location,
		ParseWorkers: cfg.ParseWorkers,
		Metrics:      a.Metrics,
		OnChange:     a.InvalidateSchedule,
	}, logger)

	a.Fetcher = source.NewFetcher(source.FetcherConfig{
		Timeout:       cfg.FetchTimeout,
		RatePerSecond: cfg.FetchRatePerSecond,
		UserAgent:     cfg.UserAgent,
	}, a.Metrics, logger)

	logger.Info("Engine ready",
		"region", cfg.Region,
		"classifier", classifier.Name(),
		"lead", cfg.NotifyLead,
		"possible", cfg.NotifyPossible)
	return a, nil
}

// Poller builds the cron poller over the configured source pages.
func (a *App) Poller() (*poller.Poller, error) {
	cfg := a.Config
	var entries []poller.Entry
	if cfg.SchedulePageURL != "" {
		entries = append(entries, poller.Entry{
			Spec: cfg.ScheduleCron,
			Source: &poller.SchedulePage{
				URL:      cfg.SchedulePageURL,
				Fetcher:  a.Fetcher,
				Ingester: a.Engine,
				Logger:   a.Logger,
			},
		})
	}
	for _, url := range cfg.AnnouncementPageURLs {
		entries = append(entries, poller.Entry{
			Spec: cfg.AnnouncementCron,
			Source: &poller.AnnouncementPage{
				URL:      url,
				Fetcher:  a.Fetcher,
				Ingester: a.Engine,
				Logger:   a.Logger,
			},
		})
	}
	return poller.New(entries, cfg.PollWorkers, cfg.Location, a.Logger)
}

// Maintenance returns the periodic tasks over the app's stores.
func (a *App) Maintenance() *maintenance.Tasks {
	mc := maintenance.DefaultConfig()
	mc.TickInterval = a.Config.MaintenanceInterval
	mc.LedgerRetention = time.Duration(a.Config.LedgerRetentionDays) * 24 * time.Hour
	mc.ScheduleRetention = a.Config.ScheduleRetention
	return &maintenance.Tasks{
		Engine: a.Engine,
		Store:  a.Store,
		Ledger: a.Ledger,
		Config: mc,
		Logger: a.Logger,
	}
}

// InvalidateSchedule drops the cached schedule responses of date.
func (a *App) InvalidateSchedule(date time.Time) {
	a.Cache.InvalidatePrefix("schedule:" + date.Format(interval.DateLayout))
}

// Close releases backend connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
