// Package maintenance runs periodic background tasks as Go tickers: the
// engine tick that keeps notification timers recovered, and retention
// cleanup of old schedule days, announcement outages and ledger entries.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/prosvitlo/prosvitlo-data/internal/interval"
	"github.com/prosvitlo/prosvitlo-data/internal/notifications"
	"github.com/prosvitlo/prosvitlo-data/internal/schedule"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	TickInterval    time.Duration // Timer recovery and pruning
	CleanupInterval time.Duration // Retention cleanup

	// LedgerRetention bounds ledger entries, active days and announcement
	// outages by their calendar date.
	LedgerRetention time.Duration
	// ScheduleRetention is how long retired schedule revisions are kept.
	ScheduleRetention time.Duration
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:      time.Minute,
		CleanupInterval:   time.Hour,
		LedgerRetention:   7 * 24 * time.Hour,
		ScheduleRetention: 24 * time.Hour,
	}
}

// Ticker is the host tick hook of the engine.
type Ticker interface {
	OnTick(ctx context.Context) error
}

// Tasks holds what the maintenance tasks operate on.
type Tasks struct {
	Engine Ticker
	Store  schedule.Store
	Ledger notifications.Ledger
	Config Config
	Now    func() time.Time
	Logger *slog.Logger
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, tasks *Tasks) {
	cfg := tasks.Config
	if tasks.Now == nil {
		tasks.Now = time.Now
	}
	tasks.Logger.Info("Maintenance tickers started",
		"tick", cfg.TickInterval,
		"cleanup", cfg.CleanupInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// Tick: re-derive missed timers, drop finished ones
	if cfg.TickInterval > 0 && tasks.Engine != nil {
		t := time.NewTicker(cfg.TickInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, "tick", func() { tasks.Tick(ctx) })
	}

	// Cleanup: enforce retention on persisted state
	if cfg.CleanupInterval > 0 {
		t := time.NewTicker(cfg.CleanupInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, "cleanup", func() { tasks.Cleanup(ctx) })
	}

	<-ctx.Done()
	tasks.Logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, name string, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// Tick runs the engine's periodic recovery.
func (t *Tasks) Tick(ctx context.Context) {
	if err := t.Engine.OnTick(ctx); err != nil {
		t.Logger.Warn("Tick: timer recovery failed", "error", err)
	}
}

// CleanupResult counts the rows each cleanup step removed.
type CleanupResult struct {
	LedgerPurged         int64
	DaysRetired          int64
	DaysDeleted          int64
	AnnouncementsDeleted int64
}

// Cleanup retires days older than the retention window, deletes retired
// revisions past ScheduleRetention, and purges old ledger entries and
// announcement outages. Each step runs even when an earlier one fails.
func (t *Tasks) Cleanup(ctx context.Context) CleanupResult {
	var res CleanupResult
	now := t.now()
	cutoff := interval.DateOnly(now.Add(-t.Config.LedgerRetention))

	var err error
	if t.Ledger != nil {
		res.LedgerPurged, err = t.Ledger.Purge(ctx, cutoff)
		t.report("purged ledger entries", res.LedgerPurged, err)
	}

	res.DaysRetired, err = t.Store.RetireBefore(ctx, cutoff)
	t.report("retired old schedule days", res.DaysRetired, err)

	res.DaysDeleted, err = t.Store.DeleteRetired(ctx, now.Add(-t.Config.ScheduleRetention))
	t.report("deleted retired schedule revisions", res.DaysDeleted, err)

	res.AnnouncementsDeleted, err = t.Store.DeleteAnnouncementsBefore(ctx, cutoff)
	t.report("deleted old announcement outages", res.AnnouncementsDeleted, err)
	return res
}

func (t *Tasks) report(what string, n int64, err error) {
	if err != nil {
		t.Logger.Warn("Cleanup: failed", "task", what, "error", err)
		return
	}
	if n > 0 {
		t.Logger.Info("Cleanup: "+what, "count", n)
	}
}

func (t *Tasks) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}
