// Package poller runs the source poll cycles. Each source has its own cron
// entry, so a slow source never delays another, and an overrunning cycle of
// one source is skipped rather than stacked.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// pollTimeout bounds a single poll cycle of one source.
const pollTimeout = 2 * time.Minute

// Source is one independently polled upstream.
type Source interface {
	Name() string
	Poll(ctx context.Context) error
}

// Entry binds a source to its cron spec.
type Entry struct {
	Spec   string
	Source Source
}

// Poller owns the cron engine.
type Poller struct {
	cron    *cron.Cron
	entries []Entry
	workers int
	logger  *slog.Logger
}

// New validates the cron specs and prepares (but does not start) the poller.
func New(entries []Entry, workers int, loc *time.Location, logger *slog.Logger) (*Poller, error) {
	if workers < 1 {
		workers = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, e := range entries {
		if _, err := cron.ParseStandard(e.Spec); err != nil {
			return nil, fmt.Errorf("invalid cron spec %q for %s: %w", e.Spec, e.Source.Name(), err)
		}
	}
	cl := cronLogger{logger: logger}
	p := &Poller{
		cron:    cron.New(cron.WithLocation(loc), cron.WithLogger(cl)),
		entries: entries,
		workers: workers,
		logger:  logger,
	}
	return p, nil
}

// Start registers every source and runs the cron engine until ctx is
// cancelled. Intended to be called with `go`.
func (p *Poller) Start(ctx context.Context) error {
	chain := cron.NewChain(cron.Recover(cronLogger{logger: p.logger}), cron.SkipIfStillRunning(cronLogger{logger: p.logger}))
	for _, e := range p.entries {
		src := e.Source
		job := chain.Then(cron.FuncJob(func() {
			p.pollOne(ctx, src)
		}))
		if _, err := p.cron.AddJob(e.Spec, job); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", src.Name(), e.Spec, err)
		}
		p.logger.Info("Source scheduled", "source", src.Name(), "spec", e.Spec)
	}

	p.cron.Start()
	p.logger.Info("Poller started", "sources", len(p.entries))

	<-ctx.Done()
	stopped := p.cron.Stop()
	<-stopped.Done()
	p.logger.Info("Poller stopped")
	return nil
}

// RunOnce polls every source once, at most workers at a time, and joins
// their errors.
func (p *Poller) RunOnce(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(p.workers)
	for _, e := range p.entries {
		src := e.Source
		g.Go(func() error {
			if err := p.pollOne(ctx, src); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (p *Poller) pollOne(ctx context.Context, src Source) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	start := time.Now()
	if err := src.Poll(ctx); err != nil {
		p.logger.Warn("Poll failed", "source", src.Name(), "error", err)
		return fmt.Errorf("%s: %w", src.Name(), err)
	}
	p.logger.Debug("Poll complete", "source", src.Name(), "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("Cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("Cron: "+msg, append(keysAndValues, "error", err)...)
}
