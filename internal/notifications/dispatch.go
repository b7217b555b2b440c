package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prosvitlo/prosvitlo-data/internal/metrics"
	"github.com/prosvitlo/prosvitlo-data/internal/schedule"
)

// Timer is the handle of an armed callback.
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options configures a Scheduler. Now and After are injectable for tests.
type Options struct {
	Region  string
	Planner Planner
	Now     func() time.Time
	After   AfterFunc
	Metrics *metrics.Metrics
}

// Scheduler owns the in-memory timers of one region. All timer state sits
// behind mu; ledger and sender calls happen outside it.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[EventKey]*entry
	baseCtx context.Context

	store   schedule.Store
	ledger  Ledger
	sender  Sender
	planner Planner
	region  string
	now     func() time.Time
	after   AfterFunc
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type entry struct {
	event Event
	state State
	timer Timer
}

// NewScheduler wires a scheduler. A nil sender logs instead of delivering.
func NewScheduler(store schedule.Store, ledger Ledger, sender Sender, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if sender == nil {
		sender = NewLogSender(logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.After == nil {
		opts.After = realAfterFunc
	}
	if opts.Planner.Location == nil {
		opts.Planner = NewPlanner(opts.Planner.Lead, opts.Planner.NotifyPossible, nil)
	}
	return &Scheduler{
		timers:  make(map[EventKey]*entry),
		baseCtx: context.Background(),
		store:   store,
		ledger:  ledger,
		sender:  sender,
		planner: opts.Planner,
		region:  opts.Region,
		now:     opts.Now,
		after:   opts.After,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Planner returns the scheduler's planner.
func (s *Scheduler) Planner() Planner { return s.planner }

// Start recovers timers and binds timer callbacks to ctx. Blocks until ctx is
// cancelled, then stops every pending timer. Intended to be called with `go`.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	if err := s.Recover(ctx); err != nil {
		s.logger.Error("Timer recovery failed", "error", err)
	}
	s.logger.Info("Notification scheduler started", "region", s.region, "lead", s.planner.Lead)

	<-ctx.Done()
	s.Stop()
	s.logger.Info("Notification scheduler stopped")
}

// Stop cancels all pending timers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.timers {
		if e.state == StatePending && e.timer != nil {
			e.timer.Stop()
		}
	}
}

// --------------------------------------------------------------------------
// Arming
// --------------------------------------------------------------------------

// arm registers a pending timer for ev unless it is already recorded or
// already armed from the same source. Returns true if a timer was armed.
// Caller holds mu.
func (s *Scheduler) arm(ev Event, recorded map[EventKey]bool, now time.Time) bool {
	if recorded[ev.Key] {
		return false
	}
	if cur, ok := s.timers[ev.Key]; ok {
		switch cur.state {
		case StateFired, StateRecorded:
			return false
		case StatePending:
			if cur.event.Source == ev.Source && cur.event.FireAt.Equal(ev.FireAt) && cur.event.End.Equal(ev.End) {
				return false
			}
			cur.timer.Stop()
		}
	}

	delay := ev.FireAt.Sub(now)
	if delay <= 0 {
		// The window is over; a late notice would be noise.
		if !now.Before(ev.End) {
			delete(s.timers, ev.Key)
			return false
		}
		delay = 0
	}

	key := ev.Key
	e := &entry{event: ev, state: StatePending}
	e.timer = s.after(delay, func() {
		s.mu.Lock()
		ctx := s.baseCtx
		s.mu.Unlock()
		if _, err := s.fire(ctx, key, e); err != nil {
			s.logger.Warn("Timer fire failed", "event", key.String(), "error", err)
		}
	})
	s.timers[ev.Key] = e
	return true
}

// supersede cancels pending timers of kind guaranteed/possible that were
// derived from another revision of the same day. Caller holds mu.
func (s *Scheduler) supersede(day schedule.Day) int {
	n := 0
	date := day.DateKey()
	for k, e := range s.timers {
		if k.Date != date || e.event.Region != day.Region || e.state != StatePending {
			continue
		}
		if k.Kind != KindGuaranteed && k.Kind != KindPossible {
			continue
		}
		if e.event.Source == day.ContentHash {
			continue
		}
		e.timer.Stop()
		e.state = StateSuperseded
		n++
	}
	return n
}

// --------------------------------------------------------------------------
// Firing
// --------------------------------------------------------------------------

// Fire moves a pending event to Fired, claims it in the ledger and delivers
// it if the claim was new. It returns whether a delivery was attempted.
// Ledger errors leave the event unclaimed; the next Tick re-arms it.
func (s *Scheduler) Fire(ctx context.Context, key EventKey) (bool, error) {
	return s.fire(ctx, key, nil)
}

// fire runs the transition for key. A non-nil want pins the entry a timer
// was armed for, so a stale callback cannot fire its replacement.
func (s *Scheduler) fire(ctx context.Context, key EventKey, want *entry) (bool, error) {
	s.mu.Lock()
	e, ok := s.timers[key]
	if !ok || e.state != StatePending || (want != nil && e != want) {
		s.mu.Unlock()
		return false, nil
	}
	e.state = StateFired
	ev := e.event
	s.mu.Unlock()

	delivered, err := s.claimAndDeliver(ctx, ev)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !errors.Is(err, ErrDeliveryFailure) {
		delete(s.timers, key)
		return false, err
	}
	e.state = StateRecorded
	s.metrics.SetPendingTimers(s.pendingLocked())
	return delivered, err
}

// claimAndDeliver is the ledger gate shared by timers and broadcasts.
func (s *Scheduler) claimAndDeliver(ctx context.Context, ev Event) (bool, error) {
	kind := string(ev.Key.Kind)
	err := s.ledger.Record(ctx, ev.Key)
	if errors.Is(err, ErrDedupConflict) {
		s.logger.Info("Notification already sent, skipping", "event", ev.Key.String())
		s.metrics.Notification(kind, "duplicate")
		return false, nil
	}
	if err != nil {
		s.metrics.Notification(kind, "ledger_error")
		return false, fmt.Errorf("claim %s: %w", ev.Key, err)
	}

	dctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()
	if err := s.sender.Deliver(dctx, ev.notification()); err != nil {
		s.metrics.Notification(kind, "failed")
		s.logger.Warn("Notification delivery failed", "event", ev.Key.String(), "error", err)
		return true, fmt.Errorf("%w: %s: %v", ErrDeliveryFailure, ev.Key, err)
	}
	s.metrics.Notification(kind, "delivered")
	s.logger.Info("Notification sent", "event", ev.Key.String(), "title", ev.Title)
	return true, nil
}

// Broadcast sends a one-off event (schedule published, operator notice)
// through the same ledger gate, without a timer.
func (s *Scheduler) Broadcast(ctx context.Context, ev Event) (bool, error) {
	return s.claimAndDeliver(ctx, ev)
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// TimerInfo is a snapshot of one timer.
type TimerInfo struct {
	Event Event  `json:"event"`
	State string `json:"state"`
}

// Timers returns a snapshot of all known timers ordered by fire time.
func (s *Scheduler) Timers() []TimerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TimerInfo, 0, len(s.timers))
	for _, e := range s.timers {
		out = append(out, TimerInfo{Event: e.event, State: e.state.String()})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Event.FireAt.Equal(out[j].Event.FireAt) {
			return out[i].Event.FireAt.Before(out[j].Event.FireAt)
		}
		return out[i].Event.Key.String() < out[j].Event.Key.String()
	})
	return out
}

// State returns the state of key, if known.
func (s *Scheduler) State(key EventKey) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.timers[key]
	if !ok {
		return 0, false
	}
	return e.state, true
}

func (s *Scheduler) pendingLocked() int {
	n := 0
	for _, e := range s.timers {
		if e.state == StatePending {
			n++
		}
	}
	return n
}
