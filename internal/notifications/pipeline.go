package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prosvitlo/prosvitlo-data/internal/interval"
	"github.com/prosvitlo/prosvitlo-data/internal/schedule"
)

// SyncDay re-plans the timers of one schedule day. Pending timers derived
// from an older revision of the same day are superseded first, then the new
// revision's events are armed unless already recorded.
func (s *Scheduler) SyncDay(ctx context.Context, day schedule.Day) (int, error) {
	if day.Region != s.region {
		return 0, nil
	}
	recorded, err := s.ledger.RecordedSince(ctx, day.Date)
	if err != nil {
		return 0, fmt.Errorf("load ledger: %w", err)
	}
	events := s.planner.PlanDay(day)

	s.mu.Lock()
	defer s.mu.Unlock()
	superseded := s.supersede(day)
	now := s.now()
	armed := 0
	for _, ev := range events {
		if s.arm(ev, recorded, now) {
			armed++
		}
	}
	s.metrics.SetPendingTimers(s.pendingLocked())

	s.logger.Info("Schedule timers synced",
		"date", day.DateKey(),
		"region", day.Region,
		"events", len(events),
		"armed", armed,
		"superseded", superseded,
	)
	return armed, nil
}

// SyncAnnouncements arms timers for announcement outages of date, skipping
// outages the active schedule already covers.
func (s *Scheduler) SyncAnnouncements(ctx context.Context, date time.Time, outages []interval.AnnouncementOutage) (int, error) {
	if len(outages) == 0 {
		return 0, nil
	}
	var scheduled interval.QueueIntervals
	day, err := s.store.Active(ctx, date, s.region)
	switch {
	case err == nil:
		scheduled = day.Intervals
	case errors.Is(err, schedule.ErrNotFound):
	default:
		return 0, fmt.Errorf("load active schedule: %w", err)
	}

	recorded, err := s.ledger.RecordedSince(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("load ledger: %w", err)
	}
	events := s.planner.PlanAnnouncements(s.region, scheduled, outages)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	armed := 0
	for _, ev := range events {
		if s.arm(ev, recorded, now) {
			armed++
		}
	}
	s.metrics.SetPendingTimers(s.pendingLocked())
	if armed > 0 {
		s.logger.Info("Announcement timers armed", "date", interval.DateOnly(date).Format(interval.DateLayout), "armed", armed)
	}
	return armed, nil
}

// Recover re-derives every timer from persisted state: the active days from
// yesterday onward and their announcement outages, minus ledger entries.
// Pending timers of a revision that is no longer active are superseded
// first. It is idempotent and runs at startup and on each tick.
func (s *Scheduler) Recover(ctx context.Context) error {
	now := s.now().In(s.planner.Location)
	from := interval.DateOnly(now.AddDate(0, 0, -1))

	days, err := s.store.ActiveSince(ctx, from)
	if err != nil {
		return fmt.Errorf("load active days: %w", err)
	}
	recorded, err := s.ledger.RecordedSince(ctx, from)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	scheduled := make(map[string]interval.QueueIntervals)
	var events []Event
	for _, day := range days {
		if day.Region != s.region {
			continue
		}
		scheduled[day.DateKey()] = day.Intervals
		events = append(events, s.planner.PlanDay(day)...)
	}
	for d := from; !d.After(interval.DateOnly(now.AddDate(0, 0, 1))); d = d.AddDate(0, 0, 1) {
		outages, err := s.store.Announcements(ctx, d)
		if err != nil {
			return fmt.Errorf("load announcements %s: %w", d.Format(interval.DateLayout), err)
		}
		events = append(events, s.planner.PlanAnnouncements(s.region, scheduled[d.Format(interval.DateLayout)], outages)...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	superseded := 0
	for _, day := range days {
		if day.Region == s.region {
			superseded += s.supersede(day)
		}
	}
	armed := 0
	t := s.now()
	for _, ev := range events {
		if s.arm(ev, recorded, t) {
			armed++
		}
	}
	s.metrics.SetPendingTimers(s.pendingLocked())
	if armed > 0 || superseded > 0 {
		s.logger.Info("Timers recovered", "armed", armed, "superseded", superseded, "days", len(days))
	}
	return nil
}

// Tick recovers missed timers and forgets finished entries.
func (s *Scheduler) Tick(ctx context.Context) error {
	if err := s.Recover(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-finishedEntryGrace)
	for k, e := range s.timers {
		if e.state == StatePending || e.state == StateFired {
			continue
		}
		if e.event.End.Before(cutoff) {
			delete(s.timers, k)
		}
	}
	s.metrics.SetPendingTimers(s.pendingLocked())
	return nil
}
