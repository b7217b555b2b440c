package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prosvitlo/prosvitlo-data/internal/interval"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	nextID        int64
	days          []Day
	announcements map[string]interval.AnnouncementOutage
	now           func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		announcements: make(map[string]interval.AnnouncementOutage),
		now:           time.Now,
	}
}

// SetClock replaces the clock used for created and retired timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func sameDate(a, b time.Time) bool {
	return a.Format(interval.DateLayout) == b.Format(interval.DateLayout)
}

func (m *MemoryStore) Active(_ context.Context, date time.Time, region string) (Day, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.days {
		if d.Active && d.Region == region && sameDate(d.Date, date) {
			return cloneDay(d), nil
		}
	}
	return Day{}, ErrNotFound
}

func (m *MemoryStore) ActiveSince(_ context.Context, from time.Time) ([]Day, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := interval.DateOnly(from)
	var out []Day
	for _, d := range m.days {
		if d.Active && !interval.DateOnly(d.Date).Before(cutoff) {
			out = append(out, cloneDay(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Region < out[j].Region
	})
	return out, nil
}

func (m *MemoryStore) Replace(_ context.Context, day Day) (Day, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for i := range m.days {
		d := &m.days[i]
		if d.Active && d.Region == day.Region && sameDate(d.Date, day.Date) {
			d.Active = false
			d.RetiredAt = &now
		}
	}
	m.nextID++
	day.ID = m.nextID
	day.Date = interval.DateOnly(day.Date)
	day.Active = true
	day.CreatedAt = now
	day.RetiredAt = nil
	day.Intervals = day.Intervals.Clone()
	m.days = append(m.days, day)
	return cloneDay(day), nil
}

func (m *MemoryStore) RetireBefore(_ context.Context, date time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	cutoff := interval.DateOnly(date)
	var n int64
	for i := range m.days {
		d := &m.days[i]
		if d.Active && interval.DateOnly(d.Date).Before(cutoff) {
			d.Active = false
			d.RetiredAt = &now
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteRetired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.days[:0]
	var n int64
	for _, d := range m.days {
		if !d.Active && d.RetiredAt != nil && d.RetiredAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, d)
	}
	m.days = kept
	return n, nil
}

func (m *MemoryStore) SaveAnnouncements(_ context.Context, outages []interval.AnnouncementOutage) ([]interval.AnnouncementOutage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var inserted []interval.AnnouncementOutage
	for _, o := range outages {
		if _, ok := m.announcements[o.ID]; ok {
			continue
		}
		m.announcements[o.ID] = o
		inserted = append(inserted, o)
	}
	return inserted, nil
}

func (m *MemoryStore) Announcements(_ context.Context, date time.Time) ([]interval.AnnouncementOutage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []interval.AnnouncementOutage
	for _, o := range m.announcements {
		if sameDate(o.Date, date) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Queue != out[j].Queue {
			return out[i].Queue < out[j].Queue
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

func (m *MemoryStore) DeleteAnnouncementsBefore(_ context.Context, date time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := interval.DateOnly(date)
	var n int64
	for id, o := range m.announcements {
		if interval.DateOnly(o.Date).Before(cutoff) {
			delete(m.announcements, id)
			n++
		}
	}
	return n, nil
}

// History returns every stored day for (date, region), retired ones included,
// oldest first.
func (m *MemoryStore) History(date time.Time, region string) []Day {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Day
	for _, d := range m.days {
		if d.Region == region && sameDate(d.Date, date) {
			out = append(out, cloneDay(d))
		}
	}
	return out
}

func cloneDay(d Day) Day {
	d.Intervals = d.Intervals.Clone()
	if d.RetiredAt != nil {
		t := *d.RetiredAt
		d.RetiredAt = &t
	}
	return d
}
