// Package schedule persists parsed schedule days and announcement outages.
//
// A (date, region) has at most one active Day. Replacing it retires the
// previous row and inserts the new one atomically; retired rows are kept
// for a grace period and then deleted by maintenance.
package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/prosvitlo/prosvitlo-data/internal/interval"
)

// ErrNotFound is returned when no active day exists for a (date, region).
var ErrNotFound = errors.New("schedule not found")

// UpdatedChannel is the Postgres NOTIFY channel fired when a day is replaced.
const UpdatedChannel = "schedule_updated"

// Day is the parsed outage schedule for one calendar date and region.
type Day struct {
	ID             int64                   `json:"id"`
	Date           time.Time               `json:"date"`
	Region         string                  `json:"region"`
	SourceImageRef string                  `json:"source_image_ref"`
	ContentHash    string                  `json:"content_hash"`
	Intervals      interval.QueueIntervals `json:"intervals"`
	Active         bool                    `json:"active"`
	CreatedAt      time.Time               `json:"created_at"`
	RetiredAt      *time.Time              `json:"retired_at,omitempty"`
}

// DateKey returns the date in YYYY-MM-DD form.
func (d Day) DateKey() string {
	return d.Date.Format(interval.DateLayout)
}

// UpdatedEvent is the payload of a schedule_updated notification.
type UpdatedEvent struct {
	Date        string `json:"date"`
	Region      string `json:"region"`
	ContentHash string `json:"content_hash"`
}

// Store is the persistence boundary for schedule days and announcement
// outages.
type Store interface {
	// Active returns the active day, or ErrNotFound.
	Active(ctx context.Context, date time.Time, region string) (Day, error)
	// ActiveSince returns every active day on or after from.
	ActiveSince(ctx context.Context, from time.Time) ([]Day, error)
	// Replace retires the current active day for (day.Date, day.Region) and
	// stores day as the new active one in a single transaction.
	Replace(ctx context.Context, day Day) (Day, error)
	// RetireBefore deactivates active days older than date.
	RetireBefore(ctx context.Context, date time.Time) (int64, error)
	// DeleteRetired removes days retired before the cutoff.
	DeleteRetired(ctx context.Context, before time.Time) (int64, error)

	// SaveAnnouncements stores outages, ignoring ones already stored, and
	// returns only the newly inserted outages.
	SaveAnnouncements(ctx context.Context, outages []interval.AnnouncementOutage) ([]interval.AnnouncementOutage, error)
	// Announcements returns the outages stored for date.
	Announcements(ctx context.Context, date time.Time) ([]interval.AnnouncementOutage, error)
	// DeleteAnnouncementsBefore removes outages dated before date.
	DeleteAnnouncementsBefore(ctx context.Context, date time.Time) (int64, error)
}
