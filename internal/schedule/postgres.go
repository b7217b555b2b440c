package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prosvitlo/prosvitlo-data/internal/interval"
)

// PgStore is the Postgres Store. Statements are prepared by internal/db.
type PgStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PgStore)(nil)

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanDay(row pgx.Row) (Day, error) {
	var (
		d   Day
		raw []byte
	)
	if err := row.Scan(&d.ID, &d.Date, &d.Region, &d.SourceImageRef, &d.ContentHash,
		&raw, &d.Active, &d.CreatedAt, &d.RetiredAt); err != nil {
		return Day{}, err
	}
	if err := json.Unmarshal(raw, &d.Intervals); err != nil {
		return Day{}, fmt.Errorf("decode intervals of day %d: %w", d.ID, err)
	}
	return d, nil
}

func (p *PgStore) Active(ctx context.Context, date time.Time, region string) (Day, error) {
	d, err := scanDay(p.pool.QueryRow(ctx, "schedule_active", interval.DateOnly(date), region))
	if errors.Is(err, pgx.ErrNoRows) {
		return Day{}, ErrNotFound
	}
	if err != nil {
		return Day{}, fmt.Errorf("get active schedule %s/%s: %w", date.Format(interval.DateLayout), region, err)
	}
	return d, nil
}

func (p *PgStore) ActiveSince(ctx context.Context, from time.Time) ([]Day, error) {
	rows, err := p.pool.Query(ctx, "schedule_active_since", interval.DateOnly(from))
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}
	defer rows.Close()

	var days []Day
	for rows.Next() {
		d, err := scanDay(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// Replace retires the active row, inserts the new one and notifies other
// instances, all in one transaction.
func (p *PgStore) Replace(ctx context.Context, day Day) (Day, error) {
	day.Date = interval.DateOnly(day.Date)
	raw, err := json.Marshal(day.Intervals)
	if err != nil {
		return Day{}, fmt.Errorf("encode intervals: %w", err)
	}
	payload, err := json.Marshal(UpdatedEvent{
		Date:        day.DateKey(),
		Region:      day.Region,
		ContentHash: day.ContentHash,
	})
	if err != nil {
		return Day{}, fmt.Errorf("encode notify payload: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Day{}, fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "schedule_retire", day.Date, day.Region); err != nil {
		return Day{}, fmt.Errorf("retire schedule: %w", err)
	}
	if err := tx.QueryRow(ctx, "schedule_insert",
		day.Date, day.Region, day.SourceImageRef, day.ContentHash, raw,
	).Scan(&day.ID, &day.CreatedAt); err != nil {
		return Day{}, fmt.Errorf("insert schedule: %w", err)
	}
	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", UpdatedChannel, string(payload)); err != nil {
		return Day{}, fmt.Errorf("notify %s: %w", UpdatedChannel, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Day{}, fmt.Errorf("commit replace: %w", err)
	}

	day.Active = true
	day.RetiredAt = nil
	return day, nil
}

func (p *PgStore) RetireBefore(ctx context.Context, date time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, "schedule_retire_before", interval.DateOnly(date))
	if err != nil {
		return 0, fmt.Errorf("retire schedules before %s: %w", date.Format(interval.DateLayout), err)
	}
	return tag.RowsAffected(), nil
}

func (p *PgStore) DeleteRetired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, "schedule_delete_retired", before)
	if err != nil {
		return 0, fmt.Errorf("delete retired schedules: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SaveAnnouncements inserts outages one by one so the caller learns which
// rows were new.
func (p *PgStore) SaveAnnouncements(ctx context.Context, outages []interval.AnnouncementOutage) ([]interval.AnnouncementOutage, error) {
	var inserted []interval.AnnouncementOutage
	for _, o := range outages {
		id, err := uuid.Parse(o.ID)
		if err != nil {
			return inserted, fmt.Errorf("announcement id %q: %w", o.ID, err)
		}
		tag, err := p.pool.Exec(ctx, "announcement_insert",
			id, interval.DateOnly(o.Date), o.Queue, o.Start, o.End, o.Text)
		if err != nil {
			return inserted, fmt.Errorf("insert announcement: %w", err)
		}
		if tag.RowsAffected() > 0 {
			inserted = append(inserted, o)
		}
	}
	return inserted, nil
}

func (p *PgStore) Announcements(ctx context.Context, date time.Time) ([]interval.AnnouncementOutage, error) {
	rows, err := p.pool.Query(ctx, "announcement_by_date", interval.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	defer rows.Close()

	var out []interval.AnnouncementOutage
	for rows.Next() {
		var o interval.AnnouncementOutage
		if err := rows.Scan(&o.ID, &o.Date, &o.Queue, &o.Start, &o.End, &o.Text); err != nil {
			return nil, fmt.Errorf("scan announcement: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *PgStore) DeleteAnnouncementsBefore(ctx context.Context, date time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, "announcement_delete_before", interval.DateOnly(date))
	if err != nil {
		return 0, fmt.Errorf("delete old announcements: %w", err)
	}
	return tag.RowsAffected(), nil
}
