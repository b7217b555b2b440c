package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prosvitlo/prosvitlo-data/internal/interval"
)

// Ledger is the durable record of sent notifications. Record is an atomic
// insert-if-absent: exactly one caller wins for a key, every other caller
// gets ErrDedupConflict.
type Ledger interface {
	Record(ctx context.Context, key EventKey) error
	// RecordedSince returns the keys recorded for dates on or after from.
	RecordedSince(ctx context.Context, from time.Time) (map[EventKey]bool, error)
	// Purge deletes entries dated before the cutoff.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// --------------------------------------------------------------------------
// In-process ledger
// --------------------------------------------------------------------------

// MemoryLedger is a mutex-guarded Ledger for development and tests.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[EventKey]time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[EventKey]time.Time)}
}

func (m *MemoryLedger) Record(_ context.Context, key EventKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return ErrDedupConflict
	}
	m.entries[key] = time.Now()
	return nil
}

func (m *MemoryLedger) RecordedSince(_ context.Context, from time.Time) (map[EventKey]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := from.Format(interval.DateLayout)
	out := make(map[EventKey]bool)
	for k := range m.entries {
		if k.Date >= cutoff {
			out[k] = true
		}
	}
	return out, nil
}

func (m *MemoryLedger) Purge(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := before.Format(interval.DateLayout)
	var n int64
	for k := range m.entries {
		if k.Date < cutoff {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of recorded events.
func (m *MemoryLedger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// --------------------------------------------------------------------------
// Postgres ledger
// --------------------------------------------------------------------------

// PgLedger stores entries in notification_ledger. The unique index over the
// key columns makes the insert the dedup gate across instances.
type PgLedger struct {
	pool *pgxpool.Pool
}

func NewPgLedger(pool *pgxpool.Pool) *PgLedger {
	return &PgLedger{pool: pool}
}

func (p *PgLedger) Record(ctx context.Context, key EventKey) error {
	date, err := interval.ParseDate(key.Date)
	if err != nil {
		return err
	}
	var id uuid.UUID
	err = p.pool.QueryRow(ctx, "ledger_record",
		uuid.New(), date, key.Queue, key.StartMinute, string(key.Kind), key.RecordID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDedupConflict
	}
	if err != nil {
		return fmt.Errorf("record %s: %w", key, err)
	}
	return nil
}

func (p *PgLedger) RecordedSince(ctx context.Context, from time.Time) (map[EventKey]bool, error) {
	rows, err := p.pool.Query(ctx, "ledger_since", interval.DateOnly(from))
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	out := make(map[EventKey]bool)
	for rows.Next() {
		var (
			k    EventKey
			date time.Time
			kind string
		)
		if err := rows.Scan(&date, &k.Queue, &k.StartMinute, &kind, &k.RecordID); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		k.Date = date.Format(interval.DateLayout)
		k.Kind = EventKind(kind)
		out[k] = true
	}
	return out, rows.Err()
}

func (p *PgLedger) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, "ledger_purge", interval.DateOnly(before))
	if err != nil {
		return 0, fmt.Errorf("purge ledger: %w", err)
	}
	return tag.RowsAffected(), nil
}
