// Package db provides a pgxpool-based connection pool with prepared statement
// registration, health checking and embedded schema migrations.
package db

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/prosvitlo/prosvitlo-data/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Migrate applies the embedded goose migrations. Statements are prepared
// per connection, so run it before the first query that needs the tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// Drop connections opened before the tables existed so the next ones
	// prepare the domain statements.
	pool.Reset()
	return nil
}

// registerPreparedStatements registers all statements the API, scheduler and
// ingestion layers use. Prepared statements eliminate parse overhead on every
// request.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	// Tables may not exist yet on a fresh database (migrate runs on a pooled
	// connection); skip preparing until they do.
	var ready bool
	if err := conn.QueryRow(ctx, "SELECT to_regclass('public.schedule_days') IS NOT NULL").Scan(&ready); err != nil {
		return fmt.Errorf("check schema: %w", err)
	}

	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",
	}
	if ready {
		for name, sql := range domainStatements {
			stmts[name] = sql
		}
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}

var domainStatements = map[string]string{
	// Schedule days
	"schedule_active": `SELECT id, schedule_date, region, source_image_ref, content_hash, intervals, is_active, created_at, retired_at
		FROM schedule_days WHERE schedule_date = $1 AND region = $2 AND is_active`,
	"schedule_active_since": `SELECT id, schedule_date, region, source_image_ref, content_hash, intervals, is_active, created_at, retired_at
		FROM schedule_days WHERE schedule_date >= $1 AND is_active ORDER BY schedule_date, region`,
	"schedule_retire": `UPDATE schedule_days SET is_active = false, retired_at = NOW()
		WHERE schedule_date = $1 AND region = $2 AND is_active`,
	"schedule_insert": `INSERT INTO schedule_days (schedule_date, region, source_image_ref, content_hash, intervals, is_active)
		VALUES ($1, $2, $3, $4, $5, true) RETURNING id, created_at`,
	"schedule_delete_retired": `DELETE FROM schedule_days WHERE NOT is_active AND retired_at < $1`,
	"schedule_retire_before":  `UPDATE schedule_days SET is_active = false, retired_at = NOW() WHERE schedule_date < $1 AND is_active`,

	// Announcement outages
	"announcement_insert": `INSERT INTO announcement_outages (id, outage_date, queue, start_hour, end_hour, source_text)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
	"announcement_by_date": `SELECT id::text, outage_date, queue, start_hour, end_hour, source_text
		FROM announcement_outages WHERE outage_date = $1 ORDER BY queue, start_hour`,
	"announcement_delete_before": `DELETE FROM announcement_outages WHERE outage_date < $1`,

	// Notification ledger
	"ledger_record": `INSERT INTO notification_ledger (id, event_date, queue, start_minute, kind, record_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_date, queue, start_minute, kind, record_id) DO NOTHING
		RETURNING id`,
	"ledger_since": `SELECT event_date, queue, start_minute, kind, record_id
		FROM notification_ledger WHERE event_date >= $1`,
	"ledger_purge": `DELETE FROM notification_ledger WHERE event_date < $1`,

	// Source hashes
	"source_hash_get": `SELECT content_hash FROM source_hashes WHERE source_id = $1`,
	"source_hash_set": `INSERT INTO source_hashes (source_id, content_hash, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (source_id) DO UPDATE SET content_hash = EXCLUDED.content_hash, updated_at = NOW()`,
	"source_hash_delete": `DELETE FROM source_hashes WHERE source_id = $1`,

	// Page baselines
	"page_baseline_get": `SELECT paragraphs FROM page_baselines WHERE source_id = $1`,
	"page_baseline_set": `INSERT INTO page_baselines (source_id, paragraphs, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (source_id) DO UPDATE SET paragraphs = EXCLUDED.paragraphs, updated_at = NOW()`,
}
