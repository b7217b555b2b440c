// Package listener provides a Postgres LISTEN/NOTIFY consumer that keeps
// notification timers in step across instances. It holds a dedicated pgx
// connection (not from the pool) listening on the `schedule_updated`
// channel.
//
// Whenever any instance replaces a schedule day, the replacing transaction
// fires pg_notify and every instance re-plans that day's timers. The ledger
// keeps deliveries exactly-once whichever instance fires first.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prosvitlo/prosvitlo-data/internal/interval"
	"github.com/prosvitlo/prosvitlo-data/internal/schedule"
)

const (
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
	syncTimeout      = 30 * time.Second
)

// Syncer re-plans the timers of a day.
type Syncer interface {
	SyncDay(ctx context.Context, day schedule.Day) (int, error)
}

// Invalidator drops locally cached data for a date. May be nil.
type Invalidator func(date time.Time)

// Start opens a dedicated connection and listens on the schedule_updated
// channel. It reconnects automatically on connection loss. Blocks until ctx
// is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, store schedule.Store, syncer Syncer, invalidate Invalidator, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, store, syncer, invalidate, logger)
		if ctx.Err() != nil {
			logger.Info("Schedule listener stopped (context cancelled)")
			return
		}

		logger.Error("Schedule listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, store schedule.Store, syncer Syncer, invalidate Invalidator, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+schedule.UpdatedChannel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", schedule.UpdatedChannel, err)
	}
	logger.Info("Schedule listener connected", "channel", schedule.UpdatedChannel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		HandlePayload(ctx, n.Payload, store, syncer, invalidate, logger)
	}
}

// HandlePayload decodes one schedule_updated payload, invalidates the local
// cache for its date and re-syncs the day it names. Malformed payloads and
// vanished days are logged and skipped.
func HandlePayload(ctx context.Context, payload string, store schedule.Store, syncer Syncer, invalidate Invalidator, logger *slog.Logger) {
	var event schedule.UpdatedEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		logger.Warn("Failed to parse schedule event", "payload", payload, "error", err)
		return
	}
	date, err := interval.ParseDate(event.Date)
	if err != nil {
		logger.Warn("Schedule event has a bad date", "payload", payload, "error", err)
		return
	}
	if invalidate != nil {
		invalidate(date)
	}

	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	day, err := store.Active(ctx, date, event.Region)
	if errors.Is(err, schedule.ErrNotFound) {
		logger.Debug("Schedule event for a day no longer active", "date", event.Date, "region", event.Region)
		return
	}
	if err != nil {
		logger.Warn("Failed to load updated schedule", "date", event.Date, "error", err)
		return
	}

	armed, err := syncer.SyncDay(ctx, day)
	if err != nil {
		logger.Warn("Failed to resync timers", "date", event.Date, "error", err)
		return
	}
	logger.Info("Schedule event received",
		"date", event.Date,
		"region", event.Region,
		"hash", event.ContentHash,
		"armed", armed)
}
