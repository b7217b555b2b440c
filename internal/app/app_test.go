package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prosvitlo/prosvitlo-data/internal/changes"
	"github.com/prosvitlo/prosvitlo-data/internal/config"
	"github.com/prosvitlo/prosvitlo-data/internal/interval"
	"github.com/prosvitlo/prosvitlo-data/internal/listener"
	"github.com/prosvitlo/prosvitlo-data/internal/notifications"
	"github.com/prosvitlo/prosvitlo-data/internal/schedule"
)

func memoryConfig() *config.Config {
	return &config.Config{
		CacheEnabled:         true,
		CacheTTL:             time.Minute,
		Region:               "hoe",
		Location:             time.UTC,
		ColorClassifier:      "fixed",
		ParseWorkers:         1,
		NotifyLead:           10 * time.Minute,
		LedgerRetentionDays:  7,
		SchedulePageURL:      "https://hoe.com.ua/page/pogodinni-vidkljuchennja",
		AnnouncementPageURLs: []string{"https://hoe.com.ua/shutdown-events"},
		ScheduleCron:         "*/5 * * * *",
		AnnouncementCron:     "*/10 * * * *",
		FetchTimeout:         time.Second,
		PollWorkers:          2,
		MaintenanceInterval:  time.Minute,
		ScheduleRetention:    24 * time.Hour,
	}
}

func TestBuildInMemory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := memoryConfig()
	a, err := Build(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Pool)
	assert.IsType(t, &schedule.MemoryStore{}, a.Store)
	assert.IsType(t, &notifications.MemoryLedger{}, a.Ledger)
	assert.IsType(t, &changes.MemoryStore{}, a.Hashes)
	assert.Equal(t, "hoe", a.Engine.Region())

	p, err := a.Poller()
	require.NoError(t, err)
	assert.NotNil(t, p)

	tasks := a.Maintenance()
	assert.Equal(t, 7*24*time.Hour, tasks.Config.LedgerRetention)
	assert.Equal(t, time.Minute, tasks.Config.TickInterval)
}

func TestBuildRejectsUnknownClassifier(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := memoryConfig()
	cfg.ColorClassifier = "rainbow"
	_, err := Build(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "rainbow")
}

func TestIngestInvalidatesCachedSchedule(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := Build(ctx, memoryConfig(), logger)
	require.NoError(t, err)
	defer a.Close()

	date := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	key := "schedule:" + date.Format(interval.DateLayout)
	a.Cache.Set(key, []byte("{}"), 0)

	_, err = a.Engine.IngestScheduleText(ctx, "text:hoe:2026-10-15", "підчерга 1.1 – з 08:00 до 11:00;", date)
	require.NoError(t, err)
	_, _, ok := a.Cache.Get(key)
	assert.False(t, ok)
}

func TestScheduleEventInvalidatesCachedSchedule(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := Build(ctx, memoryConfig(), logger)
	require.NoError(t, err)
	defer a.Close()

	a.Cache.Set("schedule:2026-10-15", []byte("{}"), 0)
	a.Cache.Set("schedule:2026-10-16", []byte("{}"), 0)

	listener.HandlePayload(ctx, `{"date":"2026-10-15","region":"hoe"}`, a.Store, a.Scheduler, a.InvalidateSchedule, logger)

	_, _, ok := a.Cache.Get("schedule:2026-10-15")
	assert.False(t, ok)
	_, _, ok = a.Cache.Get("schedule:2026-10-16")
	assert.True(t, ok)
}
