package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NOTIFY_LEAD", "")
	t.Setenv("TZ_NAME", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.HasDatabase())
	assert.Equal(t, 10*time.Minute, cfg.NotifyLead)
	assert.False(t, cfg.NotifyPossible)
	assert.Equal(t, "fixed", cfg.ColorClassifier)
	assert.Equal(t, 7, cfg.LedgerRetentionDays)
	assert.Equal(t, "Europe/Kyiv", cfg.Location.String())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/prosvitlo")
	t.Setenv("NOTIFY_LEAD", "15m")
	t.Setenv("NOTIFY_POSSIBLE", "true")
	t.Setenv("ANNOUNCEMENT_PAGE_URLS", "https://a.example/x, ,https://b.example/y")
	t.Setenv("PARSE_WORKERS", "nope")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.HasDatabase())
	assert.Equal(t, 15*time.Minute, cfg.NotifyLead)
	assert.True(t, cfg.NotifyPossible)
	assert.Equal(t, []string{"https://a.example/x", "https://b.example/y"}, cfg.AnnouncementPageURLs)
	assert.Equal(t, 2, cfg.ParseWorkers, "unparsable values fall back to the default")
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("TZ_NAME", "Mars/Olympus")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("TZ_NAME", "UTC")
	t.Setenv("PARSE_WORKERS", "0")
	_, err = Load()
	assert.Error(t, err)
}
