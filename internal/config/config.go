// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/ingest.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Config, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database. Empty DatabaseURL runs every store in memory.
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Redis. When set, source hashes are shared through Redis.
	RedisURL string

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Cache
	CacheEnabled bool
	CacheTTL     time.Duration

	// Schedule domain
	Region          string
	Location        *time.Location
	ColorClassifier string // fixed | adaptive
	ParseWorkers    int

	// Notifications
	NotifyLead          time.Duration
	NotifyPossible      bool
	LedgerRetentionDays int
	PushGatewayURL      string
	PushAPIKey          string
	TelegramToken       string
	TelegramChannel     string

	// Sources
	SchedulePageURL      string
	AnnouncementPageURLs []string
	ScheduleCron         string
	AnnouncementCron     string
	FetchTimeout         time.Duration
	FetchRatePerSecond   int
	PollWorkers          int
	UserAgent            string

	// Maintenance
	MaintenanceInterval time.Duration
	ScheduleRetention   time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	tzName := envOr("TZ_NAME", "Europe/Kyiv")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tzName, err)
	}

	cfg := &Config{
		DatabaseURL:    envOr("DATABASE_URL", ""),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		RedisURL: envOr("REDIS_URL", ""),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		CacheEnabled: envBool("CACHE_ENABLED", true),
		CacheTTL:     envDuration("CACHE_TTL", 5*time.Minute),

		Region:          envOr("REGION", "hoe"),
		Location:        loc,
		ColorClassifier: envOr("COLOR_CLASSIFIER", "fixed"),
		ParseWorkers:    envInt("PARSE_WORKERS", 2),

		NotifyLead:          envDuration("NOTIFY_LEAD", 10*time.Minute),
		NotifyPossible:      envBool("NOTIFY_POSSIBLE", false),
		LedgerRetentionDays: envInt("LEDGER_RETENTION_DAYS", 7),
		PushGatewayURL:      envOr("PUSH_GATEWAY_URL", ""),
		PushAPIKey:          envOr("PUSH_API_KEY", ""),
		TelegramToken:       envOr("TELEGRAM_TOKEN", ""),
		TelegramChannel:     envOr("TELEGRAM_CHANNEL", ""),

		SchedulePageURL: envOr("SCHEDULE_PAGE_URL", "https://hoe.com.ua/page/pogodinni-vidkljuchennja"),
		AnnouncementPageURLs: envList("ANNOUNCEMENT_PAGE_URLS", []string{
			"https://hoe.com.ua/shutdown-events",
		}),
		ScheduleCron:       envOr("SCHEDULE_CRON", "*/5 * * * *"),
		AnnouncementCron:   envOr("ANNOUNCEMENT_CRON", "*/10 * * * *"),
		FetchTimeout:       envDuration("FETCH_TIMEOUT", 20*time.Second),
		FetchRatePerSecond: envInt("FETCH_RATE_PER_SECOND", 2),
		PollWorkers:        envInt("POLL_WORKERS", 4),
		UserAgent:          envOr("USER_AGENT", "prosvitlo-data/1.0"),

		MaintenanceInterval: envDuration("MAINTENANCE_INTERVAL", time.Minute),
		ScheduleRetention:   envDuration("SCHEDULE_RETENTION", 24*time.Hour),
	}

	if cfg.ParseWorkers < 1 {
		return nil, fmt.Errorf("PARSE_WORKERS must be at least 1, got %d", cfg.ParseWorkers)
	}
	if cfg.NotifyLead < 0 {
		return nil, fmt.Errorf("NOTIFY_LEAD must not be negative, got %s", cfg.NotifyLead)
	}
	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HasDatabase reports whether a Postgres URL is configured.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("90s", "10m").
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
