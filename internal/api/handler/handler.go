// Package handler provides HTTP handlers for all API endpoints. Handlers
// call the engine directly; rendered day views are cached with ETags and
// dropped whenever an ingestion touches their date.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/prosvitlo/prosvitlo-data/internal/api/respond"
	"github.com/prosvitlo/prosvitlo-data/internal/cache"
	"github.com/prosvitlo/prosvitlo-data/internal/config"
	"github.com/prosvitlo/prosvitlo-data/internal/engine"
	"github.com/prosvitlo/prosvitlo-data/internal/interval"
	"github.com/prosvitlo/prosvitlo-data/internal/notifications"
)

// Engine is the part of the engine the handlers expose.
type Engine interface {
	Region() string
	Today() time.Time
	Schedule(ctx context.Context, date time.Time) (engine.DayView, error)
	QueryStatus(ctx context.Context, queue string, date time.Time, hour float64) (interval.Status, error)
	IngestImage(ctx context.Context, sourceID string, data []byte, date time.Time) (engine.Outcome, error)
	IngestScheduleText(ctx context.Context, sourceID, text string, date time.Time) (engine.Outcome, error)
	IngestAnnouncementText(ctx context.Context, date time.Time, text string) ([]interval.AnnouncementOutage, error)
}

// TimerLister lists the armed notification timers.
type TimerLister interface {
	Timers() []notifications.TimerInfo
}

// HealthChecker verifies database connectivity.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	engine Engine
	timers TimerLister
	db     HealthChecker
	cache  *cache.Cache
	cfg    *config.Config
	now    func() time.Time
}

// New creates a Handler. db and timers may be nil.
func New(eng Engine, timers TimerLister, db HealthChecker, c *cache.Cache, cfg *config.Config) *Handler {
	return &Handler{
		engine: eng,
		timers: timers,
		db:     db,
		cache:  c,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, region and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Prosvitlo Outage Schedule API",
		"version": "1.0.0",
		"status":  "running",
		"region":  h.engine.Region(),
		"docs":    "/docs",
		"features": []string{
			"image_schedule_parsing",
			"announcement_mining",
			"exactly_once_notifications",
			"etag_support",
		},
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity. Reports "disabled" when the service runs on in-memory stores.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	ts := h.now().UTC().Format(time.RFC3339)
	if h.db == nil {
		respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"database":  "disabled",
			"timestamp": ts,
		})
		return
	}
	if err := h.db.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": ts,
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": ts,
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns response cache statistics.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
