// Package api wires the HTTP surface: the chi router, its middleware stack
// and the route table.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/prosvitlo/prosvitlo-data/internal/api/handler"
	"github.com/prosvitlo/prosvitlo-data/internal/cache"
	"github.com/prosvitlo/prosvitlo-data/internal/config"
	"github.com/prosvitlo/prosvitlo-data/internal/metrics"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Engine  handler.Engine
	Timers  handler.TimerLister   // optional
	DB      handler.HealthChecker // optional; nil when running in memory
	Cache   *cache.Cache
	Metrics *metrics.Metrics
}

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(deps Deps, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware(deps.Metrics))
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	h := handler.New(deps.Engine, deps.Timers, deps.DB, deps.Cache, cfg)

	// --- Routes ---
	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	r.Handle("/metrics", deps.Metrics.Handler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/schedule/{date}", h.GetSchedule)
		r.Get("/status/{queue}", h.GetStatus)
		r.Get("/timers", h.GetTimers)

		r.Route("/ingest", func(r chi.Router) {
			r.Post("/image", h.PostImage)
			r.Post("/schedule-text", h.PostScheduleText)
			r.Post("/announcement", h.PostAnnouncement)
		})
	})

	return r
}
