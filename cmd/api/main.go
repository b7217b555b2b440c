// Command api is the outage schedule service: it polls the grid operator's
// pages, serves schedules and statuses, and dispatches outage notifications.
//
// Usage:
//
//	prosvitlo-api
//	API_PORT=8080 DATABASE_URL=postgres://... prosvitlo-api

// @title Prosvitlo Outage Schedule API
// @version 1.0.0
// @description Parses published power outage schedules into per-queue intervals, answers status queries and dispatches exactly-once outage notifications.
// @host localhost:8000
// @BasePath /
// @schemes http https
// @contact.name Prosvitlo
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/prosvitlo/prosvitlo-data/internal/api"
	"github.com/prosvitlo/prosvitlo-data/internal/app"
	"github.com/prosvitlo/prosvitlo-data/internal/config"
	"github.com/prosvitlo/prosvitlo-data/internal/listener"
	"github.com/prosvitlo/prosvitlo-data/internal/maintenance"

	_ "github.com/prosvitlo/prosvitlo-data/docs" // swagger docs
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var logger *slog.Logger
	if cfg.IsProduction() {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Notification timers: recover from the ledger, then keep firing
	go a.Scheduler.Start(ctx)

	// Maintenance tickers (tick recovery, retention cleanup)
	go maintenance.Start(ctx, a.Maintenance())

	// Source polling
	p, err := a.Poller()
	if err != nil {
		logger.Error("Invalid poll schedule", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := p.Start(ctx); err != nil {
			logger.Error("Poller failed", "error", err)
		}
	}()

	deps := api.Deps{
		Engine:  a.Engine,
		Timers:  a.Scheduler,
		Cache:   a.Cache,
		Metrics: a.Metrics,
	}
	if a.Pool != nil {
		// LISTEN/NOTIFY keeps timers in step with other instances
		go listener.Start(ctx, cfg.DatabaseURL, a.Store, a.Scheduler, a.InvalidateSchedule, logger)
		deps.DB = a.Pool
	}

	router := api.NewRouter(deps, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting outage schedule API",
			"addr", addr,
			"environment", cfg.Environment,
			"region", cfg.Region,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
