// Package source fetches the operator's published pages and images and
// locates schedule images on the schedule page.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/prosvitlo/prosvitlo-data/internal/metrics"
)

// ErrSourceUnavailable wraps transient fetch failures: timeouts, transport
// errors and non-2xx responses. The caller keeps its previous data and
// retries on the next poll.
var ErrSourceUnavailable = errors.New("source unavailable")

// Fetcher is a rate-limited HTTP client for source content.
type Fetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// FetcherConfig configures a Fetcher. A zero RatePerSecond disables rate
// limiting.
type FetcherConfig struct {
	Timeout       time.Duration
	RatePerSecond int
	UserAgent     string
}

func NewFetcher(cfg FetcherConfig, m *metrics.Metrics, logger *slog.Logger) *Fetcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept-Language", "uk,en;q=0.8")

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RatePerSecond)
	}
	return &Fetcher{client: client, limiter: limiter, metrics: m, logger: logger}
}

// Fetch returns the body of url.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		f.metrics.Fetch("cancelled")
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, url, err)
	}

	start := time.Now()
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		f.metrics.Fetch("error")
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, url, err)
	}
	if resp.IsError() {
		f.metrics.Fetch("http_error")
		return nil, fmt.Errorf("%w: %s: status %d", ErrSourceUnavailable, url, resp.StatusCode())
	}

	f.metrics.Fetch("ok")
	f.logger.Debug("Fetched source",
		"url", url,
		"bytes", len(resp.Body()),
		"duration", time.Since(start).Round(time.Millisecond))
	return resp.Body(), nil
}
