package poller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prosvitlo/prosvitlo-data/internal/announcement"
	"github.com/prosvitlo/prosvitlo-data/internal/changes"
	"github.com/prosvitlo/prosvitlo-data/internal/engine"
	"github.com/prosvitlo/prosvitlo-data/internal/interval"
	"github.com/prosvitlo/prosvitlo-data/internal/source"
)

// Fetcher downloads source content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Ingester is the part of the engine the sources feed.
type Ingester interface {
	Region() string
	Today() time.Time
	IngestImage(ctx context.Context, sourceID string, data []byte, date time.Time) (engine.Outcome, error)
	IngestScheduleText(ctx context.Context, sourceID, text string, date time.Time) (engine.Outcome, error)
	IngestPage(ctx context.Context, sourceID string, paragraphs []string, date time.Time) (engine.PageResult, error)
}

// --------------------------------------------------------------------------
// Schedule page
// --------------------------------------------------------------------------

// SchedulePage polls the page listing the daily schedule images. For every
// listed date from today on it ingests the newest image, falling back to
// the text schedule under the image when the image cannot be parsed.
type SchedulePage struct {
	URL      string
	Fetcher  Fetcher
	Ingester Ingester
	Logger   *slog.Logger
}

func (s *SchedulePage) Name() string { return "schedule-page" }

func (s *SchedulePage) Poll(ctx context.Context) error {
	page, err := s.Fetcher.Fetch(ctx, s.URL)
	if err != nil {
		return err
	}
	listings, err := source.DiscoverSchedules(page, s.URL)
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		s.Logger.Warn("No schedule images found", "url", s.URL)
		return nil
	}

	today := s.Ingester.Today()
	var errs []error
	for _, l := range listings {
		if l.Date.Before(today) {
			continue
		}
		if err := s.ingest(ctx, l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *SchedulePage) ingest(ctx context.Context, l source.Listing) error {
	date := l.Date.Format(interval.DateLayout)
	region := s.Ingester.Region()

	data, err := s.Fetcher.Fetch(ctx, l.ImageURL)
	if err == nil {
		out, err := s.Ingester.IngestImage(ctx, changes.Key("image", region, date), data, l.Date)
		if err != nil {
			return fmt.Errorf("ingest image %s: %w", date, err)
		}
		if out.Status != engine.OutcomeFailed {
			return nil
		}
		s.Logger.Warn("Image schedule unusable, trying text schedule", "date", date, "error", out.Err)
	} else if !errors.Is(err, source.ErrSourceUnavailable) {
		return err
	}

	// err is nil here when the image was fetched but could not be parsed
	if l.Text == "" {
		return err
	}
	out, terr := s.Ingester.IngestScheduleText(ctx, changes.Key("text", region, date), l.Text, l.Date)
	if terr != nil {
		return fmt.Errorf("ingest text schedule %s: %w", date, terr)
	}
	if out.Status == engine.OutcomeFailed {
		s.Logger.Warn("Text schedule unusable", "date", date, "error", out.Err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Announcement pages
// --------------------------------------------------------------------------

// AnnouncementPage polls one news or announcements page.
type AnnouncementPage struct {
	URL      string
	Selector string
	Fetcher  Fetcher
	Ingester Ingester
	Logger   *slog.Logger
}

func (a *AnnouncementPage) Name() string { return "page:" + a.URL }

func (a *AnnouncementPage) Poll(ctx context.Context) error {
	body, err := a.Fetcher.Fetch(ctx, a.URL)
	if err != nil {
		return err
	}
	selector := a.Selector
	if selector == "" {
		selector = announcement.DefaultContentSelector
	}
	paragraphs, err := announcement.ExtractParagraphs(bytes.NewReader(body), selector)
	if err != nil {
		return err
	}
	res, err := a.Ingester.IngestPage(ctx, changes.Key("page", a.URL), paragraphs, a.Ingester.Today())
	if err != nil {
		return err
	}
	if res.Changed {
		a.Logger.Info("Announcement page changed",
			"url", a.URL,
			"new_paragraphs", res.NewParagraphs,
			"notices", len(res.Notices),
			"outages", len(res.Outages))
	}
	return nil
}
