// Package engine is the ingestion and query boundary of the schedule
// service. It ties change detection, parsing, persistence and notification
// scheduling together:
//
//	bytes → HasChanged → parse (bounded) → Replace day → SyncDay (+ broadcast)
//
// Parse failures never replace the last known good day.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/prosvitlo/prosvitlo-data/internal/announcement"
	"github.com/prosvitlo/prosvitlo-data/internal/changes"
	"github.com/prosvitlo/prosvitlo-data/internal/colortable"
	"github.com/prosvitlo/prosvitlo-data/internal/interval"
	"github.com/prosvitlo/prosvitlo-data/internal/metrics"
	"github.com/prosvitlo/prosvitlo-data/internal/notifications"
	"github.com/prosvitlo/prosvitlo-data/internal/schedule"
)

// ErrSourceUnchanged reports content identical to the last observation. It
// is carried in Outcome.Err and is not a failure.
var ErrSourceUnchanged = errors.New("source unchanged")

// OutcomeStatus is the result class of an ingestion.
type OutcomeStatus string

const (
	OutcomeUnchanged OutcomeStatus = "unchanged"
	OutcomeUpdated   OutcomeStatus = "updated"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome is the result of ingesting one schedule source.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Day    schedule.Day  `json:"day,omitempty"`
	Err    error         `json:"-"`
}

// Options configures an Engine.
type Options struct {
	Region       string
	Location     *time.Location
	ParseWorkers int
	Metrics      *metrics.Metrics
	Now          func() time.Time
	// OnChange is called with the date whenever its schedule or its
	// announcement outages change.
	OnChange func(date time.Time)
}

// Engine implements the exposed ingestion and query operations.
type Engine struct {
	detector  *changes.Detector
	parser    *colortable.Parser
	store     schedule.Store
	scheduler *notifications.Scheduler
	parseSem  *semaphore.Weighted

	region   string
	loc      *time.Location
	metrics  *metrics.Metrics
	now      func() time.Time
	onChange func(date time.Time)
	logger   *slog.Logger
}

func New(detector *changes.Detector, parser *colortable.Parser, store schedule.Store, scheduler *notifications.Scheduler, opts Options, logger *slog.Logger) *Engine {
	if opts.ParseWorkers < 1 {
		opts.ParseWorkers = 1
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		detector:  detector,
		parser:    parser,
		store:     store,
		scheduler: scheduler,
		parseSem:  semaphore.NewWeighted(int64(opts.ParseWorkers)),
		region:    opts.Region,
		loc:       opts.Location,
		metrics:   opts.Metrics,
		now:       opts.Now,
		onChange:  opts.OnChange,
		logger:    logger,
	}
}

// Region returns the region the engine ingests for.
func (e *Engine) Region() string { return e.region }

// Today returns the current calendar date in the engine's time zone.
func (e *Engine) Today() time.Time {
	return interval.DateOnly(e.now().In(e.loc))
}

// --------------------------------------------------------------------------
// Schedule ingestion
// --------------------------------------------------------------------------

// IngestImage parses a table image for date. Unchanged bytes short-circuit
// before decoding. A parse failure forgets the source hash so the next poll
// retries, and leaves the stored day untouched. Only store errors are
// returned as errors.
func (e *Engine) IngestImage(ctx context.Context, sourceID string, data []byte, date time.Time) (Outcome, error) {
	return e.ingestDay(ctx, "image", sourceID, data, date, func() (interval.QueueIntervals, error) {
		return e.parser.ParseBytes(data)
	})
}

// IngestScheduleText parses the per-queue text schedule that accompanies a
// table image.
func (e *Engine) IngestScheduleText(ctx context.Context, sourceID, text string, date time.Time) (Outcome, error) {
	return e.ingestDay(ctx, "text", sourceID, []byte(text), date, func() (interval.QueueIntervals, error) {
		return announcement.ExtractQueueSchedule(text)
	})
}

func (e *Engine) ingestDay(ctx context.Context, kind, sourceID string, content []byte, date time.Time, parse func() (interval.QueueIntervals, error)) (Outcome, error) {
	changed, err := e.detector.HasChanged(ctx, sourceID, content)
	if err != nil {
		e.metrics.Ingest(kind, string(OutcomeFailed))
		return Outcome{Status: OutcomeFailed, Err: err}, err
	}
	if !changed {
		e.metrics.Ingest(kind, string(OutcomeUnchanged))
		return Outcome{Status: OutcomeUnchanged, Err: ErrSourceUnchanged}, nil
	}

	intervals, err := e.parseBounded(ctx, parse)
	if err != nil {
		e.logger.Warn("Schedule parse failed, keeping previous schedule",
			"source", sourceID, "date", date.Format(interval.DateLayout), "error", err)
		e.forget(ctx, sourceID)
		e.metrics.Ingest(kind, string(OutcomeFailed))
		return Outcome{Status: OutcomeFailed, Err: err}, nil
	}

	day := schedule.Day{
		Date:           interval.DateOnly(date),
		Region:         e.region,
		SourceImageRef: sourceID,
		ContentHash:    changes.Hash(content),
		Intervals:      intervals,
		Active:         true,
	}

	prev, err := e.store.Active(ctx, day.Date, e.region)
	switch {
	case err == nil:
		if sameIntervals(prev.Intervals, day.Intervals) {
			e.logger.Info("Schedule content identical to active day", "source", sourceID, "date", day.DateKey())
			e.metrics.Ingest(kind, string(OutcomeUnchanged))
			return Outcome{Status: OutcomeUnchanged, Day: prev, Err: ErrSourceUnchanged}, nil
		}
	case errors.Is(err, schedule.ErrNotFound):
	default:
		return e.storeFailure(ctx, kind, sourceID, fmt.Errorf("load active day: %w", err))
	}
	first := errors.Is(err, schedule.ErrNotFound)

	saved, err := e.store.Replace(ctx, day)
	if err != nil {
		return e.storeFailure(ctx, kind, sourceID, fmt.Errorf("replace day: %w", err))
	}
	e.metrics.Ingest(kind, string(OutcomeUpdated))
	e.logger.Info("Schedule updated",
		"source", sourceID,
		"date", saved.DateKey(),
		"queues", len(saved.Intervals),
		"hash", saved.ContentHash)

	e.afterReplace(ctx, saved, first)
	return Outcome{Status: OutcomeUpdated, Day: saved}, nil
}

// storeFailure forgets the hash so the stored day is retried, then reports
// the error.
func (e *Engine) storeFailure(ctx context.Context, kind, sourceID string, err error) (Outcome, error) {
	e.forget(ctx, sourceID)
	e.metrics.Ingest(kind, string(OutcomeFailed))
	return Outcome{Status: OutcomeFailed, Err: err}, err
}

// afterReplace re-plans timers for the new day and announces a first
// schedule for today or later. Errors are logged; the next tick recovers.
func (e *Engine) afterReplace(ctx context.Context, day schedule.Day, first bool) {
	e.changed(day.Date)
	if e.scheduler == nil {
		return
	}
	if _, err := e.scheduler.SyncDay(ctx, day); err != nil {
		e.logger.Warn("Timer sync failed, will retry on tick", "date", day.DateKey(), "error", err)
	}
	if !first || day.Date.Before(e.Today()) {
		return
	}
	ev := e.scheduler.Planner().SchedulePublished(day)
	if _, err := e.scheduler.Broadcast(ctx, ev); err != nil {
		e.logger.Warn("Schedule broadcast failed", "date", day.DateKey(), "error", err)
	}
}

func (e *Engine) changed(date time.Time) {
	if e.onChange != nil {
		e.onChange(date)
	}
}

func (e *Engine) parseBounded(ctx context.Context, parse func() (interval.QueueIntervals, error)) (interval.QueueIntervals, error) {
	if err := e.parseSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.parseSem.Release(1)

	start := time.Now()
	defer func() { e.metrics.ObserveParse(time.Since(start)) }()
	return parse()
}

func sameIntervals(a, b interval.QueueIntervals) bool {
	a, b = a.Normalize(), b.Normalize()
	for _, q := range append(a.Queues(), b.Queues()...) {
		if !sameList(a[q].Guaranteed, b[q].Guaranteed) || !sameList(a[q].Possible, b[q].Possible) {
			return false
		}
	}
	return true
}

func sameList(a, b []interval.Interval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Announcements
// --------------------------------------------------------------------------

// IngestAnnouncementText extracts ad-hoc outages from free text, stores the
// new ones and arms their timers. It returns every outage found in text.
func (e *Engine) IngestAnnouncementText(ctx context.Context, date time.Time, text string) ([]interval.AnnouncementOutage, error) {
	date = interval.DateOnly(date)
	outages := announcement.ExtractOutages(date, text)
	if len(outages) == 0 {
		e.metrics.Ingest("announcement", string(OutcomeUnchanged))
		return nil, nil
	}

	fresh, err := e.store.SaveAnnouncements(ctx, outages)
	if err != nil {
		e.metrics.Ingest("announcement", string(OutcomeFailed))
		return nil, fmt.Errorf("save announcements: %w", err)
	}
	e.metrics.Ingest("announcement", string(OutcomeUpdated))
	if len(fresh) > 0 {
		e.changed(date)
	}
	e.logger.Info("Announcement outages ingested",
		"date", date.Format(interval.DateLayout),
		"found", len(outages),
		"new", len(fresh))

	if e.scheduler != nil {
		if _, err := e.scheduler.SyncAnnouncements(ctx, date, outages); err != nil {
			e.logger.Warn("Announcement timer sync failed, will retry on tick", "error", err)
		}
	}
	return outages, nil
}

// PageResult summarises one announcement page observation.
type PageResult struct {
	Changed       bool                          `json:"changed"`
	NewParagraphs int                           `json:"new_paragraphs"`
	Notices       []announcement.Notice         `json:"notices,omitempty"`
	Outages       []interval.AnnouncementOutage `json:"outages,omitempty"`
}

// IngestPage handles a fetched announcement page. The paragraph baseline is
// kept next to the source hash, so it survives restarts. The first
// observation only records it. After that, only text new since the baseline
// is mined for outages of date, and notices assembled from it are broadcast
// once.
func (e *Engine) IngestPage(ctx context.Context, sourceID string, paragraphs []string, date time.Time) (PageResult, error) {
	prev, seen, err := e.detector.Baseline(ctx, sourceID)
	if err != nil {
		return PageResult{}, err
	}
	changed, err := e.detector.HasChanged(ctx, sourceID, []byte(joinParagraphs(paragraphs)))
	if err != nil {
		return PageResult{}, err
	}
	if !changed {
		e.metrics.Ingest("page", string(OutcomeUnchanged))
		if !seen {
			return PageResult{}, e.detector.SetBaseline(ctx, sourceID, paragraphs)
		}
		return PageResult{}, nil
	}

	res := PageResult{Changed: true}
	if !seen {
		if err := e.detector.SetBaseline(ctx, sourceID, paragraphs); err != nil {
			e.forget(ctx, sourceID)
			return res, err
		}
		e.logger.Info("Announcement page baseline recorded", "source", sourceID, "paragraphs", len(paragraphs))
		return res, nil
	}

	res.NewParagraphs = len(announcement.NewParagraphs(prev, paragraphs))
	if text := announcement.NewText(prev, paragraphs); text != "" {
		outages, err := e.IngestAnnouncementText(ctx, date, text)
		if err != nil {
			e.forget(ctx, sourceID)
			return res, err
		}
		res.Outages = outages
	}
	if err := e.detector.SetBaseline(ctx, sourceID, paragraphs); err != nil {
		e.forget(ctx, sourceID)
		return res, err
	}

	res.Notices = announcement.Notices(prev, paragraphs)
	if e.scheduler == nil {
		return res, nil
	}
	for _, n := range res.Notices {
		ev := e.scheduler.Planner().Notice(interval.DateOnly(date), n.Title, n.Body, n.Hash)
		if _, err := e.scheduler.Broadcast(ctx, ev); err != nil {
			e.logger.Warn("Notice broadcast failed", "title", n.Title, "error", err)
		}
	}
	return res, nil
}

// forget drops a source hash so the next poll processes the content again.
func (e *Engine) forget(ctx context.Context, sourceID string) {
	if err := e.detector.Forget(ctx, sourceID); err != nil {
		e.logger.Error("Failed to forget source hash", "source", sourceID, "error", err)
	}
}

func joinParagraphs(paragraphs []string) string {
	n := 0
	for _, p := range paragraphs {
		n += len(p) + 1
	}
	buf := make([]byte, 0, n)
	for i, p := range paragraphs {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, p...)
	}
	return string(buf)
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// DayView is the schedule of one date with announcement outages merged in.
type DayView struct {
	Date          string                        `json:"date"`
	Region        string                        `json:"region"`
	ContentHash   string                        `json:"content_hash,omitempty"`
	UpdatedAt     *time.Time                    `json:"updated_at,omitempty"`
	Queues        interval.QueueIntervals       `json:"queues"`
	Announcements []interval.AnnouncementOutage `json:"announcements"`
}

// Schedule returns the augmented schedule of date. It returns
// schedule.ErrNotFound when neither a day nor announcements exist.
func (e *Engine) Schedule(ctx context.Context, date time.Time) (DayView, error) {
	date = interval.DateOnly(date)
	view := DayView{Date: date.Format(interval.DateLayout), Region: e.region}

	day, err := e.store.Active(ctx, date, e.region)
	found := err == nil
	if err != nil && !errors.Is(err, schedule.ErrNotFound) {
		return view, fmt.Errorf("load schedule: %w", err)
	}
	extra, err := e.store.Announcements(ctx, date)
	if err != nil {
		return view, fmt.Errorf("load announcements: %w", err)
	}
	if !found && len(extra) == 0 {
		return view, schedule.ErrNotFound
	}
	if found {
		view.ContentHash = day.ContentHash
		created := day.CreatedAt
		view.UpdatedAt = &created
	}
	view.Queues = interval.Augment(day.Intervals, extra)
	view.Announcements = extra
	if view.Announcements == nil {
		view.Announcements = []interval.AnnouncementOutage{}
	}
	return view, nil
}

// QueryStatus returns the status of queue at hour on date. Guaranteed
// outages, including announcement outages, take precedence over possible
// ones.
func (e *Engine) QueryStatus(ctx context.Context, queue string, date time.Time, hour float64) (interval.Status, error) {
	view, err := e.Schedule(ctx, date)
	if err != nil {
		return interval.StatusClear, err
	}
	return interval.StatusAt(view.Queues[queue], hour), nil
}

// OnTick advances timers and recovery. The host calls it periodically.
func (e *Engine) OnTick(ctx context.Context) error {
	if e.scheduler == nil {
		return nil
	}
	return e.scheduler.Tick(ctx)
}
