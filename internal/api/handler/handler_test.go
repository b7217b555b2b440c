package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prosvitlo/prosvitlo-data/internal/cache"
	"github.com/prosvitlo/prosvitlo-data/internal/config"
	"github.com/prosvitlo/prosvitlo-data/internal/engine"
	"github.com/prosvitlo/prosvitlo-data/internal/interval"
	"github.com/prosvitlo/prosvitlo-data/internal/notifications"
	"github.com/prosvitlo/prosvitlo-data/internal/schedule"
)

var (
	kyiv  = time.FixedZone("EET", 2*60*60)
	today = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
)

type fakeEngine struct {
	views     map[string]engine.DayView
	scheduleN int
	outcome   engine.Outcome
	err       error

	lastSource string
	lastHour   float64
	lastDate   time.Time
}

func (f *fakeEngine) Region() string   { return "hoe" }
func (f *fakeEngine) Today() time.Time { return today }

func (f *fakeEngine) Schedule(_ context.Context, date time.Time) (engine.DayView, error) {
	f.scheduleN++
	v, ok := f.views[date.Format(interval.DateLayout)]
	if !ok {
		return engine.DayView{}, schedule.ErrNotFound
	}
	return v, nil
}

func (f *fakeEngine) QueryStatus(ctx context.Context, queue string, date time.Time, hour float64) (interval.Status, error) {
	f.lastHour, f.lastDate = hour, date
	v, err := f.Schedule(ctx, date)
	if err != nil {
		return interval.StatusClear, err
	}
	return interval.StatusAt(v.Queues[queue], hour), nil
}

func (f *fakeEngine) IngestImage(_ context.Context, sourceID string, _ []byte, date time.Time) (engine.Outcome, error) {
	f.lastSource, f.lastDate = sourceID, date
	return f.outcome, f.err
}

func (f *fakeEngine) IngestScheduleText(_ context.Context, sourceID, _ string, date time.Time) (engine.Outcome, error) {
	f.lastSource, f.lastDate = sourceID, date
	return f.outcome, f.err
}

func (f *fakeEngine) IngestAnnouncementText(_ context.Context, date time.Time, text string) ([]interval.AnnouncementOutage, error) {
	f.lastDate = date
	if f.err != nil {
		return nil, f.err
	}
	if !strings.Contains(text, "3.1") {
		return nil, nil
	}
	return []interval.AnnouncementOutage{{ID: "a1", Date: date, Queue: "3.1", Start: 10, End: 14}}, nil
}

type fakeTimers []notifications.TimerInfo

func (f fakeTimers) Timers() []notifications.TimerInfo { return f }

type fakeDB struct{ err error }

func (f fakeDB) HealthCheck(context.Context) error { return f.err }

func newTestHandler(eng *fakeEngine) (*Handler, *chi.Mux) {
	cfg := &config.Config{Location: kyiv, CacheTTL: time.Minute}
	h := New(eng, fakeTimers{{State: "pending"}}, nil, cache.New(true, time.Minute), cfg)
	h.now = func() time.Time { return time.Date(2026, 10, 15, 13, 30, 0, 0, kyiv) }

	r := chi.NewRouter()
	r.Get("/", h.Root)
	r.Get("/health/db", h.HealthCheckDB)
	r.Get("/api/v1/schedule/{date}", h.GetSchedule)
	r.Get("/api/v1/status/{queue}", h.GetStatus)
	r.Get("/api/v1/timers", h.GetTimers)
	r.Post("/api/v1/ingest/image", h.PostImage)
	r.Post("/api/v1/ingest/schedule-text", h.PostScheduleText)
	r.Post("/api/v1/ingest/announcement", h.PostAnnouncement)
	return h, r
}

func do(r http.Handler, method, target string, body []byte, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func sampleView() engine.DayView {
	return engine.DayView{
		Date:   "2026-10-15",
		Region: "hoe",
		Queues: interval.QueueIntervals{
			"1.1": {Guaranteed: []interval.Interval{{Start: 13, End: 15, Kind: interval.Guaranteed}}},
			"2.1": {Possible: []interval.Interval{{Start: 12, End: 14, Kind: interval.Possible}}},
		},
		Announcements: []interval.AnnouncementOutage{},
	}
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

func TestGetScheduleCachesWithETag(t *testing.T) {
	eng := &fakeEngine{views: map[string]engine.DayView{"2026-10-15": sampleView()}}
	_, r := newTestHandler(eng)

	rec := do(r, http.MethodGet, "/api/v1/schedule/2026-10-15", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	var view engine.DayView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "hoe", view.Region)

	rec = do(r, http.MethodGet, "/api/v1/schedule/today", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	rec = do(r, http.MethodGet, "/api/v1/schedule/2026-10-15", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Equal(t, 1, eng.scheduleN)
}

func TestGetScheduleErrors(t *testing.T) {
	_, r := newTestHandler(&fakeEngine{})

	rec := do(r, http.MethodGet, "/api/v1/schedule/15.10.2026", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_DATE")

	rec = do(r, http.MethodGet, "/api/v1/schedule/2026-10-16", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStatus(t *testing.T) {
	eng := &fakeEngine{views: map[string]engine.DayView{"2026-10-15": sampleView()}}
	_, r := newTestHandler(eng)

	tests := []struct {
		target string
		code   int
		status interval.Status
	}{
		{"/api/v1/status/1.1", http.StatusOK, interval.StatusOutage},
		{"/api/v1/status/2.1?hour=13:00", http.StatusOK, interval.StatusPossible},
		{"/api/v1/status/1.1?hour=16", http.StatusOK, interval.StatusClear},
		{"/api/v1/status/1.1?date=2026-10-15&hour=14.5", http.StatusOK, interval.StatusOutage},
		{"/api/v1/status/7.1", http.StatusBadRequest, ""},
		{"/api/v1/status/1.1?hour=24", http.StatusBadRequest, ""},
		{"/api/v1/status/1.1?hour=12:75", http.StatusBadRequest, ""},
		{"/api/v1/status/1.1?date=2026-10-16", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(r, http.MethodGet, tt.target, nil)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusOK {
				return
			}
			var resp StatusResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
		})
	}
}

func TestGetStatusDefaultsToNow(t *testing.T) {
	eng := &fakeEngine{views: map[string]engine.DayView{"2026-10-15": sampleView()}}
	_, r := newTestHandler(eng)

	rec := do(r, http.MethodGet, "/api/v1/status/1.1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 13.5, eng.lastHour, 1e-9)
	assert.Equal(t, today, eng.lastDate)
}

func TestGetTimers(t *testing.T) {
	_, r := newTestHandler(&fakeEngine{})
	rec := do(r, http.MethodGet, "/api/v1/timers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Contains(t, rec.Body.String(), `"state":"pending"`)
}

// --------------------------------------------------------------------------
// Ingestion
// --------------------------------------------------------------------------

func TestPostImage(t *testing.T) {
	day := schedule.Day{ContentHash: "abc", Intervals: sampleView().Queues}
	eng := &fakeEngine{outcome: engine.Outcome{Status: engine.OutcomeUpdated, Day: day}}
	_, r := newTestHandler(eng)

	rec := do(r, http.MethodPost, "/api/v1/ingest/image?date=2026-10-16", []byte("png"))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, engine.OutcomeUpdated, resp.Status)
	assert.Equal(t, "abc", resp.ContentHash)
	assert.Equal(t, "2026-10-16", resp.Date)
	assert.Equal(t, "upload:image:hoe:2026-10-16", eng.lastSource)

	do(r, http.MethodPost, "/api/v1/ingest/image?date=2026-10-16&source=cdn", []byte("png"))
	assert.Equal(t, "cdn", eng.lastSource)
}

func TestPostImageOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		eng    *fakeEngine
		target string
		body   []byte
		code   int
	}{
		{"missing date", &fakeEngine{}, "/api/v1/ingest/image", []byte("png"), http.StatusBadRequest},
		{"empty body", &fakeEngine{}, "/api/v1/ingest/image?date=2026-10-15", nil, http.StatusBadRequest},
		{
			"unchanged",
			&fakeEngine{outcome: engine.Outcome{Status: engine.OutcomeUnchanged, Err: engine.ErrSourceUnchanged}},
			"/api/v1/ingest/image?date=2026-10-15", []byte("png"), http.StatusOK,
		},
		{
			"unusable image",
			&fakeEngine{outcome: engine.Outcome{Status: engine.OutcomeFailed, Err: errors.New("decode schedule image")}},
			"/api/v1/ingest/image?date=2026-10-15", []byte("png"), http.StatusUnprocessableEntity,
		},
		{
			"store failure",
			&fakeEngine{outcome: engine.Outcome{Status: engine.OutcomeFailed}, err: errors.New("db down")},
			"/api/v1/ingest/image?date=2026-10-15", []byte("png"), http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := newTestHandler(tt.eng)
			rec := do(r, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestPostScheduleText(t *testing.T) {
	eng := &fakeEngine{outcome: engine.Outcome{Status: engine.OutcomeUpdated}}
	_, r := newTestHandler(eng)

	rec := do(r, http.MethodPost, "/api/v1/ingest/schedule-text", []byte(`{"text":"підчерга 1.1 – з 08:00 до 11:00"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, today, eng.lastDate, "date defaults to today")
	assert.Equal(t, "upload:text:hoe:2026-10-15", eng.lastSource)

	rec = do(r, http.MethodPost, "/api/v1/ingest/schedule-text", []byte(`{"date":"2026-10-15"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodPost, "/api/v1/ingest/schedule-text", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostAnnouncement(t *testing.T) {
	eng := &fakeEngine{}
	_, r := newTestHandler(eng)

	rec := do(r, http.MethodPost, "/api/v1/ingest/announcement",
		[]byte(`{"date":"2026-10-16","text":"з 10:00 до 14:00 буде відключено підчергу 3.1"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), eng.lastDate)

	rec = do(r, http.MethodPost, "/api/v1/ingest/announcement", []byte(`{"text":"нічого"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outages":[]`)

	eng.err = errors.New("db down")
	rec = do(r, http.MethodPost, "/api/v1/ingest/announcement", []byte(`{"text":"підчерга 3.1"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --------------------------------------------------------------------------
// Health
// --------------------------------------------------------------------------

func TestHealthCheckDB(t *testing.T) {
	h, r := newTestHandler(&fakeEngine{})

	rec := do(r, http.MethodGet, "/health/db", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"disabled"`)

	h.db = fakeDB{}
	rec = do(r, http.MethodGet, "/health/db", nil)
	assert.Contains(t, rec.Body.String(), `"database":"connected"`)

	h.db = fakeDB{err: errors.New("refused")}
	rec = do(r, http.MethodGet, "/health/db", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoot(t *testing.T) {
	_, r := newTestHandler(&fakeEngine{})
	rec := do(r, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"region":"hoe"`)
}
