package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prosvitlo/prosvitlo-data/internal/api/respond"
	"github.com/prosvitlo/prosvitlo-data/internal/cache"
	"github.com/prosvitlo/prosvitlo-data/internal/colortable"
	"github.com/prosvitlo/prosvitlo-data/internal/interval"
	"github.com/prosvitlo/prosvitlo-data/internal/schedule"
)

func scheduleCacheKey(date string) string { return "schedule:" + date }

// GetSchedule returns the schedule of one date with announcement outages
// merged in.
// @Summary Get day schedule
// @Description Returns per-queue outage intervals for a date, augmented with announcement outages. Use "today" for the current date in the service time zone.
// @Tags schedule
// @Produce json
// @Param date path string true "Date (YYYY-MM-DD or today)"
// @Success 200 {object} engine.DayView
// @Success 304 "Not modified"
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/schedule/{date} [get]
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}
	key := scheduleCacheKey(date.Format(interval.DateLayout))
	ttl := h.cfg.CacheTTL

	if data, etag, ok := h.cache.Get(key); ok {
		if cacheMatch(r, etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	view, err := h.engine.Schedule(r.Context(), date)
	if errors.Is(err, schedule.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "No schedule for "+date.Format(interval.DateLayout))
		return
	}
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Failed to load schedule", err.Error())
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Failed to encode schedule")
		return
	}
	etag := h.cache.Set(key, data, ttl)
	if cacheMatch(r, etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, data, etag, ttl, false)
}

// StatusResponse answers a status query.
type StatusResponse struct {
	Region string          `json:"region"`
	Queue  string          `json:"queue"`
	Date   string          `json:"date"`
	Hour   float64         `json:"hour"`
	Status interval.Status `json:"status"`
}

// GetStatus returns whether a queue is without power at an hour.
// @Summary Get queue status
// @Description Returns outage, possible or clear for a queue at an hour. Guaranteed outages, including announcement outages, take precedence. Date and hour default to now in the service time zone.
// @Tags schedule
// @Produce json
// @Param queue path string true "Queue id" example(3.1)
// @Param date query string false "Date (YYYY-MM-DD)"
// @Param hour query string false "Hour as decimal (13.5) or HH:MM"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/status/{queue} [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if !slices.Contains(colortable.Queues, queue) {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_QUEUE", "Unknown queue "+queue)
		return
	}

	now := h.now().In(h.cfg.Location)
	date := interval.DateOnly(now)
	if s := r.URL.Query().Get("date"); s != "" {
		var ok bool
		if date, ok = h.dateParam(w, s); !ok {
			return
		}
	}
	hour := float64(now.Hour()) + float64(now.Minute())/60
	if s := r.URL.Query().Get("hour"); s != "" {
		var err error
		if hour, err = parseHour(s); err != nil {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_HOUR", "hour must be in [0, 24)", err.Error())
			return
		}
	}

	status, err := h.engine.QueryStatus(r.Context(), queue, date, hour)
	if errors.Is(err, schedule.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "No schedule for "+date.Format(interval.DateLayout))
		return
	}
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Failed to query status", err.Error())
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	respond.WriteJSONObject(w, http.StatusOK, StatusResponse{
		Region: h.engine.Region(),
		Queue:  queue,
		Date:   date.Format(interval.DateLayout),
		Hour:   hour,
		Status: status,
	})
}

// GetTimers lists the armed notification timers.
// @Summary List notification timers
// @Description Returns a snapshot of the notification timers known to this instance, ordered by fire time.
// @Tags notifications
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/timers [get]
func (h *Handler) GetTimers(w http.ResponseWriter, r *http.Request) {
	if h.timers == nil {
		respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"timers": []interface{}{}})
		return
	}
	timers := h.timers.Timers()
	w.Header().Set("Cache-Control", "no-cache")
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"count":  len(timers),
		"timers": timers,
	})
}

// dateParam parses a YYYY-MM-DD date or "today", writing a 400 on failure.
func (h *Handler) dateParam(w http.ResponseWriter, s string) (time.Time, bool) {
	if s == "today" {
		return h.engine.Today(), true
	}
	date, err := interval.ParseDate(s)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func parseHour(s string) (float64, error) {
	var hour float64
	if hh, mm, ok := strings.Cut(s, ":"); ok {
		h, err := strconv.Atoi(hh)
		if err != nil {
			return 0, err
		}
		m, err := strconv.Atoi(mm)
		if err != nil || m < 0 || m >= 60 {
			return 0, errors.New("bad minutes")
		}
		hour = float64(h) + float64(m)/60
	} else {
		var err error
		if hour, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, err
		}
	}
	if hour < 0 || hour >= 24 {
		return 0, errors.New("out of range")
	}
	return hour, nil
}

func cacheMatch(r *http.Request, etag string) bool {
	return cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag)
}
