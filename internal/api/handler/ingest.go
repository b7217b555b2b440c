package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prosvitlo/prosvitlo-data/internal/api/respond"
	"github.com/prosvitlo/prosvitlo-data/internal/changes"
	"github.com/prosvitlo/prosvitlo-data/internal/engine"
	"github.com/prosvitlo/prosvitlo-data/internal/interval"
)

// maxImageBytes bounds uploaded table images.
const maxImageBytes = 10 << 20

// IngestResponse reports the outcome of a schedule ingestion.
type IngestResponse struct {
	Status      engine.OutcomeStatus    `json:"status"`
	Date        string                  `json:"date"`
	ContentHash string                  `json:"content_hash,omitempty"`
	Queues      interval.QueueIntervals `json:"queues,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

// TextRequest is the body of the text ingestion endpoints.
type TextRequest struct {
	Date   string `json:"date"`
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// PostImage ingests a schedule table image.
// @Summary Ingest schedule image
// @Description Parses a PNG, JPEG, GIF or WebP table image into per-queue intervals for a date. Unchanged bytes are reported as unchanged; unusable images leave the stored schedule untouched.
// @Tags ingest
// @Accept octet-stream
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param source query string false "Source id used for change detection"
// @Success 200 {object} IngestResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 422 {object} IngestResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/ingest/image [post]
func (h *Handler) PostImage(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r.URL.Query().Get("date"))
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageBytes))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Failed to read image", err.Error())
		return
	}
	if len(data) == 0 {
		respond.WriteError(w, http.StatusBadRequest, "EMPTY_BODY", "Request body must contain the image")
		return
	}
	sourceID := h.sourceID(r.URL.Query().Get("source"), "image", date)

	out, err := h.engine.IngestImage(r.Context(), sourceID, data, date)
	h.writeOutcome(w, date, out, err)
}

// PostScheduleText ingests a per-queue text schedule.
// @Summary Ingest text schedule
// @Description Parses lines like "підчерга 1.1 – з 08:00 до 11:00" into the schedule of a date.
// @Tags ingest
// @Accept json
// @Produce json
// @Param body body TextRequest true "Date and schedule text"
// @Success 200 {object} IngestResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 422 {object} IngestResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/ingest/schedule-text [post]
func (h *Handler) PostScheduleText(w http.ResponseWriter, r *http.Request) {
	req, date, ok := h.decodeText(w, r)
	if !ok {
		return
	}
	sourceID := h.sourceID(req.Source, "text", date)
	out, err := h.engine.IngestScheduleText(r.Context(), sourceID, req.Text, date)
	h.writeOutcome(w, date, out, err)
}

// PostAnnouncement mines ad-hoc outages from announcement text.
// @Summary Ingest announcement text
// @Description Extracts queue outage windows from free announcement text, stores new ones and arms their notification timers.
// @Tags ingest
// @Accept json
// @Produce json
// @Param body body TextRequest true "Date and announcement text"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/ingest/announcement [post]
func (h *Handler) PostAnnouncement(w http.ResponseWriter, r *http.Request) {
	req, date, ok := h.decodeText(w, r)
	if !ok {
		return
	}
	outages, err := h.engine.IngestAnnouncementText(r.Context(), date, req.Text)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Failed to store announcement", err.Error())
		return
	}
	if outages == nil {
		outages = []interval.AnnouncementOutage{}
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"date":    date.Format(interval.DateLayout),
		"count":   len(outages),
		"outages": outages,
	})
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (h *Handler) decodeText(w http.ResponseWriter, r *http.Request) (TextRequest, time.Time, bool) {
	var req TextRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Body must be a JSON object", err.Error())
		return req, time.Time{}, false
	}
	if strings.TrimSpace(req.Text) == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_TEXT", "text is required")
		return req, time.Time{}, false
	}
	if req.Date == "" {
		return req, h.engine.Today(), true
	}
	date, ok := h.dateParam(w, req.Date)
	return req, date, ok
}

// sourceID keys manual uploads apart from the pollers so an upload never
// masks the next poll of the same date.
func (h *Handler) sourceID(given, kind string, date time.Time) string {
	if given != "" {
		return given
	}
	return changes.Key("upload", kind, h.engine.Region(), date.Format(interval.DateLayout))
}

func (h *Handler) writeOutcome(w http.ResponseWriter, date time.Time, out engine.Outcome, err error) {
	resp := IngestResponse{Status: out.Status, Date: date.Format(interval.DateLayout)}
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORE_FAILURE", "Failed to store schedule", err.Error())
		return
	}
	switch out.Status {
	case engine.OutcomeUpdated:
		resp.ContentHash = out.Day.ContentHash
		resp.Queues = out.Day.Intervals
	case engine.OutcomeFailed:
		if out.Err != nil {
			resp.Error = out.Err.Error()
		}
		respond.WriteJSONObject(w, http.StatusUnprocessableEntity, resp)
		return
	case engine.OutcomeUnchanged:
		if out.Err != nil && !errors.Is(out.Err, engine.ErrSourceUnchanged) {
			resp.Error = out.Err.Error()
		}
	}
	respond.WriteJSONObject(w, http.StatusOK, resp)
}
