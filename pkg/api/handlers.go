package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/l10dash/l10dash/pkg/ingest"
	"github.com/l10dash/l10dash/pkg/store"
)

const (
	defaultRecentLimit = 100
	maxRecentLimit     = 2000

	// defaultStatsWindow is used when the caller gives no bounds.
	defaultStatsWindow = 24 * time.Hour
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats returns the aggregate summary for the requested window.
// Bounds come as unix seconds or RFC 3339; omitted bounds default to
// the last 24 hours.
func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if window.From.IsZero() && window.To.IsZero() {
		window.From = time.Now().UTC().Add(-defaultStatsWindow)
	}

	summary, err := s.engine.Summarize(r.Context(), window)
	if err != nil {
		s.log.WithError(err).Error("Summarize failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"summarizing results"})

		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleRecent returns the newest results, optionally windowed.
func (s *server) handleRecent(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"invalid limit"})

			return
		}

		limit = parsed
	}

	if limit < 1 {
		limit = 1
	}

	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	views, err := s.engine.RecentResults(r.Context(), limit, window)
	if err != nil {
		s.log.WithError(err).Error("Recent results query failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing recent results"})

		return
	}

	writeJSON(w, http.StatusOK, views)
}

// scannerStatusResponse reports scheduler state and the last pass.
type scannerStatusResponse struct {
	State     ingest.State       `json:"state"`
	LastPass  *ingest.PassReport `json:"last_pass,omitempty"`
	LastError string             `json:"last_error,omitempty"`
}

// handleScannerStatus exposes the ingestion diagnostics: scheduler
// state plus the most recent pass report and failure, if any.
func (s *server) handleScannerStatus(w http.ResponseWriter, _ *http.Request) {
	report, lastErr := s.sched.LastPass()

	resp := scannerStatusResponse{
		State:    s.sched.State(),
		LastPass: report,
	}

	if lastErr != nil {
		resp.LastError = lastErr.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseWindow reads optional from/to query bounds. Values are unix
// seconds or RFC 3339 timestamps; the window is From inclusive, To
// exclusive.
func parseWindow(r *http.Request) (store.TimeRange, error) {
	var window store.TimeRange

	q := r.URL.Query()

	for name, dst := range map[string]*time.Time{
		"from": &window.From,
		"to":   &window.To,
	} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}

		t, err := parseTimeParam(raw)
		if err != nil {
			return store.TimeRange{}, err
		}

		*dst = t
	}

	return window, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		sec, frac := int64(secs), secs-float64(int64(secs))

		return time.Unix(sec, int64(frac*1e9)).UTC(), nil
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New(
			"time bounds must be unix seconds or RFC 3339",
		)
	}

	return t.UTC(), nil
}
