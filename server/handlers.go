// Package server exposes the HTTP API handlers.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/onnwee/chanstats/metrics"
	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/report"
	"github.com/onnwee/chanstats/telemetry"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	store Store
	topN  int
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(store Store, topN int) *Handlers {
	return &Handlers{store: store, topN: topN}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// HandlePeriods lists stored periods, oldest first.
func (h *Handlers) HandlePeriods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	periods, err := h.store.Periods(r.Context())
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list periods", slog.Any("err", err), slog.String("component", "http"))
		writeError(w, http.StatusInternalServerError, "failed to list periods")
		return
	}
	if periods == nil {
		periods = []period.Period{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": periods})
}

type channelMetricsResponse struct {
	Period period.Period `json:"period"`
	By     metrics.Key   `json:"by"`
	Total  int           `json:"total"`
	Rows   []metrics.Row `json:"rows"`
}

// HandleChannelMetrics serves the stored rows of one period ranked by a key.
// Query: period=YYYY-MM (default latest), top=N (default configured, 0 = all),
// by=subscribers|views|ratio|live_ratio.
func (h *Handlers) HandleChannelMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "http"))

	key, err := metrics.ParseKey(r.URL.Query().Get("by"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	top := parseIntQuery(r, "top", h.topN)
	if top < 0 {
		writeError(w, http.StatusBadRequest, "top must be >= 0")
		return
	}

	p, ok, err := parsePeriodQuery(r, "period")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		periods, err := h.store.Periods(r.Context())
		if err != nil {
			log.Error("list periods", slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "failed to list periods")
			return
		}
		if len(periods) == 0 {
			writeError(w, http.StatusNotFound, "no computed periods stored")
			return
		}
		p = periods[len(periods)-1]
	}

	rows, err := h.store.Rows(r.Context(), p)
	if err != nil {
		log.Error("list channel metrics", slog.String("period", p.String()), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to list channel metrics")
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no channel metrics for %s", p))
		return
	}
	writeJSON(w, http.StatusOK, channelMetricsResponse{
		Period: p,
		By:     key,
		Total:  len(rows),
		Rows:   report.Top(rows, top, key),
	})
}
