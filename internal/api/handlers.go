// Package api serves the analytics queries as read-only JSON over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rewired-gh/betpulse/internal/logger"
	"github.com/rewired-gh/betpulse/internal/models"
)

// Analytics is the query surface of the engine.
type Analytics interface {
	Metrics(tr *models.TimeRange) models.PerformanceMetrics
	MetricBreakdown() models.MetricBreakdown
	PlayerBreakdown() []models.BreakdownEntry
	TimeSeries(interval string) ([]models.TimeSeriesData, error)
	MarketMetrics(marketID string) (models.MarketMetrics, bool)
	MarketEfficiency(marketID string) (models.MarketEfficiency, bool)
	Anomalies(marketID string) []models.Anomaly
	Markets() []string
}

// AnomalyHistory reads archived anomalies.
type AnomalyHistory interface {
	RecentAnomalies(marketID string, k int) ([]models.Anomaly, error)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	analytics Analytics
	history   AnomalyHistory
}

// NewHandler creates a new handler. history may be nil.
func NewHandler(analytics Analytics, history AnomalyHistory) *Handler {
	return &Handler{analytics: analytics, history: history}
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "betpulse",
	})
}

// Metrics returns performance metrics, optionally limited by ?from= and ?to= (RFC 3339).
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	tr, err := parseRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.analytics.Metrics(tr))
}

func (h *Handler) Breakdown(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.analytics.MetricBreakdown())
}

func (h *Handler) PlayerBreakdown(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.analytics.PlayerBreakdown())
}

// TimeSeries returns snapshots downsampled to ?interval= (default 1d).
func (h *Handler) TimeSeries(w http.ResponseWriter, r *http.Request) {
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1d"
	}
	points, err := h.analytics.TimeSeries(interval)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusBadRequest, verr.Reason)
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, points)
}

func (h *Handler) Markets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.analytics.Markets())
}

func (h *Handler) Market(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "marketID")
	m, ok := h.analytics.MarketMetrics(id)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("market not found: %s", id))
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (h *Handler) MarketEfficiency(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "marketID")
	eff, ok := h.analytics.MarketEfficiency(id)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("market not found: %s", id))
		return
	}
	respondJSON(w, http.StatusOK, eff)
}

// MarketAnomalies evaluates the latest sample of a market.
func (h *Handler) MarketAnomalies(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.analytics.Anomalies(chi.URLParam(r, "marketID")))
}

// AnomalyHistory lists archived anomalies, newest first. Accepts ?market= and ?limit=.
func (h *Handler) AnomalyHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, http.StatusServiceUnavailable, "anomaly archive disabled")
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	anomalies, err := h.history.RecentAnomalies(r.URL.Query().Get("market"), limit)
	if err != nil {
		logger.Error("Failed to read anomaly archive: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to read anomaly archive")
		return
	}
	respondJSON(w, http.StatusOK, anomalies)
}

func parseRange(r *http.Request) (*models.TimeRange, error) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" && to == "" {
		return nil, nil
	}
	tr := &models.TimeRange{End: time.Now()}
	var err error
	if from != "" {
		if tr.Start, err = time.Parse(time.RFC3339, from); err != nil {
			return nil, fmt.Errorf("invalid from: %v", err)
		}
	}
	if to != "" {
		if tr.End, err = time.Parse(time.RFC3339, to); err != nil {
			return nil, fmt.Errorf("invalid to: %v", err)
		}
	}
	if tr.End.Before(tr.Start) {
		return nil, fmt.Errorf("to must not be before from")
	}
	return tr, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
