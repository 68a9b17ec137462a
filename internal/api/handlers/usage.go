package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/andrew/mentor-gateway/internal/database/models"
)

// UsageStore reads the usage log
type UsageStore interface {
	GetUsageLogs(ctx context.Context, provider string, limit, offset int, since *time.Time) ([]models.UsageLog, error)
	GetUsageStats(ctx context.Context, since *time.Time) (*models.UsageStats, error)
}

// UsageHandler handles usage tracking requests
type UsageHandler struct {
	store UsageStore
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(store UsageStore) *UsageHandler {
	return &UsageHandler{store: store}
}

// parseSince reads the optional RFC3339 since parameter
func parseSince(r *http.Request) (*time.Time, bool) {
	st := r.URL.Query().Get("since")
	if st == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, st)
	if err != nil {
		return nil, false
	}
	return &t, true
}

// HandleGetUsageLogs handles GET /v1/ai/usage/logs
func (h *UsageHandler) HandleGetUsageLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 100
	offset := 0

	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	if o := query.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	since, ok := parseSince(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
		return
	}

	logs, err := h.store.GetUsageLogs(r.Context(), query.Get("provider"), limit, offset, since)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve usage logs")
		return
	}
	if logs == nil {
		logs = []models.UsageLog{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"logs":   logs,
		"limit":  limit,
		"offset": offset,
	})
}

// HandleGetUsageStats handles GET /v1/ai/usage
func (h *UsageHandler) HandleGetUsageStats(w http.ResponseWriter, r *http.Request) {
	since, ok := parseSince(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
		return
	}

	stats, err := h.store.GetUsageStats(r.Context(), since)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve usage stats")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
