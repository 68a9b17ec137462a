package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/andrew/mentor-gateway/internal/agents"
	"github.com/andrew/mentor-gateway/internal/fallback"
	"github.com/andrew/mentor-gateway/internal/orchestrator"
)

// StatusSource is the read side of the orchestrator
type StatusSource interface {
	Status(ctx context.Context) orchestrator.StatusSnapshot
	Quota(ctx context.Context, name string) (agents.QuotaStatus, error)
}

// CacheStatsSource reports fallback cache accounting
type CacheStatsSource interface {
	Stats() fallback.Stats
}

// StatusHandler serves provider health, quota and cache statistics
type StatusHandler struct {
	orch  StatusSource
	cache CacheStatsSource
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(orch StatusSource, cache CacheStatsSource) *StatusHandler {
	return &StatusHandler{orch: orch, cache: cache}
}

// StatusResponse is the dashboard payload
type StatusResponse struct {
	orchestrator.StatusSnapshot
	Cache fallback.Stats `json:"cache"`
}

// HandleStatus handles GET /v1/ai/status
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{
		StatusSnapshot: h.orch.Status(r.Context()),
		Cache:          h.cache.Stats(),
	})
}

// HandleQuota handles GET /v1/ai/quota?provider=
func (h *StatusHandler) HandleQuota(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")

	quota, err := h.orch.Quota(r.Context(), provider)
	if errors.Is(err, orchestrator.ErrUnknownProvider) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read quota")
		return
	}

	respondJSON(w, http.StatusOK, quota)
}
