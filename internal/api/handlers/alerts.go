package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/andrew/mentor-gateway/internal/database"
	"github.com/andrew/mentor-gateway/internal/database/models"
)

// AlertStore persists quota alerts
type AlertStore interface {
	ListQuotaAlerts(ctx context.Context, unacknowledgedOnly bool, limit int) ([]models.QuotaAlert, error)
	AcknowledgeQuotaAlert(ctx context.Context, id int64) error
}

// AlertHandler handles quota alert requests
type AlertHandler struct {
	store AlertStore
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(store AlertStore) *AlertHandler {
	return &AlertHandler{store: store}
}

// HandleListAlerts handles GET /v1/ai/alerts. Only unacknowledged alerts are listed unless all=true.
func (h *AlertHandler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	all := query.Get("all") == "true"

	limit := 100
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	alerts, err := h.store.ListQuotaAlerts(r.Context(), !all, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve alerts")
		return
	}
	if alerts == nil {
		alerts = []models.QuotaAlert{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
	})
}

// HandleAcknowledgeAlert handles POST /v1/ai/alerts/{id}/ack
func (h *AlertHandler) HandleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	err = h.store.AcknowledgeQuotaAlert(r.Context(), id)
	if errors.Is(err, database.ErrAlertNotFound) {
		respondError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to acknowledge alert")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":           id,
		"acknowledged": true,
	})
}
