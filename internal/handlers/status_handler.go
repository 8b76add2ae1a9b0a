package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/models"
)

// StatusProvider projects the execution log to the newest record per bot.
type StatusProvider interface {
	Status(ctx context.Context) (map[string]models.ExecutionRecord, error)
}

// StatusHandler handles HTTP requests for bot status
type StatusHandler struct {
	statusProvider StatusProvider
	logger         arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(statusProvider StatusProvider, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		statusProvider: statusProvider,
		logger:         logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	status, err := h.statusProvider.Status(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to project bot status")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, status)
}
