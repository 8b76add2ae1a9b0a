package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/models"
)

const maxBodyBytes = 1 << 20

// ExecutionLog is the execution-log surface served under /api/logs.
type ExecutionLog interface {
	List(ctx context.Context) ([]models.ExecutionRecord, error)
	ListByBot(ctx context.Context, botID string) ([]models.ExecutionRecord, error)
	Append(ctx context.Context, record models.ExecutionRecord) error
}

// LogsHandler serves the execution log.
type LogsHandler struct {
	log    ExecutionLog
	logger arbor.ILogger
}

func NewLogsHandler(log ExecutionLog, logger arbor.ILogger) *LogsHandler {
	return &LogsHandler{
		log:    log,
		logger: logger,
	}
}

// ListHandler handles GET /api/logs
func (h *LogsHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	records, err := h.log.List(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to read execution log")
		return
	}
	WriteJSON(w, http.StatusOK, records)
}

// ListByBotHandler handles GET /api/logs/{botId}
func (h *LogsHandler) ListByBotHandler(w http.ResponseWriter, r *http.Request, botID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	records, err := h.log.ListByBot(r.Context(), botID)
	if err != nil {
		h.fail(w, err, "Failed to read execution log")
		return
	}
	WriteJSON(w, http.StatusOK, records)
}

// AppendHandler handles POST /api/logs
func (h *LogsHandler) AppendHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, fmt.Errorf("failed to read request body: %w", err), "Failed to read request body")
		return
	}

	var record models.ExecutionRecord
	if err := json.Unmarshal(body, &record); err != nil {
		h.fail(w, fmt.Errorf("invalid JSON body: %w", err), "Failed to decode execution record")
		return
	}

	if err := h.log.Append(r.Context(), record); err != nil {
		h.fail(w, err, "Failed to append execution record")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Log added",
	})
}

// fail maps every error to 500 {"error": message}.
func (h *LogsHandler) fail(w http.ResponseWriter, err error, msg string) {
	h.logger.Error().Err(err).Msg(msg)
	WriteError(w, http.StatusInternalServerError, err.Error())
}
