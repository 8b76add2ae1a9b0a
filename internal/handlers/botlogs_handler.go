package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/services/botlogs"
)

const defaultEntryLimit = 200

type BotLogsHandler struct {
	service *botlogs.Service
	logger  arbor.ILogger
}

func NewBotLogsHandler(service *botlogs.Service, logger arbor.ILogger) *BotLogsHandler {
	return &BotLogsHandler{
		service: service,
		logger:  logger,
	}
}

// ListHandler handles GET /api/botlogs
func (h *BotLogsHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	files, err := h.service.ListLogFiles()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list bot log files")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, files)
}

// EntriesHandler handles GET /api/botlogs/{botKey}?date=YYYY-MM-DD&limit=N
func (h *BotLogsHandler) EntriesHandler(w http.ResponseWriter, r *http.Request, botKey string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.service.Today()
	}

	limit := defaultEntryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.service.Entries(botKey, date, limit)
	if errors.Is(err, botlogs.ErrNoLogToday) {
		WriteJSON(w, http.StatusOK, []botlogs.LogEntry{})
		return
	}
	if errors.Is(err, botlogs.ErrInvalidDate) {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("bot", botKey).Str("date", date).Msg("Failed to read bot log")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, entries)
}
