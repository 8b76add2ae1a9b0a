package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/services/registry"
	"github.com/ternarybob/ev0/internal/services/runner"
)

// BotView is a registry bot with its next scheduled run.
type BotView struct {
	registry.Bot
	NextRun *time.Time `json:"next_run,omitempty"`
}

type BotsHandler struct {
	registry *registry.Registry
	runner   runner.Runner
	location *time.Location
	logger   arbor.ILogger
}

func NewBotsHandler(reg *registry.Registry, run runner.Runner, location *time.Location, logger arbor.ILogger) *BotsHandler {
	if run == nil {
		run = runner.Disabled{}
	}
	if location == nil {
		location = time.UTC
	}
	return &BotsHandler{
		registry: reg,
		runner:   run,
		location: location,
		logger:   logger,
	}
}

// ListHandler handles GET /api/bots
func (h *BotsHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	now := time.Now().In(h.location)
	bots := h.registry.List()
	views := make([]BotView, 0, len(bots))
	for _, bot := range bots {
		view := BotView{Bot: bot}
		if next, ok := h.registry.NextRun(bot.Key, now); ok {
			view.NextRun = &next
		}
		views = append(views, view)
	}
	WriteJSON(w, http.StatusOK, views)
}

// GetHandler handles GET /api/bots/{key}
func (h *BotsHandler) GetHandler(w http.ResponseWriter, r *http.Request, key string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	bot, ok := h.registry.Get(key)
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown bot: "+key)
		return
	}
	view := BotView{Bot: bot}
	if next, ok := h.registry.NextRun(key, time.Now().In(h.location)); ok {
		view.NextRun = &next
	}
	WriteJSON(w, http.StatusOK, view)
}

// RunHandler handles POST /api/bots/{key}/run
func (h *BotsHandler) RunHandler(w http.ResponseWriter, r *http.Request, key string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.runner.Start(r.Context(), key); err != nil {
		h.runnerError(w, err, key)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started", "bot": key})
}

// StopHandler handles POST /api/bots/{key}/stop
func (h *BotsHandler) StopHandler(w http.ResponseWriter, r *http.Request, key string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.runner.Stop(key); err != nil {
		h.runnerError(w, err, key)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "stopping", "bot": key})
}

func (h *BotsHandler) runnerError(w http.ResponseWriter, err error, key string) {
	switch {
	case errors.Is(err, runner.ErrExecutionDisabled):
		WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, registry.ErrUnknownBot):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrAlreadyRunning), errors.Is(err, runner.ErrNotRunning):
		WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error().Err(err).Str("bot", key).Msg("Runner request failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
