package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/common"
)

type APIHandler struct {
	environment string
	now         func() time.Time
	logger      arbor.ILogger
}

func NewAPIHandler(environment string, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		environment: environment,
		now:         time.Now,
		logger:      logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, common.GetVersionInfo())
}

// HealthHandler handles GET /api/health
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"timestamp":   h.now().UTC().Format(time.RFC3339),
		"environment": h.environment,
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error": "Not Found",
		"path":  r.URL.Path,
	})
}
