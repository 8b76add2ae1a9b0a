package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Execution log
	mux.HandleFunc("/api/logs", s.handleLogsRoute)                      // GET (list), POST (append)
	mux.HandleFunc("/api/logs/", s.handleLogRoutes)                     // GET /{botId}
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler) // GET - newest record per bot

	// API routes - Bots
	mux.HandleFunc("/api/bots", s.app.BotsHandler.ListHandler)
	mux.HandleFunc("/api/bots/", s.handleBotRoutes)
	mux.HandleFunc("/api/botlogs", s.app.BotLogsHandler.ListHandler)
	mux.HandleFunc("/api/botlogs/", s.handleBotLogRoutes)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched routes
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleLogsRoute routes /api/logs requests (list and append)
func (s *Server) handleLogsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.LogsHandler.ListHandler, s.app.LogsHandler.AppendHandler)
}

// handleLogRoutes routes /api/logs/ (full list) and /api/logs/{botId}
func (s *Server) handleLogRoutes(w http.ResponseWriter, r *http.Request) {
	segments := PathSegments(r.URL.Path, "/api/logs/")

	switch len(segments) {
	case 0:
		s.app.LogsHandler.ListHandler(w, r)
	case 1:
		s.app.LogsHandler.ListByBotHandler(w, r, segments[0])
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}

// handleBotRoutes routes /api/bots/{key}, /api/bots/{key}/run and /api/bots/{key}/stop
func (s *Server) handleBotRoutes(w http.ResponseWriter, r *http.Request) {
	segments := PathSegments(r.URL.Path, "/api/bots/")

	switch {
	case len(segments) == 1:
		s.app.BotsHandler.GetHandler(w, r, segments[0])
	case len(segments) == 2 && segments[1] == "run":
		s.app.BotsHandler.RunHandler(w, r, segments[0])
	case len(segments) == 2 && segments[1] == "stop":
		s.app.BotsHandler.StopHandler(w, r, segments[0])
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}

// handleBotLogRoutes routes /api/botlogs/{botKey}
func (s *Server) handleBotLogRoutes(w http.ResponseWriter, r *http.Request) {
	segments := PathSegments(r.URL.Path, "/api/botlogs/")
	if len(segments) != 1 {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}
	s.app.BotLogsHandler.EntriesHandler(w, r, segments[0])
}
