package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", s.handleHealth)

		// Power transition endpoints
		r.Route("/power", func(r chi.Router) {
			r.Get("/stats", s.handlePowerStats)
			r.Get("/devices", s.handleListPowerDevices)
			r.Post("/suspend", s.handleSuspend)
			r.Post("/resume", s.handleResume)

			r.Route("/history", func(r chi.Router) {
				r.Get("/", s.handleListHistory)
				r.Get("/{id}", s.handleGetTransition)
			})
		})

		// WebSocket (transition progress stream)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"transition": s.engine.Transition().String(),
	})
}
