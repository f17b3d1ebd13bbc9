package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-power/internal/history"
)

// handleListHistory returns recorded transitions, newest first.
//
// Query parameters:
//   - event: filter by event name (suspend, hibernate, ...)
//   - status: filter by outcome (success, failure)
//   - limit: maximum rows to return (default 50, capped at 200)
//   - offset: rows to skip for pagination
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "transition history is not configured")
		return
	}

	filter := history.Filter{
		Event:  r.URL.Query().Get("event"),
		Status: r.URL.Query().Get("status"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "invalid offset")
			return
		}
		filter.Offset = n
	}

	result, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list transition history", "error", err)
		writeInternalError(w, "failed to list transitions")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetTransition returns one transition, including per-device failures.
func (s *Server) handleGetTransition(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "transition history is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	tr, err := s.history.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeNotFound(w, "transition not found")
			return
		}
		s.logger.Error("failed to load transition", "id", id, "error", err)
		writeInternalError(w, "failed to load transition")
		return
	}

	writeJSON(w, http.StatusOK, tr)
}
