package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-power/internal/pm"
)

// suspendRequest is the body for POST /power/suspend.
// The event defaults to "suspend" when the body is empty.
type suspendRequest struct {
	Event string `json:"event"`
}

// transitionResponse reports the outcome of a driven transition.
type transitionResponse struct {
	TransitionID string  `json:"transition_id"`
	Event        string  `json:"event"`
	Status       string  `json:"status"`
	Error        string  `json:"error,omitempty"`
	DurationMS   float64 `json:"duration_ms"`
	DeviceCount  int     `json:"device_count"`
}

// handlePowerStats returns the engine's transition statistics.
func (s *Server) handlePowerStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

// handleListPowerDevices returns every registered device in transition order.
func (s *Server) handleListPowerDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.engine.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleSuspend drives a full suspend transition: prepare, suspend,
// suspend-late, suspend-noirq. On failure the engine has already rolled
// every device back to the active state.
func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	req := suspendRequest{Event: "suspend"}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ev, ok := pm.ParseEvent(req.Event)
	if !ok {
		writeBadRequest(w, "unknown event: "+req.Event)
		return
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		writeConflict(w, "a transition is already in progress")
		return
	}
	defer s.inFlight.Store(false)

	if pm.Event(s.suspendedAs.Load()) != pm.EventOn {
		writeConflict(w, "system is already suspended")
		return
	}

	s.driveTransition(w, ev, func() error {
		return s.engine.DoSuspend(ev)
	}, func(err error) {
		if err == nil {
			s.suspendedAs.Store(int64(ev))
		}
	})
}

// handleResume drives a full resume transition for whatever event the
// system was suspended under. The walk always runs to the end; a failure
// is reported but the system is considered awake afterwards.
func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	if !s.inFlight.CompareAndSwap(false, true) {
		writeConflict(w, "a transition is already in progress")
		return
	}
	defer s.inFlight.Store(false)

	suspended := pm.Event(s.suspendedAs.Load())
	if suspended == pm.EventOn {
		writeConflict(w, "system is not suspended")
		return
	}

	ev := pm.ResumeEvent(suspended)
	s.driveTransition(w, ev, func() error {
		return s.engine.DoResume(ev)
	}, func(error) {
		// Resume always runs to the end; the system is awake either way.
		s.suspendedAs.Store(int64(pm.EventOn))
	})
}

// driveTransition runs one transition with telemetry bracketing and
// writes the outcome. after is invoked with the transition error before
// the response is written.
func (s *Server) driveTransition(w http.ResponseWriter, ev pm.Event, run func() error, after func(error)) {
	id := "pwr-" + uuid.NewString()[:8]
	deviceCount := len(s.engine.Devices())

	if s.telemetry != nil {
		s.telemetry.TransitionBegan(id, ev)
	}

	start := time.Now()
	err := run()
	elapsed := time.Since(start)

	if s.telemetry != nil {
		s.telemetry.TransitionEnded(id, ev, err, deviceCount)
	}

	after(err)

	resp := transitionResponse{
		TransitionID: id,
		Event:        ev.String(),
		Status:       "success",
		DurationMS:   float64(elapsed.Microseconds()) / 1000.0,
		DeviceCount:  deviceCount,
	}
	if err != nil {
		resp.Status = "failure"
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
