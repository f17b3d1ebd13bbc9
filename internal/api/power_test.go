package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-power/internal/history"
	"github.com/nerrad567/gray-logic-power/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-power/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-power/internal/pm"
)

// newTestEngine builds an engine with a small topology: a bus with two
// devices and one child. failOn names a device whose suspend callback
// fails, empty for a healthy topology.
func newTestEngine(t *testing.T, failOn string) *pm.Engine {
	t.Helper()

	eng := pm.New(pm.Config{})

	bus := &pm.Bus{
		Name: "test-bus",
		Ops: &pm.Ops{
			Suspend: func(dev *pm.Device, _ pm.Event) error {
				if dev.Name == failOn {
					return errors.New("suspend failed")
				}
				return nil
			},
			Resume: func(*pm.Device, pm.Event) error { return nil },
		},
	}

	root := &pm.Device{Name: "root", Bus: bus}
	leaf := &pm.Device{Name: "leaf", Parent: root, Bus: bus}
	other := &pm.Device{Name: "other", Bus: bus}

	for _, dev := range []*pm.Device{root, leaf, other} {
		if err := eng.Register(dev); err != nil {
			t.Fatalf("Register(%s) = %v", dev.Name, err)
		}
	}

	return eng
}

// newTestServer builds a server and its router for handler tests.
func newTestServer(t *testing.T, eng *pm.Engine, repo history.Repository) (*Server, http.Handler) {
	t.Helper()

	s, err := New(Deps{
		Config:  config.APIConfig{},
		Logger:  logging.Default(),
		Engine:  eng,
		History: repo,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return s, s.buildRouter()
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeTransition(t *testing.T, rec *httptest.ResponseRecorder) transitionResponse {
	t.Helper()
	var resp transitionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestHandleSuspendResume_Cycle(t *testing.T) {
	eng := newTestEngine(t, "")
	_, router := newTestServer(t, eng, nil)

	// Suspend with an empty body defaults to the suspend event.
	rec := doRequest(router, http.MethodPost, "/api/v1/power/suspend", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("suspend status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	resp := decodeTransition(t, rec)
	if resp.Status != "success" {
		t.Errorf("suspend status = %q, want %q", resp.Status, "success")
	}
	if resp.Event != "suspend" {
		t.Errorf("suspend event = %q, want %q", resp.Event, "suspend")
	}
	if resp.DeviceCount != 3 {
		t.Errorf("suspend device_count = %d, want 3", resp.DeviceCount)
	}
	if resp.TransitionID == "" {
		t.Error("suspend transition_id is empty")
	}

	// A second suspend while asleep is rejected.
	rec = doRequest(router, http.MethodPost, "/api/v1/power/suspend", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("second suspend status = %d, want %d", rec.Code, http.StatusConflict)
	}

	// Resume wakes the system back up.
	rec = doRequest(router, http.MethodPost, "/api/v1/power/resume", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	resp = decodeTransition(t, rec)
	if resp.Event != "resume" {
		t.Errorf("resume event = %q, want %q", resp.Event, "resume")
	}

	// Resume while awake is rejected.
	rec = doRequest(router, http.MethodPost, "/api/v1/power/resume", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("second resume status = %d, want %d", rec.Code, http.StatusConflict)
	}

	// A full cycle records one success.
	stats := eng.Stats()
	if stats.Success != 1 || stats.Fail != 0 {
		t.Errorf("Stats() = success %d fail %d, want 1 and 0", stats.Success, stats.Fail)
	}
}

func TestHandleSuspend_HibernateEvent(t *testing.T) {
	eng := newTestEngine(t, "")
	_, router := newTestServer(t, eng, nil)

	rec := doRequest(router, http.MethodPost, "/api/v1/power/suspend", `{"event":"hibernate"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("suspend status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	resp := decodeTransition(t, rec)
	if resp.Event != "hibernate" {
		t.Errorf("event = %q, want %q", resp.Event, "hibernate")
	}

	// Resume of a hibernated system runs as restore.
	rec = doRequest(router, http.MethodPost, "/api/v1/power/resume", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d, want %d", rec.Code, http.StatusOK)
	}
	resp = decodeTransition(t, rec)
	if resp.Event != "restore" {
		t.Errorf("resume event = %q, want %q", resp.Event, "restore")
	}
}

func TestHandleSuspend_InvalidInput(t *testing.T) {
	eng := newTestEngine(t, "")
	_, router := newTestServer(t, eng, nil)

	tests := []struct {
		name string
		body string
	}{
		{"unknown event", `{"event":"warp"}`},
		{"resume direction event", `{"event":"resume"}`},
		{"malformed JSON", `{"event":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(router, http.MethodPost, "/api/v1/power/suspend", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestHandleSuspend_Failure(t *testing.T) {
	eng := newTestEngine(t, "leaf")
	_, router := newTestServer(t, eng, nil)

	rec := doRequest(router, http.MethodPost, "/api/v1/power/suspend", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("suspend status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	resp := decodeTransition(t, rec)
	if resp.Status != "failure" {
		t.Errorf("status = %q, want %q", resp.Status, "failure")
	}
	if resp.Error == "" {
		t.Error("error message is empty")
	}

	// The rollback already ran, so the system is still awake and
	// resume is rejected.
	rec = doRequest(router, http.MethodPost, "/api/v1/power/resume", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("resume status = %d, want %d", rec.Code, http.StatusConflict)
	}

	stats := eng.Stats()
	if stats.Fail != 1 {
		t.Errorf("Stats().Fail = %d, want 1", stats.Fail)
	}
	if len(stats.LastFailedDevices) == 0 || stats.LastFailedDevices[0] != "leaf" {
		t.Errorf("Stats().LastFailedDevices = %v, want [leaf ...]", stats.LastFailedDevices)
	}
}

func TestHandlePowerStats(t *testing.T) {
	eng := newTestEngine(t, "")
	_, router := newTestServer(t, eng, nil)

	rec := doRequest(router, http.MethodGet, "/api/v1/power/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var stats pm.StatsSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Success != 0 || stats.Fail != 0 {
		t.Errorf("fresh engine stats = %+v, want zeroes", stats)
	}
}

func TestHandleListPowerDevices(t *testing.T) {
	eng := newTestEngine(t, "")
	_, router := newTestServer(t, eng, nil)

	rec := doRequest(router, http.MethodGet, "/api/v1/power/devices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Devices []pm.DeviceInfo `json:"devices"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode devices: %v", err)
	}
	if body.Count != 3 || len(body.Devices) != 3 {
		t.Fatalf("count = %d, len = %d, want 3", body.Count, len(body.Devices))
	}

	// leaf was registered after its parent and must come later in
	// transition order.
	idx := map[string]int{}
	for i, d := range body.Devices {
		idx[d.Name] = i
	}
	if idx["leaf"] < idx["root"] {
		t.Errorf("leaf at %d precedes root at %d", idx["leaf"], idx["root"])
	}
}

func TestHandleHealth(t *testing.T) {
	eng := newTestEngine(t, "")
	_, router := newTestServer(t, eng, nil)

	rec := doRequest(router, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
	if body["transition"] != "on" {
		t.Errorf("transition = %v, want on", body["transition"])
	}
}
