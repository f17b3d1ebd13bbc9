package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-power/internal/history"
	"github.com/nerrad567/gray-logic-power/internal/pm"
)

// fakePublisher records published MQTT messages.
type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	messages  []publishedMessage
}

type publishedMessage struct {
	topic   string
	payload []byte
}

func (p *fakePublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{topic: topic, payload: payload})
	return nil
}

func (p *fakePublisher) IsConnected() bool { return p.connected }

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.messages))
	for i, m := range p.messages {
		out[i] = m.topic
	}
	return out
}

// fakeMetrics records InfluxDB writes.
type fakeMetrics struct {
	mu          sync.Mutex
	phases      []string
	devices     []string
	transitions []string
}

func (m *fakeMetrics) WritePhaseTiming(event, phase string, _ time.Duration, _ int, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = append(m.phases, event+":"+phase)
}

func (m *fakeMetrics) WriteDeviceTiming(device, event, phase string, _ time.Duration, _, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = append(m.devices, device+":"+event+":"+phase)
}

func (m *fakeMetrics) WriteTransitionResult(event string, _ time.Duration, _ int, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := "success"
	if failed {
		status = "failure"
	}
	m.transitions = append(m.transitions, event+":"+status)
}

// fakeHub records WebSocket broadcasts.
type fakeHub struct {
	mu       sync.Mutex
	channels []string
}

func (h *fakeHub) Broadcast(channel string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels = append(h.channels, channel)
}

// fakeRepo records history writes.
type fakeRepo struct {
	mu      sync.Mutex
	records []*history.Transition
	err     error
}

func (r *fakeRepo) Create(_ context.Context, tr *history.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, tr)
	return nil
}

func (r *fakeRepo) Get(context.Context, string) (*history.Transition, error) {
	return nil, history.ErrNotFound
}

func (r *fakeRepo) List(context.Context, history.Filter) (*history.ListResult, error) {
	return &history.ListResult{}, nil
}

func (r *fakeRepo) Prune(context.Context, time.Duration) (int64, error) { return 0, nil }

// testLogger discards log output but counts error lines.
type testLogger struct {
	mu     sync.Mutex
	errors int
}

func (l *testLogger) Debug(string, ...any) {}
func (l *testLogger) Info(string, ...any)  {}
func (l *testLogger) Warn(string, ...any)  {}
func (l *testLogger) Error(string, ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors++
}

func TestObserver_TransitionLifecycle(t *testing.T) {
	pub := &fakePublisher{connected: true}
	metrics := &fakeMetrics{}
	hub := &fakeHub{}
	repo := &fakeRepo{}

	obs := New(&testLogger{}, pub, metrics, hub, repo)

	obs.TransitionBegan("pwr-test", pm.EventSuspend)
	obs.PhaseStarted("suspend", pm.EventSuspend)
	obs.DeviceFinished("nvme0", "suspend", pm.EventSuspend, nil, 2*time.Millisecond, true)
	obs.PhaseFinished("suspend", pm.EventSuspend, nil, 10*time.Millisecond, 1)
	obs.TransitionEnded("pwr-test", pm.EventSuspend, nil, 1)

	topics := pub.topics()
	want := []string{
		"graypower/transition/begin",
		"graypower/phase/suspend/started",
		"graypower/phase/suspend/device/nvme0",
		"graypower/phase/suspend/finished",
		"graypower/transition/end",
	}
	if len(topics) != len(want) {
		t.Fatalf("published %d messages, want %d: %v", len(topics), len(want), topics)
	}
	for i, topic := range want {
		if topics[i] != topic {
			t.Errorf("topics[%d] = %q, want %q", i, topics[i], topic)
		}
	}

	if len(metrics.phases) != 1 || metrics.phases[0] != "suspend:suspend" {
		t.Errorf("phase metrics = %v, want [suspend:suspend]", metrics.phases)
	}
	if len(metrics.devices) != 1 {
		t.Errorf("device metrics = %v, want one entry", metrics.devices)
	}
	if len(metrics.transitions) != 1 || metrics.transitions[0] != "suspend:success" {
		t.Errorf("transition metrics = %v, want [suspend:success]", metrics.transitions)
	}

	if len(repo.records) != 1 {
		t.Fatalf("history records = %d, want 1", len(repo.records))
	}
	record := repo.records[0]
	if record.ID != "pwr-test" {
		t.Errorf("record ID = %q, want pwr-test", record.ID)
	}
	if record.Status != history.StatusSuccess {
		t.Errorf("record status = %q, want success", record.Status)
	}
	if len(record.Failures) != 0 {
		t.Errorf("record failures = %v, want none", record.Failures)
	}
}

func TestObserver_FailureAccumulation(t *testing.T) {
	repo := &fakeRepo{}
	obs := New(&testLogger{}, nil, nil, nil, repo)

	failure := errors.New("device busy")

	obs.TransitionBegan("pwr-fail", pm.EventSuspend)
	obs.DeviceFinished("nvme0", "suspend", pm.EventSuspend, failure, time.Millisecond, false)
	obs.DeviceFinished("eth0", "suspend_late", pm.EventSuspend, failure, time.Millisecond, false)
	obs.TransitionEnded("pwr-fail", pm.EventSuspend, failure, 2)

	if len(repo.records) != 1 {
		t.Fatalf("history records = %d, want 1", len(repo.records))
	}
	record := repo.records[0]
	if record.Status != history.StatusFailure {
		t.Errorf("status = %q, want failure", record.Status)
	}
	if len(record.Failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(record.Failures))
	}
	if record.FailedDevice != "nvme0" || record.FailedStep != "suspend" {
		t.Errorf("failed device/step = %s/%s, want nvme0/suspend", record.FailedDevice, record.FailedStep)
	}
}

func TestObserver_FailuresResetBetweenTransitions(t *testing.T) {
	repo := &fakeRepo{}
	obs := New(&testLogger{}, nil, nil, nil, repo)

	obs.TransitionBegan("pwr-1", pm.EventSuspend)
	obs.DeviceFinished("nvme0", "suspend", pm.EventSuspend, errors.New("busy"), time.Millisecond, false)
	obs.TransitionEnded("pwr-1", pm.EventSuspend, errors.New("busy"), 1)

	obs.TransitionBegan("pwr-2", pm.EventSuspend)
	obs.TransitionEnded("pwr-2", pm.EventSuspend, nil, 1)

	if len(repo.records) != 2 {
		t.Fatalf("history records = %d, want 2", len(repo.records))
	}
	if len(repo.records[1].Failures) != 0 {
		t.Errorf("second transition failures = %v, want none", repo.records[1].Failures)
	}
}

func TestObserver_NilSinks(t *testing.T) {
	obs := New(nil, nil, nil, nil, nil)

	// Must not panic with every sink absent.
	obs.TransitionBegan("pwr-nil", pm.EventSuspend)
	obs.PhaseStarted("suspend", pm.EventSuspend)
	obs.DeviceFinished("nvme0", "suspend", pm.EventSuspend, nil, 0, false)
	obs.PhaseFinished("suspend", pm.EventSuspend, nil, 0, 1)
	obs.TransitionEnded("pwr-nil", pm.EventSuspend, nil, 1)
}

func TestObserver_DisconnectedPublisherSkipped(t *testing.T) {
	pub := &fakePublisher{connected: false}
	obs := New(&testLogger{}, pub, nil, nil, nil)

	obs.TransitionBegan("pwr-off", pm.EventSuspend)
	obs.TransitionEnded("pwr-off", pm.EventSuspend, nil, 0)

	if len(pub.topics()) != 0 {
		t.Errorf("published %v while disconnected, want none", pub.topics())
	}
}

func TestObserver_HistoryErrorLogged(t *testing.T) {
	log := &testLogger{}
	repo := &fakeRepo{err: errors.New("disk full")}
	obs := New(log, nil, nil, nil, repo)

	obs.TransitionBegan("pwr-err", pm.EventSuspend)
	obs.TransitionEnded("pwr-err", pm.EventSuspend, nil, 0)

	log.mu.Lock()
	defer log.mu.Unlock()
	if log.errors == 0 {
		t.Error("expected history write failure to be logged")
	}
}

func TestObserver_PayloadShape(t *testing.T) {
	pub := &fakePublisher{connected: true}
	obs := New(&testLogger{}, pub, nil, nil, nil)

	obs.TransitionBegan("pwr-shape", pm.EventHibernate)
	obs.PhaseFinished("suspend_noirq", pm.EventHibernate, errors.New("boom"), 7*time.Millisecond, 4)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.messages) != 2 {
		t.Fatalf("published %d messages, want 2", len(pub.messages))
	}

	var msg map[string]any
	if err := json.Unmarshal(pub.messages[1].payload, &msg); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if msg["event"] != "hibernate" {
		t.Errorf("event = %v, want hibernate", msg["event"])
	}
	if msg["phase"] != "suspend_noirq" {
		t.Errorf("phase = %v, want suspend_noirq", msg["phase"])
	}
	if msg["status"] != "finished" {
		t.Errorf("status = %v, want finished", msg["status"])
	}
	if errStr, _ := msg["error"].(string); !strings.Contains(errStr, "boom") {
		t.Errorf("error = %v, want to contain boom", msg["error"])
	}
	if msg["transition_id"] != "pwr-shape" {
		t.Errorf("transition_id = %v, want pwr-shape", msg["transition_id"])
	}
}

func TestObserver_BroadcastChannels(t *testing.T) {
	hub := &fakeHub{}
	obs := New(&testLogger{}, nil, nil, hub, nil)

	obs.TransitionBegan("pwr-ws", pm.EventSuspend)
	obs.PhaseStarted("prepare", pm.EventSuspend)
	obs.DeviceFinished("gpu0", "prepare", pm.EventSuspend, nil, 0, false)
	obs.TransitionEnded("pwr-ws", pm.EventSuspend, nil, 1)

	hub.mu.Lock()
	defer hub.mu.Unlock()
	want := []string{"transitions", "phases", "devices", "transitions"}
	if len(hub.channels) != len(want) {
		t.Fatalf("broadcast channels = %v, want %v", hub.channels, want)
	}
	for i := range want {
		if hub.channels[i] != want[i] {
			t.Errorf("channels[%d] = %q, want %q", i, hub.channels[i], want[i])
		}
	}
}
