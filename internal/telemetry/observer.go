// Package telemetry fans transition progress out to the diagnostic
// surfaces: structured logs, MQTT, InfluxDB, the WebSocket hub, and
// the SQLite transition history.
package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-power/internal/history"
	"github.com/nerrad567/gray-logic-power/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-power/internal/pm"
)

// historyWriteTimeout bounds the SQLite insert at transition end.
const historyWriteTimeout = 5 * time.Second

// Logger is the subset of logging.Logger the observer needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Publisher is the subset of mqtt.Client the observer needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// MetricsWriter is the subset of influxdb.Client the observer needs.
type MetricsWriter interface {
	WritePhaseTiming(event, phase string, duration time.Duration, deviceCount int, failed bool)
	WriteDeviceTiming(device, event, phase string, duration time.Duration, async, failed bool)
	WriteTransitionResult(event string, duration time.Duration, deviceCount int, failed bool)
}

// Broadcaster is the subset of the WebSocket hub the observer needs.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Observer implements pm.Observer and records transition lifecycle
// events. All sinks are optional; a nil sink is skipped.
//
// Phase and device callbacks arrive from engine goroutines, so all
// mutable state is guarded by a mutex and every sink call is
// non-blocking (MQTT publish uses its own timeout, InfluxDB writes are
// batched, WebSocket broadcast drops slow clients).
type Observer struct {
	log     Logger
	mqtt    Publisher
	metrics MetricsWriter
	hub     Broadcaster
	repo    history.Repository

	mu       sync.Mutex
	event    pm.Event
	id       string
	started  time.Time
	failures []history.DeviceFailure
}

// New creates an Observer. Any sink may be nil.
func New(log Logger, pub Publisher, metrics MetricsWriter, hub Broadcaster, repo history.Repository) *Observer {
	return &Observer{
		log:     log,
		mqtt:    pub,
		metrics: metrics,
		hub:     hub,
		repo:    repo,
	}
}

// phaseEvent is the wire shape for phase progress messages.
type phaseEvent struct {
	TransitionID string  `json:"transition_id,omitempty"`
	Event        string  `json:"event"`
	Phase        string  `json:"phase"`
	Status       string  `json:"status"`
	Error        string  `json:"error,omitempty"`
	DurationMS   float64 `json:"duration_ms,omitempty"`
	DeviceCount  int     `json:"device_count,omitempty"`
	Timestamp    string  `json:"timestamp"`
}

// deviceEvent is the wire shape for per-device result messages.
type deviceEvent struct {
	TransitionID string  `json:"transition_id,omitempty"`
	Device       string  `json:"device"`
	Event        string  `json:"event"`
	Phase        string  `json:"phase"`
	Async        bool    `json:"async"`
	Error        string  `json:"error,omitempty"`
	DurationMS   float64 `json:"duration_ms"`
	Timestamp    string  `json:"timestamp"`
}

// transitionEvent is the wire shape for transition begin/end messages.
type transitionEvent struct {
	TransitionID string  `json:"transition_id"`
	Event        string  `json:"event"`
	Status       string  `json:"status,omitempty"`
	Error        string  `json:"error,omitempty"`
	DurationMS   float64 `json:"duration_ms,omitempty"`
	DeviceCount  int     `json:"device_count,omitempty"`
	Timestamp    string  `json:"timestamp"`
}

// TransitionBegan marks the start of a transition and resets the
// per-transition failure accumulator.
func (o *Observer) TransitionBegan(id string, ev pm.Event) {
	o.mu.Lock()
	o.id = id
	o.event = ev
	o.started = time.Now()
	o.failures = nil
	o.mu.Unlock()

	if o.log != nil {
		o.log.Info("transition started", "transition_id", id, "event", ev.String())
	}

	msg := transitionEvent{
		TransitionID: id,
		Event:        ev.String(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	o.publish(mqtt.Topics{}.TransitionBegin(), msg)
	o.broadcast("transitions", msg)
}

// TransitionEnded records the outcome: history row, MQTT end message,
// InfluxDB summary point. deviceCount is the registered device total.
func (o *Observer) TransitionEnded(id string, ev pm.Event, err error, deviceCount int) {
	o.mu.Lock()
	elapsed := time.Since(o.started)
	failures := o.failures
	o.failures = nil
	o.id = ""
	o.mu.Unlock()

	status := history.StatusSuccess
	errMsg := ""
	if err != nil {
		status = history.StatusFailure
		errMsg = err.Error()
	}

	if o.log != nil {
		if err != nil {
			o.log.Error("transition failed",
				"transition_id", id, "event", ev.String(),
				"error", err, "elapsed", elapsed)
		} else {
			o.log.Info("transition complete",
				"transition_id", id, "event", ev.String(), "elapsed", elapsed)
		}
	}

	msg := transitionEvent{
		TransitionID: id,
		Event:        ev.String(),
		Status:       status,
		Error:        errMsg,
		DurationMS:   durationMS(elapsed),
		DeviceCount:  deviceCount,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	o.publish(mqtt.Topics{}.TransitionEnd(), msg)
	o.broadcast("transitions", msg)

	if o.metrics != nil {
		o.metrics.WriteTransitionResult(ev.String(), elapsed, deviceCount, err != nil)
	}

	if o.repo != nil {
		record := &history.Transition{
			ID:          id,
			Event:       ev.String(),
			Status:      status,
			Error:       errMsg,
			DurationMS:  elapsed.Milliseconds(),
			DeviceCount: deviceCount,
			StartedAt:   time.Now().UTC().Add(-elapsed),
			FinishedAt:  time.Now().UTC(),
			Failures:    failures,
		}
		if len(failures) > 0 {
			record.FailedDevice = failures[0].Device
			record.FailedStep = failures[0].Step
		}

		ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
		defer cancel()
		if err := o.repo.Create(ctx, record); err != nil && o.log != nil {
			o.log.Error("failed to record transition history", "error", err)
		}
	}
}

// PhaseStarted implements pm.Observer.
func (o *Observer) PhaseStarted(phase string, event pm.Event) {
	if o.log != nil {
		o.log.Debug("phase started", "phase", phase, "event", event.String())
	}

	msg := phaseEvent{
		TransitionID: o.transitionID(),
		Event:        event.String(),
		Phase:        phase,
		Status:       "started",
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	o.publish(mqtt.Topics{}.PhaseStarted(phase), msg)
	o.broadcast("phases", msg)
}

// PhaseFinished implements pm.Observer.
func (o *Observer) PhaseFinished(phase string, event pm.Event, err error, elapsed time.Duration, devices int) {
	if o.log != nil {
		if err != nil {
			o.log.Warn("phase finished with error",
				"phase", phase, "event", event.String(),
				"error", err, "elapsed", elapsed, "devices", devices)
		} else {
			o.log.Info("phase finished",
				"phase", phase, "event", event.String(),
				"elapsed", elapsed, "devices", devices)
		}
	}

	msg := phaseEvent{
		TransitionID: o.transitionID(),
		Event:        event.String(),
		Phase:        phase,
		Status:       "finished",
		DurationMS:   durationMS(elapsed),
		DeviceCount:  devices,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		msg.Error = err.Error()
	}
	o.publish(mqtt.Topics{}.PhaseFinished(phase), msg)
	o.broadcast("phases", msg)

	if o.metrics != nil {
		o.metrics.WritePhaseTiming(event.String(), phase, elapsed, devices, err != nil)
	}
}

// DeviceFinished implements pm.Observer.
func (o *Observer) DeviceFinished(device, phase string, event pm.Event, err error, elapsed time.Duration, async bool) {
	if err != nil {
		if o.log != nil {
			o.log.Warn("device callback failed",
				"device", device, "phase", phase, "event", event.String(),
				"error", err, "elapsed", elapsed, "async", async)
		}

		o.mu.Lock()
		o.failures = append(o.failures, history.DeviceFailure{
			Device: device,
			Step:   phase,
			Error:  err.Error(),
		})
		o.mu.Unlock()
	} else if o.log != nil {
		o.log.Debug("device callback complete",
			"device", device, "phase", phase, "event", event.String(),
			"elapsed", elapsed, "async", async)
	}

	msg := deviceEvent{
		TransitionID: o.transitionID(),
		Device:       device,
		Event:        event.String(),
		Phase:        phase,
		Async:        async,
		DurationMS:   durationMS(elapsed),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		msg.Error = err.Error()
	}
	o.publish(mqtt.Topics{}.PhaseDevice(phase, device), msg)
	o.broadcast("devices", msg)

	if o.metrics != nil {
		o.metrics.WriteDeviceTiming(device, event.String(), phase, elapsed, async, err != nil)
	}
}

func (o *Observer) transitionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.id
}

func (o *Observer) publish(topic string, payload any) {
	if o.mqtt == nil || !o.mqtt.IsConnected() {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		if o.log != nil {
			o.log.Error("failed to marshal telemetry payload", "topic", topic, "error", err)
		}
		return
	}

	if err := o.mqtt.Publish(topic, data, 1, false); err != nil && o.log != nil {
		o.log.Warn("failed to publish telemetry", "topic", topic, "error", err)
	}
}

func (o *Observer) broadcast(channel string, payload any) {
	if o.hub == nil {
		return
	}
	o.hub.Broadcast(channel, payload)
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
