package pm

import (
	"sync"
	"testing"
)

// recorder captures callback invocations across goroutines in the order
// they started.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) note(dev string, ph phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, dev+":"+ph.String())
}

func (r *recorder) count(entry string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == entry {
			n++
		}
	}
	return n
}

func (r *recorder) index(entry string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.calls {
		if c == entry {
			return i
		}
	}
	return -1
}

// before reports that both entries occurred and a started before b.
func (r *recorder) before(a, b string) bool {
	ia, ib := r.index(a), r.index(b)
	return ia >= 0 && ib >= 0 && ia < ib
}

// recordingOps builds a full Ops table that notes every invocation.
func recordingOps(name string, r *recorder) *Ops {
	return &Ops{
		Prepare: func(_ *Device, _ Event) (bool, error) {
			r.note(name, phasePrepare)
			return false, nil
		},
		Suspend: func(_ *Device, _ Event) error {
			r.note(name, phaseSuspend)
			return nil
		},
		SuspendLate: func(_ *Device, _ Event) error {
			r.note(name, phaseSuspendLate)
			return nil
		},
		SuspendNoIRQ: func(_ *Device, _ Event) error {
			r.note(name, phaseSuspendNoIRQ)
			return nil
		},
		ResumeNoIRQ: func(_ *Device, _ Event) error {
			r.note(name, phaseResumeNoIRQ)
			return nil
		},
		ResumeEarly: func(_ *Device, _ Event) error {
			r.note(name, phaseResumeEarly)
			return nil
		},
		Resume: func(_ *Device, _ Event) error {
			r.note(name, phaseResume)
			return nil
		},
		Complete: func(_ *Device, _ Event) {
			r.note(name, phaseComplete)
		},
	}
}

// testDevice builds a device whose driver records every callback.
func testDevice(name string, parent *Device, r *recorder) *Device {
	return &Device{
		Name:   name,
		Parent: parent,
		Driver: &Driver{Name: name + "-driver", Ops: recordingOps(name, r)},
	}
}

// captureLogger retains log messages so tests can assert on them.
type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *captureLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+msg)
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.record("error", msg) }

func (l *captureLogger) contains(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == entry {
			return true
		}
	}
	return false
}

func mustRegister(t *testing.T, e *Engine, devs ...*Device) {
	t.Helper()
	for _, d := range devs {
		if err := e.Register(d); err != nil {
			t.Fatalf("Register(%s) error = %v", d.Name, err)
		}
	}
}
