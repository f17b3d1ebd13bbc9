package pm

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestEngine_FullSuspendResumeCycle(t *testing.T) {
	r := &recorder{}
	e := New(Config{AsyncEnabled: true})
	root := testDevice("root", nil, r)
	leafA := testDevice("leaf-a", root, r)
	leafB := testDevice("leaf-b", root, r)
	leafB.AsyncCapable = true
	mustRegister(t, e, root, leafA, leafB)

	if err := e.DoSuspend(EventSuspend); err != nil {
		t.Fatalf("DoSuspend() error = %v", err)
	}
	for _, d := range []*Device{root, leafA, leafB} {
		if got := d.state(); got != "noirq-suspended" {
			t.Errorf("%s state after suspend = %q, want noirq-suspended", d.Name, got)
		}
	}

	if err := e.DoResume(EventResume); err != nil {
		t.Fatalf("DoResume() error = %v", err)
	}
	for _, d := range []*Device{root, leafA, leafB} {
		if got := d.state(); got != "active" {
			t.Errorf("%s state after resume = %q, want active", d.Name, got)
		}
	}

	t.Run("every callback runs exactly once", func(t *testing.T) {
		phases := []phase{
			phasePrepare, phaseSuspend, phaseSuspendLate, phaseSuspendNoIRQ,
			phaseResumeNoIRQ, phaseResumeEarly, phaseResume, phaseComplete,
		}
		for _, name := range []string{"root", "leaf-a", "leaf-b"} {
			for _, ph := range phases {
				entry := name + ":" + ph.String()
				if got := r.count(entry); got != 1 {
					t.Errorf("%s ran %d times, want 1", entry, got)
				}
			}
		}
	})

	t.Run("children suspend before their parent", func(t *testing.T) {
		if !r.before("leaf-a:suspend", "root:suspend") {
			t.Error("leaf-a suspended after root")
		}
		if !r.before("leaf-b:suspend_noirq", "root:suspend_noirq") {
			t.Error("leaf-b reached noirq after root")
		}
	})

	t.Run("parent resumes before its children", func(t *testing.T) {
		if !r.before("root:resume", "leaf-a:resume") {
			t.Error("root resumed after leaf-a")
		}
		if !r.before("root:resume_early", "leaf-b:resume_early") {
			t.Error("root early-resumed after leaf-b")
		}
	})

	t.Run("list order survives the round trip", func(t *testing.T) {
		assertOrder(t, e, "root", "leaf-a", "leaf-b")
	})

	if got := e.Stats().Success; got != 1 {
		t.Errorf("Stats().Success = %d, want 1", got)
	}
}

func TestEngine_SuspendFailureRollsBack(t *testing.T) {
	r := &recorder{}
	e := New(Config{})
	root := testDevice("root", nil, r)
	mid := testDevice("mid", root, r)
	leaf := testDevice("leaf", root, r)
	boom := errors.New("hardware wedged")
	mid.Driver.Ops.Suspend = func(_ *Device, _ Event) error { return boom }
	mustRegister(t, e, root, mid, leaf)

	err := e.DoSuspend(EventSuspend)
	if !errors.Is(err, boom) {
		t.Fatalf("DoSuspend() error = %v, want wrapped %v", err, boom)
	}
	if !strings.Contains(err.Error(), "mid") {
		t.Errorf("error %q does not name the failing device", err)
	}

	t.Run("devices return to active", func(t *testing.T) {
		for _, d := range []*Device{root, mid, leaf} {
			if got := d.state(); got != "active" {
				t.Errorf("%s state = %q, want active", d.Name, got)
			}
		}
	})

	t.Run("suspended sibling was resumed", func(t *testing.T) {
		if got := r.count("leaf:resume"); got != 1 {
			t.Errorf("leaf:resume ran %d times, want 1", got)
		}
	})

	t.Run("no new suspend work after the failure", func(t *testing.T) {
		if got := r.count("root:suspend"); got != 0 {
			t.Errorf("root:suspend ran %d times, want 0", got)
		}
	})

	t.Run("failed device never resumes", func(t *testing.T) {
		if got := r.count("mid:resume"); got != 0 {
			t.Errorf("mid:resume ran %d times, want 0", got)
		}
	})

	t.Run("statistics record the failure", func(t *testing.T) {
		stats := e.Stats()
		if stats.Fail != 1 {
			t.Errorf("Fail = %d, want 1", stats.Fail)
		}
		if stats.FailedSuspend != 1 {
			t.Errorf("FailedSuspend = %d, want 1", stats.FailedSuspend)
		}
		if len(stats.LastFailedDevices) == 0 || stats.LastFailedDevices[0] != "mid" {
			t.Errorf("LastFailedDevices = %v, want [mid]", stats.LastFailedDevices)
		}
		if len(stats.LastFailedSteps) == 0 || stats.LastFailedSteps[0] != StepSuspend {
			t.Errorf("LastFailedSteps = %v, want [suspend]", stats.LastFailedSteps)
		}
	})
}

func TestEngine_AsyncSuspendFailureRollsBackAndNamesDevice(t *testing.T) {
	r := &recorder{}
	e := New(Config{AsyncEnabled: true})
	hub := testDevice("hub", nil, r)
	sensor := testDevice("sensor", hub, r)
	sensor.AsyncCapable = true
	camera := testDevice("camera", nil, r)
	camera.AsyncCapable = true
	boom := errors.New("controller wedged")
	camera.Driver.Ops.Suspend = func(_ *Device, _ Event) error {
		time.Sleep(10 * time.Millisecond)
		return boom
	}
	mustRegister(t, e, hub, sensor, camera)

	err := e.DoSuspend(EventSuspend)
	if !errors.Is(err, boom) {
		t.Fatalf("DoSuspend() error = %v, want wrapped %v", err, boom)
	}

	t.Run("error names the failing async device", func(t *testing.T) {
		if !strings.Contains(err.Error(), "camera") {
			t.Errorf("error %q does not name the failing device", err)
		}
	})

	t.Run("every device returns to active", func(t *testing.T) {
		for _, d := range []*Device{hub, sensor, camera} {
			if got := d.state(); got != "active" {
				t.Errorf("%s state = %q, want active", d.Name, got)
			}
		}
	})

	t.Run("statistics name the failing device", func(t *testing.T) {
		stats := e.Stats()
		if stats.Fail != 1 {
			t.Errorf("Fail = %d, want 1", stats.Fail)
		}
		if len(stats.LastFailedDevices) == 0 || stats.LastFailedDevices[0] != "camera" {
			t.Errorf("LastFailedDevices = %v, want [camera]", stats.LastFailedDevices)
		}
	})
}

func TestEngine_EmptyTopologyCompletesImmediately(t *testing.T) {
	counter := &countingObserver{}
	e := New(Config{AsyncEnabled: true, Observer: counter})

	if err := e.DoSuspend(EventSuspend); err != nil {
		t.Fatalf("DoSuspend() error = %v", err)
	}
	if err := e.DoResume(EventResume); err != nil {
		t.Fatalf("DoResume() error = %v", err)
	}

	if got := counter.deviceEvents(); got != 0 {
		t.Errorf("device events fired = %d, want 0", got)
	}
	stats := e.Stats()
	if stats.Success != 1 || stats.Fail != 0 {
		t.Errorf("Success/Fail = %d/%d, want 1/0", stats.Success, stats.Fail)
	}
	if got := e.Transition(); got != EventOn {
		t.Errorf("Transition() = %v, want EventOn", got)
	}
}

// countingObserver tallies per-device observer callbacks.
type countingObserver struct {
	devices atomic.Int64
}

func (*countingObserver) PhaseStarted(string, Event) {}

func (*countingObserver) PhaseFinished(string, Event, error, time.Duration, int) {}

func (o *countingObserver) DeviceFinished(string, string, Event, error, time.Duration, bool) {
	o.devices.Add(1)
}

func (o *countingObserver) deviceEvents() int64 { return o.devices.Load() }

func TestEngine_SuspendLateFailureUnwindsToSuspended(t *testing.T) {
	r := &recorder{}
	e := New(Config{})
	a := testDevice("a", nil, r)
	b := testDevice("b", nil, r)
	boom := errors.New("regulator fault")
	b.Driver.Ops.SuspendLate = func(_ *Device, _ Event) error { return boom }
	mustRegister(t, e, a, b)

	if err := e.SuspendStart(EventSuspend); err != nil {
		t.Fatalf("SuspendStart() error = %v", err)
	}
	err := e.SuspendEnd(EventSuspend)
	if !errors.Is(err, boom) {
		t.Fatalf("SuspendEnd() error = %v, want wrapped %v", err, boom)
	}

	// The self-rollback stops at resume-early: both devices sit in the
	// plain suspended state for the caller to finish unwinding.
	for _, d := range []*Device{a, b} {
		if got := d.state(); got != "suspended" {
			t.Errorf("%s state = %q, want suspended", d.Name, got)
		}
	}
	if err := e.ResumeEnd(EventResume); err != nil {
		t.Fatalf("ResumeEnd() error = %v", err)
	}
	for _, d := range []*Device{a, b} {
		if got := d.state(); got != "active" {
			t.Errorf("%s state after unwind = %q, want active", d.Name, got)
		}
	}
}

func TestEngine_WakeupPendingAbortsSuspend(t *testing.T) {
	r := &recorder{}
	e := New(Config{WakeupPending: func() bool { return true }})
	dev := testDevice("sensor", nil, r)
	mustRegister(t, e, dev)

	err := e.DoSuspend(EventSuspend)
	if !errors.Is(err, ErrWakeupPending) {
		t.Fatalf("DoSuspend() error = %v, want ErrWakeupPending", err)
	}
	if got := r.count("sensor:suspend"); got != 0 {
		t.Errorf("sensor:suspend ran %d times, want 0", got)
	}
	if got := dev.state(); got != "active" {
		t.Errorf("state = %q, want active", got)
	}
}

func TestEngine_DirectComplete(t *testing.T) {
	newIdleFixture := func() (*recorder, *Engine, *Device, *Device) {
		r := &recorder{}
		e := New(Config{})
		root := testDevice("root", nil, r)
		idle := testDevice("idle", root, r)
		idle.Driver.Ops.Prepare = func(_ *Device, _ Event) (bool, error) {
			r.note("idle", phasePrepare)
			return true, nil
		}
		mustRegister(t, e, root, idle)
		return r, e, root, idle
	}

	t.Run("suspend transition skips granted devices", func(t *testing.T) {
		r, e, _, idle := newIdleFixture()
		if err := e.DoSuspend(EventSuspend); err != nil {
			t.Fatalf("DoSuspend() error = %v", err)
		}
		if !idle.DirectComplete() {
			t.Error("DirectComplete() = false mid-transition, want true")
		}
		for _, entry := range []string{"idle:suspend", "idle:suspend_late", "idle:suspend_noirq"} {
			if got := r.count(entry); got != 0 {
				t.Errorf("%s ran %d times, want 0", entry, got)
			}
		}

		if err := e.DoResume(EventResume); err != nil {
			t.Fatalf("DoResume() error = %v", err)
		}
		if got := r.count("idle:resume"); got != 0 {
			t.Errorf("idle:resume ran %d times, want 0", got)
		}
		if got := r.count("idle:complete"); got != 1 {
			t.Errorf("idle:complete ran %d times, want 1", got)
		}
		if idle.DirectComplete() {
			t.Error("DirectComplete() = true after the transition, want false")
		}
	})

	t.Run("freeze transition never grants it", func(t *testing.T) {
		r, e, _, _ := newIdleFixture()
		if err := e.DoSuspend(EventFreeze); err != nil {
			t.Fatalf("DoSuspend(freeze) error = %v", err)
		}
		if got := r.count("idle:suspend"); got != 1 {
			t.Errorf("idle:suspend ran %d times during freeze, want 1", got)
		}
		if err := e.DoResume(ResumeEvent(EventFreeze)); err != nil {
			t.Fatalf("DoResume() error = %v", err)
		}
	})

	t.Run("wakeup-capable devices run their callbacks", func(t *testing.T) {
		r, e, _, idle := newIdleFixture()
		idle.Wakeup = true
		if err := e.DoSuspend(EventSuspend); err != nil {
			t.Fatalf("DoSuspend() error = %v", err)
		}
		if got := r.count("idle:suspend"); got != 1 {
			t.Errorf("idle:suspend ran %d times, want 1", got)
		}
		if err := e.DoResume(EventResume); err != nil {
			t.Fatalf("DoResume() error = %v", err)
		}
	})

	t.Run("suspending child revokes the parent grant", func(t *testing.T) {
		r := &recorder{}
		e := New(Config{})
		idleParent := testDevice("idle-parent", nil, r)
		idleParent.Driver.Ops.Prepare = func(_ *Device, _ Event) (bool, error) {
			return true, nil
		}
		busyChild := testDevice("busy-child", idleParent, r)
		mustRegister(t, e, idleParent, busyChild)

		if err := e.DoSuspend(EventSuspend); err != nil {
			t.Fatalf("DoSuspend() error = %v", err)
		}
		if got := r.count("idle-parent:suspend"); got != 1 {
			t.Errorf("idle-parent:suspend ran %d times, want 1", got)
		}
		if err := e.DoResume(EventResume); err != nil {
			t.Fatalf("DoResume() error = %v", err)
		}
	})
}

func TestEngine_WakeupPathPropagation(t *testing.T) {
	t.Run("climbs to the parent", func(t *testing.T) {
		r := &recorder{}
		e := New(Config{})
		hub := testDevice("hub", nil, r)
		button := testDevice("button", hub, r)
		button.Wakeup = true
		mustRegister(t, e, hub, button)

		if err := e.SuspendStart(EventSuspend); err != nil {
			t.Fatalf("SuspendStart() error = %v", err)
		}
		if !hub.WakeupPath() {
			t.Error("hub.WakeupPath() = false, want true")
		}
		if err := e.ResumeEnd(EventResume); err != nil {
			t.Fatalf("ResumeEnd() error = %v", err)
		}
		if hub.WakeupPath() {
			t.Error("hub.WakeupPath() = true after complete, want false")
		}
	})

	t.Run("stops at a parent ignoring children", func(t *testing.T) {
		r := &recorder{}
		e := New(Config{})
		hub := testDevice("hub", nil, r)
		hub.IgnoreChildren = true
		button := testDevice("button", hub, r)
		button.Wakeup = true
		mustRegister(t, e, hub, button)

		if err := e.SuspendStart(EventSuspend); err != nil {
			t.Fatalf("SuspendStart() error = %v", err)
		}
		if hub.WakeupPath() {
			t.Error("hub.WakeupPath() = true, want false")
		}
		if err := e.ResumeEnd(EventResume); err != nil {
			t.Fatalf("ResumeEnd() error = %v", err)
		}
	})
}

func TestEngine_SyscoreDevicesAreExempt(t *testing.T) {
	r := &recorder{}
	e := New(Config{})
	core := testDevice("clocksource", nil, r)
	core.Syscore = true
	mustRegister(t, e, core)

	if err := e.DoSuspend(EventSuspend); err != nil {
		t.Fatalf("DoSuspend() error = %v", err)
	}
	if err := e.DoResume(EventResume); err != nil {
		t.Fatalf("DoResume() error = %v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) != 0 {
		t.Errorf("syscore device callbacks ran: %v", r.calls)
	}
}

func TestEngine_PrepareAgainSkipsDevice(t *testing.T) {
	r := &recorder{}
	e := New(Config{})
	going := testDevice("going", nil, r)
	going.Driver.Ops.Prepare = func(_ *Device, _ Event) (bool, error) {
		return false, ErrAgain
	}
	staying := testDevice("staying", nil, r)
	mustRegister(t, e, going, staying)

	if err := e.DoSuspend(EventSuspend); err != nil {
		t.Fatalf("DoSuspend() error = %v", err)
	}
	if going.Prepared() {
		t.Error("going.Prepared() = true, want false")
	}
	if got := r.count("going:suspend"); got != 0 {
		t.Errorf("going:suspend ran %d times, want 0", got)
	}
	if got := r.count("staying:suspend"); got != 1 {
		t.Errorf("staying:suspend ran %d times, want 1", got)
	}

	if err := e.DoResume(EventResume); err != nil {
		t.Fatalf("DoResume() error = %v", err)
	}
	if got := r.count("going:complete"); got != 0 {
		t.Errorf("going:complete ran %d times, want 0", got)
	}
	if got := r.count("staying:complete"); got != 1 {
		t.Errorf("staying:complete ran %d times, want 1", got)
	}
	assertOrder(t, e, "going", "staying")
}

func TestEngine_AsyncRespectsDependencies(t *testing.T) {
	r := &recorder{}
	e := New(Config{AsyncEnabled: true})

	parent := &Device{Name: "parent", AsyncCapable: true}
	child := &Device{Name: "child", Parent: parent, AsyncCapable: true}
	parent.Driver = &Driver{Ops: &Ops{
		Suspend: func(_ *Device, _ Event) error {
			r.note("parent", phaseSuspend)
			return nil
		},
		Resume: func(_ *Device, _ Event) error {
			r.note("parent", phaseResume)
			time.Sleep(30 * time.Millisecond)
			return nil
		},
	}}
	child.Driver = &Driver{Ops: &Ops{
		Suspend: func(_ *Device, _ Event) error {
			r.note("child", phaseSuspend)
			time.Sleep(30 * time.Millisecond)
			return nil
		},
		Resume: func(_ *Device, _ Event) error {
			r.note("child", phaseResume)
			return nil
		},
	}}
	mustRegister(t, e, parent, child)

	if err := e.SuspendStart(EventSuspend); err != nil {
		t.Fatalf("SuspendStart() error = %v", err)
	}
	if !r.before("child:suspend", "parent:suspend") {
		t.Error("parent did not wait for its slow async child during suspend")
	}

	if err := e.ResumeEnd(EventResume); err != nil {
		t.Fatalf("ResumeEnd() error = %v", err)
	}
	if !r.before("parent:resume", "child:resume") {
		t.Error("child did not wait for its slow async parent during resume")
	}
}

func TestEngine_LinkOrdersUnrelatedDevices(t *testing.T) {
	r := &recorder{}
	e := New(Config{AsyncEnabled: true})

	supplier := &Device{Name: "supplier", AsyncCapable: true}
	consumer := &Device{Name: "consumer", AsyncCapable: true}
	supplier.Driver = &Driver{Ops: &Ops{
		Suspend: func(_ *Device, _ Event) error {
			r.note("supplier", phaseSuspend)
			return nil
		},
		Resume: func(_ *Device, _ Event) error {
			r.note("supplier", phaseResume)
			time.Sleep(30 * time.Millisecond)
			return nil
		},
	}}
	consumer.Driver = &Driver{Ops: &Ops{
		Suspend: func(_ *Device, _ Event) error {
			r.note("consumer", phaseSuspend)
			time.Sleep(30 * time.Millisecond)
			return nil
		},
		Resume: func(_ *Device, _ Event) error {
			r.note("consumer", phaseResume)
			return nil
		},
	}}
	mustRegister(t, e, consumer, supplier)
	e.AddLink(supplier, consumer, LinkActive)

	if err := e.SuspendStart(EventSuspend); err != nil {
		t.Fatalf("SuspendStart() error = %v", err)
	}
	if !r.before("consumer:suspend", "supplier:suspend") {
		t.Error("supplier did not wait for its consumer during suspend")
	}

	if err := e.ResumeEnd(EventResume); err != nil {
		t.Fatalf("ResumeEnd() error = %v", err)
	}
	if !r.before("supplier:resume", "consumer:resume") {
		t.Error("consumer did not wait for its supplier during resume")
	}
}
