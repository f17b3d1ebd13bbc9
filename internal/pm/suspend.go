package pm

import (
	"errors"
	"fmt"
	"time"
)

// devicePrepare runs the prepare callback for one device and decides
// whether the device qualifies for direct-complete. Always synchronous on
// the phase's driving goroutine.
func (e *Engine) devicePrepare(dev *Device, ev Event) error {
	if dev.Syscore {
		return nil
	}
	start := time.Now()

	dev.lock.Lock()
	dev.power.mu.Lock()
	dev.power.wakeupPath = dev.power.wakeupPath || dev.Wakeup
	noCallbacks := dev.power.noCallbacks
	dev.power.mu.Unlock()

	var direct bool
	var err error
	if !noCallbacks {
		if fn, layer := resolvePrepare(dev); fn != nil {
			e.log.Debug("calling device callback",
				"device", dev.Name, "layer", layer,
				"phase", phasePrepare.String(), "event", ev.String())
			wd := e.watchdogArm(dev)
			direct, err = fn(dev, ev)
			watchdogDisarm(wd)
		}
	}
	dev.lock.Unlock()

	if err != nil {
		e.obs.DeviceFinished(dev.Name, phasePrepare.String(), ev, err, time.Since(start), false)
		return err
	}

	// A positive prepare result means the device is already idle and its
	// whole subtree can skip the suspend and resume callbacks. Only the
	// plain suspend transition honours it; snapshots must always run the
	// real callbacks.
	dev.power.mu.Lock()
	dev.power.directComplete = ev == EventSuspend && (direct || noCallbacks)
	dev.power.mu.Unlock()

	e.obs.DeviceFinished(dev.Name, phasePrepare.String(), ev, nil, time.Since(start), false)
	return nil
}

// Prepare runs the prepare phase: every pending device, parents first.
// On failure the phase stops and the error names the device; devices
// already prepared stay prepared until a complete phase unwinds them.
func (e *Engine) Prepare(ev Event) error {
	start := e.startPhase(phasePrepare, ev)
	var err error
	count := 0

	e.mu.Lock()
	for e.pending.Len() > 0 {
		dev := e.pending.Front().Value.(*Device)
		dev.get()
		e.mu.Unlock()

		perr := e.devicePrepare(dev, ev)

		e.mu.Lock()
		if perr != nil {
			if errors.Is(perr, ErrAgain) {
				// Device is mid-removal; carry it forward unprepared
				// so the drain makes progress. Complete skips it.
				if dev.power.entry != nil {
					e.moveTo(dev, e.prepared, false)
				}
				dev.put()
				continue
			}
			e.log.Info("device not prepared for transition",
				"device", dev.Name, "error", perr)
			e.stats.saveFailedDevice(dev.Name)
			dev.put()
			err = fmt.Errorf("prepare %s: %w", dev.Name, perr)
			break
		}
		dev.power.mu.Lock()
		dev.power.prepared = true
		dev.power.mu.Unlock()
		if dev.power.entry != nil {
			e.moveTo(dev, e.prepared, false)
		}
		count++
		dev.put()
	}
	e.mu.Unlock()

	if err != nil {
		e.stats.saveFailedStep(StepPrepare)
	}
	return e.endPhase(phasePrepare, ev, start, err, count)
}

// deviceSuspend runs the suspend callback for one device after its
// subordinates have finished.
func (e *Engine) deviceSuspend(dev *Device, ev Event, async bool) error {
	start := time.Now()

	e.waitForSubordinate(dev, async)

	if e.asyncError() != nil {
		// Another device already failed; do no new suspend work.
		dev.setDirectComplete(false)
		return e.deviceDone(dev, phaseSuspend, ev, nil, start, async)
	}
	if e.wakeupPending() {
		dev.setDirectComplete(false)
		e.setAsyncError(ErrWakeupPending)
		return e.deviceDone(dev, phaseSuspend, ev, nil, start, async)
	}
	if dev.Syscore {
		return e.deviceDone(dev, phaseSuspend, ev, nil, start, async)
	}
	if !dev.Prepared() {
		// Skipped during prepare (removal in flight); carry it through
		// untouched.
		return e.deviceDone(dev, phaseSuspend, ev, nil, start, async)
	}

	dev.lock.Lock()

	dev.power.mu.Lock()
	// Wakeup-capable devices and devices on a wakeup path must run their
	// real callbacks so the wakeup machinery is configured.
	if dev.Wakeup || dev.power.wakeupPath {
		dev.power.directComplete = false
	}
	direct := dev.power.directComplete
	dev.power.mu.Unlock()

	if direct {
		// Skip the callback and keep the flag; resume skips too and the
		// complete phase clears it. Superior propagation is skipped on
		// purpose so the parent can still direct-complete.
		dev.power.mu.Lock()
		dev.power.suspended = true
		dev.power.mu.Unlock()
		dev.lock.Unlock()
		e.log.Debug("device suspended via direct-complete", "device", dev.Name)
		return e.deviceDone(dev, phaseSuspend, ev, nil, start, async)
	}

	cb, layer := resolve(dev, phaseSuspend)
	err := e.runCallback(cb, dev, ev, layer, phaseSuspend, async)

	if err == nil {
		dev.power.mu.Lock()
		dev.power.suspended = true
		wakeupPath := dev.power.wakeupPath
		dev.power.mu.Unlock()
		e.propagateToSuperiors(dev, wakeupPath)
	} else {
		// Wrap with the device name here, not just in the drain loop, so
		// an async failure surfacing through the phase record still names
		// the device that caused it.
		e.setAsyncError(fmt.Errorf("suspend %s: %w", dev.Name, err))
	}
	dev.lock.Unlock()

	return e.deviceDone(dev, phaseSuspend, ev, err, start, async)
}

// propagateToSuperiors runs after a device suspends for real: its parent
// and non-dormant suppliers can no longer direct-complete, and an active
// wakeup path climbs to the parent.
func (e *Engine) propagateToSuperiors(dev *Device, wakeupPath bool) {
	if p := dev.Parent; p != nil {
		p.power.mu.Lock()
		p.power.directComplete = false
		if wakeupPath && !p.IgnoreChildren {
			p.power.wakeupPath = true
		}
		p.power.mu.Unlock()
	}
	for _, l := range e.links.suppliersOf(dev) {
		if l.Status() != LinkDormant {
			l.Supplier.setDirectComplete(false)
		}
	}
}

// suspendOne re-arms the device's completion and either dispatches it to a
// worker or runs it inline. Async dispatch never reports an error here;
// failures surface through the phase failure record.
func (e *Engine) suspendOne(dev *Device, ev Event) error {
	dev.power.completion.reset()
	if e.isAsync(dev) {
		dev.get()
		e.dispatch(func() {
			if err := e.deviceSuspend(dev, ev, true); err != nil {
				e.log.Error("async device suspend failed",
					"device", dev.Name, "error", err)
				e.stats.saveFailedDevice(dev.Name)
			}
			dev.put()
		})
		return nil
	}
	return e.deviceSuspend(dev, ev, false)
}

// Suspend runs the suspend phase: every prepared device, children first.
// The first failure stops new work, the in-flight workers finish, and the
// already-suspended devices are resumed before the error is returned.
func (e *Engine) Suspend(ev Event) error {
	start := e.startPhase(phaseSuspend, ev)
	var err error
	count := 0

	e.mu.Lock()
	for e.prepared.Len() > 0 {
		dev := e.prepared.Back().Value.(*Device)
		dev.get()
		e.mu.Unlock()

		serr := e.suspendOne(dev, ev)

		e.mu.Lock()
		if serr != nil {
			e.log.Error("device suspend failed", "device", dev.Name, "error", serr)
			e.stats.saveFailedDevice(dev.Name)
			dev.put()
			err = fmt.Errorf("suspend %s: %w", dev.Name, serr)
			break
		}
		if dev.power.entry != nil {
			e.moveTo(dev, e.suspended, true)
		}
		count++
		dev.put()
		if e.asyncError() != nil {
			break
		}
	}
	e.mu.Unlock()
	e.wg.Wait()

	if err == nil {
		err = e.asyncError()
	}
	if err != nil {
		e.stats.saveFailedStep(StepSuspend)
		e.endPhase(phaseSuspend, ev, start, err, count)
		e.Resume(resumeEvent(ev))
		return err
	}
	return e.endPhase(phaseSuspend, ev, start, nil, count)
}

// deviceSuspendLate runs the suspend-late callback for one device.
func (e *Engine) deviceSuspendLate(dev *Device, ev Event, async bool) error {
	start := time.Now()

	e.waitForSubordinate(dev, async)

	if e.asyncError() != nil {
		return e.deviceDone(dev, phaseSuspendLate, ev, nil, start, async)
	}
	if e.wakeupPending() {
		e.setAsyncError(ErrWakeupPending)
		return e.deviceDone(dev, phaseSuspendLate, ev, nil, start, async)
	}
	if dev.Syscore || dev.DirectComplete() || !dev.Suspended() {
		return e.deviceDone(dev, phaseSuspendLate, ev, nil, start, async)
	}

	cb, layer := resolve(dev, phaseSuspendLate)
	err := e.runCallback(cb, dev, ev, layer, phaseSuspendLate, async)
	if err == nil {
		dev.power.mu.Lock()
		dev.power.lateSuspended = true
		dev.power.mu.Unlock()
	} else {
		e.setAsyncError(fmt.Errorf("suspend_late %s: %w", dev.Name, err))
	}
	return e.deviceDone(dev, phaseSuspendLate, ev, err, start, async)
}

// SuspendLate runs the suspend-late phase over the suspended list,
// children first. On failure the phase unwinds itself with resume-early,
// leaving every device back in the plain suspended state.
func (e *Engine) SuspendLate(ev Event) error {
	start := e.startPhase(phaseSuspendLate, ev)
	var err error
	count := 0

	e.mu.Lock()
	for e.suspended.Len() > 0 {
		dev := e.suspended.Back().Value.(*Device)
		dev.get()
		e.mu.Unlock()

		var serr error
		dev.power.completion.reset()
		if e.isAsync(dev) {
			dev.get()
			e.dispatch(func() {
				if werr := e.deviceSuspendLate(dev, ev, true); werr != nil {
					e.log.Error("async device suspend-late failed",
						"device", dev.Name, "error", werr)
					e.stats.saveFailedDevice(dev.Name)
				}
				dev.put()
			})
		} else {
			serr = e.deviceSuspendLate(dev, ev, false)
		}

		e.mu.Lock()
		// The device moves on even on failure; the rollback pass walks
		// the destination list and skips devices that never suspended.
		if dev.power.entry != nil {
			e.moveTo(dev, e.lateEarly, true)
		}
		if serr != nil {
			e.log.Error("device suspend-late failed", "device", dev.Name, "error", serr)
			e.stats.saveFailedDevice(dev.Name)
			dev.put()
			err = fmt.Errorf("suspend_late %s: %w", dev.Name, serr)
			break
		}
		count++
		dev.put()
		if e.asyncError() != nil {
			break
		}
	}
	e.mu.Unlock()
	e.wg.Wait()

	if err == nil {
		err = e.asyncError()
	}
	if err != nil {
		e.stats.saveFailedStep(StepSuspendLate)
		e.endPhase(phaseSuspendLate, ev, start, err, count)
		e.ResumeEarly(resumeEvent(ev))
		return err
	}
	return e.endPhase(phaseSuspendLate, ev, start, nil, count)
}

// deviceSuspendNoIRQ runs the suspend-noirq callback for one device.
func (e *Engine) deviceSuspendNoIRQ(dev *Device, ev Event, async bool) error {
	start := time.Now()

	e.waitForSubordinate(dev, async)

	if e.asyncError() != nil {
		return e.deviceDone(dev, phaseSuspendNoIRQ, ev, nil, start, async)
	}
	if e.wakeupPending() {
		e.setAsyncError(ErrWakeupPending)
		return e.deviceDone(dev, phaseSuspendNoIRQ, ev, nil, start, async)
	}
	if dev.Syscore || dev.DirectComplete() || !dev.LateSuspended() {
		return e.deviceDone(dev, phaseSuspendNoIRQ, ev, nil, start, async)
	}

	cb, layer := resolve(dev, phaseSuspendNoIRQ)
	err := e.runCallback(cb, dev, ev, layer, phaseSuspendNoIRQ, async)
	if err == nil {
		dev.power.mu.Lock()
		dev.power.noirqSuspended = true
		dev.power.mu.Unlock()
	} else {
		e.setAsyncError(fmt.Errorf("suspend_noirq %s: %w", dev.Name, err))
	}
	return e.deviceDone(dev, phaseSuspendNoIRQ, ev, err, start, async)
}

// SuspendNoIRQ runs the deepest suspend phase over the late-suspended
// list, children first. On failure it unwinds itself with resume-noirq.
func (e *Engine) SuspendNoIRQ(ev Event) error {
	start := e.startPhase(phaseSuspendNoIRQ, ev)
	var err error
	count := 0

	e.mu.Lock()
	for e.lateEarly.Len() > 0 {
		dev := e.lateEarly.Back().Value.(*Device)
		dev.get()
		e.mu.Unlock()

		var serr error
		dev.power.completion.reset()
		if e.isAsync(dev) {
			dev.get()
			e.dispatch(func() {
				if werr := e.deviceSuspendNoIRQ(dev, ev, true); werr != nil {
					e.log.Error("async device suspend-noirq failed",
						"device", dev.Name, "error", werr)
					e.stats.saveFailedDevice(dev.Name)
				}
				dev.put()
			})
		} else {
			serr = e.deviceSuspendNoIRQ(dev, ev, false)
		}

		e.mu.Lock()
		if serr != nil {
			e.log.Error("device suspend-noirq failed", "device", dev.Name, "error", serr)
			e.stats.saveFailedDevice(dev.Name)
			dev.put()
			err = fmt.Errorf("suspend_noirq %s: %w", dev.Name, serr)
			break
		}
		if dev.power.entry != nil {
			e.moveTo(dev, e.noirq, true)
		}
		count++
		dev.put()
		if e.asyncError() != nil {
			break
		}
	}
	e.mu.Unlock()
	e.wg.Wait()

	if err == nil {
		err = e.asyncError()
	}
	if err != nil {
		e.stats.saveFailedStep(StepSuspendNoIRQ)
		e.endPhase(phaseSuspendNoIRQ, ev, start, err, count)
		e.ResumeNoIRQ(resumeEvent(ev))
		return err
	}
	return e.endPhase(phaseSuspendNoIRQ, ev, start, nil, count)
}
