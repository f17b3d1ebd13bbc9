package pm

import (
	"container/list"
	"fmt"
	"time"
)

// Resume-direction phases never abort early. Every device gets its
// attempt; failures are logged and counted, and the first one becomes the
// phase result, but a broken device must not strand the ones behind it in
// a low-power state.

// recordResumeFailure logs and counts a resume-direction callback failure
// and records it as the phase result if it is the first.
func (e *Engine) recordResumeFailure(dev *Device, step string, err error) {
	e.log.Error("device resume failed",
		"device", dev.Name, "step", step, "error", err)
	e.stats.saveFailedDevice(dev.Name)
	e.stats.saveFailedStep(step)
	e.setAsyncError(fmt.Errorf("%s %s: %w", step, dev.Name, err))
}

// fanOutResume re-arms completions for every device on l and dispatches
// the async-capable ones, so synchronous devices further down the list can
// overlap with them. Caller holds e.mu.
func (e *Engine) fanOutResume(l *list.List, ev Event, step string,
	run func(*Device, Event, bool) error) {
	for el := l.Front(); el != nil; el = el.Next() {
		dev := el.Value.(*Device)
		dev.power.completion.reset()
		if e.isAsync(dev) {
			dev.get()
			e.dispatch(func() {
				if err := run(dev, ev, true); err != nil {
					e.recordResumeFailure(dev, step, err)
				}
				dev.put()
			})
		}
	}
}

// deviceResumeNoIRQ runs the resume-noirq callback for one device.
func (e *Engine) deviceResumeNoIRQ(dev *Device, ev Event, async bool) error {
	start := time.Now()

	if dev.Syscore || dev.DirectComplete() {
		return e.deviceDone(dev, phaseResumeNoIRQ, ev, nil, start, async)
	}
	if !dev.NoIRQSuspended() {
		return e.deviceDone(dev, phaseResumeNoIRQ, ev, nil, start, async)
	}
	if !e.waitForSuperior(dev, async) {
		// Device unregistered while waiting; nothing left to resume.
		return e.deviceDone(dev, phaseResumeNoIRQ, ev, nil, start, async)
	}

	cb, layer := resolve(dev, phaseResumeNoIRQ)
	err := e.runCallback(cb, dev, ev, layer, phaseResumeNoIRQ, async)

	dev.power.mu.Lock()
	dev.power.noirqSuspended = false
	dev.power.mu.Unlock()

	return e.deviceDone(dev, phaseResumeNoIRQ, ev, err, start, async)
}

// ResumeNoIRQ runs the first resume phase over the noirq list, parents
// first, returning devices to the late-suspended state.
func (e *Engine) ResumeNoIRQ(ev Event) error {
	start := e.startPhase(phaseResumeNoIRQ, ev)
	count := 0

	e.mu.Lock()
	e.fanOutResume(e.noirq, ev, StepResumeNoIRQ, e.deviceResumeNoIRQ)
	for e.noirq.Len() > 0 {
		dev := e.noirq.Front().Value.(*Device)
		dev.get()
		e.moveTo(dev, e.lateEarly, false)
		e.mu.Unlock()

		if !e.isAsync(dev) {
			if err := e.deviceResumeNoIRQ(dev, ev, false); err != nil {
				e.recordResumeFailure(dev, StepResumeNoIRQ, err)
			}
		}
		count++

		e.mu.Lock()
		dev.put()
	}
	e.mu.Unlock()
	e.wg.Wait()

	return e.endPhase(phaseResumeNoIRQ, ev, start, e.asyncError(), count)
}

// deviceResumeEarly runs the resume-early callback for one device.
func (e *Engine) deviceResumeEarly(dev *Device, ev Event, async bool) error {
	start := time.Now()

	if dev.Syscore || dev.DirectComplete() {
		return e.deviceDone(dev, phaseResumeEarly, ev, nil, start, async)
	}
	if !dev.LateSuspended() {
		return e.deviceDone(dev, phaseResumeEarly, ev, nil, start, async)
	}
	if !e.waitForSuperior(dev, async) {
		return e.deviceDone(dev, phaseResumeEarly, ev, nil, start, async)
	}

	cb, layer := resolve(dev, phaseResumeEarly)
	err := e.runCallback(cb, dev, ev, layer, phaseResumeEarly, async)

	dev.power.mu.Lock()
	dev.power.lateSuspended = false
	dev.power.mu.Unlock()

	return e.deviceDone(dev, phaseResumeEarly, ev, err, start, async)
}

// ResumeEarly runs the resume-early phase over the late-early list,
// parents first, returning devices to the plain suspended state.
func (e *Engine) ResumeEarly(ev Event) error {
	start := e.startPhase(phaseResumeEarly, ev)
	count := 0

	e.mu.Lock()
	e.fanOutResume(e.lateEarly, ev, StepResumeEarly, e.deviceResumeEarly)
	for e.lateEarly.Len() > 0 {
		dev := e.lateEarly.Front().Value.(*Device)
		dev.get()
		e.moveTo(dev, e.suspended, false)
		e.mu.Unlock()

		if !e.isAsync(dev) {
			if err := e.deviceResumeEarly(dev, ev, false); err != nil {
				e.recordResumeFailure(dev, StepResumeEarly, err)
			}
		}
		count++

		e.mu.Lock()
		dev.put()
	}
	e.mu.Unlock()
	e.wg.Wait()

	return e.endPhase(phaseResumeEarly, ev, start, e.asyncError(), count)
}

// deviceResume runs the resume callback for one device.
func (e *Engine) deviceResume(dev *Device, ev Event, async bool) error {
	start := time.Now()

	if dev.Syscore {
		return e.deviceDone(dev, phaseResume, ev, nil, start, async)
	}
	if dev.DirectComplete() {
		// Callbacks were skipped on the way down; skip them on the way
		// up too. The flag survives until the complete phase.
		dev.power.mu.Lock()
		dev.power.suspended = false
		dev.power.mu.Unlock()
		e.log.Debug("device resumed via direct-complete", "device", dev.Name)
		return e.deviceDone(dev, phaseResume, ev, nil, start, async)
	}
	if !e.waitForSuperior(dev, async) {
		return e.deviceDone(dev, phaseResume, ev, nil, start, async)
	}

	dev.lock.Lock()

	dev.power.mu.Lock()
	// Drop prepared already so the device can accept new children while
	// the rest of the resume runs.
	dev.power.prepared = false
	suspended := dev.power.suspended
	dev.power.mu.Unlock()

	if !suspended {
		dev.lock.Unlock()
		return e.deviceDone(dev, phaseResume, ev, nil, start, async)
	}

	cb, layer := resolve(dev, phaseResume)
	err := e.runCallback(cb, dev, ev, layer, phaseResume, async)

	dev.power.mu.Lock()
	dev.power.suspended = false
	dev.power.mu.Unlock()
	dev.lock.Unlock()

	return e.deviceDone(dev, phaseResume, ev, err, start, async)
}

// Resume runs the main resume phase over the suspended list, parents
// first, returning devices to the prepared state.
func (e *Engine) Resume(ev Event) error {
	start := e.startPhase(phaseResume, ev)
	count := 0

	e.mu.Lock()
	e.fanOutResume(e.suspended, ev, StepResume, e.deviceResume)
	for e.suspended.Len() > 0 {
		dev := e.suspended.Front().Value.(*Device)
		dev.get()

		if !e.isAsync(dev) {
			e.mu.Unlock()
			if err := e.deviceResume(dev, ev, false); err != nil {
				e.recordResumeFailure(dev, StepResume, err)
			}
			e.mu.Lock()
		}
		if dev.power.entry != nil {
			e.moveTo(dev, e.prepared, false)
		}
		count++
		dev.put()
	}
	e.mu.Unlock()
	e.wg.Wait()

	return e.endPhase(phaseResume, ev, start, e.asyncError(), count)
}

// deviceComplete runs the complete callback for one device and retires the
// transition flags. Always synchronous.
func (e *Engine) deviceComplete(dev *Device, ev Event) {
	if dev.Syscore {
		return
	}
	start := time.Now()

	dev.lock.Lock()
	if cb, layer := resolveComplete(dev); cb != nil {
		e.log.Debug("calling device callback",
			"device", dev.Name, "layer", layer,
			"phase", phaseComplete.String(), "event", ev.String())
		wd := e.watchdogArm(dev)
		cb(dev, ev)
		watchdogDisarm(wd)
	}
	dev.lock.Unlock()

	dev.power.mu.Lock()
	dev.power.directComplete = false
	dev.power.wakeupPath = false
	dev.power.mu.Unlock()

	e.obs.DeviceFinished(dev.Name, phaseComplete.String(), ev, nil, time.Since(start), false)
}

// Complete runs the complete phase over the prepared list, children first,
// returning every device to the pending list. Devices whose prepared flag
// is already clear are moved without their callback being invoked.
func (e *Engine) Complete(ev Event) {
	start := e.startPhase(phaseComplete, ev)
	count := 0

	e.mu.Lock()
	for e.prepared.Len() > 0 {
		dev := e.prepared.Back().Value.(*Device)
		dev.get()

		dev.power.mu.Lock()
		wasPrepared := dev.power.prepared
		dev.power.prepared = false
		dev.power.mu.Unlock()

		// Draining the tail and prepending keeps discovery order.
		e.moveTo(dev, e.pending, true)
		e.mu.Unlock()

		if wasPrepared {
			e.deviceComplete(dev, ev)
			count++
		}

		e.mu.Lock()
		dev.put()
	}
	e.transition = EventOn
	e.mu.Unlock()

	e.endPhase(phaseComplete, ev, start, nil, count)
}
