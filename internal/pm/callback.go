package pm

import (
	"context"
	"time"
)

// runCallback invokes a resolved callback with debug timing. Synchronous
// invocations run under the hang watchdog; worker invocations instead take
// a slot from the concurrency throttle, which is held only for the
// callback itself so a blocked dependency wait never occupies the pool.
func (e *Engine) runCallback(cb Callback, dev *Device, ev Event, layer string, ph phase, async bool) error {
	if cb == nil {
		return nil
	}
	e.log.Debug("calling device callback",
		"device", dev.Name, "layer", layer,
		"phase", ph.String(), "event", ev.String())
	start := time.Now()

	var wd *time.Timer
	if async {
		if err := e.sem.Acquire(context.Background(), 1); err != nil {
			return err
		}
		defer e.sem.Release(1)
	} else {
		wd = e.watchdogArm(dev)
	}
	err := cb(dev, ev)
	watchdogDisarm(wd)

	elapsed := time.Since(start)
	if err != nil {
		e.log.Error("device callback failed",
			"device", dev.Name, "layer", layer,
			"phase", ph.String(), "event", ev.String(),
			"elapsed", elapsed.String(), "error", err)
	} else {
		e.log.Debug("device callback complete",
			"device", dev.Name, "phase", ph.String(),
			"elapsed", elapsed.String())
	}
	return err
}

// deviceDone fires the device's phase completion, publishes the device
// telemetry event and passes err through. Every per-device phase path ends
// here, including skips.
func (e *Engine) deviceDone(dev *Device, ph phase, ev Event, err error, start time.Time, async bool) error {
	dev.power.completion.fire(resultSucceeded)
	e.obs.DeviceFinished(dev.Name, ph.String(), ev, err, time.Since(start), async)
	return err
}
