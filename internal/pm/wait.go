package pm

// The dependency waiter closes the gap the list ordering cannot cover on
// its own once async devices run concurrently. A waiting device blocks only
// on dependencies that might actually be in flight: if neither side runs
// async, list order already guarantees the dependency finished.

// waitOn blocks until dev finishes its current phase, but only when the
// dependency may be running concurrently with the waiter. async is whether
// the waiter itself is on a worker goroutine.
func (e *Engine) waitOn(dev *Device, async bool) waitResult {
	if dev == nil {
		return resultSucceeded
	}
	if async || e.isAsync(dev) {
		return dev.power.completion.wait()
	}
	return resultSucceeded
}

// waitForSubordinate blocks a suspending device until everything that
// depends on it has finished: its children, and the consumers of any
// non-dormant link it supplies.
func (e *Engine) waitForSubordinate(dev *Device, async bool) {
	for _, child := range e.childrenOf(dev) {
		e.waitOn(child, async)
	}
	for _, l := range e.links.consumersOf(dev) {
		if l.Status() != LinkDormant {
			e.waitOn(l.Consumer, async)
		}
	}
}

// waitForSuperior blocks a resuming device until everything it depends on
// has finished: its parent, and the suppliers of any non-dormant link it
// consumes. Returns false when dev was unregistered while waiting, in
// which case the caller must skip the device entirely.
func (e *Engine) waitForSuperior(dev *Device, async bool) bool {
	e.mu.Lock()
	if _, ok := e.devices[dev]; !ok {
		e.mu.Unlock()
		return false
	}
	parent := dev.Parent
	if parent != nil {
		parent.get()
	}
	e.mu.Unlock()

	e.waitOn(parent, async)
	if parent != nil {
		parent.put()
	}

	for _, l := range e.links.suppliersOf(dev) {
		if l.Status() != LinkDormant {
			e.waitOn(l.Supplier, async)
		}
	}

	// The device may have been unregistered while blocked above.
	return e.registered(dev)
}
