package pm

import "container/list"

// The topology lists are never sorted. Registration appends to the pending
// list, so discovery order is the ordering guarantee: a parent registers
// before its children and therefore precedes them. Suspend phases drain
// from the tail (children first) and prepend into the next list; resume
// phases drain from the head (parents first) and append. Both preserve
// parent-before-child in every list at all times.

// Register adds dev to the power topology. The device joins the tail of
// the pending list and becomes part of the next transition.
func (e *Engine) Register(dev *Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.devices[dev]; ok {
		return ErrAlreadyRegistered
	}

	// Denylisted devices never join the topology. Their drivers still work
	// normally; they are simply invisible to transition bookkeeping.
	if e.denylist.Contains(dev.Name) {
		e.log.Warn("device is on the suspend denylist, skipping registration",
			"device", dev.Name)
		return nil
	}

	e.log.Debug("registering device for power management", "device", dev.Name)

	if p := dev.Parent; p != nil {
		if _, ok := e.devices[p]; ok && p.Prepared() {
			e.log.Warn("parent is mid-transition while child registers",
				"device", dev.Name, "parent", p.Name)
		}
		p.power.children = append(p.power.children, dev)
	}

	dev.power.completion = newCompletion()
	dev.power.noCallbacks = !hasCallbacks(dev)
	dev.power.entry = e.pending.PushBack(dev)
	dev.power.owner = e.pending
	e.devices[dev] = struct{}{}
	return nil
}

// Unregister removes dev from the topology. Any goroutine waiting on the
// device's phase completion is released with an abandoned result so it
// does not treat the dependency as satisfied.
func (e *Engine) Unregister(dev *Device) {
	e.mu.Lock()
	if _, ok := e.devices[dev]; !ok {
		e.mu.Unlock()
		return
	}
	e.log.Debug("removing device from power management", "device", dev.Name)

	// A nonzero pin count means a phase executor or worker still holds
	// the device. Removal proceeds (waiters are released below and the
	// phase paths re-check registration), but it is worth a trace.
	dev.power.mu.Lock()
	refs := dev.power.refs
	dev.power.mu.Unlock()
	if refs > 0 {
		e.log.Warn("device removed while transition work is in flight",
			"device", dev.Name, "refs", refs)
	}

	// Release waiters before the device leaves the list; the waiter
	// side re-checks registration after waking.
	dev.power.completion.fire(resultAbandoned)

	delete(e.devices, dev)
	dev.power.owner.Remove(dev.power.entry)
	dev.power.entry = nil
	dev.power.owner = nil
	if p := dev.Parent; p != nil {
		for i, c := range p.power.children {
			if c == dev {
				p.power.children = append(p.power.children[:i], p.power.children[i+1:]...)
				break
			}
		}
	}
	e.mu.Unlock()

	e.links.removeAll(dev)

	dev.power.mu.Lock()
	dev.power.prepared = false
	dev.power.suspended = false
	dev.power.lateSuspended = false
	dev.power.noirqSuspended = false
	dev.power.directComplete = false
	dev.power.wakeupPath = false
	dev.power.mu.Unlock()
}

// registered reports whether dev is still in the topology. Caller must not
// hold e.mu.
func (e *Engine) registered(dev *Device) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.devices[dev]
	return ok
}

// MoveBefore reorders dev to sit immediately before target, taking its
// transition position with it. Both devices must be registered and on the
// same list.
func (e *Engine) MoveBefore(dev, target *Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.sameList(dev, target); err != nil {
		return err
	}
	e.log.Debug("moving device in suspend order",
		"device", dev.Name, "before", target.Name)
	dev.power.owner.MoveBefore(dev.power.entry, target.power.entry)
	return nil
}

// MoveAfter reorders dev to sit immediately after target.
func (e *Engine) MoveAfter(dev, target *Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.sameList(dev, target); err != nil {
		return err
	}
	e.log.Debug("moving device in suspend order",
		"device", dev.Name, "after", target.Name)
	dev.power.owner.MoveAfter(dev.power.entry, target.power.entry)
	return nil
}

// MoveLast moves dev to the end of its list, making it the first device
// suspended and the last resumed among its peers.
func (e *Engine) MoveLast(dev *Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.devices[dev]; !ok {
		return ErrNotRegistered
	}
	if e.denylist.Contains(dev.Name) {
		e.log.Warn("device is on the suspend denylist, skipping reorder",
			"device", dev.Name)
		return nil
	}
	e.log.Debug("moving device to end of suspend order", "device", dev.Name)
	dev.power.owner.MoveToBack(dev.power.entry)
	return nil
}

func (e *Engine) sameList(dev, target *Device) error {
	if _, ok := e.devices[dev]; !ok {
		return ErrNotRegistered
	}
	if _, ok := e.devices[target]; !ok {
		return ErrNotRegistered
	}
	if dev.power.owner != target.power.owner {
		return ErrNotRegistered
	}
	return nil
}

// moveTo transfers dev from its current list to dst. Front placement is
// used by suspend phases (drain tail, prepend) and back placement by
// resume phases (drain head, append). Caller holds e.mu.
func (e *Engine) moveTo(dev *Device, dst *list.List, front bool) {
	dev.power.owner.Remove(dev.power.entry)
	if front {
		dev.power.entry = dst.PushFront(dev)
	} else {
		dev.power.entry = dst.PushBack(dev)
	}
	dev.power.owner = dst
}

// childrenOf snapshots dev's registered children.
func (e *Engine) childrenOf(dev *Device) []*Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Device, len(dev.power.children))
	copy(out, dev.power.children)
	return out
}

// ForEachDevice calls fn for every registered device in transition order.
// The device set is snapshotted first, so fn may call engine methods.
func (e *Engine) ForEachDevice(fn func(*Device)) {
	e.mu.Lock()
	devs := make([]*Device, 0, len(e.devices))
	for _, l := range []*list.List{e.pending, e.prepared, e.suspended, e.lateEarly, e.noirq} {
		for el := l.Front(); el != nil; el = el.Next() {
			devs = append(devs, el.Value.(*Device))
		}
	}
	e.mu.Unlock()
	for _, d := range devs {
		fn(d)
	}
}

// DeviceInfo is the externally visible summary of one device's power state.
type DeviceInfo struct {
	Name    string `json:"name"`
	Parent  string `json:"parent,omitempty"`
	State   string `json:"state"`
	Async   bool   `json:"async"`
	Wakeup  bool   `json:"wakeup"`
	Syscore bool   `json:"syscore,omitempty"`
}

// Devices lists every registered device in transition order.
func (e *Engine) Devices() []DeviceInfo {
	var out []DeviceInfo
	e.ForEachDevice(func(d *Device) {
		info := DeviceInfo{
			Name:    d.Name,
			State:   d.state(),
			Async:   d.AsyncCapable,
			Wakeup:  d.Wakeup,
			Syscore: d.Syscore,
		}
		if d.Parent != nil {
			info.Parent = d.Parent.Name
		}
		out = append(out, info)
	})
	return out
}

// WaitForDevice blocks waiter's transition work until dev finishes its
// current phase, honouring the same async rules as the built-in dependency
// waits. It returns the phase's first recorded failure, letting the caller
// bail out if the transition is already doomed.
func (e *Engine) WaitForDevice(waiter, dev *Device) error {
	if dev != nil {
		e.waitOn(dev, e.isAsync(waiter))
	}
	return e.asyncError()
}
