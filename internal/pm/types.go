package pm

import (
	"container/list"
	"sync"
)

// Callback is a per-phase device callback. The event tells the callback
// which kind of transition is in progress, so a single slot can behave
// differently for suspend and freeze.
type Callback func(dev *Device, ev Event) error

// PrepareFunc runs during the prepare phase. Returning direct=true requests
// the direct-complete optimisation: the device (already idle) skips the
// suspend and resume callbacks entirely for this transition.
type PrepareFunc func(dev *Device, ev Event) (direct bool, err error)

// CompleteFunc runs during the complete phase. It cannot fail; by this
// point the transition outcome is already decided.
type CompleteFunc func(dev *Device, ev Event)

// LegacyCallback is the single-function suspend or resume hook carried by
// older bus and class implementations that predate the phased Ops table.
type LegacyCallback func(dev *Device, ev Event) error

// Ops is a table of transition callbacks, one slot per phase. Any slot may
// be nil, meaning the owner has nothing to do for that phase.
type Ops struct {
	Prepare      PrepareFunc
	Suspend      Callback
	SuspendLate  Callback
	SuspendNoIRQ Callback
	ResumeNoIRQ  Callback
	ResumeEarly  Callback
	Resume       Callback
	Complete     CompleteFunc
}

// empty reports whether every slot is nil.
func (o *Ops) empty() bool {
	return o == nil || (o.Prepare == nil && o.Suspend == nil &&
		o.SuspendLate == nil && o.SuspendNoIRQ == nil &&
		o.ResumeNoIRQ == nil && o.ResumeEarly == nil &&
		o.Resume == nil && o.Complete == nil)
}

// PowerDomain supplies callbacks for every device it contains, overriding
// all other layers.
type PowerDomain struct {
	Name string
	Ops  *Ops
}

// DeviceType groups devices of the same kind within a class.
type DeviceType struct {
	Name string
	Ops  *Ops
}

// DeviceClass groups devices by what they do. Classes may carry legacy
// single-function hooks instead of a full Ops table.
type DeviceClass struct {
	Name          string
	Ops           *Ops
	LegacySuspend LegacyCallback
	LegacyResume  LegacyCallback
}

// Bus groups devices by how they are connected. Buses may carry legacy
// single-function hooks instead of a full Ops table.
type Bus struct {
	Name          string
	Ops           *Ops
	LegacySuspend LegacyCallback
	LegacyResume  LegacyCallback
}

// Driver is the lowest-priority callback provider, consulted only when no
// higher layer supplies a slot for the phase.
type Driver struct {
	Name string
	Ops  *Ops
}

// Device is one node in the power topology. Callers populate the exported
// fields before Register; the engine owns everything in power afterwards.
type Device struct {
	Name   string
	Parent *Device

	Domain *PowerDomain
	Type   *DeviceType
	Class  *DeviceClass
	Bus    *Bus
	Driver *Driver

	// Wakeup marks the device as able to wake the sleeping system.
	// Wakeup-capable devices are never granted direct-complete.
	Wakeup bool

	// AsyncCapable allows the engine to run this device's callbacks on a
	// worker goroutine, overlapping with other devices in the same phase.
	AsyncCapable bool

	// Syscore devices are exempt from every phase; core system
	// infrastructure handled outside the normal transition.
	Syscore bool

	// IgnoreChildren stops child wakeup paths propagating to this device.
	IgnoreChildren bool

	// lock serialises callback invocation for the outer phases (prepare,
	// suspend, resume, complete) against other users of the device.
	lock sync.Mutex

	power powerState
}

// powerState is the engine-owned bookkeeping attached to each device.
type powerState struct {
	// mu guards the flag fields below. Kept separate from the engine
	// list lock because flags are touched from concurrent phase workers.
	mu sync.Mutex

	prepared       bool
	suspended      bool
	lateSuspended  bool
	noirqSuspended bool

	// directComplete records that the prepare callback granted the
	// skip-everything optimisation for this transition.
	directComplete bool

	// wakeupPath marks devices on the route between a wakeup source and
	// its wakeup-capable ancestor. Propagated to parents during suspend.
	wakeupPath bool

	// noCallbacks is precomputed at registration: no layer supplies any
	// callback, so every phase can skip the device cheaply.
	noCallbacks bool

	// entry and owner locate the device inside one of the five topology
	// lists. Both nil when the device is not registered. Guarded by the
	// engine list lock, not mu.
	entry *list.Element
	owner *list.List

	// children are the registered devices naming this one as Parent.
	// Guarded by the engine list lock.
	children []*Device

	// refs counts operations pinning the device. Guarded by mu.
	refs int

	completion *completion
}

// Prepared reports whether the device passed the prepare phase of the
// current transition.
func (d *Device) Prepared() bool {
	d.power.mu.Lock()
	defer d.power.mu.Unlock()
	return d.power.prepared
}

// Suspended reports whether the device's suspend callback has run.
func (d *Device) Suspended() bool {
	d.power.mu.Lock()
	defer d.power.mu.Unlock()
	return d.power.suspended
}

// LateSuspended reports whether the device's suspend-late callback has run.
func (d *Device) LateSuspended() bool {
	d.power.mu.Lock()
	defer d.power.mu.Unlock()
	return d.power.lateSuspended
}

// NoIRQSuspended reports whether the device's suspend-noirq callback has run.
func (d *Device) NoIRQSuspended() bool {
	d.power.mu.Lock()
	defer d.power.mu.Unlock()
	return d.power.noirqSuspended
}

// DirectComplete reports whether the device was granted the direct-complete
// optimisation for the current transition.
func (d *Device) DirectComplete() bool {
	d.power.mu.Lock()
	defer d.power.mu.Unlock()
	return d.power.directComplete
}

// WakeupPath reports whether the device sits on an active wakeup path.
func (d *Device) WakeupPath() bool {
	d.power.mu.Lock()
	defer d.power.mu.Unlock()
	return d.power.wakeupPath
}

// SetWakeupPath marks or clears the device as part of a wakeup path.
// Normally set by wakeup sources before a transition starts.
func (d *Device) SetWakeupPath(on bool) {
	d.power.mu.Lock()
	defer d.power.mu.Unlock()
	d.power.wakeupPath = on
}

func (d *Device) setDirectComplete(on bool) {
	d.power.mu.Lock()
	defer d.power.mu.Unlock()
	d.power.directComplete = on
}

// get pins the device for the duration of an engine operation.
func (d *Device) get() {
	d.power.mu.Lock()
	d.power.refs++
	d.power.mu.Unlock()
}

// put releases a pin taken with get.
func (d *Device) put() {
	d.power.mu.Lock()
	d.power.refs--
	d.power.mu.Unlock()
}

// state names the device's position in the transition for reporting.
func (d *Device) state() string {
	d.power.mu.Lock()
	defer d.power.mu.Unlock()
	switch {
	case d.power.noirqSuspended:
		return "noirq-suspended"
	case d.power.lateSuspended:
		return "late-suspended"
	case d.power.suspended:
		return "suspended"
	case d.power.prepared:
		return "prepared"
	default:
		return "active"
	}
}
