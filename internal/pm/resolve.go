package pm

// Callback resolution walks the device's layers in fixed priority order:
// power domain, then type, then class, then bus. The first layer present
// with an Ops table owns the device for that phase, even if its slot for
// the phase is nil. The driver's table is a fallback consulted only when
// no layer produced a callback. Legacy single-function class and bus hooks
// fill in for the main suspend and resume phases when the layer has no Ops
// table at all.

// opFor selects the slot matching a mid-transition phase. Prepare and
// complete have distinct signatures and their own resolvers.
func opFor(ops *Ops, ph phase) Callback {
	if ops == nil {
		return nil
	}
	switch ph {
	case phaseSuspend:
		return ops.Suspend
	case phaseSuspendLate:
		return ops.SuspendLate
	case phaseSuspendNoIRQ:
		return ops.SuspendNoIRQ
	case phaseResumeNoIRQ:
		return ops.ResumeNoIRQ
	case phaseResumeEarly:
		return ops.ResumeEarly
	case phaseResume:
		return ops.Resume
	default:
		return nil
	}
}

// legacyFor adapts a legacy hook to the phase, or returns nil when the
// phase has no legacy equivalent.
func legacyFor(suspend, resume LegacyCallback, ph phase) Callback {
	switch ph {
	case phaseSuspend:
		if suspend != nil {
			return Callback(suspend)
		}
	case phaseResume:
		if resume != nil {
			return Callback(resume)
		}
	}
	return nil
}

// resolve returns the callback to run for dev in the given phase, plus the
// name of the layer that supplied it for logging. Both zero when no layer
// has anything to do.
func resolve(dev *Device, ph phase) (Callback, string) {
	var cb Callback
	var layer string

	switch {
	case dev.Domain != nil && dev.Domain.Ops != nil:
		cb, layer = opFor(dev.Domain.Ops, ph), "power domain"
	case dev.Type != nil && dev.Type.Ops != nil:
		cb, layer = opFor(dev.Type.Ops, ph), "type"
	case dev.Class != nil && dev.Class.Ops != nil:
		cb, layer = opFor(dev.Class.Ops, ph), "class"
	case dev.Class != nil && legacyFor(dev.Class.LegacySuspend, dev.Class.LegacyResume, ph) != nil:
		return legacyFor(dev.Class.LegacySuspend, dev.Class.LegacyResume, ph), "legacy class"
	case dev.Bus != nil && dev.Bus.Ops != nil:
		cb, layer = opFor(dev.Bus.Ops, ph), "bus"
	case dev.Bus != nil && legacyFor(dev.Bus.LegacySuspend, dev.Bus.LegacyResume, ph) != nil:
		return legacyFor(dev.Bus.LegacySuspend, dev.Bus.LegacyResume, ph), "legacy bus"
	}

	if cb == nil && dev.Driver != nil && dev.Driver.Ops != nil {
		if fallback := opFor(dev.Driver.Ops, ph); fallback != nil {
			return fallback, "driver"
		}
	}
	return cb, layer
}

// resolvePrepare returns the prepare callback for dev, with the same layer
// walk as resolve. Legacy hooks have no prepare equivalent.
func resolvePrepare(dev *Device) (PrepareFunc, string) {
	var fn PrepareFunc
	var layer string

	switch {
	case dev.Domain != nil && dev.Domain.Ops != nil:
		fn, layer = dev.Domain.Ops.Prepare, "power domain"
	case dev.Type != nil && dev.Type.Ops != nil:
		fn, layer = dev.Type.Ops.Prepare, "type"
	case dev.Class != nil && dev.Class.Ops != nil:
		fn, layer = dev.Class.Ops.Prepare, "class"
	case dev.Bus != nil && dev.Bus.Ops != nil:
		fn, layer = dev.Bus.Ops.Prepare, "bus"
	}

	if fn == nil && dev.Driver != nil && dev.Driver.Ops != nil && dev.Driver.Ops.Prepare != nil {
		return dev.Driver.Ops.Prepare, "driver"
	}
	return fn, layer
}

// resolveComplete returns the complete callback for dev.
func resolveComplete(dev *Device) (CompleteFunc, string) {
	var fn CompleteFunc
	var layer string

	switch {
	case dev.Domain != nil && dev.Domain.Ops != nil:
		fn, layer = dev.Domain.Ops.Complete, "power domain"
	case dev.Type != nil && dev.Type.Ops != nil:
		fn, layer = dev.Type.Ops.Complete, "type"
	case dev.Class != nil && dev.Class.Ops != nil:
		fn, layer = dev.Class.Ops.Complete, "class"
	case dev.Bus != nil && dev.Bus.Ops != nil:
		fn, layer = dev.Bus.Ops.Complete, "bus"
	}

	if fn == nil && dev.Driver != nil && dev.Driver.Ops != nil && dev.Driver.Ops.Complete != nil {
		return dev.Driver.Ops.Complete, "driver"
	}
	return fn, layer
}

// hasCallbacks reports whether any layer supplies any transition callback
// for dev. Devices without callbacks skip every phase's dispatch entirely.
func hasCallbacks(dev *Device) bool {
	if dev.Domain != nil && !dev.Domain.Ops.empty() {
		return true
	}
	if dev.Type != nil && !dev.Type.Ops.empty() {
		return true
	}
	if dev.Class != nil && (!dev.Class.Ops.empty() ||
		dev.Class.LegacySuspend != nil || dev.Class.LegacyResume != nil) {
		return true
	}
	if dev.Bus != nil && (!dev.Bus.Ops.empty() ||
		dev.Bus.LegacySuspend != nil || dev.Bus.LegacyResume != nil) {
		return true
	}
	if dev.Driver != nil && !dev.Driver.Ops.empty() {
		return true
	}
	return false
}
