package pm

import "errors"

// Sentinel errors returned by the engine and recognised from callbacks.
var (
	// ErrWakeupPending aborts a suspend-direction phase when a wakeup
	// event arrives mid-transition.
	ErrWakeupPending = errors.New("pm: wakeup event pending")

	// ErrAgain may be returned from a prepare callback to indicate the
	// device is in flux (typically being unregistered). The device is
	// skipped for this transition rather than failing it.
	ErrAgain = errors.New("pm: device not ready, try again")

	// ErrAlreadyRegistered is returned when a device is registered twice.
	ErrAlreadyRegistered = errors.New("pm: device already registered")

	// ErrNotRegistered is returned for operations on an unknown device.
	ErrNotRegistered = errors.New("pm: device not registered")
)
