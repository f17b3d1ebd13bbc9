package pm

import "time"

// Observer receives transition progress events for telemetry. Callbacks
// are invoked inline from the engine: phase events from the goroutine
// driving the transition, device events possibly from worker goroutines.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	// PhaseStarted fires when a phase begins draining its list.
	PhaseStarted(phase string, event Event)

	// PhaseFinished fires after the phase barrier, once every device in
	// the phase has finished. err is the phase's first failure, nil on
	// success.
	PhaseFinished(phase string, event Event, err error, elapsed time.Duration, devices int)

	// DeviceFinished fires once per device per phase after the device's
	// work ends, including devices whose work was skipped.
	DeviceFinished(device, phase string, event Event, err error, elapsed time.Duration, async bool)
}

type noopObserver struct{}

func (noopObserver) PhaseStarted(string, Event)                                       {}
func (noopObserver) PhaseFinished(string, Event, error, time.Duration, int)           {}
func (noopObserver) DeviceFinished(string, string, Event, error, time.Duration, bool) {}
