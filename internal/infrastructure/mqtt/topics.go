package mqtt

import "fmt"

// Topic prefixes for the Gray Logic Power diagnostics bus.
//
// All topics use the scheme: graypower/{category}/...
// Transition and phase topics are published by the telemetry observer;
// system topics carry service lifecycle status.
const (
	// TopicPrefix is the base for all Gray Logic Power topics.
	TopicPrefix = "graypower"

	// TopicPrefixTransition is the base for transition lifecycle topics.
	TopicPrefixTransition = "graypower/transition"

	// TopicPrefixPhase is the base for per-phase progress topics.
	TopicPrefixPhase = "graypower/phase"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graypower/system"
)

// Topics provides builders for Gray Logic Power MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	beginTopic := topics.TransitionBegin()
//	// Returns: "graypower/transition/begin"
type Topics struct{}

// TransitionBegin returns the topic announcing the start of a transition.
//
// Example: graypower/transition/begin
func (Topics) TransitionBegin() string {
	return fmt.Sprintf("%s/begin", TopicPrefixTransition)
}

// TransitionEnd returns the topic announcing the outcome of a transition.
//
// Example: graypower/transition/end
func (Topics) TransitionEnd() string {
	return fmt.Sprintf("%s/end", TopicPrefixTransition)
}

// PhaseStarted returns the topic for phase-start events.
//
// Example: graypower/phase/suspend_noirq/started
func (Topics) PhaseStarted(phase string) string {
	return fmt.Sprintf("%s/%s/started", TopicPrefixPhase, phase)
}

// PhaseFinished returns the topic for phase-completion events.
//
// Example: graypower/phase/resume_early/finished
func (Topics) PhaseFinished(phase string) string {
	return fmt.Sprintf("%s/%s/finished", TopicPrefixPhase, phase)
}

// PhaseDevice returns the topic for per-device callback results within a phase.
//
// Example: graypower/phase/suspend/device/nvme0
func (Topics) PhaseDevice(phase, device string) string {
	return fmt.Sprintf("%s/%s/device/%s", TopicPrefixPhase, phase, device)
}

// SystemStatus returns the service status topic.
// Carries the retained online/offline payload and the LWT.
//
// Example: graypower/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllTransitionEvents returns a pattern matching transition begin and end.
//
// Pattern: graypower/transition/+
func (Topics) AllTransitionEvents() string {
	return fmt.Sprintf("%s/+", TopicPrefixTransition)
}

// AllPhaseEvents returns a pattern matching phase started/finished events.
//
// Pattern: graypower/phase/+/+
func (Topics) AllPhaseEvents() string {
	return fmt.Sprintf("%s/+/+", TopicPrefixPhase)
}

// AllPhaseDeviceResults returns a pattern matching per-device results
// across every phase.
//
// Pattern: graypower/phase/+/device/+
func (Topics) AllPhaseDeviceResults() string {
	return fmt.Sprintf("%s/+/device/+", TopicPrefixPhase)
}

// AllTopics returns a pattern matching all Gray Logic Power topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: graypower/#
func (Topics) AllTopics() string {
	return "graypower/#"
}
