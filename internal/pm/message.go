package pm

// Event identifies the kind of system transition a callback is being invoked
// for. Suspend-direction and resume-direction events come in fixed pairs;
// resumeEvent maps one to the other.
type Event int

const (
	// EventOn is the neutral state between transitions.
	EventOn Event = iota

	// EventSuspend puts devices into low-power state for system sleep.
	EventSuspend

	// EventResume brings devices back after EventSuspend.
	EventResume

	// EventFreeze quiesces devices without powering them down, used when
	// a memory snapshot is about to be taken.
	EventFreeze

	// EventQuiesce stops device activity before loading a saved snapshot.
	EventQuiesce

	// EventHibernate powers devices down after a snapshot has been saved.
	EventHibernate

	// EventThaw reactivates devices after EventFreeze.
	EventThaw

	// EventRestore reactivates devices after a snapshot has been loaded.
	EventRestore

	// EventRecover reactivates devices after a failed freeze or quiesce.
	EventRecover
)

// String returns the event name used in logs and wire payloads.
func (e Event) String() string {
	switch e {
	case EventOn:
		return "on"
	case EventSuspend:
		return "suspend"
	case EventResume:
		return "resume"
	case EventFreeze:
		return "freeze"
	case EventQuiesce:
		return "quiesce"
	case EventHibernate:
		return "hibernate"
	case EventThaw:
		return "thaw"
	case EventRestore:
		return "restore"
	case EventRecover:
		return "recover"
	default:
		return "unknown"
	}
}

// ParseEvent maps an event name back to its Event value. Only
// suspend-direction events are accepted; transition drivers derive the
// resume direction through ResumeEvent.
func ParseEvent(name string) (Event, bool) {
	switch name {
	case "suspend":
		return EventSuspend, true
	case "freeze":
		return EventFreeze, true
	case "quiesce":
		return EventQuiesce, true
	case "hibernate":
		return EventHibernate, true
	default:
		return EventOn, false
	}
}

// Sleeping reports whether the event moves devices towards a low-power or
// quiesced state.
func (e Event) Sleeping() bool {
	switch e {
	case EventSuspend, EventFreeze, EventQuiesce, EventHibernate:
		return true
	default:
		return false
	}
}

// resumeEvent returns the resume-direction event paired with a
// suspend-direction one. Resume-direction events map to themselves so
// rollback paths can pass either through.
func resumeEvent(e Event) Event {
	switch e {
	case EventSuspend:
		return EventResume
	case EventFreeze, EventQuiesce:
		return EventRecover
	case EventHibernate:
		return EventRestore
	default:
		return e
	}
}

// ResumeEvent is the exported form of the suspend-to-resume event pairing,
// used by transition drivers composing rollback.
func ResumeEvent(e Event) Event { return resumeEvent(e) }

// phase identifies one of the eight transition phases. Used by the callback
// resolver to select the matching slot in an Ops table.
type phase int

const (
	phasePrepare phase = iota
	phaseSuspend
	phaseSuspendLate
	phaseSuspendNoIRQ
	phaseResumeNoIRQ
	phaseResumeEarly
	phaseResume
	phaseComplete
)

func (p phase) String() string {
	switch p {
	case phasePrepare:
		return "prepare"
	case phaseSuspend:
		return "suspend"
	case phaseSuspendLate:
		return "suspend_late"
	case phaseSuspendNoIRQ:
		return "suspend_noirq"
	case phaseResumeNoIRQ:
		return "resume_noirq"
	case phaseResumeEarly:
		return "resume_early"
	case phaseResume:
		return "resume"
	case phaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}
