package pm

import "time"

// Composite operations pairing the phases the way a transition driver
// consumes them. SuspendStart/SuspendEnd walk devices down, with the
// platform's own sleep entry between them; ResumeStart/ResumeEnd walk
// them back up.

// SuspendStart runs prepare followed by suspend. On a suspend failure the
// suspend phase has already resumed the affected devices, but prepared
// devices remain prepared; the caller's recovery path runs ResumeEnd.
func (e *Engine) SuspendStart(ev Event) error {
	start := time.Now()
	err := e.Prepare(ev)
	if err == nil {
		err = e.Suspend(ev)
	}
	e.showTime("start", ev, start, err)
	return err
}

// SuspendEnd runs suspend-late followed by suspend-noirq. On failure the
// engine is left with every device back in the plain suspended state.
func (e *Engine) SuspendEnd(ev Event) error {
	start := time.Now()
	err := e.SuspendLate(ev)
	if err == nil {
		if err = e.SuspendNoIRQ(ev); err != nil {
			e.ResumeEarly(resumeEvent(ev))
		}
	}
	e.showTime("end", ev, start, err)
	return err
}

// ResumeStart runs resume-noirq followed by resume-early.
func (e *Engine) ResumeStart(ev Event) error {
	start := time.Now()
	err := e.ResumeNoIRQ(ev)
	if rerr := e.ResumeEarly(ev); err == nil {
		err = rerr
	}
	e.showTime("noirq and early resume", ev, start, err)
	return err
}

// ResumeEnd runs resume followed by complete.
func (e *Engine) ResumeEnd(ev Event) error {
	start := time.Now()
	err := e.Resume(ev)
	e.Complete(ev)
	e.showTime("resume and complete", ev, start, err)
	return err
}

// DoSuspend drives a full suspend transition through every phase. On
// failure the rollback has already run: every device is back in the
// active state when the error is returned.
func (e *Engine) DoSuspend(ev Event) error {
	if err := e.SuspendStart(ev); err != nil {
		e.ResumeEnd(resumeEvent(ev))
		e.stats.recordResult(err)
		return err
	}
	if err := e.SuspendEnd(ev); err != nil {
		e.ResumeEnd(resumeEvent(ev))
		e.stats.recordResult(err)
		return err
	}
	return nil
}

// DoResume drives a full resume transition. Failures are reported but the
// walk always runs to the end; partially working is better than stuck
// asleep.
func (e *Engine) DoResume(ev Event) error {
	err := e.ResumeStart(ev)
	if rerr := e.ResumeEnd(ev); err == nil {
		err = rerr
	}
	e.stats.recordResult(err)
	return err
}

func (e *Engine) showTime(label string, ev Event, start time.Time, err error) {
	if err != nil {
		e.log.Warn("power transition stage aborted",
			"stage", label, "event", ev.String(),
			"elapsed", time.Since(start).String(), "error", err)
		return
	}
	e.log.Info("power transition stage complete",
		"stage", label, "event", ev.String(),
		"elapsed", time.Since(start).String())
}
