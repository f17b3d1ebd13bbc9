package pm

import "sync"

// Step names used in failure statistics. These match phase names where a
// phase exists, and are stable identifiers for external consumers.
const (
	StepPrepare      = "prepare"
	StepSuspend      = "suspend"
	StepSuspendLate  = "suspend_late"
	StepSuspendNoIRQ = "suspend_noirq"
	StepResume       = "resume"
	StepResumeEarly  = "resume_early"
	StepResumeNoIRQ  = "resume_noirq"
)

// failTrail is how many recent failing devices and steps are retained.
const failTrail = 2

// suspendStats accumulates transition outcomes for the life of the engine.
// Counters only ever increase; the trails are small ring buffers holding
// the most recent failures for quick diagnosis.
type suspendStats struct {
	mu sync.Mutex

	success int
	fail    int

	failedPrepare      int
	failedSuspend      int
	failedSuspendLate  int
	failedSuspendNoIRQ int
	failedResume       int
	failedResumeEarly  int
	failedResumeNoIRQ  int

	lastFailedDev  [failTrail]string
	lastDevIdx     int
	lastFailedStep [failTrail]string
	lastStepIdx    int
}

// saveFailedDevice records the name of a device whose callback failed.
func (s *suspendStats) saveFailedDevice(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFailedDev[s.lastDevIdx] = name
	s.lastDevIdx = (s.lastDevIdx + 1) % failTrail
}

// saveFailedStep records the step in which a phase-level failure occurred
// and bumps the matching counter.
func (s *suspendStats) saveFailedStep(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch step {
	case StepPrepare:
		s.failedPrepare++
	case StepSuspend:
		s.failedSuspend++
	case StepSuspendLate:
		s.failedSuspendLate++
	case StepSuspendNoIRQ:
		s.failedSuspendNoIRQ++
	case StepResume:
		s.failedResume++
	case StepResumeEarly:
		s.failedResumeEarly++
	case StepResumeNoIRQ:
		s.failedResumeNoIRQ++
	}
	s.lastFailedStep[s.lastStepIdx] = step
	s.lastStepIdx = (s.lastStepIdx + 1) % failTrail
}

// recordResult tallies the outcome of a whole transition.
func (s *suspendStats) recordResult(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.fail++
	} else {
		s.success++
	}
}

// StatsSnapshot is a point-in-time copy of the engine's transition
// statistics, safe to serialise.
type StatsSnapshot struct {
	Success            int      `json:"success"`
	Fail               int      `json:"fail"`
	FailedPrepare      int      `json:"failed_prepare"`
	FailedSuspend      int      `json:"failed_suspend"`
	FailedSuspendLate  int      `json:"failed_suspend_late"`
	FailedSuspendNoIRQ int      `json:"failed_suspend_noirq"`
	FailedResume       int      `json:"failed_resume"`
	FailedResumeEarly  int      `json:"failed_resume_early"`
	FailedResumeNoIRQ  int      `json:"failed_resume_noirq"`
	LastFailedDevices  []string `json:"last_failed_devices"`
	LastFailedSteps    []string `json:"last_failed_steps"`
}

// snapshot copies the current statistics. Trails are returned most recent
// first, empty slots omitted.
func (s *suspendStats) snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := StatsSnapshot{
		Success:            s.success,
		Fail:               s.fail,
		FailedPrepare:      s.failedPrepare,
		FailedSuspend:      s.failedSuspend,
		FailedSuspendLate:  s.failedSuspendLate,
		FailedSuspendNoIRQ: s.failedSuspendNoIRQ,
		FailedResume:       s.failedResume,
		FailedResumeEarly:  s.failedResumeEarly,
		FailedResumeNoIRQ:  s.failedResumeNoIRQ,
	}
	for i := 0; i < failTrail; i++ {
		if d := s.lastFailedDev[(s.lastDevIdx-1-i+2*failTrail)%failTrail]; d != "" {
			out.LastFailedDevices = append(out.LastFailedDevices, d)
		}
		if st := s.lastFailedStep[(s.lastStepIdx-1-i+2*failTrail)%failTrail]; st != "" {
			out.LastFailedSteps = append(out.LastFailedSteps, st)
		}
	}
	return out
}
