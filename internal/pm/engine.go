package pm

import (
	"container/list"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Logger is the minimal logging interface the engine needs. Satisfied by
// the application's structured logger; tests and embedded use can leave it
// nil for silence.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config carries the engine's tunables. The zero value is usable: async
// execution off, watchdog off, no denylist.
type Config struct {
	// AsyncEnabled allows async-capable devices to run on worker
	// goroutines. When false every device runs synchronously in list
	// order.
	AsyncEnabled bool

	// MaxAsync caps concurrently running async device callbacks.
	// Zero means 4x the number of CPUs.
	MaxAsync int64

	// WatchdogTimeout is the per-callback deadline for synchronous
	// callbacks. A callback exceeding it is treated as a hang and
	// brings the process down. Zero disables the watchdog.
	WatchdogTimeout time.Duration

	// Denylist holds device names excluded from the topology entirely.
	Denylist []string

	// WakeupPending reports whether a system wakeup event has arrived.
	// Polled between devices during suspend phases; a pending wakeup
	// aborts the transition. Nil means never pending.
	WakeupPending func() bool

	Logger   Logger
	Observer Observer
}

// Engine coordinates power transitions over the registered device
// topology. All exported methods are safe for concurrent use, though only
// one transition should be driven at a time.
type Engine struct {
	// mu guards the five topology lists, the per-device entry/owner
	// fields, device children slices and the transition event.
	mu sync.Mutex

	// The five topology lists. Every registered device is on exactly
	// one, and every list holds devices in parent-before-child order.
	pending   *list.List // registered, transition not started
	prepared  *list.List // passed prepare
	suspended *list.List // passed suspend
	lateEarly *list.List // passed suspend-late
	noirq     *list.List // passed suspend-noirq
	devices   map[*Device]struct{}

	transition Event

	// errMu guards asyncErr, the first failure seen in the current
	// phase. Written by sync and async paths, polled by the drain loop
	// to stop issuing new suspend work.
	errMu    sync.Mutex
	asyncErr error

	// wg is the per-phase barrier for async workers; sem throttles them.
	wg  sync.WaitGroup
	sem *semaphore.Weighted

	asyncEnabled  bool
	watchdog      time.Duration
	wakeupPending func() bool
	denylist      *Denylist
	links         *linkGraph
	stats         suspendStats
	obs           Observer
	log           Logger

	// fatal is invoked when the watchdog decides a callback has hung.
	// Defaults to panic; replaceable in tests.
	fatal func(msg string)
}

// New builds an engine from cfg.
func New(cfg Config) *Engine {
	maxAsync := cfg.MaxAsync
	if maxAsync <= 0 {
		maxAsync = int64(4 * runtime.NumCPU())
	}
	log := cfg.Logger
	if log == nil {
		log = noopLogger{}
	}
	obs := cfg.Observer
	if obs == nil {
		obs = noopObserver{}
	}
	wakeup := cfg.WakeupPending
	if wakeup == nil {
		wakeup = func() bool { return false }
	}
	return &Engine{
		pending:       list.New(),
		prepared:      list.New(),
		suspended:     list.New(),
		lateEarly:     list.New(),
		noirq:         list.New(),
		devices:       make(map[*Device]struct{}),
		sem:           semaphore.NewWeighted(maxAsync),
		asyncEnabled:  cfg.AsyncEnabled,
		watchdog:      cfg.WatchdogTimeout,
		wakeupPending: wakeup,
		denylist:      NewDenylist(cfg.Denylist),
		links:         newLinkGraph(),
		obs:           obs,
		log:           log,
		fatal:         func(msg string) { panic(msg) },
	}
}

// Transition returns the event of the transition currently in progress,
// or EventOn between transitions.
func (e *Engine) Transition() Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transition
}

// Stats returns a snapshot of accumulated transition statistics.
func (e *Engine) Stats() StatsSnapshot { return e.stats.snapshot() }

// RecordTransitionResult tallies the outcome of a complete transition
// driven by the caller. Phase failures are counted internally; this adds
// the overall success or failure.
func (e *Engine) RecordTransitionResult(err error) { e.stats.recordResult(err) }

// AddLink records a functional dependency from supplier to consumer. The
// waiter honours the link in every phase while its status is not dormant.
// The consumer moves to the end of its list so suspend reaches it before
// the supplier even when it was registered first.
func (e *Engine) AddLink(supplier, consumer *Device, status LinkStatus) *Link {
	l := &Link{Supplier: supplier, Consumer: consumer}
	l.SetStatus(status)
	e.links.add(l)
	if err := e.MoveLast(consumer); err != nil {
		e.log.Debug("link consumer not moved in suspend order",
			"supplier", supplier.Name, "consumer", consumer.Name, "error", err)
	}
	return l
}

// isAsync reports whether dev's callbacks may run on a worker goroutine.
func (e *Engine) isAsync(dev *Device) bool {
	return e.asyncEnabled && dev.AsyncCapable
}

// dispatch hands fn to a worker goroutine registered with the phase
// barrier. The concurrency throttle is applied around callback execution,
// not here: a worker blocked on a dependency must not hold a pool slot, or
// a chain of waiting devices could starve the one that would release them.
func (e *Engine) dispatch(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// setAsyncError records the first failure of the current phase. Later
// errors are dropped; the first one is what the phase reports.
func (e *Engine) setAsyncError(err error) {
	if err == nil {
		return
	}
	e.errMu.Lock()
	defer e.errMu.Unlock()
	if e.asyncErr == nil {
		e.asyncErr = err
	}
}

// asyncError returns the phase's first recorded failure, if any.
func (e *Engine) asyncError() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.asyncErr
}

// resetAsyncError clears the failure record at a phase boundary.
func (e *Engine) resetAsyncError() {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	e.asyncErr = nil
}

// startPhase records the transition event, clears the failure record and
// announces the phase.
func (e *Engine) startPhase(ph phase, ev Event) time.Time {
	e.mu.Lock()
	e.transition = ev
	e.mu.Unlock()
	e.resetAsyncError()
	e.obs.PhaseStarted(ph.String(), ev)
	e.log.Info("power transition phase starting", "phase", ph.String(), "event", ev.String())
	return time.Now()
}

// endPhase waits for async workers, announces the result and returns the
// phase error.
func (e *Engine) endPhase(ph phase, ev Event, start time.Time, err error, devices int) error {
	elapsed := time.Since(start)
	e.obs.PhaseFinished(ph.String(), ev, err, elapsed, devices)
	if err != nil {
		e.log.Error("power transition phase failed",
			"phase", ph.String(), "event", ev.String(),
			"elapsed", elapsed.String(), "error", err)
	} else {
		e.log.Info("power transition phase complete",
			"phase", ph.String(), "event", ev.String(),
			"elapsed", elapsed.String(), "devices", devices)
	}
	return err
}

// watchdogArm starts a hang detector for a synchronous callback on dev.
// Returns nil when the watchdog is disabled.
func (e *Engine) watchdogArm(dev *Device) *time.Timer {
	if e.watchdog <= 0 {
		return nil
	}
	name := dev.Name
	timeout := e.watchdog
	return time.AfterFunc(timeout, func() {
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		e.log.Error("power management watchdog expired",
			"device", name, "timeout", timeout.String(),
			"stacks", string(buf[:n]))
		e.fatal(fmt.Sprintf("pm: callback for device %s did not return within %s", name, timeout))
	})
}

// watchdogDisarm cancels a hang detector started by watchdogArm.
func watchdogDisarm(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
