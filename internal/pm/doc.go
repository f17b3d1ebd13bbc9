// Package pm implements the device power-management core for Gray Logic Power.
//
// The engine orchestrates system-wide suspend and resume transitions across
// every registered device. A transition walks the device topology through
// ordered phases, invoking per-device callbacks with correct ordering and
// synchronisation, running asynchronous-capable devices concurrently, and
// rolling the system back to a working state when any device fails mid-way.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────────┐
//	│                            Engine                                  │
//	│                                                                    │
//	│  ┌────────────┐  ┌─────────────┐  ┌───────────────┐               │
//	│  │  Topology  │  │  Callback   │  │  Dependency   │               │
//	│  │   Lists    │  │  Resolver   │  │    Waiter     │               │
//	│  │ (lists.go) │  │ (resolve.go)│  │   (wait.go)   │               │
//	│  └────────────┘  └─────────────┘  └───────────────┘               │
//	│         │               │                 │                        │
//	│  ┌──────┴───────────────┴─────────────────┴──────┐                │
//	│  │              Phase Executors                   │                │
//	│  │        (suspend.go / resume.go)                │                │
//	│  │  prepare → suspend → suspend-late → noirq      │                │
//	│  │  noirq → early → resume → complete             │                │
//	│  └────────────────────────────────────────────────┘                │
//	│         │                                                          │
//	│  ┌──────┴──────┐  ┌──────────┐  ┌──────────┐  ┌──────────┐        │
//	│  │  Watchdog   │  │  Stats   │  │ Denylist │  │ Observer │        │
//	│  └─────────────┘  └──────────┘  └──────────┘  └──────────┘        │
//	└────────────────────────────────────────────────────────────────────┘
//
// # Phases
//
// A suspend transition runs prepare, suspend, suspend-late and suspend-noirq
// in that order; a resume transition mirrors it with resume-noirq,
// resume-early, resume and complete. Each phase drains one topology list,
// moving every device to the next list once its callback succeeds. Devices
// flagged async-capable are handed to a throttled goroutine pool and run
// concurrently with the synchronous drain; a per-phase barrier waits for all
// of them before the phase reports its result.
//
// # Ordering
//
// Devices are appended to the pending list in discovery order, so a parent
// always precedes its children. Suspend phases drain from the tail (children
// first) and resume phases from the head (parents first); no sorting is ever
// performed. Device links (supplier/consumer edges independent of the tree)
// can cut across that order, so the dependency waiter blocks on the
// completion signal of any dependency that may be running concurrently.
//
// # Failure handling
//
// The first failure during a suspend-direction phase stops new suspend work
// for the rest of that phase and triggers the paired resume phase, restoring
// every already-suspended device before the error is reported. Resume
// phases never abort early: every device gets its attempt and failures are
// only recorded, because a stalled resume is worse than a partial one.
//
// # Usage
//
//	eng := pm.New(pm.Config{
//	    AsyncEnabled:    true,
//	    WatchdogTimeout: 120 * time.Second,
//	    Logger:          log,
//	})
//	eng.Register(dev)
//
//	if err := eng.SuspendStart(pm.EventSuspend); err != nil {
//	    return err // devices already restored
//	}
//	if err := eng.SuspendEnd(pm.EventSuspend); err != nil {
//	    eng.ResumeEnd(pm.EventResume)
//	    return err
//	}
//	// ... system sleeps ...
//	eng.ResumeStart(pm.EventResume)
//	eng.ResumeEnd(pm.EventResume)
package pm
