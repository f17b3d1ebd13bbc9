package pm

import "sync"

// waitResult is the outcome observed by a goroutine waiting on a device's
// phase completion.
type waitResult int

const (
	// resultSucceeded means the device finished its phase work. The phase
	// may still have recorded a callback error; succeeded only promises
	// the dependency ordering is satisfied.
	resultSucceeded waitResult = iota

	// resultAbandoned means the device was removed mid-transition and
	// will never finish the phase. Waiters must not treat the dependency
	// as satisfied.
	resultAbandoned
)

// completion is a resettable one-shot broadcast. A device carries one per
// transition phase: reset when the phase picks the device up, fired exactly
// once when the device's work for that phase ends. Between transitions it
// stays in the fired state so late waiters never block.
//
// Unlike a bare channel close, firing carries a result so waiters can tell
// a finished device from an abandoned one.
type completion struct {
	mu     sync.Mutex
	ch     chan struct{}
	fired  bool
	result waitResult
}

// newCompletion returns a completion in the fired state.
func newCompletion() *completion {
	c := &completion{ch: make(chan struct{})}
	c.fired = true
	close(c.ch)
	return c
}

// reset re-arms the completion for a new phase.
func (c *completion) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fired {
		c.ch = make(chan struct{})
		c.fired = false
	}
}

// fire publishes the result and releases all current and future waiters.
// The first call wins; later calls are no-ops.
func (c *completion) fire(r waitResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fired {
		return
	}
	c.result = r
	c.fired = true
	close(c.ch)
}

// wait blocks until the completion fires and returns the published result.
func (c *completion) wait() waitResult {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	<-ch
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}
