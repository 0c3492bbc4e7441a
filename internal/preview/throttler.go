package preview

import (
	"sync"
	"time"

	"scrubview/internal/clock"
)

// DefaultWindow is the quiescence window after which a burst of hover
// events is considered finished.
const DefaultWindow = 100 * time.Millisecond

// Throttler is a trailing-edge debounce in front of a preview target: a
// burst of requests collapses into one call with the last timestamp, made
// once no request has arrived for the window.
type Throttler struct {
	clock clock.Clock

	mu     sync.Mutex
	window time.Duration
	target func(float64)
	timer  clock.Timer
	gen    uint64
	latest float64
	closed bool
}

func NewThrottler(clk clock.Clock, window time.Duration, target func(float64)) *Throttler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Throttler{
		clock:  clk,
		window: window,
		target: target,
	}
}

// Request records timestamp as the latest request and restarts the window.
func (t *Throttler) Request(timestamp float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.latest = timestamp
	t.armLocked()
}

func (t *Throttler) armLocked() {
	t.stopLocked()
	t.gen++
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.window, func() { t.fire(gen) })
}

func (t *Throttler) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Throttler) fire(gen uint64) {
	t.mu.Lock()
	// A timer that could not be stopped in time still fires; its generation
	// no longer matches.
	if t.closed || gen != t.gen || t.timer == nil {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	timestamp := t.latest
	target := t.target
	t.mu.Unlock()

	if target != nil {
		target(timestamp)
	}
}

// Cancel drops any pending request.
func (t *Throttler) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.stopLocked()
}

// Close cancels pending work; later requests are ignored.
func (t *Throttler) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.gen++
	t.stopLocked()
}

// Pending reports whether a request is waiting for its window to elapse.
func (t *Throttler) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// SetWindow changes the quiescence window. A pending request restarts its
// window with the new duration.
func (t *Throttler) SetWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = d
	if t.timer != nil && !t.closed {
		t.armLocked()
	}
}

func (t *Throttler) Window() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window
}

// SetTarget replaces the function pending and future requests are
// delivered to.
func (t *Throttler) SetTarget(target func(float64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.target = target
}
