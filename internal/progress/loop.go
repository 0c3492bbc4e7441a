// Package progress keeps the seek bar in step with playback.
package progress

import (
	"sync"
	"time"

	"scrubview/internal/clock"
	"scrubview/internal/timeline"
)

// DefaultInterval approximates one display refresh at 60 Hz.
const DefaultInterval = 16 * time.Millisecond

type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// TimeSource is the read-only view of the main session the loop needs.
type TimeSource interface {
	CurrentTime() float64
	Duration() (float64, bool)
}

// Sink receives the seek bar position and its fill ratio.
type Sink interface {
	SetProgress(value, fill float64)
}

// Loop re-arms one tick per refresh interval while Running and schedules
// nothing while Idle.
type Loop struct {
	clock    clock.Clock
	interval time.Duration
	source   TimeSource
	sink     Sink

	mu    sync.Mutex
	state State
	gen   uint64
	timer clock.Timer
	ticks uint64
}

func NewLoop(clk clock.Clock, interval time.Duration, source TimeSource, sink Sink) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		clock:    clk,
		interval: interval,
		source:   source,
		sink:     sink,
	}
}

// Start moves Idle to Running, syncing the bar immediately. Starting a
// running loop does nothing.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.state == Running {
		l.mu.Unlock()
		return
	}
	l.state = Running
	l.gen++
	gen := l.gen
	l.mu.Unlock()

	l.tick(gen)
}

// Stop moves to Idle and cancels the pending tick.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = Idle
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Loop) tick(gen uint64) {
	l.mu.Lock()
	if l.state != Running || gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	l.mu.Unlock()

	current := l.source.CurrentTime()
	duration, known := l.source.Duration()
	l.sink.SetProgress(current, timeline.Fill(current, duration, known))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks++
	// Stop may have run while the sink was being written.
	if l.state != Running || gen != l.gen {
		return
	}
	l.timer = l.clock.AfterFunc(l.interval, func() { l.tick(gen) })
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Pending reports whether a tick is scheduled.
func (l *Loop) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timer != nil
}

// Ticks returns how many times the bar has been synced.
func (l *Loop) Ticks() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}
