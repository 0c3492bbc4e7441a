package progress

import (
	"testing"
	"time"

	"scrubview/internal/clock/clocktest"
)

type fakeSource struct {
	current  float64
	duration float64
	known    bool
}

func (f *fakeSource) CurrentTime() float64      { return f.current }
func (f *fakeSource) Duration() (float64, bool) { return f.duration, f.known }

func TestLoopIdleSchedulesNothing(t *testing.T) {
	clk := clocktest.New(time.Unix(0, 0))
	bar := NewSeekBar()
	l := NewLoop(clk, DefaultInterval, &fakeSource{current: 5, duration: 10, known: true}, bar)

	clk.Advance(time.Second)

	if l.State() != Idle {
		t.Fatalf("state = %v, want idle", l.State())
	}
	if l.Pending() || clk.Pending() != 0 {
		t.Fatal("idle loop has scheduled work")
	}
	if l.Ticks() != 0 {
		t.Fatalf("ticks = %d, want 0", l.Ticks())
	}
}

func TestLoopRunningTracksPlayback(t *testing.T) {
	clk := clocktest.New(time.Unix(0, 0))
	src := &fakeSource{current: 30, duration: 120, known: true}
	bar := NewSeekBar()
	l := NewLoop(clk, DefaultInterval, src, bar)

	l.Start()
	if got := bar.State(); got.Value != 30 || got.Fill != 0.25 {
		t.Fatalf("bar after start = %+v, want value 30 fill 0.25", got)
	}
	if !l.Pending() {
		t.Fatal("running loop has no tick armed")
	}

	src.current = 31
	clk.Advance(DefaultInterval)
	if got := bar.State(); got.Value != 31 {
		t.Fatalf("bar value = %v within one refresh, want 31", got.Value)
	}

	clk.Advance(10 * DefaultInterval)
	if l.Ticks() != 12 {
		t.Fatalf("ticks = %d, want 12", l.Ticks())
	}
	if clk.Pending() != 1 {
		t.Fatalf("armed timers = %d, want exactly 1", clk.Pending())
	}
}

func TestLoopStopCancelsTicks(t *testing.T) {
	clk := clocktest.New(time.Unix(0, 0))
	src := &fakeSource{current: 1, duration: 10, known: true}
	bar := NewSeekBar()
	l := NewLoop(clk, DefaultInterval, src, bar)

	l.Start()
	clk.Advance(3 * DefaultInterval)
	l.Stop()
	ticks := l.Ticks()

	src.current = 9
	clk.Advance(time.Second)

	if l.State() != Idle {
		t.Fatalf("state = %v, want idle", l.State())
	}
	if l.Ticks() != ticks {
		t.Fatalf("ticked %d more times after Stop", l.Ticks()-ticks)
	}
	if l.Pending() || clk.Pending() != 0 {
		t.Fatal("tick still scheduled after Stop")
	}
	if bar.State().Value == 9 {
		t.Fatal("bar updated after Stop")
	}
}

func TestLoopRestartDoesNotDoubleSchedule(t *testing.T) {
	clk := clocktest.New(time.Unix(0, 0))
	l := NewLoop(clk, DefaultInterval, &fakeSource{}, NewSeekBar())

	l.Start()
	l.Start()
	l.Stop()
	l.Start()

	if clk.Pending() != 1 {
		t.Fatalf("armed timers = %d, want 1", clk.Pending())
	}
}

func TestLoopUnknownDurationFillsZero(t *testing.T) {
	clk := clocktest.New(time.Unix(0, 0))
	bar := NewSeekBar()
	l := NewLoop(clk, DefaultInterval, &fakeSource{current: 4}, bar)

	l.Start()
	defer l.Stop()

	if got := bar.State(); got.Value != 4 || got.Fill != 0 {
		t.Fatalf("bar = %+v, want value 4 fill 0", got)
	}
}

func TestLoopStopFromSinkDuringTick(t *testing.T) {
	clk := clocktest.New(time.Unix(0, 0))
	var l *Loop
	sink := sinkFunc(func(value, fill float64) {
		if value >= 2 {
			l.Stop()
		}
	})
	src := &fakeSource{current: 1, duration: 10, known: true}
	l = NewLoop(clk, DefaultInterval, src, sink)

	l.Start()
	src.current = 2
	clk.Advance(DefaultInterval)

	if l.Pending() || clk.Pending() != 0 {
		t.Fatal("tick re-armed after Stop inside the sink")
	}
}

type sinkFunc func(value, fill float64)

func (f sinkFunc) SetProgress(value, fill float64) { f(value, fill) }
