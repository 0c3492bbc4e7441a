package engine

import "testing"

func TestEmitterOnAndOne(t *testing.T) {
	e := NewEmitter()

	var on, one int
	e.On(EventSeeked, func(Event) { on++ })
	e.One(EventSeeked, func(Event) { one++ })

	e.Emit(Event{Name: EventSeeked})
	e.Emit(Event{Name: EventSeeked})

	if on != 2 {
		t.Errorf("On handler ran %d times, want 2", on)
	}
	if one != 1 {
		t.Errorf("One handler ran %d times, want 1", one)
	}
	if n := e.Len(EventSeeked); n != 1 {
		t.Errorf("registered = %d, want 1", n)
	}
}

func TestEmitterOff(t *testing.T) {
	e := NewEmitter()

	called := false
	off := e.On(EventPlay, func(Event) { called = true })
	off()
	off()

	e.Emit(Event{Name: EventPlay})
	if called {
		t.Fatal("handler ran after off")
	}
}

func TestEmitterHandlerMayReenter(t *testing.T) {
	e := NewEmitter()

	var second bool
	e.One(EventSeeked, func(Event) {
		e.One(EventSeeked, func(Event) { second = true })
	})

	e.Emit(Event{Name: EventSeeked})
	if second {
		t.Fatal("handler registered during emit ran in the same emit")
	}
	e.Emit(Event{Name: EventSeeked})
	if !second {
		t.Fatal("handler registered during emit did not run on next emit")
	}
}

func TestEmitterClose(t *testing.T) {
	e := NewEmitter()

	called := false
	e.On(EventPause, func(Event) { called = true })
	e.Close()
	e.Emit(Event{Name: EventPause})
	e.On(EventPause, func(Event) { called = true })
	e.Emit(Event{Name: EventPause})

	if called {
		t.Fatal("handler ran after Close")
	}
}
