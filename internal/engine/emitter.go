package engine

import "sync"

// Emitter is a handler registry shared by Session implementations.
type Emitter struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[string][]registration
	closed   bool
}

type registration struct {
	id   uint64
	once bool
	fn   Handler
}

func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[string][]registration)}
}

// On registers h for every emission of name.
func (e *Emitter) On(name string, h Handler) func() {
	return e.add(name, h, false)
}

// One registers h for the next emission of name only.
func (e *Emitter) One(name string, h Handler) func() {
	return e.add(name, h, true)
}

func (e *Emitter) add(name string, h Handler, once bool) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return func() {}
	}

	e.nextID++
	id := e.nextID
	e.handlers[name] = append(e.handlers[name], registration{id: id, once: once, fn: h})

	return func() { e.remove(name, id) }
}

func (e *Emitter) remove(name string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	regs := e.handlers[name]
	for i, r := range regs {
		if r.id == id {
			e.handlers[name] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Emit delivers ev to the handlers registered for ev.Name. Single-fire
// handlers are removed before any handler runs.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	regs := e.handlers[ev.Name]
	fire := make([]Handler, 0, len(regs))
	keep := regs[:0:0]
	for _, r := range regs {
		fire = append(fire, r.fn)
		if !r.once {
			keep = append(keep, r)
		}
	}
	e.handlers[ev.Name] = keep
	e.mu.Unlock()

	for _, fn := range fire {
		fn(ev)
	}
}

// Len returns the number of handlers registered for name.
func (e *Emitter) Len(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[name])
}

// Close drops all handlers; later registrations and emissions are no-ops.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.handlers = make(map[string][]registration)
}
