// Package enginetest provides a scripted engine.Session for tests. Nothing
// happens on its own: metadata, seek settles and errors are emitted only
// when the test asks for them.
package enginetest

import (
	"image"
	"sync"

	"scrubview/internal/engine"
)

type Session struct {
	Options engine.Options

	emitter *engine.Emitter

	mu        sync.Mutex
	source    engine.Source
	loads     []engine.Source
	current   float64
	duration  float64
	known     bool
	volume    float64
	muted     bool
	rate      float64
	paused    bool
	frame     image.Image
	seeks     []float64
	disposed  bool
	frameFunc func(t float64) image.Image
}

var _ engine.Session = (*Session)(nil)

func NewSession(opts engine.Options) *Session {
	return &Session{
		Options: opts,
		emitter: engine.NewEmitter(),
		volume:  1,
		muted:   opts.Muted,
		rate:    1,
		paused:  true,
	}
}

func (s *Session) Load(src engine.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
	s.loads = append(s.loads, src)
	s.known = false
	s.duration = 0
	s.current = 0
}

func (s *Session) CurrentSource() engine.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

func (s *Session) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetCurrentTime records the target; the seek settles only when the test
// calls Settle or SettleAt.
func (s *Session) SetCurrentTime(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeks = append(s.seeks, t)
}

func (s *Session) Duration() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration, s.known
}

func (s *Session) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Session) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *Session) SetMuted(m bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = m
}

func (s *Session) PlaybackRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

func (s *Session) SetPlaybackRate(r float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = r
}

func (s *Session) Play() {
	s.mu.Lock()
	s.paused = false
	t := s.current
	s.mu.Unlock()
	s.emitter.Emit(engine.Event{Name: engine.EventPlay, Time: t})
}

func (s *Session) Pause() {
	s.mu.Lock()
	s.paused = true
	t := s.current
	s.mu.Unlock()
	s.emitter.Emit(engine.Event{Name: engine.EventPause, Time: t})
}

func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Session) On(name string, h engine.Handler) func() {
	return s.emitter.On(name, h)
}

func (s *Session) One(name string, h engine.Handler) func() {
	return s.emitter.One(name, h)
}

func (s *Session) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.disposed:
		return nil, engine.ErrDisposed
	case s.source.IsZero():
		return nil, engine.ErrNoSource
	}
	if s.frame == nil {
		return nil, engine.ErrNoFrame
	}
	return s.frame, nil
}

func (s *Session) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
	s.emitter.Close()
}

// LoadMetadata marks duration known and emits loadedmetadata.
func (s *Session) LoadMetadata(duration float64) {
	s.mu.Lock()
	s.duration = duration
	s.known = true
	s.mu.Unlock()
	s.emitter.Emit(engine.Event{Name: engine.EventLoadedMetadata, Duration: duration})
}

// SetFrame sets the picture returned by Frame. A nil image makes Frame
// report ErrNoFrame.
func (s *Session) SetFrame(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = img
}

// SetFrameFunc makes every settle replace the picture with fn(position).
func (s *Session) SetFrameFunc(fn func(t float64) image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameFunc = fn
}

// SetTime moves the playback position without a seek, as playback would.
func (s *Session) SetTime(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = t
}

// Settle settles the most recent seek target.
func (s *Session) Settle() {
	s.mu.Lock()
	if len(s.seeks) == 0 {
		s.mu.Unlock()
		return
	}
	t := s.seeks[len(s.seeks)-1]
	s.mu.Unlock()
	s.SettleAt(t)
}

// SettleAt moves the position to t and emits seeked, regardless of which
// targets were requested. It models engines delivering late settles.
func (s *Session) SettleAt(t float64) {
	s.mu.Lock()
	s.current = t
	if s.frameFunc != nil {
		s.frame = s.frameFunc(t)
	}
	s.mu.Unlock()
	s.emitter.Emit(engine.Event{Name: engine.EventSeeked, Time: t})
}

// Fail emits an error event.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	t := s.current
	s.paused = true
	s.mu.Unlock()
	s.emitter.Emit(engine.Event{Name: engine.EventError, Time: t, Err: err})
}

// End emits ended at the current duration.
func (s *Session) End() {
	s.mu.Lock()
	s.paused = true
	s.current = s.duration
	t := s.current
	s.mu.Unlock()
	s.emitter.Emit(engine.Event{Name: engine.EventEnded, Time: t})
}

func (s *Session) Seeks() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.seeks...)
}

func (s *Session) Loads() []engine.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Source(nil), s.loads...)
}

func (s *Session) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Handlers returns the number of handlers registered for name.
func (s *Session) Handlers(name string) int {
	return s.emitter.Len(name)
}

// Factory records every session it creates.
type Factory struct {
	mu       sync.Mutex
	sessions []*Session
}

var _ engine.Factory = (*Factory)(nil)

func (f *Factory) Create(opts engine.Options) engine.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := NewSession(opts)
	f.sessions = append(f.sessions, s)
	return s
}

func (f *Factory) Sessions() []*Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Session(nil), f.sessions...)
}

// Last returns the i-th most recently created session, counting from 1.
func (f *Factory) Last(i int) *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i <= 0 || i > len(f.sessions) {
		return nil
	}
	return f.sessions[len(f.sessions)-i]
}
