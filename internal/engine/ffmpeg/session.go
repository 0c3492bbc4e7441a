// Package ffmpeg implements engine.Session on top of the ffmpeg and ffprobe
// binaries. Metadata comes from ffprobe, seeks decode one frame with ffmpeg,
// and the playback position is projected from a clock.
package ffmpeg

import (
	"context"
	"image"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"scrubview/internal/clock"
	"scrubview/internal/engine"
)

type Engine struct {
	ffmpegPath  string
	ffprobePath string
	clock       clock.Clock
	logger      zerolog.Logger
}

func New(ffmpegPath, ffprobePath string, clk clock.Clock, logger zerolog.Logger) *Engine {
	// Try to find the binaries in PATH
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if path, err := exec.LookPath(ffmpegPath); err == nil {
		ffmpegPath = path
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if path, err := exec.LookPath(ffprobePath); err == nil {
		ffprobePath = path
	}

	return &Engine{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		clock:       clk,
		logger:      logger,
	}
}

// IsAvailable reports whether both ffmpeg and ffprobe can be executed.
func (e *Engine) IsAvailable() bool {
	if _, err := exec.LookPath(e.ffmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath(e.ffprobePath)
	return err == nil
}

func (e *Engine) Create(opts engine.Options) engine.Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		eng:     e,
		opts:    opts,
		emitter: engine.NewEmitter(),
		ctx:     ctx,
		cancel:  cancel,
		volume:  1,
		muted:   opts.Muted,
		rate:    1,
	}
}

type Session struct {
	eng     *Engine
	opts    engine.Options
	emitter *engine.Emitter

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	source    engine.Source
	loadGen   uint64
	meta      *Metadata
	base      float64
	startedAt time.Time
	playing   bool
	rate      float64
	volume    float64
	muted     bool
	frame     image.Image
	disposed  bool

	seekGen    uint64
	seekCancel context.CancelFunc

	endGen   uint64
	endTimer clock.Timer
}

var _ engine.Session = (*Session)(nil)

func (s *Session) Load(src engine.Source) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.stopPlaybackLocked()
	s.cancelSeekLocked()
	s.loadGen++
	gen := s.loadGen
	s.source = src
	s.meta = nil
	s.base = 0
	s.frame = nil
	s.mu.Unlock()

	go s.probe(gen, src)
}

func (s *Session) probe(gen uint64, src engine.Source) {
	if src.IsZero() {
		s.emitter.Emit(engine.Event{Name: engine.EventError, Err: engine.ErrBadSource})
		return
	}

	meta, err := Probe(s.ctx, s.eng.ffprobePath, src.URL)

	s.mu.Lock()
	if s.disposed || gen != s.loadGen {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.eng.logger.Debug().Err(err).Str("source", src.URL).Msg("probe failed")
		s.emitter.Emit(engine.Event{Name: engine.EventError, Err: err})
		return
	}
	s.meta = meta
	autoplay := s.opts.Autoplay
	s.mu.Unlock()

	s.eng.logger.Debug().
		Str("source", src.URL).
		Float64("duration", meta.Duration).
		Int("width", meta.Width).
		Int("height", meta.Height).
		Msg("metadata loaded")

	s.emitter.Emit(engine.Event{Name: engine.EventLoadedMetadata, Duration: meta.Duration})

	if autoplay {
		s.Play()
	}
}

func (s *Session) CurrentSource() engine.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

func (s *Session) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *Session) positionLocked() float64 {
	pos := s.base
	if s.playing {
		pos += s.eng.clock.Now().Sub(s.startedAt).Seconds() * s.rate
	}
	if s.meta != nil && pos > s.meta.Duration {
		pos = s.meta.Duration
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// SetCurrentTime moves the position and decodes the frame there. A newer
// call cancels the previous decode, so only the latest target settles.
func (s *Session) SetCurrentTime(t float64) {
	s.mu.Lock()
	if s.disposed || s.source.IsZero() {
		s.mu.Unlock()
		return
	}
	if t < 0 {
		t = 0
	}
	if s.meta != nil && t > s.meta.Duration {
		t = s.meta.Duration
	}
	s.base = t
	s.startedAt = s.eng.clock.Now()
	s.armEndLocked()

	s.cancelSeekLocked()
	s.seekGen++
	gen := s.seekGen
	ctx, cancel := context.WithCancel(s.ctx)
	s.seekCancel = cancel
	url := s.source.URL
	s.mu.Unlock()

	go s.settle(ctx, gen, url, t)
}

func (s *Session) settle(ctx context.Context, gen uint64, url string, t float64) {
	img, err := grabFrame(ctx, s.eng.ffmpegPath, url, t)

	s.mu.Lock()
	if s.disposed || gen != s.seekGen {
		s.mu.Unlock()
		return
	}
	s.seekCancel = nil
	if err != nil {
		s.frame = nil
	} else {
		s.frame = img
	}
	s.mu.Unlock()

	if err != nil {
		s.eng.logger.Debug().Err(err).Str("source", url).Float64("time", t).Msg("frame decode failed")
	}

	s.emitter.Emit(engine.Event{Name: engine.EventSeeked, Time: t})
}

func (s *Session) cancelSeekLocked() {
	if s.seekCancel != nil {
		s.seekCancel()
		s.seekCancel = nil
	}
}

func (s *Session) Duration() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		return 0, false
	}
	return s.meta.Duration, true
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
	if r <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = s.positionLocked()
	s.startedAt = s.eng.clock.Now()
	s.rate = r
	s.armEndLocked()
}

func (s *Session) Play() {
	s.mu.Lock()
	if s.disposed || s.source.IsZero() || s.playing {
		s.mu.Unlock()
		return
	}
	if s.meta != nil && s.base >= s.meta.Duration {
		s.base = 0
	}
	s.playing = true
	s.startedAt = s.eng.clock.Now()
	s.armEndLocked()
	t := s.base
	s.mu.Unlock()

	s.emitter.Emit(engine.Event{Name: engine.EventPlay, Time: t})
}

func (s *Session) Pause() {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	s.stopPlaybackLocked()
	t := s.base
	s.mu.Unlock()

	s.emitter.Emit(engine.Event{Name: engine.EventPause, Time: t})
}

func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.playing
}

func (s *Session) stopPlaybackLocked() {
	if s.playing {
		s.base = s.positionLocked()
		s.playing = false
	}
	s.endGen++
	if s.endTimer != nil {
		s.endTimer.Stop()
		s.endTimer = nil
	}
}

// armEndLocked schedules the end-of-media transition for the current
// position and rate.
func (s *Session) armEndLocked() {
	s.endGen++
	if s.endTimer != nil {
		s.endTimer.Stop()
		s.endTimer = nil
	}
	if !s.playing || s.meta == nil {
		return
	}

	remaining := (s.meta.Duration - s.base) / s.rate
	if remaining < 0 {
		remaining = 0
	}
	gen := s.endGen
	s.endTimer = s.eng.clock.AfterFunc(time.Duration(remaining*float64(time.Second)), func() {
		s.onEnded(gen)
	})
}

func (s *Session) onEnded(gen uint64) {
	s.mu.Lock()
	if s.disposed || gen != s.endGen || !s.playing {
		s.mu.Unlock()
		return
	}
	s.playing = false
	s.base = s.meta.Duration
	s.endTimer = nil
	t := s.base
	s.mu.Unlock()

	s.emitter.Emit(engine.Event{Name: engine.EventPause, Time: t})
	s.emitter.Emit(engine.Event{Name: engine.EventEnded, Time: t})
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
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.playing = false
	s.endGen++
	if s.endTimer != nil {
		s.endTimer.Stop()
		s.endTimer = nil
	}
	s.seekCancel = nil
	s.frame = nil
	s.mu.Unlock()

	s.cancel()
	s.emitter.Close()
}
