// Package player is the playback controller: a facade over the visible main
// session and the hidden preview session, which it creates and disposes as a
// pair.
package player

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"scrubview/internal/engine"
)

// Rates are the playback rates the controller accepts.
var Rates = []float64{0.5, 1, 1.5, 2}

var (
	ErrUnsupportedRate = errors.New("unsupported playback rate")
	ErrNotLoaded       = errors.New("no source loaded")
	ErrClosed          = errors.New("controller closed")
)

type Kind string

const (
	MetadataLoaded   Kind = "metadataLoaded"
	PlayStateChanged Kind = "playStateChanged"
	SourceChanged    Kind = "sourceChanged"
)

// Notification reports engine-driven state changes.
type Notification struct {
	Kind      Kind
	SessionID string
	Source    engine.Source
	Duration  float64
	Playing   bool
	// Err is set when playback stopped because the engine failed.
	Err error
}

// UIState mirrors what the control surface renders.
type UIState struct {
	SessionID     string        `json:"session_id"`
	Source        engine.Source `json:"source"`
	Playing       bool          `json:"playing"`
	Volume        float64       `json:"volume"`
	Muted         bool          `json:"muted"`
	Rate          float64       `json:"rate"`
	HoveredTime   float64       `json:"hovered_time"`
	Duration      float64       `json:"duration"`
	DurationKnown bool          `json:"duration_known"`
	CurrentTime   float64       `json:"current_time"`
}

type Controller struct {
	factory engine.Factory
	logger  zerolog.Logger

	mu       sync.Mutex
	id       string
	main     engine.Session
	hidden   engine.Session
	offs     []func()
	source   engine.Source
	duration float64
	known    bool
	playing  bool
	volume   float64
	muted    bool
	rate     float64
	hovered  float64
	subs     map[uint64]func(Notification)
	nextSub  uint64
	closed   bool
}

func NewController(factory engine.Factory, logger zerolog.Logger) *Controller {
	return &Controller{
		factory: factory,
		logger:  logger,
		volume:  1,
		rate:    1,
		subs:    make(map[uint64]func(Notification)),
	}
}

// Load replaces the session pair with a fresh one bound to src. The hidden
// session receives the source once the main session reports metadata.
func (c *Controller) Load(src engine.Source) error {
	if src.IsZero() {
		return engine.ErrBadSource
	}

	main := c.factory.Create(engine.Options{
		Controls:      false,
		Autoplay:      false,
		PlaybackRates: Rates,
	})
	hidden := c.factory.Create(engine.Options{Muted: true})
	hidden.SetMuted(true)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		main.Dispose()
		hidden.Dispose()
		return ErrClosed
	}

	oldMain, oldHidden, oldOffs := c.main, c.hidden, c.offs

	id := uuid.NewString()
	c.id = id
	c.main = main
	c.hidden = hidden
	c.source = src
	c.duration = 0
	c.known = false
	c.playing = false

	main.SetVolume(c.volume)
	main.SetMuted(c.muted)
	main.SetPlaybackRate(c.rate)

	c.offs = []func(){
		main.On(engine.EventLoadedMetadata, func(ev engine.Event) { c.onLoadedMetadata(id, ev) }),
		main.On(engine.EventPlay, func(engine.Event) { c.onPlayState(id, true, nil) }),
		main.On(engine.EventPause, func(engine.Event) { c.onPlayState(id, false, nil) }),
		main.On(engine.EventEnded, func(engine.Event) { c.onPlayState(id, false, nil) }),
		main.On(engine.EventError, func(ev engine.Event) { c.onError(id, ev) }),
	}
	c.mu.Unlock()

	releasePair(oldMain, oldHidden, oldOffs)

	c.logger.Info().
		Str("session", id).
		Str("source", src.URL).
		Str("type", src.Type).
		Msg("loading source")

	c.notify(Notification{Kind: SourceChanged, SessionID: id, Source: src})
	main.Load(src)
	return nil
}

func releasePair(main, hidden engine.Session, offs []func()) {
	for _, off := range offs {
		off()
	}
	if main != nil {
		main.Dispose()
	}
	if hidden != nil {
		hidden.Dispose()
	}
}

func (c *Controller) onLoadedMetadata(id string, ev engine.Event) {
	c.mu.Lock()
	if id != c.id {
		c.mu.Unlock()
		return
	}
	main, hidden := c.main, c.hidden
	c.mu.Unlock()

	duration, ok := main.Duration()
	if !ok {
		duration = ev.Duration
	}

	c.mu.Lock()
	if id != c.id {
		c.mu.Unlock()
		return
	}
	c.duration = duration
	c.known = duration > 0
	c.mu.Unlock()

	hidden.Load(main.CurrentSource())

	c.logger.Debug().Str("session", id).Float64("duration", duration).Msg("metadata loaded")
	c.notify(Notification{Kind: MetadataLoaded, SessionID: id, Duration: duration})
}

func (c *Controller) onPlayState(id string, playing bool, err error) {
	c.mu.Lock()
	if id != c.id {
		c.mu.Unlock()
		return
	}
	c.playing = playing
	c.mu.Unlock()

	c.notify(Notification{Kind: PlayStateChanged, SessionID: id, Playing: playing, Err: err})
}

func (c *Controller) onError(id string, ev engine.Event) {
	c.logger.Warn().Err(ev.Err).Str("session", id).Msg("engine reported an error")
	c.onPlayState(id, false, ev.Err)
}

func (c *Controller) mainSession() (engine.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.main == nil {
		return nil, ErrNotLoaded
	}
	return c.main, nil
}

func (c *Controller) Play() error {
	main, err := c.mainSession()
	if err != nil {
		return err
	}
	main.Play()
	return nil
}

func (c *Controller) Pause() error {
	main, err := c.mainSession()
	if err != nil {
		return err
	}
	main.Pause()
	return nil
}

// TogglePlay pauses a playing session and plays a paused one.
func (c *Controller) TogglePlay() error {
	c.mu.Lock()
	playing := c.playing
	c.mu.Unlock()

	if playing {
		return c.Pause()
	}
	return c.Play()
}

// Seek moves the main session, clamped to [0, duration] once the duration
// is known.
func (c *Controller) Seek(t float64) error {
	c.mu.Lock()
	duration, known := c.duration, c.known
	c.mu.Unlock()

	main, err := c.mainSession()
	if err != nil {
		return err
	}

	if known {
		t = lo.Clamp(t, 0, duration)
	} else if t < 0 {
		t = 0
	}
	main.SetCurrentTime(t)
	return nil
}

// SetVolume sets the volume in [0, 1]. Raising the volume above zero while
// muted unmutes; a zero volume never mutes.
func (c *Controller) SetVolume(v float64) {
	v = lo.Clamp(v, 0, 1)

	c.mu.Lock()
	c.volume = v
	unmute := v > 0 && c.muted
	if unmute {
		c.muted = false
	}
	main := c.main
	c.mu.Unlock()

	if main != nil {
		main.SetVolume(v)
		if unmute {
			main.SetMuted(false)
		}
	}
}

func (c *Controller) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	main := c.main
	c.mu.Unlock()

	if main != nil {
		main.SetMuted(muted)
	}
}

// ToggleMute flips the muted state and returns the new value.
func (c *Controller) ToggleMute() bool {
	c.mu.Lock()
	muted := !c.muted
	c.mu.Unlock()

	c.SetMuted(muted)
	return muted
}

// SetRate accepts only values from Rates; anything else leaves the rate
// unchanged and returns ErrUnsupportedRate.
func (c *Controller) SetRate(r float64) error {
	if !lo.Contains(Rates, r) {
		c.logger.Debug().Float64("rate", r).Msg("rejecting unsupported playback rate")
		return ErrUnsupportedRate
	}

	c.mu.Lock()
	c.rate = r
	main := c.main
	c.mu.Unlock()

	if main != nil {
		main.SetPlaybackRate(r)
	}
	return nil
}

func (c *Controller) SetHovered(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hovered = t
}

// CurrentTime reads the main session's position.
func (c *Controller) CurrentTime() float64 {
	c.mu.Lock()
	main := c.main
	c.mu.Unlock()

	if main == nil {
		return 0
	}
	return main.CurrentTime()
}

// Duration reports false until the main session has loaded metadata.
func (c *Controller) Duration() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration, c.known
}

// Hidden returns the current hidden session. It is reserved for the frame
// extractor; nothing else may seek it.
func (c *Controller) Hidden() engine.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hidden
}

func (c *Controller) State() UIState {
	current := c.CurrentTime()

	c.mu.Lock()
	defer c.mu.Unlock()
	return UIState{
		SessionID:     c.id,
		Source:        c.source,
		Playing:       c.playing,
		Volume:        c.volume,
		Muted:         c.muted,
		Rate:          c.rate,
		HoveredTime:   c.hovered,
		Duration:      c.duration,
		DurationKnown: c.known,
		CurrentTime:   current,
	}
}

// Subscribe registers fn for notifications. Notifications are delivered on
// the goroutine that observed the engine event.
func (c *Controller) Subscribe(fn func(Notification)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Controller) notify(n Notification) {
	c.mu.Lock()
	subs := make([]func(Notification), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
}

// Close disposes both sessions. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	main, hidden, offs := c.main, c.hidden, c.offs
	c.main, c.hidden, c.offs = nil, nil, nil
	c.id = ""
	c.playing = false
	c.subs = make(map[uint64]func(Notification))
	c.mu.Unlock()

	releasePair(main, hidden, offs)
	c.logger.Debug().Msg("playback sessions released")
}
