// Package surface hosts the player controls: it composes the playback
// controller, the preview pipeline and the progress loop, and is what the
// HTTP layer and the CLI drive.
package surface

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"scrubview/internal/clock"
	"scrubview/internal/engine"
	"scrubview/internal/player"
	"scrubview/internal/preview"
	"scrubview/internal/progress"
	"scrubview/internal/storage"
	"scrubview/internal/timeline"
)

var ErrClosed = errors.New("surface closed")

// PositionStore persists resume positions. *storage.SQLiteStorage satisfies
// it.
type PositionStore interface {
	SavePlaybackState(state *storage.PlaybackState) error
	GetPlaybackState(sourceURL string) (*storage.PlaybackState, error)
}

type Options struct {
	Preview         preview.ExtractorOptions
	Debounce        time.Duration
	RefreshInterval time.Duration
}

// HoverResult is what the seek bar shows for a pointer position.
type HoverResult struct {
	Time    float64 `json:"time"`
	Label   string  `json:"label"`
	Left    float64 `json:"left"`
	Enabled bool    `json:"enabled"`
}

// State is a snapshot of everything the control surface renders.
type State struct {
	Player  player.UIState        `json:"player"`
	SeekBar progress.SeekBarState `json:"seekbar"`
	Loop    string                `json:"loop"`
	Preview *PreviewInfo          `json:"preview,omitempty"`
}

type PreviewInfo struct {
	Timestamp float64 `json:"timestamp"`
	Requested float64 `json:"requested"`
	Seq       uint64  `json:"seq"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

type EventKind string

const (
	EventState   EventKind = "state"
	EventPreview EventKind = "preview"
)

// Event is pushed to subscribers whenever the rendered state changes for a
// reason other than the progress tick.
type Event struct {
	Kind  EventKind
	State State
	// Err carries the engine failure that stopped playback, if any.
	Err error
}

type Surface struct {
	logger zerolog.Logger
	opts   Options
	store  PositionStore

	ctrl      *player.Controller
	bar       *progress.SeekBar
	loop      *progress.Loop
	throttler *preview.Throttler

	offCtrl func()

	mu         sync.Mutex
	extractor  *preview.Extractor
	offPreview func()
	// hoverEpoch is the extractor's clear epoch at the last hover.
	hoverEpoch uint64
	subs       map[uint64]func(Event)
	nextSub    uint64
	closed     bool
}

// New builds a surface over sessions from factory. store may be nil, which
// disables resume positions.
func New(factory engine.Factory, clk clock.Clock, opts Options, store PositionStore, logger zerolog.Logger) *Surface {
	if opts.Preview.Width <= 0 {
		opts.Preview.Width = preview.DefaultWidth
	}

	s := &Surface{
		logger: logger,
		opts:   opts,
		store:  store,
		ctrl:   player.NewController(factory, logger.With().Str("component", "player").Logger()),
		bar:    progress.NewSeekBar(),
		subs:   make(map[uint64]func(Event)),
	}
	s.loop = progress.NewLoop(clk, opts.RefreshInterval, s.ctrl, s.bar)
	s.throttler = preview.NewThrottler(clk, opts.Debounce, s.requestPreview)
	s.offCtrl = s.ctrl.Subscribe(s.onNotification)
	return s
}

// Controller exposes the playback operations.
func (s *Surface) Controller() *player.Controller {
	return s.ctrl
}

func (s *Surface) SeekBar() *progress.SeekBar {
	return s.bar
}

// Load saves the position of the current source, if any, and starts
// loading src into a fresh session pair.
func (s *Surface) Load(src engine.Source) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.savePosition()
	return s.ctrl.Load(src)
}

// Hover maps a pointer offset on a seek bar of the given width to a time and
// schedules a preview for it. While the duration is unknown nothing is
// scheduled and the result is disabled.
func (s *Surface) Hover(offset, width float64) HoverResult {
	duration, known := s.ctrl.Duration()
	t, ok := timeline.Map(offset, width, duration, known)
	if !ok {
		return HoverResult{}
	}

	if ex := s.currentExtractor(); ex != nil {
		epoch := ex.Epoch()
		s.mu.Lock()
		s.hoverEpoch = epoch
		s.mu.Unlock()
	}

	s.ctrl.SetHovered(t)
	s.bar.SetHovered(t)
	s.throttler.Request(t)

	return HoverResult{
		Time:    t,
		Label:   timeline.FormatTime(t),
		Left:    timeline.PreviewLeft(t, width, duration, s.opts.Preview.Width),
		Enabled: true,
	}
}

// Leave is called when the pointer leaves the seek bar.
func (s *Surface) Leave() {
	s.throttler.Cancel()
	if ex := s.currentExtractor(); ex != nil {
		ex.Clear()
	}
	s.ctrl.SetHovered(0)
	s.bar.SetHovered(0)
}

// Preview returns the current preview image.
func (s *Surface) Preview() (preview.Image, bool) {
	ex := s.currentExtractor()
	if ex == nil {
		return preview.Image{}, false
	}
	return ex.Current()
}

// Seek moves playback and syncs the bar without waiting for the next tick.
func (s *Surface) Seek(t float64) error {
	if err := s.ctrl.Seek(t); err != nil {
		return err
	}
	s.syncBar()
	return nil
}

func (s *Surface) State() State {
	st := State{
		Player:  s.ctrl.State(),
		SeekBar: s.bar.State(),
		Loop:    s.loop.State().String(),
	}
	if img, ok := s.Preview(); ok {
		st.Preview = &PreviewInfo{
			Timestamp: img.Timestamp,
			Requested: img.Requested,
			Seq:       img.Seq,
			Width:     img.Width(),
			Height:    img.Height(),
		}
	}
	return st
}

// Subscribe registers fn for surface events. Events are delivered on the
// goroutine that caused them and fn must not block.
func (s *Surface) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Close detaches from the controller, cancels the debounce timer, saves the
// position, stops the loop and releases both sessions. Nothing stays
// scheduled afterwards. It is safe to call more than once.
func (s *Surface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ex, off := s.extractor, s.offPreview
	s.extractor, s.offPreview = nil, nil
	s.subs = make(map[uint64]func(Event))
	s.mu.Unlock()

	// Engine events arriving from here on must not restart the loop.
	s.offCtrl()
	s.throttler.Close()
	s.savePosition()
	s.loop.Stop()

	if off != nil {
		off()
	}
	if ex != nil {
		ex.Close()
	}
	s.ctrl.Close()
	s.logger.Debug().Msg("surface closed")
}

// requestPreview is the throttler target. It resolves the extractor at fire
// time so a source change between hover and fire is honoured, and drops the
// request if Leave cleared the preview after the timer fired.
func (s *Surface) requestPreview(t float64) {
	s.mu.Lock()
	ex, epoch := s.extractor, s.hoverEpoch
	s.mu.Unlock()
	if ex != nil {
		ex.RequestSince(epoch, t)
	}
}

func (s *Surface) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Surface) currentExtractor() *preview.Extractor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extractor
}

func (s *Surface) onNotification(n player.Notification) {
	if s.isClosed() {
		return
	}

	switch n.Kind {
	case player.SourceChanged:
		s.throttler.Cancel()
		s.loop.Stop()
		s.bar.Reset()
		s.rebindExtractor()

	case player.MetadataLoaded:
		s.bar.SetMax(n.Duration)
		s.resume(n.Duration)
		s.syncBar()

	case player.PlayStateChanged:
		if n.Playing {
			s.loop.Start()
		} else {
			s.loop.Stop()
			s.syncBar()
			s.savePosition()
		}
	}

	s.broadcast(Event{Kind: EventState, State: s.State(), Err: n.Err})
}

// rebindExtractor points a fresh extractor at the controller's new hidden
// session. The old extractor's cache belongs to the old source and goes
// with it.
func (s *Surface) rebindExtractor() {
	hidden := s.ctrl.Hidden()

	var ex *preview.Extractor
	var off func()
	if hidden != nil {
		ex = preview.NewExtractor(hidden, s.opts.Preview, s.logger.With().Str("component", "preview").Logger())
		off = ex.Subscribe(s.onPreview)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if ex != nil {
			off()
			ex.Close()
		}
		return
	}
	oldEx, oldOff := s.extractor, s.offPreview
	s.extractor, s.offPreview = ex, off
	s.mu.Unlock()

	if oldOff != nil {
		oldOff()
	}
	if oldEx != nil {
		oldEx.Close()
	}
}

func (s *Surface) onPreview(img preview.Image) {
	s.logger.Debug().
		Float64("timestamp", img.Timestamp).
		Uint64("seq", img.Seq).
		Msg("preview published")
	s.broadcast(Event{Kind: EventPreview, State: s.State()})
}

func (s *Surface) broadcast(ev Event) {
	s.mu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (s *Surface) syncBar() {
	current := s.ctrl.CurrentTime()
	duration, known := s.ctrl.Duration()
	s.bar.SetProgress(current, timeline.Fill(current, duration, known))
}

// resume seeks to the saved position when it lies between the start and
// end thresholds of the new duration.
func (s *Surface) resume(duration float64) {
	if s.store == nil || duration <= 0 {
		return
	}
	src := s.ctrl.State().Source
	if src.IsZero() {
		return
	}

	saved, err := s.store.GetPlaybackState(src.URL)
	if err != nil {
		s.logger.Warn().Err(err).Str("source", src.URL).Msg("failed to read playback state")
		return
	}
	if saved == nil {
		return
	}

	state := storage.PlaybackState{
		Position: saved.Position,
		Duration: duration,
		Progress: timeline.Fill(saved.Position, duration, true),
	}
	if !state.InProgress() {
		return
	}

	if err := s.ctrl.Seek(saved.Position); err != nil {
		s.logger.Warn().Err(err).Str("source", src.URL).Msg("failed to resume playback")
		return
	}
	s.logger.Info().
		Str("source", src.URL).
		Float64("position", saved.Position).
		Msg("resuming playback")
}

func (s *Surface) savePosition() {
	if s.store == nil {
		return
	}
	st := s.ctrl.State()
	if st.Source.IsZero() || !st.DurationKnown {
		return
	}

	state := &storage.PlaybackState{
		SourceURL:  st.Source.URL,
		SourceType: st.Source.Type,
		Position:   st.CurrentTime,
		Duration:   st.Duration,
		Progress:   timeline.Fill(st.CurrentTime, st.Duration, true),
	}
	if err := s.store.SavePlaybackState(state); err != nil {
		s.logger.Warn().Err(err).Str("source", st.Source.URL).Msg("failed to save playback state")
	}
}
