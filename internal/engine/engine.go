// Package engine describes the capability surface the player core consumes
// from an underlying media playback engine. The core never decodes, demuxes
// or buffers media itself; it drives sessions through this interface.
package engine

import (
	"errors"
	"image"
)

// Event names emitted by a Session.
const (
	EventLoadedMetadata = "loadedmetadata"
	EventPlay           = "play"
	EventPause          = "pause"
	EventSeeked         = "seeked"
	EventEnded          = "ended"
	EventError          = "error"
)

var (
	ErrNoFrame   = errors.New("no decoded frame available")
	ErrDisposed  = errors.New("session disposed")
	ErrNoSource  = errors.New("no source loaded")
	ErrBadSource = errors.New("invalid source")
)

// Source describes one media source: a URL plus a mime type hint.
type Source struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

func (s Source) IsZero() bool {
	return s.URL == ""
}

// Event is delivered to handlers registered with On or One.
type Event struct {
	Name string
	// Time is the session position when the event was emitted. For seeked
	// it is the position the seek settled on.
	Time float64
	// Duration is set for loadedmetadata.
	Duration float64
	// Err is set for error.
	Err error
}

type Handler func(Event)

// Options mirror the engine's creation options.
type Options struct {
	Controls      bool
	Autoplay      bool
	Muted         bool
	PlaybackRates []float64
}

// Session is one engine instance bound to at most one source.
//
// Implementations must be safe for concurrent use and must invoke handlers
// without holding internal locks, so handlers may call back into the session.
type Session interface {
	Load(src Source)
	CurrentSource() Source

	CurrentTime() float64
	SetCurrentTime(t float64)
	// Duration reports false until metadata has loaded.
	Duration() (float64, bool)

	Volume() float64
	SetVolume(v float64)
	Muted() bool
	SetMuted(m bool)
	PlaybackRate() float64
	SetPlaybackRate(r float64)

	Play()
	Pause()
	Paused() bool

	On(name string, h Handler) (off func())
	One(name string, h Handler) (off func())

	// Frame returns the currently decoded picture. It reports ErrDisposed,
	// ErrNoSource or ErrNoFrame when there is nothing to read.
	Frame() (image.Image, error)

	Dispose()
}

// Factory creates sessions.
type Factory interface {
	Create(opts Options) Session
}
