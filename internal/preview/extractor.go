// Package preview turns hovered seek-bar timestamps into thumbnail images
// captured from a hidden decode session.
package preview

import (
	"image"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"scrubview/internal/cache"
	"scrubview/internal/engine"
)

// settleTolerance is how far a seeked position may be from the requested
// timestamp and still count as that request's settle.
const settleTolerance = 1e-3

type ExtractorOptions struct {
	Width int
	// CacheCapacity and CacheMaxSize bound the in-session raster cache.
	// A zero capacity disables it; a zero max size leaves only the entry
	// bound.
	CacheCapacity int
	CacheMaxSize  int64
	// CacheBucket is the timestamp granularity in seconds of cache keys.
	CacheBucket float64
}

// Extractor drives a hidden session to requested timestamps and publishes
// one downscaled frame per settled request. Only the latest issued request
// may publish: results of superseded requests are dropped whatever order
// they complete in.
type Extractor struct {
	session engine.Session
	width   int
	bucket  float64
	cache   *cache.LRUCache[int64, cachedFrame]
	logger  zerolog.Logger

	mu        sync.Mutex
	issued    uint64
	clears    uint64
	pending   *request
	current   *Image
	subs      map[uint64]func(Image)
	nextSub   uint64
	offSeeked func()
	closed    bool
}

// cachedFrame keeps the decode timestamp with its raster, since every
// timestamp in a bucket shares the entry.
type cachedFrame struct {
	timestamp float64
	raster    *image.RGBA
}

type request struct {
	seq       uint64
	timestamp float64
}

// NewExtractor takes exclusive ownership of seeking session.
func NewExtractor(session engine.Session, opts ExtractorOptions, logger zerolog.Logger) *Extractor {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}

	e := &Extractor{
		session: session,
		width:   opts.Width,
		bucket:  opts.CacheBucket,
		logger:  logger,
		subs:    make(map[uint64]func(Image)),
	}

	if opts.CacheCapacity > 0 {
		maxSize := opts.CacheMaxSize
		if maxSize <= 0 {
			maxSize = math.MaxInt64
		}
		c, err := cache.NewLRUCache[int64, cachedFrame](opts.CacheCapacity, maxSize, func(f cachedFrame) int64 {
			return int64(len(f.raster.Pix))
		})
		if err != nil {
			logger.Warn().Err(err).Msg("preview cache disabled")
		} else {
			e.cache = c
		}
	}

	e.offSeeked = session.On(engine.EventSeeked, e.onSeeked)
	return e
}

// Request asks for a preview of timestamp. It never blocks on the engine;
// the image is published asynchronously once the hidden session settles.
func (e *Extractor) Request(timestamp float64) {
	e.mu.Lock()
	e.requestLocked(timestamp)
}

// RequestSince is Request, skipped when Clear has run since epoch was read
// from Epoch. It reports whether the request was issued.
func (e *Extractor) RequestSince(epoch uint64, timestamp float64) bool {
	e.mu.Lock()
	if epoch != e.clears {
		e.mu.Unlock()
		e.logger.Debug().Float64("timestamp", timestamp).Msg("preview cleared before request")
		return false
	}
	return e.requestLocked(timestamp)
}

// Epoch counts calls to Clear.
func (e *Extractor) Epoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clears
}

// requestLocked is entered with e.mu held and releases it.
func (e *Extractor) requestLocked(timestamp float64) bool {
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.issued++
	seq := e.issued

	if f, ok := e.cachedLocked(timestamp); ok {
		e.pending = nil
		e.mu.Unlock()
		e.publish(Image{Timestamp: f.timestamp, Requested: timestamp, Seq: seq, Raster: f.raster})
		return true
	}

	e.pending = &request{seq: seq, timestamp: timestamp}
	e.mu.Unlock()

	e.session.SetCurrentTime(timestamp)
	return true
}

func (e *Extractor) onSeeked(ev engine.Event) {
	e.mu.Lock()
	req := e.pending
	if e.closed || req == nil {
		e.mu.Unlock()
		return
	}
	if math.Abs(ev.Time-req.timestamp) > settleTolerance {
		// Settle of a target we have since moved away from
		e.mu.Unlock()
		e.logger.Debug().
			Float64("settled", ev.Time).
			Float64("pending", req.timestamp).
			Msg("ignoring stale seek settle")
		return
	}
	e.pending = nil
	e.mu.Unlock()

	frame, err := e.session.Frame()
	if err != nil {
		e.logger.Debug().Err(err).Float64("timestamp", req.timestamp).Msg("no frame for preview")
		return
	}

	raster := Downscale(frame, e.width)
	if raster == nil {
		e.logger.Debug().Float64("timestamp", req.timestamp).Msg("empty frame for preview")
		return
	}

	if e.cache != nil {
		e.cache.Set(e.cacheKey(req.timestamp), cachedFrame{timestamp: req.timestamp, raster: raster})
	}

	e.publish(Image{Timestamp: req.timestamp, Requested: req.timestamp, Seq: req.seq, Raster: raster})
}

func (e *Extractor) publish(img Image) {
	e.mu.Lock()
	if e.closed || img.Seq != e.issued {
		latest := e.issued
		e.mu.Unlock()
		e.logger.Debug().
			Uint64("seq", img.Seq).
			Uint64("latest", latest).
			Msg("dropping superseded preview")
		return
	}
	e.current = &img
	subs := make([]func(Image), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(img)
	}
}

func (e *Extractor) cachedLocked(timestamp float64) (cachedFrame, bool) {
	if e.cache == nil {
		return cachedFrame{}, false
	}
	return e.cache.Get(e.cacheKey(timestamp))
}

func (e *Extractor) cacheKey(timestamp float64) int64 {
	if e.bucket <= 0 {
		return int64(math.Round(timestamp * 1000))
	}
	return int64(math.Round(timestamp / e.bucket))
}

// Current returns the most recently published preview.
func (e *Extractor) Current() (Image, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return Image{}, false
	}
	return *e.current, true
}

// Latest returns the sequence number of the latest issued request.
func (e *Extractor) Latest() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.issued
}

// Clear drops the current preview and invalidates in-flight requests.
func (e *Extractor) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.issued++
	e.clears++
	e.pending = nil
	e.current = nil
}

// Reset clears and empties the cache; used when the source changes.
func (e *Extractor) Reset() {
	e.Clear()
	if e.cache != nil {
		e.cache.Clear()
	}
}

// Subscribe registers fn for every published preview.
func (e *Extractor) Subscribe(fn func(Image)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSub++
	id := e.nextSub
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// Close detaches from the session. The session itself is owned by the
// playback controller and is not disposed here.
func (e *Extractor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.pending = nil
	e.current = nil
	e.subs = make(map[uint64]func(Image))
	off := e.offSeeked
	e.mu.Unlock()

	off()
	if e.cache != nil {
		e.cache.Clear()
	}
}
