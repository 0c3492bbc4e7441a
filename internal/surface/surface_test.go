package surface

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"scrubview/internal/clock/clocktest"
	"scrubview/internal/engine"
	"scrubview/internal/engine/enginetest"
	"scrubview/internal/preview"
	"scrubview/internal/progress"
	"scrubview/internal/storage"
)

const debounce = 100 * time.Millisecond

var movie = engine.Source{URL: "/media/movie.mp4", Type: "video/mp4"}

type memoryStore struct {
	mu     sync.Mutex
	states map[string]storage.PlaybackState
	saves  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: make(map[string]storage.PlaybackState)}
}

func (m *memoryStore) SavePlaybackState(state *storage.PlaybackState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.SourceURL] = *state
	m.saves++
	return nil
}

func (m *memoryStore) GetPlaybackState(sourceURL string) (*storage.PlaybackState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[sourceURL]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

type fixture struct {
	s       *Surface
	factory *enginetest.Factory
	clock   *clocktest.Manual
}

func newFixture(t *testing.T, store PositionStore) *fixture {
	t.Helper()
	f := &enginetest.Factory{}
	clk := clocktest.New(time.Unix(0, 0))
	opts := Options{
		Preview:         preview.ExtractorOptions{Width: preview.DefaultWidth},
		Debounce:        debounce,
		RefreshInterval: progress.DefaultInterval,
	}
	s := New(f, clk, opts, store, zerolog.Nop())
	t.Cleanup(s.Close)
	return &fixture{s: s, factory: f, clock: clk}
}

func (fx *fixture) main() *enginetest.Session   { return fx.factory.Last(2) }
func (fx *fixture) hidden() *enginetest.Session { return fx.factory.Last(1) }

// load loads src and reports metadata for it. The hidden session renders a
// 320x180 frame whose red channel encodes the settled position.
func (fx *fixture) load(t *testing.T, src engine.Source, duration float64) {
	t.Helper()
	if err := fx.s.Load(src); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	fx.hidden().SetFrameFunc(func(pos float64) image.Image {
		img := image.NewRGBA(image.Rect(0, 0, 320, 180))
		c := color.RGBA{R: uint8(pos), A: 255}
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
		}
		return img
	})
	fx.main().LoadMetadata(duration)
}

func TestEndToEndScrubPreview(t *testing.T) {
	fx := newFixture(t, nil)
	fx.load(t, movie, 120)
	hidden := fx.hidden()

	res := fx.s.Hover(400, 800)
	if !res.Enabled || res.Time != 60 {
		t.Fatalf("Hover(400, 800) = %+v, want enabled at 60", res)
	}
	if res.Label != "01:00" {
		t.Errorf("label = %q, want 01:00", res.Label)
	}
	if res.Left != 320 {
		t.Errorf("left = %v, want 320", res.Left)
	}
	if got := fx.s.Controller().State().HoveredTime; got != 60 {
		t.Errorf("hovered time = %v, want 60", got)
	}

	fx.clock.Advance(debounce)
	if seeks := hidden.Seeks(); len(seeks) != 1 || seeks[0] != 60 {
		t.Fatalf("hidden seeks = %v, want [60]", seeks)
	}
	hidden.Settle()

	img, ok := fx.s.Preview()
	if !ok || img.Timestamp != 60 {
		t.Fatalf("preview = %v, %v; want 60", img.Timestamp, ok)
	}
	if img.Width() != 160 || img.Height() != 90 {
		t.Fatalf("preview size = %dx%d, want 160x90", img.Width(), img.Height())
	}

	// x=100 is issued, then superseded by x=600 before either settles.
	fx.s.Hover(100, 800)
	fx.clock.Advance(debounce)
	fx.s.Hover(600, 800)
	fx.clock.Advance(debounce)

	seeks := hidden.Seeks()
	if len(seeks) != 3 || seeks[1] != 15 || seeks[2] != 90 {
		t.Fatalf("hidden seeks = %v, want [60 15 90]", seeks)
	}

	hidden.SettleAt(90)
	hidden.SettleAt(15)

	img, _ = fx.s.Preview()
	if img.Timestamp != 90 {
		t.Fatalf("preview timestamp = %v, want 90", img.Timestamp)
	}
	if r := img.Raster.Pix[0]; r != 90 {
		t.Fatalf("preview shows frame for %d, want 90", r)
	}
}

func TestStaleSettleBeforeLatest(t *testing.T) {
	fx := newFixture(t, nil)
	fx.load(t, movie, 120)
	hidden := fx.hidden()

	fx.s.Hover(100, 800)
	fx.clock.Advance(debounce)
	fx.s.Hover(600, 800)
	fx.clock.Advance(debounce)

	hidden.SettleAt(15)
	if _, ok := fx.s.Preview(); ok {
		t.Fatal("stale settle published a preview")
	}

	hidden.SettleAt(90)
	img, ok := fx.s.Preview()
	if !ok || img.Timestamp != 90 {
		t.Fatalf("preview = %v, %v; want 90", img.Timestamp, ok)
	}
}

func TestHoverBurstCollapses(t *testing.T) {
	fx := newFixture(t, nil)
	fx.load(t, movie, 120)

	for x := 100.0; x <= 500; x += 100 {
		fx.s.Hover(x, 800)
		fx.clock.Advance(10 * time.Millisecond)
	}
	fx.clock.Advance(debounce)

	seeks := fx.hidden().Seeks()
	if len(seeks) != 1 || seeks[0] != 75 {
		t.Fatalf("hidden seeks = %v, want [75]", seeks)
	}
}

func TestHoverBeforeMetadataIsSuppressed(t *testing.T) {
	fx := newFixture(t, nil)
	if err := fx.s.Load(movie); err != nil {
		t.Fatal(err)
	}

	res := fx.s.Hover(400, 800)
	if res.Enabled {
		t.Fatalf("Hover() = %+v before metadata, want disabled", res)
	}
	fx.clock.Advance(time.Second)

	if seeks := fx.hidden().Seeks(); len(seeks) != 0 {
		t.Fatalf("hidden seeks = %v, want none", seeks)
	}
}

func TestLeaveCancelsAndClears(t *testing.T) {
	fx := newFixture(t, nil)
	fx.load(t, movie, 120)

	fx.s.Hover(400, 800)
	fx.clock.Advance(debounce)
	fx.hidden().Settle()

	fx.s.Hover(200, 800)
	fx.s.Leave()
	fx.clock.Advance(time.Second)

	if seeks := fx.hidden().Seeks(); len(seeks) != 1 {
		t.Fatalf("hidden seeks = %v, want only the first", seeks)
	}
	if _, ok := fx.s.Preview(); ok {
		t.Fatal("preview still shown after leave")
	}
	if st := fx.s.State(); st.Player.HoveredTime != 0 || st.SeekBar.Hovered != 0 {
		t.Fatalf("hover not reset: %+v", st)
	}
}

func TestLeaveWinsOverFiringTimer(t *testing.T) {
	fx := newFixture(t, nil)
	fx.load(t, movie, 120)

	fx.s.Hover(400, 800)
	// The timer has passed its generation check when Leave runs; the
	// delivery that follows must not bring the preview back.
	fx.s.Leave()
	fx.s.requestPreview(60)
	fx.hidden().Settle()

	if seeks := fx.hidden().Seeks(); len(seeks) != 0 {
		t.Fatalf("hidden seeks = %v, want none after leave", seeks)
	}
	if _, ok := fx.s.Preview(); ok {
		t.Fatal("preview reappeared after leave")
	}

	fx.s.Hover(400, 800)
	fx.clock.Advance(debounce)
	fx.hidden().Settle()
	if img, ok := fx.s.Preview(); !ok || img.Timestamp != 60 {
		t.Fatalf("preview after hovering again = %+v, %v", img, ok)
	}
}

func TestPlayStateDrivesLoop(t *testing.T) {
	fx := newFixture(t, nil)
	fx.load(t, movie, 120)
	main := fx.main()

	if st := fx.s.State(); !st.SeekBar.Known || st.SeekBar.Max != 120 {
		t.Fatalf("seek bar after metadata = %+v", st.SeekBar)
	}

	if err := fx.s.Controller().Play(); err != nil {
		t.Fatal(err)
	}
	if got := fx.s.State().Loop; got != "running" {
		t.Fatalf("loop = %s, want running", got)
	}

	main.SetTime(30)
	fx.clock.Advance(progress.DefaultInterval)
	if bar := fx.s.SeekBar().State(); bar.Value != 30 || bar.Fill != 0.25 {
		t.Fatalf("bar = %+v, want value 30 fill 0.25", bar)
	}

	main.Pause()
	if got := fx.s.State().Loop; got != "idle" {
		t.Fatalf("loop = %s, want idle", got)
	}
	if fx.clock.Pending() != 0 {
		t.Fatalf("%d timers armed while paused", fx.clock.Pending())
	}
}

func TestEngineErrorStopsLoop(t *testing.T) {
	fx := newFixture(t, nil)
	fx.load(t, movie, 120)

	var events []Event
	fx.s.Subscribe(func(ev Event) { events = append(events, ev) })

	fx.s.Controller().Play()
	boom := errors.New("decode failed")
	fx.main().Fail(boom)

	if got := fx.s.State().Loop; got != "idle" {
		t.Fatalf("loop = %s after engine error, want idle", got)
	}
	last := events[len(events)-1]
	if last.Kind != EventState || !errors.Is(last.Err, boom) || last.State.Player.Playing {
		t.Fatalf("last event = %+v", last)
	}
}

func TestPreviewEvents(t *testing.T) {
	fx := newFixture(t, nil)
	fx.load(t, movie, 120)

	var previews []float64
	fx.s.Subscribe(func(ev Event) {
		if ev.Kind == EventPreview {
			previews = append(previews, ev.State.Preview.Timestamp)
		}
	})

	fx.s.Hover(200, 800)
	fx.clock.Advance(debounce)
	fx.hidden().Settle()

	if len(previews) != 1 || previews[0] != 30 {
		t.Fatalf("preview events = %v, want [30]", previews)
	}
}

func TestReloadRebindsExtractor(t *testing.T) {
	store := newMemoryStore()
	fx := newFixture(t, store)
	fx.load(t, movie, 120)
	oldMain, oldHidden := fx.main(), fx.hidden()
	oldMain.SetTime(50)

	other := engine.Source{URL: "/media/other.mkv", Type: "video/x-matroska"}
	fx.load(t, other, 60)

	if !oldMain.Disposed() || !oldHidden.Disposed() {
		t.Fatal("previous sessions not disposed")
	}
	if saved := store.states[movie.URL]; saved.Position != 50 {
		t.Fatalf("saved position for previous source = %v, want 50", saved.Position)
	}

	fx.s.Hover(400, 800)
	fx.clock.Advance(debounce)

	if seeks := fx.hidden().Seeks(); len(seeks) != 1 || seeks[0] != 30 {
		t.Fatalf("new hidden seeks = %v, want [30]", seeks)
	}
	if seeks := oldHidden.Seeks(); len(seeks) != 0 {
		t.Fatalf("old hidden seeked: %v", seeks)
	}
	if bar := fx.s.SeekBar().State(); bar.Max != 60 {
		t.Fatalf("seek bar max = %v, want 60", bar.Max)
	}
}

func TestResumeSavedPosition(t *testing.T) {
	tests := []struct {
		name     string
		position float64
		want     []float64
	}{
		{"in progress", 60, []float64{60}},
		{"barely started", 1, nil},
		{"nearly finished", 118, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			store.states[movie.URL] = storage.PlaybackState{SourceURL: movie.URL, Position: tt.position, Duration: 120}

			fx := newFixture(t, store)
			fx.load(t, movie, 120)

			seeks := fx.main().Seeks()
			if len(seeks) != len(tt.want) {
				t.Fatalf("main seeks = %v, want %v", seeks, tt.want)
			}
			for i := range tt.want {
				if seeks[i] != tt.want[i] {
					t.Fatalf("main seeks = %v, want %v", seeks, tt.want)
				}
			}
		})
	}
}

func TestPauseSavesPosition(t *testing.T) {
	store := newMemoryStore()
	fx := newFixture(t, store)
	fx.load(t, movie, 120)

	fx.s.Controller().Play()
	fx.main().SetTime(42)
	fx.main().Pause()

	saved, _ := store.GetPlaybackState(movie.URL)
	if saved == nil || saved.Position != 42 || saved.Duration != 120 {
		t.Fatalf("saved state = %+v, want position 42 of 120", saved)
	}
	if saved.Progress != 0.35 {
		t.Fatalf("saved progress = %v, want 0.35", saved.Progress)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	store := newMemoryStore()
	fx := newFixture(t, store)
	fx.load(t, movie, 120)
	main, hidden := fx.main(), fx.hidden()

	fx.s.Controller().Play()
	fx.s.Hover(400, 800)
	main.SetTime(12)

	fx.s.Close()
	fx.s.Close()

	if fx.clock.Pending() != 0 {
		t.Fatalf("%d timers still armed after Close", fx.clock.Pending())
	}
	if !main.Disposed() || !hidden.Disposed() {
		t.Fatal("sessions not disposed")
	}
	if saved := store.states[movie.URL]; saved.Position != 12 {
		t.Fatalf("position saved on close = %v, want 12", saved.Position)
	}
	if err := fx.s.Load(movie); !errors.Is(err, ErrClosed) {
		t.Fatalf("Load() after Close error = %v", err)
	}
}

// playingStore resumes playback on the main session whenever a position is
// saved, as an engine event racing with teardown would.
type playingStore struct {
	*memoryStore
	main *enginetest.Session
}

func (p *playingStore) SavePlaybackState(state *storage.PlaybackState) error {
	if p.main != nil {
		p.main.Play()
	}
	return p.memoryStore.SavePlaybackState(state)
}

func TestCloseIgnoresEventsDuringTeardown(t *testing.T) {
	store := &playingStore{memoryStore: newMemoryStore()}
	fx := newFixture(t, store)
	fx.load(t, movie, 120)
	store.main = fx.main()

	fx.s.Controller().Play()
	fx.s.Close()

	if got := fx.s.State().Loop; got != "idle" {
		t.Fatalf("loop = %s after Close, want idle", got)
	}
	if fx.clock.Pending() != 0 {
		t.Fatalf("%d timers armed after Close", fx.clock.Pending())
	}

	ticks := fx.s.loop.Ticks()
	fx.clock.Advance(10 * progress.DefaultInterval)
	if got := fx.s.loop.Ticks(); got != ticks {
		t.Fatalf("loop ticked %d times after Close", got-ticks)
	}
}
