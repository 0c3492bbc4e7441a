package progress

import "sync"

// SeekBarState is a snapshot of the seek bar's visual state.
type SeekBarState struct {
	Max     float64 `json:"max"`
	Known   bool    `json:"known"`
	Value   float64 `json:"value"`
	Fill    float64 `json:"fill"`
	Hovered float64 `json:"hovered"`
}

// SeekBar holds the seek bar's visual state for the surface to read.
type SeekBar struct {
	mu    sync.RWMutex
	state SeekBarState
}

func NewSeekBar() *SeekBar {
	return &SeekBar{}
}

func (b *SeekBar) SetProgress(value, fill float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Value = value
	b.state.Fill = fill
}

func (b *SeekBar) SetMax(duration float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Max = duration
	b.state.Known = true
}

func (b *SeekBar) SetHovered(t float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Hovered = t
}

// Reset returns the bar to its state before metadata loaded.
func (b *SeekBar) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = SeekBarState{}
}

func (b *SeekBar) State() SeekBarState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}
