package storage

import "time"

// PlaybackState is the resume position recorded for one source.
type PlaybackState struct {
	SourceURL  string    `json:"source_url"`
	SourceType string    `json:"source_type,omitempty"`
	Position   float64   `json:"position"` // Seconds
	Duration   float64   `json:"duration"` // Seconds
	Progress   float64   `json:"progress"` // 0.0 - 1.0
	UpdatedAt  time.Time `json:"updated_at"`
}

// InProgress reports whether the state is worth resuming: started, but not
// close enough to the end to count as watched.
func (p PlaybackState) InProgress() bool {
	return p.Progress > MinResumeProgress && p.Progress < MaxResumeProgress
}

const (
	MinResumeProgress = 0.02
	MaxResumeProgress = 0.95
)
