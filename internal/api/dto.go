package api

import "scrubview/internal/storage"

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Engine  string `json:"engine"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Player DTOs

type LoadRequest struct {
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
}

type SeekRequest struct {
	Time *float64 `json:"time"`
}

type VolumeRequest struct {
	Volume *float64 `json:"volume"`
}

// MuteRequest toggles when Muted is omitted.
type MuteRequest struct {
	Muted *bool `json:"muted"`
}

type RateRequest struct {
	Rate float64 `json:"rate"`
}

// Seek bar DTOs

type HoverRequest struct {
	Offset float64 `json:"offset"`
	Width  float64 `json:"width"`
}

type PreviewResponse struct {
	Timestamp float64 `json:"timestamp"`
	Requested float64 `json:"requested"`
	Seq       uint64  `json:"seq"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	DataURL   string  `json:"data_url"`
}

type ProgressEvent struct {
	CurrentTime float64 `json:"current_time"`
	Value       float64 `json:"value"`
	Fill        float64 `json:"fill"`
}

// Playback DTOs

type PlaybackResponse struct {
	SourceURL string  `json:"source_url"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
	Progress  float64 `json:"progress"`
}

type ContinueWatchingResponse struct {
	Items []storage.PlaybackState `json:"items"`
}
