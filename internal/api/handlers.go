package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"scrubview/internal/engine"
	"scrubview/internal/media"
	"scrubview/internal/player"
	"scrubview/internal/storage"
	"scrubview/internal/streaming"
	"scrubview/internal/surface"
)

const Version = "0.1.0"

// PlaybackStore is the subset of storage the playback endpoints need.
type PlaybackStore interface {
	GetPlaybackState(sourceURL string) (*storage.PlaybackState, error)
	GetContinueWatching(limit int) ([]storage.PlaybackState, error)
	DeletePlaybackState(sourceURL string) error
}

type Handler struct {
	surface       *surface.Surface
	storage       PlaybackStore
	logger        zerolog.Logger
	streamer      *streaming.Handler
	engineName    string
	eventInterval time.Duration
}

// NewHandler builds the API handlers. store may be nil when persistence is
// disabled. Local sources are confined to libraryPath.
func NewHandler(s *surface.Surface, store PlaybackStore, logger zerolog.Logger, libraryPath, engineName string, eventInterval time.Duration) *Handler {
	if eventInterval <= 0 {
		eventInterval = 250 * time.Millisecond
	}
	return &Handler{
		surface:       s,
		storage:       store,
		logger:        logger,
		streamer:      streaming.NewHandler(libraryPath),
		engineName:    engineName,
		eventInterval: eventInterval,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: Version,
		Engine:  h.engineName,
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeControlError maps controller errors to responses.
func (h *Handler) writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, player.ErrUnsupportedRate):
		writeError(w, http.StatusBadRequest, "UNSUPPORTED_RATE", "Playback rate must be one of 0.5, 1, 1.5, 2")
	case errors.Is(err, player.ErrNotLoaded):
		writeError(w, http.StatusConflict, "NOT_LOADED", "No source loaded")
	case errors.Is(err, player.ErrClosed), errors.Is(err, surface.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Player is shutting down")
	default:
		h.logger.Error().Err(err).Msg("player operation failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Player operation failed")
	}
}

func (h *Handler) writeSourceError(w http.ResponseWriter, err error, sourceURL string) {
	h.logger.Warn().Err(err).Str("source", sourceURL).Msg("source rejected")
	switch {
	case errors.Is(err, streaming.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Unsupported video format")
	case errors.Is(err, streaming.ErrUnsupportedScheme):
		writeError(w, http.StatusBadRequest, "UNSUPPORTED_SOURCE", "Only http(s) and library files can be loaded")
	case errors.Is(err, streaming.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Source file not found")
	default:
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Source is outside the media library")
	}
}

func (h *Handler) writeState(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, h.surface.State())
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return false
	}
	return true
}

// Player handlers

func (h *Handler) LoadSource(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if !decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Source url is required")
		return
	}
	path, err := h.streamer.Resolve(req.URL)
	switch {
	case err == nil:
		// Local file inside the library.
		req.URL = path
	case errors.Is(err, streaming.ErrNotLocal):
		// Remote source, passed through to the engine.
	default:
		h.writeSourceError(w, err, req.URL)
		return
	}
	if req.Type == "" {
		req.Type = media.SourceType(req.URL)
	}

	if err := h.surface.Load(engine.Source{URL: req.URL, Type: req.Type}); err != nil {
		h.writeControlError(w, err)
		return
	}

	h.writeState(w)
}

func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	if err := h.surface.Controller().Play(); err != nil {
		h.writeControlError(w, err)
		return
	}
	h.writeState(w)
}

func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.surface.Controller().Pause(); err != nil {
		h.writeControlError(w, err)
		return
	}
	h.writeState(w)
}

func (h *Handler) TogglePlay(w http.ResponseWriter, r *http.Request) {
	if err := h.surface.Controller().TogglePlay(); err != nil {
		h.writeControlError(w, err)
		return
	}
	h.writeState(w)
}

func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Time == nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Time is required")
		return
	}

	if err := h.surface.Seek(*req.Time); err != nil {
		h.writeControlError(w, err)
		return
	}
	h.writeState(w)
}

func (h *Handler) SetVolume(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Volume == nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Volume is required")
		return
	}

	h.surface.Controller().SetVolume(*req.Volume)
	h.writeState(w)
}

func (h *Handler) SetMuted(w http.ResponseWriter, r *http.Request) {
	var req MuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	if req.Muted == nil {
		h.surface.Controller().ToggleMute()
	} else {
		h.surface.Controller().SetMuted(*req.Muted)
	}
	h.writeState(w)
}

func (h *Handler) SetRate(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.surface.Controller().SetRate(req.Rate); err != nil {
		h.writeControlError(w, err)
		return
	}
	h.writeState(w)
}

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	h.writeState(w)
}

// StreamSource serves the loaded source when it is a local file, so the
// visible player can play it through this server.
func (h *Handler) StreamSource(w http.ResponseWriter, r *http.Request) {
	src := h.surface.Controller().State().Source
	if src.IsZero() {
		writeError(w, http.StatusConflict, "NOT_LOADED", "No source loaded")
		return
	}

	if _, ok := streaming.LocalPath(src.URL); !ok {
		writeError(w, http.StatusNotFound, "NOT_LOCAL", "Source is not a local file")
		return
	}

	h.streamer.ServeFile(w, r, src.URL)
}

// Seek bar handlers

func (h *Handler) Hover(w http.ResponseWriter, r *http.Request) {
	var req HoverRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Width <= 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Width must be positive")
		return
	}

	writeJSON(w, http.StatusOK, h.surface.Hover(req.Offset, req.Width))
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	h.surface.Leave()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	img, ok := h.surface.Preview()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.URL.Query().Get("format") == "dataurl" {
		dataURL, err := img.DataURL()
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to encode preview")
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to encode preview")
			return
		}
		writeJSON(w, http.StatusOK, PreviewResponse{
			Timestamp: img.Timestamp,
			Requested: img.Requested,
			Seq:       img.Seq,
			Width:     img.Width(),
			Height:    img.Height(),
			DataURL:   dataURL,
		})
		return
	}

	data, err := img.PNG()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode preview")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to encode preview")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Playback handlers

func (h *Handler) GetPlaybackPosition(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Playback storage disabled")
		return
	}

	sourceURL := r.URL.Query().Get("url")
	if sourceURL == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Source url is required")
		return
	}

	state, err := h.storage.GetPlaybackState(sourceURL)
	if err != nil {
		h.logger.Error().Err(err).Str("source", sourceURL).Msg("failed to get playback state")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get position")
		return
	}

	if state == nil {
		// No saved position, return zeros
		writeJSON(w, http.StatusOK, PlaybackResponse{SourceURL: sourceURL})
		return
	}

	writeJSON(w, http.StatusOK, PlaybackResponse{
		SourceURL: state.SourceURL,
		Position:  state.Position,
		Duration:  state.Duration,
		Progress:  state.Progress,
	})
}

func (h *Handler) DeletePlaybackPosition(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Playback storage disabled")
		return
	}

	sourceURL := r.URL.Query().Get("url")
	if sourceURL == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Source url is required")
		return
	}

	if err := h.storage.DeletePlaybackState(sourceURL); err != nil {
		h.logger.Error().Err(err).Str("source", sourceURL).Msg("failed to delete playback state")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete position")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetContinueWatching(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeJSON(w, http.StatusOK, ContinueWatchingResponse{Items: []storage.PlaybackState{}})
		return
	}

	items, err := h.storage.GetContinueWatching(20) // Limit to 20 items
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get continue watching")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get continue watching")
		return
	}

	if items == nil {
		items = []storage.PlaybackState{}
	}

	writeJSON(w, http.StatusOK, ContinueWatchingResponse{
		Items: items,
	})
}
