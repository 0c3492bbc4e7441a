package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"scrubview/internal/surface"
)

// Events streams surface changes as server-sent events. Every connection
// gets the current state first, then a "state" or "preview" event per
// surface change and a "progress" event per interval while playing.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan surface.Event, 16)
	unsubscribe := h.surface.Subscribe(func(ev surface.Event) {
		select {
		case ch <- ev:
		default:
			// Slow client; the next state event supersedes this one.
		}
	})
	defer unsubscribe()

	if err := sendEvent(w, string(surface.EventState), h.surface.State()); err != nil {
		return
	}

	ticker := time.NewTicker(h.eventInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			if err := sendEvent(w, string(ev.Kind), ev.State); err != nil {
				return
			}
		case <-ticker.C:
			st := h.surface.State()
			if !st.Player.Playing {
				continue
			}
			err := sendEvent(w, "progress", ProgressEvent{
				CurrentTime: st.Player.CurrentTime,
				Value:       st.SeekBar.Value,
				Fill:        st.SeekBar.Fill,
			})
			if err != nil {
				return
			}
		}
	}
}

func sendEvent(w http.ResponseWriter, name string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, b); err != nil {
		return err
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
