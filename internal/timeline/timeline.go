// Package timeline maps between seek-bar geometry and media time.
package timeline

import (
	"fmt"
	"math"

	"github.com/samber/lo"
)

// Map converts a horizontal pointer offset within a seek bar of the given
// width to a timestamp in [0, duration]. It reports false, with a zero
// timestamp, when the duration is not yet known or the geometry is empty;
// callers must not request previews in that case.
func Map(offset, width, duration float64, known bool) (float64, bool) {
	if !known || duration <= 0 || width <= 0 || math.IsNaN(offset) {
		return 0, false
	}
	return lo.Clamp(offset/width*duration, 0, duration), true
}

// Position is the inverse of Map: the offset on a bar of the given width
// that represents t.
func Position(t, width, duration float64) float64 {
	if duration <= 0 || width <= 0 {
		return 0
	}
	return lo.Clamp(t/duration, 0, 1) * width
}

// PreviewLeft returns the left edge of a preview bubble of previewWidth
// centred over t.
func PreviewLeft(t, width, duration float64, previewWidth int) float64 {
	return Position(t, width, duration) - float64(previewWidth)/2
}

// Fill returns current/duration clamped to [0, 1], or 0 while the duration
// is unknown.
func Fill(current, duration float64, known bool) float64 {
	if !known || duration <= 0 {
		return 0
	}
	return lo.Clamp(current/duration, 0, 1)
}

// FormatTime renders seconds as mm:ss, or h:mm:ss once there are hours.
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
