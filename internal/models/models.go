package models

import (
	"fmt"
	"image"
	"time"
)

// NormalVerdict is the analyzer reply meaning no abnormal condition was seen.
const NormalVerdict = "NORMAL"

// Snapshot is a single frame captured from the playback surface
type Snapshot struct {
	Image      *image.RGBA
	Position   time.Duration // playback position the frame was taken at
	CapturedAt time.Time
}

// Finding represents an abnormal verdict returned for a frame
type Finding struct {
	Timestamp string `json:"timestamp"`
	Analysis  string `json:"analysis"`

	// Metadata used by archive sinks only.
	SessionID  string        `json:"session_id,omitempty"`
	Media      string        `json:"media,omitempty"`
	Position   time.Duration `json:"position,omitempty"`
	DetectedAt time.Time     `json:"detected_at,omitempty"`
	Signature  []float32     `json:"signature,omitempty"`
}

// Line renders the finding the way it appears in the export file.
func (f Finding) Line() string {
	return fmt.Sprintf("%s - %s", f.Timestamp, f.Analysis)
}

// FormatTimestamp formats a playback position as M:SS. Minutes are not
// padded and keep counting past the hour.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
