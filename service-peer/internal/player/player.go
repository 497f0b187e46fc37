// Package player drives a local media player toward the shared PlaybackState.
package player

import (
	"watch-party-sync/pkg/model"
)

// EventKind identifies a notification raised by a Player
type EventKind string

const (
	EventTimeUpdate EventKind = "time_update"
	EventBuffering  EventKind = "buffering"
	EventReady      EventKind = "ready"
	EventFailed     EventKind = "failed"
	EventEnded      EventKind = "ended"
)

// Event is a state change reported by the underlying player.
// Time is the player position in seconds, Progress the buffered fraction for
// buffering events and Err the cause of a failure.
type Event struct {
	Kind     EventKind
	Time     float64
	Progress float64
	Err      error
}

// EventHandler receives player events. Implementations may call it synchronously
// from inside Play, Seek and friends, but never while holding their own locks.
type EventHandler func(Event)

// Player is the concrete media player the adapter controls
type Player interface {
	Load(video model.Video) error
	Play()
	Pause()
	Seek(seconds float64)
	SetRate(rate float64)
	Rate() float64
	IsPlaying() bool
	CurrentTime() float64
	SetEventHandler(handler EventHandler)
}

// Status is the adapter's view of the player lifecycle
type Status string

const (
	StatusIdle      Status = "idle"
	StatusBuffering Status = "buffering"
	StatusPlaying   Status = "playing"
	StatusPaused    Status = "paused"
	StatusFailed    Status = "failed"
)

// Ready reports whether media is loaded and can be driven
func (s Status) Ready() bool {
	return s == StatusPlaying || s == StatusPaused
}

// View is the observable state shown by the player chrome
type View struct {
	Status         Status  `json:"status"`
	CurrentTime    float64 `json:"current_time"`
	BufferProgress float64 `json:"buffer_progress"`
	IsBuffering    bool    `json:"is_buffering"`
	IsReadyToPlay  bool    `json:"is_ready_to_play"`
	HasError       bool    `json:"has_error"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}
