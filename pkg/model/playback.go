package model

import (
	"math"
	"net/url"
	"time"
)

// Video represents a media item that can be watched together
type Video struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration,omitempty"` // seconds, 0 when unknown
}

// Validate checks that the video can be shared with other participants
func (v Video) Validate() error {
	u, err := url.Parse(v.URL)
	if err != nil {
		return ErrInvalidVideoURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidVideoURL
	}
	return nil
}

// PlaybackState is the authoritative snapshot of what should be playing, where, and how fast.
// It is a value type: every transition returns a new snapshot and the old one is never modified.
type PlaybackState struct {
	Video         *Video    `json:"video,omitempty"`
	IsPlaying     bool      `json:"is_playing"`
	CurrentTime   float64   `json:"current_time"`
	PlaybackRate  float64   `json:"playback_rate"`
	LastChangedBy string    `json:"last_changed_by,omitempty"`
	LastChangedAt time.Time `json:"-"` // recomputed locally on receipt
}

// DefaultPlaybackRate is the rate of a freshly created state
const DefaultPlaybackRate = 1.0

// IdlePlaybackState returns the initial state used when no session is active
func IdlePlaybackState() PlaybackState {
	return PlaybackState{
		PlaybackRate: DefaultPlaybackRate,
	}
}

// IsIdle reports whether no media is loaded
func (s PlaybackState) IsIdle() bool {
	return s.Video == nil
}

// WithVideo replaces the video and rewinds to the start. Play intent and rate are preserved.
func (s PlaybackState) WithVideo(video Video, changedBy string, now time.Time) PlaybackState {
	v := video
	s.Video = &v
	s.CurrentTime = 0
	return s.stamp(changedBy, now)
}

// TogglePlayback flips the play intent
func (s PlaybackState) TogglePlayback(changedBy string, now time.Time) PlaybackState {
	return s.WithPlaying(!s.IsPlaying, changedBy, now)
}

// WithPlaying sets the play intent explicitly
func (s PlaybackState) WithPlaying(playing bool, changedBy string, now time.Time) PlaybackState {
	s.IsPlaying = playing
	return s.stamp(changedBy, now)
}

// Seek replaces the playback position
func (s PlaybackState) Seek(to float64, changedBy string, now time.Time) PlaybackState {
	s.CurrentTime = math.Max(0, to)
	return s.stamp(changedBy, now)
}

// WithRate replaces the playback rate
func (s PlaybackState) WithRate(rate float64, changedBy string, now time.Time) PlaybackState {
	s.PlaybackRate = rate
	return s.stamp(changedBy, now)
}

// WithCurrentTime mirrors the position reported by the local player.
// It keeps LastChangedBy untouched and must never be broadcast.
func (s PlaybackState) WithCurrentTime(t float64, now time.Time) PlaybackState {
	s.CurrentTime = math.Max(0, t)
	s.LastChangedAt = now
	return s
}

// PositionAt estimates the playback position at t, extrapolating from LastChangedAt while playing
func (s PlaybackState) PositionAt(t time.Time) float64 {
	if !s.IsPlaying || s.LastChangedAt.IsZero() {
		return s.CurrentTime
	}
	elapsed := t.Sub(s.LastChangedAt).Seconds()
	if elapsed <= 0 {
		return s.CurrentTime
	}
	pos := s.CurrentTime + elapsed*s.PlaybackRate
	if s.Video != nil && s.Video.Duration > 0 && pos > s.Video.Duration {
		return s.Video.Duration
	}
	return pos
}

// SameTransport compares the shared fields of two snapshots, ignoring provenance
func (s PlaybackState) SameTransport(other PlaybackState) bool {
	if (s.Video == nil) != (other.Video == nil) {
		return false
	}
	if s.Video != nil && *s.Video != *other.Video {
		return false
	}
	return s.IsPlaying == other.IsPlaying &&
		s.CurrentTime == other.CurrentTime &&
		s.PlaybackRate == other.PlaybackRate
}

// Apply maps a control action onto the matching transform.
// The second return value is false when the action is malformed and must be ignored.
func (s PlaybackState) Apply(action PlaybackAction, changedBy string, now time.Time) (PlaybackState, bool) {
	switch action.Kind {
	case ActionPlay:
		return s.WithPlaying(true, changedBy, now), true
	case ActionPause:
		return s.WithPlaying(false, changedBy, now), true
	case ActionSeek:
		if math.IsNaN(action.Time) || math.IsInf(action.Time, 0) {
			return s, false
		}
		return s.Seek(action.Time, changedBy, now), true
	case ActionSetRate:
		if action.Rate <= 0 || math.IsNaN(action.Rate) || math.IsInf(action.Rate, 0) {
			return s, false
		}
		return s.WithRate(action.Rate, changedBy, now), true
	case ActionLoad:
		if action.Video == nil {
			return s, false
		}
		return s.WithVideo(*action.Video, changedBy, now), true
	default:
		return s, false
	}
}

func (s PlaybackState) stamp(changedBy string, now time.Time) PlaybackState {
	s.LastChangedBy = changedBy
	s.LastChangedAt = now
	return s
}
