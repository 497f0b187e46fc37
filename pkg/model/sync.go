package model

import (
	"time"

	"github.com/google/uuid"
)

// ActionKind represents the different playback control actions
type ActionKind string

const (
	ActionPlay    ActionKind = "play"
	ActionPause   ActionKind = "pause"
	ActionSeek    ActionKind = "seek"
	ActionSetRate ActionKind = "set_rate"
	ActionLoad    ActionKind = "load"
)

// PlaybackAction is one peer's playback intent
type PlaybackAction struct {
	Kind  ActionKind `json:"kind"`
	Time  float64    `json:"time,omitempty"`  // seek target in seconds
	Rate  float64    `json:"rate,omitempty"`  // playback multiplier
	Video *Video     `json:"video,omitempty"` // media to load
}

// Play returns a play action
func Play() PlaybackAction { return PlaybackAction{Kind: ActionPlay} }

// Pause returns a pause action
func Pause() PlaybackAction { return PlaybackAction{Kind: ActionPause} }

// SeekTo returns a seek action
func SeekTo(t float64) PlaybackAction { return PlaybackAction{Kind: ActionSeek, Time: t} }

// SetRate returns a rate change action
func SetRate(rate float64) PlaybackAction { return PlaybackAction{Kind: ActionSetRate, Rate: rate} }

// Load returns a video change action
func Load(video Video) PlaybackAction {
	v := video
	return PlaybackAction{Kind: ActionLoad, Video: &v}
}

// ControlMessage is sent over the control channel. It carries no timestamp:
// receipt order on the channel is the ordering authority.
type ControlMessage struct {
	Action   PlaybackAction `json:"action"`
	SenderID string         `json:"sender_id"`
}

// ReactionMessage is a short-lived emoji reaction, sent unreliably
type ReactionMessage struct {
	Emoji    string    `json:"emoji"`
	SenderID string    `json:"sender_id"`
	SentAt   time.Time `json:"sent_at"`
}

// ChatMessage is a text message, sent reliably
type ChatMessage struct {
	ID         uuid.UUID `json:"id"`
	Text       string    `json:"text"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	SentAt     time.Time `json:"sent_at"`
}

// NewChatMessage creates a chat message stamped with a fresh id
func NewChatMessage(text, senderID, senderName string, now time.Time) ChatMessage {
	return ChatMessage{
		ID:         uuid.New(),
		Text:       text,
		SenderID:   senderID,
		SenderName: senderName,
		SentAt:     now,
	}
}

// StateMessageKind distinguishes snapshot requests from responses
type StateMessageKind string

const (
	StateRequest  StateMessageKind = "request"
	StateSnapshot StateMessageKind = "snapshot"
)

// StateMessage carries the join-time snapshot exchange.
// A newly joined peer broadcasts a request; peers with a loaded video answer with their snapshot.
type StateMessage struct {
	Kind      StateMessageKind `json:"kind"`
	RequestID uuid.UUID        `json:"request_id"`
	SenderID  string           `json:"sender_id"`
	Snapshot  *PlaybackState   `json:"snapshot,omitempty"`
}
