package transport

import (
	"encoding/json"

	"watch-party-sync/pkg/model"
)

// FrameType is the kind of a relay wire frame
type FrameType string

const (
	FrameMessage     FrameType = "message"     // both directions, a channel message
	FrameJoined      FrameType = "joined"      // relay to peer, admission with roster
	FrameRoster      FrameType = "roster"      // relay to peer, roster changed
	FrameInvalidated FrameType = "invalidated" // relay to peer, session is gone
	FrameEnd         FrameType = "end"         // peer to relay, end the session for everyone
)

// Frame is the JSON unit exchanged with the relay over a WebSocket.
// SenderID is always stamped by the relay from the admitted connection.
type Frame struct {
	Type         FrameType           `json:"type"`
	SessionID    string              `json:"session_id,omitempty"`
	Channel      Channel             `json:"channel,omitempty"`
	SenderID     string              `json:"sender_id,omitempty"`
	Payload      json.RawMessage     `json:"payload,omitempty"`
	Participants []model.Participant `json:"participants,omitempty"`
	Reason       string              `json:"reason,omitempty"`
}
