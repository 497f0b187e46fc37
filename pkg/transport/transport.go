// Package transport carries playback, reaction, chat and state messages between the
// peers of a group session. Every channel is a broadcast pipe: a message sent by one
// peer is delivered to every joined peer, possibly including the sender.
package transport

import (
	"context"
	"encoding/json"
	"errors"

	"watch-party-sync/pkg/model"
)

var (
	ErrNotJoined          = errors.New("group session not joined")
	ErrSessionInvalidated = errors.New("group session invalidated")
	ErrMessengerClosed    = errors.New("messenger closed")
	ErrChannelFull        = errors.New("unreliable channel full, message dropped")
)

// Channel names a logical message channel of a group session
type Channel string

const (
	ChannelControl  Channel = "control"
	ChannelReaction Channel = "reaction"
	ChannelChat     Channel = "chat"
	ChannelState    Channel = "state"
)

// Reliable reports whether messages on the channel are queued rather than dropped under pressure
func (c Channel) Reliable() bool {
	return c != ChannelReaction
}

// Envelope is one received message with the participant id the channel attributed it to
type Envelope struct {
	SenderID string
	Payload  json.RawMessage
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Messenger sends and receives JSON messages on one channel of a group session
type Messenger interface {
	// Send broadcasts message to every joined peer. It may block on reliable channels.
	Send(ctx context.Context, message interface{}) error
	// Receive returns the inbound stream. It is closed when the messenger or its session closes.
	Receive() <-chan Envelope
	Close() error
}

// SessionEventKind distinguishes group session notifications
type SessionEventKind string

const (
	EventJoined        SessionEventKind = "joined"
	EventRosterChanged SessionEventKind = "roster_changed"
	EventInvalidated   SessionEventKind = "invalidated"
)

// SessionEvent is a membership notification from the group session
type SessionEvent struct {
	Kind         SessionEventKind
	Participants []model.Participant
	Reason       string
}

// GroupSession is a platform provided multi-peer context
type GroupSession interface {
	ID() string
	Activity() model.Activity
	LocalParticipant() model.Participant
	// Join connects to the group. A joined event with the current roster follows.
	Join(ctx context.Context) error
	// Leave disconnects this peer only. The events channel is closed without an invalidated event.
	// It must be safe to call more than once and after the session was invalidated.
	Leave() error
	// End terminates the session for every peer
	End(ctx context.Context) error
	// Events is closed once the session is left or invalidated
	Events() <-chan SessionEvent
	Messenger(channel Channel) (Messenger, error)
}

// Activator asks the platform to start a group session for an activity
type Activator interface {
	Activate(ctx context.Context, activity model.Activity) (model.ActivationResult, GroupSession, error)
}

// LocalActivator never offers a group session, so playback stays local
type LocalActivator struct{}

// Activate reports that group sessions are disabled
func (LocalActivator) Activate(ctx context.Context, _ model.Activity) (model.ActivationResult, GroupSession, error) {
	if ctx.Err() != nil {
		return model.ActivationCancelled, nil, nil
	}
	return model.ActivationDisabled, nil, nil
}
