package engine

import (
	"math"
	"time"

	"watch-party-sync/pkg/model"
	"watch-party-sync/pkg/transport"

	"github.com/google/uuid"
)

// handleEnvelope decodes and applies one received message. Runs on the actor.
// Messages from a previous session generation are dropped.
func (e *Engine) handleEnvelope(generation uint64, channel transport.Channel, env transport.Envelope) {
	if e.link == nil || generation != e.generation {
		return
	}

	switch channel {
	case transport.ChannelControl:
		var msg model.ControlMessage
		if err := env.Decode(&msg); err != nil {
			e.log.Debugf("ignoring undecodable control message: %v", err)
			return
		}
		e.handleControl(attribute(msg, env.SenderID))

	case transport.ChannelState:
		var msg model.StateMessage
		if err := env.Decode(&msg); err != nil {
			e.log.Debugf("ignoring undecodable state message: %v", err)
			return
		}
		if env.SenderID != "" {
			msg.SenderID = env.SenderID
		}
		e.handleState(msg)

	case transport.ChannelReaction:
		var msg model.ReactionMessage
		if err := env.Decode(&msg); err != nil {
			e.log.Debugf("ignoring undecodable reaction: %v", err)
			return
		}
		if env.SenderID != "" {
			msg.SenderID = env.SenderID
		}
		e.handleReaction(msg)

	case transport.ChannelChat:
		var msg model.ChatMessage
		if err := env.Decode(&msg); err != nil {
			e.log.Debugf("ignoring undecodable chat message: %v", err)
			return
		}
		if env.SenderID != "" {
			msg.SenderID = env.SenderID
		}
		e.handleChat(msg)
	}
}

// attribute prefers the sender the channel observed over the one the payload claims
func attribute(msg model.ControlMessage, channelSender string) model.ControlMessage {
	if channelSender != "" {
		msg.SenderID = channelSender
	}
	return msg
}

// requestSnapshot asks the other peers for their state. Runs on the actor.
func (e *Engine) requestSnapshot() {
	requestID := uuid.New()
	e.awaiting = requestID
	e.link.enqueue(transport.ChannelState, model.StateMessage{
		Kind:      model.StateRequest,
		RequestID: requestID,
		SenderID:  e.localID,
	})

	generation := e.generation
	time.AfterFunc(e.snapshotWait, func() {
		e.post(func() {
			if e.generation == generation && e.awaiting == requestID {
				e.log.Debugf("no snapshot received, keeping local state")
				e.stopAwaiting()
			}
		})
	})
}

// stopAwaiting ends the wait for a snapshot and drops the actions buffered during it
func (e *Engine) stopAwaiting() {
	e.awaiting = uuid.Nil
	e.pending = nil
}

func (e *Engine) handleState(msg model.StateMessage) {
	if msg.SenderID == e.localID {
		return
	}

	switch msg.Kind {
	case model.StateRequest:
		// a peer that is itself waiting for a snapshot has nothing authoritative to offer
		if e.awaiting != uuid.Nil || e.state.IsIdle() {
			return
		}
		now := e.now()
		snapshot := e.state.WithCurrentTime(e.state.PositionAt(now), now)
		e.link.enqueue(transport.ChannelState, model.StateMessage{
			Kind:      model.StateSnapshot,
			RequestID: msg.RequestID,
			SenderID:  e.localID,
			Snapshot:  &snapshot,
		})

	case model.StateSnapshot:
		if e.awaiting == uuid.Nil || msg.RequestID != e.awaiting || msg.Snapshot == nil {
			return
		}
		if !validSnapshot(*msg.Snapshot) {
			e.log.Warnf("ignoring malformed snapshot from %s", msg.SenderID)
			return
		}

		next := *msg.Snapshot
		if next.LastChangedBy == "" {
			next.LastChangedBy = msg.SenderID
		}
		now := e.now()
		next.LastChangedAt = now

		// the snapshot may predate control actions already applied while waiting
		for _, pending := range e.pending {
			if replayed, ok := next.Apply(pending.Action, pending.SenderID, now); ok {
				next = replayed
			}
		}
		replayed := len(e.pending)
		e.stopAwaiting()
		e.log.Infof("adopted snapshot from %s at %.2fs (playing=%v, replayed=%d)", msg.SenderID, next.CurrentTime, next.IsPlaying, replayed)
		e.commit(next, true)

	default:
		e.log.Debugf("ignoring state message of kind %q", msg.Kind)
	}
}

func validSnapshot(s model.PlaybackState) bool {
	if s.PlaybackRate <= 0 || math.IsNaN(s.PlaybackRate) || math.IsInf(s.PlaybackRate, 0) {
		return false
	}
	if s.CurrentTime < 0 || math.IsNaN(s.CurrentTime) || math.IsInf(s.CurrentTime, 0) {
		return false
	}
	return s.Video == nil || s.Video.Validate() == nil
}
