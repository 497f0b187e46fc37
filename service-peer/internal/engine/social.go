package engine

import (
	"context"
	"strings"
	"time"

	"watch-party-sync/pkg/model"
	"watch-party-sync/pkg/transport"

	"github.com/google/uuid"
)

// SendReaction shows emoji locally and broadcasts it on the unreliable channel
func (e *Engine) SendReaction(ctx context.Context, emoji string) error {
	if !e.cfg.ReactionsEnabled {
		return ErrFeatureDisabled
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return ErrEmptyMessage
	}

	return e.do(ctx, func() {
		now := e.now()
		e.addReaction(model.ReactionMessage{Emoji: emoji, SenderID: e.localID, SentAt: now})
		if e.link != nil {
			e.link.enqueue(transport.ChannelReaction, model.ReactionMessage{Emoji: emoji, SenderID: e.localID, SentAt: now})
		}
	})
}

// SendChat appends text to the local history and broadcasts it
func (e *Engine) SendChat(ctx context.Context, text, senderName string) (model.ChatMessage, error) {
	if !e.cfg.ChatEnabled {
		return model.ChatMessage{}, ErrFeatureDisabled
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ChatMessage{}, ErrEmptyMessage
	}

	var msg model.ChatMessage
	err := e.do(ctx, func() {
		msg = model.NewChatMessage(text, e.localID, senderName, e.now())
		e.appendChat(msg)
		if e.link != nil {
			e.link.enqueue(transport.ChannelChat, msg)
		}
	})
	return msg, err
}

// Reactions returns the reactions that have not expired yet
func (e *Engine) Reactions(ctx context.Context) []Reaction {
	var out []Reaction
	if err := e.do(ctx, func() { out = append(out, e.reactions...) }); err != nil {
		e.log.Debugf("reactions unavailable: %v", err)
	}
	return out
}

// ChatMessages returns the chat history, oldest first
func (e *Engine) ChatMessages(ctx context.Context) []model.ChatMessage {
	var out []model.ChatMessage
	if err := e.do(ctx, func() { out = append(out, e.chat...) }); err != nil {
		e.log.Debugf("chat history unavailable: %v", err)
	}
	return out
}

// Activities returns the playback and reaction activity of this session, oldest first
func (e *Engine) Activities(ctx context.Context) []model.ParticipantActivity {
	var out []model.ParticipantActivity
	if err := e.do(ctx, func() { out = append(out, e.activity...) }); err != nil {
		e.log.Debugf("activity log unavailable: %v", err)
	}
	return out
}

func (e *Engine) handleReaction(msg model.ReactionMessage) {
	if msg.SenderID == e.localID || strings.TrimSpace(msg.Emoji) == "" {
		return
	}
	e.addReaction(msg)
}

func (e *Engine) handleChat(msg model.ChatMessage) {
	if msg.SenderID == e.localID || strings.TrimSpace(msg.Text) == "" {
		return
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	e.appendChat(msg)
}

// addReaction records a reaction and schedules its expiry. Runs on the actor.
func (e *Engine) addReaction(msg model.ReactionMessage) {
	r := Reaction{ID: uuid.New(), Emoji: msg.Emoji, SenderID: msg.SenderID, ReceivedAt: e.now()}
	e.reactions = append(e.reactions, r)
	e.record(model.NewParticipantActivity(msg.SenderID, model.ActivitySentReaction, msg.Emoji, r.ReceivedAt))

	e.timers[r.ID] = time.AfterFunc(e.cfg.ReactionDisplayDuration, func() {
		e.post(func() { e.expireReaction(r.ID) })
	})
}

func (e *Engine) expireReaction(id uuid.UUID) {
	if _, ok := e.timers[id]; !ok {
		return
	}
	delete(e.timers, id)
	for i, r := range e.reactions {
		if r.ID == id {
			e.reactions = append(e.reactions[:i], e.reactions[i+1:]...)
			return
		}
	}
}

// appendChat adds msg, keeping at most ChatHistoryLimit messages. Runs on the actor.
func (e *Engine) appendChat(msg model.ChatMessage) {
	e.chat = append(e.chat, msg)
	if limit := e.cfg.ChatHistoryLimit; limit > 0 && len(e.chat) > limit {
		e.chat = append([]model.ChatMessage(nil), e.chat[len(e.chat)-limit:]...)
	}
}

// recordAction logs an applied playback action. Runs on the actor.
func (e *Engine) recordAction(participantID string, action model.PlaybackAction) {
	kind, details, ok := model.ActivityForAction(action)
	if !ok {
		return
	}
	e.record(model.NewParticipantActivity(participantID, kind, details, e.now()))
}

// record keeps at most ChatHistoryLimit activity entries. Runs on the actor.
func (e *Engine) record(entry model.ParticipantActivity) {
	e.activity = model.AppendActivity(e.activity, entry, e.cfg.ChatHistoryLimit)
}
