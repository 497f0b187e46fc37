package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"watch-party-sync/pkg/model"
	"watch-party-sync/pkg/redis"
	"watch-party-sync/pkg/transport"

	redislib "github.com/redis/go-redis/v9"
)

const rosterTTL = 24 * time.Hour

// FrameEvent is a frame on its way to every relay instance serving the session.
// Origin is the connection that produced it and never receives it back.
type FrameEvent struct {
	SessionID string          `json:"session_id"`
	Origin    string          `json:"origin,omitempty"`
	Frame     transport.Frame `json:"frame"`
}

// SessionRepository keeps relay session rosters and frame fan-out in Redis
type SessionRepository interface {
	// roster operations
	AddParticipant(ctx context.Context, sessionID string, participant model.Participant) error
	RemoveParticipant(ctx context.Context, sessionID, participantID string) error
	HasParticipant(ctx context.Context, sessionID, participantID string) (bool, error)
	GetParticipants(ctx context.Context, sessionID string) ([]model.Participant, error)
	CountParticipants(ctx context.Context, sessionID string) (int, error)
	ClearSession(ctx context.Context, sessionID string) error

	// frame operations
	PublishFrame(ctx context.Context, event *FrameEvent) error
	SubscribeFrames(ctx context.Context) (*redislib.PubSub, error)
	DecodeFrame(msg *redislib.Message) (*FrameEvent, error)
}

type sessionRepository struct {
	redis *redis.Client
}

// NewSessionRepository creates a new session repository instance
func NewSessionRepository(redisClient *redis.Client) SessionRepository {
	return &sessionRepository{
		redis: redisClient,
	}
}

// Redis key helpers
func (r *sessionRepository) participantsKey(sessionID string) string {
	return fmt.Sprintf("watch-party:session:%s:participants", sessionID)
}

func (r *sessionRepository) framesChannel(sessionID string) string {
	return fmt.Sprintf("watch-party:session:%s:frames", sessionID)
}

func (r *sessionRepository) framesPattern() string {
	return "watch-party:session:*:frames"
}

// AddParticipant stores a roster entry and refreshes the roster expiry
func (r *sessionRepository) AddParticipant(ctx context.Context, sessionID string, participant model.Participant) error {
	key := r.participantsKey(sessionID)

	if err := r.redis.HSet(ctx, key, participant.ID, participant); err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}

	if err := r.redis.Expire(ctx, key, rosterTTL); err != nil {
		return fmt.Errorf("failed to set roster expiration: %w", err)
	}

	return nil
}

// RemoveParticipant deletes a roster entry
func (r *sessionRepository) RemoveParticipant(ctx context.Context, sessionID, participantID string) error {
	if err := r.redis.HDel(ctx, r.participantsKey(sessionID), participantID); err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	return nil
}

// HasParticipant reports whether participantID is on the roster
func (r *sessionRepository) HasParticipant(ctx context.Context, sessionID, participantID string) (bool, error) {
	_, err := r.redis.HGet(ctx, r.participantsKey(sessionID), participantID)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetParticipants returns the roster ordered by join time
func (r *sessionRepository) GetParticipants(ctx context.Context, sessionID string) ([]model.Participant, error) {
	data, err := r.redis.HGetAll(ctx, r.participantsKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}

	var roster model.ParticipantList
	for _, raw := range data {
		var p model.Participant
		if err := p.UnmarshalBinary([]byte(raw)); err != nil {
			continue // skip invalid entries
		}
		roster.Add(p)
	}

	return roster.All(), nil
}

// CountParticipants returns the roster size
func (r *sessionRepository) CountParticipants(ctx context.Context, sessionID string) (int, error) {
	n, err := r.redis.HLen(ctx, r.participantsKey(sessionID))
	if err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return int(n), nil
}

// ClearSession forgets the whole roster
func (r *sessionRepository) ClearSession(ctx context.Context, sessionID string) error {
	if err := r.redis.Delete(ctx, r.participantsKey(sessionID)); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// PublishFrame sends a frame to every relay instance
func (r *sessionRepository) PublishFrame(ctx context.Context, event *FrameEvent) error {
	if err := r.redis.Publish(ctx, r.framesChannel(event.SessionID), event); err != nil {
		return fmt.Errorf("failed to publish frame: %w", err)
	}
	return nil
}

// SubscribeFrames subscribes to the frames of every session and waits until the
// subscription is confirmed, so nothing published afterwards is missed.
func (r *sessionRepository) SubscribeFrames(ctx context.Context) (*redislib.PubSub, error) {
	pubsub := r.redis.PSubscribe(ctx, r.framesPattern())
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to frames: %w", err)
	}
	return pubsub, nil
}

// DecodeFrame parses a pub/sub message published by PublishFrame
func (r *sessionRepository) DecodeFrame(msg *redislib.Message) (*FrameEvent, error) {
	var event FrameEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal frame event: %w", err)
	}
	if event.SessionID == "" {
		event.SessionID = sessionFromChannel(msg.Channel)
	}
	return &event, nil
}

func sessionFromChannel(channel string) string {
	id := strings.TrimPrefix(channel, "watch-party:session:")
	return strings.TrimSuffix(id, ":frames")
}
