package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"watch-party-sync/pkg/config"
	"watch-party-sync/pkg/logger"
	"watch-party-sync/pkg/model"
	"watch-party-sync/pkg/transport"
	"watch-party-sync/service-sync/internal/repository"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	redislib "github.com/redis/go-redis/v9"
)

var (
	ErrSessionFull      = errors.New("session participant limit reached")
	ErrInvalidSessionID = errors.New("invalid session id")
)

const (
	maxSessionIDLength = 128
	cleanupTimeout     = 5 * time.Second
	reasonEnded        = "ended"
)

// RelayService fans frames out between the peers of a session
type RelayService interface {
	// Admit checks that participantID may connect to sessionID
	Admit(ctx context.Context, sessionID, participantID string) error
	// HandleConnection serves an admitted peer until its connection closes
	HandleConnection(ctx context.Context, sessionID string, participant model.Participant, conn *websocket.Conn) error
	GetParticipants(ctx context.Context, sessionID string) ([]model.Participant, error)
	// EndSession invalidates sessionID for every connected peer
	EndSession(ctx context.Context, sessionID string) error
	Close() error
}

type relayService struct {
	repo            repository.SessionRepository
	maxParticipants int
	log             logger.Scoped

	connections map[string]map[string]*client
	connMutex   sync.RWMutex

	pubsub    *redislib.PubSub
	done      chan struct{}
	closeOnce sync.Once
}

// NewRelayService creates a relay and subscribes it to the frames of every session
func NewRelayService(repo repository.SessionRepository, cfg config.SyncConfig) (RelayService, error) {
	pubsub, err := repo.SubscribeFrames(context.Background())
	if err != nil {
		return nil, err
	}

	s := &relayService{
		repo:            repo,
		maxParticipants: cfg.MaxParticipants,
		log:             logger.With(logger.FieldComponent, "relay"),
		connections:     make(map[string]map[string]*client),
		pubsub:          pubsub,
		done:            make(chan struct{}),
	}

	go s.handleRedisMessages()

	return s, nil
}

// ValidateSessionID rejects ids that cannot be used in Redis keys and patterns
func ValidateSessionID(sessionID string) error {
	if sessionID == "" || len(sessionID) > maxSessionIDLength {
		return ErrInvalidSessionID
	}
	if strings.ContainsAny(sessionID, ":*?[]/ \t\r\n") {
		return ErrInvalidSessionID
	}
	return nil
}

// Admit allows reconnects of known participants and enforces the participant cap
func (s *relayService) Admit(ctx context.Context, sessionID, participantID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}

	present, err := s.repo.HasParticipant(ctx, sessionID, participantID)
	if err != nil {
		return fmt.Errorf("failed to check roster: %w", err)
	}
	if present || s.maxParticipants <= 0 {
		return nil
	}

	count, err := s.repo.CountParticipants(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to check roster: %w", err)
	}
	if count >= s.maxParticipants {
		return ErrSessionFull
	}
	return nil
}

// GetParticipants returns the roster of sessionID
func (s *relayService) GetParticipants(ctx context.Context, sessionID string) ([]model.Participant, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	return s.repo.GetParticipants(ctx, sessionID)
}

// HandleConnection admits the peer with a joined frame, announces the new roster
// to the others and relays its frames until it disconnects.
func (s *relayService) HandleConnection(ctx context.Context, sessionID string, participant model.Participant, conn *websocket.Conn) error {
	log := s.log.With(logger.FieldSession, sessionID).With(logger.FieldParticipant, participant.ID)
	c := newClient(uuid.NewString(), sessionID, participant, conn)

	if err := s.repo.AddParticipant(ctx, sessionID, participant); err != nil {
		conn.WriteJSON(transport.Frame{Type: transport.FrameInvalidated, SessionID: sessionID, Reason: "relay unavailable"})
		return err
	}

	roster, err := s.repo.GetParticipants(ctx, sessionID)
	if err != nil {
		log.Errorf(err, "failed to load roster")
		roster = []model.Participant{participant}
	}

	// queued before registering so the joined frame is the first one the peer reads
	joined, err := json.Marshal(transport.Frame{Type: transport.FrameJoined, SessionID: sessionID, Participants: roster})
	if err != nil {
		return fmt.Errorf("failed to encode joined frame: %w", err)
	}
	c.enqueue(joined)
	s.addConnection(c)
	go c.writePump()

	log.Infof("%s joined, %d participants", participant.DisplayName, len(roster))
	s.publish(ctx, &repository.FrameEvent{
		SessionID: sessionID,
		Origin:    c.id,
		Frame:     transport.Frame{Type: transport.FrameRoster, SessionID: sessionID, Participants: roster},
	})

	readErr := c.readPump(func(frame transport.Frame) {
		s.handleFrame(ctx, c, frame)
	})
	if readErr != nil {
		log.Errorf(readErr, "websocket error")
	}

	s.disconnect(c)
	log.Infof("%s left", participant.DisplayName)
	return nil
}

func (s *relayService) handleFrame(ctx context.Context, c *client, frame transport.Frame) {
	switch frame.Type {
	case transport.FrameMessage:
		if frame.Channel == "" {
			s.log.Warnf("dropping message without channel from %s", c.participant.ID)
			return
		}
		// the sender is whoever the token admitted, not what the peer claims
		frame.SenderID = c.participant.ID
		frame.SessionID = c.sessionID
		frame.Participants = nil
		s.publish(ctx, &repository.FrameEvent{SessionID: c.sessionID, Origin: c.id, Frame: frame})
	case transport.FrameEnd:
		s.log.With(logger.FieldSession, c.sessionID).Infof("%s ended the session", c.participant.DisplayName)
		if err := s.EndSession(ctx, c.sessionID); err != nil {
			s.log.Errorf(err, "failed to end session")
		}
	default:
		s.log.Warnf("ignoring %q frame from %s", frame.Type, c.participant.ID)
	}
}

// EndSession clears the roster and invalidates every connection of the session
func (s *relayService) EndSession(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	if err := s.repo.ClearSession(ctx, sessionID); err != nil {
		s.log.Errorf(err, "failed to clear roster")
	}
	s.publish(ctx, &repository.FrameEvent{
		SessionID: sessionID,
		Frame:     transport.Frame{Type: transport.FrameInvalidated, SessionID: sessionID, Reason: reasonEnded},
	})
	return nil
}

// disconnect forgets a closed connection and announces the roster change
func (s *relayService) disconnect(c *client) {
	s.removeConnection(c)
	c.close()

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if s.hasLocalParticipant(c.sessionID, c.participant.ID) {
		return
	}
	if err := s.repo.RemoveParticipant(ctx, c.sessionID, c.participant.ID); err != nil {
		s.log.Errorf(err, "failed to remove participant")
		return
	}

	roster, err := s.repo.GetParticipants(ctx, c.sessionID)
	if err != nil {
		s.log.Errorf(err, "failed to load roster")
		return
	}
	if len(roster) == 0 {
		return
	}
	s.publish(ctx, &repository.FrameEvent{
		SessionID: c.sessionID,
		Frame:     transport.Frame{Type: transport.FrameRoster, SessionID: c.sessionID, Participants: roster},
	})
}

// publish sends through Redis and falls back to local delivery when Redis is down
func (s *relayService) publish(ctx context.Context, event *repository.FrameEvent) {
	if err := s.repo.PublishFrame(ctx, event); err != nil {
		s.log.Errorf(err, "failed to publish frame to Redis")
		s.deliver(event)
	}
}

// deliver writes a frame to the local connections of its session except the origin
func (s *relayService) deliver(event *repository.FrameEvent) {
	data, err := json.Marshal(event.Frame)
	if err != nil {
		s.log.Errorf(err, "failed to encode %s frame", event.Frame.Type)
		return
	}

	s.connMutex.RLock()
	targets := make([]*client, 0, len(s.connections[event.SessionID]))
	for id, c := range s.connections[event.SessionID] {
		if id != event.Origin {
			targets = append(targets, c)
		}
	}
	s.connMutex.RUnlock()

	reliable := event.Frame.Type != transport.FrameMessage || event.Frame.Channel.Reliable()
	for _, c := range targets {
		if !c.enqueue(data) {
			if !reliable {
				s.log.Debugf("dropped %s message for slow peer %s", event.Frame.Channel, c.participant.ID)
				continue
			}
			s.log.Warnf("disconnecting slow peer %s", c.participant.ID)
			c.close()
			continue
		}
		if event.Frame.Type == transport.FrameInvalidated {
			c.close()
		}
	}
}

// handleRedisMessages delivers frames published by any relay instance
func (s *relayService) handleRedisMessages() {
	defer close(s.done)

	for msg := range s.pubsub.Channel() {
		event, err := s.repo.DecodeFrame(msg)
		if err != nil {
			s.log.Errorf(err, "failed to decode frame from Redis")
			continue
		}
		s.deliver(event)
	}
}

// Close stops the subscription and disconnects every local peer
func (s *relayService) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.pubsub.Close()
		<-s.done

		s.connMutex.RLock()
		for _, conns := range s.connections {
			for _, c := range conns {
				c.close()
			}
		}
		s.connMutex.RUnlock()
	})
	return err
}

// connection management helpers
func (s *relayService) addConnection(c *client) {
	s.connMutex.Lock()
	defer s.connMutex.Unlock()

	if s.connections[c.sessionID] == nil {
		s.connections[c.sessionID] = make(map[string]*client)
	}
	s.connections[c.sessionID][c.id] = c
}

func (s *relayService) removeConnection(c *client) {
	s.connMutex.Lock()
	defer s.connMutex.Unlock()

	if conns, exists := s.connections[c.sessionID]; exists {
		delete(conns, c.id)
		if len(conns) == 0 {
			delete(s.connections, c.sessionID)
		}
	}
}

func (s *relayService) hasLocalParticipant(sessionID, participantID string) bool {
	s.connMutex.RLock()
	defer s.connMutex.RUnlock()

	for _, c := range s.connections[sessionID] {
		if c.participant.ID == participantID {
			return true
		}
	}
	return false
}
