package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"watch-party-sync/pkg/logger"
	"watch-party-sync/pkg/model"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	joinWait       = 10 * time.Second
	maxFrameSize   = 64 * 1024
	outboundBuffer = 256
)

// TokenResponse is the relay's answer to a token request
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenRequest asks the relay to admit a participant
type TokenRequest struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
}

// RelayActivator offers group sessions hosted by a service-sync relay
type RelayActivator struct {
	BaseURL    string // http(s)://host:port of the relay
	SessionID  string
	Local      model.Participant
	Token      string // requested from the relay when empty
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// NewRelayActivator creates an activator for sessionID on the relay at baseURL
func NewRelayActivator(baseURL, sessionID string, local model.Participant, token string) *RelayActivator {
	return &RelayActivator{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		SessionID:  sessionID,
		Local:      local,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Dialer:     websocket.DefaultDialer,
	}
}

// Activate obtains an admission token and returns an unjoined relay session
func (a *RelayActivator) Activate(ctx context.Context, activity model.Activity) (model.ActivationResult, GroupSession, error) {
	if ctx.Err() != nil {
		return model.ActivationCancelled, nil, nil
	}

	token := a.Token
	if token == "" {
		var err error
		token, err = a.requestToken(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return model.ActivationCancelled, nil, nil
			}
			return model.ActivationDisabled, nil, err
		}
	}

	wsURL, err := a.socketURL(token)
	if err != nil {
		return model.ActivationDisabled, nil, err
	}

	return model.ActivationPreferred, NewRelaySession(wsURL, a.SessionID, activity, a.Local, a.Dialer), nil
}

func (a *RelayActivator) requestToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(TokenRequest{ParticipantID: a.Local.ID, DisplayName: a.Local.DisplayName})
	if err != nil {
		return "", fmt.Errorf("failed to encode token request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/sessions/%s/tokens", a.BaseURL, url.PathEscape(a.SessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request peer token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relay refused peer token: %s", resp.Status)
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode peer token: %w", err)
	}
	if tr.Token == "" {
		return "", errors.New("relay returned an empty peer token")
	}
	return tr.Token, nil
}

func (a *RelayActivator) socketURL(token string) (string, error) {
	u, err := url.Parse(a.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid relay url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/sessions/" + url.PathEscape(a.SessionID)
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// RelaySession is a GroupSession whose peers meet on a relay over WebSocket
type RelaySession struct {
	*sessionBase
	url    string
	dialer *websocket.Dialer
	log    logger.Scoped

	connMu   sync.Mutex
	conn     *websocket.Conn
	outbound chan []byte
	done     chan struct{}
	doneOnce sync.Once
	leaving  bool
}

// NewRelaySession creates an unjoined session that will dial wsURL
func NewRelaySession(wsURL, sessionID string, activity model.Activity, local model.Participant, dialer *websocket.Dialer) *RelaySession {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	s := &RelaySession{
		url:      wsURL,
		dialer:   dialer,
		outbound: make(chan []byte, outboundBuffer),
		done:     make(chan struct{}),
		log:      logger.With(logger.FieldComponent, "relay-session").With(logger.FieldSession, sessionID),
	}
	s.sessionBase = newSessionBase(sessionID, activity, local)
	s.sessionBase.send = s.sendMessage
	return s
}

// Join dials the relay and waits for admission
func (s *RelaySession) Join(ctx context.Context) error {
	if s.isGone() {
		return ErrSessionInvalidated
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.connMu.Unlock()
		return nil
	}
	s.connMu.Unlock()

	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			return model.ErrParticipantLimitReached
		}
		return fmt.Errorf("failed to dial relay: %w", err)
	}

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(joinWait))

	var first Frame
	if err := conn.ReadJSON(&first); err != nil {
		conn.Close()
		return fmt.Errorf("failed to read admission frame: %w", err)
	}
	switch first.Type {
	case FrameJoined:
	case FrameInvalidated:
		conn.Close()
		return fmt.Errorf("%w: %s", ErrSessionInvalidated, first.Reason)
	default:
		conn.Close()
		return fmt.Errorf("unexpected admission frame %q", first.Type)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.emit(SessionEvent{Kind: EventJoined, Participants: first.Participants})
	go s.writePump(conn)
	go s.readPump(conn)

	s.log.Infof("joined relay session with %d participants", len(first.Participants))
	return nil
}

// Leave closes the connection. Other peers see a roster change.
func (s *RelaySession) Leave() error {
	s.connMu.Lock()
	s.leaving = true
	s.connMu.Unlock()

	s.stop()
	s.shutdown("")
	return nil
}

// End asks the relay to invalidate the session for every peer
func (s *RelaySession) End(ctx context.Context) error {
	data, err := json.Marshal(Frame{Type: FrameEnd, SessionID: s.id})
	if err != nil {
		return fmt.Errorf("failed to encode end frame: %w", err)
	}
	return s.enqueue(ctx, data, true)
}

func (s *RelaySession) sendMessage(ctx context.Context, channel Channel, payload json.RawMessage) error {
	data, err := json.Marshal(Frame{Type: FrameMessage, SessionID: s.id, Channel: channel, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return s.enqueue(ctx, data, channel.Reliable())
}

func (s *RelaySession) enqueue(ctx context.Context, data []byte, reliable bool) error {
	s.connMu.Lock()
	joined := s.conn != nil
	s.connMu.Unlock()
	if !joined {
		return ErrNotJoined
	}

	select {
	case <-s.done:
		return ErrSessionInvalidated
	default:
	}

	if !reliable {
		select {
		case s.outbound <- data:
			return nil
		default:
			return ErrChannelFull
		}
	}

	select {
	case s.outbound <- data:
		return nil
	case <-s.done:
		return ErrSessionInvalidated
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RelaySession) stop() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *RelaySession) readPump(conn *websocket.Conn) {
	reason := "connection lost"
	defer func() {
		s.stop()
		s.connMu.Lock()
		leaving := s.leaving
		s.connMu.Unlock()
		if leaving {
			reason = ""
		}
		s.shutdown(reason)
	}()

	ctx := context.Background()
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Errorf(err, "relay connection error")
			}
			return
		}

		switch frame.Type {
		case FrameMessage:
			if !s.dispatch(ctx, frame.Channel, Envelope{SenderID: frame.SenderID, Payload: frame.Payload}) {
				s.log.Debugf("dropped %s message from %s", frame.Channel, frame.SenderID)
			}
		case FrameRoster:
			s.emit(SessionEvent{Kind: EventRosterChanged, Participants: frame.Participants})
		case FrameInvalidated:
			reason = frame.Reason
			if reason == "" {
				reason = "invalidated"
			}
			return
		default:
			s.log.Warnf("ignoring unknown relay frame %q", frame.Type)
		}
	}
}

func (s *RelaySession) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data := <-s.outbound:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Errorf(err, "failed to write relay frame")
				s.stop()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.stop()
				return
			}
		case <-s.done:
			s.flush(conn)
			return
		}
	}
}

// flush writes frames still queued, e.g. an end frame sent right before Leave, then says goodbye
func (s *RelaySession) flush(conn *websocket.Conn) {
	for {
		select {
		case data := <-s.outbound:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
