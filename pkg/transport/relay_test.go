package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"watch-party-sync/pkg/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelay admits every connection, echoes message frames stamped with the
// token as sender id and answers an end frame with an invalidation.
func fakeRelay(t *testing.T, full bool) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/sessions/room/tokens", func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(TokenResponse{Token: req.ParticipantID, ExpiresAt: time.Now().Add(time.Hour)})
	})

	mux.HandleFunc("/ws/sessions/room", func(w http.ResponseWriter, r *http.Request) {
		if full {
			http.Error(w, "participant limit reached", http.StatusForbidden)
			return
		}
		sender := r.URL.Query().Get("token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		roster := []model.Participant{{ID: sender, DisplayName: sender}}
		conn.WriteJSON(Frame{Type: FrameJoined, SessionID: "room", Participants: roster})

		for {
			var frame Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			switch frame.Type {
			case FrameMessage:
				frame.SenderID = sender
				conn.WriteJSON(frame)
			case FrameEnd:
				conn.WriteJSON(Frame{Type: FrameInvalidated, Reason: "ended"})
				return
			}
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func activateRelay(t *testing.T, srv *httptest.Server) GroupSession {
	t.Helper()
	local := model.NewParticipant("alice", "Alice", time.Now())
	act := NewRelayActivator(srv.URL+"/", "room", local, "")

	result, session, err := act.Activate(context.Background(), testActivity)
	require.NoError(t, err)
	require.Equal(t, model.ActivationPreferred, result)
	return session
}

func TestRelaySession_RoundTrip(t *testing.T) {
	srv := fakeRelay(t, false)
	session := activateRelay(t, srv)

	require.NoError(t, session.Join(context.Background()))
	joined := nextEvent(t, session.Events())
	assert.Equal(t, EventJoined, joined.Kind)
	require.Len(t, joined.Participants, 1)
	assert.Equal(t, "alice", joined.Participants[0].ID)

	control, err := session.Messenger(ChannelControl)
	require.NoError(t, err)
	require.NoError(t, control.Send(context.Background(), model.ControlMessage{Action: model.SeekTo(120), SenderID: "alice"}))

	env := nextEnvelope(t, control.Receive())
	assert.Equal(t, "alice", env.SenderID)
	var msg model.ControlMessage
	require.NoError(t, env.Decode(&msg))
	assert.Equal(t, model.ActionSeek, msg.Action.Kind)
	assert.Equal(t, 120.0, msg.Action.Time)

	require.NoError(t, session.End(context.Background()))
	ev := nextEvent(t, session.Events())
	assert.Equal(t, EventInvalidated, ev.Kind)
	assert.Equal(t, "ended", ev.Reason)
	requireClosed(t, session.Events())
	requireClosed(t, control.Receive())
}

func TestRelaySession_Leave(t *testing.T) {
	srv := fakeRelay(t, false)
	session := activateRelay(t, srv)
	require.NoError(t, session.Join(context.Background()))
	nextEvent(t, session.Events())

	require.NoError(t, session.Leave())
	for ev := range session.Events() {
		assert.NotEqual(t, EventInvalidated, ev.Kind)
	}
	_, err := session.Messenger(ChannelChat)
	assert.ErrorIs(t, err, ErrSessionInvalidated)
}

func TestRelaySession_ParticipantLimit(t *testing.T) {
	srv := fakeRelay(t, true)
	session := activateRelay(t, srv)
	assert.ErrorIs(t, session.Join(context.Background()), model.ErrParticipantLimitReached)
}

func TestRelaySession_SendBeforeJoin(t *testing.T) {
	s := NewRelaySession("ws://127.0.0.1:1/ws/sessions/room", "room", testActivity, model.Participant{ID: "alice"}, nil)
	m, err := s.Messenger(ChannelControl)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Send(context.Background(), model.Play()), ErrNotJoined)
}

func TestRelayActivator_SocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{base: "http://relay:8081", want: "ws://relay:8081/ws/sessions/room?token=t"},
		{base: "https://relay.example.com/", want: "wss://relay.example.com/ws/sessions/room?token=t"},
		{base: "https://relay.example.com/sync", want: "wss://relay.example.com/sync/ws/sessions/room?token=t"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			a := NewRelayActivator(tt.base, "room", model.Participant{ID: "alice"}, "t")
			got, err := a.socketURL("t")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.False(t, strings.HasSuffix(a.BaseURL, "/"))
		})
	}
}
