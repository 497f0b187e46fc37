package transport

import (
	"context"
	"testing"
	"time"

	"watch-party-sync/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testVideo    = model.Video{ID: "v1", Title: "Big Buck Bunny", URL: "https://cdn.example.com/bbb.mp4"}
	testActivity = model.NewActivity(testVideo)
)

func nextEvent(t *testing.T, events <-chan SessionEvent) SessionEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no session event")
		return SessionEvent{}
	}
}

func nextEnvelope(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env, ok := <-ch:
		require.True(t, ok, "receive channel closed")
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return Envelope{}
	}
}

func requireClosed[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed")
		}
	}
}

func joinMemory(t *testing.T, hub *MemoryHub, id string) *MemorySession {
	t.Helper()
	s := hub.Session("room", testActivity, model.NewParticipant(id, id, time.Now()))
	require.NoError(t, s.Join(context.Background()))
	ev := nextEvent(t, s.Events())
	require.Equal(t, EventJoined, ev.Kind)
	return s
}

func TestMemoryHub_BroadcastEchoesToSender(t *testing.T) {
	hub := NewMemoryHub()
	a := joinMemory(t, hub, "alice")
	b := joinMemory(t, hub, "bob")

	ma, err := a.Messenger(ChannelControl)
	require.NoError(t, err)
	mb, err := b.Messenger(ChannelControl)
	require.NoError(t, err)

	msg := model.ControlMessage{Action: model.Play(), SenderID: "alice"}
	require.NoError(t, ma.Send(context.Background(), msg))

	for _, ch := range []<-chan Envelope{ma.Receive(), mb.Receive()} {
		env := nextEnvelope(t, ch)
		assert.Equal(t, "alice", env.SenderID)
		var got model.ControlMessage
		require.NoError(t, env.Decode(&got))
		assert.Equal(t, msg, got)
	}
}

func TestMemoryHub_RosterEvents(t *testing.T) {
	hub := NewMemoryHub()
	a := joinMemory(t, hub, "alice")

	b := hub.Session("room", testActivity, model.NewParticipant("bob", "Bob", time.Now()))
	require.NoError(t, b.Join(context.Background()))

	joined := nextEvent(t, b.Events())
	assert.Equal(t, EventJoined, joined.Kind)
	assert.Len(t, joined.Participants, 2)

	changed := nextEvent(t, a.Events())
	assert.Equal(t, EventRosterChanged, changed.Kind)
	assert.Len(t, changed.Participants, 2)

	require.NoError(t, b.Leave())
	requireClosed(t, b.Events())

	changed = nextEvent(t, a.Events())
	require.Len(t, changed.Participants, 1)
	assert.Equal(t, "alice", changed.Participants[0].ID)
	assert.Len(t, hub.Members("room"), 1)
}

func TestMemoryHub_EndInvalidatesEveryone(t *testing.T) {
	hub := NewMemoryHub()
	a := joinMemory(t, hub, "alice")
	b := joinMemory(t, hub, "bob")
	nextEvent(t, a.Events()) // bob joined

	mb, err := b.Messenger(ChannelChat)
	require.NoError(t, err)

	require.NoError(t, a.End(context.Background()))

	for _, s := range []*MemorySession{a, b} {
		ev := nextEvent(t, s.Events())
		assert.Equal(t, EventInvalidated, ev.Kind)
		assert.Equal(t, "ended", ev.Reason)
		requireClosed(t, s.Events())
	}
	requireClosed(t, mb.Receive())
	assert.ErrorIs(t, mb.Send(context.Background(), "hi"), ErrMessengerClosed)
	assert.Empty(t, hub.Members("room"))

	_, err = b.Messenger(ChannelChat)
	assert.ErrorIs(t, err, ErrSessionInvalidated)
}

func TestMemorySession_SendBeforeJoin(t *testing.T) {
	hub := NewMemoryHub()
	s := hub.Session("room", testActivity, model.NewParticipant("alice", "", time.Now()))

	m, err := s.Messenger(ChannelControl)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Send(context.Background(), model.Pause()), ErrNotJoined)
	assert.ErrorIs(t, s.End(context.Background()), ErrNotJoined)
}

func TestMemoryHub_UnreliableChannelDrops(t *testing.T) {
	hub := NewMemoryHub()
	a := joinMemory(t, hub, "alice")
	b := joinMemory(t, hub, "bob")

	ma, err := a.Messenger(ChannelReaction)
	require.NoError(t, err)
	mb, err := b.Messenger(ChannelReaction)
	require.NoError(t, err)

	for i := 0; i < inboxSize+10; i++ {
		require.NoError(t, ma.Send(context.Background(), model.ReactionMessage{Emoji: "🎉", SenderID: "alice"}))
	}
	assert.Len(t, mb.Receive(), inboxSize)
	assert.Len(t, ma.Receive(), inboxSize)
}

func TestMemoryActivator(t *testing.T) {
	hub := NewMemoryHub()
	local := model.NewParticipant("alice", "Alice", time.Now())

	act := hub.Activator("room", local)
	result, session, err := act.Activate(context.Background(), testActivity)
	require.NoError(t, err)
	assert.Equal(t, model.ActivationPreferred, result)
	require.NotNil(t, session)
	assert.Equal(t, "room", session.ID())
	assert.Equal(t, testActivity, session.Activity())

	act.Result = model.ActivationDisabled
	result, session, err = act.Activate(context.Background(), testActivity)
	require.NoError(t, err)
	assert.Equal(t, model.ActivationDisabled, result)
	assert.Nil(t, session)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, _, _ = act.Activate(ctx, testActivity)
	assert.Equal(t, model.ActivationCancelled, result)

	result, session, err = LocalActivator{}.Activate(context.Background(), testActivity)
	require.NoError(t, err)
	assert.Equal(t, model.ActivationDisabled, result)
	assert.Nil(t, session)
}
