package engine

import (
	"context"
	"encoding/json"
	"sync"

	"watch-party-sync/pkg/model"
	"watch-party-sync/pkg/transport"
)

// fakeSession records everything the engine sends and lets tests inject messages
type fakeSession struct {
	id      string
	sendErr error

	mu         sync.Mutex
	sent       map[transport.Channel][]interface{}
	messengers map[transport.Channel]*fakeMessenger
	left       bool
}

func newFakeSession(id string, sendErr error) *fakeSession {
	return &fakeSession{
		id:         id,
		sendErr:    sendErr,
		sent:       make(map[transport.Channel][]interface{}),
		messengers: make(map[transport.Channel]*fakeMessenger),
	}
}

func (s *fakeSession) ID() string                            { return s.id }
func (s *fakeSession) Activity() model.Activity              { return activity }
func (s *fakeSession) LocalParticipant() model.Participant   { return model.Participant{ID: "alice"} }
func (s *fakeSession) Join(context.Context) error            { return nil }
func (s *fakeSession) End(context.Context) error             { return nil }
func (s *fakeSession) Events() <-chan transport.SessionEvent { return nil }

func (s *fakeSession) Leave() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = true
	return nil
}

func (s *fakeSession) Messenger(channel transport.Channel) (transport.Messenger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &fakeMessenger{session: s, channel: channel, in: make(chan transport.Envelope, 16)}
	s.messengers[channel] = m
	return m, nil
}

func (s *fakeSession) hasLeft() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.left
}

func (s *fakeSession) openedChannels() []transport.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []transport.Channel
	for c := range s.messengers {
		out = append(out, c)
	}
	return out
}

func (s *fakeSession) controlSent() []model.ActionKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kinds []model.ActionKind
	for _, msg := range s.sent[transport.ChannelControl] {
		kinds = append(kinds, msg.(model.ControlMessage).Action.Kind)
	}
	return kinds
}

func (s *fakeSession) lastState() model.StateMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	sent := s.sent[transport.ChannelState]
	if len(sent) == 0 {
		return model.StateMessage{}
	}
	return sent[len(sent)-1].(model.StateMessage)
}

func (s *fakeSession) deliver(channel transport.Channel, sender string, msg interface{}) {
	payload, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	s.deliverRaw(channel, sender, payload)
}

func (s *fakeSession) deliverRaw(channel transport.Channel, sender string, payload []byte) {
	s.mu.Lock()
	m := s.messengers[channel]
	s.mu.Unlock()
	m.in <- transport.Envelope{SenderID: sender, Payload: payload}
}

type fakeMessenger struct {
	session   *fakeSession
	channel   transport.Channel
	in        chan transport.Envelope
	closeOnce sync.Once
}

func (m *fakeMessenger) Send(_ context.Context, msg interface{}) error {
	m.session.mu.Lock()
	defer m.session.mu.Unlock()
	m.session.sent[m.channel] = append(m.session.sent[m.channel], msg)
	return m.session.sendErr
}

func (m *fakeMessenger) Receive() <-chan transport.Envelope { return m.in }

func (m *fakeMessenger) Close() error {
	m.closeOnce.Do(func() { close(m.in) })
	return nil
}
