package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"watch-party-sync/pkg/model"
)

type sendFunc func(ctx context.Context, channel Channel, payload json.RawMessage) error

// messenger is the Messenger shared by every GroupSession implementation
type messenger struct {
	channel Channel
	in      *inbox
	send    sendFunc
	closed  atomic.Bool
}

func (m *messenger) Send(ctx context.Context, message interface{}) error {
	if m.closed.Load() {
		return ErrMessengerClosed
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", m.channel, err)
	}
	return m.send(ctx, m.channel, payload)
}

func (m *messenger) Receive() <-chan Envelope {
	return m.in.ch
}

func (m *messenger) Close() error {
	m.closed.Store(true)
	m.in.close()
	return nil
}

// sessionBase holds what every GroupSession shares: identity, messengers and the event stream
type sessionBase struct {
	id       string
	activity model.Activity
	local    model.Participant
	send     sendFunc

	mu         sync.Mutex
	messengers map[Channel]*messenger
	gone       bool

	events     chan SessionEvent
	eventsMu   sync.RWMutex
	eventsDone chan struct{}
	stopOnce   sync.Once
}

func newSessionBase(id string, activity model.Activity, local model.Participant) *sessionBase {
	return &sessionBase{
		id:         id,
		activity:   activity,
		local:      local,
		messengers: make(map[Channel]*messenger),
		events:     make(chan SessionEvent, 16),
		eventsDone: make(chan struct{}),
	}
}

func (b *sessionBase) ID() string                          { return b.id }
func (b *sessionBase) Activity() model.Activity            { return b.activity }
func (b *sessionBase) LocalParticipant() model.Participant { return b.local }
func (b *sessionBase) Events() <-chan SessionEvent         { return b.events }

// Messenger returns the open messenger for channel, creating it on first use
func (b *sessionBase) Messenger(channel Channel) (Messenger, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gone {
		return nil, ErrSessionInvalidated
	}
	if m, ok := b.messengers[channel]; ok && !m.closed.Load() {
		return m, nil
	}
	m := &messenger{channel: channel, in: newInbox(channel.Reliable()), send: b.send}
	b.messengers[channel] = m
	return m, nil
}

// dispatch hands an inbound message to the messenger of its channel, if one is open
func (b *sessionBase) dispatch(ctx context.Context, channel Channel, env Envelope) bool {
	b.mu.Lock()
	m, ok := b.messengers[channel]
	b.mu.Unlock()
	if !ok {
		return false
	}
	return m.in.deliver(ctx, env)
}

func (b *sessionBase) emit(ev SessionEvent) {
	b.eventsMu.RLock()
	defer b.eventsMu.RUnlock()
	select {
	case <-b.eventsDone:
		return
	default:
	}
	select {
	case b.events <- ev:
	case <-b.eventsDone:
	}
}

// shutdown closes every messenger and the event stream. A non-empty reason is
// announced as an invalidated event first.
func (b *sessionBase) shutdown(reason string) {
	b.stopOnce.Do(func() {
		if reason != "" {
			select {
			case b.events <- SessionEvent{Kind: EventInvalidated, Reason: reason}:
			default:
			}
		}

		b.mu.Lock()
		b.gone = true
		messengers := b.messengers
		b.messengers = map[Channel]*messenger{}
		b.mu.Unlock()
		for _, m := range messengers {
			m.Close()
		}

		close(b.eventsDone)
		b.eventsMu.Lock()
		close(b.events)
		b.eventsMu.Unlock()
	})
}

func (b *sessionBase) isGone() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gone
}
