package transport

import (
	"context"
	"sync"
)

const inboxSize = 256

// inbox is a receive queue that can be closed while deliveries are in flight
type inbox struct {
	ch       chan Envelope
	reliable bool
	done     chan struct{}
	once     sync.Once
	mu       sync.RWMutex
	closed   bool
}

func newInbox(reliable bool) *inbox {
	return &inbox{
		ch:       make(chan Envelope, inboxSize),
		reliable: reliable,
		done:     make(chan struct{}),
	}
}

// deliver queues env. Reliable inboxes wait for room, unreliable ones drop when full.
func (b *inbox) deliver(ctx context.Context, env Envelope) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}

	if !b.reliable {
		select {
		case b.ch <- env:
			return true
		default:
			return false
		}
	}

	select {
	case b.ch <- env:
		return true
	case <-b.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (b *inbox) close() {
	b.once.Do(func() {
		close(b.done)
		b.mu.Lock()
		b.closed = true
		close(b.ch)
		b.mu.Unlock()
	})
}
