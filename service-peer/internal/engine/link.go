package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"watch-party-sync/pkg/logger"
	"watch-party-sync/pkg/transport"
)

// sessionLink is the engine's attachment to one group session: a messenger, a
// receive loop and an outbox per channel, all stopped together.
type sessionLink struct {
	generation uint64
	session    transport.GroupSession
	ctx        context.Context
	cancel     context.CancelFunc
	messengers map[transport.Channel]transport.Messenger
	outboxes   map[transport.Channel]chan interface{}
	wg         sync.WaitGroup
	log        logger.Scoped
}

func (e *Engine) channels() []transport.Channel {
	channels := []transport.Channel{transport.ChannelControl, transport.ChannelState}
	if e.cfg.ReactionsEnabled {
		channels = append(channels, transport.ChannelReaction)
	}
	if e.cfg.ChatEnabled {
		channels = append(channels, transport.ChannelChat)
	}
	return channels
}

// attach opens the session's channels and starts their loops. Runs on the actor.
func (e *Engine) attach(session transport.GroupSession) (*sessionLink, error) {
	ctx, cancel := context.WithCancel(context.Background())
	link := &sessionLink{
		generation: e.generation,
		session:    session,
		ctx:        ctx,
		cancel:     cancel,
		messengers: make(map[transport.Channel]transport.Messenger),
		outboxes:   make(map[transport.Channel]chan interface{}),
		log:        e.log.With(logger.FieldSession, session.ID()),
	}

	for _, channel := range e.channels() {
		m, err := session.Messenger(channel)
		if err != nil {
			link.close(false)
			return nil, fmt.Errorf("failed to open %s channel: %w", channel, err)
		}
		link.messengers[channel] = m
		link.outboxes[channel] = make(chan interface{}, e.cfg.OutboxSize)
	}

	for channel, m := range link.messengers {
		link.wg.Add(2)
		go e.receiveLoop(link, channel, m)
		go e.sendLoop(link, channel, m)
	}

	link.log.Infof("attached to group session on %d channels", len(link.messengers))
	return link, nil
}

// enqueue hands msg to the channel's outbox without blocking the actor.
// A full outbox drops the message.
func (l *sessionLink) enqueue(channel transport.Channel, msg interface{}) {
	queue, ok := l.outboxes[channel]
	if !ok {
		return
	}
	select {
	case queue <- msg:
	default:
		l.log.Warnf("%s outbox full, dropping message", channel)
	}
}

// close stops every loop and closes the messengers; leave also leaves the group
func (l *sessionLink) close(leave bool) {
	l.cancel()
	for _, m := range l.messengers {
		m.Close()
	}
	l.wg.Wait()
	if leave {
		if err := l.session.Leave(); err != nil {
			l.log.Errorf(err, "failed to leave group session")
		}
	}
}

// receiveLoop forwards inbound envelopes to the actor, tagged with the link's generation
func (e *Engine) receiveLoop(link *sessionLink, channel transport.Channel, m transport.Messenger) {
	defer link.wg.Done()
	for {
		select {
		case env, ok := <-m.Receive():
			if !ok {
				return
			}
			fn := func() { e.handleEnvelope(link.generation, channel, env) }
			select {
			case e.cmds <- fn:
			case <-link.ctx.Done():
				return
			case <-e.quit:
				return
			}
		case <-link.ctx.Done():
			return
		}
	}
}

// sendLoop drains the outbox in order. Failures are logged and never retried.
func (e *Engine) sendLoop(link *sessionLink, channel transport.Channel, m transport.Messenger) {
	defer link.wg.Done()
	queue := link.outboxes[channel]
	for {
		select {
		case msg := <-queue:
			ctx, cancel := context.WithTimeout(link.ctx, e.cfg.SendTimeout)
			err := m.Send(ctx, msg)
			cancel()
			switch {
			case err == nil:
			case errors.Is(err, transport.ErrChannelFull):
				link.log.Debugf("%s message dropped by transport", channel)
			case link.ctx.Err() != nil:
				return
			default:
				link.log.Errorf(err, "failed to send %s message", channel)
			}
		case <-link.ctx.Done():
			return
		}
	}
}
