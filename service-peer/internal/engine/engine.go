// Package engine owns the authoritative PlaybackState of one peer. Every mutation,
// local or remote, runs on a single actor goroutine, so the state needs no locks.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"watch-party-sync/pkg/config"
	"watch-party-sync/pkg/logger"
	"watch-party-sync/pkg/model"
	"watch-party-sync/pkg/transport"

	"github.com/google/uuid"
)

var (
	ErrInvalidAction   = errors.New("invalid playback action")
	ErrFeatureDisabled = errors.New("feature disabled for this session")
	ErrEmptyMessage    = errors.New("message is empty")
)

const (
	defaultSnapshotWait = 2 * time.Second
	mailboxSize         = 64
)

// StateSink consumes snapshots produced by playback actions. Push is called on the
// actor goroutine and must not block or call back into the engine.
type StateSink interface {
	Push(state model.PlaybackState)
}

// Options configures an Engine
type Options struct {
	LocalID string
	Sync    config.SyncConfig
	// SnapshotWait bounds how long a joining peer waits for a snapshot before it
	// considers its own state authoritative. Defaults to two seconds.
	SnapshotWait time.Duration
	Now          func() time.Time
}

// Reaction is a received or sent emoji, shown until it expires
type Reaction struct {
	ID         uuid.UUID `json:"id"`
	Emoji      string    `json:"emoji"`
	SenderID   string    `json:"sender_id"`
	ReceivedAt time.Time `json:"received_at"`
}

// Engine is the synchronization engine of one peer
type Engine struct {
	localID      string
	cfg          config.SyncConfig
	snapshotWait time.Duration
	now          func() time.Time
	log          logger.Scoped

	cmds     chan func()
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	published atomic.Pointer[model.PlaybackState]

	// owned by the actor goroutine
	state      model.PlaybackState
	sink       StateSink
	watchers   map[int]chan model.PlaybackState
	nextWatch  int
	generation uint64
	link       *sessionLink
	awaiting   uuid.UUID
	pending    []model.ControlMessage
	reactions  []Reaction
	timers     map[uuid.UUID]*time.Timer
	chat       []model.ChatMessage
	activity   []model.ParticipantActivity
}

// New creates an engine in the idle state and starts its actor
func New(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SnapshotWait <= 0 {
		opts.SnapshotWait = defaultSnapshotWait
	}
	defaults := config.DefaultSyncConfig()
	if opts.Sync.OutboxSize <= 0 {
		opts.Sync.OutboxSize = defaults.OutboxSize
	}
	if opts.Sync.SendTimeout <= 0 {
		opts.Sync.SendTimeout = defaults.SendTimeout
	}
	if opts.Sync.ReactionDisplayDuration <= 0 {
		opts.Sync.ReactionDisplayDuration = defaults.ReactionDisplayDuration
	}

	e := &Engine{
		localID:      opts.LocalID,
		cfg:          opts.Sync,
		snapshotWait: opts.SnapshotWait,
		now:          opts.Now,
		log:          logger.With(logger.FieldComponent, "engine").With(logger.FieldParticipant, opts.LocalID),
		cmds:         make(chan func(), mailboxSize),
		quit:         make(chan struct{}),
		stopped:      make(chan struct{}),
		state:        model.IdlePlaybackState(),
		watchers:     make(map[int]chan model.PlaybackState),
		timers:       make(map[uuid.UUID]*time.Timer),
	}
	idle := e.state
	e.published.Store(&idle)

	go e.loop()
	return e
}

// LocalID returns the participant id this engine stamps local actions with
func (e *Engine) LocalID() string {
	return e.localID
}

func (e *Engine) loop() {
	defer close(e.stopped)
	for {
		select {
		case fn := <-e.cmds:
			fn()
		case <-e.quit:
			if link := e.detach(); link != nil {
				link.close(true)
			}
			e.clearSocial()
			for id, ch := range e.watchers {
				close(ch)
				delete(e.watchers, id)
			}
			return
		}
	}
}

// do runs fn on the actor and waits for it
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case e.cmds <- func() { fn(); close(done) }:
	case <-e.stopped:
		return model.ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-e.stopped:
		select {
		case <-done:
			return nil
		default:
			return model.ErrEngineStopped
		}
	}
}

// post queues fn without waiting. It gives up when the engine stops.
func (e *Engine) post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.quit:
	}
}

// Close ends any session and stops the actor
func (e *Engine) Close() {
	e.stopOnce.Do(func() { close(e.quit) })
	<-e.stopped
}

// State returns the current authoritative snapshot
func (e *Engine) State() model.PlaybackState {
	return *e.published.Load()
}

// SetSink sets the consumer of action-driven snapshots, typically the player adapter
func (e *Engine) SetSink(sink StateSink) {
	err := e.do(context.Background(), func() {
		e.sink = sink
		if sink != nil {
			sink.Push(e.state)
		}
	})
	if err != nil {
		e.log.Debugf("sink not set: %v", err)
	}
}

// Watch streams every state change, including mirrored player time, until ctx is done.
// Slow readers only see the latest snapshot.
func (e *Engine) Watch(ctx context.Context) <-chan model.PlaybackState {
	ch := make(chan model.PlaybackState, 1)
	var id int
	err := e.do(ctx, func() {
		id = e.nextWatch
		e.nextWatch++
		e.watchers[id] = ch
		ch <- e.state
	})
	if err != nil {
		close(ch)
		return ch
	}

	go func() {
		select {
		case <-ctx.Done():
			e.post(func() {
				if w, ok := e.watchers[id]; ok {
					delete(e.watchers, id)
					close(w)
				}
			})
		case <-e.stopped:
		}
	}()
	return ch
}

// ApplyLocalAction applies action locally, then broadcasts it. The returned snapshot is
// authoritative as soon as the call returns; delivery to other peers is best effort.
func (e *Engine) ApplyLocalAction(ctx context.Context, action model.PlaybackAction) (model.PlaybackState, error) {
	var (
		next model.PlaybackState
		ok   bool
	)
	err := e.do(ctx, func() {
		next, ok = e.applyLocal(action)
	})
	if err != nil {
		return model.PlaybackState{}, err
	}
	if !ok {
		return next, ErrInvalidAction
	}
	return next, nil
}

func (e *Engine) applyLocal(action model.PlaybackAction) (model.PlaybackState, bool) {
	next, ok := e.state.Apply(action, e.localID, e.now())
	if !ok {
		e.log.Warnf("rejected local %s action", action.Kind)
		return e.state, false
	}

	// local intent is newer than any snapshot still in flight
	e.stopAwaiting()
	e.commit(next, true)
	e.recordAction(e.localID, action)

	if e.link != nil {
		e.link.enqueue(transport.ChannelControl, model.ControlMessage{Action: action, SenderID: e.localID})
	}
	return next, true
}

// TogglePlayback flips play intent. The broadcast carries an explicit play or pause.
func (e *Engine) TogglePlayback(ctx context.Context) (model.PlaybackState, error) {
	var (
		next model.PlaybackState
		ok   bool
	)
	err := e.do(ctx, func() {
		action := model.Play()
		if e.state.IsPlaying {
			action = model.Pause()
		}
		next, ok = e.applyLocal(action)
	})
	if err != nil {
		return model.PlaybackState{}, err
	}
	if !ok {
		return next, ErrInvalidAction
	}
	return next, nil
}

// Play is shorthand for ApplyLocalAction(ctx, model.Play())
func (e *Engine) Play(ctx context.Context) (model.PlaybackState, error) {
	return e.ApplyLocalAction(ctx, model.Play())
}

// Pause is shorthand for ApplyLocalAction(ctx, model.Pause())
func (e *Engine) Pause(ctx context.Context) (model.PlaybackState, error) {
	return e.ApplyLocalAction(ctx, model.Pause())
}

// Seek moves the shared position to t seconds
func (e *Engine) Seek(ctx context.Context, t float64) (model.PlaybackState, error) {
	return e.ApplyLocalAction(ctx, model.SeekTo(t))
}

// SetRate changes the shared playback rate
func (e *Engine) SetRate(ctx context.Context, rate float64) (model.PlaybackState, error) {
	return e.ApplyLocalAction(ctx, model.SetRate(rate))
}

// ChangeVideo switches every peer to video
func (e *Engine) ChangeVideo(ctx context.Context, video model.Video) (model.PlaybackState, error) {
	if err := video.Validate(); err != nil {
		return model.PlaybackState{}, err
	}
	return e.ApplyLocalAction(ctx, model.Load(video))
}

// HandleRemoteControlMessage merges a control message received from the channel.
// Messages from the local participant are discarded.
func (e *Engine) HandleRemoteControlMessage(ctx context.Context, msg model.ControlMessage) error {
	return e.do(ctx, func() { e.handleControl(msg) })
}

func (e *Engine) handleControl(msg model.ControlMessage) {
	if msg.SenderID == e.localID {
		return
	}
	if msg.SenderID == "" {
		e.log.Debugf("ignoring %s action without sender", msg.Action.Kind)
		return
	}

	next, ok := e.state.Apply(msg.Action, msg.SenderID, e.now())
	if !ok {
		e.log.Warnf("ignoring malformed %q action from %s", msg.Action.Kind, msg.SenderID)
		return
	}
	e.commit(next, true)
	e.recordAction(msg.SenderID, msg.Action)

	// replayed on top of the snapshot if one arrives
	if e.awaiting != uuid.Nil {
		e.pending = append(e.pending, msg)
	}
}

// MirrorCurrentTime records the position reported by the local player. It never
// broadcasts and never reaches the sink. Updates are dropped while the actor is busy.
func (e *Engine) MirrorCurrentTime(t float64) {
	fn := func() {
		if e.state.IsIdle() {
			return
		}
		e.commit(e.state.WithCurrentTime(t, e.now()), false)
	}
	select {
	case e.cmds <- fn:
	default:
	}
}

// ResetForNewSession starts over with video. With a non-nil session it opens the
// session's channels, starts receiving and asks the other peers for their state.
// A nil session resets for local-only playback.
func (e *Engine) ResetForNewSession(ctx context.Context, video model.Video, session transport.GroupSession) error {
	var (
		old    *sessionLink
		result error
	)
	err := e.do(ctx, func() {
		old = e.detach()
		e.clearSocial()
		e.generation++
		e.stopAwaiting()

		e.commit(model.IdlePlaybackState().WithVideo(video, e.localID, e.now()), true)

		if session == nil {
			return
		}

		link, err := e.attach(session)
		if err != nil {
			result = err
			return
		}
		e.link = link
		e.requestSnapshot()
	})
	if old != nil {
		old.close(old.session != session)
	}
	if err != nil {
		return err
	}
	return result
}

// LoadLocal loads video for local-only playback
func (e *Engine) LoadLocal(ctx context.Context, video model.Video) error {
	return e.ResetForNewSession(ctx, video, nil)
}

// EndSession stops receiving, leaves the group and returns to the idle state.
// Nothing further is broadcast. Calling it without a session is a no-op reset.
func (e *Engine) EndSession(ctx context.Context) error {
	var old *sessionLink
	err := e.do(ctx, func() {
		old = e.detach()
		e.clearSocial()
		e.generation++
		e.stopAwaiting()
		e.commit(model.IdlePlaybackState(), true)
	})
	if old != nil {
		old.close(true)
	}
	return err
}

// SessionID returns the id of the attached group session, empty when local only
func (e *Engine) SessionID(ctx context.Context) string {
	var id string
	err := e.do(ctx, func() {
		if e.link != nil {
			id = e.link.session.ID()
		}
	})
	if err != nil {
		e.log.Debugf("session id unavailable: %v", err)
	}
	return id
}

// commit replaces the state wholesale and notifies observers. Action-driven
// snapshots also reach the sink.
func (e *Engine) commit(next model.PlaybackState, toSink bool) {
	e.state = next
	snapshot := next
	e.published.Store(&snapshot)

	for _, ch := range e.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
	if toSink && e.sink != nil {
		e.sink.Push(next)
	}
}

// detach forgets the current link and invalidates its receive loops
func (e *Engine) detach() *sessionLink {
	link := e.link
	e.link = nil
	if link != nil {
		link.cancel()
	}
	return link
}

func (e *Engine) clearSocial() {
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
	e.reactions = nil
	e.chat = nil
	e.activity = nil
}
