package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"watch-party-sync/pkg/logger"
	"watch-party-sync/pkg/model"
	"watch-party-sync/pkg/transport"
)

var ErrNoSession = errors.New("activator returned no group session")

const (
	defaultOpTimeout = 10 * time.Second
	activityLimit    = 200
)

// Engine is the part of the synchronization engine the lifecycle drives
type Engine interface {
	ResetForNewSession(ctx context.Context, video model.Video, session transport.GroupSession) error
	LoadLocal(ctx context.Context, video model.Video) error
	EndSession(ctx context.Context) error
}

// Options configures a Manager
type Options struct {
	Activator transport.Activator
	Engine    Engine
	// OpTimeout bounds engine work triggered by session events. Defaults to ten seconds.
	OpTimeout time.Duration
	Now       func() time.Time
}

// Manager owns the group session and its lifecycle state machine
type Manager struct {
	activator transport.Activator
	engine    Engine
	opTimeout time.Duration
	now       func() time.Time
	log       logger.Scoped

	// mu serializes lifecycle operations, including the engine calls they make
	mu         sync.Mutex
	state      model.SessionState
	session    transport.GroupSession
	engineOwns bool // the engine leaves session when it ends
	video      model.Video
	generation uint64
	cancel     context.CancelFunc

	viewMu    sync.RWMutex
	view      model.SessionState
	roster    model.ParticipantList
	activity  []model.ParticipantActivity
	watchers  map[int]chan model.SessionState
	nextWatch int
}

// NewManager creates a manager in the idle state
func NewManager(opts Options) *Manager {
	if opts.Activator == nil {
		opts.Activator = transport.LocalActivator{}
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		activator: opts.Activator,
		engine:    opts.Engine,
		opTimeout: opts.OpTimeout,
		now:       opts.Now,
		log:       logger.With(logger.FieldComponent, "session"),
		state:     model.IdleSession,
		view:      model.IdleSession,
		watchers:  make(map[int]chan model.SessionState),
	}
}

// StartSharePlay asks the platform for a group session around video. When group
// sessions are unavailable the video plays locally. A running session is ended first.
func (m *Manager) StartSharePlay(ctx context.Context, video model.Video) error {
	if err := video.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.state.Phase != model.PhaseIdle {
		if err := m.fire(ctx, Event{Kind: EventUserEnded}, nil); err != nil {
			m.log.Errorf(err, "failed to end previous session")
		}
	}
	m.mu.Unlock()

	result, session, err := m.activator.Activate(ctx, model.NewActivity(video))
	if err != nil {
		m.log.Warnf("activation failed, playing locally: %v", err)
		result, session = model.ActivationDisabled, nil
	}

	switch result {
	case model.ActivationCancelled:
		m.log.Infof("activation cancelled")
		return nil
	case model.ActivationPreferred:
		if session == nil {
			return ErrNoSession
		}
		return m.ConfigureSession(ctx, session)
	default:
		m.mu.Lock()
		defer m.mu.Unlock()
		m.video = video
		return m.fire(ctx, Event{Kind: EventOfferedDisabled}, nil)
	}
}

// ConfigureSession adopts a group session offered by the platform and joins it.
// Any current session is left first.
func (m *Manager) ConfigureSession(ctx context.Context, session transport.GroupSession) error {
	m.mu.Lock()
	if m.state.Phase != model.PhaseIdle {
		if err := m.fire(ctx, Event{Kind: EventUserEnded}, nil); err != nil {
			m.log.Errorf(err, "failed to end previous session")
		}
	}
	if err := m.fire(ctx, Event{Kind: EventOfferedPreferred}, nil); err != nil {
		m.mu.Unlock()
		return err
	}

	m.generation++
	gen := m.generation
	m.session = session
	m.video = session.Activity().Video
	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.watchSession(loopCtx, gen, session)
	m.mu.Unlock()

	m.log.With(logger.FieldSession, session.ID()).Infof("joining group session for %q", session.Activity().Video.Title)
	if err := session.Join(ctx); err != nil {
		m.mu.Lock()
		if m.generation == gen {
			if ferr := m.fire(ctx, Event{Kind: EventInvalidated}, nil); ferr != nil {
				m.log.Errorf(ferr, "failed to clean up after join")
			}
		}
		m.mu.Unlock()
		return fmt.Errorf("failed to join group session: %w", err)
	}
	return nil
}

// EndSession ends the group session for every participant and returns to idle.
// It is a no-op when idle.
func (m *Manager) EndSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == model.PhaseIdle {
		return nil
	}
	if m.state.IsActive() && m.session != nil {
		if err := m.session.End(ctx); err != nil {
			m.log.Warnf("failed to end group session for everyone: %v", err)
		}
	}
	return m.fire(ctx, Event{Kind: EventUserEnded}, nil)
}

// LeaveSession leaves the group session without ending it for the others
func (m *Manager) LeaveSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == model.PhaseIdle {
		return nil
	}
	return m.fire(ctx, Event{Kind: EventUserEnded}, nil)
}

func (m *Manager) watchSession(ctx context.Context, gen uint64, session transport.GroupSession) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-session.Events():
			if !ok {
				m.handleSessionEvent(gen, transport.SessionEvent{Kind: transport.EventInvalidated, Reason: "session closed"})
				return
			}
			m.handleSessionEvent(gen, ev)
			if ev.Kind == transport.EventInvalidated {
				return
			}
		}
	}
}

func (m *Manager) handleSessionEvent(gen uint64, ev transport.SessionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		m.log.Debugf("ignoring %s from a stale session", ev.Kind)
		return
	}

	var kind EventKind
	switch ev.Kind {
	case transport.EventJoined:
		kind = EventJoined
	case transport.EventRosterChanged:
		kind = EventRosterChanged
	case transport.EventInvalidated:
		m.log.Infof("group session invalidated: %s", ev.Reason)
		kind = EventInvalidated
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()

	err := m.fire(ctx, Event{Kind: kind, Participants: len(ev.Participants)}, ev.Participants)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrIllegalTransition):
		m.log.Debugf("%v", err)
	default:
		m.log.Errorf(err, "failed to handle %s", ev.Kind)
		if kind == EventJoined {
			// without channels the session is useless
			if ferr := m.fire(ctx, Event{Kind: EventInvalidated}, nil); ferr != nil {
				m.log.Errorf(ferr, "failed to tear down session")
			}
		}
	}
}

// fire runs a transition and its effects. Callers hold mu.
func (m *Manager) fire(ctx context.Context, ev Event, participants []model.Participant) error {
	next, effects, err := Transition(m.state, ev)
	if err != nil {
		return err
	}
	m.state = next

	var firstErr error
	for _, effect := range effects {
		var err error
		switch effect {
		case EffectLoadLocal:
			err = m.engine.LoadLocal(ctx, m.video)
		case EffectUpdateRoster:
			m.setRoster(participants)
		case EffectResetEngine:
			err = m.engine.ResetForNewSession(ctx, m.video, m.session)
			m.engineOwns = err == nil && m.session != nil
		case EffectLeave:
			// cleanup ends the engine, which leaves the session it holds
			if m.session != nil && !m.engineOwns {
				err = m.session.Leave()
				m.session = nil
			}
		case EffectCleanup:
			err = m.cleanup(ctx)
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", effect, err)
		}
	}

	m.publish(next)
	return firstErr
}

// cleanup stops the event loop, resets the engine and forgets the session and roster
func (m *Manager) cleanup(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.generation++

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opTimeout)
	defer cancel()
	err := m.engine.EndSession(ctx)

	if m.session != nil && !m.engineOwns {
		if lerr := m.session.Leave(); lerr != nil {
			m.log.Warnf("failed to leave group session: %v", lerr)
		}
	}
	m.session = nil
	m.engineOwns = false
	m.setRoster(nil)
	return err
}

func (m *Manager) setRoster(participants []model.Participant) {
	m.viewMu.Lock()
	defer m.viewMu.Unlock()
	if len(participants) == 0 {
		m.roster.Clear()
		m.activity = nil
		return
	}

	now := m.now()
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		seen[p.ID] = true
		if !m.roster.Contains(p.ID) {
			m.activity = model.AppendActivity(m.activity, model.NewParticipantActivity(p.ID, model.ActivityJoined, p.DisplayName, now), activityLimit)
		}
	}
	for _, p := range m.roster.All() {
		if !seen[p.ID] {
			m.activity = model.AppendActivity(m.activity, model.NewParticipantActivity(p.ID, model.ActivityLeft, p.DisplayName, now), activityLimit)
		}
	}
	m.roster.Replace(participants)
}

func (m *Manager) publish(state model.SessionState) {
	m.viewMu.Lock()
	defer m.viewMu.Unlock()
	if state == m.view {
		return
	}
	m.view = state
	for _, ch := range m.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}

// State returns the current lifecycle state
func (m *Manager) State() model.SessionState {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	return m.view
}

// Activities returns who joined and left the current session, oldest first
func (m *Manager) Activities() []model.ParticipantActivity {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	return append([]model.ParticipantActivity(nil), m.activity...)
}

// Participants returns the roster ordered by join time
func (m *Manager) Participants() []model.Participant {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	return m.roster.All()
}

// Watch streams lifecycle state changes until ctx is done, starting with the current one.
// Slow readers only see the latest state.
func (m *Manager) Watch(ctx context.Context) <-chan model.SessionState {
	ch := make(chan model.SessionState, 1)

	m.viewMu.Lock()
	id := m.nextWatch
	m.nextWatch++
	m.watchers[id] = ch
	ch <- m.view
	m.viewMu.Unlock()

	go func() {
		<-ctx.Done()
		m.viewMu.Lock()
		delete(m.watchers, id)
		m.viewMu.Unlock()
		close(ch)
	}()
	return ch
}
