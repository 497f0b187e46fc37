// Package session tracks the lifecycle of the peer group: activation, joining,
// roster changes and teardown. It never touches playback state directly; it tells
// the engine when to start over and when to stop.
package session

import (
	"fmt"

	"watch-party-sync/pkg/model"
)

// EventKind is an input of the lifecycle state machine
type EventKind string

const (
	EventOfferedPreferred EventKind = "offered_preferred"
	EventOfferedDisabled  EventKind = "offered_disabled"
	EventJoined           EventKind = "joined"
	EventRosterChanged    EventKind = "roster_changed"
	EventInvalidated      EventKind = "invalidated"
	EventUserEnded        EventKind = "user_ended"
)

// Event drives a transition. Participants is the roster size for joined and
// roster_changed events.
type Event struct {
	Kind         EventKind
	Participants int
}

// Effect is a side effect the manager performs after a transition
type Effect string

const (
	EffectLoadLocal    Effect = "load_local"
	EffectUpdateRoster Effect = "update_roster"
	EffectResetEngine  Effect = "reset_engine"
	EffectLeave        Effect = "leave"
	EffectCleanup      Effect = "cleanup"
)

// Transition returns the state that follows from on ev and the effects to run, in
// order. Events that make no sense in the current phase yield ErrIllegalTransition.
func Transition(from model.SessionState, ev Event) (model.SessionState, []Effect, error) {
	switch ev.Kind {
	case EventOfferedPreferred:
		if from.Phase == model.PhaseIdle {
			return model.SessionState{Phase: model.PhaseWaitingForActivation}, nil, nil
		}
	case EventOfferedDisabled:
		if from.Phase == model.PhaseIdle {
			return model.SessionState{Phase: model.PhaseLocalOnly}, []Effect{EffectLoadLocal}, nil
		}
	case EventJoined:
		if from.Phase == model.PhaseWaitingForActivation {
			return model.Active(ev.Participants), []Effect{EffectUpdateRoster, EffectResetEngine}, nil
		}
	case EventRosterChanged:
		switch from.Phase {
		case model.PhaseActive:
			return model.Active(ev.Participants), []Effect{EffectUpdateRoster}, nil
		case model.PhaseWaitingForActivation:
			return from, []Effect{EffectUpdateRoster}, nil
		}
	case EventInvalidated:
		switch from.Phase {
		case model.PhaseActive, model.PhaseWaitingForActivation, model.PhaseLocalOnly:
			return model.IdleSession, []Effect{EffectCleanup}, nil
		}
	case EventUserEnded:
		switch from.Phase {
		case model.PhaseActive, model.PhaseWaitingForActivation:
			return model.IdleSession, []Effect{EffectLeave, EffectCleanup}, nil
		case model.PhaseLocalOnly:
			return model.IdleSession, []Effect{EffectCleanup}, nil
		}
	}
	return from, nil, fmt.Errorf("%w: %s in %s", model.ErrIllegalTransition, ev.Kind, from.Phase)
}
