package session

import (
	"testing"

	"watch-party-sync/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	var (
		idle    = model.IdleSession
		waiting = model.SessionState{Phase: model.PhaseWaitingForActivation}
		local   = model.SessionState{Phase: model.PhaseLocalOnly}
	)

	tests := []struct {
		name    string
		from    model.SessionState
		event   Event
		want    model.SessionState
		effects []Effect
	}{
		{name: "offered preferred", from: idle, event: Event{Kind: EventOfferedPreferred}, want: waiting},
		{name: "offered disabled", from: idle, event: Event{Kind: EventOfferedDisabled}, want: local, effects: []Effect{EffectLoadLocal}},
		{name: "joined", from: waiting, event: Event{Kind: EventJoined, Participants: 2}, want: model.Active(2), effects: []Effect{EffectUpdateRoster, EffectResetEngine}},
		{name: "roster grows", from: model.Active(2), event: Event{Kind: EventRosterChanged, Participants: 3}, want: model.Active(3), effects: []Effect{EffectUpdateRoster}},
		{name: "roster while waiting", from: waiting, event: Event{Kind: EventRosterChanged, Participants: 4}, want: waiting, effects: []Effect{EffectUpdateRoster}},
		{name: "invalidated active", from: model.Active(3), event: Event{Kind: EventInvalidated}, want: idle, effects: []Effect{EffectCleanup}},
		{name: "invalidated waiting", from: waiting, event: Event{Kind: EventInvalidated}, want: idle, effects: []Effect{EffectCleanup}},
		{name: "invalidated local", from: local, event: Event{Kind: EventInvalidated}, want: idle, effects: []Effect{EffectCleanup}},
		{name: "user ends active", from: model.Active(2), event: Event{Kind: EventUserEnded}, want: idle, effects: []Effect{EffectLeave, EffectCleanup}},
		{name: "user ends waiting", from: waiting, event: Event{Kind: EventUserEnded}, want: idle, effects: []Effect{EffectLeave, EffectCleanup}},
		{name: "user ends local", from: local, event: Event{Kind: EventUserEnded}, want: idle, effects: []Effect{EffectCleanup}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, effects, err := Transition(tt.from, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.effects, effects)
		})
	}
}

func TestTransition_Illegal(t *testing.T) {
	tests := []struct {
		name  string
		from  model.SessionState
		event EventKind
	}{
		{name: "join while idle", from: model.IdleSession, event: EventJoined},
		{name: "join twice", from: model.Active(2), event: EventJoined},
		{name: "offer while active", from: model.Active(2), event: EventOfferedPreferred},
		{name: "offer while local", from: model.SessionState{Phase: model.PhaseLocalOnly}, event: EventOfferedDisabled},
		{name: "roster while local", from: model.SessionState{Phase: model.PhaseLocalOnly}, event: EventRosterChanged},
		{name: "roster while idle", from: model.IdleSession, event: EventRosterChanged},
		{name: "invalidate idle", from: model.IdleSession, event: EventInvalidated},
		{name: "end idle", from: model.IdleSession, event: EventUserEnded},
		{name: "unknown", from: model.IdleSession, event: "teleport"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, effects, err := Transition(tt.from, Event{Kind: tt.event})
			assert.ErrorIs(t, err, model.ErrIllegalTransition)
			assert.Equal(t, tt.from, got)
			assert.Nil(t, effects)
		})
	}
}
