package model

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionPhase is the phase of the group session lifecycle
type SessionPhase string

const (
	PhaseIdle                 SessionPhase = "idle"
	PhaseWaitingForActivation SessionPhase = "waiting_for_activation"
	PhaseLocalOnly            SessionPhase = "local_only"
	PhaseActive               SessionPhase = "active"
)

// SessionState is the observable lifecycle state. ParticipantCount is only meaningful while active.
type SessionState struct {
	Phase            SessionPhase `json:"phase"`
	ParticipantCount int          `json:"participant_count,omitempty"`
}

// IdleSession is the state with no group session
var IdleSession = SessionState{Phase: PhaseIdle}

// Active returns the active state for n participants
func Active(n int) SessionState {
	return SessionState{Phase: PhaseActive, ParticipantCount: n}
}

// IsActive reports whether a synchronized session is running
func (s SessionState) IsActive() bool {
	return s.Phase == PhaseActive
}

// Description is a short human readable summary for banners
func (s SessionState) Description() string {
	switch s.Phase {
	case PhaseWaitingForActivation:
		return "waiting for activation..."
	case PhaseLocalOnly:
		return "playing locally"
	case PhaseActive:
		if s.ParticipantCount == 1 {
			return "watching with 1 participant"
		}
		return fmt.Sprintf("watching with %d participants", s.ParticipantCount)
	default:
		return "idle"
	}
}

// Activity describes what a group session is about
type Activity struct {
	ID    uuid.UUID `json:"id"`
	Video Video     `json:"video"`
}

// NewActivity creates an activity for a video
func NewActivity(video Video) Activity {
	return Activity{ID: uuid.New(), Video: video}
}

// ActivationResult is the platform's answer to an activation request
type ActivationResult string

const (
	ActivationPreferred ActivationResult = "preferred"
	ActivationDisabled  ActivationResult = "disabled"
	ActivationCancelled ActivationResult = "cancelled"
)
