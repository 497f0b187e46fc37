package model

import (
	"sort"
	"time"
)

// ParticipantRole is the role of a participant within a session.
// Roles only affect presentation; every peer has the same authority over playback.
type ParticipantRole string

const (
	RoleHost   ParticipantRole = "host"
	RoleCoHost ParticipantRole = "co_host"
	RoleViewer ParticipantRole = "viewer"
)

// ParticipantStatus is the connection status of a participant
type ParticipantStatus string

const (
	StatusActive       ParticipantStatus = "active"
	StatusAway         ParticipantStatus = "away"
	StatusDisconnected ParticipantStatus = "disconnected"
	StatusBuffering    ParticipantStatus = "buffering"
)

// Participant represents a roster entry
type Participant struct {
	ID           string            `json:"id"`
	DisplayName  string            `json:"display_name"`
	Role         ParticipantRole   `json:"role"`
	Status       ParticipantStatus `json:"status"`
	JoinedAt     time.Time         `json:"joined_at"`
	LastActiveAt time.Time         `json:"last_active_at"`
}

// NewParticipant creates an active viewer joined at now
func NewParticipant(id, displayName string, now time.Time) Participant {
	if displayName == "" {
		displayName = "Anonymous"
	}
	return Participant{
		ID:           id,
		DisplayName:  displayName,
		Role:         RoleViewer,
		Status:       StatusActive,
		JoinedAt:     now,
		LastActiveAt: now,
	}
}

// ParticipantList keeps the roster keyed by participant id.
// The zero value is ready to use; it is not safe for concurrent use.
type ParticipantList struct {
	participants map[string]Participant
}

// Add inserts or replaces a participant
func (l *ParticipantList) Add(p Participant) {
	if l.participants == nil {
		l.participants = make(map[string]Participant)
	}
	l.participants[p.ID] = p
}

// Remove deletes a participant
func (l *ParticipantList) Remove(id string) {
	delete(l.participants, id)
}

// UpdateStatus changes a participant's status and refreshes its activity time
func (l *ParticipantList) UpdateStatus(id string, status ParticipantStatus, now time.Time) bool {
	p, ok := l.participants[id]
	if !ok {
		return false
	}
	p.Status = status
	p.LastActiveAt = now
	l.participants[id] = p
	return true
}

// Get returns a participant by id
func (l *ParticipantList) Get(id string) (Participant, bool) {
	p, ok := l.participants[id]
	return p, ok
}

// Contains reports whether a participant is present
func (l *ParticipantList) Contains(id string) bool {
	_, ok := l.participants[id]
	return ok
}

// All returns the roster ordered by join time
func (l *ParticipantList) All() []Participant {
	all := make([]Participant, 0, len(l.participants))
	for _, p := range l.participants {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].JoinedAt.Equal(all[j].JoinedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].JoinedAt.Before(all[j].JoinedAt)
	})
	return all
}

// Len returns the number of participants
func (l *ParticipantList) Len() int {
	return len(l.participants)
}

// ActiveCount returns the number of participants with active status
func (l *ParticipantList) ActiveCount() int {
	n := 0
	for _, p := range l.participants {
		if p.Status == StatusActive {
			n++
		}
	}
	return n
}

// Host returns the session host, if any
func (l *ParticipantList) Host() (Participant, bool) {
	for _, p := range l.participants {
		if p.Role == RoleHost {
			return p, true
		}
	}
	return Participant{}, false
}

// Replace swaps the roster for the given participants, keeping join times of known ones
func (l *ParticipantList) Replace(participants []Participant) {
	next := make(map[string]Participant, len(participants))
	for _, p := range participants {
		if prev, ok := l.participants[p.ID]; ok && !prev.JoinedAt.IsZero() && p.JoinedAt.IsZero() {
			p.JoinedAt = prev.JoinedAt
		}
		next[p.ID] = p
	}
	l.participants = next
}

// Clear empties the roster
func (l *ParticipantList) Clear() {
	l.participants = nil
}
