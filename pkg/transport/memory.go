package transport

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"watch-party-sync/pkg/model"
)

// MemoryHub connects group sessions living in one process. Broadcasts are delivered
// to every joined member including the sender, like a platform channel that echoes.
type MemoryHub struct {
	mu     sync.Mutex
	groups map[string]map[string]*MemorySession
}

// NewMemoryHub creates an empty hub
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{groups: make(map[string]map[string]*MemorySession)}
}

// Session creates a session handle for local in group sessionID. It is not joined yet.
func (h *MemoryHub) Session(sessionID string, activity model.Activity, local model.Participant) *MemorySession {
	s := &MemorySession{hub: h}
	s.sessionBase = newSessionBase(sessionID, activity, local)
	s.sessionBase.send = s.broadcast
	return s
}

// Activator returns an Activator that offers sessions of this hub
func (h *MemoryHub) Activator(sessionID string, local model.Participant) *MemoryActivator {
	return &MemoryActivator{hub: h, sessionID: sessionID, local: local, Result: model.ActivationPreferred}
}

// Invalidate ends group sessionID for every member with reason
func (h *MemoryHub) Invalidate(sessionID, reason string) {
	h.mu.Lock()
	members := h.groups[sessionID]
	delete(h.groups, sessionID)
	h.mu.Unlock()

	for _, m := range members {
		m.shutdown(reason)
	}
}

// Members returns the joined participants of group sessionID
func (h *MemoryHub) Members(sessionID string) []model.Participant {
	h.mu.Lock()
	defer h.mu.Unlock()
	return rosterOf(h.groups[sessionID])
}

func rosterOf(members map[string]*MemorySession) []model.Participant {
	var roster model.ParticipantList
	for _, m := range members {
		roster.Add(m.local)
	}
	return roster.All()
}

func (h *MemoryHub) snapshot(sessionID string) []*MemorySession {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := make([]*MemorySession, 0, len(h.groups[sessionID]))
	for _, m := range h.groups[sessionID] {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].local.ID < members[j].local.ID })
	return members
}

// MemorySession is a GroupSession backed by a MemoryHub
type MemorySession struct {
	*sessionBase
	hub *MemoryHub

	joinMu sync.Mutex
	joined bool
}

// Join adds the local participant to the group and notifies every member of the new roster
func (s *MemorySession) Join(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isGone() {
		return ErrSessionInvalidated
	}

	s.joinMu.Lock()
	if s.joined {
		s.joinMu.Unlock()
		return nil
	}
	s.joined = true
	s.joinMu.Unlock()

	if s.local.JoinedAt.IsZero() {
		s.local.JoinedAt = time.Now()
		s.local.LastActiveAt = s.local.JoinedAt
	}

	s.hub.mu.Lock()
	group, ok := s.hub.groups[s.id]
	if !ok {
		group = make(map[string]*MemorySession)
		s.hub.groups[s.id] = group
	}
	group[s.local.ID] = s
	roster := rosterOf(group)
	s.hub.mu.Unlock()

	s.emit(SessionEvent{Kind: EventJoined, Participants: roster})
	s.notifyOthers(roster)
	return nil
}

// Leave removes the local participant from the group
func (s *MemorySession) Leave() error {
	removed := s.remove()
	s.shutdown("")
	if removed {
		s.notifyOthers(s.hub.Members(s.id))
	}
	return nil
}

// End invalidates the group for every member
func (s *MemorySession) End(ctx context.Context) error {
	if !s.isJoined() {
		return ErrNotJoined
	}
	s.hub.Invalidate(s.id, "ended")
	return nil
}

func (s *MemorySession) isJoined() bool {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()
	return s.joined && !s.isGone()
}

func (s *MemorySession) remove() bool {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	group, ok := s.hub.groups[s.id]
	if !ok || group[s.local.ID] != s {
		return false
	}
	delete(group, s.local.ID)
	if len(group) == 0 {
		delete(s.hub.groups, s.id)
	}
	return true
}

func (s *MemorySession) notifyOthers(roster []model.Participant) {
	for _, m := range s.hub.snapshot(s.id) {
		if m == s {
			continue
		}
		m.emit(SessionEvent{Kind: EventRosterChanged, Participants: roster})
	}
}

func (s *MemorySession) broadcast(ctx context.Context, channel Channel, payload json.RawMessage) error {
	if !s.isJoined() {
		return ErrNotJoined
	}
	env := Envelope{SenderID: s.local.ID, Payload: payload}
	for _, m := range s.hub.snapshot(s.id) {
		m.dispatch(ctx, channel, env)
	}
	return ctx.Err()
}

// MemoryActivator activates sessions on a MemoryHub. Result selects the platform answer.
type MemoryActivator struct {
	hub       *MemoryHub
	sessionID string
	local     model.Participant
	Result    model.ActivationResult
}

// Activate returns a fresh unjoined session when Result is preferred
func (a *MemoryActivator) Activate(ctx context.Context, activity model.Activity) (model.ActivationResult, GroupSession, error) {
	if ctx.Err() != nil {
		return model.ActivationCancelled, nil, nil
	}
	if a.Result != model.ActivationPreferred {
		return a.Result, nil, nil
	}
	return model.ActivationPreferred, a.hub.Session(a.sessionID, activity, a.local), nil
}
