package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/observer/gigline/internal/domain"
)

// Session is the registry entry for a user's current connection
type Session struct {
	UserID       uuid.UUID
	ConnectionID uuid.UUID
	Username     string
	Status       domain.PresenceStatus
	LastSeen     time.Time
	ConnectedAt  time.Time
	ShowPresence bool

	client    *Client
	heartbeat *Heartbeat
}

// Client returns the connection behind the session
func (s Session) Client() *Client {
	return s.client
}

// broadcastsPresence reports whether presence events may name this user
func (s Session) broadcastsPresence() bool {
	return s.ShowPresence && s.Status != domain.StatusInvisible
}

// Registry maps each user to at most one live session
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		now:      time.Now,
	}
}

// Register installs s as the user's session. If the user already has a
// session on another live connection, evict is called with it under the
// registry lock, before the new mapping becomes visible.
func (r *Registry) Register(s *Session, evict func(old Session)) (evicted *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sessions[s.UserID]; ok && old.ConnectionID != s.ConnectionID {
		if old.client != nil && old.client.IsLive() && evict != nil {
			evict(*old)
		}
		cp := *old
		evicted = &cp
	}

	now := r.now()
	if s.ConnectedAt.IsZero() {
		s.ConnectedAt = now
	}
	if s.LastSeen.IsZero() {
		s.LastSeen = now
	}
	if s.Status == "" {
		s.Status = domain.StatusOnline
	}
	r.sessions[s.UserID] = s
	return evicted
}

// Remove deletes the user's session only if it still belongs to connID.
// A superseded connection's removal is a no-op.
func (r *Registry) Remove(userID, connID uuid.UUID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok || s.ConnectionID != connID {
		return Session{}, false
	}
	delete(r.sessions, userID)
	return *s, true
}

// Get returns a copy of the user's session
func (r *Registry) Get(userID uuid.UUID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// IsOnline reports whether the user has a session, regardless of privacy
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[userID]
	return ok
}

// IsVisible reports whether the user is online and may be shown as such
func (r *Registry) IsVisible(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return ok && s.broadcastsPresence()
}

// ListOnline returns every user with a session, regardless of privacy
func (r *Registry) ListOnline() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.sessions)
}

// ListVisible returns users whose presence may be shown to others
func (r *Registry) ListVisible() []uuid.UUID {
	return lo.Filter(r.ListOnline(), func(id uuid.UUID, _ int) bool {
		return r.IsVisible(id)
	})
}

// Sessions returns a snapshot of every session
func (r *Registry) Sessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.MapToSlice(r.sessions, func(_ uuid.UUID, s *Session) Session { return *s })
}

// Touch refreshes lastSeen if connID is still the user's connection
func (r *Registry) Touch(userID, connID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok || s.ConnectionID != connID {
		return false
	}
	s.LastSeen = r.now()
	return true
}

// SetStatus records an explicit presence status
func (r *Registry) SetStatus(userID, connID uuid.UUID, status domain.PresenceStatus) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok || s.ConnectionID != connID {
		return Session{}, false
	}
	s.Status = status
	s.LastSeen = r.now()
	return *s, true
}

// HasConnection reports whether connID is any user's current connection
func (r *Registry) HasConnection(connID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.ConnectionID == connID {
			return true
		}
	}
	return false
}

// Stale returns sessions whose lastSeen is before cutoff
func (r *Registry) Stale(cutoff time.Time) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stale []Session
	for _, s := range r.sessions {
		if s.LastSeen.Before(cutoff) {
			stale = append(stale, *s)
		}
	}
	return stale
}

// Count returns the number of online users
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
