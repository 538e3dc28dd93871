package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/observer/gigline/internal/domain"
)

// MemoryStore keeps users, chats and notifications in process.
// Used for development and tests; safe for concurrent use.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]domain.User
	passwords     map[uuid.UUID]string
	chats         map[uuid.UUID]*domain.Chat
	notifications map[uuid.UUID]*domain.Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[uuid.UUID]domain.User),
		passwords:     make(map[uuid.UUID]string),
		chats:         make(map[uuid.UUID]*domain.Chat),
		notifications: make(map[uuid.UUID]*domain.Notification),
	}
}

// =============================================================================
// Users
// =============================================================================

// AddUser stores a user and its password hash
func (s *MemoryStore) AddUser(user domain.User, passwordHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	s.users[user.ID] = user
	if passwordHash != "" {
		s.passwords[user.ID] = passwordHash
	}
}

func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := lo.FindKeyBy(s.users, func(_ uuid.UUID, u domain.User) bool {
		return u.Email == strings.ToLower(email)
	})
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	user := s.users[u]
	return &user, nil
}

func (s *MemoryStore) GetPasswordHash(_ context.Context, userID uuid.UUID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.passwords[userID]
	if !ok {
		return "", domain.ErrUserNotFound
	}
	return h, nil
}

func (s *MemoryStore) GetPrivacyPreference(_ context.Context, userID uuid.UUID) (domain.PrivacyPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.PrivacyPreference{UserID: userID}, domain.ErrUserNotFound
	}
	return u.PrivacyPreference(), nil
}

func (s *MemoryStore) UpdateLastSeen(_ context.Context, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.LastSeenAt = &at
	s.users[userID] = u
	return nil
}

// =============================================================================
// Chats
// =============================================================================

func (s *MemoryStore) CreateChat(_ context.Context, chat *domain.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *chat
	c.Messages = append([]domain.ChatMessage(nil), chat.Messages...)
	s.chats[c.ID] = &c
	return nil
}

// GetChat returns a copy of the chat including its messages
func (s *MemoryStore) GetChat(_ context.Context, id uuid.UUID) (*domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, domain.ErrChatNotFound
	}
	out := *c
	out.Messages = append([]domain.ChatMessage(nil), c.Messages...)
	return &out, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[msg.ChatID]
	if !ok {
		return domain.ErrChatNotFound
	}
	c.Messages = append(c.Messages, *msg)
	c.UpdatedAt = msg.Timestamp
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, chatID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[chatID]
	if !ok {
		return nil, domain.ErrChatNotFound
	}
	msgs := c.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.ChatMessage(nil), msgs...), nil
}

func (s *MemoryStore) MarkChatRead(_ context.Context, chatID, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return domain.ErrChatNotFound
	}
	return c.MarkRead(userID, at)
}

// =============================================================================
// Notifications
// =============================================================================

func (s *MemoryStore) Create(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

func (s *MemoryStore) List(_ context.Context, recipientID uuid.UUID, q domain.NotificationQuery) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Notification, 0)
	for _, n := range s.notifications {
		switch {
		case n.RecipientID != recipientID:
		case q.UnreadOnly && n.Read:
		case !q.IncludeArchived && n.Archived:
		case q.Type != "" && n.Type != q.Type:
		case q.Before != nil && !n.CreatedAt.Before(*q.Before):
		default:
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = defaultNotificationLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UnreadCount(_ context.Context, recipientID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.CountBy(lo.Values(s.notifications), func(n *domain.Notification) bool {
		return n.RecipientID == recipientID && !n.Read && !n.Archived
	}), nil
}

func (s *MemoryStore) MarkRead(_ context.Context, recipientID, id uuid.UUID, at time.Time) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return nil, domain.ErrNotificationNotFound
	}
	if !n.Read {
		n.Read = true
		n.ReadAt = &at
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryStore) MarkAllRead(_ context.Context, recipientID uuid.UUID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, n := range s.notifications {
		if n.RecipientID == recipientID && !n.Read {
			n.Read = true
			n.ReadAt = &at
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Archive(_ context.Context, recipientID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return domain.ErrNotificationNotFound
	}
	n.Archived = true
	return nil
}
