package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/observer/gigline/internal/domain"
)

// UserStore is the user side of the Data Store
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetPasswordHash(ctx context.Context, userID uuid.UUID) (string, error)
	GetPrivacyPreference(ctx context.Context, userID uuid.UUID) (domain.PrivacyPreference, error)
	UpdateLastSeen(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// ChatStore is the chat side of the Data Store
type ChatStore interface {
	CreateChat(ctx context.Context, chat *domain.Chat) error
	GetChat(ctx context.Context, id uuid.UUID) (*domain.Chat, error)
	ListMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]domain.ChatMessage, error)
	AppendMessage(ctx context.Context, msg *domain.ChatMessage) error
	MarkChatRead(ctx context.Context, chatID, userID uuid.UUID, at time.Time) error
}

// NotificationStore is the notification side of the Data Store
type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
	List(ctx context.Context, recipientID uuid.UUID, q domain.NotificationQuery) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, recipientID, id uuid.UUID, at time.Time) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error)
	Archive(ctx context.Context, recipientID, id uuid.UUID) error
}

// Store bundles the repositories behind one backend
type Store struct {
	Users         UserStore
	Chats         ChatStore
	Notifications NotificationStore

	health func(ctx context.Context) error
	close  func()
}

// Health reports whether the backend is reachable
func (s *Store) Health(ctx context.Context) error {
	if s.health == nil {
		return nil
	}
	return s.health(ctx)
}

// Close releases the backend
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open builds the store named by kind ("postgres" or "memory").
// Postgres stores are migrated before they are returned.
func Open(ctx context.Context, kind, databaseURL string, logger *slog.Logger) (*Store, error) {
	switch kind {
	case "memory":
		mem := NewMemoryStore()
		logger.Info("using in-memory store")
		return NewMemoryBackedStore(mem), nil
	case "postgres":
		db, err := New(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		if _, err := db.Migrate(logger); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("connected to postgres")
		return &Store{
			Users:         NewUserRepository(db),
			Chats:         NewChatRepository(db),
			Notifications: NewNotificationRepository(db),
			health:        db.Health,
			close:         db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store type %q", kind)
	}
}

// NewMemoryBackedStore wraps a MemoryStore as a Store
func NewMemoryBackedStore(mem *MemoryStore) *Store {
	return &Store{
		Users:         mem,
		Chats:         mem,
		Notifications: mem,
	}
}
