// Package notification originates durable notifications and pushes them to
// live sessions when one is available.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/observer/gigline/internal/domain"
)

// Realtime event names pushed to a recipient's personal room
const (
	EventNewNotification  = "new-notification"
	EventNotificationRead = "notification-read"
	EventCleared          = "notifications-cleared"
)

// Emitter pushes an event to every live connection of a user.
// Implementations return nil when the user has no live session.
type Emitter interface {
	EmitToUser(ctx context.Context, userID uuid.UUID, event string, payload any) error
}

// Store is the notification side of the Data Store
type Store interface {
	Create(ctx context.Context, n *domain.Notification) error
	List(ctx context.Context, recipientID uuid.UUID, q domain.NotificationQuery) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, recipientID, id uuid.UUID, at time.Time) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error)
	Archive(ctx context.Context, recipientID, id uuid.UUID) error
}

// Input is what a caller supplies to originate a notification
type Input struct {
	RecipientID uuid.UUID                   `json:"recipient"`
	SenderID    *uuid.UUID                  `json:"sender,omitempty"`
	Type        domain.NotificationType     `json:"type" validate:"required"`
	Title       string                      `json:"title" validate:"required,max=200"`
	Message     string                      `json:"message" validate:"max=2000"`
	Metadata    domain.NotificationMetadata `json:"-"`
}

// DTO is the realtime and REST shape of a notification
type DTO struct {
	ID        uuid.UUID                   `json:"id"`
	Recipient uuid.UUID                   `json:"recipient"`
	Sender    *uuid.UUID                  `json:"sender,omitempty"`
	Type      domain.NotificationType     `json:"type"`
	Title     string                      `json:"title"`
	Message   string                      `json:"message"`
	Read      bool                        `json:"read"`
	Archived  bool                        `json:"archived"`
	Metadata  domain.NotificationMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time                   `json:"createdAt"`
	ReadAt    *time.Time                  `json:"readAt,omitempty"`
	TimeAgo   string                      `json:"timeAgo"`
}

// Dispatcher creates notifications and fans them out
type Dispatcher struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
}

func NewDispatcher(store Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		validate: validator.New(),
		now:      time.Now,
		logger:   logger.With("component", "notifications"),
	}
}

// ToDTO projects a notification, deriving the relative age from now
func ToDTO(n *domain.Notification, now time.Time) DTO {
	return DTO{
		ID:        n.ID,
		Recipient: n.RecipientID,
		Sender:    n.SenderID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Read:      n.Read,
		Archived:  n.Archived,
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt,
		ReadAt:    n.ReadAt,
		TimeAgo:   humanize.RelTime(n.CreatedAt, now, "ago", "from now"),
	}
}

// CreateAndEmit persists a notification and then, if emitter is non-nil,
// pushes it to the recipient. The push is best effort; persistence is not.
func (d *Dispatcher) CreateAndEmit(ctx context.Context, emitter Emitter, in Input) (*domain.Notification, error) {
	if in.RecipientID == uuid.Nil {
		return nil, fmt.Errorf("%w: recipient is required", domain.ErrInvalidPayload)
	}
	if err := d.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if err := domain.CheckMetadata(in.Type, in.Metadata); err != nil {
		return nil, err
	}

	n := &domain.Notification{
		ID:          uuid.New(),
		RecipientID: in.RecipientID,
		SenderID:    in.SenderID,
		Type:        in.Type,
		Title:       in.Title,
		Message:     in.Message,
		Metadata:    in.Metadata,
		CreatedAt:   d.now().UTC(),
	}

	if err := d.store.Create(ctx, n); err != nil {
		return nil, domain.NewPersistenceError("create notification", err)
	}

	if emitter == nil {
		return n, nil
	}

	if err := emitter.EmitToUser(ctx, n.RecipientID, EventNewNotification, ToDTO(n, d.now())); err != nil {
		d.logger.Warn("notification push failed",
			"notification_id", n.ID,
			"user_id", n.RecipientID,
			"error", err,
		)
	}
	return n, nil
}

// MarkRead marks a notification read and tells the recipient's sessions
func (d *Dispatcher) MarkRead(ctx context.Context, emitter Emitter, recipientID, id uuid.UUID) (*domain.Notification, error) {
	n, err := d.store.MarkRead(ctx, recipientID, id, d.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			return nil, err
		}
		return nil, domain.NewPersistenceError("mark notification read", err)
	}
	d.emit(ctx, emitter, recipientID, EventNotificationRead, n.ID)
	return n, nil
}

// MarkAllRead marks every unread notification of the recipient as read
func (d *Dispatcher) MarkAllRead(ctx context.Context, emitter Emitter, recipientID uuid.UUID) (int64, error) {
	count, err := d.store.MarkAllRead(ctx, recipientID, d.now().UTC())
	if err != nil {
		return 0, domain.NewPersistenceError("mark all notifications read", err)
	}
	d.emit(ctx, emitter, recipientID, EventCleared, struct{}{})
	return count, nil
}

// Archive hides a notification from the default listing
func (d *Dispatcher) Archive(ctx context.Context, recipientID, id uuid.UUID) error {
	if err := d.store.Archive(ctx, recipientID, id); err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			return err
		}
		return domain.NewPersistenceError("archive notification", err)
	}
	return nil
}

// List returns the recipient's notifications as DTOs with their unread count
func (d *Dispatcher) List(ctx context.Context, recipientID uuid.UUID, q domain.NotificationQuery) ([]DTO, int, error) {
	items, err := d.store.List(ctx, recipientID, q)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := d.store.UnreadCount(ctx, recipientID)
	if err != nil {
		return nil, 0, fmt.Errorf("count unread: %w", err)
	}

	now := d.now()
	out := make([]DTO, len(items))
	for i := range items {
		out[i] = ToDTO(&items[i], now)
	}
	return out, unread, nil
}

func (d *Dispatcher) emit(ctx context.Context, emitter Emitter, userID uuid.UUID, event string, payload any) {
	if emitter == nil {
		return
	}
	if err := emitter.EmitToUser(ctx, userID, event, payload); err != nil {
		d.logger.Warn("notification event push failed", "event", event, "user_id", userID, "error", err)
	}
}
