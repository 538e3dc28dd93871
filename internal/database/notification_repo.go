package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/observer/gigline/internal/domain"
)

const defaultNotificationLimit = 50

// NotificationRepository handles notification data access
type NotificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create persists a notification
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	var meta []byte
	if n.Metadata != nil {
		var err error
		if meta, err = json.Marshal(n.Metadata); err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, sender_id, type, title, message, read, archived, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, n.ID, n.RecipientID, n.SenderID, n.Type, n.Title, n.Message, n.Read, n.Archived, meta, n.CreatedAt)
	return err
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		n    domain.Notification
		meta []byte
	)
	err := row.Scan(
		&n.ID, &n.RecipientID, &n.SenderID, &n.Type, &n.Title, &n.Message,
		&n.Read, &n.Archived, &meta, &n.CreatedAt, &n.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	if n.Metadata, err = domain.DecodeMetadata(n.Type, meta); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", n.ID, err)
	}
	return &n, nil
}

const notificationColumns = `id, recipient_id, sender_id, type, title, message, read, archived, metadata, created_at, read_at`

// List returns a recipient's notifications, newest first
func (r *NotificationRepository) List(ctx context.Context, recipientID uuid.UUID, q domain.NotificationQuery) ([]domain.Notification, error) {
	var (
		where = []string{"recipient_id = $1"}
		args  = []any{recipientID}
	)
	if q.UnreadOnly {
		where = append(where, "read = FALSE")
	}
	if !q.IncludeArchived {
		where = append(where, "archived = FALSE")
	}
	if q.Type != "" {
		args = append(args, q.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if q.Before != nil {
		args = append(args, *q.Before)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = defaultNotificationLimit
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		notificationColumns, strings.Join(where, " AND "), len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// UnreadCount returns the number of unread, unarchived notifications
func (r *NotificationRepository) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND read = FALSE AND archived = FALSE
	`, recipientID).Scan(&count)
	return count, err
}

// MarkRead marks one notification as read. Only the recipient may do so.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID, id uuid.UUID, at time.Time) (*domain.Notification, error) {
	n, err := scanNotification(r.db.Pool.QueryRow(ctx, `
		UPDATE notifications SET read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2
		RETURNING `+notificationColumns, id, recipientID, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotificationNotFound
	}
	return n, err
}

// MarkAllRead marks every unread notification of the recipient as read
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE notifications SET read = TRUE, read_at = $2
		WHERE recipient_id = $1 AND read = FALSE
	`, recipientID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Archive hides a notification from the default listing
func (r *NotificationRepository) Archive(ctx context.Context, recipientID, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE notifications SET archived = TRUE
		WHERE id = $1 AND recipient_id = $2
	`, id, recipientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}
