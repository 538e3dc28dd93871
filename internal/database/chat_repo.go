package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/observer/gigline/internal/domain"
)

// ChatRepository handles chat and chat message data access
type ChatRepository struct {
	db *DB
}

func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateChat creates a chat between a client and a freelancer
func (r *ChatRepository) CreateChat(ctx context.Context, chat *domain.Chat) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO chats (id, job_id, client_id, freelancer_id, archived)
		VALUES ($1, $2, $3, $4, $5)
	`, chat.ID, chat.JobID, chat.ClientID, chat.FreelancerID, chat.Archived)
	return err
}

// GetChat loads a chat's participants and state. Messages are not loaded.
func (r *ChatRepository) GetChat(ctx context.Context, id uuid.UUID) (*domain.Chat, error) {
	chat := &domain.Chat{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, job_id, client_id, freelancer_id, archived,
		       client_last_read_at, freelancer_last_read_at, created_at, updated_at
		FROM chats WHERE id = $1
	`, id).Scan(
		&chat.ID, &chat.JobID, &chat.ClientID, &chat.FreelancerID, &chat.Archived,
		&chat.ClientLastReadAt, &chat.FreelancerLastReadAt, &chat.CreatedAt, &chat.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// AppendMessage durably appends a message to its chat
func (r *ChatRepository) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_messages (id, chat_id, sender_id, content, sent_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.ChatID, msg.SenderID, msg.Content, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE chats SET updated_at = $2 WHERE id = $1`, msg.ChatID, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrChatNotFound
	}

	return tx.Commit(ctx)
}

// ListMessages returns messages in append order, oldest first.
// A zero limit returns the whole history.
func (r *ChatRepository) ListMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	query := `
		SELECT id, chat_id, sender_id, content, sent_at
		FROM (
			SELECT id, chat_id, sender_id, content, sent_at, seq
			FROM chat_messages WHERE chat_id = $1
			ORDER BY seq DESC
			LIMIT NULLIF($2, 0)
		) recent
		ORDER BY seq ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkChatRead stores the participant's read marker
func (r *ChatRepository) MarkChatRead(ctx context.Context, chatID, userID uuid.UUID, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE chats SET
			client_last_read_at = CASE WHEN client_id = $2 THEN $3 ELSE client_last_read_at END,
			freelancer_last_read_at = CASE WHEN freelancer_id = $2 THEN $3 ELSE freelancer_last_read_at END
		WHERE id = $1 AND (client_id = $2 OR freelancer_id = $2)
	`, chatID, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotParticipant
	}
	return nil
}
