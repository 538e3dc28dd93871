package domain

import (
	"time"

	"github.com/google/uuid"
)

// Chat is a two-party conversation between a client and a freelancer,
// usually opened from a job posting.
type Chat struct {
	ID           uuid.UUID     `json:"id"`
	JobID        *uuid.UUID    `json:"job_id,omitempty"`
	ClientID     uuid.UUID     `json:"client_id"`
	FreelancerID uuid.UUID     `json:"freelancer_id"`
	Messages     []ChatMessage `json:"messages"`
	Archived     bool          `json:"archived"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`

	// Read markers per participant
	ClientLastReadAt     *time.Time `json:"client_last_read_at,omitempty"`
	FreelancerLastReadAt *time.Time `json:"freelancer_last_read_at,omitempty"`
}

// ChatMessage is an append-only entry in a chat.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	ChatID    uuid.UUID `json:"chat_id"`
	SenderID  uuid.UUID `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IsParticipant reports whether userID is one of the two chat participants
func (c *Chat) IsParticipant(userID uuid.UUID) bool {
	return userID != uuid.Nil && (userID == c.ClientID || userID == c.FreelancerID)
}

// Counterpart returns the other participant. ok is false when userID is not a participant.
func (c *Chat) Counterpart(userID uuid.UUID) (uuid.UUID, bool) {
	switch userID {
	case c.ClientID:
		return c.FreelancerID, true
	case c.FreelancerID:
		return c.ClientID, true
	default:
		return uuid.Nil, false
	}
}

// NewMessage builds the next message for this chat without appending it.
// Appending is the Data Store's job so the durable write stays the single
// serialization point.
func (c *Chat) NewMessage(senderID uuid.UUID, content string, at time.Time) (*ChatMessage, error) {
	if !c.IsParticipant(senderID) {
		return nil, ErrNotParticipant
	}
	if c.Archived {
		return nil, ErrChatArchived
	}
	if content == "" {
		return nil, ErrEmptyMessage
	}
	return &ChatMessage{
		ID:        uuid.New(),
		ChatID:    c.ID,
		SenderID:  senderID,
		Content:   content,
		Timestamp: at,
	}, nil
}

// MarkRead records the read marker for a participant
func (c *Chat) MarkRead(userID uuid.UUID, at time.Time) error {
	switch userID {
	case c.ClientID:
		c.ClientLastReadAt = &at
	case c.FreelancerID:
		c.FreelancerLastReadAt = &at
	default:
		return ErrNotParticipant
	}
	return nil
}
