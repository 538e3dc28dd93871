package domain

import (
	"errors"
	"fmt"
)

// Domain errors - use these for consistent error handling
var (
	// Auth errors
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")

	// Chat errors
	ErrChatNotFound   = errors.New("chat not found")
	ErrNotParticipant = errors.New("user is not a participant of this chat")
	ErrChatArchived   = errors.New("chat is archived")

	// Message errors
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageTooLong  = errors.New("message too long")
	ErrSenderMismatch  = errors.New("sender does not match authenticated user")
	ErrInvalidReceiver = errors.New("recipient is not the other chat participant")

	// Notification errors
	ErrNotificationNotFound    = errors.New("notification not found")
	ErrInvalidNotificationType = errors.New("invalid notification type")
	ErrMetadataMismatch        = errors.New("notification metadata does not match type")

	ErrInvalidPayload = errors.New("invalid payload")

	// ErrPersistence marks failures of a required durable write
	ErrPersistence = errors.New("persistence failure")
)

// PersistenceError wraps a failed Data Store write. Operations that hit one
// abort before anything is broadcast.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrPersistence) match any PersistenceError
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// NewPersistenceError wraps err unless it is nil
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
