package websocket

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/observer/gigline/internal/domain"
)

// Event types for client -> server
const (
	EventJoin                     = "join"
	EventJoinChat                 = "join-chat"
	EventLeaveChat                = "leave-chat"
	EventSendMessage              = "sendMessage"
	EventTypingStart              = "typing-start"
	EventTypingStop               = "typing-stop"
	EventMarkMessagesRead         = "mark-messages-read"
	EventJoinNotifications        = "join-notifications"
	EventMarkNotificationRead     = "mark-notification-read"
	EventMarkAllNotificationsRead = "mark-all-notifications-read"
	EventUpdateStatus             = "update-status"
	EventGetOnlineUsers           = "get-online-users"
	EventPing                     = "ping"
	EventHeartbeatResponse        = "heartbeat-response"
)

// Event types for server -> client. typing-start and typing-stop are
// echoed to the rest of the chat room under their inbound names.
const (
	EventOnlineUsersList   = "online-users-list"
	EventUserOnline        = "user-online"
	EventUserOffline       = "user-offline"
	EventUserStatusChanged = "user-status-changed"
	EventNewMessage        = "newMessage"
	EventMessagesRead      = "messages-read"
	EventForceDisconnect   = "force-disconnect"
	EventError             = "error"
	EventHeartbeat         = "heartbeat"
	EventPong              = "pong"
)

// Error codes carried in ErrorPayload
const (
	CodeInvalidMessage   = "invalid_message"
	CodeInvalidPayload   = "invalid_payload"
	CodeUnknownEvent     = "unknown_event"
	CodeRateLimited      = "rate_limited"
	CodeForbidden        = "forbidden"
	CodeChatNotFound     = "chat_not_found"
	CodeNotParticipant   = "not_participant"
	CodeChatArchived     = "chat_archived"
	CodeSenderMismatch   = "sender_mismatch"
	CodeInvalidRecipient = "invalid_recipient"
	CodeEmptyMessage     = "empty_message"
	CodeMessageTooLong   = "message_too_long"
	CodeNotFound         = "not_found"
	CodePersistence      = "persistence_failed"
)

// Message is the base WebSocket message envelope
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// NewMessage creates a message with the current timestamp
func NewMessage(eventType string, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = b
	}
	return &Message{
		Type:      eventType,
		Payload:   payloadBytes,
		Timestamp: time.Now(),
	}, nil
}

var errMissingRef = errors.New("missing identifier")

// decodeRef reads an id passed either as a bare JSON string or as an object
// field, so both join("id") and join({"userId":"id"}) styles are accepted.
func decodeRef(raw json.RawMessage, field string) (uuid.UUID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return uuid.Nil, errMissingRef
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return uuid.Nil, err
		}
	} else {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return uuid.Nil, err
		}
		v, ok := obj[field]
		if !ok {
			return uuid.Nil, errMissingRef
		}
		if err := json.Unmarshal(v, &s); err != nil {
			return uuid.Nil, err
		}
	}
	return uuid.Parse(s)
}

// ============================================================================
// Client -> Server Payloads
// ============================================================================

// SendMessagePayload for sending a chat message
type SendMessagePayload struct {
	ChatID    string `json:"chatId" validate:"required,uuid"`
	Message   string `json:"message"`
	Sender    string `json:"sender" validate:"required,uuid"`
	Recipient string `json:"recipient,omitempty" validate:"omitempty,uuid"`
}

// normalize lowercases the ids; the validator's uuid tag rejects upper case
// that uuid.Parse accepts
func (p *SendMessagePayload) normalize() {
	p.ChatID = strings.ToLower(p.ChatID)
	p.Sender = strings.ToLower(p.Sender)
	p.Recipient = strings.ToLower(p.Recipient)
}

// TypingPayload for typing indicators
type TypingPayload struct {
	ChatID   string `json:"chatId" validate:"required,uuid"`
	UserID   string `json:"userId" validate:"required,uuid"`
	UserName string `json:"userName,omitempty" validate:"max=100"`
}

func (p *TypingPayload) normalize() {
	p.ChatID = strings.ToLower(p.ChatID)
	p.UserID = strings.ToLower(p.UserID)
}

// UpdateStatusPayload for explicit presence changes
type UpdateStatusPayload struct {
	Status string `json:"status"`
}

// ============================================================================
// Server -> Client Payloads
// ============================================================================

// ErrorPayload for error responses
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChatMessageView is a persisted chat message as seen by clients
type ChatMessageView struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	Sender    uuid.UUID `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

func newChatMessageView(m *domain.ChatMessage) ChatMessageView {
	return ChatMessageView{ID: m.ID, Content: m.Content, Sender: m.SenderID, Timestamp: m.Timestamp}
}

// NewMessagePayload broadcasts a persisted message
type NewMessagePayload struct {
	ChatID  uuid.UUID       `json:"chatId"`
	Message ChatMessageView `json:"message"`
	Sender  uuid.UUID       `json:"sender"`
}

// TypingBroadcastPayload broadcasts typing status
type TypingBroadcastPayload struct {
	ChatID   uuid.UUID `json:"chatId"`
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName,omitempty"`
}

// MessagesReadPayload announces a participant's read marker
type MessagesReadPayload struct {
	ChatID uuid.UUID `json:"chatId"`
	ReadBy uuid.UUID `json:"readBy"`
	ReadAt time.Time `json:"readAt"`
}

// StatusChangedPayload announces an explicit presence change
type StatusChangedPayload struct {
	UserID   uuid.UUID             `json:"userId"`
	Status   domain.PresenceStatus `json:"status"`
	LastSeen time.Time             `json:"lastSeen"`
}

// ForceDisconnectPayload tells an evicted connection why it is closing
type ForceDisconnectPayload struct {
	Reason string `json:"reason"`
}
