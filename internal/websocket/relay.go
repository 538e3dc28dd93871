package websocket

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/observer/gigline/internal/domain"
	"github.com/observer/gigline/internal/notification"
)

const previewLength = 120

// chatLock serializes append+emit per chat so subscribers see append order
func (h *Hub) chatLock(chatID uuid.UUID) *sync.Mutex {
	return &h.chatLocks[binary.BigEndian.Uint32(chatID[12:])%uint32(len(h.chatLocks))]
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, payload json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.sendError(CodeInvalidPayload, "Invalid message payload")
		return
	}
	p.normalize()
	if err := h.validate.Struct(p); err != nil {
		c.sendError(CodeInvalidPayload, "Invalid message payload")
		return
	}

	chatID := uuid.MustParse(p.ChatID)
	if uuid.MustParse(p.Sender) != c.userID {
		c.sendError(CodeSenderMismatch, domain.ErrSenderMismatch.Error())
		return
	}

	content := strings.TrimSpace(p.Message)
	if content == "" {
		c.sendError(CodeEmptyMessage, domain.ErrEmptyMessage.Error())
		return
	}
	if utf8.RuneCountInString(content) > h.cfg.MaxMessageLength {
		c.sendError(CodeMessageTooLong, fmt.Sprintf("Message exceeds %d characters", h.cfg.MaxMessageLength))
		return
	}

	var recipient uuid.UUID
	if p.Recipient != "" {
		recipient = uuid.MustParse(p.Recipient)
	}

	msg, to, err := h.relayMessage(ctx, chatID, c.userID, recipient, content)
	if err != nil {
		h.sendRelayError(c, err)
		return
	}

	// The message is already delivered; a failed notification is logged, not surfaced
	storeCtx, cancel := h.storeContext(ctx)
	defer cancel()
	sender := c.userID
	_, err = h.notifications.CreateAndEmit(storeCtx, h, notification.Input{
		RecipientID: to,
		SenderID:    &sender,
		Type:        domain.NotificationNewMessage,
		Title:       "New message from " + c.username,
		Message:     preview(content),
		Metadata: domain.MessageMetadata{
			ChatID:    chatID,
			MessageID: msg.ID,
			Preview:   preview(content),
		},
	})
	if err != nil {
		h.logger.Warn("message notification failed",
			"chat_id", chatID,
			"message_id", msg.ID,
			"user_id", to,
			"error", err,
		)
	}
}

// relayMessage appends a message durably and only then emits newMessage.
// It returns the stored message and its recipient.
func (h *Hub) relayMessage(ctx context.Context, chatID, sender, recipient uuid.UUID, content string) (*domain.ChatMessage, uuid.UUID, error) {
	lock := h.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	storeCtx, cancel := h.storeContext(ctx)
	defer cancel()

	chat, err := h.chats.GetChat(storeCtx, chatID)
	if err != nil {
		return nil, uuid.Nil, err
	}

	counterpart, ok := chat.Counterpart(sender)
	if !ok {
		return nil, uuid.Nil, domain.ErrNotParticipant
	}
	if recipient != uuid.Nil && recipient != counterpart {
		return nil, uuid.Nil, domain.ErrInvalidReceiver
	}

	msg, err := chat.NewMessage(sender, content, h.now().UTC())
	if err != nil {
		return nil, uuid.Nil, err
	}

	if err := h.chats.AppendMessage(storeCtx, msg); err != nil {
		return nil, uuid.Nil, domain.NewPersistenceError("append message", err)
	}

	h.emit(nil, EventNewMessage, NewMessagePayload{
		ChatID:  chatID,
		Message: newChatMessageView(msg),
		Sender:  sender,
	}, ChatRoom(chatID), UserRoom(counterpart), legacyUserRoom(counterpart))
	h.metrics.messageRelayed()

	return msg, counterpart, nil
}

func (h *Hub) sendRelayError(c *Client, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidReceiver):
		c.sendError(CodeInvalidRecipient, err.Error())
	case errors.Is(err, domain.ErrChatArchived):
		c.sendError(CodeChatArchived, err.Error())
	case errors.Is(err, domain.ErrEmptyMessage):
		c.sendError(CodeEmptyMessage, err.Error())
	case errors.Is(err, domain.ErrPersistence):
		h.metrics.persistenceFailed()
		h.logger.Error("message not persisted", "user_id", c.userID, "error", err)
		c.sendError(CodePersistence, "Message could not be saved")
	default:
		h.sendStoreError(c, "load chat", err)
	}
}

func (h *Hub) handleMarkMessagesRead(ctx context.Context, c *Client, payload json.RawMessage) {
	chatID, err := decodeRef(payload, "chatId")
	if err != nil {
		c.sendError(CodeInvalidPayload, "Invalid chat id")
		return
	}

	storeCtx, cancel := h.storeContext(ctx)
	defer cancel()

	chat, err := h.chats.GetChat(storeCtx, chatID)
	if err != nil {
		h.sendStoreError(c, "load chat", err)
		return
	}
	if !chat.IsParticipant(c.userID) {
		c.sendError(CodeNotParticipant, "Not a participant of this chat")
		return
	}

	at := h.now().UTC()
	if err := h.chats.MarkChatRead(storeCtx, chatID, c.userID, at); err != nil {
		h.sendStoreError(c, "mark messages read", err)
		return
	}

	h.emit(nil, EventMessagesRead, MessagesReadPayload{ChatID: chatID, ReadBy: c.userID, ReadAt: at}, ChatRoom(chatID))
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLength]) + "…"
}
