package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/observer/gigline/internal/auth"
	"github.com/observer/gigline/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ChatStore is the chat side of the Data Store used by REST
type ChatStore interface {
	CreateChat(ctx context.Context, chat *domain.Chat) error
	GetChat(ctx context.Context, id uuid.UUID) (*domain.Chat, error)
	ListMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]domain.ChatMessage, error)
}

// ChatHandler handles chat endpoints. Messages are only sent over the socket.
type ChatHandler struct {
	chats  ChatStore
	logger *slog.Logger
}

func NewChatHandler(chats ChatStore, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		chats:  chats,
		logger: logger,
	}
}

type createChatRequest struct {
	ClientID     string `json:"clientId" validate:"required,uuid"`
	FreelancerID string `json:"freelancerId" validate:"required,uuid,nefield=ClientID"`
	JobID        string `json:"jobId,omitempty" validate:"omitempty,uuid"`
}

// CreateChat handles POST /chats. The caller must be one of the two parties.
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	chat := &domain.Chat{
		ID:           uuid.New(),
		ClientID:     uuid.MustParse(req.ClientID),
		FreelancerID: uuid.MustParse(req.FreelancerID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.JobID != "" {
		jobID := uuid.MustParse(req.JobID)
		chat.JobID = &jobID
	}
	if !chat.IsParticipant(userID) {
		writeError(w, http.StatusForbidden, "you must be a party to the chat")
		return
	}

	if err := h.chats.CreateChat(r.Context(), chat); err != nil {
		h.logger.Error("create chat failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	writeJSON(w, http.StatusCreated, chat)
}

// GetChat handles GET /chats/{id}
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.loadParticipantChat(w, r)
	if !ok {
		return
	}
	chat.Messages = nil
	writeJSON(w, http.StatusOK, chat)
}

// GetMessages handles GET /chats/{id}/messages?limit=N, oldest first
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.loadParticipantChat(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= maxHistoryLimit {
			limit = l
		}
	}

	msgs, err := h.chats.ListMessages(r.Context(), chat.ID, limit)
	if err != nil {
		h.logger.Error("list messages failed", "chat_id", chat.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"count":    len(msgs),
	})
}

func (h *ChatHandler) loadParticipantChat(w http.ResponseWriter, r *http.Request) (*domain.Chat, bool) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	chatID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return nil, false
	}

	chat, err := h.chats.GetChat(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, domain.ErrChatNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return nil, false
		}
		h.logger.Error("load chat failed", "chat_id", chatID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load chat")
		return nil, false
	}

	// Outsiders get the same answer as for a missing chat
	if !chat.IsParticipant(userID) {
		writeError(w, http.StatusNotFound, "chat not found")
		return nil, false
	}
	return chat, true
}
