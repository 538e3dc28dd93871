package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/observer/gigline/internal/auth"
	"github.com/observer/gigline/internal/domain"
	"github.com/observer/gigline/internal/notification"
)

// Notifications is the dispatcher surface the REST handlers use
type Notifications interface {
	CreateAndEmit(ctx context.Context, emitter notification.Emitter, in notification.Input) (*domain.Notification, error)
	List(ctx context.Context, recipientID uuid.UUID, q domain.NotificationQuery) ([]notification.DTO, int, error)
	MarkRead(ctx context.Context, emitter notification.Emitter, recipientID, id uuid.UUID) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, emitter notification.Emitter, recipientID uuid.UUID) (int64, error)
	Archive(ctx context.Context, recipientID, id uuid.UUID) error
}

// NotificationHandler handles notification endpoints
type NotificationHandler struct {
	notifications Notifications
	users         UserReader
	emitter       notification.Emitter
	logger        *slog.Logger
}

// NewNotificationHandler creates the handler. emitter may be nil, in which
// case notifications are persisted without a realtime push.
func NewNotificationHandler(notifications Notifications, users UserReader, emitter notification.Emitter, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		users:         users,
		emitter:       emitter,
		logger:        logger,
	}
}

type createNotificationRequest struct {
	Recipient string          `json:"recipient" validate:"required,uuid"`
	Type      string          `json:"type" validate:"required"`
	Title     string          `json:"title" validate:"required,max=200"`
	Message   string          `json:"message" validate:"max=2000"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Create handles POST /notifications. Only admins may call it, and only
// system notifications can be sent; every other type is originated by the
// component that owns the event. The caller becomes the sender.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	senderID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sender, err := h.users.GetByID(r.Context(), senderID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		h.logger.Error("load sender failed", "user_id", senderID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create notification")
		return
	}
	if sender.Role != domain.UserRoleAdmin {
		writeError(w, http.StatusForbidden, "only admins can send notifications")
		return
	}

	var req createNotificationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	typ := domain.NotificationType(req.Type)
	meta, err := domain.DecodeMetadata(typ, req.Metadata)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidNotificationType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid metadata")
		return
	}
	if err := domain.CheckMetadata(typ, meta); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if typ != domain.NotificationSystem {
		writeError(w, http.StatusForbidden, "only system notifications can be sent")
		return
	}

	n, err := h.notifications.CreateAndEmit(r.Context(), h.emitter, notification.Input{
		RecipientID: uuid.MustParse(req.Recipient),
		SenderID:    &senderID,
		Type:        typ,
		Title:       req.Title,
		Message:     req.Message,
		Metadata:    meta,
	})
	if err != nil {
		h.handleError(w, "create notification", err)
		return
	}

	writeJSON(w, http.StatusCreated, notification.ToDTO(n, time.Now()))
}

// List handles GET /notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q, err := parseNotificationQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, unread, err := h.notifications.List(r.Context(), userID, q)
	if err != nil {
		h.handleError(w, "list notifications", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": items,
		"unreadCount":   unread,
	})
}

// UnreadCount handles GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	_, unread, err := h.notifications.List(r.Context(), userID, domain.NotificationQuery{UnreadOnly: true, Limit: 1})
	if err != nil {
		h.handleError(w, "count notifications", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": unread})
}

// MarkRead handles PUT /notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	n, err := h.notifications.MarkRead(r.Context(), h.emitter, userID, id)
	if err != nil {
		h.handleError(w, "mark notification read", err)
		return
	}

	writeJSON(w, http.StatusOK, notification.ToDTO(n, time.Now()))
}

// MarkAllRead handles PUT /notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	count, err := h.notifications.MarkAllRead(r.Context(), h.emitter, userID)
	if err != nil {
		h.handleError(w, "mark all notifications read", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"updated": count})
}

// Archive handles PUT /notifications/{id}/archive
func (h *NotificationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := h.notifications.Archive(r.Context(), userID, id); err != nil {
		h.handleError(w, "archive notification", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseNotificationQuery(r *http.Request) (domain.NotificationQuery, error) {
	v := r.URL.Query()
	q := domain.NotificationQuery{
		UnreadOnly:      v.Get("unread") == "true",
		IncludeArchived: v.Get("archived") == "true",
		Type:            domain.NotificationType(v.Get("type")),
	}

	if s := v.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			return q, errors.New("limit must be a positive integer")
		}
		q.Limit = limit
	}
	if s := v.Get("before"); s != "" {
		before, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, errors.New("before must be an RFC 3339 timestamp")
		}
		q.Before = &before
	}
	return q, nil
}

func (h *NotificationHandler) handleError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotificationNotFound):
		writeError(w, http.StatusNotFound, "notification not found")
	case errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrInvalidNotificationType),
		errors.Is(err, domain.ErrMetadataMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("notification request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
