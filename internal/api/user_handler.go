package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/observer/gigline/internal/domain"
)

// PresenceReader answers whether a user may be shown as online
type PresenceReader interface {
	IsVisible(userID uuid.UUID) bool
}

// UserHandler handles user profile endpoints
type UserHandler struct {
	users    UserReader
	presence PresenceReader
	logger   *slog.Logger
}

func NewUserHandler(users UserReader, presence PresenceReader, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:    users,
		presence: presence,
		logger:   logger,
	}
}

type userProfile struct {
	domain.PublicUser
	Online bool `json:"online"`
}

// GetByID handles GET /users/{id}.
// Online and last seen are only exposed when the user shows presence.
func (h *UserHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("load user failed", "user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, userProfile{
		PublicUser: user.ToPublic(),
		Online:     user.ShowOnlineStatus && h.presence.IsVisible(id),
	})
}
