package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/observer/gigline/internal/auth"
	"github.com/observer/gigline/internal/domain"
)

const accessTokenCookie = "access_token"

// LoginService is the auth side used by the login endpoint
type LoginService interface {
	Login(ctx context.Context, input auth.LoginInput) (*domain.User, *auth.Session, error)
}

// UserReader loads users by id
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	auth         LoginService
	users        UserReader
	secureCookie bool
	logger       *slog.Logger
}

func NewAuthHandler(authService LoginService, users UserReader, secureCookie bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:         authService,
		users:        users,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// Login handles POST /auth/login.
// The token is returned in the body and also set as a cookie the socket handshake accepts.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input auth.LoginInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, session, err := h.auth.Login(r.Context(), input)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	h.setTokenCookie(w, session.AccessToken, session.ExpiresAt)

	writeJSON(w, http.StatusOK, map[string]any{
		"user":         user.ToPublic(),
		"access_token": session.AccessToken,
		"expires_at":   session.ExpiresAt,
	})
}

// Logout handles POST /auth/logout by clearing the token cookie
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("load user failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	default:
		h.logger.Error("auth error", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
	}
}
