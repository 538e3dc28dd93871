package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/observer/gigline/internal/domain"
)

// Reason is the typed cause of a refused handshake
type Reason string

const (
	ReasonMissingToken Reason = "missing-token"
	ReasonInvalidToken Reason = "invalid-token"
	ReasonExpiredToken Reason = "expired-token"
	ReasonUserNotFound Reason = "user-not-found"
)

// AuthError is returned when a connection handshake is rejected.
// No session state exists when it is returned.
type AuthError struct {
	Reason Reason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + string(e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// UserLookup resolves a token subject to a user record
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Authenticator validates the signed session token presented at handshake
type Authenticator struct {
	tokens *TokenService
	users  UserLookup
}

func NewAuthenticator(tokens *TokenService, users UserLookup) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate resolves the request's session token to a user
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*domain.User, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return nil, &AuthError{Reason: ReasonMissingToken}
	}
	return a.AuthenticateToken(ctx, token)
}

// AuthenticateToken validates a raw token and loads its user
func (a *Authenticator) AuthenticateToken(ctx context.Context, token string) (*domain.User, error) {
	claims, err := a.tokens.ValidateAccessToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &AuthError{Reason: ReasonExpiredToken, Err: err}
		}
		return nil, &AuthError{Reason: ReasonInvalidToken, Err: err}
	}

	user, err := a.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, &AuthError{Reason: ReasonUserNotFound, Err: err}
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// TokenFromRequest extracts the token from the Authorization header,
// the token query parameter, or the access_token cookie, in that order.
// Browsers cannot set headers on WebSocket handshakes, hence the fallbacks.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return strings.TrimSpace(parts[1])
		}
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	return ""
}
