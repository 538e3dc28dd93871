package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/observer/gigline/internal/auth"
	"github.com/observer/gigline/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins in development (tighten in production)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Authenticator resolves the handshake's session token to a user
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*domain.User, error)
}

// Handler handles WebSocket upgrade requests
type Handler struct {
	hub    *Hub
	authn  Authenticator
	logger *slog.Logger
}

// NewHandler creates a WebSocket handler
func NewHandler(hub *Hub, authn Authenticator, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		authn:  authn,
		logger: logger,
	}
}

// ServeHTTP authenticates the handshake, then upgrades and runs the connection.
// A refused handshake creates no session state.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := h.authn.Authenticate(r.Context(), r)
	if err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			h.logger.Info("handshake rejected", "reason", authErr.Reason, "remote_addr", r.RemoteAddr)
			writeHandshakeError(w, http.StatusUnauthorized, "unauthorized", string(authErr.Reason))
			return
		}
		h.logger.Error("handshake failed", "error", err)
		writeHandshakeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	// The request context ends when ServeHTTP returns, so the connection gets its own
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(h.hub, conn, user.ID, user.Name(), h.logger)
	if err := h.hub.Register(ctx, client); err != nil {
		h.logger.Warn("register failed", "user_id", user.ID, "error", err)
		_ = conn.Close()
		return
	}

	go client.WritePump(ctx)
	client.ReadPump(ctx) // Block here until client disconnects
}

func writeHandshakeError(w http.ResponseWriter, status int, code, reason string) {
	body := map[string]string{"error": code}
	if reason != "" {
		body["reason"] = reason
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
