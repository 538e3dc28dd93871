package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/observer/gigline/internal/api"
	"github.com/observer/gigline/internal/auth"
	"github.com/observer/gigline/internal/config"
	"github.com/observer/gigline/internal/middleware"
)

// Dependencies holds all service dependencies for the server
type Dependencies struct {
	Tokens              auth.TokenValidator
	RateLimiter         *middleware.RateLimiter
	AuthHandler         *api.AuthHandler
	UserHandler         *api.UserHandler
	ChatHandler         *api.ChatHandler
	NotificationHandler *api.NotificationHandler
	StatusHandler       *api.StatusHandler
	WSHandler           http.Handler
	Metrics             prometheus.Gatherer
	Logger              *slog.Logger
}

// New creates an HTTP server with all routes configured.
func New(cfg *config.Config, deps *Dependencies) *http.Server {
	return &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      NewHandler(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewHandler builds the routed, middleware-wrapped handler
func NewHandler(cfg *config.Config, deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Register routes
	registerRoutes(mux, deps)

	// Wrap with middleware
	return chainMiddleware(mux,
		requestIDMiddleware,
		corsMiddleware(cfg),
		loggingMiddleware(deps.Logger),
		recoverMiddleware(deps.Logger),
	)
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	// =========================================================================
	// Ops
	// =========================================================================
	mux.HandleFunc("GET /healthz", deps.StatusHandler.Healthz)
	mux.HandleFunc("GET /readyz", deps.StatusHandler.Readyz)
	mux.HandleFunc("GET /debug/status", deps.StatusHandler.DebugStatus)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	limit := func(h http.HandlerFunc) http.Handler { return http.HandlerFunc(h) }
	if deps.RateLimiter != nil {
		limit = func(h http.HandlerFunc) http.Handler { return deps.RateLimiter.Middleware(h) }
	}

	// =========================================================================
	// Auth routes (public)
	// =========================================================================
	mux.Handle("POST /auth/login", limit(deps.AuthHandler.Login))
	mux.HandleFunc("POST /auth/logout", deps.AuthHandler.Logout)

	// =========================================================================
	// Protected routes (require auth)
	// =========================================================================
	authMiddleware := auth.Middleware(deps.Tokens)
	protected := func(h http.HandlerFunc) http.Handler { return authMiddleware(limit(h)) }

	mux.Handle("GET /auth/me", protected(deps.AuthHandler.Me))
	mux.Handle("GET /users/{id}", protected(deps.UserHandler.GetByID))

	// =========================================================================
	// Chat routes
	// =========================================================================
	mux.Handle("POST /chats", protected(deps.ChatHandler.CreateChat))
	mux.Handle("GET /chats/{id}", protected(deps.ChatHandler.GetChat))
	mux.Handle("GET /chats/{id}/messages", protected(deps.ChatHandler.GetMessages))

	// =========================================================================
	// Notification routes
	// =========================================================================
	mux.Handle("GET /notifications", protected(deps.NotificationHandler.List))
	mux.Handle("GET /notifications/unread-count", protected(deps.NotificationHandler.UnreadCount))
	mux.Handle("POST /notifications", protected(deps.NotificationHandler.Create))
	mux.Handle("PUT /notifications/read-all", protected(deps.NotificationHandler.MarkAllRead))
	mux.Handle("PUT /notifications/{id}/read", protected(deps.NotificationHandler.MarkRead))
	mux.Handle("PUT /notifications/{id}/archive", protected(deps.NotificationHandler.Archive))

	// =========================================================================
	// WebSocket route, authenticated during the handshake
	// =========================================================================
	mux.Handle("GET /ws", deps.WSHandler)
}
