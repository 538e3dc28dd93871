package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observer/gigline/internal/api"
	"github.com/observer/gigline/internal/auth"
	"github.com/observer/gigline/internal/config"
	"github.com/observer/gigline/internal/database"
	"github.com/observer/gigline/internal/domain"
	"github.com/observer/gigline/internal/middleware"
	"github.com/observer/gigline/internal/notification"
	"github.com/observer/gigline/internal/pubsub"
	"github.com/observer/gigline/internal/websocket"
)

type testServer struct {
	url    string
	tokens *auth.TokenService
	store  *database.MemoryStore
	user   domain.User
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	mem := database.NewMemoryStore()
	user := domain.User{ID: uuid.New(), Username: "clara", Email: "clara@example.com", ShowOnlineStatus: true}
	mem.AddUser(user, "")

	tokens, err := auth.NewTokenService("server-test-signing-key-0123456789", time.Hour)
	require.NoError(t, err)
	authService := auth.NewService(mem, tokens)

	ps := pubsub.NewMemoryPubSub(logger)
	t.Cleanup(func() { _ = ps.Close() })

	reg := prometheus.NewRegistry()
	dispatcher := notification.NewDispatcher(mem, logger)
	hub := websocket.NewHub(websocket.DefaultConfig(), websocket.Deps{
		Chats:         mem,
		Users:         mem,
		Notifications: dispatcher,
		PubSub:        ps,
		Metrics:       websocket.NewMetrics(reg),
	}, logger)
	websocket.RegisterHubGauges(reg, hub)

	store := database.NewMemoryBackedStore(mem)
	deps := &Dependencies{
		Tokens:              authService,
		RateLimiter:         middleware.NewRateLimiter(600),
		AuthHandler:         api.NewAuthHandler(authService, mem, false, logger),
		UserHandler:         api.NewUserHandler(mem, hub.Registry(), logger),
		ChatHandler:         api.NewChatHandler(mem, logger),
		NotificationHandler: api.NewNotificationHandler(dispatcher, mem, websocket.NewPubSubBroadcaster(ps), logger),
		StatusHandler:       api.NewStatusHandler(map[string]api.HealthChecker{"database": store}, hub, logger),
		WSHandler:           websocket.NewHandler(hub, auth.NewAuthenticator(tokens, mem), logger),
		Metrics:             reg,
		Logger:              logger,
	}

	srv := httptest.NewServer(NewHandler(cfg, deps))
	t.Cleanup(srv.Close)
	return &testServer{url: srv.URL, tokens: tokens, store: mem, user: user}
}

func devConfig() *config.Config {
	return &config.Config{Env: "development", AppBaseURL: "http://localhost:5173"}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.url+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) token(t *testing.T) string {
	t.Helper()
	token, _, err := s.tokens.GenerateAccessToken(s.user.ID, s.user.Username)
	require.NoError(t, err)
	return token
}

func TestServer_PublicRoutes(t *testing.T) {
	s := newTestServer(t, devConfig())

	resp := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp = s.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/debug/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status websocket.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Zero(t, status.Connections)
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, devConfig())

	resp := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gigline_realtime_online_users 0")
	assert.Contains(t, string(body), "gigline_realtime_messages_relayed_total 0")
}

func TestServer_ProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, devConfig())

	for _, path := range []string{"/auth/me", "/notifications", "/notifications/unread-count", "/users/" + uuid.NewString()} {
		resp := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	resp := s.do(t, http.MethodGet, "/auth/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_AuthenticatedRequests(t *testing.T) {
	s := newTestServer(t, devConfig())
	token := s.token(t)

	resp := s.do(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me domain.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, s.user.ID, me.ID)

	resp = s.do(t, http.MethodPost, "/chats", token, map[string]string{
		"clientId":     s.user.ID.String(),
		"freelancerId": uuid.NewString(),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var chat domain.Chat
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chat))

	resp = s.do(t, http.MethodGet, "/chats/"+chat.ID.String()+"/messages", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPut, "/notifications/read-all", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_NotificationOriginationIsAdminOnly(t *testing.T) {
	s := newTestServer(t, devConfig())

	resp := s.do(t, http.MethodPost, "/notifications", s.token(t), map[string]string{
		"recipient": uuid.NewString(),
		"type":      "payment_received",
		"title":     "Payment received",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, devConfig())

	resp := s.do(t, http.MethodDelete, "/healthz", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_WebSocketRejectsMissingToken(t *testing.T) {
	s := newTestServer(t, devConfig())

	resp := s.do(t, http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), string(auth.ReasonMissingToken))
}

func TestServer_CORS(t *testing.T) {
	t.Run("development echoes origin", func(t *testing.T) {
		s := newTestServer(t, devConfig())
		req, err := http.NewRequest(http.MethodOptions, s.url+"/notifications", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://192.168.1.20:5173")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "http://192.168.1.20:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("production allows only the app origin", func(t *testing.T) {
		cfg := devConfig()
		cfg.Env = "production"
		s := newTestServer(t, cfg)

		for origin, want := range map[string]string{
			"http://localhost:5173": "http://localhost:5173",
			"https://evil.example":  "",
		} {
			req, err := http.NewRequest(http.MethodOptions, s.url+"/notifications", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", origin)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, want, resp.Header.Get("Access-Control-Allow-Origin"), origin)
		}
	})
}

func TestServer_RequestIDIsPropagated(t *testing.T) {
	s := newTestServer(t, devConfig())

	req, err := http.NewRequest(http.MethodGet, s.url+"/healthz", strings.NewReader(""))
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}
