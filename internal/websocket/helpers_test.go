package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/observer/gigline/internal/database"
	"github.com/observer/gigline/internal/domain"
	"github.com/observer/gigline/internal/notification"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeClock is a settable clock shared by the hub and its registry
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	hub        *Hub
	store      *database.MemoryStore
	clock      *fakeClock
	client     domain.User
	freelancer domain.User
	outsider   domain.User
	chat       *domain.Chat
}

type fixtureOption func(cfg *Config, deps *Deps)

// withChats wraps the memory store's chat side
func withChats(wrap func(*database.MemoryStore) ChatStore) fixtureOption {
	return func(_ *Config, deps *Deps) {
		deps.Chats = wrap(deps.Chats.(*database.MemoryStore))
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	store := database.NewMemoryStore()
	f := &fixture{
		store:      store,
		clock:      &fakeClock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
		client:     domain.User{ID: uuid.New(), Username: "clara", Role: domain.UserRoleClient, ShowOnlineStatus: true},
		freelancer: domain.User{ID: uuid.New(), Username: "felix", Role: domain.UserRoleFreelancer, ShowOnlineStatus: true},
		outsider:   domain.User{ID: uuid.New(), Username: "olga", ShowOnlineStatus: true},
	}
	store.AddUser(f.client, "")
	store.AddUser(f.freelancer, "")
	store.AddUser(f.outsider, "")

	f.chat = &domain.Chat{ID: uuid.New(), ClientID: f.client.ID, FreelancerID: f.freelancer.ID}
	require.NoError(t, store.CreateChat(context.Background(), f.chat))

	cfg := DefaultConfig()
	cfg.HeartbeatInterval = time.Hour
	deps := Deps{
		Chats:         store,
		Users:         store,
		Notifications: notification.NewDispatcher(store, testLogger()),
		Metrics:       NewMetrics(prometheus.NewRegistry()),
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	f.hub = NewHub(cfg, deps, testLogger())
	f.hub.now = f.clock.Now
	f.hub.registry.now = f.clock.Now

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = f.hub.Run(ctx) }()
	t.Cleanup(cancel)

	return f
}

// conn is a test connection that records the frames it was sent
type conn struct {
	*Client
	got []*Message
}

func (f *fixture) connect(t *testing.T, user domain.User) *conn {
	t.Helper()
	c := NewClient(f.hub, nil, user.ID, user.Name(), testLogger())
	require.NoError(t, f.hub.Register(context.Background(), c))
	return &conn{Client: c}
}

func (f *fixture) send(t *testing.T, c *conn, eventType string, payload any) {
	t.Helper()
	msg, err := NewMessage(eventType, payload)
	require.NoError(t, err)
	f.hub.HandleMessage(context.Background(), c.Client, msg)
}

func (f *fixture) joinChat(t *testing.T, c *conn) {
	t.Helper()
	f.send(t, c, EventJoinChat, f.chat.ID.String())
	require.True(t, c.IsInRoom(ChatRoom(f.chat.ID)))
}

// poll moves queued frames into got
func (c *conn) poll(t *testing.T) {
	t.Helper()
	for {
		select {
		case data := <-c.send:
			var m Message
			require.NoError(t, json.Unmarshal(data, &m))
			c.got = append(c.got, &m)
		default:
			return
		}
	}
}

// events returns every recorded frame of the given type
func (c *conn) events(t *testing.T, eventType string) []*Message {
	t.Helper()
	c.poll(t)
	var out []*Message
	for _, m := range c.got {
		if m.Type == eventType {
			out = append(out, m)
		}
	}
	return out
}

// wait blocks until a frame of eventType has arrived
func (c *conn) wait(t *testing.T, eventType string) *Message {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.events(t, eventType)) > 0
	}, time.Second, 5*time.Millisecond, "no %s event", eventType)
	return c.events(t, eventType)[0]
}

func decode[T any](t *testing.T, m *Message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(m.Payload, &v))
	return v
}

// bareClient builds a client without a hub, for table-level tests
func bareClient(userID uuid.UUID) *Client {
	return &Client{
		id:     uuid.New(),
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		rooms:  make(map[string]bool),
		done:   make(chan struct{}),
		logger: testLogger(),
	}
}
