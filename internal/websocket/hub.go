package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/observer/gigline/internal/domain"
	"github.com/observer/gigline/internal/notification"
	"github.com/observer/gigline/internal/pubsub"
)

// ErrHubStopped is returned when registering with a hub that is not running
var ErrHubStopped = errors.New("websocket: hub stopped")

// Config tunes the realtime core
type Config struct {
	HeartbeatInterval   time.Duration
	TypingTimeout       time.Duration
	StaleSessionTimeout time.Duration
	MaxMessageLength    int
	EventsPerSecond     float64
	EventBurst          int
	StoreTimeout        time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:   30 * time.Second,
		TypingTimeout:       5 * time.Minute,
		StaleSessionTimeout: 5 * time.Minute,
		MaxMessageLength:    10000,
		EventsPerSecond:     20,
		EventBurst:          40,
		StoreTimeout:        5 * time.Second,
	}
}

// ChatStore is the chat side of the Data Store used by the relay
type ChatStore interface {
	GetChat(ctx context.Context, id uuid.UUID) (*domain.Chat, error)
	AppendMessage(ctx context.Context, msg *domain.ChatMessage) error
	MarkChatRead(ctx context.Context, chatID, userID uuid.UUID, at time.Time) error
}

// UserStore is the user side of the Data Store used for presence
type UserStore interface {
	GetPrivacyPreference(ctx context.Context, userID uuid.UUID) (domain.PrivacyPreference, error)
	UpdateLastSeen(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// Deps are the collaborators a Hub needs. PubSub and Metrics may be nil.
type Deps struct {
	Chats         ChatStore
	Users         UserStore
	Notifications *notification.Dispatcher
	PubSub        pubsub.PubSub
	Metrics       *Metrics
}

type registration struct {
	client       *Client
	showPresence bool
	done         chan struct{}
}

// Hub owns the session registry, rooms, typing map and heartbeats.
// Connection lifecycle is serialized through Run; the shared tables are
// also mutex protected so handlers and sweeps can read them directly.
type Hub struct {
	cfg Config

	registry   *Registry
	rooms      *Rooms
	typing     *TypingTracker
	heartbeats *HeartbeatMonitor

	// Open connections, including ones superseded but not yet unregistered
	conns   map[uuid.UUID]*Client
	connsMu sync.RWMutex

	register   chan registration
	unregister chan *Client
	stopped    chan struct{}
	stopOnce   sync.Once

	chatLocks [64]sync.Mutex

	chats         ChatStore
	users         UserStore
	notifications *notification.Dispatcher
	ps            pubsub.PubSub
	metrics       *Metrics
	validate      *validator.Validate
	now           func() time.Time
	logger        *slog.Logger
}

// NewHub creates a new Hub
func NewHub(cfg Config, deps Deps, logger *slog.Logger) *Hub {
	return &Hub{
		cfg:           cfg,
		registry:      NewRegistry(),
		rooms:         NewRooms(),
		typing:        NewTypingTracker(),
		heartbeats:    NewHeartbeatMonitor(cfg.HeartbeatInterval),
		conns:         make(map[uuid.UUID]*Client),
		register:      make(chan registration),
		unregister:    make(chan *Client),
		stopped:       make(chan struct{}),
		chats:         deps.Chats,
		users:         deps.Users,
		notifications: deps.Notifications,
		ps:            deps.PubSub,
		metrics:       deps.Metrics,
		validate:      validator.New(),
		now:           time.Now,
		logger:        logger.With("component", "hub"),
	}
}

// Registry exposes the session registry for read-only callers
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.stopOnce.Do(func() { close(h.stopped) })
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil
		case req := <-h.register:
			h.handleRegister(req)
			close(req.done)
		case client := <-h.unregister:
			h.handleUnregister(client)
		}
	}
}

// Register installs an authenticated client as its user's current session
// and blocks until the hub has processed it.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	showPresence := true
	if h.users != nil {
		pref, err := h.users.GetPrivacyPreference(ctx, c.userID)
		if err != nil {
			// Presence stays hidden when the preference cannot be read
			h.logger.Warn("privacy lookup failed", "user_id", c.userID, "error", err)
			showPresence = false
		} else {
			showPresence = pref.ShowPresence
		}
	}

	h.subscribeUser(ctx, c)

	req := registration{client: c, showPresence: showPresence, done: make(chan struct{})}
	select {
	case h.register <- req:
	case <-h.stopped:
		h.unsubscribeUser(c)
		return ErrHubStopped
	case <-ctx.Done():
		h.unsubscribeUser(c)
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

func (h *Hub) handleRegister(req registration) {
	c := req.client
	now := h.now()

	h.connsMu.Lock()
	h.conns[c.id] = c
	h.connsMu.Unlock()

	session := &Session{
		UserID:       c.userID,
		ConnectionID: c.id,
		Username:     c.username,
		Status:       domain.StatusOnline,
		LastSeen:     now,
		ConnectedAt:  now,
		ShowPresence: req.showPresence,
		client:       c,
	}
	session.heartbeat = h.heartbeats.Start(c, h.ping)

	evicted := h.registry.Register(session, h.evict)
	h.rooms.Join(c, UserRoom(c.userID))

	h.logger.Info("client connected",
		"user_id", c.userID,
		"conn_id", c.id,
		"evicted", evicted != nil,
	)

	if evicted == nil {
		h.announceOnline(*session)
	} else {
		h.announceReplacement(*evicted, *session)
	}
	c.sendEvent(EventOnlineUsersList, h.registry.ListVisible())
}

// evict runs under the registry lock, before the new session is installed
func (h *Hub) evict(old Session) {
	old.client.sendEvent(EventForceDisconnect, ForceDisconnectPayload{
		Reason: "signed in from another connection",
	})
	old.client.Close()
	h.heartbeats.Stop(old.ConnectionID)
	h.metrics.sessionEvicted()
	h.logger.Info("session evicted", "user_id", old.UserID, "conn_id", old.ConnectionID)
}

func (h *Hub) handleUnregister(c *Client) {
	h.connsMu.Lock()
	_, known := h.conns[c.id]
	delete(h.conns, c.id)
	h.connsMu.Unlock()
	if !known {
		return
	}

	c.Close()
	h.heartbeats.Stop(c.id)
	h.rooms.LeaveAll(c)
	h.unsubscribeUser(c)

	session, current := h.registry.Remove(c.userID, c.id)
	if !current {
		h.logger.Debug("superseded connection closed", "user_id", c.userID, "conn_id", c.id)
		return
	}
	h.endSession(session)
	h.logger.Info("client disconnected", "user_id", c.userID, "conn_id", c.id)
}

// endSession clears typing state, announces offline and records lastSeen
// for a session that has just been removed from the registry.
func (h *Hub) endSession(s Session) {
	for _, chatID := range h.typing.StopUser(s.UserID) {
		h.emit(nil, EventTypingStop, TypingBroadcastPayload{ChatID: chatID, UserID: s.UserID}, ChatRoom(chatID))
	}
	h.announceOffline(s)

	if h.users != nil {
		go func(userID uuid.UUID, at time.Time) {
			ctx, cancel := h.storeContext(context.Background())
			defer cancel()
			if err := h.users.UpdateLastSeen(ctx, userID, at); err != nil {
				h.logger.Warn("update last seen failed", "user_id", userID, "error", err)
			}
		}(s.UserID, s.LastSeen)
	}
}

func (h *Hub) shutdown() {
	h.connsMu.Lock()
	conns := make([]*Client, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.connsMu.Unlock()

	for _, c := range conns {
		c.Close()
		h.heartbeats.Stop(c.id)
		h.unsubscribeUser(c)
	}
	h.logger.Info("hub stopped", "connections", len(conns))
}

// ping sends one heartbeat to c
func (h *Hub) ping(c *Client) {
	c.sendEvent(EventHeartbeat, nil)
}

// ConnectionCount returns the number of open connections
func (h *Hub) ConnectionCount() int {
	h.connsMu.RLock()
	defer h.connsMu.RUnlock()
	return len(h.conns)
}

// Status is the read-only snapshot served on the debug endpoint
type Status struct {
	OnlineUsers       int `json:"onlineUsers"`
	ActiveTypingChats int `json:"activeTypingChats"`
	Connections       int `json:"connections"`
}

// Status reports current counts
func (h *Hub) Status() Status {
	return Status{
		OnlineUsers:       h.registry.Count(),
		ActiveTypingChats: h.typing.ActiveChats(),
		Connections:       h.ConnectionCount(),
	}
}

// HandleMessage processes incoming WebSocket messages
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg *Message) {
	switch msg.Type {
	case EventJoin:
		h.handleJoin(c, msg.Payload)
	case EventJoinChat:
		h.handleJoinChat(ctx, c, msg.Payload)
	case EventLeaveChat:
		h.handleLeaveChat(c, msg.Payload)
	case EventSendMessage:
		h.handleSendMessage(ctx, c, msg.Payload)
	case EventTypingStart:
		h.handleTyping(c, msg.Payload, true)
	case EventTypingStop:
		h.handleTyping(c, msg.Payload, false)
	case EventMarkMessagesRead:
		h.handleMarkMessagesRead(ctx, c, msg.Payload)
	case EventJoinNotifications:
		h.handleJoinNotifications(c, msg.Payload)
	case EventMarkNotificationRead:
		h.handleMarkNotificationRead(ctx, c, msg.Payload)
	case EventMarkAllNotificationsRead:
		h.handleMarkAllNotificationsRead(ctx, c)
	case EventUpdateStatus:
		h.handleUpdateStatus(c, msg.Payload)
	case EventGetOnlineUsers:
		c.sendEvent(EventOnlineUsersList, h.registry.ListVisible())
	case EventPing:
		h.registry.Touch(c.userID, c.id)
		c.sendEvent(EventPong, nil)
	case EventHeartbeatResponse:
		h.registry.Touch(c.userID, c.id)
	default:
		c.sendError(CodeUnknownEvent, "Unknown event type: "+msg.Type)
	}
}

func (h *Hub) handleJoin(c *Client, payload json.RawMessage) {
	userID, err := decodeRef(payload, "userId")
	if err != nil {
		c.sendError(CodeInvalidPayload, "Invalid user id")
		return
	}
	if userID != c.userID {
		c.sendError(CodeForbidden, "Cannot join another user's room")
		return
	}
	h.rooms.Join(c, legacyUserRoom(userID))
}

func (h *Hub) handleJoinChat(ctx context.Context, c *Client, payload json.RawMessage) {
	chatID, err := decodeRef(payload, "chatId")
	if err != nil {
		c.sendError(CodeInvalidPayload, "Invalid chat id")
		return
	}

	lookupCtx, cancel := h.storeContext(ctx)
	defer cancel()
	chat, err := h.chats.GetChat(lookupCtx, chatID)
	if err != nil {
		h.sendStoreError(c, "load chat", err)
		return
	}
	if !chat.IsParticipant(c.userID) {
		c.sendError(CodeNotParticipant, "Not a participant of this chat")
		return
	}

	h.rooms.Join(c, ChatRoom(chatID))
	h.logger.Debug("client joined chat", "user_id", c.userID, "chat_id", chatID)
}

func (h *Hub) handleLeaveChat(c *Client, payload json.RawMessage) {
	chatID, err := decodeRef(payload, "chatId")
	if err != nil {
		return
	}

	h.rooms.Leave(c, ChatRoom(chatID))
	if _, ok := h.typing.Stop(chatID, c.userID); ok {
		h.emit(c, EventTypingStop, TypingBroadcastPayload{ChatID: chatID, UserID: c.userID}, ChatRoom(chatID))
	}
}

func (h *Hub) handleTyping(c *Client, payload json.RawMessage, isTyping bool) {
	var p TypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	p.normalize()
	if h.validate.Struct(p) != nil {
		return
	}
	chatID := uuid.MustParse(p.ChatID)
	claimed := uuid.MustParse(p.UserID)

	// Self-reported identity and room membership are checked, mismatches dropped
	if claimed != c.userID || !c.IsInRoom(ChatRoom(chatID)) {
		h.logger.Debug("typing event dropped", "user_id", c.userID, "claimed", claimed, "chat_id", chatID)
		return
	}

	if isTyping {
		name := p.UserName
		if name == "" {
			name = c.username
		}
		h.typing.Start(chatID, TypingEntry{UserID: c.userID, UserName: name, StartedAt: h.now()})
		h.emit(c, EventTypingStart, TypingBroadcastPayload{ChatID: chatID, UserID: c.userID, UserName: name}, ChatRoom(chatID))
		return
	}

	if _, ok := h.typing.Stop(chatID, c.userID); ok {
		h.emit(c, EventTypingStop, TypingBroadcastPayload{ChatID: chatID, UserID: c.userID}, ChatRoom(chatID))
	}
}

func (h *Hub) handleJoinNotifications(c *Client, payload json.RawMessage) {
	userID, err := decodeRef(payload, "userId")
	if err != nil {
		c.sendError(CodeInvalidPayload, "Invalid user id")
		return
	}
	if userID != c.userID {
		c.sendError(CodeForbidden, "Cannot join another user's notifications")
		return
	}
	h.rooms.Join(c, UserRoom(userID))
}

func (h *Hub) handleMarkNotificationRead(ctx context.Context, c *Client, payload json.RawMessage) {
	id, err := decodeRef(payload, "notificationId")
	if err != nil {
		c.sendError(CodeInvalidPayload, "Invalid notification id")
		return
	}

	storeCtx, cancel := h.storeContext(ctx)
	defer cancel()
	if _, err := h.notifications.MarkRead(storeCtx, h, c.userID, id); err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			c.sendError(CodeNotFound, "Notification not found")
			return
		}
		h.sendStoreError(c, "mark notification read", err)
	}
}

func (h *Hub) handleMarkAllNotificationsRead(ctx context.Context, c *Client) {
	storeCtx, cancel := h.storeContext(ctx)
	defer cancel()
	if _, err := h.notifications.MarkAllRead(storeCtx, h, c.userID); err != nil {
		h.sendStoreError(c, "mark all notifications read", err)
	}
}

// EmitToUser pushes an event to the user's personal room on this instance.
// Users without a session here are skipped.
func (h *Hub) EmitToUser(_ context.Context, userID uuid.UUID, event string, payload any) error {
	if !h.registry.IsOnline(userID) {
		return nil
	}
	msg, err := NewMessage(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	for _, c := range h.rooms.Recipients(nil, UserRoom(userID)) {
		c.queue(data)
	}
	return nil
}

// emit sends one event to the members of rooms, each client once
func (h *Hub) emit(except *Client, event string, payload any, rooms ...string) {
	msg, err := NewMessage(event, payload)
	if err != nil {
		h.logger.Error("encode event failed", "event", event, "error", err)
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode event failed", "event", event, "error", err)
		return
	}
	for _, c := range h.rooms.Recipients(except, rooms...) {
		c.queue(data)
	}
}

// storeContext detaches Data Store calls from the connection so a write
// already issued completes even if the client disconnects.
func (h *Hub) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), h.cfg.StoreTimeout)
}

// sendStoreError maps a Data Store failure to an error event for c only
func (h *Hub) sendStoreError(c *Client, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrChatNotFound):
		c.sendError(CodeChatNotFound, "Chat not found")
	case errors.Is(err, domain.ErrNotParticipant):
		c.sendError(CodeNotParticipant, "Not a participant of this chat")
	default:
		h.metrics.persistenceFailed()
		h.logger.Error("data store failure", "op", op, "user_id", c.userID, "error", err)
		c.sendError(CodePersistence, "Could not "+op)
	}
}
