package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/observer/gigline/internal/pubsub"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 65536

	sendBufferSize = 256
)

// Client is one authenticated WebSocket connection.
// Identity is fixed at construction; the handshake authenticates first.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	id       uuid.UUID
	userID   uuid.UUID
	username string
	limiter  *rate.Limiter
	rooms    map[string]bool
	userSub  pubsub.Subscription
	mu       sync.RWMutex
	logger   *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client for an authenticated user. conn may be nil in tests.
func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, username string, logger *slog.Logger) *Client {
	id := uuid.New()
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		id:       id,
		userID:   userID,
		username: username,
		limiter:  rate.NewLimiter(rate.Limit(hub.cfg.EventsPerSecond), hub.cfg.EventBurst),
		rooms:    make(map[string]bool),
		logger:   logger.With("conn_id", id, "user_id", userID),
		done:     make(chan struct{}),
	}
}

// ID returns the connection id
func (c *Client) ID() uuid.UUID {
	return c.id
}

// UserID returns the client's user ID
func (c *Client) UserID() uuid.UUID {
	return c.userID
}

// Username returns the client's username
func (c *Client) Username() string {
	return c.username
}

// Close marks the connection dead. The write pump flushes queued frames,
// sends a close frame and closes the socket. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// IsLive reports whether the connection has not been closed
func (c *Client) IsLive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// JoinRoom records room membership on the client side
func (c *Client) JoinRoom(room string) {
	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()
}

// LeaveRoom removes room membership on the client side
func (c *Client) LeaveRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// IsInRoom checks if client is subscribed to a room
func (c *Client) IsInRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[room]
}

// Rooms returns all rooms the client is in
func (c *Client) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (c *Client) setUserSub(sub pubsub.Subscription) {
	c.mu.Lock()
	c.userSub = sub
	c.mu.Unlock()
}

func (c *Client) takeUserSub() pubsub.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := c.userSub
	c.userSub = nil
	return sub
}

// allow applies the per-connection inbound event budget
func (c *Client) allow() bool {
	return c.limiter.Allow()
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.registry.Touch(c.userID, c.id)
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.logger.Warn("websocket read error", "error", err)
				}
				return
			}

			if !c.allow() {
				c.sendError(CodeRateLimited, "Too many events, slow down")
				continue
			}

			var msg Message
			if err := json.Unmarshal(message, &msg); err != nil {
				c.sendError(CodeInvalidMessage, "Failed to parse message")
				continue
			}

			c.hub.HandleMessage(ctx, c, &msg)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			// Deliver what was queued before the close, e.g. force-disconnect
			for {
				select {
				case message := <-c.send:
					if err := c.write(message); err != nil {
						return
					}
				default:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(message []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// Send sends a message to the client
func (c *Client) Send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.queue(data)
	return nil
}

// queue enqueues an encoded frame without blocking. Frames for a closed
// connection and frames that overflow the buffer are dropped.
func (c *Client) queue(data []byte) {
	if !c.IsLive() {
		return
	}
	select {
	case c.send <- data:
	default:
		if c.hub != nil {
			c.hub.metrics.frameDropped()
		}
		c.logger.Warn("client send buffer full, dropping message")
	}
}

func (c *Client) sendEvent(eventType string, payload any) {
	msg, err := NewMessage(eventType, payload)
	if err != nil {
		c.logger.Error("encode event failed", "event", eventType, "error", err)
		return
	}
	_ = c.Send(msg)
}

// sendError sends an error message to the client
func (c *Client) sendError(code, message string) {
	c.sendEvent(EventError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}
