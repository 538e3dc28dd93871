package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/observer/gigline/internal/pubsub"
)

// PubSubBroadcaster lets handlers outside the socket layer push events to a
// user's live sessions on any instance. It implements notification.Emitter.
type PubSubBroadcaster struct {
	ps pubsub.PubSub
}

// NewPubSubBroadcaster creates a new broadcaster that uses the PubSub system
func NewPubSubBroadcaster(ps pubsub.PubSub) *PubSubBroadcaster {
	return &PubSubBroadcaster{ps: ps}
}

// EmitToUser publishes an event on the user's topic
func (b *PubSubBroadcaster) EmitToUser(ctx context.Context, userID uuid.UUID, eventType string, payload any) error {
	topic := pubsub.Topics.User(userID.String())
	msg, err := pubsub.NewMessage(topic, eventType, payload)
	if err != nil {
		return err
	}
	return b.ps.Publish(ctx, topic, msg)
}

// subscribeUser relays the user's topic to c for as long as c is live
func (h *Hub) subscribeUser(ctx context.Context, c *Client) {
	if h.ps == nil {
		return
	}
	sub, err := h.ps.Subscribe(ctx, pubsub.Topics.User(c.userID.String()), func(_ context.Context, m *pubsub.Message) {
		data, err := json.Marshal(&Message{Type: m.Type, Payload: m.Payload, Timestamp: time.Now()})
		if err != nil {
			return
		}
		c.queue(data)
	})
	if err != nil {
		h.logger.Warn("user topic subscribe failed", "user_id", c.userID, "error", err)
		return
	}
	c.setUserSub(sub)
}

func (h *Hub) unsubscribeUser(c *Client) {
	if sub := c.takeUserSub(); sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			h.logger.Debug("user topic unsubscribe failed", "user_id", c.userID, "error", err)
		}
	}
}
