// Package pubsub carries realtime pushes between processes.
// The in-memory backend serves a single instance; the Redis backend lets a
// REST handler on one instance reach a socket held by another.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Message represents a pub/sub message with typed payload
type Message struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessage marshals payload into a message for topic
func NewMessage(topic, msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{Topic: topic, Type: msgType, Payload: data}, nil
}

// Handler is a callback for processing messages
type Handler func(ctx context.Context, msg *Message)

// Subscription represents an active subscription that can be closed
type Subscription interface {
	// Unsubscribe removes the subscription
	Unsubscribe() error
}

// PubSub defines the interface for publish/subscribe operations.
// All implementations must be safe for concurrent use.
type PubSub interface {
	// Publish sends a message to all subscribers of the given topic.
	Publish(ctx context.Context, topic string, msg *Message) error

	// Subscribe registers a handler for messages on the given topic.
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)

	// Close shuts down the pub/sub system and releases resources.
	Close() error
}

// New builds the backend named by kind ("memory" or "redis")
func New(kind, redisURL string, logger *slog.Logger) (PubSub, error) {
	switch kind {
	case "", "memory":
		return NewMemoryPubSub(logger), nil
	case "redis":
		return NewRedisPubSub(redisURL, logger)
	default:
		return nil, fmt.Errorf("unknown pubsub type %q", kind)
	}
}

// TopicBuilder helps construct consistent topic names
type TopicBuilder struct{}

// User returns the topic for user-specific events
func (t TopicBuilder) User(userID string) string {
	return "user:" + userID
}

// Topics is a helper for building topic names
var Topics = TopicBuilder{}
