package websocket

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// =============================================================================
// Client Identity Tests
// =============================================================================

func TestNewClient_FixesIdentity(t *testing.T) {
	hub := NewHub(DefaultConfig(), Deps{}, testLogger())
	userID := uuid.New()

	client := NewClient(hub, nil, userID, "alice", testLogger())

	assert.Equal(t, userID, client.UserID())
	assert.Equal(t, "alice", client.Username())
	assert.NotEqual(t, uuid.Nil, client.ID())
	assert.True(t, client.IsLive())
}

func TestNewClient_DistinctConnectionIDs(t *testing.T) {
	hub := NewHub(DefaultConfig(), Deps{}, testLogger())
	userID := uuid.New()

	a := NewClient(hub, nil, userID, "alice", testLogger())
	b := NewClient(hub, nil, userID, "alice", testLogger())

	assert.NotEqual(t, a.ID(), b.ID())
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestClient_Close_Idempotent(t *testing.T) {
	client := bareClient(uuid.New())

	assert.NotPanics(t, func() {
		client.Close()
		client.Close()
	})
	assert.False(t, client.IsLive())
}

func TestClient_QueueAfterClose_Dropped(t *testing.T) {
	client := bareClient(uuid.New())
	client.Close()

	msg, _ := NewMessage(EventPong, nil)
	require.NoError(t, client.Send(msg))

	assert.Empty(t, client.send)
}

// =============================================================================
// Room Subscription Tests
// =============================================================================

func TestClient_JoinLeaveRoom(t *testing.T) {
	client := bareClient(uuid.New())
	room := ChatRoom(uuid.New())

	assert.False(t, client.IsInRoom(room))

	client.JoinRoom(room)
	assert.True(t, client.IsInRoom(room))

	client.LeaveRoom(room)
	assert.False(t, client.IsInRoom(room))
}

func TestClient_Rooms(t *testing.T) {
	client := bareClient(uuid.New())

	r1 := UserRoom(client.UserID())
	r2 := ChatRoom(uuid.New())
	r3 := legacyUserRoom(client.UserID())

	client.JoinRoom(r1)
	client.JoinRoom(r2)
	client.JoinRoom(r3)

	assert.ElementsMatch(t, []string{r1, r2, r3}, client.Rooms())
}

func TestClient_Rooms_Empty(t *testing.T) {
	client := bareClient(uuid.New())
	assert.Empty(t, client.Rooms())
}

func TestClient_JoinRoom_Idempotent(t *testing.T) {
	client := bareClient(uuid.New())

	room := ChatRoom(uuid.New())
	client.JoinRoom(room)
	client.JoinRoom(room) // join again

	assert.Len(t, client.Rooms(), 1)
}

func TestClient_LeaveRoom_NotJoined(t *testing.T) {
	client := bareClient(uuid.New())

	// Leaving a room we never joined should not panic
	assert.NotPanics(t, func() {
		client.LeaveRoom(ChatRoom(uuid.New()))
	})
}

// =============================================================================
// Send Tests
// =============================================================================

func TestClient_Send_Normal(t *testing.T) {
	client := bareClient(uuid.New())

	msg, _ := NewMessage(EventUserOnline, uuid.New())
	err := client.Send(msg)
	require.NoError(t, err)

	// Verify message was queued
	select {
	case data := <-client.send:
		var got Message
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, EventUserOnline, got.Type)
	default:
		t.Fatal("message was not queued to send channel")
	}
}

func TestClient_Send_BufferFull(t *testing.T) {
	client := bareClient(uuid.New())
	client.send = make(chan []byte, 1) // Very small buffer

	msg1, _ := NewMessage(EventPong, nil)
	msg2, _ := NewMessage(EventHeartbeat, nil)

	assert.NoError(t, client.Send(msg1))
	// Buffer is full, the second frame is dropped without blocking
	assert.NoError(t, client.Send(msg2))

	assert.Len(t, client.send, 1)
	var got Message
	require.NoError(t, json.Unmarshal(<-client.send, &got))
	assert.Equal(t, EventPong, got.Type)
}

func TestClient_Send_BufferFullDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	client := f.connect(t, f.client)

	// Fill the buffer behind the hub's back
	for len(client.send) < cap(client.send) {
		client.send <- []byte("{}")
	}
	client.sendEvent(EventPong, nil)

	assert.Len(t, client.send, cap(client.send))
}

func TestClient_SendError(t *testing.T) {
	client := bareClient(uuid.New())

	client.sendError(CodeForbidden, "not yours")

	// Verify error message was queued
	select {
	case data := <-client.send:
		var got Message
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, EventError, got.Type)

		var p ErrorPayload
		require.NoError(t, json.Unmarshal(got.Payload, &p))
		assert.Equal(t, CodeForbidden, p.Code)
		assert.Equal(t, "not yours", p.Message)
	default:
		t.Fatal("error message was not queued")
	}
}

// =============================================================================
// Rate Limit Tests
// =============================================================================

func TestClient_Allow_EnforcesBurst(t *testing.T) {
	client := bareClient(uuid.New())
	client.limiter = rate.NewLimiter(rate.Limit(0.001), 3)

	assert.True(t, client.allow())
	assert.True(t, client.allow())
	assert.True(t, client.allow())
	assert.False(t, client.allow(), "fourth event within the burst window should be refused")
}
