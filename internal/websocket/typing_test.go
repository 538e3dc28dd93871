package websocket

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypingTracker_StartStop(t *testing.T) {
	tr := NewTypingTracker()
	chatID, userID := uuid.New(), uuid.New()
	at := time.Now()

	tr.Start(chatID, TypingEntry{UserID: userID, UserName: "felix", StartedAt: at})
	tr.Start(chatID, TypingEntry{UserID: userID, UserName: "felix", StartedAt: at.Add(time.Second)})

	entries := tr.Typing(chatID)
	require.Len(t, entries, 1, "restarting replaces the entry")
	assert.Equal(t, at.Add(time.Second), entries[0].StartedAt)
	assert.Equal(t, 1, tr.ActiveChats())

	e, ok := tr.Stop(chatID, userID)
	assert.True(t, ok)
	assert.Equal(t, "felix", e.UserName)

	_, ok = tr.Stop(chatID, userID)
	assert.False(t, ok)
	assert.Zero(t, tr.ActiveChats())
}

func TestTypingTracker_StopUser(t *testing.T) {
	tr := NewTypingTracker()
	userID, other := uuid.New(), uuid.New()
	c1, c2 := uuid.New(), uuid.New()

	tr.Start(c1, TypingEntry{UserID: userID})
	tr.Start(c2, TypingEntry{UserID: userID})
	tr.Start(c2, TypingEntry{UserID: other})

	assert.ElementsMatch(t, []uuid.UUID{c1, c2}, tr.StopUser(userID))
	assert.Empty(t, tr.Typing(c1))
	assert.Len(t, tr.Typing(c2), 1)
	assert.Empty(t, tr.StopUser(userID))
}

func TestTypingTracker_Expire(t *testing.T) {
	tr := NewTypingTracker()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	chatID := uuid.New()
	stale, fresh := uuid.New(), uuid.New()

	tr.Start(chatID, TypingEntry{UserID: stale, StartedAt: now.Add(-6 * time.Minute)})
	tr.Start(chatID, TypingEntry{UserID: fresh, StartedAt: now.Add(-time.Minute)})

	expired := tr.Expire(now.Add(-5 * time.Minute))
	require.Len(t, expired, 1)
	assert.Equal(t, chatID, expired[0].ChatID)
	assert.Equal(t, stale, expired[0].UserID)

	assert.Empty(t, tr.Expire(now.Add(-5*time.Minute)), "expiry is idempotent")
	assert.Len(t, tr.Typing(chatID), 1)
}
