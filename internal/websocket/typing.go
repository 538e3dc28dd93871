package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TypingEntry records that a user is typing in a chat
type TypingEntry struct {
	UserID    uuid.UUID
	UserName  string
	StartedAt time.Time
}

// ExpiredTyping is an entry removed by a sweep
type ExpiredTyping struct {
	ChatID uuid.UUID
	TypingEntry
}

// TypingTracker keeps chatId -> userId -> entry
type TypingTracker struct {
	mu    sync.Mutex
	chats map[uuid.UUID]map[uuid.UUID]TypingEntry
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{chats: make(map[uuid.UUID]map[uuid.UUID]TypingEntry)}
}

// Start records or replaces the user's entry for chatID
func (t *TypingTracker) Start(chatID uuid.UUID, e TypingEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.chats[chatID]
	if !ok {
		users = make(map[uuid.UUID]TypingEntry)
		t.chats[chatID] = users
	}
	users[e.UserID] = e
}

// Stop removes the user's entry and reports whether one existed
func (t *TypingTracker) Stop(chatID, userID uuid.UUID) (TypingEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked(chatID, userID)
}

func (t *TypingTracker) stopLocked(chatID, userID uuid.UUID) (TypingEntry, bool) {
	users, ok := t.chats[chatID]
	if !ok {
		return TypingEntry{}, false
	}
	e, ok := users[userID]
	if !ok {
		return TypingEntry{}, false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.chats, chatID)
	}
	return e, true
}

// StopUser removes the user's entries in every chat
func (t *TypingTracker) StopUser(userID uuid.UUID) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var chats []uuid.UUID
	for chatID := range t.chats {
		if _, ok := t.stopLocked(chatID, userID); ok {
			chats = append(chats, chatID)
		}
	}
	return chats
}

// Expire removes and returns entries started before cutoff
func (t *TypingTracker) Expire(cutoff time.Time) []ExpiredTyping {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []ExpiredTyping
	for chatID, users := range t.chats {
		for userID, e := range users {
			if e.StartedAt.Before(cutoff) {
				delete(users, userID)
				expired = append(expired, ExpiredTyping{ChatID: chatID, TypingEntry: e})
			}
		}
		if len(users) == 0 {
			delete(t.chats, chatID)
		}
	}
	return expired
}

// Typing returns the entries for chatID
func (t *TypingTracker) Typing(chatID uuid.UUID) []TypingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TypingEntry, 0, len(t.chats[chatID]))
	for _, e := range t.chats[chatID] {
		out = append(out, e)
	}
	return out
}

// ActiveChats returns the number of chats with someone typing
func (t *TypingTracker) ActiveChats() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.chats)
}
