package websocket

import (
	"sync"

	"github.com/google/uuid"
)

// UserRoom is the personal room every connection joins at connect time
func UserRoom(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// ChatRoom is the room for a chat's participants
func ChatRoom(chatID uuid.UUID) string {
	return "chat:" + chatID.String()
}

// legacyUserRoom is keyed by the bare user id for older clients using join(userId)
func legacyUserRoom(userID uuid.UUID) string {
	return userID.String()
}

// Rooms tracks room membership. The client keeps the reverse index.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[*Client]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{members: make(map[string]map[*Client]struct{})}
}

// Join adds c to room
func (r *Rooms) Join(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[room] == nil {
		r.members[room] = make(map[*Client]struct{})
	}
	r.members[room][c] = struct{}{}
	c.JoinRoom(room)
}

// Leave removes c from room and reports whether it was a member
func (r *Rooms) Leave(c *Client, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(c, room)
}

func (r *Rooms) leaveLocked(c *Client, room string) bool {
	c.LeaveRoom(room)
	set, ok := r.members[room]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.members, room)
	}
	return true
}

// LeaveAll removes c from every room it joined
func (r *Rooms) LeaveAll(c *Client) []string {
	rooms := c.Rooms()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range rooms {
		r.leaveLocked(c, room)
	}
	return rooms
}

// Recipients returns the live members of the given rooms, each once
func (r *Rooms) Recipients(except *Client, rooms ...string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[*Client]struct{})
	var out []*Client
	for _, room := range rooms {
		for c := range r.members[room] {
			if c == except || !c.IsLive() {
				continue
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// Size returns the number of members in room
func (r *Rooms) Size(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[room])
}

// Count returns the number of non-empty rooms
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
