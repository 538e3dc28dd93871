package websocket

import (
	"encoding/json"

	"github.com/observer/gigline/internal/domain"
)

// announceOnline tells every other live connection that s's user is online
func (h *Hub) announceOnline(s Session) {
	if !s.broadcastsPresence() {
		return
	}
	h.broadcastExcept(s.client, EventUserOnline, s.UserID)
}

// announceOffline tells every live connection that s's user went offline
func (h *Hub) announceOffline(s Session) {
	if !s.broadcastsPresence() {
		return
	}
	h.broadcastExcept(s.client, EventUserOffline, s.UserID)
}

// announceReplacement reconciles what others last saw of old with the
// session that replaced it. A reconnect that looks the same emits nothing.
func (h *Hub) announceReplacement(old, s Session) {
	switch {
	case !s.broadcastsPresence():
		if old.broadcastsPresence() {
			h.broadcastExcept(s.client, EventUserOffline, s.UserID)
		}
		return
	case !old.broadcastsPresence():
		h.broadcastExcept(s.client, EventUserOnline, s.UserID)
	}
	if old.Status != s.Status {
		h.broadcastExcept(s.client, EventUserStatusChanged, StatusChangedPayload{
			UserID:   s.UserID,
			Status:   s.Status.Visible(),
			LastSeen: s.LastSeen,
		})
	}
}

func (h *Hub) handleUpdateStatus(c *Client, payload json.RawMessage) {
	var p UpdateStatusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		// update-status("away") is accepted as well as {"status":"away"}
		if err := json.Unmarshal(payload, &p.Status); err != nil {
			return
		}
	}

	status, ok := domain.ParseRequestedStatus(p.Status)
	if !ok {
		return
	}

	before, ok := h.registry.Get(c.userID)
	if !ok || before.ConnectionID != c.id {
		return
	}
	after, ok := h.registry.SetStatus(c.userID, c.id, status)
	if !ok || !after.ShowPresence {
		return
	}

	// Going invisible reads as going offline, coming back reads as online again
	if before.Status == domain.StatusInvisible && status != domain.StatusInvisible {
		h.broadcastExcept(c, EventUserOnline, c.userID)
	}
	h.broadcastExcept(nil, EventUserStatusChanged, StatusChangedPayload{
		UserID:   c.userID,
		Status:   status.Visible(),
		LastSeen: after.LastSeen,
	})
}

// broadcastExcept sends an event to every current session but except's
func (h *Hub) broadcastExcept(except *Client, event string, payload any) {
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
	for _, s := range h.registry.Sessions() {
		if s.client == nil || s.client == except {
			continue
		}
		s.client.queue(data)
	}
}
