package domain

// PresenceStatus is the user-observable state of a session
type PresenceStatus string

const (
	StatusOnline    PresenceStatus = "online"
	StatusAway      PresenceStatus = "away"
	StatusBusy      PresenceStatus = "busy"
	StatusInvisible PresenceStatus = "invisible"
	StatusOffline   PresenceStatus = "offline"
)

// ParseRequestedStatus accepts only the statuses a client may set on itself.
// Offline is reached by disconnecting.
func ParseRequestedStatus(s string) (PresenceStatus, bool) {
	switch st := PresenceStatus(s); st {
	case StatusOnline, StatusAway, StatusBusy, StatusInvisible:
		return st, true
	default:
		return "", false
	}
}

// Visible returns the status other users are allowed to see
func (s PresenceStatus) Visible() PresenceStatus {
	if s == StatusInvisible {
		return StatusOffline
	}
	return s
}
