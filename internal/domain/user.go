package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserRole is the side of the marketplace a user acts on
type UserRole string

const (
	UserRoleClient     UserRole = "client"
	UserRoleFreelancer UserRole = "freelancer"
	UserRoleAdmin      UserRole = "admin"
)

// User represents a registered marketplace user
type User struct {
	ID               uuid.UUID  `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email,omitempty"` // omit in public responses
	DisplayName      string     `json:"display_name,omitempty"`
	AvatarURL        string     `json:"avatar_url,omitempty"`
	Role             UserRole   `json:"role"`
	ShowOnlineStatus bool       `json:"show_online_status"`
	LastSeenAt       *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// PublicUser is the safe-to-expose version of User
type PublicUser struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"` // Only set if user allows showing online status
}

func (u *User) ToPublic() PublicUser {
	pub := PublicUser{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
	// Only expose presence info if user has opted in
	if u.ShowOnlineStatus {
		pub.LastSeenAt = u.LastSeenAt
	}
	return pub
}

// Name returns the display name, falling back to the username
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// PrivacyPreference controls what other users may observe about a user.
// The realtime core only reads it.
type PrivacyPreference struct {
	UserID       uuid.UUID `json:"user_id"`
	ShowPresence bool      `json:"show_presence"`
}

// PrivacyPreference derives the preference from the user record
func (u *User) PrivacyPreference() PrivacyPreference {
	return PrivacyPreference{UserID: u.ID, ShowPresence: u.ShowOnlineStatus}
}
