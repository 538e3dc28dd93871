package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// User Tests
// =============================================================================

func TestUser_ToPublic_ExposesLastSeenWhenOptedIn(t *testing.T) {
	now := time.Now()
	user := &User{
		ID:               uuid.New(),
		Username:         "alice",
		Email:            "alice@example.com",
		DisplayName:      "Alice W",
		ShowOnlineStatus: true,
		LastSeenAt:       &now,
	}

	pub := user.ToPublic()

	assert.Equal(t, user.ID, pub.ID)
	assert.Equal(t, "Alice W", pub.DisplayName)
	assert.Equal(t, &now, pub.LastSeenAt)
}

func TestUser_ToPublic_HidesLastSeenWhenOptedOut(t *testing.T) {
	now := time.Now()
	user := &User{ID: uuid.New(), Username: "bob", ShowOnlineStatus: false, LastSeenAt: &now}

	pub := user.ToPublic()
	assert.Nil(t, pub.LastSeenAt, "LastSeenAt should be hidden when ShowOnlineStatus=false")
}

func TestUser_Name_FallsBackToUsername(t *testing.T) {
	assert.Equal(t, "carol", (&User{Username: "carol"}).Name())
	assert.Equal(t, "Carol K", (&User{Username: "carol", DisplayName: "Carol K"}).Name())
}

func TestUser_PrivacyPreference(t *testing.T) {
	user := &User{ID: uuid.New(), ShowOnlineStatus: false}
	pref := user.PrivacyPreference()
	assert.Equal(t, user.ID, pref.UserID)
	assert.False(t, pref.ShowPresence)
}

// =============================================================================
// Chat Tests
// =============================================================================

func newTestChat() *Chat {
	return &Chat{ID: uuid.New(), ClientID: uuid.New(), FreelancerID: uuid.New()}
}

func TestChat_IsParticipant(t *testing.T) {
	chat := newTestChat()

	assert.True(t, chat.IsParticipant(chat.ClientID))
	assert.True(t, chat.IsParticipant(chat.FreelancerID))
	assert.False(t, chat.IsParticipant(uuid.New()))
	assert.False(t, chat.IsParticipant(uuid.Nil))
}

func TestChat_Counterpart(t *testing.T) {
	chat := newTestChat()

	other, ok := chat.Counterpart(chat.ClientID)
	assert.True(t, ok)
	assert.Equal(t, chat.FreelancerID, other)

	other, ok = chat.Counterpart(chat.FreelancerID)
	assert.True(t, ok)
	assert.Equal(t, chat.ClientID, other)

	_, ok = chat.Counterpart(uuid.New())
	assert.False(t, ok)
}

func TestChat_NewMessage(t *testing.T) {
	chat := newTestChat()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	msg, err := chat.NewMessage(chat.ClientID, "Hello", at)
	require.NoError(t, err)
	assert.Equal(t, chat.ID, msg.ChatID)
	assert.Equal(t, chat.ClientID, msg.SenderID)
	assert.Equal(t, at, msg.Timestamp)
	assert.Empty(t, chat.Messages, "NewMessage must not append")
}

func TestChat_NewMessage_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Chat)
		sender  func(c *Chat) uuid.UUID
		content string
		wantErr error
	}{
		{"outsider", nil, func(c *Chat) uuid.UUID { return uuid.New() }, "hi", ErrNotParticipant},
		{"archived", func(c *Chat) { c.Archived = true }, func(c *Chat) uuid.UUID { return c.ClientID }, "hi", ErrChatArchived},
		{"empty", nil, func(c *Chat) uuid.UUID { return c.FreelancerID }, "", ErrEmptyMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := newTestChat()
			if tt.mutate != nil {
				tt.mutate(chat)
			}
			_, err := chat.NewMessage(tt.sender(chat), tt.content, time.Now())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestChat_MarkRead(t *testing.T) {
	chat := newTestChat()
	at := time.Now()

	require.NoError(t, chat.MarkRead(chat.FreelancerID, at))
	require.NotNil(t, chat.FreelancerLastReadAt)
	assert.Nil(t, chat.ClientLastReadAt)

	assert.ErrorIs(t, chat.MarkRead(uuid.New(), at), ErrNotParticipant)
}

// =============================================================================
// Presence Tests
// =============================================================================

func TestParseRequestedStatus(t *testing.T) {
	tests := []struct {
		in   string
		want PresenceStatus
		ok   bool
	}{
		{"online", StatusOnline, true},
		{"away", StatusAway, true},
		{"busy", StatusBusy, true},
		{"invisible", StatusInvisible, true},
		{"offline", "", false},
		{"ONLINE", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRequestedStatus(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPresenceStatus_Visible(t *testing.T) {
	assert.Equal(t, StatusOffline, StatusInvisible.Visible())
	assert.Equal(t, StatusBusy, StatusBusy.Visible())
}

// =============================================================================
// Notification Tests
// =============================================================================

func TestCheckMetadata(t *testing.T) {
	assert.NoError(t, CheckMetadata(NotificationNewMessage, MessageMetadata{ChatID: uuid.New()}))
	assert.NoError(t, CheckMetadata(NotificationSystem, nil))
	assert.NoError(t, CheckMetadata(NotificationProposalAccepted, ProposalMetadata{Kind: NotificationProposalAccepted}))

	err := CheckMetadata(NotificationPaymentReceived, ReviewMetadata{Rating: 5})
	assert.ErrorIs(t, err, ErrMetadataMismatch)

	err = CheckMetadata(NotificationType("bogus"), nil)
	assert.ErrorIs(t, err, ErrInvalidNotificationType)
}

func TestNotification_UnmarshalJSON_DecodesMetadataByType(t *testing.T) {
	chatID := uuid.New()
	n := Notification{
		ID:          uuid.New(),
		RecipientID: uuid.New(),
		Type:        NotificationNewMessage,
		Title:       "New message",
		Metadata:    MessageMetadata{ChatID: chatID, Preview: "Hello"},
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}

	data, err := json.Marshal(n)
	require.NoError(t, err)

	var decoded Notification
	require.NoError(t, json.Unmarshal(data, &decoded))

	meta, ok := decoded.Metadata.(MessageMetadata)
	require.True(t, ok, "metadata should decode to MessageMetadata, got %T", decoded.Metadata)
	assert.Equal(t, chatID, meta.ChatID)
	assert.Equal(t, "Hello", meta.Preview)
}

func TestDecodeMetadata_ProposalKeepsKind(t *testing.T) {
	raw := []byte(fmt.Sprintf(`{"job_id":%q,"proposal_id":%q}`, uuid.NewString(), uuid.NewString()))

	m, err := DecodeMetadata(NotificationProposalRejected, raw)
	require.NoError(t, err)
	assert.Equal(t, NotificationProposalRejected, m.NotificationType())
}

func TestDecodeMetadata_EmptyIsNil(t *testing.T) {
	m, err := DecodeMetadata(NotificationSystem, nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = DecodeMetadata(NotificationSystem, []byte("null"))
	require.NoError(t, err)
	assert.Nil(t, m)
}

// =============================================================================
// Error Tests
// =============================================================================

func TestPersistenceError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewPersistenceError("append message", cause)

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "append message: connection reset", err.Error())

	var pe *PersistenceError
	require.True(t, errors.As(fmt.Errorf("send: %w", err), &pe))
	assert.Equal(t, "append message", pe.Op)

	assert.NoError(t, NewPersistenceError("noop", nil))
}
