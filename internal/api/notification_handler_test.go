package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observer/gigline/internal/database"
	"github.com/observer/gigline/internal/domain"
	"github.com/observer/gigline/internal/notification"
)

type notificationFixture struct {
	store   *database.MemoryStore
	emitter *recordingEmitter
	handler *NotificationHandler
	owner   uuid.UUID
	admin   uuid.UUID
}

func newNotificationFixture() *notificationFixture {
	store := database.NewMemoryStore()
	emitter := &recordingEmitter{}
	owner := domain.User{ID: uuid.New(), Username: "owner", Role: domain.UserRoleFreelancer}
	admin := domain.User{ID: uuid.New(), Username: "ops", Role: domain.UserRoleAdmin}
	store.AddUser(owner, "")
	store.AddUser(admin, "")
	return &notificationFixture{
		store:   store,
		emitter: emitter,
		handler: NewNotificationHandler(notification.NewDispatcher(store, testLogger()), store, emitter, testLogger()),
		owner:   owner.ID,
		admin:   admin.ID,
	}
}

func (f *notificationFixture) seed(t *testing.T, title string) *domain.Notification {
	t.Helper()
	n := &domain.Notification{
		ID:          uuid.New(),
		RecipientID: f.owner,
		Type:        domain.NotificationSystem,
		Title:       title,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.store.Create(context.Background(), n))
	return n
}

type listResponse struct {
	Notifications []struct {
		ID      uuid.UUID `json:"id"`
		Title   string    `json:"title"`
		Read    bool      `json:"read"`
		TimeAgo string    `json:"timeAgo"`
	} `json:"notifications"`
	UnreadCount int `json:"unreadCount"`
}

func TestNotificationHandler_Create(t *testing.T) {
	f := newNotificationFixture()

	rec := httptest.NewRecorder()
	f.handler.Create(rec, newRequest(t, http.MethodPost, "/notifications", map[string]any{
		"recipient": f.owner.String(),
		"type":      "system",
		"title":     "Scheduled maintenance",
		"message":   "Back in ten minutes",
		"metadata":  map[string]any{"link": "/status"},
	}, f.admin))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeResponse[map[string]any](t, rec)
	assert.Equal(t, "now", created["timeAgo"])
	assert.Equal(t, f.admin.String(), created["sender"])

	stored, err := f.store.List(context.Background(), f.owner, domain.NotificationQuery{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.NotificationSystem, stored[0].Type)

	events := f.emitter.all()
	require.Len(t, events, 1)
	assert.Equal(t, notification.EventNewNotification, events[0].event)
	assert.Equal(t, f.owner, events[0].userID)
}

func TestNotificationHandler_Create_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"not json", "nope"},
		{"missing recipient", map[string]any{"type": "system", "title": "x"}},
		{"bad recipient", map[string]any{"recipient": "42", "type": "system", "title": "x"}},
		{"missing title", map[string]any{"recipient": uuid.NewString(), "type": "system"}},
		{"unknown type", map[string]any{"recipient": uuid.NewString(), "type": "party", "title": "x"}},
		{"bad metadata", map[string]any{"recipient": uuid.NewString(), "type": "system", "title": "x", "metadata": []int{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newNotificationFixture()
			rec := httptest.NewRecorder()
			f.handler.Create(rec, newRequest(t, http.MethodPost, "/notifications", tt.body, f.admin))

			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Empty(t, f.emitter.all())
		})
	}
}

func TestNotificationHandler_Create_Forbidden(t *testing.T) {
	system := func(recipient uuid.UUID) map[string]any {
		return map[string]any{"recipient": recipient.String(), "type": "system", "title": "x"}
	}

	tests := []struct {
		name   string
		caller func(f *notificationFixture) uuid.UUID
		body   func(f *notificationFixture) map[string]any
	}{
		{
			name:   "regular user",
			caller: func(f *notificationFixture) uuid.UUID { return f.owner },
			body:   func(f *notificationFixture) map[string]any { return system(uuid.New()) },
		},
		{
			name:   "unknown user",
			caller: func(f *notificationFixture) uuid.UUID { return uuid.New() },
			body:   func(f *notificationFixture) map[string]any { return system(f.owner) },
		},
		{
			name:   "admin forging a payment",
			caller: func(f *notificationFixture) uuid.UUID { return f.admin },
			body: func(f *notificationFixture) map[string]any {
				return map[string]any{"recipient": f.owner.String(), "type": "payment_received", "title": "Paid"}
			},
		},
		{
			name:   "admin forging a chat message",
			caller: func(f *notificationFixture) uuid.UUID { return f.admin },
			body: func(f *notificationFixture) map[string]any {
				return map[string]any{
					"recipient": f.owner.String(), "type": "new_message", "title": "New message",
					"metadata": map[string]any{"chat_id": uuid.NewString()},
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newNotificationFixture()
			rec := httptest.NewRecorder()
			f.handler.Create(rec, newRequest(t, http.MethodPost, "/notifications", tt.body(f), tt.caller(f)))

			assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
			assert.Empty(t, f.emitter.all())
			stored, err := f.store.List(context.Background(), f.owner, domain.NotificationQuery{})
			require.NoError(t, err)
			assert.Empty(t, stored)
		})
	}
}

func TestNotificationHandler_RequiresUser(t *testing.T) {
	f := newNotificationFixture()

	rec := httptest.NewRecorder()
	f.handler.List(rec, newRequest(t, http.MethodGet, "/notifications", nil, uuid.Nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotificationHandler_ListAndCount(t *testing.T) {
	f := newNotificationFixture()
	first := f.seed(t, "first")
	f.seed(t, "second")
	_, err := f.store.MarkRead(context.Background(), f.owner, first.ID, time.Now())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.handler.List(rec, newRequest(t, http.MethodGet, "/notifications", nil, f.owner))
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeResponse[listResponse](t, rec)
	assert.Len(t, all.Notifications, 2)
	assert.Equal(t, 1, all.UnreadCount)

	rec = httptest.NewRecorder()
	f.handler.List(rec, newRequest(t, http.MethodGet, "/notifications?unread=true", nil, f.owner))
	unread := decodeResponse[listResponse](t, rec)
	require.Len(t, unread.Notifications, 1)
	assert.Equal(t, "second", unread.Notifications[0].Title)

	rec = httptest.NewRecorder()
	f.handler.UnreadCount(rec, newRequest(t, http.MethodGet, "/notifications/unread-count", nil, f.owner))
	assert.Equal(t, map[string]int{"unreadCount": 1}, decodeResponse[map[string]int](t, rec))
}

func TestNotificationHandler_List_BadQuery(t *testing.T) {
	f := newNotificationFixture()

	for _, target := range []string{"/notifications?limit=0", "/notifications?limit=x", "/notifications?before=yesterday"} {
		rec := httptest.NewRecorder()
		f.handler.List(rec, newRequest(t, http.MethodGet, target, nil, f.owner))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestNotificationHandler_MarkRead(t *testing.T) {
	f := newNotificationFixture()
	n := f.seed(t, "hello")

	req := newRequest(t, http.MethodPut, "/notifications/"+n.ID.String()+"/read", nil, f.owner)
	req.SetPathValue("id", n.ID.String())
	rec := httptest.NewRecorder()
	f.handler.MarkRead(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeResponse[map[string]any](t, rec)["read"])

	events := f.emitter.all()
	require.Len(t, events, 1)
	assert.Equal(t, notification.EventNotificationRead, events[0].event)
	assert.Equal(t, n.ID, events[0].payload)
}

func TestNotificationHandler_MarkRead_OtherUsersNotification(t *testing.T) {
	f := newNotificationFixture()
	n := f.seed(t, "private")

	req := newRequest(t, http.MethodPut, "/notifications/"+n.ID.String()+"/read", nil, uuid.New())
	req.SetPathValue("id", n.ID.String())
	rec := httptest.NewRecorder()
	f.handler.MarkRead(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.emitter.all())
}

func TestNotificationHandler_MarkRead_InvalidID(t *testing.T) {
	f := newNotificationFixture()

	req := newRequest(t, http.MethodPut, "/notifications/abc/read", nil, f.owner)
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()
	f.handler.MarkRead(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationHandler_MarkAllRead(t *testing.T) {
	f := newNotificationFixture()
	f.seed(t, "one")
	f.seed(t, "two")

	rec := httptest.NewRecorder()
	f.handler.MarkAllRead(rec, newRequest(t, http.MethodPut, "/notifications/read-all", nil, f.owner))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int64{"updated": 2}, decodeResponse[map[string]int64](t, rec))

	events := f.emitter.all()
	require.Len(t, events, 1)
	assert.Equal(t, notification.EventCleared, events[0].event)
}

func TestNotificationHandler_Archive(t *testing.T) {
	f := newNotificationFixture()
	n := f.seed(t, "old")

	req := newRequest(t, http.MethodPut, "/notifications/"+n.ID.String()+"/archive", nil, f.owner)
	req.SetPathValue("id", n.ID.String())
	rec := httptest.NewRecorder()
	f.handler.Archive(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	f.handler.List(rec, newRequest(t, http.MethodGet, "/notifications", nil, f.owner))
	assert.Empty(t, decodeResponse[listResponse](t, rec).Notifications, "archived notifications are hidden by default")

	rec = httptest.NewRecorder()
	f.handler.List(rec, newRequest(t, http.MethodGet, "/notifications?archived=true", nil, f.owner))
	assert.Len(t, decodeResponse[listResponse](t, rec).Notifications, 1)
}
