package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-taskpulse/internal/domain"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotificationSvc struct{ mock.Mock }

func (m *mockNotificationSvc) Notify(ctx context.Context, recipientID string, c domain.Category, p domain.NotificationPayload) (*domain.Notification, error) {
	args := m.Called(ctx, recipientID, c, p)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockNotificationSvc) List(ctx context.Context, userID string) ([]domain.Notification, error) {
	args := m.Called(ctx, userID)
	list, _ := args.Get(0).([]domain.Notification)
	return list, args.Error(1)
}
func (m *mockNotificationSvc) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	args := m.Called(ctx, userID)
	list, _ := args.Get(0).([]domain.Notification)
	return list, args.Error(1)
}
func (m *mockNotificationSvc) MarkAsRead(ctx context.Context, userID, id string) (*domain.Notification, error) {
	args := m.Called(ctx, userID, id)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockNotificationSvc) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}
func (m *mockNotificationSvc) Delete(ctx context.Context, userID, id string) error {
	return m.Called(ctx, userID, id).Error(0)
}
func (m *mockNotificationSvc) ClearAll(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func TestNotificationList_MissingClaims(t *testing.T) {
	h := NewNotificationHandler(&mockNotificationSvc{})
	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/v1/notifications", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestNotificationList_UnreadOnly(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockNotificationSvc{}
	svc.On("ListUnread", mock.Anything, "u1").Return([]domain.Notification{{NotificationID: "n1", UserID: "u1"}}, nil)
	h := NewNotificationHandler(svc)

	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.List), rr, bearerReq(t, p, http.MethodGet, "/v1/notifications?unread=true", "u1", domain.RoleUser, nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var got []domain.Notification
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "n1", got[0].NotificationID)
	svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestNotificationList_EmptyIsArray(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockNotificationSvc{}
	svc.On("List", mock.Anything, "u1").Return(nil, nil)
	h := NewNotificationHandler(svc)

	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.List), rr, bearerReq(t, p, http.MethodGet, "/v1/notifications", "u1", domain.RoleUser, nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestNotificationMarkAsRead_NotOwned(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockNotificationSvc{}
	svc.On("MarkAsRead", mock.Anything, "u1", "n9").Return(nil, domain.ErrNotFound)
	h := NewNotificationHandler(svc)

	r := withChiParams(bearerReq(t, p, http.MethodPut, "/v1/notifications/n9/read", "u1", domain.RoleUser, nil), "id", "n9")
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.MarkAsRead), rr, r)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	svc.AssertExpectations(t)
}

func TestNotificationMarkAllAsRead(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockNotificationSvc{}
	svc.On("MarkAllAsRead", mock.Anything, "u1").Return(3, nil)
	h := NewNotificationHandler(svc)

	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.MarkAllAsRead), rr, bearerReq(t, p, http.MethodPut, "/v1/notifications/read-all", "u1", domain.RoleUser, nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp CountEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Count)
}

func TestNotify_ValidationFailure(t *testing.T) {
	h := NewNotificationHandler(&mockNotificationSvc{})
	body, _ := json.Marshal(map[string]string{"recipient_id": "u1", "category": "birthday", "title": "t", "message": "m"})

	rr := httptest.NewRecorder()
	h.Notify(rr, httptest.NewRequest(http.MethodPost, "/v1/notifications", bytesReader(body)))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestNotify_InAppDisabledReturnsNull(t *testing.T) {
	svc := &mockNotificationSvc{}
	svc.On("Notify", mock.Anything, "u1", domain.CategoryTaskAssigned, mock.Anything).Return(nil, nil)
	h := NewNotificationHandler(svc)
	body, _ := json.Marshal(map[string]string{"recipient_id": "u1", "category": "task_assigned", "title": "t", "message": "m"})

	rr := httptest.NewRecorder()
	h.Notify(rr, httptest.NewRequest(http.MethodPost, "/v1/notifications", bytesReader(body)))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"notification":null}`, rr.Body.String())
	svc.AssertExpectations(t)
}
