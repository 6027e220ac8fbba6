package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-taskpulse/internal/domain"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAuditSvc struct{ mock.Mock }

func (m *mockAuditSvc) Append(ctx context.Context, in domain.AppendAuditRequest) (*domain.AuditEntry, error) {
	args := m.Called(ctx, in)
	if e, _ := args.Get(0).(*domain.AuditEntry); e != nil {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuditSvc) Get(ctx context.Context, id string) (*domain.AuditEntry, error) {
	args := m.Called(ctx, id)
	if e, _ := args.Get(0).(*domain.AuditEntry); e != nil {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuditSvc) Query(ctx context.Context, f domain.AuditFilter) (*domain.AuditPage, error) {
	args := m.Called(ctx, f)
	if p, _ := args.Get(0).(*domain.AuditPage); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuditSvc) History(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, entityType, entityID)
	list, _ := args.Get(0).([]domain.AuditEntry)
	return list, args.Error(1)
}

func TestAuditList_ParsesFilter(t *testing.T) {
	svc := &mockAuditSvc{}
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.On("Query", mock.Anything, mock.MatchedBy(func(f domain.AuditFilter) bool {
		return f.ActorID == "u1" && f.Action == "TASK_CREATED" && f.Limit == 10 &&
			f.From != nil && f.From.Equal(from) && f.To == nil && f.Cursor == "abc"
	})).Return(&domain.AuditPage{Entries: []domain.AuditEntry{{AuditID: "a1"}}, NextCursor: "next"}, nil)
	h := NewAuditHandler(svc)

	r := httptest.NewRequest(http.MethodGet, "/v1/audit-logs?actor_id=u1&action=TASK_CREATED&limit=10&from=2024-01-01T00:00:00Z&cursor=abc", nil)
	rr := httptest.NewRecorder()
	h.List(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var page domain.AuditPage
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&page))
	assert.Equal(t, "next", page.NextCursor)
	require.Len(t, page.Entries, 1)
	svc.AssertExpectations(t)
}

func TestAuditList_BadParams(t *testing.T) {
	h := NewAuditHandler(&mockAuditSvc{})
	for _, target := range []string{
		"/v1/audit-logs?from=yesterday",
		"/v1/audit-logs?to=2024-13-01",
		"/v1/audit-logs?limit=-4",
	} {
		rr := httptest.NewRecorder()
		h.List(rr, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestAuditList_ServiceRejectsFilter(t *testing.T) {
	svc := &mockAuditSvc{}
	svc.On("Query", mock.Anything, mock.Anything).Return(nil, domain.ErrBadRequest)
	h := NewAuditHandler(svc)

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/v1/audit-logs?entity_id=t1", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuditHistory(t *testing.T) {
	svc := &mockAuditSvc{}
	svc.On("History", mock.Anything, "task", "t1").Return([]domain.AuditEntry{{AuditID: "a2"}, {AuditID: "a1"}}, nil)
	h := NewAuditHandler(svc)

	r := withChiParams(httptest.NewRequest(http.MethodGet, "/v1/audit-logs/task/t1", nil), "entityType", "task", "entityId", "t1")
	rr := httptest.NewRecorder()
	h.History(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var got []domain.AuditEntry
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "a2", got[0].AuditID)
}

func TestAuditGet_NotFound(t *testing.T) {
	svc := &mockAuditSvc{}
	svc.On("Get", mock.Anything, "nope").Return(nil, domain.ErrNotFound)
	h := NewAuditHandler(svc)

	rr := httptest.NewRecorder()
	h.Get(rr, withChiParams(httptest.NewRequest(http.MethodGet, "/v1/audit-logs/nope", nil), "id", "nope"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAuditAppend(t *testing.T) {
	svc := &mockAuditSvc{}
	svc.On("Append", mock.Anything, mock.MatchedBy(func(in domain.AppendAuditRequest) bool {
		return in.ActorID == "svc" && in.Detail["taskId"] == "t1"
	})).Return(&domain.AuditEntry{AuditID: "a1", EntityID: "t1"}, nil)
	h := NewAuditHandler(svc)

	body := []byte(`{"actor_id":"svc","action":"TASK_UPDATED","detail":{"taskId":"t1"}}`)
	rr := httptest.NewRecorder()
	h.Append(rr, httptest.NewRequest(http.MethodPost, "/v1/audit-logs", bytesReader(body)))

	assert.Equal(t, http.StatusCreated, rr.Code)
	svc.AssertExpectations(t)
}

func TestAuditAppend_RecordsVerifiedCaller(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockAuditSvc{}
	svc.On("Append", mock.Anything, mock.MatchedBy(func(in domain.AppendAuditRequest) bool {
		return in.ActorID == "someone-else" &&
			in.Detail["taskId"] == "t1" &&
			in.Detail["recordedBy"] == "billing-svc" &&
			in.Detail["recordedByRole"] == domain.RoleService
	})).Return(&domain.AuditEntry{AuditID: "a1", EntityID: "t1"}, nil)
	h := NewAuditHandler(svc)

	// A body-supplied recordedBy cannot mask the caller.
	body := []byte(`{"actor_id":"someone-else","action":"TASK_UPDATED","detail":{"taskId":"t1","recordedBy":"forged"}}`)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Append), rr,
		bearerReq(t, p, http.MethodPost, "/v1/audit-logs", "billing-svc", domain.RoleService, body))

	assert.Equal(t, http.StatusCreated, rr.Code)
	svc.AssertExpectations(t)
}

func TestAuditAppend_MissingActor(t *testing.T) {
	h := NewAuditHandler(&mockAuditSvc{})
	rr := httptest.NewRecorder()
	h.Append(rr, httptest.NewRequest(http.MethodPost, "/v1/audit-logs", bytesReader([]byte(`{"action":"X"}`))))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
