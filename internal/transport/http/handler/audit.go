package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-taskpulse/internal/application/audit"
	"github.com/go-taskpulse/internal/domain"
	"github.com/go-taskpulse/internal/pkg/validate"
	"github.com/go-taskpulse/internal/transport/http/middleware"
)

// AuditHandler exposes the audit ledger to administrators and other services.
type AuditHandler struct {
	svc audit.Service
}

func NewAuditHandler(svc audit.Service) *AuditHandler { return &AuditHandler{svc: svc} }

// List filters the ledger by actor_id, action, entity_type, entity_id and an
// RFC3339 from/to range, paged with limit and cursor.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.AuditFilter{
		ActorID:    q.Get("actor_id"),
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Cursor:     q.Get("cursor"),
	}
	var err error
	if f.From, err = parseTimeParam(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "from must be an RFC3339 timestamp")
		return
	}
	if f.To, err = parseTimeParam(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "to must be an RFC3339 timestamp")
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = int32(n)
	}

	page, err := h.svc.Query(r.Context(), f)
	if err != nil {
		httpError(w, err)
		return
	}
	if page.Entries == nil {
		page.Entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *AuditHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.History(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entityId"))
	if err != nil {
		httpError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Append records an action performed by another service.
func (h *AuditHandler) Append(w http.ResponseWriter, r *http.Request) {
	var req domain.AppendAuditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	// actor_id is the caller's word; the verified caller is recorded beside it.
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		detail := make(map[string]any, len(req.Detail)+2)
		for k, v := range req.Detail {
			detail[k] = v
		}
		detail["recordedBy"] = claims.UserID
		detail["recordedByRole"] = claims.Role
		req.Detail = detail
	}
	e, err := h.svc.Append(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func parseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
