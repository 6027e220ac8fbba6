package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-taskpulse/internal/application/recurrence"
	"github.com/go-taskpulse/internal/domain"
	"github.com/go-taskpulse/internal/pkg/validate"
	"github.com/go-taskpulse/internal/transport/http/middleware"
)

// RecurrenceService is what the recurrence endpoints need from the scheduler.
type RecurrenceService interface {
	SetRule(ctx context.Context, actorID, taskID string, req domain.SetRecurrenceRequest) (*domain.Task, error)
	ClearRule(ctx context.Context, actorID, taskID string) (*domain.Task, error)
	RunNow(ctx context.Context) (*recurrence.TickReport, error)
}

// RecurrenceHandler edits recurrence rules and triggers on-demand passes.
type RecurrenceHandler struct {
	svc RecurrenceService
}

func NewRecurrenceHandler(svc RecurrenceService) *RecurrenceHandler {
	return &RecurrenceHandler{svc: svc}
}

func (h *RecurrenceHandler) Set(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.SetRecurrenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	task, err := h.svc.SetRule(r.Context(), claims.UserID, chi.URLParam(r, "id"), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *RecurrenceHandler) Clear(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	task, err := h.svc.ClearRule(r.Context(), claims.UserID, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Run performs one recurrence pass now and returns its report.
func (h *RecurrenceHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.RunNow(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
