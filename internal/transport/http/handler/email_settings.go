package handler

import (
	"net/http"

	"github.com/go-taskpulse/internal/application/user"
	"github.com/go-taskpulse/internal/domain"
	"github.com/go-taskpulse/internal/transport/http/middleware"
)

// EmailSettingsHandler manages the caller's custom SMTP server.
type EmailSettingsHandler struct {
	svc user.Service
}

func NewEmailSettingsHandler(svc user.Service) *EmailSettingsHandler {
	return &EmailSettingsHandler{svc: svc}
}

func (h *EmailSettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, err := h.svc.Get(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u.SMTPOverride)
}

func (h *EmailSettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.EmailSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.svc.SetEmailSettings(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u.SMTPOverride)
}

func (h *EmailSettingsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.ClearEmailSettings(r.Context(), claims.UserID); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Email settings cleared"})
}
