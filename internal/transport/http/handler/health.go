package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type sessionCounter interface {
	Total() int
}

// HealthStatus is the body of GET /v1/health-check/status.
type HealthStatus struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	LiveSessions  int    `json:"live_sessions"`
}

// HealthHandler answers liveness probes.
type HealthHandler struct {
	sessions sessionCounter
	started  time.Time
}

func NewHealthHandler(sessions sessionCounter) *HealthHandler {
	return &HealthHandler{sessions: sessions, started: time.Now()}
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "status":
		st := HealthStatus{Status: "ok", UptimeSeconds: int64(time.Since(h.started).Seconds())}
		if h.sessions != nil {
			st.LiveSessions = h.sessions.Total()
		}
		writeJSON(w, http.StatusOK, st)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
