package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	jwtinfra "github.com/go-taskpulse/internal/infrastructure/jwt"
	"github.com/go-taskpulse/internal/infrastructure/realtime"
	"github.com/go-taskpulse/internal/transport/http/middleware"
	"github.com/gorilla/websocket"
)

// WSHandler authenticates and upgrades live-notification connections.
type WSHandler struct {
	provider *jwtinfra.Provider
	registry *realtime.Registry
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(provider *jwtinfra.Provider, registry *realtime.Registry, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		provider: provider,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.With("component", "ws"),
	}
}

// Connect verifies the bearer token before upgrading; unauthenticated
// requests get a plain 401 and never become sessions.
func (h *WSHandler) Connect(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.TokenFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication error")
		return
	}
	claims, err := h.provider.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication error")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "user_id", claims.UserID, "err", err)
		return
	}
	realtime.NewClient(claims.UserID, conn, h.registry, h.logger).Start()
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
