package http

import (
	"log/slog"

	"github.com/go-taskpulse/internal/application/audit"
	"github.com/go-taskpulse/internal/application/notification"
	"github.com/go-taskpulse/internal/application/preference"
	"github.com/go-taskpulse/internal/application/user"
	jwtinfra "github.com/go-taskpulse/internal/infrastructure/jwt"
	"github.com/go-taskpulse/internal/infrastructure/realtime"
	"github.com/go-taskpulse/internal/transport/http/handler"
)

// Deps holds the services and infrastructure the router wires into handlers.
type Deps struct {
	Notifications notification.Service
	Preferences   preference.Service
	Audit         audit.Service
	EmailSettings user.Service
	Recurrence    handler.RecurrenceService
	Registry      *realtime.Registry
	JWTProvider   *jwtinfra.Provider
	Logger        *slog.Logger
}
