package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-taskpulse/internal/config"
	"github.com/go-taskpulse/internal/domain"
	"github.com/go-taskpulse/internal/transport/http/handler"
	appmiddleware "github.com/go-taskpulse/internal/transport/http/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.Observe(logger.With("component", "http")))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.JWTProvider)

	// 5 requests/second, burst of 10, for socket handshakes and writes from other services.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler(deps.Registry)
	notifH := handler.NewNotificationHandler(deps.Notifications)
	prefH := handler.NewPreferenceHandler(deps.Preferences)
	auditH := handler.NewAuditHandler(deps.Audit)
	emailH := handler.NewEmailSettingsHandler(deps.EmailSettings)
	recurH := handler.NewRecurrenceHandler(deps.Recurrence)
	wsH := handler.NewWSHandler(deps.JWTProvider, deps.Registry, cfg.AllowedOrigins, logger)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)

		// The socket handshake authenticates itself so browsers can pass ?token=.
		r.With(sensitiveRL.Limit).Get("/ws", wsH.Connect)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/notifications", notifH.List)
			r.Put("/notifications/read-all", notifH.MarkAllAsRead)
			r.Put("/notifications/{id}/read", notifH.MarkAsRead)
			r.Delete("/notifications/{id}", notifH.Delete)
			r.Delete("/notifications", notifH.ClearAll)

			r.Get("/notification-preferences", prefH.Get)
			r.Put("/notification-preferences", prefH.Update)

			r.Get("/users/me/email-settings", emailH.Get)
			r.Put("/users/me/email-settings", emailH.Update)
			r.Delete("/users/me/email-settings", emailH.Clear)

			r.Put("/tasks/{id}/recurrence", recurH.Set)
			r.Delete("/tasks/{id}/recurrence", recurH.Clear)

			// Other services raising notifications and audit entries
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin, domain.RoleService))
				r.Use(sensitiveRL.Limit)

				r.Post("/notifications", notifH.Notify)
				r.Post("/audit-logs", auditH.Append)
			})

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Get("/audit-logs", auditH.List)
				r.Get("/audit-logs/{id}", auditH.Get)
				r.Get("/audit-logs/{entityType}/{entityId}", auditH.History)
				r.Post("/recurrence/run", recurH.Run)
			})
		})
	})

	return r
}
