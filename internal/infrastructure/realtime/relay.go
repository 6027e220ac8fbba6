package realtime

import (
	"context"

	"github.com/go-taskpulse/internal/domain"
)

// Relay pushes notification events to the recipient's live sessions.
type Relay struct {
	registry *Registry
}

func NewRelay(registry *Registry) *Relay {
	return &Relay{registry: registry}
}

// HandleNotification broadcasts n. A recipient with no sessions is not an error.
func (r *Relay) HandleNotification(_ context.Context, n *domain.Notification) error {
	r.registry.Broadcast(n.UserID, NotificationEvent(n))
	return nil
}

