package realtime

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/go-taskpulse/internal/domain"
)

// EventNotification is the only server-to-client event name.
const EventNotification = "notification"

// Event is the frame envelope written to websocket clients.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// NotificationData is the client-facing shape of a notification.
type NotificationData struct {
	ID        string          `json:"id"`
	Type      domain.Category `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Link      *string         `json:"link"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NotificationEvent wraps n in the notification envelope.
func NotificationEvent(n *domain.Notification) Event {
	return Event{
		Name: EventNotification,
		Data: NotificationData{
			ID:        n.NotificationID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Link:      n.Link,
			CreatedAt: n.CreatedAt,
		},
	}
}

// Encode renders ev as a text frame.
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
