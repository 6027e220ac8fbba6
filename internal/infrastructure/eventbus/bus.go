package eventbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/go-taskpulse/internal/domain"
)

// TopicNotificationCreated carries every persisted in-app notification.
const TopicNotificationCreated = "notification.created"

// Bus is the in-process event bus between the dispatcher and its delivery consumers.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// New creates a bus. buffer is the per-subscriber output channel size.
// The bus is not persistent: an event published before a consumer has
// subscribed is not delivered to it. The notification record stays in the
// store, so only the live push is missed.
func New(logger *slog.Logger, buffer int64) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: buffer},
			watermill.NewSlogLogger(logger.With("component", "eventbus")),
		),
	}
}

// Publish emits n on TopicNotificationCreated. It does not wait for consumers.
func (b *Bus) Publish(_ context.Context, n *domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}
	msg := message.NewMessage(n.NotificationID, payload)
	msg.Metadata.Set("user_id", n.UserID)
	msg.Metadata.Set("category", string(n.Type))
	return b.pubsub.Publish(TopicNotificationCreated, msg)
}

func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// DecodeNotification reads a notification event payload.
func DecodeNotification(msg *message.Message) (*domain.Notification, error) {
	var n domain.Notification
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		return nil, fmt.Errorf("decode notification event %s: %w", msg.UUID, err)
	}
	return &n, nil
}
