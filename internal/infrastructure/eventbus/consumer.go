package eventbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-taskpulse/internal/domain"
)

type subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// NotificationHandler consumes one notification event.
type NotificationHandler func(ctx context.Context, n *domain.Notification) error

// Consumer feeds notification events to a handler. It is a suture service:
// Serve runs until ctx is cancelled.
type Consumer struct {
	name    string
	sub     subscriber
	handler NotificationHandler
	logger  *slog.Logger
}

func NewConsumer(name string, sub subscriber, handler NotificationHandler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		name:    name,
		sub:     sub,
		handler: handler,
		logger:  logger.With("component", name),
	}
}

func (c *Consumer) Serve(ctx context.Context) error {
	messages, err := c.sub.Subscribe(ctx, TopicNotificationCreated)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicNotificationCreated, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.process(ctx, msg)
		}
	}
}

// process always acks: delivery is best effort and a nack would redeliver forever.
func (c *Consumer) process(ctx context.Context, msg *message.Message) {
	defer msg.Ack()
	n, err := DecodeNotification(msg)
	if err != nil {
		c.logger.Warn("dropping undecodable event", "message_uuid", msg.UUID, "err", err)
		return
	}
	if err := c.handler(ctx, n); err != nil {
		c.logger.Warn("event handler failed", "notification_id", n.NotificationID, "user_id", n.UserID, "err", err)
	}
}

func (c *Consumer) String() string { return c.name }
