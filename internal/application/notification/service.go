package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-taskpulse/internal/domain"
	"github.com/go-taskpulse/internal/infrastructure/metrics"
	"github.com/go-taskpulse/internal/pkg/id"
)

// Service fans notifications out to the in-app and email channels and
// serves the recipient's inbox.
type Service interface {
	// Notify delivers an event to recipientID on every channel their preferences
	// allow. It returns the persisted record, or nil when in-app delivery is off.
	// Delivery problems are logged rather than returned; only a failure to
	// persist the in-app record is reported.
	Notify(ctx context.Context, recipientID string, category domain.Category, p domain.NotificationPayload) (*domain.Notification, error)
	List(ctx context.Context, userID string) ([]domain.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, userID, notificationID string) (*domain.Notification, error)
	MarkAllAsRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID, notificationID string) error
	ClearAll(ctx context.Context, userID string) (int, error)
}

type notificationStore interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, userID, notificationID string) error
	MarkAllAsRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID, notificationID string) error
	DeleteAllByUser(ctx context.Context, userID string) (int, error)
}

type resolver interface {
	Resolve(ctx context.Context, userID string, category domain.Category) (domain.Decision, error)
}

// publisher hands a persisted notification to the realtime channel.
type publisher interface {
	Publish(ctx context.Context, n *domain.Notification) error
}

// emailQueue accepts email jobs without blocking.
type emailQueue interface {
	Enqueue(job domain.EmailJob) bool
}

type service struct {
	repo      notificationStore
	resolver  resolver
	publisher publisher
	mail      emailQueue
	logger    *slog.Logger
	now       func() time.Time
}

type ServiceDeps struct {
	NotificationRepo notificationStore
	Resolver         resolver
	Publisher        publisher
	MailQueue        emailQueue
	Logger           *slog.Logger
	Now              func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		repo:      deps.NotificationRepo,
		resolver:  deps.Resolver,
		publisher: deps.Publisher,
		mail:      deps.MailQueue,
		logger:    deps.Logger,
		now:       deps.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.logger = s.logger.With("component", "notification")
	return s
}

func (s *service) Notify(ctx context.Context, recipientID string, category domain.Category, p domain.NotificationPayload) (*domain.Notification, error) {
	if recipientID == "" {
		return nil, fmt.Errorf("recipient is required: %w", domain.ErrBadRequest)
	}
	if !category.Valid() {
		return nil, fmt.Errorf("unknown category %q: %w", category, domain.ErrBadRequest)
	}
	if p.Title == "" || p.Message == "" {
		return nil, fmt.Errorf("title and message are required: %w", domain.ErrBadRequest)
	}

	decision, err := s.resolver.Resolve(ctx, recipientID, category)
	if err != nil {
		s.logger.Warn("preference lookup failed, notification skipped",
			"user_id", recipientID, "category", category, "err", err)
		metrics.NotificationsDispatched.WithLabelValues(string(category), "skipped").Inc()
		return nil, nil
	}

	var (
		n          *domain.Notification
		persistErr error
	)
	if decision.InApp {
		now := s.now().UTC()
		n = &domain.Notification{
			NotificationID: id.At(now),
			UserID:         recipientID,
			Type:           category,
			Title:          p.Title,
			Message:        p.Message,
			Link:           p.Link,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.Put(ctx, n); err != nil {
			s.logger.Error("persist notification failed", "user_id", recipientID, "category", category, "err", err)
			metrics.NotificationsDispatched.WithLabelValues(string(category), "in_app_failed").Inc()
			persistErr = fmt.Errorf("persist notification: %w", err)
			n = nil
		} else if err := s.publisher.Publish(ctx, n); err != nil {
			s.logger.Warn("realtime publish failed", "notification_id", n.NotificationID, "user_id", recipientID, "err", err)
		}
	}

	if decision.Email {
		job := domain.EmailJob{RecipientID: recipientID, Category: category, Payload: p}
		if !s.mail.Enqueue(job) {
			s.logger.Warn("mail queue full, email dropped", "user_id", recipientID, "category", category)
		}
	}

	// The email channel runs even when the in-app record could not be stored.
	if persistErr != nil {
		return nil, persistErr
	}
	metrics.NotificationsDispatched.WithLabelValues(string(category), outcome(decision)).Inc()
	return n, nil
}

func outcome(d domain.Decision) string {
	switch {
	case d.InApp && d.Email:
		return "both"
	case d.InApp:
		return "in_app"
	case d.Email:
		return "email"
	}
	return "none"
}

func (s *service) List(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.repo.ListByUser(ctx, userID, false)
}

func (s *service) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.repo.ListByUser(ctx, userID, true)
}

func (s *service) MarkAsRead(ctx context.Context, userID, notificationID string) (*domain.Notification, error) {
	if err := s.repo.MarkAsRead(ctx, userID, notificationID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, notificationID)
}

func (s *service) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *service) Delete(ctx context.Context, userID, notificationID string) error {
	return s.repo.Delete(ctx, userID, notificationID)
}

func (s *service) ClearAll(ctx context.Context, userID string) (int, error) {
	return s.repo.DeleteAllByUser(ctx, userID)
}
