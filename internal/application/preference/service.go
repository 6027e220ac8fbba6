package preference

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-taskpulse/internal/domain"
)

// Service resolves and maintains per-user notification preferences.
type Service interface {
	// Resolve returns the delivery decision for userID and category. A user
	// without a stored record gets the all-enabled default, which is persisted.
	Resolve(ctx context.Context, userID string, category domain.Category) (domain.Decision, error)
	Get(ctx context.Context, userID string) (*domain.NotificationPreference, error)
	Update(ctx context.Context, userID string, req domain.UpdatePreferenceRequest) (*domain.NotificationPreference, error)
}

type preferenceStore interface {
	Get(ctx context.Context, userID string) (*domain.NotificationPreference, error)
	CreateIfAbsent(ctx context.Context, p *domain.NotificationPreference) (*domain.NotificationPreference, error)
	Put(ctx context.Context, p *domain.NotificationPreference) error
}

type service struct {
	repo   preferenceStore
	logger *slog.Logger
	now    func() time.Time
}

type ServiceDeps struct {
	PreferenceRepo preferenceStore
	Logger         *slog.Logger
	Now            func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{repo: deps.PreferenceRepo, logger: deps.Logger, now: deps.Now}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.logger = s.logger.With("component", "preference")
	return s
}

func (s *service) Resolve(ctx context.Context, userID string, category domain.Category) (domain.Decision, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return domain.Decision{}, err
	}
	return Decide(p, category), nil
}

// Decide applies p to category. A nil preference means everything is enabled.
func Decide(p *domain.NotificationPreference, category domain.Category) domain.Decision {
	if p == nil {
		return domain.Decision{InApp: true, Email: true}
	}
	return domain.Decision{
		InApp: p.InApp.Allows(category),
		Email: p.Email.Allows(category),
	}
}

func (s *service) Get(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrBadRequest)
	}
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	if p != nil {
		return normalize(p), nil
	}
	p, err = s.repo.CreateIfAbsent(ctx, domain.DefaultPreference(userID, s.now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("create default preferences: %w", err)
	}
	s.logger.Debug("created default preferences", "user_id", userID)
	return normalize(p), nil
}

func (s *service) Update(ctx context.Context, userID string, req domain.UpdatePreferenceRequest) (*domain.NotificationPreference, error) {
	for _, in := range []*domain.ChannelPreferenceInput{req.Email, req.InApp} {
		if in == nil {
			continue
		}
		for c := range in.Categories {
			if !c.Valid() {
				return nil, fmt.Errorf("unknown category %q: %w", c, domain.ErrBadRequest)
			}
		}
	}

	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	merge(&p.Email, req.Email)
	merge(&p.InApp, req.InApp)
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.Put(ctx, p); err != nil {
		return nil, fmt.Errorf("save preferences: %w", err)
	}
	return p, nil
}

func merge(dst *domain.ChannelPreference, in *domain.ChannelPreferenceInput) {
	if in == nil {
		return
	}
	if in.Enabled != nil {
		dst.Enabled = *in.Enabled
	}
	for c, v := range in.Categories {
		dst.Categories[c] = v
	}
}

func normalize(p *domain.NotificationPreference) *domain.NotificationPreference {
	if p.Email.Categories == nil {
		p.Email.Categories = map[domain.Category]bool{}
	}
	if p.InApp.Categories == nil {
		p.InApp.Categories = map[domain.Category]bool{}
	}
	return p
}
