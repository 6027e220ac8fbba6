package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-taskpulse/internal/domain"
	"github.com/go-taskpulse/internal/pkg/validate"
)

// Service manages a user's custom outbound mail server.
type Service interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	// SetEmailSettings seals the password and stores the override. The change
	// is audited before it is written.
	SetEmailSettings(ctx context.Context, userID string, req domain.EmailSettingsRequest) (*domain.User, error)
	// ClearEmailSettings falls the user back to the default mail server.
	ClearEmailSettings(ctx context.Context, userID string) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	SetSMTPOverride(ctx context.Context, userID string, o *domain.SMTPOverride) error
	ClearSMTPOverride(ctx context.Context, userID string) error
}

type sealer interface {
	Seal(plaintext string) (string, error)
}

type auditor interface {
	Append(ctx context.Context, in domain.AppendAuditRequest) (*domain.AuditEntry, error)
}

type service struct {
	repo   userStore
	box    sealer
	audit  auditor
	logger *slog.Logger
}

type ServiceDeps struct {
	UserRepo userStore
	Box      sealer
	Audit    auditor
	Logger   *slog.Logger
}

func NewService(deps ServiceDeps) Service {
	s := &service{repo: deps.UserRepo, box: deps.Box, audit: deps.Audit, logger: deps.Logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "email-settings")
	return s
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) SetEmailSettings(ctx context.Context, userID string, req domain.EmailSettingsRequest) (*domain.User, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, err
	}
	if _, err := s.repo.Get(ctx, userID); err != nil {
		return nil, err
	}
	sealed, err := s.box.Seal(req.Password)
	if err != nil {
		return nil, fmt.Errorf("seal smtp password: %w", err)
	}

	if err := s.appendAudit(ctx, userID, map[string]any{
		"host":   req.Host,
		"port":   req.Port,
		"from":   req.From,
		"secure": req.Secure,
	}); err != nil {
		return nil, err
	}
	override := &domain.SMTPOverride{
		Host:           req.Host,
		Port:           req.Port,
		Username:       req.Username,
		SealedPassword: sealed,
		From:           req.From,
		Secure:         req.Secure,
	}
	if err := s.repo.SetSMTPOverride(ctx, userID, override); err != nil {
		return nil, fmt.Errorf("save smtp override: %w", err)
	}
	s.logger.Info("email settings updated", "user_id", userID, "host", req.Host)
	return s.repo.Get(ctx, userID)
}

func (s *service) ClearEmailSettings(ctx context.Context, userID string) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.SMTPOverride == nil {
		return nil
	}
	if err := s.appendAudit(ctx, userID, map[string]any{"cleared": true}); err != nil {
		return err
	}
	if err := s.repo.ClearSMTPOverride(ctx, userID); err != nil {
		return fmt.Errorf("clear smtp override: %w", err)
	}
	s.logger.Info("email settings cleared", "user_id", userID)
	return nil
}

func (s *service) appendAudit(ctx context.Context, userID string, detail map[string]any) error {
	if _, err := s.audit.Append(ctx, domain.AppendAuditRequest{
		ActorID:    userID,
		Action:     domain.ActionUserEmailSettings,
		EntityType: "user",
		EntityID:   userID,
		Detail:     detail,
	}); err != nil {
		return fmt.Errorf("audit email settings: %w", err)
	}
	return nil
}
