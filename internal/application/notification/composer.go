package notification

import (
	"context"
	"fmt"

	"github.com/go-taskpulse/internal/domain"
)

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

// Composer turns queued email jobs into ready-to-send emails. It runs on the
// mail queue workers, so its lookups never delay Notify.
type Composer struct {
	users     userStore
	templates *Templates
	baseURL   string
}

func NewComposer(users userStore, templates *Templates, baseURL string) *Composer {
	return &Composer{users: users, templates: templates, baseURL: baseURL}
}

func (c *Composer) Compose(ctx context.Context, job domain.EmailJob) (*domain.Email, error) {
	u, err := c.users.Get(ctx, job.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("load recipient %s: %w", job.RecipientID, err)
	}
	if u.Email == "" {
		return nil, fmt.Errorf("recipient %s has no email address: %w", job.RecipientID, domain.ErrBadRequest)
	}
	html, err := c.templates.Render(ctx, EmailData{
		Title:         job.Payload.Title,
		Message:       job.Payload.Message,
		Link:          absoluteLink(c.baseURL, job.Payload.Link),
		Category:      job.Category,
		RecipientName: u.Name,
		SettingsURL:   c.baseURL + "/settings/notifications",
	})
	if err != nil {
		return nil, err
	}
	return &domain.Email{
		To:       u.Email,
		Subject:  job.Payload.Title,
		HTML:     html,
		Override: u.SMTPOverride,
	}, nil
}
