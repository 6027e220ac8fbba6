package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-taskpulse/internal/domain"
)

const defaultEmailTemplate = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #333;">{{.Title}}</h2>
  <p style="color: #666;">{{.Message}}</p>
  {{- if .Link}}
  <a href="{{.Link}}" style="display: inline-block; padding: 10px 20px; background-color: #007bff; color: white; text-decoration: none; border-radius: 5px;">View Details</a>
  {{- end}}
  <p style="color: #999; font-size: 12px;">You receive this email because {{.Reason}} notifications are enabled. Manage them at <a href="{{.SettingsURL}}">{{.SettingsURL}}</a>.</p>
</div>`

var categoryReasons = map[domain.Category]string{
	domain.CategoryTaskAssigned:      "task assignment",
	domain.CategoryTaskUpdated:       "task update",
	domain.CategoryTaskCompleted:     "task completion",
	domain.CategoryTaskCommented:     "task comment",
	domain.CategoryTeamInvite:        "team invitation",
	domain.CategoryTeamJoined:        "team membership",
	domain.CategoryRecurringRollover: "recurring task",
}

// TemplateSource supplies optional per-category template overrides.
// Fetch reports found=false when no override exists.
type TemplateSource interface {
	Fetch(ctx context.Context, category domain.Category) (body string, found bool, err error)
}

// EmailData is the data every email template is executed with.
type EmailData struct {
	Title         string
	Message       string
	Link          string
	Category      domain.Category
	Reason        string
	RecipientName string
	SettingsURL   string
}

// Templates renders notification emails. Overrides from the source are parsed
// once per category and cached; a failed fetch falls back to the default
// without caching so the next render retries.
type Templates struct {
	source   TemplateSource
	fallback *template.Template
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[domain.Category]*template.Template
}

// NewTemplates builds a renderer. source may be nil.
func NewTemplates(source TemplateSource, logger *slog.Logger) *Templates {
	if logger == nil {
		logger = slog.Default()
	}
	return &Templates{
		source:   source,
		fallback: template.Must(template.New("default").Parse(defaultEmailTemplate)),
		logger:   logger.With("component", "email-templates"),
		cache:    make(map[domain.Category]*template.Template),
	}
}

// Render executes the template for data.Category.
func (t *Templates) Render(ctx context.Context, data EmailData) (string, error) {
	if data.Reason == "" {
		data.Reason = categoryReasons[data.Category]
	}
	tmpl := t.lookup(ctx, data.Category)
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", data.Category, err)
	}
	return buf.String(), nil
}

func (t *Templates) lookup(ctx context.Context, c domain.Category) *template.Template {
	t.mu.RLock()
	tmpl, ok := t.cache[c]
	t.mu.RUnlock()
	if ok {
		return tmpl
	}
	if t.source == nil {
		return t.fallback
	}

	body, found, err := t.source.Fetch(ctx, c)
	if err != nil {
		t.logger.Warn("template override fetch failed", "category", c, "err", err)
		return t.fallback
	}
	tmpl = t.fallback
	if found {
		parsed, perr := template.New(string(c)).Parse(body)
		if perr != nil {
			t.logger.Warn("template override invalid", "category", c, "err", perr)
		} else {
			tmpl = parsed
		}
	}

	t.mu.Lock()
	t.cache[c] = tmpl
	t.mu.Unlock()
	return tmpl
}

// absoluteLink turns an app-relative link into an absolute URL.
func absoluteLink(baseURL string, link *string) string {
	if link == nil || *link == "" {
		return ""
	}
	if strings.HasPrefix(*link, "/") {
		return baseURL + *link
	}
	return *link
}
