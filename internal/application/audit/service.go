package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-taskpulse/internal/domain"
	"github.com/go-taskpulse/internal/infrastructure/metrics"
	"github.com/go-taskpulse/internal/pkg/id"
)

// entityIDKeys are the detail keys consulted, in order, when no explicit entity id is given.
var entityIDKeys = []string{"entityId", "taskId", "projectId", "teamId"}

// Service is the append-only audit ledger. Append is never best effort:
// callers must treat its error as fatal to the operation being audited.
type Service interface {
	Append(ctx context.Context, in domain.AppendAuditRequest) (*domain.AuditEntry, error)
	Get(ctx context.Context, auditID string) (*domain.AuditEntry, error)
	Query(ctx context.Context, f domain.AuditFilter) (*domain.AuditPage, error)
	History(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error)
}

type auditStore interface {
	Append(ctx context.Context, e *domain.AuditEntry) error
	Get(ctx context.Context, auditID string) (*domain.AuditEntry, error)
	Query(ctx context.Context, f domain.AuditFilter) (*domain.AuditPage, error)
	History(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error)
}

type service struct {
	repo   auditStore
	logger *slog.Logger
	now    func() time.Time
}

type ServiceDeps struct {
	AuditRepo auditStore
	Logger    *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{repo: deps.AuditRepo, logger: deps.Logger, now: deps.Now}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.logger = s.logger.With("component", "audit")
	return s
}

func (s *service) Append(ctx context.Context, in domain.AppendAuditRequest) (*domain.AuditEntry, error) {
	if in.ActorID == "" || in.Action == "" {
		return nil, fmt.Errorf("audit entry needs actor and action: %w", domain.ErrBadRequest)
	}
	entityID := ResolveEntityID(in.EntityID, in.Detail)
	if entityID == "" {
		return nil, fmt.Errorf("audit %s: no entity id: %w", in.Action, domain.ErrBadRequest)
	}
	now := s.now()
	e := &domain.AuditEntry{
		AuditID:    id.At(now),
		ActorID:    in.ActorID,
		Action:     in.Action,
		EntityType: ResolveEntityType(in.EntityType, in.Action, in.Detail),
		EntityID:   entityID,
		Detail:     in.Detail,
		CreatedAt:  now.UTC(),
	}
	err := s.repo.Append(ctx, e)
	metrics.RecordAuditAppend(err)
	if err != nil {
		s.logger.Error("audit append failed", "action", e.Action, "entity_type", e.EntityType, "entity_id", e.EntityID, "err", err)
		return nil, fmt.Errorf("append audit entry: %w", err)
	}
	return e, nil
}

func (s *service) Get(ctx context.Context, auditID string) (*domain.AuditEntry, error) {
	return s.repo.Get(ctx, auditID)
}

func (s *service) Query(ctx context.Context, f domain.AuditFilter) (*domain.AuditPage, error) {
	if f.EntityID != "" && f.EntityType == "" {
		return nil, fmt.Errorf("entity_id filter needs entity_type: %w", domain.ErrBadRequest)
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, fmt.Errorf("from is after to: %w", domain.ErrBadRequest)
	}
	return s.repo.Query(ctx, f)
}

func (s *service) History(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	if entityType == "" || entityID == "" {
		return nil, fmt.Errorf("entity type and id are required: %w", domain.ErrBadRequest)
	}
	return s.repo.History(ctx, entityType, entityID)
}

// ResolveEntityID returns explicit when set, else the first usable id found in detail.
func ResolveEntityID(explicit string, detail map[string]any) string {
	if explicit != "" {
		return explicit
	}
	for _, k := range entityIDKeys {
		if v := detailString(detail, k); v != "" {
			return v
		}
	}
	return ""
}

// ResolveEntityType returns explicit when set, else detail.entityType, else the
// lower-cased prefix of the action tag ("TASK_CREATED" becomes "task").
func ResolveEntityType(explicit, action string, detail map[string]any) string {
	if explicit != "" {
		return explicit
	}
	if v := detailString(detail, "entityType"); v != "" {
		return v
	}
	prefix, _, _ := strings.Cut(action, "_")
	return strings.ToLower(prefix)
}

func detailString(detail map[string]any, key string) string {
	switch v := detail[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}
