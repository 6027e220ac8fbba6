package recurrence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-taskpulse/internal/domain"
)

// SetRule makes taskID recurring, or edits its rule. The due date and next
// run are reset from req. The change is audited before it is written.
func (s *Scheduler) SetRule(ctx context.Context, actorID, taskID string, req domain.SetRecurrenceRequest) (*domain.Task, error) {
	if !req.Frequency.Valid() {
		return nil, fmt.Errorf("unknown frequency %q: %w", req.Frequency, domain.ErrBadRequest)
	}
	if req.DueDate.IsZero() {
		return nil, fmt.Errorf("due date is required: %w", domain.ErrBadRequest)
	}
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.RecurrenceOf != "" {
		return nil, fmt.Errorf("task %s is an occurrence of %s: %w", taskID, task.RecurrenceOf, domain.ErrConflict)
	}

	due := req.DueDate.In(s.loc)
	nextRun, err := Advance(due, req.Frequency)
	if err != nil {
		return nil, err
	}

	if _, err := s.audit.Append(ctx, domain.AppendAuditRequest{
		ActorID:    actorID,
		Action:     domain.ActionTaskRecurrenceSet,
		EntityType: "task",
		EntityID:   taskID,
		Detail: map[string]any{
			"frequency": string(req.Frequency),
			"dueDate":   due.UTC().Format(time.RFC3339),
			"previous":  string(task.Frequency),
		},
	}); err != nil {
		return nil, fmt.Errorf("audit recurrence change: %w", err)
	}
	if err := s.tasks.SetRecurrence(ctx, taskID, req.Frequency, due, nextRun); err != nil {
		return nil, fmt.Errorf("save recurrence: %w", err)
	}
	return s.tasks.Get(ctx, taskID)
}

// ClearRule stops taskID from recurring. Occurrences already created are kept.
func (s *Scheduler) ClearRule(ctx context.Context, actorID, taskID string) (*domain.Task, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.IsRecurring {
		return task, nil
	}
	if _, err := s.audit.Append(ctx, domain.AppendAuditRequest{
		ActorID:    actorID,
		Action:     domain.ActionTaskRecurrenceCleared,
		EntityType: "task",
		EntityID:   taskID,
		Detail:     map[string]any{"frequency": string(task.Frequency)},
	}); err != nil {
		return nil, fmt.Errorf("audit recurrence change: %w", err)
	}
	if err := s.tasks.ClearRecurrence(ctx, taskID); err != nil {
		return nil, fmt.Errorf("clear recurrence: %w", err)
	}
	return s.tasks.Get(ctx, taskID)
}
