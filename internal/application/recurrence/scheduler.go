package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-taskpulse/internal/domain"
	"github.com/go-taskpulse/internal/infrastructure/metrics"
	"github.com/robfig/cron/v3"
)

// SystemActor is recorded as the audit actor when a rule has no creator.
const SystemActor = "system"

type taskStore interface {
	Get(ctx context.Context, taskID string) (*domain.Task, error)
	FindRecurringDueBy(ctx context.Context, ts time.Time) ([]domain.Task, error)
	CreateOccurrence(ctx context.Context, t *domain.Task) error
	AdvanceDueDate(ctx context.Context, taskID string, expectedDue, newDue, nextRun time.Time) error
	SetRecurrence(ctx context.Context, taskID string, freq domain.Frequency, due, nextRun time.Time) error
	ClearRecurrence(ctx context.Context, taskID string) error
}

type auditor interface {
	Append(ctx context.Context, in domain.AppendAuditRequest) (*domain.AuditEntry, error)
	History(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error)
}

type notifier interface {
	Notify(ctx context.Context, recipientID string, category domain.Category, p domain.NotificationPayload) (*domain.Notification, error)
}

// TaskFailure is one rule that could not be rolled over.
type TaskFailure struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

// TickReport summarises one pass over the due rules.
type TickReport struct {
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	Due         int           `json:"due"`
	RolledOver  int           `json:"rolled_over"`
	Skipped     int           `json:"skipped"`
	Failed      []TaskFailure `json:"failed"`
	Interrupted bool          `json:"interrupted"`
}

// Scheduler regenerates recurring tasks. Serve drives it from a cron schedule;
// Tick and RunNow run one pass immediately. Passes never overlap.
type Scheduler struct {
	tasks    taskStore
	audit    auditor
	notifier notifier
	schedule cron.Schedule
	loc      *time.Location
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	running atomic.Bool
}

type SchedulerDeps struct {
	TaskRepo taskStore
	Audit    auditor
	Notifier notifier
	// Schedule is a standard five-field cron expression. Defaults to daily at midnight.
	Schedule string
	// Location is the zone the schedule and month arithmetic run in. Defaults to time.Local.
	Location *time.Location
	// TaskTimeout bounds the work on a single rule. Defaults to 30s.
	TaskTimeout time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

func NewScheduler(deps SchedulerDeps) (*Scheduler, error) {
	spec := deps.Schedule
	if spec == "" {
		spec = "0 0 * * *"
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse recurrence schedule %q: %w", spec, err)
	}
	s := &Scheduler{
		tasks:    deps.TaskRepo,
		audit:    deps.Audit,
		notifier: deps.Notifier,
		schedule: schedule,
		loc:      deps.Location,
		timeout:  deps.TaskTimeout,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.logger = s.logger.With("component", "recurrence")
	return s, nil
}

// Serve fires Tick at every scheduled time until ctx is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	for {
		now := s.now().In(s.loc)
		next := s.schedule.Next(now)
		s.logger.Debug("next recurrence tick", "at", next)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		report, err := s.Tick(ctx)
		if errors.Is(err, domain.ErrTickInProgress) {
			s.logger.Warn("scheduled tick skipped, previous tick still running")
			continue
		}
		if err != nil {
			s.logger.Error("recurrence tick failed", "err", err)
			continue
		}
		s.logReport(report)
	}
}

func (s *Scheduler) String() string { return "recurrence-scheduler" }

// RunNow runs one pass on demand. It shares the non-overlap guard with the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (*TickReport, error) {
	report, err := s.Tick(ctx)
	if err == nil {
		s.logReport(report)
	}
	return report, err
}

// Tick rolls over every recurring rule that is due. Each rule is handled
// independently: a failure is recorded in the report and the pass continues.
// Cancellation is honoured between rules; the rule in flight finishes on a
// detached context bounded by the task timeout.
func (s *Scheduler) Tick(ctx context.Context) (*TickReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, domain.ErrTickInProgress
	}
	defer s.running.Store(false)

	start := s.now()
	rules, err := s.tasks.FindRecurringDueBy(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("list due recurring tasks: %w", err)
	}

	report := &TickReport{StartedAt: start, Due: len(rules), Failed: []TaskFailure{}}
	for _, rule := range rules {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		rolled, err := s.rollOver(taskCtx, rule.TaskID, start)
		cancel()

		switch {
		case err != nil:
			s.logger.Error("recurring task rollover failed", "task_id", rule.TaskID, "err", err)
			report.Failed = append(report.Failed, TaskFailure{TaskID: rule.TaskID, Error: err.Error()})
		case rolled:
			report.RolledOver++
		default:
			report.Skipped++
		}
	}
	report.Duration = s.now().Sub(start)
	metrics.RecordTick(report.Duration, report.RolledOver, report.Skipped, len(report.Failed))
	return report, nil
}

// rollOver regenerates one rule. It reports false without error when the rule
// no longer needs rolling over.
func (s *Scheduler) rollOver(ctx context.Context, taskID string, now time.Time) (bool, error) {
	rule, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("reload rule: %w", err)
	}
	if !rule.IsRecurring || !rule.Frequency.Valid() {
		return false, nil
	}
	due := rule.DueDate.In(s.loc)
	if now.Before(due) {
		return false, nil
	}

	newDue, err := Advance(due, rule.Frequency)
	if err != nil {
		return false, err
	}
	nextRun, err := Advance(newDue, rule.Frequency)
	if err != nil {
		return false, err
	}

	occ := Occurrence(rule, newDue, now)
	resumed := false
	switch err := s.tasks.CreateOccurrence(ctx, occ); {
	case errors.Is(err, domain.ErrConflict):
		s.logger.Info("occurrence already exists, resuming rollover", "task_id", rule.TaskID, "occurrence_id", occ.TaskID)
		resumed = true
	case err != nil:
		return false, fmt.Errorf("create occurrence: %w", err)
	}

	audited := false
	if resumed {
		if audited, err = s.occurrenceAudited(ctx, occ.TaskID); err != nil {
			return false, err
		}
	}
	if !audited {
		actor := rule.CreatorID
		if actor == "" {
			actor = SystemActor
		}
		if _, err := s.audit.Append(ctx, domain.AppendAuditRequest{
			ActorID:    actor,
			Action:     domain.ActionRecurringTaskCreated,
			EntityType: "task",
			EntityID:   occ.TaskID,
			Detail: map[string]any{
				"taskId":       occ.TaskID,
				"recurrenceOf": rule.TaskID,
				"title":        rule.Title,
				"frequency":    string(rule.Frequency),
				"dueDate":      newDue.UTC().Format(time.RFC3339),
			},
		}); err != nil {
			return false, fmt.Errorf("audit occurrence: %w", err)
		}
	}

	err = s.tasks.AdvanceDueDate(ctx, rule.TaskID, rule.DueDate, newDue, nextRun)
	if errors.Is(err, domain.ErrConflict) {
		s.logger.Info("rule already advanced elsewhere", "task_id", rule.TaskID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("advance rule: %w", err)
	}

	// Only the pass that advances the rule notifies, so a resumed rollover
	// reaches the assignee once.
	if rule.AssigneeID != "" {
		link := "/tasks/" + occ.TaskID
		if _, err := s.notifier.Notify(ctx, rule.AssigneeID, domain.CategoryRecurringRollover, domain.NotificationPayload{
			Title:   "Recurring task created",
			Message: fmt.Sprintf("New recurring task created: %s", rule.Title),
			Link:    &link,
		}); err != nil {
			s.logger.Warn("rollover notification failed", "task_id", rule.TaskID, "user_id", rule.AssigneeID, "err", err)
		}
	}
	return true, nil
}

// occurrenceAudited reports whether an earlier pass already recorded the
// creation of occurrenceID.
func (s *Scheduler) occurrenceAudited(ctx context.Context, occurrenceID string) (bool, error) {
	entries, err := s.audit.History(ctx, "task", occurrenceID)
	if err != nil {
		return false, fmt.Errorf("audit history for %s: %w", occurrenceID, err)
	}
	for _, e := range entries {
		if e.Action == domain.ActionRecurringTaskCreated {
			return true, nil
		}
	}
	return false, nil
}

// Occurrence builds the concrete task created when rule rolls over to newDue.
// Its id is derived from the rule and the new due date, so retries collide.
func Occurrence(rule *domain.Task, newDue, now time.Time) *domain.Task {
	return &domain.Task{
		TaskID:       OccurrenceID(rule.TaskID, newDue),
		Title:        rule.Title,
		Description:  rule.Description,
		Status:       domain.TaskStatusTodo,
		Priority:     rule.Priority,
		DueDate:      newDue,
		ProjectID:    rule.ProjectID,
		CreatorID:    rule.CreatorID,
		AssigneeID:   rule.AssigneeID,
		RecurrenceOf: rule.TaskID,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
}

func OccurrenceID(ruleID string, due time.Time) string {
	return ruleID + "-" + due.Format("20060102")
}

func (s *Scheduler) logReport(r *TickReport) {
	s.logger.Info("recurrence tick finished",
		"due", r.Due,
		"rolled_over", r.RolledOver,
		"skipped", r.Skipped,
		"failed", len(r.Failed),
		"interrupted", r.Interrupted,
		"duration", r.Duration,
	)
}
