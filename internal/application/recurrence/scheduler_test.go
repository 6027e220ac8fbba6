package recurrence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-taskpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTaskStore mirrors the DynamoDB repo's conditional semantics in memory.
type memTaskStore struct {
	mu    sync.Mutex
	tasks map[string]domain.Task

	advanceErr map[string]error // one-shot failures by rule id
	createErr  map[string]error // CreateOccurrence failures by rule id
	onGet      func(taskID string)
	findGate   chan struct{}
}

func newMemStore(tasks ...domain.Task) *memTaskStore {
	s := &memTaskStore{tasks: map[string]domain.Task{}, advanceErr: map[string]error{}, createErr: map[string]error{}}
	for _, t := range tasks {
		s.tasks[t.TaskID] = t
	}
	return s
}

func (s *memTaskStore) Get(_ context.Context, taskID string) (*domain.Task, error) {
	if s.onGet != nil {
		s.onGet(taskID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (s *memTaskStore) FindRecurringDueBy(_ context.Context, ts time.Time) ([]domain.Task, error) {
	if s.findGate != nil {
		<-s.findGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if t.IsRecurring && !t.DueDate.After(ts) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}

func (s *memTaskStore) CreateOccurrence(_ context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.createErr[t.RecurrenceOf]; ok {
		return err
	}
	if _, ok := s.tasks[t.TaskID]; ok {
		return domain.ErrConflict
	}
	s.tasks[t.TaskID] = *t
	return nil
}

func (s *memTaskStore) AdvanceDueDate(_ context.Context, taskID string, expectedDue, newDue, nextRun time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.advanceErr[taskID]; ok {
		delete(s.advanceErr, taskID)
		return err
	}
	t, ok := s.tasks[taskID]
	if !ok || !t.IsRecurring || !t.DueDate.Equal(expectedDue) {
		return domain.ErrConflict
	}
	t.DueDate = newDue
	t.NextRun = &nextRun
	s.tasks[taskID] = t
	return nil
}

func (s *memTaskStore) SetRecurrence(_ context.Context, taskID string, freq domain.Frequency, due, nextRun time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	t.IsRecurring, t.Frequency, t.DueDate, t.NextRun = true, freq, due, &nextRun
	s.tasks[taskID] = t
	return nil
}

func (s *memTaskStore) ClearRecurrence(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	t.IsRecurring, t.Frequency, t.NextRun = false, "", nil
	s.tasks[taskID] = t
	return nil
}

func (s *memTaskStore) occurrencesOf(ruleID string) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if t.RecurrenceOf == ruleID {
			out = append(out, t)
		}
	}
	return out
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []domain.AppendAuditRequest
	failFor map[string]bool // by recurrenceOf / entity id
}

func (a *fakeAuditor) Append(_ context.Context, in domain.AppendAuditRequest) (*domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rule, _ := in.Detail["recurrenceOf"].(string); a.failFor[rule] || a.failFor[in.EntityID] {
		return nil, errors.New("audit store unavailable")
	}
	a.entries = append(a.entries, in)
	return &domain.AuditEntry{ActorID: in.ActorID, Action: in.Action, EntityID: in.EntityID}, nil
}

func (a *fakeAuditor) History(_ context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []domain.AuditEntry{}
	for _, e := range a.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, domain.AuditEntry{ActorID: e.ActorID, Action: e.Action, EntityType: e.EntityType, EntityID: e.EntityID})
		}
	}
	return out, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	err   error
	calls int
}

func (n *fakeNotifier) Notify(_ context.Context, recipientID string, c domain.Category, _ domain.NotificationPayload) (*domain.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.err != nil {
		return nil, n.err
	}
	n.sent = append(n.sent, recipientID+":"+string(c))
	return &domain.Notification{UserID: recipientID}, nil
}

func rule(id string, due time.Time, f domain.Frequency) domain.Task {
	next, _ := Advance(due, f)
	return domain.Task{
		TaskID:      id,
		Title:       "Rule " + id,
		Priority:    "HIGH",
		Status:      domain.TaskStatusInProgress,
		DueDate:     due,
		ProjectID:   "p1",
		CreatorID:   "creator",
		AssigneeID:  "assignee",
		IsRecurring: true,
		Frequency:   f,
		NextRun:     &next,
	}
}

func newTestScheduler(t *testing.T, store *memTaskStore, audit *fakeAuditor, notif *fakeNotifier, now time.Time) *Scheduler {
	t.Helper()
	s, err := NewScheduler(SchedulerDeps{
		TaskRepo: store,
		Audit:    audit,
		Notifier: notif,
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	return s
}

var tickTime = time.Date(2024, 1, 31, 0, 0, 5, 0, time.UTC)

func TestTick_RollsOverDueRule(t *testing.T) {
	store := newMemStore(rule("r1", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), domain.FrequencyMonthly))
	audit, notif := &fakeAuditor{}, &fakeNotifier{}

	report, err := newTestScheduler(t, store, audit, notif, tickTime).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.RolledOver)
	assert.Empty(t, report.Failed)

	r, _ := store.Get(context.Background(), "r1")
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), r.DueDate)
	require.NotNil(t, r.NextRun)
	assert.Equal(t, time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC), *r.NextRun)

	occs := store.occurrencesOf("r1")
	require.Len(t, occs, 1)
	occ := occs[0]
	assert.Equal(t, "r1-20240229", occ.TaskID)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), occ.DueDate)
	assert.Equal(t, domain.TaskStatusTodo, occ.Status)
	assert.False(t, occ.IsRecurring)
	assert.Equal(t, "Rule r1", occ.Title)
	assert.Equal(t, "assignee", occ.AssigneeID)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, domain.ActionRecurringTaskCreated, audit.entries[0].Action)
	assert.Equal(t, "creator", audit.entries[0].ActorID)
	assert.Equal(t, "r1-20240229", audit.entries[0].EntityID)
	assert.Equal(t, []string{"assignee:recurring_rollover"}, notif.sent)
}

func TestTick_TwiceIsIdempotent(t *testing.T) {
	store := newMemStore(rule("r1", time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC), domain.FrequencyDaily))
	audit, notif := &fakeAuditor{}, &fakeNotifier{}
	s := newTestScheduler(t, store, audit, notif, time.Date(2024, 1, 30, 0, 0, 5, 0, time.UTC))

	_, err := s.Tick(context.Background())
	require.NoError(t, err)
	second, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, second.RolledOver)
	assert.Len(t, store.occurrencesOf("r1"), 1)
	assert.Len(t, audit.entries, 1)
}

func TestTick_RetryAfterFailedAdvanceDoesNotDuplicate(t *testing.T) {
	store := newMemStore(rule("r1", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), domain.FrequencyWeekly))
	store.advanceErr["r1"] = errors.New("throttled")
	audit, notif := &fakeAuditor{}, &fakeNotifier{}
	s := newTestScheduler(t, store, audit, notif, tickTime)

	first, err := s.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Failed, 1)
	assert.Equal(t, "r1", first.Failed[0].TaskID)

	second, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.RolledOver)

	assert.Len(t, store.occurrencesOf("r1"), 1)
	r, _ := store.Get(context.Background(), "r1")
	assert.Equal(t, time.Date(2024, 2, 7, 0, 0, 0, 0, time.UTC), r.DueDate)
	assert.Len(t, audit.entries, 1, "resumed rollover must not audit the occurrence twice")
	assert.Equal(t, []string{"assignee:recurring_rollover"}, notif.sent)
}

func TestTick_ResumeAfterFailedAuditRecordsOnce(t *testing.T) {
	store := newMemStore(rule("r1", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), domain.FrequencyDaily))
	audit := &fakeAuditor{failFor: map[string]bool{"r1": true}}
	notif := &fakeNotifier{}
	s := newTestScheduler(t, store, audit, notif, tickTime)

	first, err := s.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Failed, 1)
	assert.Len(t, store.occurrencesOf("r1"), 1)
	assert.Zero(t, notif.calls)

	audit.failFor = nil
	second, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.RolledOver)
	assert.Len(t, audit.entries, 1)
	assert.Equal(t, 1, notif.calls)
}

func TestTick_LostAdvanceRaceDoesNotNotify(t *testing.T) {
	due := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	store := newMemStore(rule("r1", due, domain.FrequencyDaily))
	audit, notif := &fakeAuditor{}, &fakeNotifier{}
	// The rule moves on between the reload and the compare-and-set.
	store.advanceErr["r1"] = domain.ErrConflict

	report, err := newTestScheduler(t, store, audit, notif, tickTime).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, notif.calls)
}

func TestTick_OneFailureDoesNotStopOthers(t *testing.T) {
	due := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	store := newMemStore(
		rule("r1", due, domain.FrequencyDaily),
		rule("r2", due, domain.FrequencyDaily),
		rule("r3", due, domain.FrequencyDaily),
	)
	audit := &fakeAuditor{failFor: map[string]bool{"r2": true}}
	notif := &fakeNotifier{}

	report, err := newTestScheduler(t, store, audit, notif, tickTime).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.RolledOver)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "r2", report.Failed[0].TaskID)

	ctx := context.Background()
	next := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	r1, _ := store.Get(ctx, "r1")
	r2, _ := store.Get(ctx, "r2")
	r3, _ := store.Get(ctx, "r3")
	assert.Equal(t, next, r1.DueDate)
	assert.Equal(t, due, r2.DueDate, "rule with failed audit must not advance")
	assert.Equal(t, next, r3.DueDate)

	var audited []string
	for _, e := range audit.entries {
		audited = append(audited, e.Detail["recurrenceOf"].(string))
	}
	assert.ElementsMatch(t, []string{"r1", "r3"}, audited)
	assert.Equal(t, 2, notif.calls)
}

func TestTick_NotificationFailureIsBestEffort(t *testing.T) {
	store := newMemStore(rule("r1", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), domain.FrequencyDaily))
	notif := &fakeNotifier{err: errors.New("smtp down")}

	report, err := newTestScheduler(t, store, &fakeAuditor{}, notif, tickTime).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.RolledOver)
}

func TestTick_NoAssigneeSkipsNotification(t *testing.T) {
	r := rule("r1", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), domain.FrequencyDaily)
	r.AssigneeID = ""
	r.CreatorID = ""
	store := newMemStore(r)
	audit, notif := &fakeAuditor{}, &fakeNotifier{}

	_, err := newTestScheduler(t, store, audit, notif, tickTime).Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, notif.calls)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, SystemActor, audit.entries[0].ActorID)
}

func TestTick_StaleListingIsSkipped(t *testing.T) {
	due := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	store := newMemStore(rule("r1", due, domain.FrequencyDaily))
	// Another actor advances the rule between listing and processing.
	store.onGet = func(taskID string) {
		store.onGet = nil
		_ = store.AdvanceDueDate(context.Background(), taskID, due, due.AddDate(0, 0, 1), due.AddDate(0, 0, 2))
	}

	report, err := newTestScheduler(t, store, &fakeAuditor{}, &fakeNotifier{}, tickTime).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, store.occurrencesOf("r1"))
}

func TestTick_NonOverlapping(t *testing.T) {
	store := newMemStore()
	store.findGate = make(chan struct{})
	s := newTestScheduler(t, store, &fakeAuditor{}, &fakeNotifier{}, tickTime)

	done := make(chan error, 1)
	go func() {
		_, err := s.Tick(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return s.running.Load() }, time.Second, 5*time.Millisecond)

	_, err := s.RunNow(context.Background())
	assert.ErrorIs(t, err, domain.ErrTickInProgress)

	close(store.findGate)
	require.NoError(t, <-done)

	_, err = s.Tick(context.Background())
	assert.NoError(t, err)
}

func TestTick_CancellationFinishesInFlightTask(t *testing.T) {
	due := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	store := newMemStore(rule("r1", due, domain.FrequencyDaily), rule("r2", due, domain.FrequencyDaily))
	ctx, cancel := context.WithCancel(context.Background())
	store.onGet = func(string) { cancel() }

	report, err := newTestScheduler(t, store, &fakeAuditor{}, &fakeNotifier{}, tickTime).Tick(ctx)
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
	assert.Equal(t, 1, report.RolledOver)
	assert.Len(t, store.occurrencesOf("r1"), 1)
	assert.Empty(t, store.occurrencesOf("r2"))
}

func TestServe_StopsOnCancel(t *testing.T) {
	s, err := NewScheduler(SchedulerDeps{TaskRepo: newMemStore(), Audit: &fakeAuditor{}, Notifier: &fakeNotifier{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, "recurrence-scheduler", s.String())
}

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	_, err := NewScheduler(SchedulerDeps{Schedule: "every day"})
	assert.Error(t, err)
}

func TestOccurrenceID(t *testing.T) {
	assert.Equal(t, "abc-20240229", OccurrenceID("abc", time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)))
}

func TestTick_OccurrenceCreateFailureDoesNotStopOthers(t *testing.T) {
	due := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	store := newMemStore(
		rule("r1", due, domain.FrequencyDaily),
		rule("r2", due, domain.FrequencyDaily),
		rule("r3", due, domain.FrequencyDaily),
	)
	store.createErr["r2"] = errors.New("conditional put failed: throughput exceeded")
	audit, notif := &fakeAuditor{}, &fakeNotifier{}

	report, err := newTestScheduler(t, store, audit, notif, tickTime).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.RolledOver)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "r2", report.Failed[0].TaskID)

	ctx := context.Background()
	next := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	r1, _ := store.Get(ctx, "r1")
	r2, _ := store.Get(ctx, "r2")
	r3, _ := store.Get(ctx, "r3")
	assert.Equal(t, next, r1.DueDate)
	assert.Equal(t, due, r2.DueDate)
	assert.Equal(t, next, r3.DueDate)
	assert.Len(t, store.occurrencesOf("r1"), 1)
	assert.Empty(t, store.occurrencesOf("r2"))
	assert.Len(t, store.occurrencesOf("r3"), 1)

	var audited []string
	for _, e := range audit.entries {
		audited = append(audited, e.Detail["recurrenceOf"].(string))
	}
	assert.ElementsMatch(t, []string{"r1", "r3"}, audited)
	assert.Equal(t, 2, notif.calls)
}
