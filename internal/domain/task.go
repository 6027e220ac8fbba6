package domain

import "time"

// Frequency is the recurrence step of a recurring task.
type Frequency string

const (
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

const (
	TaskStatusTodo       = "TODO"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusDone       = "DONE"
)

// Task is a task row. A task with IsRecurring set doubles as the recurrence
// rule: DueDate is the current due date and NextRun the one after it.
// RecurrenceOf is set on occurrences created by the scheduler.
type Task struct {
	TaskID       string     `json:"id" dynamodbav:"task_id"`
	Title        string     `json:"title" dynamodbav:"title"`
	Description  string     `json:"description" dynamodbav:"description"`
	Status       string     `json:"status" dynamodbav:"status"`
	Priority     string     `json:"priority" dynamodbav:"priority"`
	DueDate      time.Time  `json:"due_date" dynamodbav:"due_date"`
	ProjectID    string     `json:"project_id" dynamodbav:"project_id"`
	CreatorID    string     `json:"creator_id" dynamodbav:"creator_id"`
	AssigneeID   string     `json:"assignee_id" dynamodbav:"assignee_id"`
	IsRecurring  bool       `json:"is_recurring" dynamodbav:"is_recurring"`
	Frequency    Frequency  `json:"frequency,omitempty" dynamodbav:"frequency,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty" dynamodbav:"next_run,omitempty"`
	RecurrenceOf string     `json:"recurrence_of,omitempty" dynamodbav:"recurrence_of,omitempty"`
	CreatedAt    time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// SetRecurrenceRequest marks a task recurring or edits its rule.
type SetRecurrenceRequest struct {
	Frequency Frequency `json:"frequency" validate:"required,oneof=DAILY WEEKLY MONTHLY"`
	DueDate   time.Time `json:"due_date" validate:"required"`
}
