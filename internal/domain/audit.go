package domain

import "time"

// Audit action tags.
const (
	ActionTaskCreated           = "TASK_CREATED"
	ActionTaskUpdated           = "TASK_UPDATED"
	ActionTaskDeleted           = "TASK_DELETED"
	ActionTaskAssigned          = "TASK_ASSIGNED"
	ActionTaskCompleted         = "TASK_COMPLETED"
	ActionRecurringTaskCreated  = "RECURRING_TASK_CREATED"
	ActionTaskRecurrenceSet     = "TASK_RECURRENCE_SET"
	ActionTaskRecurrenceCleared = "TASK_RECURRENCE_CLEARED"
	ActionProjectCreated        = "PROJECT_CREATED"
	ActionProjectUpdated        = "PROJECT_UPDATED"
	ActionTeamCreated           = "TEAM_CREATED"
	ActionTeamJoined            = "TEAM_JOINED"
	ActionUserEmailSettings     = "USER_EMAIL_SETTINGS_UPDATED"
)

// AuditEntry is an immutable record of a state-changing action.
type AuditEntry struct {
	AuditID    string         `json:"id" dynamodbav:"audit_id"`
	ActorID    string         `json:"actor_id" dynamodbav:"actor_id"`
	Action     string         `json:"action" dynamodbav:"action"`
	EntityType string         `json:"entity_type" dynamodbav:"entity_type"`
	EntityID   string         `json:"entity_id" dynamodbav:"entity_id"`
	EntityKey  string         `json:"-" dynamodbav:"entity_key"`
	Detail     map[string]any `json:"detail,omitempty" dynamodbav:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created" dynamodbav:"created_at"`
}

// AppendAuditRequest is the body of the external audit endpoint.
type AppendAuditRequest struct {
	ActorID    string         `json:"actor_id" validate:"required"`
	Action     string         `json:"action" validate:"required"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Detail     map[string]any `json:"detail"`
}

// AuditFilter narrows an audit query. Zero values are ignored.
type AuditFilter struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	From       *time.Time
	To         *time.Time
	Limit      int32
	Cursor     string
}

// AuditPage is one page of audit entries.
type AuditPage struct {
	Entries    []AuditEntry `json:"logs"`
	NextCursor string       `json:"next_cursor,omitempty"`
}
