package dynamo

// DynamoDB attribute names used in update and condition expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldDueDate       = "due_date"
	fieldNextRun       = "next_run"
	fieldFrequency     = "frequency"
	fieldIsRecurring   = "is_recurring"
	fieldRecurringFlag = "recurring_flag"
	fieldUpdatedAt     = "updated_at"
	fieldUserID        = "user_id"
	fieldRead          = "read"
	fieldCreatedAt     = "created_at"
	fieldEntityKey     = "entity_key"
	fieldActorID       = "actor_id"
	fieldSMTPOverride  = "smtp_override"
)
