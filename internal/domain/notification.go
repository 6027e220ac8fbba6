package domain

import "time"

// Category classifies a notification and keys per-category preferences.
type Category string

const (
	CategoryTaskAssigned      Category = "task_assigned"
	CategoryTaskUpdated       Category = "task_updated"
	CategoryTaskCompleted     Category = "task_completed"
	CategoryTaskCommented     Category = "task_commented"
	CategoryTeamInvite        Category = "team_invite"
	CategoryTeamJoined        Category = "team_joined"
	CategoryRecurringRollover Category = "recurring_rollover"
)

// Categories lists every known category in a stable order.
var Categories = []Category{
	CategoryTaskAssigned,
	CategoryTaskUpdated,
	CategoryTaskCompleted,
	CategoryTaskCommented,
	CategoryTeamInvite,
	CategoryTeamJoined,
	CategoryRecurringRollover,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// Notification is an in-app notification owned by exactly one recipient.
// Read only ever moves from false to true.
type Notification struct {
	NotificationID string    `json:"id" dynamodbav:"notification_id"`
	UserID         string    `json:"user_id" dynamodbav:"user_id"`
	Type           Category  `json:"type" dynamodbav:"type"`
	Title          string    `json:"title" dynamodbav:"title"`
	Message        string    `json:"message" dynamodbav:"message"`
	Link           *string   `json:"link,omitempty" dynamodbav:"link,omitempty"`
	Read           bool      `json:"read" dynamodbav:"read"`
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}

// NotificationPayload is the caller-supplied content of a notification.
type NotificationPayload struct {
	Title   string  `json:"title" validate:"required"`
	Message string  `json:"message" validate:"required"`
	Link    *string `json:"link,omitempty" validate:"omitempty,max=2048"`
}

// NotifyRequest is the body of the external notify endpoint.
type NotifyRequest struct {
	RecipientID string   `json:"recipient_id" validate:"required"`
	Category    Category `json:"category" validate:"required,category"`
	NotificationPayload
}

// EmailJob is a queued request to email a notification to its recipient.
// It is turned into an Email by the mail queue's composer.
type EmailJob struct {
	RecipientID string
	Category    Category
	Payload     NotificationPayload
}
