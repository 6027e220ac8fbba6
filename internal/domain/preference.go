package domain

import "time"

// ChannelPreference is the preference block for one delivery channel.
// A category missing from Categories counts as enabled.
type ChannelPreference struct {
	Enabled    bool              `json:"enabled" dynamodbav:"enabled"`
	Categories map[Category]bool `json:"categories" dynamodbav:"categories"`
}

// Allows reports whether the channel delivers notifications of category c.
func (p ChannelPreference) Allows(c Category) bool {
	if !p.Enabled {
		return false
	}
	if v, ok := p.Categories[c]; ok && !v {
		return false
	}
	return true
}

// NotificationPreference is the per-user delivery preference record.
type NotificationPreference struct {
	UserID    string            `json:"user_id" dynamodbav:"user_id"`
	Email     ChannelPreference `json:"email" dynamodbav:"email"`
	InApp     ChannelPreference `json:"in_app" dynamodbav:"in_app"`
	CreatedAt time.Time         `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time         `json:"updated" dynamodbav:"updated_at"`
}

// DefaultPreference returns the all-enabled preference for userID.
func DefaultPreference(userID string, now time.Time) *NotificationPreference {
	return &NotificationPreference{
		UserID:    userID,
		Email:     ChannelPreference{Enabled: true, Categories: map[Category]bool{}},
		InApp:     ChannelPreference{Enabled: true, Categories: map[Category]bool{}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ChannelPreferenceInput is a partial update of one channel.
type ChannelPreferenceInput struct {
	Enabled    *bool             `json:"enabled"`
	Categories map[Category]bool `json:"categories"`
}

// UpdatePreferenceRequest is a partial update; nil blocks are left as is.
type UpdatePreferenceRequest struct {
	Email *ChannelPreferenceInput `json:"email"`
	InApp *ChannelPreferenceInput `json:"in_app"`
}

// Decision is the resolved delivery decision for one (user, category) pair.
type Decision struct {
	InApp bool `json:"in_app"`
	Email bool `json:"email"`
}
