package notifications

import (
	"time"
)

// Type identifies what a notification is about.
type Type string

const (
	TypeTrialExpired   Type = "trial.expired"
	TypeTrialConverted Type = "trial.converted"
	TypeTrialCanceled  Type = "trial.canceled"
	TypeQuotaNearLimit Type = "quota.near_limit"
	TypeReminderSent   Type = "reminder.sent"
)

// Entry is the record producers hand to the Recorder.
type Entry struct {
	AccountID string         `json:"account_id"`
	Type      Type           `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	// DedupeKey, when set, allows at most one notification per account with
	// this key, dismissed or not.
	DedupeKey string `json:"dedupe_key,omitempty"`
}

// Notification is a persisted in-app notification.
type Notification struct {
	ID          string         `json:"id"`
	AccountID   string         `json:"account_id"`
	Type        Type           `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	DedupeKey   string         `json:"dedupe_key,omitempty"`
	Dismissed   bool           `json:"dismissed"`
	DismissedAt *time.Time     `json:"dismissed_at,omitempty"`
	Read        bool           `json:"read"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// MarkAsRead marks the notification as read at now.
func (n *Notification) MarkAsRead(now time.Time) {
	if n.Read {
		return
	}
	n.Read = true
	n.ReadAt = &now
}

// Dismiss sets the dismissal flag at now. Dismissed notifications are hidden
// from the default listing but still block their dedupe key.
func (n *Notification) Dismiss(now time.Time) {
	if n.Dismissed {
		return
	}
	n.Dismissed = true
	n.DismissedAt = &now
}
