package reminder

import (
	"context"
	"fmt"
	"time"
)

// Tone selects the wording of a reminder.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	ToneFirm         Tone = "firm"
)

// ParseTone converts a stored tone. Empty defaults to professional.
func ParseTone(s string) (Tone, error) {
	switch Tone(s) {
	case "", ToneProfessional:
		return ToneProfessional, nil
	case ToneFriendly, ToneFirm:
		return Tone(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTone, s)
	}
}

// MilestoneStatus is the payment state of a milestone.
type MilestoneStatus string

const (
	MilestonePending  MilestoneStatus = "pending"
	MilestonePaid     MilestoneStatus = "paid"
	MilestoneOverdue  MilestoneStatus = "overdue"
	MilestoneCanceled MilestoneStatus = "canceled"
)

// Preference is an account's reminder configuration.
type Preference struct {
	AccountID string
	Tone      Tone
	AutoSend  bool
	// ScheduleDays is stored with the preference but not applied: the due
	// window alone decides which milestones are reminded.
	ScheduleDays []int
}

// Milestone is one contractual payment of an estimate. AmountDue is in minor
// currency units.
type Milestone struct {
	ID          string
	EstimateID  string
	AmountDue   int64
	Currency    string
	DueDate     time.Time
	Description string
	Status      MilestoneStatus
}

// Estimate is the parent document of a milestone.
type Estimate struct {
	ID           string
	AccountID    string
	ClientName   string
	ClientEmail  string
	JobType      string
	BusinessName string
}

// Candidate is a milestone due in the window joined with its estimate and the
// owner's preference. Either may be nil when the row is missing.
type Candidate struct {
	Milestone  Milestone
	Estimate   *Estimate
	Preference *Preference
}

// Reminder is the payload handed to a Notifier.
type Reminder struct {
	MilestoneID  string    `json:"milestone_id"`
	EstimateID   string    `json:"estimate_id"`
	AccountID    string    `json:"account_id"`
	ClientEmail  string    `json:"client_email"`
	ClientName   string    `json:"client_name"`
	JobType      string    `json:"job_type"`
	Description  string    `json:"description,omitempty"`
	AmountDue    int64     `json:"amount_due"`
	Currency     string    `json:"currency"`
	DueDate      time.Time `json:"due_date"`
	DaysOverdue  int       `json:"days_overdue"`
	Tone         Tone      `json:"tone"`
	PaymentLink  string    `json:"payment_link"`
	BusinessName string    `json:"business_name"`
	// Day is the UTC day the reminder is dispatched for.
	Day time.Time `json:"day"`
}

// DispatchStatus is the ledger state of one (milestone, day) entry.
type DispatchStatus string

const (
	DispatchClaimed DispatchStatus = "claimed"
	DispatchSent    DispatchStatus = "sent"
)

// Dispatch is a ledger entry. At most one exists per (MilestoneID, Date).
type Dispatch struct {
	MilestoneID string
	Date        time.Time
	Status      DispatchStatus
	CreatedAt   time.Time
}

// Source lists reminder candidates.
type Source interface {
	// DueMilestones returns pending milestones with a due date in
	// [from, to], joined with their estimate and preference.
	DueMilestones(ctx context.Context, from, to time.Time) ([]Candidate, error)
}

// Ledger records which milestones were reminded on which UTC day.
type Ledger interface {
	// Claim reserves (milestoneID, day). It reports false when the pair is
	// already claimed or sent.
	Claim(ctx context.Context, milestoneID string, day time.Time) (bool, error)
	// MarkSent records a successful dispatch for a claimed pair.
	MarkSent(ctx context.Context, milestoneID string, day time.Time) error
	// Release drops an unsent claim so a later run can retry it.
	Release(ctx context.Context, milestoneID string, day time.Time) error
}

// Notifier delivers one reminder.
type Notifier interface {
	SendReminder(ctx context.Context, r Reminder) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, r Reminder) error

func (f NotifierFunc) SendReminder(ctx context.Context, r Reminder) error {
	return f(ctx, r)
}

// DayOf returns the UTC calendar day containing t.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
