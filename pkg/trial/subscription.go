package trial

import (
	"fmt"
	"slices"
	"time"

	"github.com/gnosis118/paper-n-print-sub004/pkg/plans"
)

// State is the trial lifecycle state of a subscription.
type State string

const (
	StateTrialing  State = "trialing"
	StateExpired   State = "expired"
	StateConverted State = "converted"
	StateCanceled  State = "canceled"
)

// legacyActive is how older rows persisted StateTrialing.
const legacyActive = "active"

// ParseState converts a persisted trial status.
func ParseState(s string) (State, error) {
	switch s {
	case string(StateTrialing), legacyActive:
		return StateTrialing, nil
	case string(StateExpired):
		return StateExpired, nil
	case string(StateConverted):
		return StateConverted, nil
	case string(StateCanceled), "cancelled":
		return StateCanceled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
}

func (s State) String() string { return string(s) }

// Subscription is the single subscription row of an account.
type Subscription struct {
	AccountID              string          `json:"account_id"`
	Plan                   plans.Plan      `json:"plan"`
	IsTrial                bool            `json:"is_trial"`
	TrialStatus            State           `json:"trial_status"`
	TrialEndDate           *time.Time      `json:"trial_end_date,omitempty"`
	Features               []plans.Feature `json:"features"`
	SubscriptionEnd        *time.Time      `json:"subscription_end,omitempty"`
	ProviderSubscriptionID string          `json:"provider_subscription_id,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.Features = slices.Clone(s.Features)
	if s.TrialEndDate != nil {
		t := *s.TrialEndDate
		c.TrialEndDate = &t
	}
	if s.SubscriptionEnd != nil {
		t := *s.SubscriptionEnd
		c.SubscriptionEnd = &t
	}
	return &c
}

// IsTrialing reports whether the stored state is trialing.
func (s *Subscription) IsTrialing() bool {
	return s.IsTrial && s.TrialStatus == StateTrialing
}

// TrialEndedAt reports whether a trialing subscription is past its end date
// at now. The end instant itself is still inside the trial.
func (s *Subscription) TrialEndedAt(now time.Time) bool {
	return s.IsTrialing() && s.TrialEndDate != nil && now.After(*s.TrialEndDate)
}

// DaysRemainingAt returns the whole days left in the trial, rounding partial
// days up. Zero when not trialing or already past the end date.
func (s *Subscription) DaysRemainingAt(now time.Time) int {
	if !s.IsTrialing() || s.TrialEndDate == nil {
		return 0
	}

	remaining := s.TrialEndDate.Sub(now)
	if remaining <= 0 {
		return 0
	}

	const day = 24 * time.Hour
	return int((remaining + day - 1) / day)
}
