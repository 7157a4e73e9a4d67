package trial

import (
	"context"
	"time"
)

// UpdateFunc mutates a locked subscription in place and reports whether it
// changed. Returning false skips the write.
type UpdateFunc func(sub *Subscription) (changed bool, err error)

// Store persists subscriptions. Each account has at most one row.
type Store interface {
	// Get returns ErrSubscriptionNotFound when the account has no row.
	Get(ctx context.Context, accountID string) (*Subscription, error)

	// Create inserts sub, or returns ErrSubscriptionAlreadyExists.
	Create(ctx context.Context, sub *Subscription) error

	// Update applies fn to the row while holding it exclusively and persists
	// the result when fn reports a change.
	Update(ctx context.Context, accountID string, fn UpdateFunc) (*Subscription, bool, error)

	// ExpireTrial moves a trialing row whose end date is before now to
	// expired in one conditional write. It reports whether this call
	// performed the transition; a second call returns false.
	ExpireTrial(ctx context.Context, accountID string, now time.Time) (bool, error)

	// ListStaleTrials returns up to limit trialing rows whose end date is
	// before now, oldest end date first.
	ListStaleTrials(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
}
