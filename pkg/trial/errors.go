package trial

import "errors"

var (
	ErrMissingAccountID          = errors.New("account ID is required")
	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("subscription already exists")
	ErrInvalidTransition         = errors.New("invalid trial state transition")
	ErrUnknownState              = errors.New("unknown trial status")
	ErrStaleTrialListing         = errors.New("failed to list stale trials")
)
