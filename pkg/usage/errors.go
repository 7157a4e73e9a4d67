package usage

import "errors"

var (
	ErrMissingIdentity  = errors.New("visitor identity is required")
	ErrMissingAccountID = errors.New("account ID is required")
	ErrPlanLookup       = errors.New("failed to resolve account plan")
)
