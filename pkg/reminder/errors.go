package reminder

import "errors"

var (
	ErrSourceUnavailable = errors.New("reminder source unavailable")
	ErrUnknownTone       = errors.New("unknown reminder tone")
	ErrClaimNotFound     = errors.New("reminder claim not found")
)
