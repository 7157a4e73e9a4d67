package billing

import "errors"

var (
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrMissingAccountID = errors.New("webhook payload has no account_id in custom_data")
	ErrUnknownPrice     = errors.New("webhook price is not mapped to a plan")
	ErrMissingSecret    = errors.New("paddle webhook secret is required")
)
