package webhook

import "errors"

var (
	ErrInvalidConfig    = errors.New("invalid webhook configuration")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrDeliveryFailed   = errors.New("webhook delivery failed")
	ErrPermanentFailure = errors.New("permanent webhook failure")
	ErrCircuitOpen      = errors.New("webhook circuit breaker is open")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
