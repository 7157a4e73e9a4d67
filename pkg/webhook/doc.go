// Package webhook posts signed JSON events to one HTTP endpoint with retries
// and a circuit breaker.
//
// The engine uses it to forward in-app notifications to an external
// receiver (a CRM, a chat bot, the product's own backend). Each request
// carries:
//
//	X-Engine-Event      event type, e.g. "trial.expired"
//	X-Engine-Delivery   stable delivery ID; retries reuse it
//	X-Engine-Timestamp  unix seconds the signature was made at
//	X-Engine-Signature  hex HMAC-SHA256 of "<timestamp>.<body>"
//
// Receivers verify with Verify and should drop deliveries whose ID they have
// already processed.
//
// 4xx responses other than 408, 425 and 429 are permanent and not retried.
// After FailureThreshold consecutive failed sends the breaker opens and sends
// fail fast with ErrCircuitOpen until RecoveryTimeout has passed.
package webhook
