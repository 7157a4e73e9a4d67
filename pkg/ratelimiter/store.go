package ratelimiter

import (
	"context"
	"time"
)

// Store keeps bucket state.
type Store interface {
	// Take removes tokens from the bucket at key when enough are available,
	// after refilling it for the time elapsed since the last refill. It
	// returns the tokens left, negative by the shortfall when the request
	// was denied, and the time of the next refill.
	Take(ctx context.Context, key string, tokens int, cfg Config) (remaining int, resetAt time.Time, err error)
	// Reset drops the bucket at key.
	Reset(ctx context.Context, key string) error
}
