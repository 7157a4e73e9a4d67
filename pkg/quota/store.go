// Package quota persists usage counters keyed by identity and window and
// exposes them only through an atomic check-and-increment.
//
// Every Store implementation performs Consume as a single conditional write
// (a Lua script in Redis, a conditional upsert in SQL, a critical section in
// memory). Callers never read a count, compare it and write it back in
// separate steps, so two concurrent requests for the same key cannot both pass
// a check that should have blocked the second.
package quota

import (
	"context"
	"time"
)

// Unlimited disables the cap on Consume.
const Unlimited int64 = -1

// Result is the outcome of a Consume call.
type Result struct {
	// Count is the authoritative counter value after the call.
	Count int64
	// Limit is the limit the call was evaluated against.
	Limit int64
	// Consumed reports whether the counter was incremented.
	Consumed bool
}

// Remaining returns how many more units fit under the limit, or Unlimited.
func (r Result) Remaining() int64 {
	if r.Limit == Unlimited {
		return Unlimited
	}
	return max(r.Limit-r.Count, 0)
}

// Record is one persisted usage row.
type Record struct {
	Key         string
	WindowStart time.Time
	Count       int64
	Limit       int64
	UpdatedAt   time.Time
}

// Store is the usage counter persistence contract.
type Store interface {
	// Consume increments the counter for (key, period) when limit is Unlimited
	// or the current count is below limit, in one atomic step.
	Consume(ctx context.Context, key string, period Period, limit int64) (Result, error)
	// Peek returns the counter for (key, period), zero when no row exists.
	Peek(ctx context.Context, key string, period Period) (int64, error)
}
