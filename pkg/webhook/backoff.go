package webhook

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns the delay before retry attempt n, starting at 1.
type Backoff interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff doubles (by Multiplier) from Initial up to Max, spread
// by ±Jitter.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func (e ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	initial := cmpOr(e.Initial, time.Second)
	ceiling := cmpOr(e.Max, 30*time.Second)
	multiplier := e.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	d := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if e.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*e.Jitter
	}
	return min(time.Duration(d), ceiling)
}

// FixedBackoff waits the same interval before every retry.
type FixedBackoff time.Duration

func (f FixedBackoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(f)
}

// DefaultBackoff is exponential from 500ms to 10s with 10% jitter.
func DefaultBackoff() Backoff {
	return ExponentialBackoff{Initial: 500 * time.Millisecond, Max: 10 * time.Second, Multiplier: 2, Jitter: 0.1}
}

func cmpOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
