package usage

import (
	"log/slog"
	"time"
)

// DefaultStoreTimeout bounds every quota store call made by a gate.
const DefaultStoreTimeout = 2 * time.Second

// DefaultNearLimitPercent is the share of the limit at which an account is
// considered close to exhausting it.
const DefaultNearLimitPercent = 80

type options struct {
	logger           *slog.Logger
	storeTimeout     time.Duration
	failClosed       bool
	nearLimitPercent int64
	publisher        EventPublisher
	now              func() time.Time
}

func defaultOptions() options {
	return options{
		logger:           slog.Default(),
		storeTimeout:     DefaultStoreTimeout,
		nearLimitPercent: DefaultNearLimitPercent,
		publisher:        noopPublisher{},
		now:              time.Now,
	}
}

// Option configures a gate.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStoreTimeout bounds each store call. Non-positive values are ignored.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.storeTimeout = d
		}
	}
}

// WithFailClosed denies actions when the store cannot be reached instead of
// allowing them.
func WithFailClosed(closed bool) Option {
	return func(o *options) {
		o.failClosed = closed
	}
}

// WithNearLimitPercent sets the near-limit threshold, 1 to 100.
func WithNearLimitPercent(pct int) Option {
	return func(o *options) {
		if pct > 0 && pct <= 100 {
			o.nearLimitPercent = int64(pct)
		}
	}
}

// WithEventPublisher receives NearLimitEvent values from the account gate.
func WithEventPublisher(p EventPublisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
