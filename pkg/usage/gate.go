// Package usage decides whether a visitor or an account may perform a
// monetized action.
//
// Both gates count through quota.Store.Consume, a single atomic
// check-and-increment, and build their answer from the count the store
// returns. Neither gate ever reads a count, compares it and writes it back.
//
// When the store cannot be reached within the configured timeout the gates
// fail open: the action is allowed, the decision is marked FailedOpen and the
// failure is logged with event=usage.fail_open. WithFailClosed inverts that
// policy. "Not allowed" is a decision, never an error; the only errors are
// missing identifiers.
package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/metrics"
)

const (
	gateAnonymous = "anonymous"
	gateAccount   = "account"
)

// storeCall runs fn under the configured store timeout and records its
// latency.
func storeCall[T any](ctx context.Context, o *options, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	defer cancel()

	start := time.Now()
	v, err := fn(ctx)
	metrics.QuotaStoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return v, err
}

// degrade logs a store failure and reports whether the action is allowed
// under the configured policy.
func degrade(ctx context.Context, o *options, gate string, subject slog.Attr, err error) bool {
	event, policy, level := "usage.fail_open", "open", slog.LevelWarn
	if o.failClosed {
		event, policy, level = "usage.fail_closed", "closed", slog.LevelError
	}
	metrics.UsageFailOpenTotal.WithLabelValues(gate, policy).Inc()

	o.logger.LogAttrs(ctx, level, "usage store unavailable",
		logger.Component("usage"),
		logger.Event(event),
		slog.String("gate", gate),
		subject,
		logger.Error(err),
	)
	return !o.failClosed
}

func outcome(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func storeKey(gate, id string) string {
	return gate + ":" + id
}

func logLevel(allowed bool) slog.Level {
	if allowed {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
