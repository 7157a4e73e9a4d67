package usage

import (
	"context"
	"time"

	"github.com/gnosis118/paper-n-print-sub004/pkg/plans"
)

// NearLimitEvent is published once per consumption that moves an account into
// the near-limit band of its monthly allowance.
type NearLimitEvent struct {
	AccountID   string     `json:"account_id"`
	Plan        plans.Plan `json:"plan"`
	Count       int64      `json:"count"`
	Limit       int64      `json:"limit"`
	WindowStart time.Time  `json:"window_start"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// EventPublisher receives usage events. Publish errors are logged and never
// change a gate decision.
type EventPublisher interface {
	PublishNearLimit(ctx context.Context, event NearLimitEvent) error
}

// EventPublisherFunc adapts a function to EventPublisher.
type EventPublisherFunc func(ctx context.Context, event NearLimitEvent) error

func (f EventPublisherFunc) PublishNearLimit(ctx context.Context, event NearLimitEvent) error {
	return f(ctx, event)
}

type noopPublisher struct{}

func (noopPublisher) PublishNearLimit(context.Context, NearLimitEvent) error { return nil }
