package trial

import (
	"context"
	"time"
)

// EventType names a trial state change.
type EventType string

const (
	EventTrialExpired   EventType = "trial.expired"
	EventTrialConverted EventType = "trial.converted"
	EventTrialCanceled  EventType = "trial.canceled"
)

// Event is emitted once per performed transition.
type Event struct {
	AccountID    string     `json:"account_id"`
	Type         EventType  `json:"type"`
	From         State      `json:"from"`
	To           State      `json:"to"`
	OccurredAt   time.Time  `json:"occurred_at"`
	TrialEndDate *time.Time `json:"trial_end_date,omitempty"`
}

// EventPublisher receives trial events. A publish failure is logged and never
// rolls the transition back.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventPublisherFunc adapts a function to EventPublisher.
type EventPublisherFunc func(ctx context.Context, event Event) error

func (f EventPublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }
