package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gnosis118/paper-n-print-sub004/pkg/plans"
)

// Paddle event types the engine acts on.
const (
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCanceled  = "subscription.canceled"
	EventTransactionCompleted  = "transaction.completed"
)

// Action is what an event asks of the trial lifecycle.
type Action string

const (
	ActionIgnore  Action = "ignore"
	ActionConvert Action = "convert"
	ActionCancel  Action = "cancel"
)

// Event is the subset of a Paddle notification the engine needs.
type Event struct {
	ID                     string
	Type                   string
	Status                 string
	AccountID              string
	PriceID                string
	Plan                   plans.Plan
	ProviderSubscriptionID string
	OccurredAt             time.Time
}

// Action maps the event onto the trial lifecycle. A created subscription
// converts only once it is active.
func (e Event) Action() Action {
	switch e.Type {
	case EventSubscriptionActivated, EventTransactionCompleted:
		return ActionConvert
	case EventSubscriptionCreated:
		if e.Status == "active" {
			return ActionConvert
		}
	case EventSubscriptionCanceled:
		return ActionCancel
	}
	return ActionIgnore
}

type paddleNotification struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       struct {
		ID             string         `json:"id"`
		Status         string         `json:"status"`
		SubscriptionID string         `json:"subscription_id"`
		CustomData     map[string]any `json:"custom_data"`
		Items          []struct {
			PriceID string `json:"price_id"`
			Price   struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"items"`
	} `json:"data"`
}

// ParseEvent decodes a Paddle notification. Subscription events carry the
// price under items[].price.id and transactions under items[].price_id; both
// are accepted. The plan is resolved only for events that convert.
func ParseEvent(payload []byte, pricePlans map[string]string) (Event, error) {
	var n paddleNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return Event{}, errors.Join(ErrMalformedPayload, err)
	}
	if n.EventType == "" {
		return Event{}, fmt.Errorf("%w: event_type is empty", ErrMalformedPayload)
	}

	e := Event{
		ID:         n.EventID,
		Type:       n.EventType,
		Status:     n.Data.Status,
		OccurredAt: n.OccurredAt,
	}
	if e.Action() == ActionIgnore {
		return e, nil
	}

	if id, ok := n.Data.CustomData["account_id"].(string); ok {
		e.AccountID = id
	}
	if e.AccountID == "" {
		return e, ErrMissingAccountID
	}

	switch {
	case n.Data.SubscriptionID != "":
		e.ProviderSubscriptionID = n.Data.SubscriptionID
	case n.EventType != EventTransactionCompleted:
		e.ProviderSubscriptionID = n.Data.ID
	}

	for _, item := range n.Data.Items {
		if item.Price.ID != "" {
			e.PriceID = item.Price.ID
		} else {
			e.PriceID = item.PriceID
		}
		if e.PriceID != "" {
			break
		}
	}

	if e.Action() == ActionConvert {
		name, ok := pricePlans[e.PriceID]
		if !ok {
			return e, fmt.Errorf("%w: %q", ErrUnknownPrice, e.PriceID)
		}
		plan, err := plans.Parse(name)
		if err != nil {
			return e, fmt.Errorf("%w: %q maps to %q: %v", ErrUnknownPrice, e.PriceID, name, err)
		}
		e.Plan = plan
	}
	return e, nil
}
