package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error records err under the key "error".
// A nil error yields an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups the non-nil errors under "errors", keyed by their position.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// AccountID records the authenticated account under "account_id".
func AccountID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("account_id", id)
}

// Identity records an anonymous visitor fingerprint under "identity".
func Identity(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("identity", id)
}

// MilestoneID records a milestone payment under "milestone_id".
func MilestoneID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("milestone_id", id)
}

// EstimateID records an estimate under "estimate_id".
func EstimateID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("estimate_id", id)
}

// RequestID records the request identifier under "request_id".
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// Plan records the plan used for a decision.
func Plan(name string) slog.Attr {
	return slog.String("plan", name)
}

// Decision records a gate outcome ("allowed", "denied", "fail_open", "fail_closed").
func Decision(outcome string) slog.Attr {
	return slog.String("decision", outcome)
}

// Count records a usage count and its limit as a group.
func Count(used, limit int64) slog.Attr {
	return Group("usage", slog.Int64("used", used), slog.Int64("limit", limit))
}

// Window records a [start, end) time range.
func Window(start, end time.Time) slog.Attr {
	return Group("window", slog.Time("start", start), slog.Time("end", end))
}

// Duration records a duration under "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// EventType records a domain event type under "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}
