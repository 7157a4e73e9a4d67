// Package metrics declares the engine's Prometheus collectors. Collectors are
// registered with the default registry on import and exposed by the HTTP
// server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "engine"

var (
	// UsageDecisionsTotal counts gate decisions by gate and outcome.
	UsageDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "usage",
		Name:      "decisions_total",
		Help:      "Usage gate decisions by gate and outcome (allowed, denied).",
	}, []string{"gate", "outcome"})

	// UsageFailOpenTotal counts store failures that the gates absorbed.
	UsageFailOpenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "usage",
		Name:      "fail_open_total",
		Help:      "Usage gate store failures by gate and policy (open, closed).",
	}, []string{"gate", "policy"})

	// QuotaStoreDuration tracks counter store latency.
	QuotaStoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "quota",
		Name:      "store_duration_seconds",
		Help:      "Quota store call duration in seconds.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
	}, []string{"op"})

	// TrialTransitionsTotal counts trial state transitions.
	TrialTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trial",
		Name:      "transitions_total",
		Help:      "Trial state transitions by target state.",
	}, []string{"to"})

	// RemindersTotal counts reminder candidates by outcome.
	RemindersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reminder",
		Name:      "candidates_total",
		Help:      "Reminder candidates by outcome (dispatched, duplicate, failed, skipped_*).",
	}, []string{"outcome"})

	// ReminderRunDuration tracks a full scheduler run.
	ReminderRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "reminder",
		Name:      "run_duration_seconds",
		Help:      "Reminder scheduler run duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// NotificationsRecordedTotal counts Record calls by type and whether a row
	// was written.
	NotificationsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "recorded_total",
		Help:      "Notification record attempts by type and result (created, deduplicated).",
	}, []string{"type", "result"})

	// WebhookRequestsTotal counts billing webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Billing webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// ThrottledRequestsTotal counts rate limiter decisions on public routes.
	ThrottledRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "throttle_decisions_total",
		Help:      "Rate limiter decisions by route group and outcome (allowed, throttled, error).",
	}, []string{"route", "outcome"})
)
