package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/notifications"
	"github.com/gnosis118/paper-n-print-sub004/pkg/reminder"
	"github.com/gnosis118/paper-n-print-sub004/pkg/trial"
	"github.com/gnosis118/paper-n-print-sub004/pkg/usage"
)

// Recorder is the write side of the notification recorder.
type Recorder interface {
	Record(ctx context.Context, entry notifications.Entry) (notifications.Notification, bool, error)
}

// TrialEvents turns trial lifecycle events into in-app notifications, one per
// account and event type.
type TrialEvents struct {
	Recorder Recorder
}

func (t TrialEvents) Publish(ctx context.Context, event trial.Event) error {
	entry := notifications.Entry{
		AccountID: event.AccountID,
		Type:      notifications.Type(event.Type),
		DedupeKey: string(event.Type),
		Metadata: map[string]any{
			"from":        string(event.From),
			"to":          string(event.To),
			"occurred_at": event.OccurredAt.UTC().Format(time.RFC3339),
		},
	}
	switch event.Type {
	case trial.EventTrialExpired:
		entry.Title = "Your trial has ended"
		entry.Message = "Your account is back on the free plan with 3 invoices a month. Upgrade to keep unlimited invoices."
		if event.TrialEndDate != nil {
			entry.Metadata["trial_end_date"] = event.TrialEndDate.UTC().Format(time.RFC3339)
		}
	case trial.EventTrialConverted:
		entry.Title = "Subscription active"
		entry.Message = "Thanks for subscribing. Your plan is now active."
	case trial.EventTrialCanceled:
		entry.Title = "Subscription canceled"
		entry.Message = "Your subscription was canceled. You can resubscribe at any time."
	default:
		return fmt.Errorf("unsupported trial event %q", event.Type)
	}

	_, _, err := t.Recorder.Record(ctx, entry)
	return err
}

// UsageEvents turns near-limit events into one notification per account per
// calendar month.
type UsageEvents struct {
	Recorder Recorder
}

func (u UsageEvents) PublishNearLimit(ctx context.Context, event usage.NearLimitEvent) error {
	month := event.WindowStart.UTC().Format("2006-01")
	_, _, err := u.Recorder.Record(ctx, notifications.Entry{
		AccountID: event.AccountID,
		Type:      notifications.TypeQuotaNearLimit,
		Title:     "You are close to your monthly invoice limit",
		Message:   fmt.Sprintf("You have used %d of %d invoices this month on the %s plan.", event.Count, event.Limit, event.Plan),
		DedupeKey: string(notifications.TypeQuotaNearLimit) + ":" + month,
		Metadata: map[string]any{
			"plan":  string(event.Plan),
			"count": event.Count,
			"limit": event.Limit,
			"month": month,
		},
	})
	return err
}

// ReminderSent records a notification for the estimate owner after each
// dispatched reminder. Failures are logged only: the email already went out.
func ReminderSent(rec Recorder, log *slog.Logger) func(ctx context.Context, r reminder.Reminder) {
	return func(ctx context.Context, r reminder.Reminder) {
		_, _, err := rec.Record(ctx, notifications.Entry{
			AccountID: r.AccountID,
			Type:      notifications.TypeReminderSent,
			Title:     "Payment reminder sent",
			Message:   fmt.Sprintf("A %s reminder was sent to %s for %s.", r.Tone, r.ClientName, r.JobType),
			DedupeKey: fmt.Sprintf("%s:%s:%s", notifications.TypeReminderSent, r.MilestoneID, r.Day.Format(time.DateOnly)),
			Metadata: map[string]any{
				"estimate_id":  r.EstimateID,
				"milestone_id": r.MilestoneID,
				"client_email": r.ClientEmail,
				"tone":         string(r.Tone),
			},
		})
		if err != nil {
			log.LogAttrs(ctx, slog.LevelWarn, "failed to record reminder notification",
				logger.Component("engine"),
				logger.AccountID(r.AccountID),
				logger.MilestoneID(r.MilestoneID),
				logger.Error(err),
			)
		}
	}
}
