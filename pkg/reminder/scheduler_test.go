package reminder_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/reminder"
)

var now = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

// recordingNotifier captures sent reminders and optionally fails.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []reminder.Reminder
	err  error
}

func (n *recordingNotifier) SendReminder(_ context.Context, r reminder.Reminder) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, r)
	return nil
}

func (n *recordingNotifier) Sent() []reminder.Reminder {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]reminder.Reminder(nil), n.sent...)
}

func (n *recordingNotifier) SetErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

type failingSource struct{}

func (failingSource) DueMilestones(context.Context, time.Time, time.Time) ([]reminder.Candidate, error) {
	return nil, errors.New("connection refused")
}

func seed(src *reminder.MemorySource, accountID string, tone reminder.Tone, autoSend bool) {
	src.PutEstimate(reminder.Estimate{
		ID:           "est-" + accountID,
		AccountID:    accountID,
		ClientName:   "Dana Client",
		ClientEmail:  "dana@example.com",
		JobType:      "Kitchen remodel",
		BusinessName: "Acme Builders",
	})
	src.PutPreference(reminder.Preference{AccountID: accountID, Tone: tone, AutoSend: autoSend})
}

func newScheduler(src reminder.Source, ledger reminder.Ledger, n reminder.Notifier, opts ...reminder.Option) *reminder.Scheduler {
	opts = append([]reminder.Option{
		reminder.WithLogger(logger.Discard()),
		reminder.WithPaymentBaseURL("https://pay.example.com/"),
	}, opts...)
	return reminder.NewScheduler(src, ledger, n, opts...)
}

func TestScheduler_Run(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("selects pending milestones of opted-in accounts", func(t *testing.T) {
		t.Parallel()
		src := reminder.NewMemorySource()
		seed(src, "acct-on", reminder.ToneProfessional, true)
		seed(src, "acct-off", reminder.ToneProfessional, false)
		src.PutMilestone(reminder.Milestone{ID: "m-due", EstimateID: "est-acct-on", AmountDue: 125000, Currency: "USD", DueDate: now.Add(48 * time.Hour), Status: reminder.MilestonePending})
		src.PutMilestone(reminder.Milestone{ID: "m-paid", EstimateID: "est-acct-on", DueDate: now.Add(24 * time.Hour), Status: reminder.MilestonePaid})
		src.PutMilestone(reminder.Milestone{ID: "m-optout", EstimateID: "est-acct-off", DueDate: now.Add(24 * time.Hour), Status: reminder.MilestonePending})
		src.PutMilestone(reminder.Milestone{ID: "m-later", EstimateID: "est-acct-on", DueDate: now.Add(96 * time.Hour), Status: reminder.MilestonePending})

		notifier := &recordingNotifier{}
		summary, err := newScheduler(src, reminder.NewMemoryLedger(), notifier).Run(ctx, now)
		require.NoError(t, err)

		assert.Equal(t, 2, summary.Candidates)
		assert.Equal(t, 1, summary.Dispatched)
		assert.Equal(t, 1, summary.Skipped[reminder.SkipAutoSendDisabled])
		require.Len(t, notifier.Sent(), 1)
		assert.Equal(t, "m-due", notifier.Sent()[0].MilestoneID)
	})

	t.Run("unknown tone skips only that milestone", func(t *testing.T) {
		t.Parallel()
		src := reminder.NewMemorySource()
		seed(src, "acct-ok", reminder.ToneFirm, true)
		seed(src, "acct-bad", reminder.Tone("sarcastic"), true)
		seed(src, "acct-default", "", true)
		src.PutMilestone(reminder.Milestone{ID: "m-ok", EstimateID: "est-acct-ok", DueDate: now.Add(24 * time.Hour), Status: reminder.MilestonePending})
		src.PutMilestone(reminder.Milestone{ID: "m-bad", EstimateID: "est-acct-bad", DueDate: now.Add(24 * time.Hour), Status: reminder.MilestonePending})
		src.PutMilestone(reminder.Milestone{ID: "m-default", EstimateID: "est-acct-default", DueDate: now.Add(36 * time.Hour), Status: reminder.MilestonePending})

		notifier := &recordingNotifier{}
		summary, err := newScheduler(src, reminder.NewMemoryLedger(), notifier).Run(ctx, now)
		require.NoError(t, err)

		assert.Equal(t, 3, summary.Candidates)
		assert.Equal(t, 2, summary.Dispatched)
		assert.Equal(t, 1, summary.Skipped[reminder.SkipInvalidTone])
		require.Len(t, notifier.Sent(), 2)
		tones := map[string]reminder.Tone{}
		for _, r := range notifier.Sent() {
			tones[r.MilestoneID] = r.Tone
		}
		assert.Equal(t, reminder.ToneFirm, tones["m-ok"])
		assert.Equal(t, reminder.ToneProfessional, tones["m-default"])
	})

	t.Run("one reminder per milestone per day", func(t *testing.T) {
		t.Parallel()
		src := reminder.NewMemorySource()
		seed(src, "acct-1", reminder.ToneFriendly, true)
		due := now.Add(24 * time.Hour)
		src.PutMilestone(reminder.Milestone{ID: "m-1", EstimateID: "est-acct-1", AmountDue: 50000, Currency: "USD", DueDate: due, Description: "Deposit", Status: reminder.MilestonePending})

		ledger := reminder.NewMemoryLedger()
		notifier := &recordingNotifier{}
		s := newScheduler(src, ledger, notifier)

		summary, err := s.Run(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Dispatched)

		require.Len(t, notifier.Sent(), 1)
		r := notifier.Sent()[0]
		assert.Equal(t, reminder.ToneFriendly, r.Tone)
		assert.Equal(t, 0, r.DaysOverdue)
		assert.Equal(t, "dana@example.com", r.ClientEmail)
		assert.Equal(t, "Kitchen remodel", r.JobType)
		assert.Equal(t, int64(50000), r.AmountDue)
		assert.Equal(t, "https://pay.example.com/estimates/est-acct-1/pay", r.PaymentLink)

		summary, err = s.Run(ctx, now.Add(6*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Dispatched)
		assert.Equal(t, 1, summary.Duplicates)
		assert.Len(t, notifier.Sent(), 1)

		summary, err = s.Run(ctx, now.Add(20*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Dispatched, "a new UTC day allows another reminder")

		dispatches := ledger.Dispatches("m-1")
		require.Len(t, dispatches, 2)
		assert.Equal(t, reminder.DispatchSent, dispatches[0].Status)
	})

	t.Run("missing estimate or preference is skipped", func(t *testing.T) {
		t.Parallel()
		src := reminder.NewMemorySource()
		src.PutMilestone(reminder.Milestone{ID: "m-orphan", EstimateID: "est-missing", DueDate: now.Add(time.Hour), Status: reminder.MilestonePending})
		src.PutEstimate(reminder.Estimate{ID: "est-nopref", AccountID: "acct-nopref", ClientEmail: "c@example.com"})
		src.PutMilestone(reminder.Milestone{ID: "m-nopref", EstimateID: "est-nopref", DueDate: now.Add(time.Hour), Status: reminder.MilestonePending})

		notifier := &recordingNotifier{}
		summary, err := newScheduler(src, reminder.NewMemoryLedger(), notifier).Run(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Skipped[reminder.SkipMissingEstimate])
		assert.Equal(t, 1, summary.Skipped[reminder.SkipMissingPref])
		assert.Equal(t, 2, summary.SkippedTotal())
		assert.Empty(t, notifier.Sent())
	})

	t.Run("failed send releases the claim", func(t *testing.T) {
		t.Parallel()
		src := reminder.NewMemorySource()
		seed(src, "acct-1", reminder.ToneFirm, true)
		src.PutMilestone(reminder.Milestone{ID: "m-1", EstimateID: "est-acct-1", DueDate: now.Add(time.Hour), Status: reminder.MilestonePending})

		ledger := reminder.NewMemoryLedger()
		notifier := &recordingNotifier{}
		notifier.SetErr(errors.New("smtp timeout"))
		s := newScheduler(src, ledger, notifier)

		summary, err := s.Run(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed)
		require.Len(t, summary.Errors, 1)
		assert.Empty(t, ledger.Dispatches("m-1"))

		notifier.SetErr(nil)
		summary, err = s.Run(ctx, now.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Dispatched)
	})

	t.Run("source failure aborts the run", func(t *testing.T) {
		t.Parallel()
		_, err := newScheduler(failingSource{}, reminder.NewMemoryLedger(), &recordingNotifier{}).Run(ctx, now)
		assert.ErrorIs(t, err, reminder.ErrSourceUnavailable)
	})

	t.Run("bounded concurrency", func(t *testing.T) {
		t.Parallel()
		src := reminder.NewMemorySource()
		seed(src, "acct-1", reminder.ToneProfessional, true)
		for _, id := range []string{"m-1", "m-2", "m-3", "m-4", "m-5", "m-6", "m-7", "m-8"} {
			src.PutMilestone(reminder.Milestone{ID: id, EstimateID: "est-acct-1", DueDate: now.Add(time.Hour), Status: reminder.MilestonePending})
		}

		var inFlight, peak atomic.Int64
		notifier := reminder.NotifierFunc(func(context.Context, reminder.Reminder) error {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			return nil
		})

		summary, err := newScheduler(src, reminder.NewMemoryLedger(), notifier, reminder.WithConcurrency(2)).Run(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 8, summary.Dispatched)
		assert.LessOrEqual(t, peak.Load(), int64(2))
	})

	t.Run("after send hook", func(t *testing.T) {
		t.Parallel()
		src := reminder.NewMemorySource()
		seed(src, "acct-1", reminder.ToneProfessional, true)
		src.PutMilestone(reminder.Milestone{ID: "m-1", EstimateID: "est-acct-1", DueDate: now.Add(time.Hour), Status: reminder.MilestonePending})

		var hooked []string
		var mu sync.Mutex
		s := newScheduler(src, reminder.NewMemoryLedger(), &recordingNotifier{}, reminder.WithAfterSend(func(_ context.Context, r reminder.Reminder) {
			mu.Lock()
			defer mu.Unlock()
			hooked = append(hooked, r.AccountID)
		}))
		_, err := s.Run(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"acct-1"}, hooked)
	})
}

func TestNewScheduler_PanicsOnNil(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() {
		reminder.NewScheduler(nil, reminder.NewMemoryLedger(), &recordingNotifier{})
	})
}

func TestDaysOverdue(t *testing.T) {
	t.Parallel()
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, reminder.DaysOverdue(due, due.Add(-time.Hour)))
	assert.Equal(t, 0, reminder.DaysOverdue(due, due.Add(23*time.Hour)))
	assert.Equal(t, 3, reminder.DaysOverdue(due, due.Add(73*time.Hour)))
}

func TestParseTone(t *testing.T) {
	t.Parallel()
	tone, err := reminder.ParseTone("")
	require.NoError(t, err)
	assert.Equal(t, reminder.ToneProfessional, tone)

	tone, err = reminder.ParseTone("firm")
	require.NoError(t, err)
	assert.Equal(t, reminder.ToneFirm, tone)

	_, err = reminder.ParseTone("sarcastic")
	assert.ErrorIs(t, err, reminder.ErrUnknownTone)
}

func TestMemoryLedger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := reminder.NewMemoryLedger()

	ok, err := ledger.Claim(ctx, "m-1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.Claim(ctx, "m-1", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "same UTC day")

	require.NoError(t, ledger.MarkSent(ctx, "m-1", now))
	require.NoError(t, ledger.Release(ctx, "m-1", now))
	assert.Len(t, ledger.Dispatches("m-1"), 1, "sent entries are never released")

	assert.ErrorIs(t, ledger.MarkSent(ctx, "m-2", now), reminder.ErrClaimNotFound)
}
