// Package reminder dispatches payment reminders for milestone payments that
// fall due soon.
//
// A Run selects pending milestones due in [now, now+window], skips those the
// owner has not opted into, and sends one reminder per milestone per UTC day.
// The once-per-day guarantee comes from the Ledger: a dispatch first claims
// (milestone, day) with a uniqueness-enforcing write, so overlapping runs
// never both send. A failed send releases its claim so the next run retries
// it; a run never retries on its own. Individual failures are collected in
// the Summary and only a failure to list candidates aborts a run.
package reminder

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/metrics"
)

const (
	DefaultWindow          = 72 * time.Hour
	DefaultConcurrency     = 4
	DefaultDispatchTimeout = 10 * time.Second
)

// SkipReason explains why a candidate was not dispatched.
type SkipReason string

const (
	SkipNotPending       SkipReason = "not_pending"
	SkipMissingEstimate  SkipReason = "missing_estimate"
	SkipMissingPref      SkipReason = "missing_preference"
	SkipAutoSendDisabled SkipReason = "auto_send_disabled"
	SkipMissingEmail     SkipReason = "missing_client_email"
	SkipInvalidTone      SkipReason = "invalid_tone"
)

// Summary is the outcome of one Run.
type Summary struct {
	WindowStart time.Time          `json:"window_start"`
	WindowEnd   time.Time          `json:"window_end"`
	Candidates  int                `json:"candidates"`
	Dispatched  int                `json:"dispatched"`
	Duplicates  int                `json:"duplicates"`
	Skipped     map[SkipReason]int `json:"skipped"`
	Failed      int                `json:"failed"`
	Errors      []error            `json:"-"`
}

// SkippedTotal returns the number of skipped candidates over all reasons.
func (s Summary) SkippedTotal() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// Scheduler runs reminder batches.
type Scheduler struct {
	source          Source
	ledger          Ledger
	notifier        Notifier
	logger          *slog.Logger
	window          time.Duration
	concurrency     int
	dispatchTimeout time.Duration
	paymentBaseURL  string
	afterSend       func(ctx context.Context, r Reminder)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWindow sets how far ahead of now due dates are selected.
func WithWindow(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithConcurrency bounds the number of dispatches in flight.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithDispatchTimeout bounds each claim-and-send.
func WithDispatchTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.dispatchTimeout = d
		}
	}
}

// WithPaymentBaseURL sets the origin payment links are built on.
func WithPaymentBaseURL(base string) Option {
	return func(s *Scheduler) {
		s.paymentBaseURL = strings.TrimRight(base, "/")
	}
}

// WithAfterSend registers a hook called after each successful dispatch.
func WithAfterSend(fn func(ctx context.Context, r Reminder)) Option {
	return func(s *Scheduler) {
		s.afterSend = fn
	}
}

// NewScheduler creates a Scheduler. Panics if a dependency is nil.
func NewScheduler(source Source, ledger Ledger, notifier Notifier, opts ...Option) *Scheduler {
	if source == nil || ledger == nil || notifier == nil {
		panic("reminder: source, ledger and notifier are required")
	}

	s := &Scheduler{
		source:          source,
		ledger:          ledger,
		notifier:        notifier,
		logger:          slog.Default(),
		window:          DefaultWindow,
		concurrency:     DefaultConcurrency,
		dispatchTimeout: DefaultDispatchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one batch at now. The returned error is non-nil only when
// candidates could not be listed.
func (s *Scheduler) Run(ctx context.Context, now time.Time) (Summary, error) {
	started := time.Now()
	defer func() { metrics.ReminderRunDuration.Observe(time.Since(started).Seconds()) }()

	summary := Summary{
		WindowStart: now,
		WindowEnd:   now.Add(s.window),
		Skipped:     make(map[SkipReason]int),
	}

	candidates, err := s.source.DueMilestones(ctx, summary.WindowStart, summary.WindowEnd)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to list reminder candidates",
			logger.Component("reminder"),
			logger.Window(summary.WindowStart, summary.WindowEnd),
			logger.Error(err),
		)
		return summary, errors.Join(ErrSourceUnavailable, err)
	}
	summary.Candidates = len(candidates)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)
	day := DayOf(now)

	for _, c := range candidates {
		if reason, skip := s.skipReason(c); skip {
			summary.Skipped[reason]++
			metrics.RemindersTotal.WithLabelValues("skipped_" + string(reason)).Inc()
			level := slog.LevelDebug
			if reason == SkipInvalidTone {
				level = slog.LevelWarn
			}
			s.logger.LogAttrs(ctx, level, "reminder skipped",
				logger.Component("reminder"),
				logger.MilestoneID(c.Milestone.ID),
				slog.String("reason", string(reason)),
			)
			continue
		}

		r := s.buildReminder(c, now)
		g.Go(func() error {
			outcome, err := s.dispatch(ctx, r, day)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSent:
				summary.Dispatched++
			case outcomeDuplicate:
				summary.Duplicates++
			case outcomeFailed:
				summary.Failed++
				summary.Errors = append(summary.Errors, err)
			}
			metrics.RemindersTotal.WithLabelValues(string(outcome)).Inc()
			// Failures never cancel sibling dispatches.
			return nil
		})
	}
	_ = g.Wait()

	level := slog.LevelInfo
	if summary.Failed > 0 {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "reminder run finished",
		logger.Component("reminder"),
		logger.Window(summary.WindowStart, summary.WindowEnd),
		slog.Int("candidates", summary.Candidates),
		slog.Int("dispatched", summary.Dispatched),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("skipped", summary.SkippedTotal()),
		slog.Int("failed", summary.Failed),
		logger.Errors(summary.Errors...),
		logger.Duration(time.Since(started)),
	)
	return summary, nil
}

func (s *Scheduler) skipReason(c Candidate) (SkipReason, bool) {
	switch {
	case c.Milestone.Status != MilestonePending:
		return SkipNotPending, true
	case c.Estimate == nil:
		return SkipMissingEstimate, true
	case c.Preference == nil:
		return SkipMissingPref, true
	case !c.Preference.AutoSend:
		return SkipAutoSendDisabled, true
	case c.Estimate.ClientEmail == "":
		return SkipMissingEmail, true
	}
	if _, err := ParseTone(string(c.Preference.Tone)); err != nil {
		return SkipInvalidTone, true
	}
	return "", false
}

func (s *Scheduler) buildReminder(c Candidate, now time.Time) Reminder {
	tone, _ := ParseTone(string(c.Preference.Tone))
	return Reminder{
		MilestoneID:  c.Milestone.ID,
		EstimateID:   c.Estimate.ID,
		AccountID:    c.Estimate.AccountID,
		ClientEmail:  c.Estimate.ClientEmail,
		ClientName:   c.Estimate.ClientName,
		JobType:      c.Estimate.JobType,
		Description:  c.Milestone.Description,
		AmountDue:    c.Milestone.AmountDue,
		Currency:     c.Milestone.Currency,
		DueDate:      c.Milestone.DueDate,
		DaysOverdue:  DaysOverdue(c.Milestone.DueDate, now),
		Tone:         tone,
		PaymentLink:  PaymentLink(s.paymentBaseURL, c.Estimate.ID),
		BusinessName: c.Estimate.BusinessName,
		Day:          DayOf(now),
	}
}

type dispatchOutcome string

const (
	outcomeSent      dispatchOutcome = "dispatched"
	outcomeDuplicate dispatchOutcome = "duplicate"
	outcomeFailed    dispatchOutcome = "failed"
)

func (s *Scheduler) dispatch(ctx context.Context, r Reminder, day time.Time) (dispatchOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	attrs := []slog.Attr{
		logger.Component("reminder"),
		logger.MilestoneID(r.MilestoneID),
		logger.EstimateID(r.EstimateID),
	}

	claimed, err := s.ledger.Claim(ctx, r.MilestoneID, day)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "failed to claim reminder", append(attrs, logger.Error(err))...)
		return outcomeFailed, err
	}
	if !claimed {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "reminder already sent today", attrs...)
		return outcomeDuplicate, nil
	}

	if err := s.notifier.SendReminder(ctx, r); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "failed to send reminder", append(attrs, logger.Error(err))...)
		s.release(ctx, r.MilestoneID, day, attrs)
		return outcomeFailed, err
	}

	// The reminder went out; a failed status write only leaves the claim in
	// place, which still blocks a second send today.
	if err := s.ledger.MarkSent(context.WithoutCancel(ctx), r.MilestoneID, day); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "failed to mark reminder sent", append(attrs, logger.Error(err))...)
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "reminder sent", append(attrs, slog.String("tone", string(r.Tone)))...)
	if s.afterSend != nil {
		s.afterSend(context.WithoutCancel(ctx), r)
	}
	return outcomeSent, nil
}

// release runs detached from the dispatch deadline, which may be what failed
// the send.
func (s *Scheduler) release(ctx context.Context, milestoneID string, day time.Time, attrs []slog.Attr) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.dispatchTimeout)
	defer cancel()

	if err := s.ledger.Release(ctx, milestoneID, day); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to release reminder claim", append(attrs, logger.Error(err))...)
	}
}

// DaysOverdue returns whole days elapsed since due, never negative.
func DaysOverdue(due, now time.Time) int {
	if !now.After(due) {
		return 0
	}
	return int(now.Sub(due) / (24 * time.Hour))
}

// PaymentLink returns "<base>/estimates/<estimateID>/pay".
func PaymentLink(base, estimateID string) string {
	return strings.TrimRight(base, "/") + "/estimates/" + url.PathEscape(estimateID) + "/pay"
}
