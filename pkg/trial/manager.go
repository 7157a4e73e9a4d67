// Package trial tracks the trial window of an account's subscription and
// performs its state transitions.
//
//	trialing ──(now > trial_end_date)──▶ expired
//	trialing|expired ──(payment confirmed)──▶ converted
//	trialing|converted ──(cancellation)──▶ canceled
//
// Expiry is applied lazily whenever a subscription is evaluated and, for
// accounts that are never read, by the nightly Sweep. Both paths go through
// Store.ExpireTrial, a conditional write that reports whether the caller
// performed the transition, so the expiry event fires exactly once no matter
// how many readers race.
package trial

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/metrics"
	"github.com/gnosis118/paper-n-print-sub004/pkg/plans"
)

const (
	DefaultTrialLength = 14 * 24 * time.Hour
	DefaultSweepBatch  = 500
)

// Status is the evaluated view of a subscription at a point in time.
type Status struct {
	Subscription   *Subscription `json:"subscription"`
	IsTrialActive  bool          `json:"is_trial_active"`
	IsTrialExpired bool          `json:"is_trial_expired"`
	DaysRemaining  int           `json:"days_remaining"`
}

// SweepSummary reports the outcome of one Sweep.
type SweepSummary struct {
	Scanned int     `json:"scanned"`
	Expired int     `json:"expired"`
	Failed  int     `json:"failed"`
	Errors  []error `json:"-"`
}

// Manager owns the trial lifecycle.
type Manager struct {
	store       Store
	publisher   EventPublisher
	logger      *slog.Logger
	trialLength time.Duration
	sweepBatch  int
	now         func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithEventPublisher(p EventPublisher) ManagerOption {
	return func(m *Manager) {
		if p != nil {
			m.publisher = p
		}
	}
}

// WithTrialLength sets the length of new trials.
func WithTrialLength(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.trialLength = d
		}
	}
}

// WithSweepBatch sets how many stale trials Sweep loads per query.
func WithSweepBatch(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.sweepBatch = n
		}
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager. Panics if store is nil.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	if store == nil {
		panic("trial: store is required")
	}

	m := &Manager{
		store:       store,
		publisher:   noopPublisher{},
		logger:      slog.Default(),
		trialLength: DefaultTrialLength,
		sweepBatch:  DefaultSweepBatch,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartTrial creates a trialing subscription on plan ending TrialLength from
// now.
func (m *Manager) StartTrial(ctx context.Context, accountID string, plan plans.Plan) (*Subscription, error) {
	if accountID == "" {
		return nil, ErrMissingAccountID
	}
	limits, err := plans.LimitsFor(plan)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	end := now.Add(m.trialLength)
	sub := &Subscription{
		AccountID:    accountID,
		Plan:         plan,
		IsTrial:      true,
		TrialStatus:  StateTrialing,
		TrialEndDate: &end,
		Features:     limits.Features,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.Create(ctx, sub); err != nil {
		return nil, err
	}

	m.logger.LogAttrs(ctx, slog.LevelInfo, "trial started",
		logger.Component("trial"),
		logger.AccountID(accountID),
		logger.Plan(string(plan)),
		slog.Time("trial_end_date", end),
	)
	return sub, nil
}

// Evaluate reads the subscription and applies a due expiry. Repeated calls
// after expiry are no-ops and never publish a second event.
func (m *Manager) Evaluate(ctx context.Context, accountID string) (Status, error) {
	if accountID == "" {
		return Status{}, ErrMissingAccountID
	}

	sub, err := m.store.Get(ctx, accountID)
	if err != nil {
		return Status{}, err
	}

	now := m.now()
	if sub.TrialEndedAt(now) {
		// A failed write still reports the trial as expired; the next read
		// retries the transition.
		if _, err := m.expire(ctx, sub, now); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "failed to persist trial expiry",
				logger.Component("trial"),
				logger.AccountID(sub.AccountID),
				logger.Error(err),
			)
		}
		sub.TrialStatus = StateExpired
	}

	return Status{
		Subscription:   sub,
		IsTrialActive:  sub.IsTrialing() && !sub.TrialEndedAt(now),
		IsTrialExpired: sub.IsTrial && sub.TrialStatus == StateExpired,
		DaysRemaining:  sub.DaysRemainingAt(now),
	}, nil
}

// expire applies the conditional transition and publishes the event when this
// call performed it.
func (m *Manager) expire(ctx context.Context, sub *Subscription, now time.Time) (bool, error) {
	done, err := m.store.ExpireTrial(ctx, sub.AccountID, now)
	if err != nil || !done {
		return false, err
	}

	m.emit(ctx, Event{
		AccountID:    sub.AccountID,
		Type:         EventTrialExpired,
		From:         StateTrialing,
		To:           StateExpired,
		OccurredAt:   now,
		TrialEndDate: sub.TrialEndDate,
	})
	return true, nil
}

// Convert records a confirmed payment. Subscriptions that do not exist yet are
// created already converted. Replays with the same plan and provider id are
// no-ops.
func (m *Manager) Convert(ctx context.Context, accountID string, plan plans.Plan, providerSubscriptionID string) (*Subscription, error) {
	if accountID == "" {
		return nil, ErrMissingAccountID
	}
	limits, err := plans.LimitsFor(plan)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	var from State
	sub, changed, err := m.store.Update(ctx, accountID, func(sub *Subscription) (bool, error) {
		from = sub.TrialStatus
		switch sub.TrialStatus {
		case StateConverted:
			if sub.Plan == plan && (providerSubscriptionID == "" || sub.ProviderSubscriptionID == providerSubscriptionID) {
				return false, nil
			}
		case StateTrialing, StateExpired:
		default:
			return false, ErrInvalidTransition
		}

		sub.Plan = plan
		sub.Features = limits.Features
		sub.IsTrial = false
		sub.TrialStatus = StateConverted
		sub.SubscriptionEnd = nil
		if providerSubscriptionID != "" {
			sub.ProviderSubscriptionID = providerSubscriptionID
		}
		sub.UpdatedAt = now
		return true, nil
	})
	if errors.Is(err, ErrSubscriptionNotFound) {
		return m.createConverted(ctx, accountID, limits, providerSubscriptionID, now)
	}
	if err != nil {
		return nil, err
	}

	if changed && from != StateConverted {
		m.emit(ctx, Event{
			AccountID:    accountID,
			Type:         EventTrialConverted,
			From:         from,
			To:           StateConverted,
			OccurredAt:   now,
			TrialEndDate: sub.TrialEndDate,
		})
	}
	return sub, nil
}

func (m *Manager) createConverted(ctx context.Context, accountID string, limits plans.Limits, providerSubscriptionID string, now time.Time) (*Subscription, error) {
	sub := &Subscription{
		AccountID:              accountID,
		Plan:                   limits.Plan,
		TrialStatus:            StateConverted,
		Features:               limits.Features,
		ProviderSubscriptionID: providerSubscriptionID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	err := m.store.Create(ctx, sub)
	if errors.Is(err, ErrSubscriptionAlreadyExists) {
		// Lost a race with a concurrent replay; retry against the stored row.
		return m.Convert(ctx, accountID, limits.Plan, providerSubscriptionID)
	}
	if err != nil {
		return nil, err
	}

	m.logger.LogAttrs(ctx, slog.LevelInfo, "subscription created from payment",
		logger.Component("trial"),
		logger.AccountID(accountID),
		logger.Plan(string(limits.Plan)),
	)
	return sub, nil
}

// Cancel moves a trialing or converted subscription to canceled. Replays on a
// canceled subscription are no-ops; an expired trial cannot be canceled.
func (m *Manager) Cancel(ctx context.Context, accountID string) (*Subscription, error) {
	if accountID == "" {
		return nil, ErrMissingAccountID
	}

	now := m.now().UTC()
	var from State
	sub, changed, err := m.store.Update(ctx, accountID, func(sub *Subscription) (bool, error) {
		from = sub.TrialStatus
		switch sub.TrialStatus {
		case StateCanceled:
			return false, nil
		case StateTrialing, StateConverted:
		default:
			return false, ErrInvalidTransition
		}

		sub.TrialStatus = StateCanceled
		sub.SubscriptionEnd = &now
		sub.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return sub, err
	}

	if changed {
		m.emit(ctx, Event{
			AccountID:    accountID,
			Type:         EventTrialCanceled,
			From:         from,
			To:           StateCanceled,
			OccurredAt:   now,
			TrialEndDate: sub.TrialEndDate,
		})
	}
	return sub, nil
}

// EffectivePlan returns the plan to gate on. Accounts without a subscription,
// and subscriptions whose trial expired or that were canceled, fall back to
// free.
func (m *Manager) EffectivePlan(ctx context.Context, accountID string) (plans.Plan, error) {
	st, err := m.Evaluate(ctx, accountID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return plans.Free, nil
	}
	if err != nil {
		return "", err
	}

	switch st.Subscription.TrialStatus {
	case StateExpired, StateCanceled:
		return plans.Free, nil
	default:
		return st.Subscription.Plan, nil
	}
}

// Sweep expires every trial past its end date. Per-row failures are collected
// and do not stop the sweep; only a listing failure is returned as an error.
func (m *Manager) Sweep(ctx context.Context) (SweepSummary, error) {
	now := m.now()
	var summary SweepSummary

	for {
		batch, err := m.store.ListStaleTrials(ctx, now, m.sweepBatch)
		if err != nil {
			return summary, errors.Join(ErrStaleTrialListing, err)
		}

		progressed := false
		for _, sub := range batch {
			summary.Scanned++
			done, err := m.expire(ctx, sub, now)
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, err)
				m.logger.LogAttrs(ctx, slog.LevelWarn, "failed to expire trial",
					logger.Component("trial"),
					logger.AccountID(sub.AccountID),
					logger.Error(err),
				)
				continue
			}
			progressed = true
			if done {
				summary.Expired++
			}
		}

		// Rows that failed stay stale, so a batch with no progress would be
		// listed again forever.
		if len(batch) < m.sweepBatch || !progressed {
			break
		}
	}

	m.logger.LogAttrs(ctx, slog.LevelInfo, "trial sweep finished",
		logger.Component("trial"),
		slog.Int("scanned", summary.Scanned),
		slog.Int("expired", summary.Expired),
		slog.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (m *Manager) emit(ctx context.Context, event Event) {
	metrics.TrialTransitionsTotal.WithLabelValues(string(event.To)).Inc()

	m.logger.LogAttrs(ctx, slog.LevelInfo, "trial state changed",
		logger.Component("trial"),
		logger.AccountID(event.AccountID),
		logger.EventType(string(event.Type)),
		slog.String("from", string(event.From)),
		slog.String("to", string(event.To)),
	)

	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "failed to publish trial event",
			logger.Component("trial"),
			logger.AccountID(event.AccountID),
			logger.EventType(string(event.Type)),
			logger.Error(err),
		)
	}
}
