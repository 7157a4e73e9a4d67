package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/metrics"
	"github.com/gnosis118/paper-n-print-sub004/pkg/plans"
	"github.com/gnosis118/paper-n-print-sub004/pkg/quota"
)

// PlanResolver returns the plan an account is currently entitled to.
type PlanResolver func(ctx context.Context, accountID string) (plans.Plan, error)

// Snapshot is an account's usage in the current calendar month.
type Snapshot struct {
	Count       int64      `json:"count"`
	Limit       int64      `json:"limit"` // plans.Unlimited (-1) for no cap
	Remaining   int64      `json:"remaining"`
	CanAct      bool       `json:"can_act"`
	NearLimit   bool       `json:"near_limit"`
	Plan        plans.Plan `json:"plan"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	FailedOpen  bool       `json:"failed_open"`
	// Consumed is set by Consume when the action was counted.
	Consumed bool `json:"consumed"`
}

// AccountGate enforces plan invoice limits per calendar month.
type AccountGate struct {
	store       quota.Store
	resolvePlan PlanResolver
	opts        options
}

// NewAccountGate creates a gate counting in store and looking plans up with
// resolvePlan. Panics if either is nil.
func NewAccountGate(store quota.Store, resolvePlan PlanResolver, opts ...Option) *AccountGate {
	if store == nil {
		panic("usage: quota store is required")
	}
	if resolvePlan == nil {
		panic("usage: plan resolver is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &AccountGate{store: store, resolvePlan: resolvePlan, opts: o}
}

// Evaluate returns the account's current snapshot without consuming.
func (g *AccountGate) Evaluate(ctx context.Context, accountID string) (Snapshot, error) {
	if accountID == "" {
		return Snapshot{}, ErrMissingAccountID
	}

	period := quota.CalendarMonth.Period(g.opts.now())
	limits, err := g.limits(ctx, accountID)
	if err != nil {
		return g.degraded(ctx, accountID, limits, period, err), nil
	}

	count, err := storeCall(ctx, &g.opts, "peek", func(ctx context.Context) (int64, error) {
		return g.store.Peek(ctx, storeKey(gateAccount, accountID), period)
	})
	if err != nil {
		return g.degraded(ctx, accountID, limits, period, err), nil
	}

	return g.snapshot(count, limits, period), nil
}

// Consume counts one monetized action against the account's monthly
// allowance in a single atomic step. Consumed reports whether it was counted;
// CanAct reports whether another action would still fit afterwards.
// Unbounded plans are counted too, so their usage stays visible.
func (g *AccountGate) Consume(ctx context.Context, accountID string) (Snapshot, error) {
	if accountID == "" {
		return Snapshot{}, ErrMissingAccountID
	}

	now := g.opts.now()
	period := quota.CalendarMonth.Period(now)
	limits, err := g.limits(ctx, accountID)
	if err != nil {
		s := g.degraded(ctx, accountID, limits, period, err)
		s.Consumed = s.CanAct
		return s, nil
	}

	res, err := storeCall(ctx, &g.opts, "consume", func(ctx context.Context) (quota.Result, error) {
		return g.store.Consume(ctx, storeKey(gateAccount, accountID), period, limits.InvoiceLimit)
	})
	if err != nil {
		s := g.degraded(ctx, accountID, limits, period, err)
		s.Consumed = s.CanAct
		return s, nil
	}

	s := g.snapshot(res.Count, limits, period)
	s.Consumed = res.Consumed

	metrics.UsageDecisionsTotal.WithLabelValues(gateAccount, outcome(res.Consumed)).Inc()
	g.opts.logger.LogAttrs(ctx, logLevel(res.Consumed), "account usage recorded",
		logger.Component("usage"),
		logger.AccountID(accountID),
		logger.Plan(string(limits.Plan)),
		logger.Decision(outcome(res.Consumed)),
		logger.Count(res.Count, limits.InvoiceLimit),
	)

	if res.Consumed && s.NearLimit && !g.nearLimit(res.Count-1, limits.InvoiceLimit) {
		g.publishNearLimit(ctx, NearLimitEvent{
			AccountID:   accountID,
			Plan:        limits.Plan,
			Count:       res.Count,
			Limit:       limits.InvoiceLimit,
			WindowStart: period.Start,
			OccurredAt:  now,
		})
	}

	return s, nil
}

// limits resolves the account's plan under the store timeout. The resolver
// may read and expire the trial, which is store I/O like any other.
func (g *AccountGate) limits(ctx context.Context, accountID string) (plans.Limits, error) {
	plan, err := storeCall(ctx, &g.opts, "plan", func(ctx context.Context) (plans.Plan, error) {
		plan, err := g.resolvePlan(ctx, accountID)
		if err == nil {
			err = ctx.Err()
		}
		return plan, err
	})
	if err != nil {
		return unknownLimits, errors.Join(ErrPlanLookup, err)
	}
	limits, err := plans.LimitsFor(plan)
	if err != nil {
		l := unknownLimits
		l.Plan = plan
		return l, errors.Join(ErrPlanLookup, err)
	}
	return limits, nil
}

// unknownLimits stands in when the plan could not be resolved. The limit is
// reported as Unlimited because no cap is being enforced.
var unknownLimits = plans.Limits{InvoiceLimit: plans.Unlimited}

func (g *AccountGate) snapshot(count int64, limits plans.Limits, period quota.Period) Snapshot {
	s := Snapshot{
		Count:       count,
		Limit:       limits.InvoiceLimit,
		Plan:        limits.Plan,
		WindowStart: period.Start,
		WindowEnd:   period.End,
	}
	if limits.IsUnlimited() {
		s.CanAct = true
		s.Remaining = plans.Unlimited
		return s
	}
	s.CanAct = count < limits.InvoiceLimit
	s.NearLimit = g.nearLimit(count, limits.InvoiceLimit)
	s.Remaining = max(limits.InvoiceLimit-count, 0)
	return s
}

// nearLimit reports count >= pct% of limit using integer arithmetic.
func (g *AccountGate) nearLimit(count, limit int64) bool {
	if limit <= 0 {
		return false
	}
	return count*100 >= limit*g.opts.nearLimitPercent
}

func (g *AccountGate) degraded(ctx context.Context, accountID string, limits plans.Limits, period quota.Period, err error) Snapshot {
	allowed := degrade(ctx, &g.opts, gateAccount, logger.AccountID(accountID), err)
	s := Snapshot{
		Limit:       limits.InvoiceLimit,
		Plan:        limits.Plan,
		CanAct:      allowed,
		FailedOpen:  allowed,
		WindowStart: period.Start,
		WindowEnd:   period.End,
	}
	switch {
	case !allowed:
		if errors.Is(err, ErrPlanLookup) {
			s.Limit = 0
		}
	case limits.IsUnlimited():
		s.Remaining = plans.Unlimited
	default:
		s.Remaining = limits.InvoiceLimit
	}
	return s
}

func (g *AccountGate) publishNearLimit(ctx context.Context, event NearLimitEvent) {
	if err := g.opts.publisher.PublishNearLimit(ctx, event); err != nil {
		g.opts.logger.LogAttrs(ctx, slog.LevelWarn, "failed to publish near-limit event",
			logger.Component("usage"),
			logger.AccountID(event.AccountID),
			logger.Error(err),
		)
	}
}
