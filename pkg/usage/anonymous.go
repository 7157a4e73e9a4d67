package usage

import (
	"context"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/metrics"
	"github.com/gnosis118/paper-n-print-sub004/pkg/quota"
)

// AnonymousLimit is the number of actions an unauthenticated visitor may
// perform, ever.
const AnonymousLimit int64 = 1

// Decision is the anonymous gate's answer for one visitor identity.
type Decision struct {
	Allowed    bool  `json:"allowed"`
	Used       int64 `json:"used"`
	Limit      int64 `json:"limit"`
	Remaining  int64 `json:"remaining"`
	FailedOpen bool  `json:"failed_open"`
}

// AnonymousGate limits unauthenticated visitors to AnonymousLimit actions in
// the lifetime window.
type AnonymousGate struct {
	store quota.Store
	opts  options
}

// NewAnonymousGate creates a gate counting in store. Panics if store is nil.
func NewAnonymousGate(store quota.Store, opts ...Option) *AnonymousGate {
	if store == nil {
		panic("usage: quota store is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &AnonymousGate{store: store, opts: o}
}

// Evaluate reports whether identity may act, without consuming anything.
func (g *AnonymousGate) Evaluate(ctx context.Context, identity string) (Decision, error) {
	if identity == "" {
		return Decision{}, ErrMissingIdentity
	}

	period := quota.Lifetime.Period(g.opts.now())
	used, err := storeCall(ctx, &g.opts, "peek", func(ctx context.Context) (int64, error) {
		return g.store.Peek(ctx, storeKey(gateAnonymous, identity), period)
	})
	if err != nil {
		return g.degraded(ctx, identity, err), nil
	}

	return Decision{
		Allowed:   used < AnonymousLimit,
		Used:      used,
		Limit:     AnonymousLimit,
		Remaining: max(AnonymousLimit-used, 0),
	}, nil
}

// RecordUsage consumes the visitor's allowance. Allowed reports whether this
// call was granted; a second call for the same identity is denied.
func (g *AnonymousGate) RecordUsage(ctx context.Context, identity string) (Decision, error) {
	if identity == "" {
		return Decision{}, ErrMissingIdentity
	}

	period := quota.Lifetime.Period(g.opts.now())
	res, err := storeCall(ctx, &g.opts, "consume", func(ctx context.Context) (quota.Result, error) {
		return g.store.Consume(ctx, storeKey(gateAnonymous, identity), period, AnonymousLimit)
	})
	if err != nil {
		return g.degraded(ctx, identity, err), nil
	}

	metrics.UsageDecisionsTotal.WithLabelValues(gateAnonymous, outcome(res.Consumed)).Inc()
	g.opts.logger.LogAttrs(ctx, logLevel(res.Consumed), "anonymous usage recorded",
		logger.Component("usage"),
		logger.Identity(identity),
		logger.Decision(outcome(res.Consumed)),
		logger.Count(res.Count, AnonymousLimit),
	)

	return Decision{
		Allowed:   res.Consumed,
		Used:      res.Count,
		Limit:     AnonymousLimit,
		Remaining: res.Remaining(),
	}, nil
}

func (g *AnonymousGate) degraded(ctx context.Context, identity string, err error) Decision {
	allowed := degrade(ctx, &g.opts, gateAnonymous, logger.Identity(identity), err)
	d := Decision{Allowed: allowed, Limit: AnonymousLimit, FailedOpen: allowed}
	if allowed {
		d.Remaining = AnonymousLimit
	}
	return d
}
