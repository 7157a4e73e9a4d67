package entitlement

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gnosis118/paper-n-print-sub004/handler"
	"github.com/gnosis118/paper-n-print-sub004/pkg/binder"
	"github.com/gnosis118/paper-n-print-sub004/pkg/fingerprint"
	"github.com/gnosis118/paper-n-print-sub004/pkg/usage"
)

// AnonymousGate is the visitor-side usage gate.
type AnonymousGate interface {
	Evaluate(ctx context.Context, identity string) (usage.Decision, error)
	RecordUsage(ctx context.Context, identity string) (usage.Decision, error)
}

// AccountGate is the plan-side usage gate.
type AccountGate interface {
	Evaluate(ctx context.Context, accountID string) (usage.Snapshot, error)
	Consume(ctx context.Context, accountID string) (usage.Snapshot, error)
}

// AnonymousUsageService serves /v1/anonymous/usage. The visitor is identified
// by the fingerprint of the request's client signals.
type AnonymousUsageService struct {
	gate         AnonymousGate
	errorHandler handler.ErrorHandler[handler.Context]
}

func NewAnonymousUsageService(gate AnonymousGate, errorHandler handler.ErrorHandler[handler.Context]) *AnonymousUsageService {
	return &AnonymousUsageService{gate: gate, errorHandler: errorHandler}
}

func (s *AnonymousUsageService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(fingerprint.Middleware)

	r.Get("/", handler.Wrap(s.evaluate,
		handler.WithErrorHandler[handler.Context, struct{}](s.errorHandler),
	))
	r.Post("/", handler.Wrap(s.record,
		handler.WithErrorHandler[handler.Context, struct{}](s.errorHandler),
	))
	return r
}

func (s *AnonymousUsageService) evaluate(ctx handler.Context, _ struct{}) handler.Response {
	identity := fingerprint.GetFingerprintFromContext(ctx)
	if identity == "" {
		return handler.Error(ErrMissingFingerprint)
	}
	d, err := s.gate.Evaluate(ctx, identity)
	if err != nil {
		return handler.Error(httpError(err))
	}
	return handler.JSON(d)
}

// record consumes the visitor's action. A refused action answers 403 with the
// decision as data so the client can prompt for sign-up.
func (s *AnonymousUsageService) record(ctx handler.Context, _ struct{}) handler.Response {
	identity := fingerprint.GetFingerprintFromContext(ctx)
	if identity == "" {
		return handler.Error(ErrMissingFingerprint)
	}
	d, err := s.gate.RecordUsage(ctx, identity)
	if err != nil {
		return handler.Error(httpError(err))
	}
	if !d.Allowed {
		return handler.JSON(d, handler.WithJSONStatus(ErrAnonymousLimit.Code))
	}
	return handler.JSON(d)
}

// AccountUsageService serves /v1/accounts/{accountID}/usage.
type AccountUsageService struct {
	gate         AccountGate
	errorHandler handler.ErrorHandler[handler.Context]
}

func NewAccountUsageService(gate AccountGate, errorHandler handler.ErrorHandler[handler.Context]) *AccountUsageService {
	return &AccountUsageService{gate: gate, errorHandler: errorHandler}
}

type AccountRequest struct {
	AccountID string `path:"accountID"`
}

func (s *AccountUsageService) Handle() http.Handler {
	r := chi.NewRouter()

	r.Get("/", handler.Wrap(s.evaluate,
		handler.WithBinders[handler.Context, AccountRequest](binder.Path()),
		handler.WithErrorHandler[handler.Context, AccountRequest](s.errorHandler),
	))
	r.Post("/", handler.Wrap(s.consume,
		handler.WithBinders[handler.Context, AccountRequest](binder.Path()),
		handler.WithErrorHandler[handler.Context, AccountRequest](s.errorHandler),
	))
	return r
}

func (s *AccountUsageService) evaluate(ctx handler.Context, req AccountRequest) handler.Response {
	snap, err := s.gate.Evaluate(ctx, req.AccountID)
	if err != nil {
		return handler.Error(httpError(err))
	}
	return handler.JSON(snap)
}

// consume counts one monetized action. When the plan limit is reached the
// action is refused with 402 and the snapshot as data.
func (s *AccountUsageService) consume(ctx handler.Context, req AccountRequest) handler.Response {
	snap, err := s.gate.Consume(ctx, req.AccountID)
	if err != nil {
		return handler.Error(httpError(err))
	}
	if !snap.Consumed {
		return handler.JSON(snap, handler.WithJSONStatus(ErrPlanLimit.Code))
	}
	return handler.JSON(snap)
}

// FingerprintKey keys anonymous throttling by the resolved client identity.
// Requests without signals get no key and reach the gate, which rejects them.
func FingerprintKey(r *http.Request) string {
	id, err := fingerprint.FromRequest(r)
	if err != nil {
		return ""
	}
	return "anon:" + id
}
