package entitlement

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gnosis118/paper-n-print-sub004/handler"
	"github.com/gnosis118/paper-n-print-sub004/pkg/binder"
	"github.com/gnosis118/paper-n-print-sub004/pkg/plans"
	"github.com/gnosis118/paper-n-print-sub004/pkg/trial"
)

// TrialManager is the part of trial.Manager the API exposes.
type TrialManager interface {
	StartTrial(ctx context.Context, accountID string, plan plans.Plan) (*trial.Subscription, error)
	Evaluate(ctx context.Context, accountID string) (trial.Status, error)
}

// TrialService serves /v1/accounts/{accountID}/trial.
type TrialService struct {
	manager      TrialManager
	defaultPlan  plans.Plan
	errorHandler handler.ErrorHandler[handler.Context]
}

// NewTrialService creates the service. Trials started without a plan use
// defaultPlan.
func NewTrialService(manager TrialManager, defaultPlan plans.Plan, errorHandler handler.ErrorHandler[handler.Context]) *TrialService {
	return &TrialService{manager: manager, defaultPlan: defaultPlan, errorHandler: errorHandler}
}

type StartTrialRequest struct {
	AccountID string `path:"accountID"`
	Plan      string `json:"plan"`
}

func (s *TrialService) Handle() http.Handler {
	r := chi.NewRouter()

	r.Get("/", handler.Wrap(s.status,
		handler.WithBinders[handler.Context, AccountRequest](binder.Path()),
		handler.WithErrorHandler[handler.Context, AccountRequest](s.errorHandler),
	))
	r.Post("/", handler.Wrap(s.start,
		handler.WithBinders[handler.Context, StartTrialRequest](binder.Path(), binder.JSON()),
		handler.WithErrorHandler[handler.Context, StartTrialRequest](s.errorHandler),
	))
	return r
}

// status evaluates the trial, expiring it when its end date has passed.
func (s *TrialService) status(ctx handler.Context, req AccountRequest) handler.Response {
	st, err := s.manager.Evaluate(ctx, req.AccountID)
	if err != nil {
		return handler.Error(httpError(err))
	}
	return handler.JSON(st)
}

func (s *TrialService) start(ctx handler.Context, req StartTrialRequest) handler.Response {
	plan := s.defaultPlan
	if req.Plan != "" {
		p, err := plans.Parse(req.Plan)
		if err != nil {
			return handler.Error(httpError(err))
		}
		plan = p
	}

	if _, err := s.manager.StartTrial(ctx, req.AccountID, plan); err != nil {
		return handler.Error(httpError(err))
	}
	st, err := s.manager.Evaluate(ctx, req.AccountID)
	if err != nil {
		return handler.Error(httpError(err))
	}
	return handler.JSON(st, handler.WithJSONStatus(http.StatusCreated))
}
