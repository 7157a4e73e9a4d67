package entitlement

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gnosis118/paper-n-print-sub004/handler"
	"github.com/gnosis118/paper-n-print-sub004/pkg/notifications"
	"github.com/gnosis118/paper-n-print-sub004/pkg/plans"
	"github.com/gnosis118/paper-n-print-sub004/pkg/trial"
	"github.com/gnosis118/paper-n-print-sub004/pkg/usage"
)

var (
	ErrMissingFingerprint = handler.NewHTTPError(http.StatusBadRequest, "missing_fingerprint")
	ErrAnonymousLimit     = handler.NewHTTPError(http.StatusForbidden, "anonymous_limit_reached")
	ErrPlanLimit          = handler.NewHTTPError(http.StatusPaymentRequired, "plan_limit_reached")
)

// httpError maps domain errors to HTTP errors. Unmapped errors pass through
// and render as 500.
func httpError(err error) error {
	switch {
	case errors.Is(err, usage.ErrMissingIdentity):
		return fmt.Errorf("%w: %v", ErrMissingFingerprint, err)
	case errors.Is(err, usage.ErrMissingAccountID), errors.Is(err, trial.ErrMissingAccountID),
		errors.Is(err, notifications.ErrMissingAccountID):
		return fmt.Errorf("%w: %v", handler.ErrBadRequest, err)
	case errors.Is(err, trial.ErrSubscriptionNotFound), errors.Is(err, notifications.ErrNotificationNotFound):
		return fmt.Errorf("%w: %v", handler.ErrNotFound, err)
	case errors.Is(err, trial.ErrSubscriptionAlreadyExists), errors.Is(err, trial.ErrInvalidTransition):
		return fmt.Errorf("%w: %v", handler.ErrConflict, err)
	case errors.Is(err, plans.ErrUnknownPlan):
		verr := handler.NewValidationError()
		verr.Add("plan", err.Error())
		return verr
	}
	return err
}
