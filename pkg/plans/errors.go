package plans

import "errors"

var (
	ErrUnknownPlan         = errors.New("plans: unknown plan")
	ErrIncompletePlanTable = errors.New("plans: entitlement table is incomplete")
)
