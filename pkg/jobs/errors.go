package jobs

import "errors"

var (
	ErrInvalidSchedule      = errors.New("invalid schedule")
	ErrJobAlreadyRegistered = errors.New("job already registered")
	ErrRunnerNotConfigured  = errors.New("runner has no jobs")
	ErrInvalidJobDefinition = errors.New("job needs a name, schedule and function")
)
