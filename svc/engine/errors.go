package engine

import "errors"

var (
	ErrInvalidConfig  = errors.New("invalid engine configuration")
	ErrUnknownDriver  = errors.New("unknown driver")
	ErrBackendConnect = errors.New("failed to connect storage backend")
	ErrNoPostgres     = errors.New("postgres is not configured")
)
