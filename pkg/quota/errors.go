package quota

import "errors"

var (
	ErrEmptyKey         = errors.New("quota: empty counter key")
	ErrStoreUnavailable = errors.New("quota: store unavailable")
)
