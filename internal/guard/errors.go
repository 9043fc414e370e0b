package guard

import "errors"

var (
	ErrGuardReused = errors.New("guard instances are single-use")
	ErrNilSource   = errors.New("signal source is required")
)
