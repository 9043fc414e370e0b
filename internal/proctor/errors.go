package proctor

import "errors"

var (
	// ErrDetectorReused is returned when Start is called on a detector that
	// was already started or stopped. A new session needs a new detector.
	ErrDetectorReused = errors.New("detector instances are single-use")
	ErrNilAdapter     = errors.New("perception adapter is required")
)
