package session

import "errors"

// Session management error types
var (
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique room code")
	ErrMachineReused      = errors.New("session machine cannot be activated twice")
)
