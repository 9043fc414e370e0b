package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection              = errors.New("connection cannot be nil")
	ErrConnectionNotAuthenticated = errors.New("connection must be authenticated before registration")
	ErrUnknownRole                = errors.New("unknown connection role")
)

// Perception errors
var (
	ErrCandidateNotConnected = errors.New("candidate socket not connected")
	ErrPerceptionTimeout     = errors.New("perception request timed out")
	ErrMalformedResult       = errors.New("perception result missing requested data")
)

// Signal bus errors
var (
	ErrNilHandler = errors.New("signal handler cannot be nil")
	ErrEmptyKey   = errors.New("candidate key cannot be empty")
)
