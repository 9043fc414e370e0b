package router

import "errors"

// Inbound frame errors reported back to the sender
var (
	ErrInvalidMessageType      = errors.New("invalid message type")
	ErrUnauthorizedMessageType = errors.New("role not authorized to send this message type")
	ErrRateLimitExceeded       = errors.New("signal rate limit exceeded")
	ErrMalformedMessage        = errors.New("malformed message")
	ErrUnknownRequest          = errors.New("perception result for an unknown request")
)
