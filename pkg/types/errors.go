package types

import "errors"

// Error taxonomy shared by every component.
// Client-input errors are surfaced verbatim; ErrPerceptionUnavailable and
// ErrProtocolViolation never reach the candidate.
var (
	ErrPerceptionUnavailable = errors.New("perception unavailable")
	ErrInvalidRoomCode       = errors.New("invalid room code")
	ErrDuplicateRollNumber   = errors.New("a candidate with this roll number already exists in this exam room")
	ErrSessionNotFound       = errors.New("session not found")
	ErrAlreadySealed         = errors.New("session already sealed")
	ErrAlreadySubmitted      = errors.New("assessment already submitted")
	ErrProtocolViolation     = errors.New("event for a session that is not active")
	ErrRoomNotFound          = errors.New("exam room not found")
	ErrAssessmentNotFound    = errors.New("assessment not found")
)

// Validation errors
var (
	ErrInvalidRoomName      = errors.New("room name must be 1-200 characters")
	ErrInvalidFormLink      = errors.New("form link is required")
	ErrInvalidDuration      = errors.New("exam duration must be between 1 and 1440 minutes")
	ErrInvalidLinkOpen      = errors.New("link open duration must be between 1 and 168 hours")
	ErrInvalidCreatedBy     = errors.New("created_by must be valid user ID")
	ErrInvalidCandidateName = errors.New("candidate name must be 1-100 characters")
	ErrInvalidRollNumber    = errors.New("roll number must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidKind          = errors.New("invalid violation kind")
	ErrInvalidSeverity      = errors.New("invalid severity")
	ErrInvalidQuestionType  = errors.New("invalid question type")
	ErrEmptyAssessment      = errors.New("assessment must have at least one question")
	ErrInvalidCandidateID   = errors.New("candidate ID must be valid user ID")
)
