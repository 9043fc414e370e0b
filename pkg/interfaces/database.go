package interfaces

import (
	"context"
	"time"

	"examguard/pkg/types"
)

// RoomStore persists exam rooms
type RoomStore interface {
	// CreateRoom inserts a room. The partial unique index on active room codes
	// is enforced here; a clash returns ErrRoomCodeConflict.
	CreateRoom(ctx context.Context, room *types.ExamRoom) error
	GetRoom(ctx context.Context, roomID string) (*types.ExamRoom, error)
	// GetRoomByCode only considers active rooms
	GetRoomByCode(ctx context.Context, code string) (*types.ExamRoom, error)
	// ListRoomsByCode includes closed rooms, active first
	ListRoomsByCode(ctx context.Context, code string) ([]*types.ExamRoom, error)
	ListRooms(ctx context.Context) ([]*types.ExamRoom, error)
	// CodeInUse is true while an active room holds code or a closed room
	// holding it has unsealed sessions
	CodeInUse(ctx context.Context, code string) (bool, error)
	// DeactivateRoom stops new joins and frees the room code for reuse
	DeactivateRoom(ctx context.Context, roomID string) error
	// DeleteRoom cascades to the room's sessions and their events
	DeleteRoom(ctx context.Context, roomID string) error
}

// SessionStore persists exam sessions
type SessionStore interface {
	// CreateSession returns types.ErrDuplicateRollNumber when the
	// (room, roll number) pair already exists
	CreateSession(ctx context.Context, session *types.ExamSession) error
	GetSession(ctx context.Context, sessionID string) (*types.ExamSession, error)
	GetSessionByRoll(ctx context.Context, roomID, rollNumber string) (*types.ExamSession, error)
	// FindSessionByCandidate returns the earliest session for a candidate name
	FindSessionByCandidate(ctx context.Context, candidateName string) (*types.ExamSession, error)
	// ListUnsealedSessions returns every session without an end time, used on boot
	ListUnsealedSessions(ctx context.Context) ([]*types.ExamSession, error)
	ListSessions(ctx context.Context, roomID string) ([]*types.ExamSession, error)
}

// EventStore persists violation events and seals sessions
type EventStore interface {
	// AppendEvent stores one event with its per-session sequence number.
	// Appending to a sealed session returns types.ErrAlreadySealed.
	AppendEvent(ctx context.Context, sessionID string, seq int, ev types.ViolationEvent) error
	GetSessionEvents(ctx context.Context, sessionID string) ([]types.ViolationEvent, error)
	// SealSession sets the end time and warning count exactly once;
	// a second call returns types.ErrAlreadySealed
	SealSession(ctx context.Context, sessionID string, endTime time.Time, warningsCount int) error
	// SealSessionWithLog appends tail from sequence firstSeq and seals in a
	// single transaction
	SealSessionWithLog(ctx context.Context, sessionID string, endTime time.Time, firstSeq int, tail []types.ViolationEvent) error
}

// AssessmentStore persists the assessment catalog and submissions
type AssessmentStore interface {
	UpsertAssessment(ctx context.Context, a *types.Assessment) error
	GetAssessment(ctx context.Context, id string) (*types.Assessment, error)
	ListAssessments(ctx context.Context) ([]*types.Assessment, error)
	// CreateSubmission returns types.ErrAlreadySubmitted when the candidate
	// already submitted this assessment
	CreateSubmission(ctx context.Context, sub *types.Submission) error
	GetSubmission(ctx context.Context, assessmentID, candidateID string) (*types.Submission, error)
}

// DatabaseManager handles all database operations
// ARCHITECTURAL DISCOVERY: Single interface for all persistence operations
// enables consistent write serialization and connection management
type DatabaseManager interface {
	RoomStore
	SessionStore
	EventStore
	AssessmentStore

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources
	Close() error
}
