package interfaces

// Connection represents a WebSocket client connection interface
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// keeps the hub and perception broker testable with in-memory fakes
type Connection interface {
	// WriteJSON sends a JSON message to the client (thread-safe)
	// FUNCTIONAL DISCOVERY: All implementations must use a single writer
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error

	// GetParticipantID returns the roll number for candidates or the proctor ID
	GetParticipantID() string

	// GetRole returns "candidate" or "proctor"
	GetRole() string

	// GetRoomCode returns the exam room this connection belongs to
	GetRoomCode() string
}

// Connection roles
const (
	RoleCandidate = "candidate"
	RoleProctor   = "proctor"
)
