package websocket

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// Registry manages WebSocket connections with thread-safe operations
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic
// maintains clean separation between connection tracking and connection operations
type Registry struct {
	mu         sync.RWMutex                      // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy lookup patterns
	candidates map[string]*Connection            // candidate key -> Connection
	proctors   map[string]map[string]*Connection // roomCode -> proctorID -> Connection
	logger     *zap.Logger
}

// NewRegistry creates a new connection registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		candidates: make(map[string]*Connection),
		proctors:   make(map[string]map[string]*Connection),
		logger:     logger.Named("registry"),
	}
}

// RegisterConnection adds a connection and closes the one it replaces.
// FUNCTIONAL DISCOVERY: a candidate reloading the exam page reconnects with the
// same roll number, so the newest socket always wins
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	id := conn.GetParticipantID()
	roomCode := conn.GetRoomCode()

	r.mu.Lock()
	defer r.mu.Unlock()

	var replaced *Connection
	switch conn.GetRole() {
	case interfaces.RoleCandidate:
		key := types.CandidateKey(roomCode, id)
		replaced = r.candidates[key]
		r.candidates[key] = conn
	case interfaces.RoleProctor:
		if r.proctors[roomCode] == nil {
			r.proctors[roomCode] = make(map[string]*Connection)
		}
		replaced = r.proctors[roomCode][id]
		r.proctors[roomCode][id] = conn
	default:
		return ErrUnknownRole
	}

	// Close asynchronously to avoid holding the lock across socket I/O
	if replaced != nil && replaced != conn {
		go func() {
			if err := replaced.Close(); err != nil {
				r.logger.Debug("failed to close replaced connection", zap.Error(err))
			}
		}()
	}

	return nil
}

// UnregisterConnection removes a specific connection.
// RACE CONDITION FIX: Only removes the connection if it matches the one currently registered
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	id := conn.GetParticipantID()
	roomCode := conn.GetRoomCode()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch conn.GetRole() {
	case interfaces.RoleCandidate:
		key := types.CandidateKey(roomCode, id)
		if r.candidates[key] == conn {
			delete(r.candidates, key)
		}
	case interfaces.RoleProctor:
		room, exists := r.proctors[roomCode]
		if !exists || room[id] != conn {
			return
		}
		delete(room, id)
		if len(room) == 0 {
			delete(r.proctors, roomCode)
		}
	}
}

// GetCandidate returns the live socket for a candidate key
func (r *Registry) GetCandidate(key string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.candidates[key]
	return conn, exists
}

// GetRoomProctors returns every proctor watching a room
func (r *Registry) GetRoomProctors(roomCode string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []*Connection
	for _, conn := range r.proctors[roomCode] {
		connections = append(connections, conn)
	}
	return connections
}

// CloseRoom closes every socket bound to a room once its queued frames are written
func (r *Registry) CloseRoom(roomCode string) {
	r.mu.RLock()
	var connections []*Connection
	for _, conn := range r.candidates {
		if conn.GetRoomCode() == roomCode {
			connections = append(connections, conn)
		}
	}
	for _, conn := range r.proctors[roomCode] {
		connections = append(connections, conn)
	}
	r.mu.RUnlock()

	// Pending session_ended frames go out before the socket closes
	for _, conn := range connections {
		go func(conn *Connection) {
			conn.Flush(time.Second)
			_ = conn.Close()
		}(conn)
	}
}

// CloseAll closes every registered socket during shutdown
func (r *Registry) CloseAll() {
	r.mu.RLock()
	connections := make([]*Connection, 0, len(r.candidates))
	for _, conn := range r.candidates {
		connections = append(connections, conn)
	}
	for _, room := range r.proctors {
		for _, conn := range room {
			connections = append(connections, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range connections {
		_ = conn.Close()
	}
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	proctors := 0
	for _, room := range r.proctors {
		proctors += len(room)
	}

	return map[string]int{
		"candidate_connections": len(r.candidates),
		"proctor_connections":   proctors,
		"watched_rooms":         len(r.proctors),
	}
}
