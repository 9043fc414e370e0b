package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/remeh/sizedwaitgroup"
	"go.uber.org/zap"

	"examguard/internal/logbook"
	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// Options tunes the manager
type Options struct {
	Clock               Clock
	Codes               *CodeGenerator
	ShutdownConcurrency int
}

// Manager owns exam rooms and the state machine of every live session
type Manager struct {
	db         interfaces.DatabaseManager
	logbook    *logbook.Aggregator
	monitoring Monitoring
	notifier   interfaces.Notifier
	clock      Clock
	codes      *CodeGenerator
	logger     *zap.Logger
	opts       Options

	mu       sync.RWMutex
	machines map[string]*Machine // sessionID -> Machine
}

// StartInfo is what a candidate needs to begin the exam
type StartInfo struct {
	FormLink            string             `json:"formLink"`
	ExamDurationMinutes int                `json:"examDurationMinutes"`
	RemainingSeconds    int                `json:"remainingSeconds"`
	Session             *types.ExamSession `json:"session"`
}

// NewManager creates a new session manager
func NewManager(db interfaces.DatabaseManager, agg *logbook.Aggregator, monitoring Monitoring, notifier interfaces.Notifier, opts Options, logger *zap.Logger) *Manager {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Codes == nil {
		opts.Codes = NewCodeGenerator(nil)
	}
	if opts.ShutdownConcurrency <= 0 {
		opts.ShutdownConcurrency = 8
	}
	if monitoring == nil {
		monitoring = func(*types.ExamSession) []Component { return nil }
	}
	return &Manager{
		db:         db,
		logbook:    agg,
		monitoring: monitoring,
		notifier:   notifier,
		clock:      opts.Clock,
		codes:      opts.Codes,
		logger:     logger.Named("session"),
		opts:       opts,
		machines:   make(map[string]*Machine),
	}
}

// CreateRoom validates and stores a room under a freshly drawn code
func (m *Manager) CreateRoom(ctx context.Context, room *types.ExamRoom) (*types.ExamRoom, error) {
	if err := room.Validate(); err != nil {
		return nil, err
	}

	room.ID = uuid.New().String()
	room.CreatedAt = m.clock.Now().UTC()
	room.IsActive = true

	for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
		code, err := m.codes.Unique(ctx, m.db.CodeInUse)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate room code: %w", err)
		}
		room.UniqueCode = code

		err = m.db.CreateRoom(ctx, room)
		if err == nil {
			m.logger.Info("exam room created",
				zap.String("room_id", room.ID),
				zap.String("code", room.UniqueCode),
				zap.String("created_by", room.CreatedBy))
			return room, nil
		}
		if !errors.Is(err, interfaces.ErrRoomCodeConflict) {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}
		m.logger.Debug("room code taken concurrently, redrawing", zap.String("code", code))
	}
	return nil, ErrCodeSpaceExhausted
}

// ListRooms returns every room, newest first
func (m *Manager) ListRooms(ctx context.Context) ([]*types.ExamRoom, error) {
	return m.db.ListRooms(ctx)
}

// GetRoomByCode resolves an active room code
func (m *Manager) GetRoomByCode(ctx context.Context, code string) (*types.ExamRoom, error) {
	room, err := m.db.GetRoomByCode(ctx, normalizeCode(code))
	if errors.Is(err, types.ErrRoomNotFound) {
		return nil, types.ErrInvalidRoomCode
	}
	return room, err
}

// DeactivateRoom closes a room to new joins and frees its code.
// Sessions already running continue to their end.
func (m *Manager) DeactivateRoom(ctx context.Context, roomID string) error {
	if err := m.db.DeactivateRoom(ctx, roomID); err != nil {
		return err
	}
	m.logger.Info("exam room closed", zap.String("room_id", roomID))
	return nil
}

// DeleteRoom stops the room's live sessions and deletes the room together
// with its sessions and their logs
func (m *Manager) DeleteRoom(ctx context.Context, roomID string) error {
	room, err := m.db.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	sessions, err := m.db.ListSessions(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to list room sessions: %w", err)
	}

	for _, s := range sessions {
		if machine := m.machine(s.ID); machine != nil && machine.Suspend() {
			machine.publish(types.MessageSessionEnded, types.SessionEndedPayload{Reason: ReasonRoomDeleted})
		}
		m.logbook.Close(s.ID)
	}

	if err := m.db.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	if m.notifier != nil {
		m.notifier.Notify(types.Notification{Type: types.MessageRoomDeleted, RoomCode: room.UniqueCode})
	}
	m.logger.Info("exam room deleted", zap.String("room_id", roomID), zap.Int("sessions", len(sessions)))
	return nil
}

// ListSessions returns the room's sessions with live status where known
func (m *Manager) ListSessions(ctx context.Context, roomID string) ([]*types.ExamSession, error) {
	if _, err := m.db.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	sessions, err := m.db.ListSessions(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for i, s := range sessions {
		if machine := m.machine(s.ID); machine != nil {
			live := machine.Session()
			live.Log = nil
			sessions[i] = live
		}
	}
	return sessions, nil
}

// Join validates the room code and roll number, then creates and activates
// the candidate's session. Re-joining with the same name returns the
// existing session.
func (m *Manager) Join(ctx context.Context, name, rollNumber, roomCode string) (*types.ExamSession, *types.ExamRoom, error) {
	name = strings.TrimSpace(name)
	rollNumber = strings.TrimSpace(rollNumber)
	if err := types.ValidateCandidate(name, rollNumber); err != nil {
		return nil, nil, err
	}

	room, err := m.GetRoomByCode(ctx, roomCode)
	if err != nil {
		return nil, nil, err
	}

	if existing, err := m.existingSession(ctx, room, name, rollNumber); existing != nil || err != nil {
		return existing, room, err
	}

	session := &types.ExamSession{
		ID:            uuid.New().String(),
		RoomID:        room.ID,
		RoomCode:      room.UniqueCode,
		CandidateName: name,
		RollNumber:    rollNumber,
		StartTime:     m.clock.Now().UTC(),
		Status:        types.StatusIdle,
	}

	if err := m.db.CreateSession(ctx, session); err != nil {
		if errors.Is(err, types.ErrDuplicateRollNumber) {
			// Lost a race with a concurrent join for the same roll number
			existing, lookupErr := m.existingSession(ctx, room, name, rollNumber)
			if lookupErr != nil {
				return nil, nil, lookupErr
			}
			if existing != nil {
				return existing, room, nil
			}
		}
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	machine, err := m.start(session, room.ExamDurationMinutes*60)
	if err != nil {
		return nil, nil, err
	}

	m.logger.Info("candidate joined",
		zap.String("session_id", session.ID),
		zap.String("room_code", room.UniqueCode),
		zap.String("roll_number", rollNumber))
	return machine.Session(), room, nil
}

// existingSession returns the candidate's session if the roll number is
// already taken in the room, or ErrDuplicateRollNumber if it belongs to
// someone else
func (m *Manager) existingSession(ctx context.Context, room *types.ExamRoom, name, rollNumber string) (*types.ExamSession, error) {
	existing, err := m.db.GetSessionByRoll(ctx, room.ID, rollNumber)
	if errors.Is(err, types.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up roll number: %w", err)
	}
	if existing.CandidateName != name {
		return nil, types.ErrDuplicateRollNumber
	}
	if machine := m.machine(existing.ID); machine != nil {
		return machine.Session(), nil
	}
	return existing, nil
}

// start builds the state machine for a persisted session and activates it
func (m *Manager) start(session *types.ExamSession, remaining int) (*Machine, error) {
	m.logbook.Open(session)

	machine := newMachine(session, machineDeps{
		recorder:   m.logbook,
		notifier:   m.notifier,
		clock:      m.clock,
		components: m.monitoring(session),
		logger:     m.logger.With(zap.String("session_id", session.ID)),
		onEnded:    m.forget,
	})

	m.mu.Lock()
	m.machines[session.ID] = machine
	m.mu.Unlock()

	if err := machine.Join(); err != nil {
		m.forget(machine)
		return nil, err
	}
	if err := machine.Activate(remaining); err != nil {
		m.forget(machine)
		return nil, err
	}
	return machine, nil
}

// forget drops an ended machine from the live maps
func (m *Manager) forget(machine *Machine) {
	m.mu.Lock()
	if m.machines[machine.sessionID] == machine {
		delete(m.machines, machine.sessionID)
	}
	m.mu.Unlock()
}

func (m *Manager) machine(sessionID string) *Machine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.machines[sessionID]
}

// Machine returns the live machine for a candidate, if any. A code is never
// reissued while a closed room holding it has unsealed sessions, so at most
// one live machine matches.
func (m *Manager) Machine(roomCode, rollNumber string) (*Machine, bool) {
	code := normalizeCode(roomCode)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, machine := range m.machines {
		if machine.roomCode == code && machine.rollNumber == rollNumber {
			return machine, true
		}
	}
	return nil, false
}

// resolve finds a candidate's session under a room code. Closed rooms are
// searched too, after the active one, so a candidate whose room closed
// mid-exam can still start, end and be told their session is sealed.
func (m *Manager) resolve(ctx context.Context, roomCode, rollNumber string) (*types.ExamRoom, *types.ExamSession, error) {
	rooms, err := m.db.ListRoomsByCode(ctx, normalizeCode(roomCode))
	if err != nil {
		return nil, nil, err
	}
	if len(rooms) == 0 {
		return nil, nil, types.ErrRoomNotFound
	}
	for _, room := range rooms {
		session, err := m.db.GetSessionByRoll(ctx, room.ID, rollNumber)
		if errors.Is(err, types.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return room, session, nil
	}
	return nil, nil, types.ErrSessionNotFound
}

// ValidateCandidate admits a candidate socket for a session that is live or
// at least not yet sealed
func (m *Manager) ValidateCandidate(ctx context.Context, roomCode, rollNumber string) error {
	if _, ok := m.Machine(roomCode, rollNumber); ok {
		return nil
	}
	_, session, err := m.resolve(ctx, roomCode, rollNumber)
	if errors.Is(err, types.ErrRoomNotFound) {
		return types.ErrInvalidRoomCode
	}
	if err != nil {
		return err
	}
	if session.IsSealed() {
		return types.ErrAlreadySealed
	}
	return nil
}

// ValidateRoom admits a proctor socket. A closed room can still be watched
// while sessions started before it closed are running.
func (m *Manager) ValidateRoom(ctx context.Context, roomCode string) error {
	_, err := m.GetRoomByCode(ctx, roomCode)
	if !errors.Is(err, types.ErrInvalidRoomCode) {
		return err
	}

	code := normalizeCode(roomCode)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, machine := range m.machines {
		if machine.roomCode == code {
			return nil
		}
	}
	return err
}

// StartInfo returns the form link and remaining time for a joined candidate
func (m *Manager) StartInfo(ctx context.Context, roomCode, rollNumber string) (*StartInfo, error) {
	room, session, err := m.resolve(ctx, roomCode, rollNumber)
	if err != nil {
		return nil, err
	}

	info := &StartInfo{
		FormLink:            room.FormLink,
		ExamDurationMinutes: room.ExamDurationMinutes,
		Session:             session,
	}
	if machine := m.machine(session.ID); machine != nil {
		info.Session = machine.Session()
		info.RemainingSeconds = machine.Remaining()
	} else if !session.IsSealed() {
		info.RemainingSeconds = remainingSeconds(session.StartTime, room.ExamDurationMinutes, m.clock.Now())
	}
	return info, nil
}

// End is the manual end of a candidate's exam. clientLog is only used when
// the server recorded nothing for the session.
func (m *Manager) End(ctx context.Context, roomCode, rollNumber string, clientLog []types.ViolationEvent) (*types.ExamSession, error) {
	if machine, ok := m.Machine(roomCode, rollNumber); ok {
		if _, err := machine.End(ctx, clientLog); err != nil {
			return nil, err
		}
		return machine.Session(), nil
	}

	_, session, err := m.resolve(ctx, roomCode, rollNumber)
	if errors.Is(err, types.ErrRoomNotFound) {
		return nil, types.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if session.IsSealed() {
		return nil, types.ErrAlreadySealed
	}

	// Unsealed but not live: a failed seal or a session that outlived its machine
	m.logbook.Open(session)
	result, err := m.logbook.Seal(ctx, session.ID, clientLog)
	if err != nil {
		return nil, err
	}
	session.EndTime = &result.EndTime
	session.WarningsCount = result.WarningsCount
	session.Log = result.Log
	session.Status = types.StatusEnded
	return session, nil
}

// LogsByCandidate returns the log of the candidate's first session
func (m *Manager) LogsByCandidate(ctx context.Context, candidateName string) ([]types.ViolationEvent, error) {
	session, err := m.db.FindSessionByCandidate(ctx, strings.TrimSpace(candidateName))
	if err != nil {
		return nil, err
	}
	if session.Log == nil {
		return []types.ViolationEvent{}, nil
	}
	return session.Log, nil
}

// LiveEvents returns the recent events of a live session
func (m *Manager) LiveEvents(sessionID string) ([]types.ViolationEvent, error) {
	if m.machine(sessionID) == nil {
		return nil, types.ErrSessionNotFound
	}
	return m.logbook.Live(sessionID), nil
}

// LoadActiveSessions restores unsealed sessions after a restart. Sessions
// whose time ran out while the server was down are sealed immediately.
func (m *Manager) LoadActiveSessions(ctx context.Context) error {
	sessions, err := m.db.ListUnsealedSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active sessions: %w", err)
	}

	restored, sealed := 0, 0
	for _, s := range sessions {
		room, err := m.db.GetRoom(ctx, s.RoomID)
		if err != nil {
			m.logger.Warn("skipping session without room", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		full, err := m.db.GetSession(ctx, s.ID)
		if err != nil {
			m.logger.Warn("failed to load session log", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}

		remaining := remainingSeconds(full.StartTime, room.ExamDurationMinutes, m.clock.Now())
		if remaining <= 0 {
			m.logbook.Open(full)
			if _, err := m.logbook.Seal(ctx, full.ID, nil); err != nil {
				m.logger.Error("failed to seal expired session", zap.String("session_id", full.ID), zap.Error(err))
				continue
			}
			sealed++
			continue
		}

		if _, err := m.start(full, remaining); err != nil {
			m.logger.Error("failed to restore session", zap.String("session_id", full.ID), zap.Error(err))
			continue
		}
		restored++
	}

	m.logger.Info("loaded active sessions", zap.Int("restored", restored), zap.Int("sealed_expired", sealed))
	return nil
}

// Shutdown disarms every live session without sealing, so they resume on
// the next boot
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	machines := make([]*Machine, 0, len(m.machines))
	for _, machine := range m.machines {
		machines = append(machines, machine)
	}
	m.mu.RUnlock()

	// TECHNICAL DISCOVERY: each suspend can wait up to the detector stop
	// timeout, so suspends run concurrently with a bound
	swg := sizedwaitgroup.New(m.opts.ShutdownConcurrency)
	for _, machine := range machines {
		swg.Add()
		go func(machine *Machine) {
			defer swg.Done()
			machine.Suspend()
		}(machine)
	}

	finished := make(chan struct{})
	go func() {
		swg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		m.logger.Info("live sessions suspended", zap.Int("count", len(machines)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out suspending sessions: %w", ctx.Err())
	}
}

// GetStats returns session manager statistics
func (m *Manager) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"live_sessions": len(m.machines),
		"checked_at":    m.clock.Now().UTC().Format(time.RFC3339),
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
