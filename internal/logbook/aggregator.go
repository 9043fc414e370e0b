package logbook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// Aggregator keeps the in-memory log of every open session, persists each
// event as it is recorded and seals the log exactly once.
// ARCHITECTURAL DISCOVERY: each session log has its own lock, which also
// orders that session's database appends so persisted sequence numbers
// follow detection order. The aggregator lock only guards the map.
type Aggregator struct {
	store    interfaces.EventStore
	notifier interfaces.Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionLog
}

type sessionLog struct {
	roomCode   string
	rollNumber string

	mu     sync.Mutex
	events []types.ViolationEvent
	sealed bool
}

// SealResult is what Seal persisted
type SealResult struct {
	EndTime       time.Time
	WarningsCount int
	Log           []types.ViolationEvent
}

// New creates an aggregator. notifier may be nil.
func New(store interfaces.EventStore, notifier interfaces.Notifier, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		store:    store,
		notifier: notifier,
		logger:   logger.Named("logbook"),
		now:      time.Now,
		sessions: make(map[string]*sessionLog),
	}
}

// Open starts tracking a session, seeding it with any events already persisted.
// Re-opening an open session is a no-op.
func (a *Aggregator) Open(session *types.ExamSession) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.sessions[session.ID]; exists {
		return
	}
	prior := make([]types.ViolationEvent, len(session.Log))
	copy(prior, session.Log)
	a.sessions[session.ID] = &sessionLog{
		roomCode:   session.RoomCode,
		rollNumber: session.RollNumber,
		events:     prior,
		sealed:     session.IsSealed(),
	}
}

// Close drops a session from memory without sealing it
func (a *Aggregator) Close(sessionID string) {
	a.mu.Lock()
	delete(a.sessions, sessionID)
	a.mu.Unlock()
}

func (a *Aggregator) entry(sessionID string) (*sessionLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotOpen, sessionID)
	}
	return entry, nil
}

// Record persists the event, appends it to the session log and publishes it
func (a *Aggregator) Record(ctx context.Context, sessionID string, ev types.ViolationEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	entry, err := a.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	if entry.sealed {
		entry.mu.Unlock()
		return types.ErrAlreadySealed
	}
	if err := a.store.AppendEvent(ctx, sessionID, len(entry.events), ev); err != nil {
		if errors.Is(err, types.ErrAlreadySealed) {
			entry.sealed = true
		}
		entry.mu.Unlock()
		return fmt.Errorf("failed to persist event: %w", err)
	}
	entry.events = append(entry.events, ev)
	entry.mu.Unlock()
	roomCode, roll := entry.roomCode, entry.rollNumber

	a.logger.Debug("violation recorded",
		zap.String("session_id", sessionID),
		zap.String("kind", string(ev.Kind)),
		zap.String("severity", string(ev.Severity)))

	a.publish(types.Notification{
		Type:       types.MessageViolation,
		SessionID:  sessionID,
		RoomCode:   roomCode,
		RollNumber: roll,
		Payload:    ev,
	})
	return nil
}

// Live returns the most recent events for display, at most types.MaxLiveEvents
func (a *Aggregator) Live(sessionID string) []types.ViolationEvent {
	entry, err := a.entry(sessionID)
	if err != nil {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	start := 0
	if len(entry.events) > types.MaxLiveEvents {
		start = len(entry.events) - types.MaxLiveEvents
	}
	out := make([]types.ViolationEvent, len(entry.events)-start)
	copy(out, entry.events[start:])
	return out
}

// Log returns the full recorded log
func (a *Aggregator) Log(sessionID string) ([]types.ViolationEvent, error) {
	entry, err := a.entry(sessionID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	out := make([]types.ViolationEvent, len(entry.events))
	copy(out, entry.events)
	return out, nil
}

// Seal finalizes the session. The server-side log is authoritative; clientLog
// is only persisted when nothing was recorded on the server, which happens
// when the candidate never had a monitored socket. A second seal returns
// types.ErrAlreadySealed.
func (a *Aggregator) Seal(ctx context.Context, sessionID string, clientLog []types.ViolationEvent) (*SealResult, error) {
	entry, err := a.entry(sessionID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.sealed {
		return nil, types.ErrAlreadySealed
	}

	// The adopted client log is written in the same transaction as the seal,
	// so a failed seal can be retried with the client log again
	var tail []types.ViolationEvent
	if len(entry.events) == 0 {
		for _, ev := range clientLog {
			if err := ev.Validate(); err != nil {
				a.logger.Debug("dropping invalid client event", zap.String("session_id", sessionID), zap.Error(err))
				continue
			}
			tail = append(tail, ev)
		}
	}

	endTime := a.now().UTC()
	warnings := len(entry.events) + len(tail)
	if err := a.store.SealSessionWithLog(ctx, sessionID, endTime, len(entry.events), tail); err != nil {
		if errors.Is(err, types.ErrAlreadySealed) {
			entry.sealed = true
		}
		return nil, err
	}
	entry.events = append(entry.events, tail...)
	entry.sealed = true

	log := make([]types.ViolationEvent, len(entry.events))
	copy(log, entry.events)

	a.logger.Info("session sealed",
		zap.String("session_id", sessionID),
		zap.Int("warnings_count", warnings))

	return &SealResult{EndTime: endTime, WarningsCount: warnings, Log: log}, nil
}

func (a *Aggregator) publish(n types.Notification) {
	if a.notifier != nil {
		a.notifier.Notify(n)
	}
}
