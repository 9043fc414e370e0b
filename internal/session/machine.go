package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"examguard/internal/logbook"
	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// End reasons reported in session_ended notifications
const (
	ReasonManual      = "manual"
	ReasonTimeUp      = "time_up"
	ReasonRoomDeleted = "room_deleted"
)

// Recorder is the log side of a session: the machine records through it
// while active and seals through it exactly once
type Recorder interface {
	Record(ctx context.Context, sessionID string, ev types.ViolationEvent) error
	Seal(ctx context.Context, sessionID string, clientLog []types.ViolationEvent) (*logbook.SealResult, error)
}

type machineDeps struct {
	recorder   Recorder
	notifier   interfaces.Notifier
	clock      Clock
	components []Component
	logger     *zap.Logger
	// onEnded runs once after the machine reaches Ended, sealed or not
	onEnded func(*Machine)
}

// Machine drives one exam session through Idle -> Joined -> Active -> Ended.
// ARCHITECTURAL DISCOVERY: the machine mutex is the only place session status
// changes; detector and guard callbacks pass through the epoch gate in emit
type Machine struct {
	deps machineDeps

	// fixed at construction, readable without mu
	sessionID  string
	roomID     string
	roomCode   string
	rollNumber string

	mu            sync.Mutex
	session       types.ExamSession
	state         types.SessionStatus
	epoch         uint64
	ending        bool
	activated     bool
	cd            countdown
	disposers     []interfaces.Disposer
	cancel        context.CancelFunc
	stopCountdown chan struct{}
	countdownDone chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
	result        *logbook.SealResult
}

func newMachine(session *types.ExamSession, deps machineDeps) *Machine {
	if deps.clock == nil {
		deps.clock = RealClock{}
	}
	s := *session
	return &Machine{
		deps:       deps,
		sessionID:  s.ID,
		roomID:     s.RoomID,
		roomCode:   s.RoomCode,
		rollNumber: s.RollNumber,
		session:    s,
		state:      types.StatusIdle,
		done:       make(chan struct{}),
	}
}

// Join moves Idle -> Joined. Join validation is the manager's job.
func (m *Machine) Join() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != types.StatusIdle {
		return types.ErrProtocolViolation
	}
	m.state = types.StatusJoined
	m.session.Status = types.StatusJoined
	return nil
}

// Activate moves Joined -> Active, arms every component and starts the
// countdown at remaining seconds. A component that fails to arm is logged
// and skipped; the session keeps running with what could be armed.
func (m *Machine) Activate(remaining int) error {
	m.mu.Lock()
	if m.activated {
		m.mu.Unlock()
		return ErrMachineReused
	}
	if m.state != types.StatusJoined {
		m.mu.Unlock()
		return types.ErrProtocolViolation
	}
	m.activated = true
	m.epoch++
	epoch := m.epoch
	m.state = types.StatusActive
	m.session.Status = types.StatusActive
	m.cd = newCountdown(remaining)
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	emit := m.emitter(epoch)
	disposers := make([]interfaces.Disposer, 0, len(m.deps.components))
	for i, c := range m.deps.components {
		dispose, err := c.Arm(ctx, emit)
		if err != nil {
			m.deps.logger.Error("monitoring component failed to arm",
				zap.Int("component", i), zap.Error(err))
			continue
		}
		if dispose != nil {
			disposers = append(disposers, dispose)
		}
	}

	ticker := m.deps.clock.NewTicker(time.Second)
	m.mu.Lock()
	m.disposers = disposers
	m.stopCountdown = make(chan struct{})
	m.countdownDone = make(chan struct{})
	stop, done := m.stopCountdown, m.countdownDone
	m.mu.Unlock()

	go m.runCountdown(ticker, stop, done)

	m.deps.logger.Info("session active",
		zap.Int("remaining_seconds", remaining),
		zap.Int("components", len(disposers)))
	m.publishCountdown(remaining)
	return nil
}

// emitter returns the callback handed to detector and guard for one arming.
// Emissions outside Active, during teardown or from an older epoch are
// protocol violations and are dropped.
func (m *Machine) emitter(epoch uint64) func(types.ViolationEvent) {
	return func(ev types.ViolationEvent) {
		m.mu.Lock()
		defer m.mu.Unlock()

		if m.state != types.StatusActive || m.ending || m.epoch != epoch {
			m.deps.logger.Debug("dropping late event",
				zap.String("kind", string(ev.Kind)),
				zap.Error(types.ErrProtocolViolation))
			return
		}

		if err := m.deps.recorder.Record(context.Background(), m.session.ID, ev); err != nil {
			if errors.Is(err, types.ErrAlreadySealed) {
				m.deps.logger.Debug("dropping event for sealed session", zap.Error(err))
				return
			}
			m.deps.logger.Warn("failed to record event", zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	}
}

// runCountdown owns the ticker. Expiry ends the session from this goroutine
// after the ticker has been stopped.
func (m *Machine) runCountdown(ticker Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
		}

		m.mu.Lock()
		if m.state != types.StatusActive || m.ending {
			m.mu.Unlock()
			return
		}
		m.cd = m.cd.advance(1)
		remaining, expired := m.cd.remaining, m.cd.expired()
		m.mu.Unlock()

		m.publishCountdown(remaining)

		if expired {
			ticker.Stop()
			if _, err := m.end(context.Background(), ReasonTimeUp, nil, true); err != nil && !errors.Is(err, types.ErrAlreadySealed) {
				m.deps.logger.Error("automatic end failed", zap.Error(err))
			}
			return
		}
	}
}

// End is the manual Active -> Ended transition. A session that is already
// ending or ended returns types.ErrAlreadySealed.
func (m *Machine) End(ctx context.Context, clientLog []types.ViolationEvent) (*logbook.SealResult, error) {
	return m.end(ctx, ReasonManual, clientLog, false)
}

// Suspend tears monitoring down without sealing, so the session can be
// restored on the next boot
func (m *Machine) Suspend() bool {
	if !m.halt(false) {
		return false
	}
	m.finish()
	return true
}

func (m *Machine) end(ctx context.Context, reason string, clientLog []types.ViolationEvent, fromTimer bool) (*logbook.SealResult, error) {
	m.mu.Lock()
	if m.state == types.StatusIdle {
		m.mu.Unlock()
		return nil, types.ErrProtocolViolation
	}
	m.mu.Unlock()

	if !m.halt(fromTimer) {
		return nil, types.ErrAlreadySealed
	}
	defer m.finish()

	result, err := m.deps.recorder.Seal(ctx, m.session.ID, clientLog)
	if err != nil {
		m.deps.logger.Error("failed to seal session", zap.String("reason", reason), zap.Error(err))
		return nil, err
	}

	m.mu.Lock()
	endTime := result.EndTime
	m.session.EndTime = &endTime
	m.session.WarningsCount = result.WarningsCount
	m.session.Log = result.Log
	m.result = result
	m.mu.Unlock()

	m.deps.logger.Info("session ended",
		zap.String("reason", reason),
		zap.Int("warnings_count", result.WarningsCount))

	m.publish(types.MessageSessionEnded, types.SessionEndedPayload{
		Reason:        reason,
		EndTime:       &endTime,
		WarningsCount: result.WarningsCount,
	})
	return result, nil
}

// halt runs the teardown sequence once: mark ending, stop the countdown,
// dispose components in reverse, then enter Ended with a new epoch.
// Disposers run without the machine lock because a detector tick may be
// waiting on it inside emit.
func (m *Machine) halt(fromTimer bool) bool {
	m.mu.Lock()
	if m.state == types.StatusEnded || m.ending {
		m.mu.Unlock()
		return false
	}
	m.ending = true
	disposers := m.disposers
	m.disposers = nil
	stop, countdownDone := m.stopCountdown, m.countdownDone
	cancel := m.cancel
	m.mu.Unlock()

	if stop != nil {
		m.stopOnce.Do(func() { close(stop) })
		if !fromTimer {
			<-countdownDone
		}
	}

	for i := len(disposers) - 1; i >= 0; i-- {
		disposers[i]()
	}
	if cancel != nil {
		cancel()
	}

	m.mu.Lock()
	m.state = types.StatusEnded
	m.session.Status = types.StatusEnded
	m.epoch++
	m.mu.Unlock()
	return true
}

func (m *Machine) finish() {
	if m.deps.onEnded != nil {
		m.deps.onEnded(m)
	}
	close(m.done)
}

// Done is closed once the machine has ended
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// State returns the current lifecycle state
func (m *Machine) State() types.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Remaining returns the seconds left on the countdown
func (m *Machine) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != types.StatusActive {
		return 0
	}
	return m.cd.remaining
}

// Session returns a snapshot of the session the machine owns
func (m *Machine) Session() *types.ExamSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session
	s.Log = append([]types.ViolationEvent(nil), m.session.Log...)
	return &s
}

// Result is the seal outcome, nil until the session has been sealed
func (m *Machine) Result() *logbook.SealResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

func (m *Machine) publishCountdown(remaining int) {
	m.publish(types.MessageCountdown, types.CountdownPayload{RemainingSeconds: remaining})
}

func (m *Machine) publish(kind string, payload interface{}) {
	if m.deps.notifier == nil {
		return
	}
	m.deps.notifier.Notify(types.Notification{
		Type:       kind,
		SessionID:  m.session.ID,
		RoomCode:   m.session.RoomCode,
		RollNumber: m.session.RollNumber,
		Payload:    payload,
	})
}
