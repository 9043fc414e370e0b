package session

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"examguard/internal/proctor"
	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

func TestManager_CreateRoom(t *testing.T) {
	h := newHarness(t)
	room := h.createRoom(t, 45)

	if room.ID == "" || !room.IsActive {
		t.Errorf("room not initialised: %+v", room)
	}
	if !types.IsValidRoomCode(room.UniqueCode) {
		t.Errorf("bad room code %q", room.UniqueCode)
	}
	if room.LinkOpenDurationHours != types.DefaultLinkOpenDurationHours {
		t.Errorf("link open duration = %d, want default", room.LinkOpenDurationHours)
	}

	if _, err := h.manager.CreateRoom(context.Background(), &types.ExamRoom{Name: "x", CreatedBy: "i"}); !errors.Is(err, types.ErrInvalidFormLink) {
		t.Errorf("expected ErrInvalidFormLink, got %v", err)
	}
}

func TestManager_ConcurrentRoomCodesUnique(t *testing.T) {
	h := newHarness(t)
	const n = 25

	var wg sync.WaitGroup
	codes := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room, err := h.manager.CreateRoom(context.Background(), &types.ExamRoom{
				Name: "Room", FormLink: "https://f", ExamDurationMinutes: 10, CreatedBy: "instructor_1",
			})
			if err != nil {
				errs <- err
				return
			}
			codes <- room.UniqueCode
		}()
	}
	wg.Wait()
	close(codes)
	close(errs)

	for err := range errs {
		t.Errorf("CreateRoom: %v", err)
	}
	seen := make(map[string]bool)
	for code := range codes {
		if seen[code] {
			t.Errorf("duplicate room code %s", code)
		}
		seen[code] = true
	}
	if len(seen) != n {
		t.Errorf("distinct codes = %d, want %d", len(seen), n)
	}
}

func TestManager_CreateRoomRedrawsOnConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Two generators with the same seed draw the same first code
	h.manager.codes = NewCodeGenerator(rand.NewSource(42))
	first := h.createRoom(t, 10)

	h.manager.codes = NewCodeGenerator(rand.NewSource(42))
	second, err := h.manager.CreateRoom(ctx, &types.ExamRoom{
		Name: "Again", FormLink: "https://f", ExamDurationMinutes: 10, CreatedBy: "instructor_1",
	})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if first.UniqueCode == second.UniqueCode {
		t.Error("colliding code was not redrawn")
	}
}

func TestManager_JoinConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t, 30)

	alice, joinedRoom, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode)
	if err != nil {
		t.Fatalf("Join Alice: %v", err)
	}
	if joinedRoom.ID != room.ID {
		t.Error("join returned the wrong room")
	}
	if alice.Status != types.StatusActive {
		t.Errorf("session status = %s, want active", alice.Status)
	}

	if _, _, err := h.manager.Join(ctx, "Bob", "21", room.UniqueCode); !errors.Is(err, types.ErrDuplicateRollNumber) {
		t.Errorf("Join Bob: expected ErrDuplicateRollNumber, got %v", err)
	}

	again, _, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode)
	if err != nil {
		t.Fatalf("rejoin Alice: %v", err)
	}
	if again.ID != alice.ID {
		t.Errorf("rejoin created a new session: %s != %s", again.ID, alice.ID)
	}

	sessions, err := h.manager.ListSessions(ctx, room.ID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("sessions in room = %d, want 1", len(sessions))
	}
}

func TestManager_JoinInvalidRoomCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, _, err := h.manager.Join(ctx, "Alice", "21", "ZZZZZ"); !errors.Is(err, types.ErrInvalidRoomCode) {
		t.Errorf("unknown code: expected ErrInvalidRoomCode, got %v", err)
	}

	room := h.createRoom(t, 30)
	if err := h.manager.DeactivateRoom(ctx, room.ID); err != nil {
		t.Fatalf("DeactivateRoom: %v", err)
	}
	if _, _, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode); !errors.Is(err, types.ErrInvalidRoomCode) {
		t.Errorf("inactive room: expected ErrInvalidRoomCode, got %v", err)
	}

	if _, _, err := h.manager.Join(ctx, "Alice", "no spaces allowed", room.UniqueCode); !errors.Is(err, types.ErrInvalidRollNumber) {
		t.Errorf("expected ErrInvalidRollNumber, got %v", err)
	}
}

func TestManager_JoinArmsMonitoringInOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t, 30)

	if _, _, err := h.manager.Join(ctx, "Alice", "21", strings.ToLower(room.UniqueCode)); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := h.manager.End(ctx, room.UniqueCode, "21", nil); err != nil {
		t.Fatalf("End: %v", err)
	}

	want := []string{
		"arm:camera", "arm:detector", "arm:guard",
		"dispose:guard", "dispose:detector", "dispose:camera",
	}
	got := h.monitor.trace.list()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("lifecycle = %v, want %v", got, want)
	}
}

func TestManager_CountdownAutoEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t, 1)

	session, _, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	machine, ok := h.manager.Machine(room.UniqueCode, "21")
	if !ok {
		t.Fatal("no live machine after join")
	}
	if machine.Remaining() != 60 {
		t.Errorf("initial remaining = %d, want 60", machine.Remaining())
	}

	h.clock.Advance(59)
	if machine.State() != types.StatusActive {
		t.Fatalf("ended early at 59s: %s", machine.State())
	}

	h.clock.Advance(1)
	waitDone(t, machine)

	// Further ticks must not end the session again
	h.clock.Advance(5)

	if machine.State() != types.StatusEnded {
		t.Errorf("state = %s, want ended", machine.State())
	}
	if got := h.notifier.count(types.MessageSessionEnded); got != 1 {
		t.Errorf("session_ended notifications = %d, want 1", got)
	}

	stored, err := h.db.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.EndTime == nil {
		t.Error("endTime not set after auto-end")
	}
	if _, ok := h.manager.Machine(room.UniqueCode, "21"); ok {
		t.Error("ended machine still registered")
	}
	if _, err := h.manager.End(ctx, room.UniqueCode, "21", nil); !errors.Is(err, types.ErrAlreadySealed) {
		t.Errorf("End after auto-end: expected ErrAlreadySealed, got %v", err)
	}
}

func TestManager_EndIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t, 30)

	session, _, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	det := h.monitor.detector(session.ID)
	det.fire(violation(types.KindNoFace))
	det.fire(violation(types.KindMultipleFaces))

	ended, err := h.manager.End(ctx, room.UniqueCode, "21", nil)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.EndTime == nil || ended.Status != types.StatusEnded {
		t.Errorf("ended session = %+v", ended)
	}
	if ended.WarningsCount != 2 || len(ended.Log) != 2 {
		t.Errorf("warnings = %d, log = %d; want 2, 2", ended.WarningsCount, len(ended.Log))
	}

	if _, err := h.manager.End(ctx, room.UniqueCode, "21", nil); !errors.Is(err, types.ErrAlreadySealed) {
		t.Errorf("second End: expected ErrAlreadySealed, got %v", err)
	}
	if got := h.notifier.count(types.MessageViolation); got != 2 {
		t.Errorf("violation notifications = %d, want 2", got)
	}
}

func TestManager_ConcurrentEndSealsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t, 30)

	if _, _, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode); err != nil {
		t.Fatalf("Join: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.manager.End(ctx, room.UniqueCode, "21", nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok, sealed := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, types.ErrAlreadySealed):
			sealed++
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 1 || sealed != 1 {
		t.Errorf("successes = %d, AlreadySealed = %d; want 1 and 1", ok, sealed)
	}
}

func TestManager_NoLateWritesAfterEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t, 30)

	session, _, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	det := h.monitor.detector(session.ID)
	det.fire(violation(types.KindGazeAway))

	if _, err := h.manager.End(ctx, room.UniqueCode, "21", nil); err != nil {
		t.Fatalf("End: %v", err)
	}

	// A callback captured before the end fires afterwards
	det.fire(violation(types.KindNoFace))

	events, err := h.db.GetSessionEvents(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSessionEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("persisted events = %d, want 1", len(events))
	}
}

// slowAdapter blocks face detection until released, ignoring cancellation
type slowAdapter struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowAdapter) DetectFaces(ctx context.Context) (types.FaceResult, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return types.FaceResult{
		FrameWidth: 640, FrameHeight: 480,
		Faces: []types.Face{{Box: types.Box{Width: 10, Height: 10}}, {Box: types.Box{Width: 10, Height: 10}}},
	}, nil
}

func (s *slowAdapter) DetectObjects(ctx context.Context) ([]types.ObjectDetection, error) {
	return nil, nil
}

type nopMedia struct{ released chan struct{} }

func (n *nopMedia) Acquire(ctx context.Context) (func(), error) {
	var once sync.Once
	return func() { once.Do(func() { close(n.released) }) }, nil
}

type nopSignals struct{}

func (nopSignals) Subscribe(key string, handler interfaces.SignalHandler) (func(), error) {
	return func() {}, nil
}

func TestManager_DelayedPerceptionAcrossManualEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	adapter := &slowAdapter{entered: make(chan struct{}), release: make(chan struct{})}
	media := &nopMedia{released: make(chan struct{})}
	h.manager = h.newManager(t, NewMonitoring(MonitoringDeps{
		Perception: func(string) interfaces.PerceptionAdapter { return adapter },
		Media:      func(string) interfaces.MediaHandle { return media },
		Signals:    nopSignals{},
		Notifier:   h.notifier,
		Detector:   proctor.Options{StopTimeout: 20 * time.Millisecond, Sampler: func() float64 { return 1 }},
		Logger:     zaptest.NewLogger(t),
	}))

	room := h.createRoom(t, 30)
	session, _, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	<-adapter.entered
	if _, err := h.manager.End(ctx, room.UniqueCode, "21", nil); err != nil {
		t.Fatalf("End: %v", err)
	}
	select {
	case <-media.released:
	default:
		t.Error("camera not released on end")
	}

	// The in-flight tick now completes with two faces
	close(adapter.release)
	time.Sleep(50 * time.Millisecond)

	stored, err := h.db.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(stored.Log) != 0 || stored.WarningsCount != 0 {
		t.Errorf("sealed log mutated by late result: %+v", stored.Log)
	}
}

func TestManager_EndWithoutLiveMachineUsesClientLog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t, 30)

	if _, _, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := h.manager.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	clientLog := []types.ViolationEvent{violation(types.KindTabSwitch), violation(types.KindCopyPaste)}
	ended, err := h.manager.End(ctx, room.UniqueCode, "21", clientLog)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.WarningsCount != 2 {
		t.Errorf("warnings = %d, want 2", ended.WarningsCount)
	}

	if _, err := h.manager.End(ctx, room.UniqueCode, "404", nil); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("unknown roll: expected ErrSessionNotFound, got %v", err)
	}
	if _, err := h.manager.End(ctx, "NOPE1", "21", nil); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("unknown room: expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_StartInfo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t, 2)

	if _, _, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.clock.Advance(10)

	info, err := h.manager.StartInfo(ctx, room.UniqueCode, "21")
	if err != nil {
		t.Fatalf("StartInfo: %v", err)
	}
	if info.FormLink != room.FormLink || info.ExamDurationMinutes != 2 {
		t.Errorf("info = %+v", info)
	}
	if info.RemainingSeconds != 110 {
		t.Errorf("remaining = %d, want 110", info.RemainingSeconds)
	}

	if _, err := h.manager.StartInfo(ctx, room.UniqueCode, "99"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := h.manager.StartInfo(ctx, "NOPE1", "21"); !errors.Is(err, types.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestManager_ClosedRoomKeepsLiveCandidate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t, 2)

	if _, _, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.clock.Advance(5)
	if err := h.manager.DeactivateRoom(ctx, room.ID); err != nil {
		t.Fatalf("DeactivateRoom: %v", err)
	}

	info, err := h.manager.StartInfo(ctx, room.UniqueCode, "21")
	if err != nil {
		t.Fatalf("StartInfo after close: %v", err)
	}
	if info.RemainingSeconds != 115 || info.FormLink != room.FormLink {
		t.Errorf("info after close = %+v", info)
	}

	if _, err := h.manager.End(ctx, room.UniqueCode, "21", nil); err != nil {
		t.Fatalf("End after close: %v", err)
	}
	if _, err := h.manager.End(ctx, room.UniqueCode, "21", nil); !errors.Is(err, types.ErrAlreadySealed) {
		t.Errorf("second End after close: expected ErrAlreadySealed, got %v", err)
	}

	info, err = h.manager.StartInfo(ctx, room.UniqueCode, "21")
	if err != nil {
		t.Fatalf("StartInfo after seal: %v", err)
	}
	if info.Session.EndTime == nil || info.RemainingSeconds != 0 {
		t.Errorf("sealed info = %+v", info)
	}
}

func TestManager_ClosedRoomSealsSuspendedSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t, 30)

	session, _, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := h.manager.DeactivateRoom(ctx, room.ID); err != nil {
		t.Fatalf("DeactivateRoom: %v", err)
	}

	// Suspended machines leave an unsealed session with no live machine
	if err := h.manager.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, ok := h.manager.Machine(room.UniqueCode, "21"); ok {
		t.Fatal("machine still live after shutdown")
	}

	ended, err := h.manager.End(ctx, room.UniqueCode, "21", nil)
	if err != nil {
		t.Fatalf("End of suspended session in closed room: %v", err)
	}
	if ended.ID != session.ID || ended.EndTime == nil {
		t.Errorf("ended = %+v", ended)
	}
	if _, err := h.manager.End(ctx, room.UniqueCode, "21", nil); !errors.Is(err, types.ErrAlreadySealed) {
		t.Errorf("second End: expected ErrAlreadySealed, got %v", err)
	}
}

func TestManager_LoadActiveSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	short := h.createRoom(t, 1)
	long := h.createRoom(t, 10)

	expiring, _, err := h.manager.Join(ctx, "Alice", "21", short.UniqueCode)
	if err != nil {
		t.Fatalf("Join short: %v", err)
	}
	resuming, _, err := h.manager.Join(ctx, "Bob", "22", long.UniqueCode)
	if err != nil {
		t.Fatalf("Join long: %v", err)
	}
	h.monitor.detector(resuming.ID).fire(violation(types.KindTabSwitch))

	if err := h.manager.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// Restart two minutes later
	h.clock.Set(h.clock.Now().Add(2 * time.Minute))
	restarted := h.newManager(t, h.monitor.build)
	t.Cleanup(func() { _ = restarted.Shutdown(context.Background()) })

	if err := restarted.LoadActiveSessions(ctx); err != nil {
		t.Fatalf("LoadActiveSessions: %v", err)
	}

	stored, err := h.db.GetSession(ctx, expiring.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.EndTime == nil {
		t.Error("expired session was not sealed on restore")
	}

	machine, ok := restarted.Machine(long.UniqueCode, "22")
	if !ok {
		t.Fatal("unexpired session not restored")
	}
	if got := machine.Remaining(); got != 8*60 {
		t.Errorf("restored remaining = %d, want %d", got, 8*60)
	}

	// The restored session keeps its earlier log and keeps recording
	h.monitor.detector(resuming.ID).fire(violation(types.KindCopyPaste))
	ended, err := restarted.End(ctx, long.UniqueCode, "22", nil)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.WarningsCount != 2 {
		t.Errorf("warnings after restore = %d, want 2", ended.WarningsCount)
	}
}

func TestManager_DeleteRoomStopsSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t, 30)

	session, _, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	machine, _ := h.manager.Machine(room.UniqueCode, "21")

	if err := h.manager.DeleteRoom(ctx, room.ID); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	waitDone(t, machine)

	if _, err := h.db.GetSession(ctx, session.ID); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("session survived room deletion: %v", err)
	}
	if err := h.manager.DeleteRoom(ctx, room.ID); !errors.Is(err, types.ErrRoomNotFound) {
		t.Errorf("second delete: expected ErrRoomNotFound, got %v", err)
	}
	if h.notifier.count(types.MessageSessionEnded) != 1 {
		t.Error("candidate not told the session ended")
	}
	if h.notifier.count(types.MessageRoomDeleted) != 1 {
		t.Error("room deletion not announced")
	}
}

func TestManager_LogsByCandidate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t, 30)

	session, _, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.monitor.detector(session.ID).fire(violation(types.KindGazeAway))

	live, err := h.manager.LiveEvents(session.ID)
	if err != nil || len(live) != 1 {
		t.Errorf("LiveEvents = %v, %v", live, err)
	}

	log, err := h.manager.LogsByCandidate(ctx, "Alice")
	if err != nil {
		t.Fatalf("LogsByCandidate: %v", err)
	}
	if len(log) != 1 || log[0].Kind != types.KindGazeAway {
		t.Errorf("log = %+v", log)
	}

	if _, err := h.manager.LogsByCandidate(ctx, "Nobody"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_ValidateSockets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t, 30)

	if _, _, err := h.manager.Join(ctx, "Alice", "21", room.UniqueCode); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if err := h.manager.ValidateCandidate(ctx, strings.ToLower(room.UniqueCode), "21"); err != nil {
		t.Errorf("live candidate rejected: %v", err)
	}
	if err := h.manager.ValidateCandidate(ctx, room.UniqueCode, "99"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("unknown roll: expected ErrSessionNotFound, got %v", err)
	}
	if err := h.manager.ValidateCandidate(ctx, "ZZZZZ", "21"); !errors.Is(err, types.ErrInvalidRoomCode) {
		t.Errorf("unknown room: expected ErrInvalidRoomCode, got %v", err)
	}

	// A closed room stays watchable while its sessions run
	if err := h.manager.DeactivateRoom(ctx, room.ID); err != nil {
		t.Fatalf("DeactivateRoom: %v", err)
	}
	if err := h.manager.ValidateRoom(ctx, room.UniqueCode); err != nil {
		t.Errorf("proctor rejected for closed room with live session: %v", err)
	}
	if err := h.manager.ValidateCandidate(ctx, room.UniqueCode, "21"); err != nil {
		t.Errorf("live candidate rejected after room closed: %v", err)
	}

	if _, err := h.manager.End(ctx, room.UniqueCode, "21", nil); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := h.manager.ValidateRoom(ctx, room.UniqueCode); !errors.Is(err, types.ErrInvalidRoomCode) {
		t.Errorf("closed idle room: expected ErrInvalidRoomCode, got %v", err)
	}

	open := h.createRoom(t, 30)
	if _, _, err := h.manager.Join(ctx, "Bob", "7", open.UniqueCode); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := h.manager.End(ctx, open.UniqueCode, "7", nil); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := h.manager.ValidateCandidate(ctx, open.UniqueCode, "7"); !errors.Is(err, types.ErrAlreadySealed) {
		t.Errorf("sealed session: expected ErrAlreadySealed, got %v", err)
	}
}
