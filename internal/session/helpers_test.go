package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"examguard/internal/database"
	"examguard/internal/logbook"
	dbconfig "examguard/pkg/database"
	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// fakeClock hands out tickers that only fire when Advance is called
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{}), polled: make(chan struct{}, 1)}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

// Advance moves time forward one second at a time, delivering each tick to
// every running ticker and waiting until the countdown has applied it
func (c *fakeClock) Advance(seconds int) {
	for i := 0; i < seconds; i++ {
		c.mu.Lock()
		c.now = c.now.Add(time.Second)
		now := c.now
		tickers := append([]*fakeTicker(nil), c.tickers...)
		c.mu.Unlock()

		for _, t := range tickers {
			t.send(now)
		}
	}
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// fakeTicker counts calls to C. The countdown loop calls C once per select,
// so a call made after a tick was delivered means that tick is fully applied.
type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	polled  chan struct{}
	once    sync.Once

	mu        sync.Mutex
	calls     int
	delivered int
}

func (t *fakeTicker) C() <-chan time.Time {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	select {
	case t.polled <- struct{}{}:
	default:
	}
	return t.ch
}

func (t *fakeTicker) Stop() { t.once.Do(func() { close(t.stopped) }) }

func (t *fakeTicker) send(now time.Time) {
	select {
	case t.ch <- now:
	case <-t.stopped:
		return
	}

	t.mu.Lock()
	t.delivered++
	want := t.delivered + 1
	t.mu.Unlock()

	for {
		t.mu.Lock()
		done := t.calls >= want
		t.mu.Unlock()
		if done {
			return
		}
		select {
		case <-t.polled:
		case <-t.stopped:
			return
		}
	}
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []types.Notification
}

func (c *captureNotifier) Notify(n types.Notification) {
	c.mu.Lock()
	c.sent = append(c.sent, n)
	c.mu.Unlock()
}

func (c *captureNotifier) count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sent {
		if s.Type == kind {
			n++
		}
	}
	return n
}

// fakeComponent records arm/dispose calls and keeps the emit callback
type fakeComponent struct {
	name  string
	trace *trace

	mu   sync.Mutex
	emit func(types.ViolationEvent)
}

type trace struct {
	mu    sync.Mutex
	calls []string
}

func (tr *trace) add(s string) {
	tr.mu.Lock()
	tr.calls = append(tr.calls, s)
	tr.mu.Unlock()
}

func (tr *trace) list() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.calls...)
}

func (f *fakeComponent) Arm(ctx context.Context, emit func(types.ViolationEvent)) (interfaces.Disposer, error) {
	f.mu.Lock()
	f.emit = emit
	f.mu.Unlock()
	f.trace.add("arm:" + f.name)
	return func() { f.trace.add("dispose:" + f.name) }, nil
}

func (f *fakeComponent) fire(ev types.ViolationEvent) {
	f.mu.Lock()
	emit := f.emit
	f.mu.Unlock()
	emit(ev)
}

// fakeMonitoring builds three recorded components per session
type fakeMonitoring struct {
	mu         sync.Mutex
	trace      *trace
	components map[string][]*fakeComponent
}

func newFakeMonitoring() *fakeMonitoring {
	return &fakeMonitoring{trace: &trace{}, components: make(map[string][]*fakeComponent)}
}

func (f *fakeMonitoring) build(session *types.ExamSession) []Component {
	comps := []*fakeComponent{
		{name: "camera", trace: f.trace},
		{name: "detector", trace: f.trace},
		{name: "guard", trace: f.trace},
	}
	f.mu.Lock()
	f.components[session.ID] = comps
	f.mu.Unlock()
	return []Component{comps[0], comps[1], comps[2]}
}

func (f *fakeMonitoring) detector(sessionID string) *fakeComponent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.components[sessionID][1]
}

type harness struct {
	db       *database.Manager
	agg      *logbook.Aggregator
	clock    *fakeClock
	notifier *captureNotifier
	monitor  *fakeMonitoring
	manager  *Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "session.db")
	db, err := database.NewManager(config, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	h := &harness{db: db, clock: newFakeClock(), notifier: &captureNotifier{}, monitor: newFakeMonitoring()}
	h.agg = logbook.New(db, h.notifier, zaptest.NewLogger(t))
	h.manager = h.newManager(t, h.monitor.build)

	t.Cleanup(func() {
		_ = h.manager.Shutdown(context.Background())
		_ = db.Close()
	})
	return h
}

func (h *harness) newManager(t *testing.T, monitoring Monitoring) *Manager {
	return NewManager(h.db, h.agg, monitoring, h.notifier, Options{Clock: h.clock}, zaptest.NewLogger(t))
}

func (h *harness) createRoom(t *testing.T, minutes int) *types.ExamRoom {
	t.Helper()
	room, err := h.manager.CreateRoom(context.Background(), &types.ExamRoom{
		Name:                "Midterm",
		FormLink:            "https://forms.example.com/midterm",
		ExamDurationMinutes: minutes,
		CreatedBy:           "instructor_1",
	})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	return room
}

func violation(kind types.ViolationKind) types.ViolationEvent {
	return types.ViolationEvent{
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Severity:  types.SeverityHigh,
		Message:   string(kind),
	}
}

func waitDone(t *testing.T, m *Machine) {
	t.Helper()
	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("machine did not end")
	}
}
