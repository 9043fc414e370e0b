package guard

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// Verdict is the guard's decision for one signal
type Verdict struct {
	// Prevent asks the browser to cancel the default action
	Prevent bool
	// Event is nil when the signal is suppressed silently or ignored
	Event *types.ViolationEvent
}

// Guard classifies environment tamper signals for one session.
// Detection and prevention are decided together.
type Guard struct {
	emit   func(types.ViolationEvent)
	now    func() time.Time
	logger *zap.Logger

	mu          sync.Mutex
	armed       bool
	used        bool
	hidden      bool
	unsubscribe func()
}

// New creates a guard that reports events through emit
func New(emit func(types.ViolationEvent), logger *zap.Logger) *Guard {
	return &Guard{
		emit:   emit,
		now:    time.Now,
		logger: logger.Named("guard"),
	}
}

// Arm subscribes to the candidate's signals. The returned disposer is Disarm.
func (g *Guard) Arm(source interfaces.SignalSource, key string) (interfaces.Disposer, error) {
	if source == nil {
		return nil, ErrNilSource
	}

	g.mu.Lock()
	if g.used {
		g.mu.Unlock()
		return nil, ErrGuardReused
	}
	g.used = true
	g.armed = true
	g.mu.Unlock()

	unsubscribe, err := source.Subscribe(key, g.onSignal)
	if err != nil {
		g.mu.Lock()
		g.armed = false
		g.mu.Unlock()
		return nil, err
	}

	g.mu.Lock()
	g.unsubscribe = unsubscribe
	g.mu.Unlock()

	g.logger.Debug("guard armed", zap.String("candidate", key))
	return g.Disarm, nil
}

// Disarm removes the subscription. Safe to call repeatedly or without Arm.
func (g *Guard) Disarm() {
	g.mu.Lock()
	g.armed = false
	g.used = true
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Armed reports whether signals are currently being classified
func (g *Guard) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

func (g *Guard) onSignal(sig types.Signal) bool {
	v := g.Handle(sig)
	if v.Event != nil {
		g.emit(*v.Event)
	}
	return v.Prevent
}

// Handle classifies one signal. A disarmed guard lets everything through.
func (g *Guard) Handle(sig types.Signal) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.armed {
		return Verdict{}
	}

	switch sig.Type {
	case types.SignalContextMenu:
		return g.verdict(types.KindRightClick, types.SeverityMedium, "Right-click is disabled during the exam")

	case types.SignalKeyDown:
		return g.classifyKey(sig)

	case types.SignalSelectStart:
		return Verdict{Prevent: true}

	case types.SignalVisibility:
		// FUNCTIONAL DISCOVERY: browsers repeat visibilitychange on some
		// platforms, so only a visible->hidden transition counts
		if sig.Visibility == "hidden" {
			if g.hidden {
				return Verdict{}
			}
			g.hidden = true
			v := g.verdict(types.KindTabSwitch, types.SeverityHigh, "Switched tab or window")
			v.Prevent = false
			return v
		}
		g.hidden = false
		return Verdict{}
	}

	return Verdict{}
}

func (g *Guard) classifyKey(sig types.Signal) Verdict {
	key := strings.ToLower(sig.Key)
	modifier := sig.Ctrl || sig.Meta

	if key == "f12" || (modifier && sig.Shift && (key == "i" || key == "j")) {
		return g.verdict(types.KindDevtools, types.SeverityHigh, "Developer tools shortcut blocked")
	}

	if modifier && !sig.Shift {
		switch key {
		case "c", "v", "x", "a":
			return g.verdict(types.KindCopyPaste, types.SeverityMedium, "Copy, paste and select-all are disabled")
		}
	}

	return Verdict{}
}

func (g *Guard) verdict(kind types.ViolationKind, severity types.Severity, message string) Verdict {
	return Verdict{
		Prevent: true,
		Event: &types.ViolationEvent{
			Timestamp: g.now(),
			Kind:      kind,
			Severity:  severity,
			Message:   message,
		},
	}
}
