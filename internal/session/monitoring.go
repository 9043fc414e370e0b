package session

import (
	"context"

	"go.uber.org/zap"

	"examguard/internal/guard"
	"examguard/internal/proctor"
	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// Component is one piece of monitoring armed when a session becomes active
type Component interface {
	Arm(ctx context.Context, emit func(types.ViolationEvent)) (interfaces.Disposer, error)
}

// ComponentFunc adapts a function to Component
type ComponentFunc func(ctx context.Context, emit func(types.ViolationEvent)) (interfaces.Disposer, error)

func (f ComponentFunc) Arm(ctx context.Context, emit func(types.ViolationEvent)) (interfaces.Disposer, error) {
	return f(ctx, emit)
}

// Monitoring builds fresh components for one session. Components are never
// shared between sessions.
type Monitoring func(session *types.ExamSession) []Component

// MonitoringDeps are the collaborators the default monitoring is built from
type MonitoringDeps struct {
	Perception func(candidateKey string) interfaces.PerceptionAdapter
	Media      func(candidateKey string) interfaces.MediaHandle
	Signals    interfaces.SignalSource
	Notifier   interfaces.Notifier
	Detector   proctor.Options
	Logger     *zap.Logger
}

// NewMonitoring arms, in order, the camera, a violation detector and an
// integrity guard. The machine disposes them in reverse.
func NewMonitoring(deps MonitoringDeps) Monitoring {
	return func(session *types.ExamSession) []Component {
		key := types.CandidateKey(session.RoomCode, session.RollNumber)
		logger := deps.Logger.With(zap.String("session_id", session.ID), zap.String("candidate", key))

		camera := ComponentFunc(func(ctx context.Context, _ func(types.ViolationEvent)) (interfaces.Disposer, error) {
			release, err := deps.Media(key).Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return interfaces.Disposer(release), nil
		})

		detector := ComponentFunc(func(ctx context.Context, emit func(types.ViolationEvent)) (interfaces.Disposer, error) {
			opts := deps.Detector
			opts.OnHealthChange = func(degraded bool) {
				if deps.Notifier == nil {
					return
				}
				deps.Notifier.Notify(types.Notification{
					Type:       types.MessageMonitoringStatus,
					SessionID:  session.ID,
					RoomCode:   session.RoomCode,
					RollNumber: session.RollNumber,
					Payload:    types.MonitoringStatusPayload{Degraded: degraded},
				})
			}
			d, err := proctor.New(deps.Perception(key), emit, opts, logger)
			if err != nil {
				return nil, err
			}
			return d.Start(ctx)
		})

		integrity := ComponentFunc(func(_ context.Context, emit func(types.ViolationEvent)) (interfaces.Disposer, error) {
			return guard.New(emit, logger).Arm(deps.Signals, key)
		})

		return []Component{camera, detector, integrity}
	}
}
