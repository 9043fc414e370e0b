package interfaces

import (
	"context"

	"examguard/pkg/types"
)

// PerceptionAdapter supplies detection results for the current camera frame.
// Implementations may be slow or fail; callers treat any error as
// types.ErrPerceptionUnavailable.
type PerceptionAdapter interface {
	DetectFaces(ctx context.Context) (types.FaceResult, error)
	DetectObjects(ctx context.Context) ([]types.ObjectDetection, error)
}

// MediaHandle is the scoped camera acquisition for one session.
// The returned release func must be safe to call more than once.
type MediaHandle interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// SignalHandler classifies one environment signal and reports whether
// the browser should cancel its default action
type SignalHandler func(sig types.Signal) (prevent bool)

// SignalSource delivers a candidate's environment signals
type SignalSource interface {
	// Subscribe registers the handler for the candidate key, replacing any
	// previous one. The returned func removes this handler only.
	Subscribe(key string, handler SignalHandler) (unsubscribe func(), err error)
}

// Notifier fans session events out to connected sockets
type Notifier interface {
	Notify(n types.Notification)
}

// Disposer releases everything acquired by one Start or Arm call
type Disposer func()
