package proctor

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// DefaultRestrictedLabels are object labels that raise unauthorized_object
var DefaultRestrictedLabels = []string{"cell phone", "laptop", "mobile phone"}

// Options tunes one detector instance
type Options struct {
	// Interval between the end of one tick and the start of the next
	Interval time.Duration
	// BackoffInterval replaces Interval after a failed tick
	BackoffInterval time.Duration
	// ObjectSampleRate is the probability that a tick also runs object detection
	ObjectSampleRate float64
	// Sampler returns values in [0,1); object detection runs when it is below ObjectSampleRate
	Sampler func() float64
	// DegradedAfter consecutive failures flips the degraded indicator on
	DegradedAfter int
	// StopTimeout bounds how long Stop waits for an in-flight tick
	StopTimeout time.Duration
	// OnHealthChange is told when the degraded indicator flips
	OnHealthChange func(degraded bool)
	// RestrictedLabels are matched case-insensitively
	RestrictedLabels []string
	Now              func() time.Time
}

// DefaultOptions polls every 100ms and backs off to 500ms on failure
func DefaultOptions() Options {
	return Options{
		Interval:         100 * time.Millisecond,
		BackoffInterval:  500 * time.Millisecond,
		ObjectSampleRate: 0.3,
		DegradedAfter:    3,
		StopTimeout:      2 * time.Second,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.BackoffInterval <= 0 {
		o.BackoffInterval = d.BackoffInterval
	}
	if o.DegradedAfter <= 0 {
		o.DegradedAfter = d.DegradedAfter
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = d.StopTimeout
	}
	if o.Sampler == nil {
		o.Sampler = rand.Float64
	}
	if o.RestrictedLabels == nil {
		o.RestrictedLabels = DefaultRestrictedLabels
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Detector turns periodic perception results into de-duplicated violation events.
// ARCHITECTURAL DISCOVERY: one detector per session; the debounce map and the
// face history live on the instance and are only touched by the loop goroutine
type Detector struct {
	adapter interfaces.PerceptionAdapter
	emit    func(types.ViolationEvent)
	opts    Options
	logger  *zap.Logger

	restricted map[string]bool

	// loop-owned state
	flags    map[types.ViolationKind]bool
	faceSeen bool
	failures int
	degraded bool

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a detector that reports events through emit
func New(adapter interfaces.PerceptionAdapter, emit func(types.ViolationEvent), opts Options, logger *zap.Logger) (*Detector, error) {
	if adapter == nil {
		return nil, ErrNilAdapter
	}
	opts.applyDefaults()

	restricted := make(map[string]bool, len(opts.RestrictedLabels))
	for _, label := range opts.RestrictedLabels {
		restricted[strings.ToLower(strings.TrimSpace(label))] = true
	}

	return &Detector{
		adapter:    adapter,
		emit:       emit,
		opts:       opts,
		logger:     logger.Named("detector"),
		restricted: restricted,
		flags:      make(map[types.ViolationKind]bool),
	}, nil
}

// Start begins the polling loop. The returned disposer is Stop.
func (d *Detector) Start(ctx context.Context) (interfaces.Disposer, error) {
	d.mu.Lock()
	if d.started || d.stopped {
		d.mu.Unlock()
		return nil, ErrDetectorReused
	}
	d.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.run(loopCtx)
	return d.Stop, nil
}

// Stop halts the loop and waits for an in-flight tick up to StopTimeout.
// Safe to call more than once and before Start. Nothing is emitted once
// Stop has been called, even by a tick that outlives the wait.
func (d *Detector) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	started := d.started
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	if !started {
		return
	}

	cancel()
	select {
	case <-done:
	case <-time.After(d.opts.StopTimeout):
		d.logger.Warn("perception call still in flight after stop", zap.Duration("waited", d.opts.StopTimeout))
	}
}

// Degraded reports the current indicator state
func (d *Detector) Degraded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.degraded
}

// run is the polling loop.
// TECHNICAL DISCOVERY: the timer is re-armed only after a tick returns, so
// ticks never overlap and debounce flags are updated in detection order
func (d *Detector) run(ctx context.Context) {
	defer close(d.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := d.opts.Interval
		if err := d.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			next = d.opts.BackoffInterval
			d.recordFailure(err)
		} else {
			d.recordSuccess()
		}

		timer.Reset(next)
	}
}

// tick runs one detection pass
func (d *Detector) tick(ctx context.Context) error {
	faces, err := d.adapter.DetectFaces(ctx)
	if err != nil {
		return fmt.Errorf("%w: detect faces: %w", types.ErrPerceptionUnavailable, err)
	}
	d.evaluateFaces(faces)

	if d.opts.Sampler() >= d.opts.ObjectSampleRate {
		return nil
	}

	objects, err := d.adapter.DetectObjects(ctx)
	if err != nil {
		return fmt.Errorf("%w: detect objects: %w", types.ErrPerceptionUnavailable, err)
	}
	d.evaluateObjects(objects)
	return nil
}

func (d *Detector) evaluateFaces(result types.FaceResult) {
	count := len(result.Faces)

	if count > 1 {
		if d.set(types.KindMultipleFaces) {
			d.raise(types.KindMultipleFaces, types.SeverityHigh, "Multiple people detected in frame")
		}
	} else {
		d.clear(types.KindMultipleFaces)
	}

	// FUNCTIONAL DISCOVERY: no_face needs a face to have been seen first, so a
	// candidate still positioning the camera is not flagged on the first tick
	if count == 0 {
		if d.faceSeen && d.set(types.KindNoFace) {
			d.raise(types.KindNoFace, types.SeverityHigh, "No face detected, stay in front of the camera")
		}
	} else {
		first := !d.faceSeen
		d.faceSeen = true
		if d.clear(types.KindNoFace) || first {
			d.raise(types.KindFaceDetected, types.SeverityLow, "Face detected, monitoring active")
		}
	}

	if count != 1 || result.FrameWidth <= 0 || result.FrameHeight <= 0 {
		return
	}
	center, ok := EyeCenter(result.Faces[0])
	if !ok {
		return
	}
	if InMarginBand(center, result.FrameWidth, result.FrameHeight) {
		if d.set(types.KindGazeAway) {
			d.raise(types.KindGazeAway, types.SeverityMedium, "Looking away from screen")
		}
	} else {
		d.clear(types.KindGazeAway)
	}
}

func (d *Detector) evaluateObjects(objects []types.ObjectDetection) {
	found := ""
	for _, obj := range objects {
		label := strings.ToLower(strings.TrimSpace(obj.Label))
		if d.restricted[label] {
			found = label
			break
		}
	}

	if found == "" {
		d.clear(types.KindUnauthorizedObject)
		return
	}
	if d.set(types.KindUnauthorizedObject) {
		d.raise(types.KindUnauthorizedObject, types.SeverityHigh, "Unauthorized object detected: "+found)
	}
}

// set raises the flag and reports whether it was a false->true transition
func (d *Detector) set(kind types.ViolationKind) bool {
	if d.flags[kind] {
		return false
	}
	d.flags[kind] = true
	return true
}

// clear lowers the flag and reports whether it was set
func (d *Detector) clear(kind types.ViolationKind) bool {
	was := d.flags[kind]
	d.flags[kind] = false
	return was
}

func (d *Detector) raise(kind types.ViolationKind, severity types.Severity, message string) {
	if d.isStopped() {
		return
	}
	d.emit(types.ViolationEvent{
		Timestamp: d.opts.Now(),
		Kind:      kind,
		Severity:  severity,
		Message:   message,
	})
}

func (d *Detector) recordFailure(err error) {
	d.failures++
	d.logger.Warn("perception tick failed",
		zap.Int("consecutive_failures", d.failures),
		zap.Duration("retry_in", d.opts.BackoffInterval),
		zap.Error(err))

	if d.failures >= d.opts.DegradedAfter {
		d.setDegraded(true)
	}
}

func (d *Detector) recordSuccess() {
	d.failures = 0
	d.setDegraded(false)
}

func (d *Detector) setDegraded(degraded bool) {
	d.mu.Lock()
	if d.degraded == degraded || d.stopped {
		d.mu.Unlock()
		return
	}
	d.degraded = degraded
	d.mu.Unlock()

	if degraded {
		d.logger.Warn("monitoring degraded")
	} else {
		d.logger.Info("monitoring recovered")
	}
	if d.opts.OnHealthChange != nil {
		d.opts.OnHealthChange(degraded)
	}
}

func (d *Detector) isStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}
