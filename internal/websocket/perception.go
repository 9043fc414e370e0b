package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// Broker drives perception in the candidate's browser over its socket.
// ARCHITECTURAL DISCOVERY: the camera and the models stay client-side, so each
// detector tick becomes a request/response pair correlated by request ID
type Broker struct {
	registry *Registry
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu        sync.Mutex
	pending   map[string]*pendingRequest // requestID -> waiter
	capturing map[string]int             // candidate key -> open camera handles
}

type pendingRequest struct {
	key string
	ch  chan types.PerceptionResult
}

// NewBroker creates a broker. timeout bounds every perception round trip.
func NewBroker(registry *Registry, timeout time.Duration, logger *zap.Logger) *Broker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Broker{
		registry:  registry,
		timeout:   timeout,
		now:       time.Now,
		logger:    logger.Named("perception"),
		pending:   make(map[string]*pendingRequest),
		capturing: make(map[string]int),
	}
}

// Adapter returns the perception adapter for one candidate
func (b *Broker) Adapter(key string) interfaces.PerceptionAdapter {
	return &candidatePerception{broker: b, key: key}
}

// Media returns the camera handle for one candidate
func (b *Broker) Media(key string) interfaces.MediaHandle {
	return &candidateCamera{broker: b, key: key}
}

// Resolve delivers a perception_result to its waiter.
// Results from a socket other than the one the request was addressed to are
// rejected, as are late results whose waiter already gave up.
func (b *Broker) Resolve(key, requestID string, result types.PerceptionResult) bool {
	b.mu.Lock()
	req, exists := b.pending[requestID]
	if !exists || req.key != key {
		b.mu.Unlock()
		return false
	}
	delete(b.pending, requestID)
	b.mu.Unlock()

	// ch has capacity 1 and exactly one sender, so this never blocks
	req.ch <- result
	return true
}

// CandidateConnected replays the capture state to a freshly registered socket
// FUNCTIONAL DISCOVERY: a page reload drops the browser's camera stream, so a
// reconnect during an active session must turn capture back on
func (b *Broker) CandidateConnected(conn *Connection) {
	key := conn.CandidateKey()

	b.mu.Lock()
	active := b.capturing[key] > 0
	b.mu.Unlock()

	if active {
		b.sendCapture(conn, true)
	}
}

// Pending reports the number of in-flight requests
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Broker) request(ctx context.Context, key string, want types.PerceptionRequest) (types.PerceptionResult, error) {
	conn, ok := b.registry.GetCandidate(key)
	if !ok {
		return types.PerceptionResult{}, ErrCandidateNotConnected
	}

	id := uuid.New().String()
	req := &pendingRequest{key: key, ch: make(chan types.PerceptionResult, 1)}

	b.mu.Lock()
	b.pending[id] = req
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := conn.WriteJSON(types.OutboundMessage{
		Type:      types.MessagePerceptionRequest,
		RequestID: id,
		Content:   want,
		Timestamp: b.now(),
	}); err != nil {
		return types.PerceptionResult{}, fmt.Errorf("send perception request: %w", err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case result := <-req.ch:
		if result.Error != "" {
			return types.PerceptionResult{}, errors.New(result.Error)
		}
		return result, nil
	case <-timer.C:
		return types.PerceptionResult{}, ErrPerceptionTimeout
	case <-ctx.Done():
		return types.PerceptionResult{}, ctx.Err()
	}
}

func (b *Broker) acquire(key string) func() {
	b.mu.Lock()
	b.capturing[key]++
	first := b.capturing[key] == 1
	b.mu.Unlock()

	if first {
		if conn, ok := b.registry.GetCandidate(key); ok {
			b.sendCapture(conn, true)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.capturing[key]--
			last := b.capturing[key] <= 0
			if last {
				delete(b.capturing, key)
			}
			b.mu.Unlock()

			if last {
				if conn, ok := b.registry.GetCandidate(key); ok {
					b.sendCapture(conn, false)
				}
			}
		})
	}
}

func (b *Broker) sendCapture(conn *Connection, active bool) {
	err := conn.WriteJSON(types.OutboundMessage{
		Type:      types.MessageCapture,
		Content:   types.CapturePayload{Active: active},
		Timestamp: b.now(),
	})
	if err != nil {
		b.logger.Debug("capture toggle not delivered",
			zap.String("candidate", conn.CandidateKey()),
			zap.Bool("active", active),
			zap.Error(err))
	}
}

// candidatePerception is the PerceptionAdapter for one candidate key
type candidatePerception struct {
	broker *Broker
	key    string
}

func (p *candidatePerception) DetectFaces(ctx context.Context) (types.FaceResult, error) {
	result, err := p.broker.request(ctx, p.key, types.PerceptionRequest{Faces: true})
	if err != nil {
		return types.FaceResult{}, err
	}
	if result.Faces == nil {
		return types.FaceResult{}, ErrMalformedResult
	}
	return *result.Faces, nil
}

func (p *candidatePerception) DetectObjects(ctx context.Context) ([]types.ObjectDetection, error) {
	result, err := p.broker.request(ctx, p.key, types.PerceptionRequest{Objects: true})
	if err != nil {
		return nil, err
	}
	return result.Objects, nil
}

// candidateCamera is the MediaHandle for one candidate key.
// Acquiring succeeds even while the candidate is offline; capture starts when
// the socket registers.
type candidateCamera struct {
	broker *Broker
	key    string
}

func (c *candidateCamera) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.broker.acquire(c.key), nil
}
