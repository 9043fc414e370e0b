package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"examguard/internal/websocket"
	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// Recipients resolves who a notification is delivered to
type Recipients interface {
	Candidate(key string) (interfaces.Connection, bool)
	Proctors(roomCode string) []interfaces.Connection
	CloseRoom(roomCode string)
}

// Hub fans session notifications out to the candidate and the room's proctors.
// It implements interfaces.Notifier.
// ARCHITECTURAL DISCOVERY: Notify is called with the session machine's lock
// held, so it only enqueues; socket writes happen on the hub goroutine
type Hub struct {
	// FUNCTIONAL DISCOVERY: Buffered channel absorbs the once-per-second
	// countdown of every active candidate plus violation bursts
	notifications   chan types.Notification
	shutdownChannel chan struct{}
	done            chan struct{}

	recipients Recipients
	now        func() time.Time
	logger     *zap.Logger

	delivered atomic.Int64
	dropped   atomic.Int64

	running bool
	mu      sync.RWMutex
}

// NewHub creates a new hub
func NewHub(recipients Recipients, logger *zap.Logger) *Hub {
	return &Hub{
		notifications:   make(chan types.Notification, 1000),
		shutdownChannel: make(chan struct{}),
		done:            make(chan struct{}),
		recipients:      recipients,
		now:             time.Now,
		logger:          logger.Named("hub"),
	}
}

// Start begins hub processing
// FUNCTIONAL DISCOVERY: Single hub goroutine keeps per-recipient delivery in publish order
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	h.logger.Info("starting notification hub")
	go h.run(ctx)

	return nil
}

// Stop shuts the hub down and waits for the loop to exit
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	<-h.done
	h.logger.Info("notification hub stopped",
		zap.Int64("delivered", h.delivered.Load()),
		zap.Int64("dropped", h.dropped.Load()))
	return nil
}

// Notify queues n for delivery without blocking.
// Notifications published while the hub is stopped or saturated are dropped.
func (h *Hub) Notify(n types.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		h.dropped.Add(1)
		h.logger.Debug("hub not running, notification dropped", zap.String("type", n.Type))
		return
	}

	select {
	case h.notifications <- n:
	default:
		h.dropped.Add(1)
		h.logger.Warn("notification channel full, notification dropped",
			zap.String("type", n.Type),
			zap.String("session_id", n.SessionID))
	}
}

// GetStats returns delivery counters
func (h *Hub) GetStats() map[string]int64 {
	return map[string]int64{
		"delivered": h.delivered.Load(),
		"dropped":   h.dropped.Load(),
		"queued":    int64(len(h.notifications)),
	}
}

// run is the main hub processing loop
// TECHNICAL DISCOVERY: Single select loop handles all coordination
// preventing race conditions while maintaining high throughput
func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case n := <-h.notifications:
			h.deliver(n)
		case <-h.shutdownChannel:
			return
		case <-ctx.Done():
			h.logger.Info("hub context cancelled")
			return
		}
	}
}

func (h *Hub) deliver(n types.Notification) {
	msg := types.OutboundMessage{
		Type:       n.Type,
		SessionID:  n.SessionID,
		RollNumber: n.RollNumber,
		Content:    n.Payload,
		Timestamp:  h.now(),
	}

	if n.RollNumber != "" {
		if conn, ok := h.recipients.Candidate(types.CandidateKey(n.RoomCode, n.RollNumber)); ok {
			h.write(conn, msg)
		}
	}
	for _, conn := range h.recipients.Proctors(n.RoomCode) {
		h.write(conn, msg)
	}

	// FUNCTIONAL DISCOVERY: room deletion is queued behind the session_ended
	// notifications of its sessions, so sockets close only after those are written
	if n.Type == types.MessageRoomDeleted {
		h.recipients.CloseRoom(n.RoomCode)
	}
}

func (h *Hub) write(conn interfaces.Connection, msg types.OutboundMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		h.dropped.Add(1)
		h.logger.Debug("notification not delivered",
			zap.String("type", msg.Type),
			zap.String("role", conn.GetRole()),
			zap.String("participant_id", conn.GetParticipantID()),
			zap.Error(err))
		return
	}
	h.delivered.Add(1)
}

// RegistryRecipients resolves recipients from the live socket registry
type RegistryRecipients struct {
	Registry *websocket.Registry
}

func (r RegistryRecipients) Candidate(key string) (interfaces.Connection, bool) {
	conn, ok := r.Registry.GetCandidate(key)
	if !ok {
		return nil, false
	}
	return conn, true
}

func (r RegistryRecipients) Proctors(roomCode string) []interfaces.Connection {
	conns := r.Registry.GetRoomProctors(roomCode)
	out := make([]interfaces.Connection, len(conns))
	for i, c := range conns {
		out[i] = c
	}
	return out
}

func (r RegistryRecipients) CloseRoom(roomCode string) {
	r.Registry.CloseRoom(roomCode)
}
