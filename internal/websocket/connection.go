package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"examguard/pkg/types"
)

// ConnectionOptions sizes the outbound queue and bounds each write
type ConnectionOptions struct {
	BufferSize   int
	WriteTimeout time.Duration
}

// DefaultConnectionOptions keeps a 100 frame queue and a 5 second write budget
func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{BufferSize: 100, WriteTimeout: 5 * time.Second}
}

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions
// Interface boundary maintained - no business logic in connection wrapper
type Connection struct {
	conn          *websocket.Conn
	writeCh       chan []byte // FUNCTIONAL DISCOVERY: buffer absorbs the once-per-second countdown burst
	writeTimeout  time.Duration
	unwritten     atomic.Int32 // frames queued or being written
	participantID string // roll number or proctor ID
	role          string
	roomCode      string
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
	mu            sync.RWMutex // protects identity fields
	logger        *zap.Logger
}

// NewConnection creates a new WebSocket connection wrapper and starts its writer
func NewConnection(conn *websocket.Conn, opts ConnectionOptions, logger *zap.Logger) *Connection {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultConnectionOptions().BufferSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultConnectionOptions().WriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, opts.BufferSize),
		writeTimeout: opts.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
	}

	go c.writeLoop()

	return c
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err == nil {
				err = c.conn.WriteMessage(websocket.TextMessage, data)
			}
			c.unwritten.Add(-1)
			if err != nil {
				c.fail(err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// fail closes a connection whose socket can no longer be written
func (c *Connection) fail(err error) {
	c.logger.Debug("websocket write failed",
		zap.String("participant_id", c.GetParticipantID()),
		zap.Error(err))
	_ = c.Close()
}

// WriteJSON queues v for the writer goroutine.
// It blocks for at most the write timeout when the queue is full.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	c.unwritten.Add(1)
	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		c.unwritten.Add(-1)
		return ErrWriteTimeout
	case <-c.ctx.Done():
		c.unwritten.Add(-1)
		return ErrConnectionClosed
	}
}

// Close stops the writer and closes the socket. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Flush waits until queued frames have been written or timeout passes
func (c *Connection) Flush(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for c.unwritten.Load() > 0 && time.Now().Before(deadline) {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Done is closed once the connection has been closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// SetCredentials binds the connection to a participant after validation
func (c *Connection) SetCredentials(participantID, role, roomCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.participantID = participantID
	c.role = role
	c.roomCode = roomCode
}

// IsAuthenticated reports whether SetCredentials has run
func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participantID != "" && c.role != "" && c.roomCode != ""
}

func (c *Connection) GetParticipantID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participantID
}

func (c *Connection) GetRole() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Connection) GetRoomCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomCode
}

// CandidateKey returns the routing key for a candidate connection
func (c *Connection) CandidateKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.CandidateKey(c.roomCode, c.participantID)
}
