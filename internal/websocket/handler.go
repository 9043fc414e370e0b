package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// SessionValidator decides whether a socket may attach to a room
type SessionValidator interface {
	// ValidateCandidate succeeds for a candidate with an unsealed session
	ValidateCandidate(ctx context.Context, roomCode, rollNumber string) error
	// ValidateRoom succeeds for an existing active room
	ValidateRoom(ctx context.Context, roomCode string) error
}

// MessageHandler consumes inbound frames from candidate sockets.
// It runs on the socket's read goroutine, so frames from one candidate are
// handled strictly in order.
type MessageHandler interface {
	HandleMessage(ctx context.Context, conn *Connection, data []byte)
}

// HandlerOptions carries the heartbeat timing and connection sizing
type HandlerOptions struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	Connection     ConnectionOptions
	AllowedOrigins []string
}

// DefaultHandlerOptions pings every 30s and drops sockets silent for 60s
func DefaultHandlerOptions() HandlerOptions {
	return HandlerOptions{
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		Connection:     DefaultConnectionOptions(),
		AllowedOrigins: []string{"*"},
	}
}

// Handler manages WebSocket connections for candidates and proctors
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from business logic
// integrates with Registry for connection management and interfaces for external dependencies
type Handler struct {
	registry  *Registry
	validator SessionValidator
	broker    *Broker
	messages  MessageHandler
	opts      HandlerOptions
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, validator SessionValidator, broker *Broker, messages MessageHandler, opts HandlerOptions, logger *zap.Logger) *Handler {
	h := &Handler{
		registry:  registry,
		validator: validator,
		broker:    broker,
		messages:  messages,
		opts:      opts,
		logger:    logger.Named("websocket"),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// HandleCandidate serves /ws/candidate?room_code=&roll_number=
// ARCHITECTURAL DISCOVERY: Multi-stage validation (parameters -> session -> WebSocket -> registration)
// ensures proper error handling and prevents invalid connections from consuming resources
func (h *Handler) HandleCandidate(w http.ResponseWriter, r *http.Request) {
	roomCode := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("room_code")))
	rollNumber := strings.TrimSpace(r.URL.Query().Get("roll_number"))

	if roomCode == "" || rollNumber == "" {
		http.Error(w, "Missing required query parameters: room_code, roll_number", http.StatusBadRequest)
		return
	}
	if !types.IsValidRoomCode(roomCode) {
		http.Error(w, "Invalid room_code format", http.StatusBadRequest)
		return
	}
	if !types.IsValidUserID(rollNumber) {
		http.Error(w, "Invalid roll_number format", http.StatusBadRequest)
		return
	}

	if err := h.validator.ValidateCandidate(r.Context(), roomCode, rollNumber); err != nil {
		h.rejectValidation(w, err)
		return
	}

	h.accept(w, r, rollNumber, interfaces.RoleCandidate, roomCode)
}

// HandleProctor serves /ws/proctor?room_code=&proctor_id=
func (h *Handler) HandleProctor(w http.ResponseWriter, r *http.Request) {
	roomCode := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("room_code")))
	proctorID := strings.TrimSpace(r.URL.Query().Get("proctor_id"))

	if roomCode == "" || proctorID == "" {
		http.Error(w, "Missing required query parameters: room_code, proctor_id", http.StatusBadRequest)
		return
	}
	if !types.IsValidRoomCode(roomCode) {
		http.Error(w, "Invalid room_code format", http.StatusBadRequest)
		return
	}
	if !types.IsValidUserID(proctorID) {
		http.Error(w, "Invalid proctor_id format", http.StatusBadRequest)
		return
	}

	if err := h.validator.ValidateRoom(r.Context(), roomCode); err != nil {
		h.rejectValidation(w, err)
		return
	}

	h.accept(w, r, proctorID, interfaces.RoleProctor, roomCode)
}

func (h *Handler) rejectValidation(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidRoomCode), errors.Is(err, types.ErrRoomNotFound):
		http.Error(w, "Exam room not found", http.StatusNotFound)
	case errors.Is(err, types.ErrSessionNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, types.ErrAlreadySealed):
		http.Error(w, "Session already ended", http.StatusGone)
	default:
		h.logger.Error("session validation failed", zap.Error(err))
		http.Error(w, "Session validation failed", http.StatusInternalServerError)
	}
}

// accept upgrades the request and registers the socket
func (h *Handler) accept(w http.ResponseWriter, r *http.Request, participantID, role, roomCode string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(ws, h.opts.Connection, h.logger)
	conn.SetCredentials(participantID, role, roomCode)

	if err := h.registry.RegisterConnection(conn); err != nil {
		h.logger.Error("failed to register connection", zap.Error(err))
		_ = conn.Close()
		return
	}

	h.logger.Info("socket connected",
		zap.String("role", role),
		zap.String("room_code", roomCode),
		zap.String("participant_id", participantID))

	if role == interfaces.RoleCandidate && h.broker != nil {
		h.broker.CandidateConnected(conn)
	}

	go h.handleConnection(conn)
}

// handleConnection manages the connection lifecycle with heartbeat monitoring
// ARCHITECTURAL DISCOVERY: Single goroutine per connection handles both heartbeat
// and message reading to prevent goroutine proliferation and resource leaks
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
		h.logger.Info("socket disconnected",
			zap.String("role", conn.GetRole()),
			zap.String("room_code", conn.GetRoomCode()),
			zap.String("participant_id", conn.GetParticipantID()))
	}()

	// TECHNICAL DISCOVERY: read deadline at twice the ping interval
	// provides reliable connection health monitoring for classroom environments
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		h.logger.Debug("failed to set read deadline", zap.Error(err))
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	// Read pump
	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		if messageType != websocket.TextMessage || h.messages == nil {
			continue
		}
		h.messages.HandleMessage(conn.ctx, conn, data)
	}
}
