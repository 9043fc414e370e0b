package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"examguard/internal/websocket"
	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// Router decodes frames read off sockets and dispatches them
// ARCHITECTURAL DISCOVERY: Pure message routing logic without session management or connection handling
// maintains clean separation between routing decisions and message delivery mechanisms
type Router struct {
	broker      *websocket.Broker
	signals     *websocket.SignalBus
	rateLimiter *RateLimiter
	now         func() time.Time
	logger      *zap.Logger
}

// NewRouter creates a router that allows signalLimit signals per candidate per minute
func NewRouter(broker *websocket.Broker, signals *websocket.SignalBus, signalLimit int, logger *zap.Logger) *Router {
	return &Router{
		broker:      broker,
		signals:     signals,
		rateLimiter: NewRateLimiter(signalLimit),
		now:         time.Now,
		logger:      logger.Named("router"),
	}
}

// HandleMessage implements websocket.MessageHandler.
// Rejected frames are answered with an error frame; the socket stays open.
func (r *Router) HandleMessage(ctx context.Context, conn *websocket.Connection, data []byte) {
	requestID, err := r.route(conn, data)
	if err == nil {
		return
	}

	// FUNCTIONAL DISCOVERY: a result arriving after its request timed out is
	// expected on slow machines and not worth telling the browser about
	if errors.Is(err, ErrUnknownRequest) {
		r.logger.Debug("dropped perception result", zap.String("candidate", conn.CandidateKey()), zap.Error(err))
		return
	}

	r.logger.Warn("rejected inbound frame",
		zap.String("role", conn.GetRole()),
		zap.String("participant_id", conn.GetParticipantID()),
		zap.String("room_code", conn.GetRoomCode()),
		zap.Error(err))
	r.reply(conn, types.MessageError, requestID, types.ErrorPayload{Message: err.Error()})
}

func (r *Router) route(conn *websocket.Connection, data []byte) (string, error) {
	var msg types.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if msg.Type == types.MessageHeartbeat {
		r.reply(conn, types.MessageHeartbeat, msg.RequestID, nil)
		return msg.RequestID, nil
	}

	// Proctors only listen
	if conn.GetRole() != interfaces.RoleCandidate {
		return msg.RequestID, ErrUnauthorizedMessageType
	}

	switch msg.Type {
	case types.MessageSignal:
		return msg.RequestID, r.handleSignal(conn, &msg)
	case types.MessagePerceptionResult:
		return msg.RequestID, r.handlePerceptionResult(conn, &msg)
	default:
		return msg.RequestID, fmt.Errorf("%w: %q", ErrInvalidMessageType, msg.Type)
	}
}

// handleSignal runs the candidate's guard and echoes its verdict.
// Every signal reaches the guard; the limiter only throttles replies to
// signals the guard let through, so key-repeat storms cannot hide a
// tab switch or a blocked shortcut.
func (r *Router) handleSignal(conn *websocket.Connection, msg *types.InboundMessage) error {
	key := conn.CandidateKey()

	var sig types.Signal
	if err := json.Unmarshal(msg.Content, &sig); err != nil || sig.Type == "" {
		return fmt.Errorf("%w: signal content", ErrMalformedMessage)
	}

	prevent, handled := r.signals.Dispatch(key, sig)
	if !handled {
		r.logger.Debug("signal before guard armed", zap.String("candidate", key), zap.String("signal", string(sig.Type)))
	}

	// TECHNICAL DISCOVERY: visibility changes and prevented actions are always
	// answered; only benign traffic counts against the per-candidate budget
	if !prevent && sig.Type != types.SignalVisibility && !r.rateLimiter.Allow(key) {
		return ErrRateLimitExceeded
	}

	r.reply(conn, types.MessageSignalVerdict, msg.RequestID, types.SignalVerdictPayload{Prevent: prevent})
	return nil
}

func (r *Router) handlePerceptionResult(conn *websocket.Connection, msg *types.InboundMessage) error {
	if msg.RequestID == "" {
		return fmt.Errorf("%w: missing requestId", ErrMalformedMessage)
	}

	var result types.PerceptionResult
	if err := json.Unmarshal(msg.Content, &result); err != nil {
		return fmt.Errorf("%w: perception content", ErrMalformedMessage)
	}

	if !r.broker.Resolve(conn.CandidateKey(), msg.RequestID, result) {
		return ErrUnknownRequest
	}
	return nil
}

func (r *Router) reply(conn *websocket.Connection, msgType, requestID string, content interface{}) {
	err := conn.WriteJSON(types.OutboundMessage{
		Type:      msgType,
		RequestID: requestID,
		Content:   content,
		Timestamp: r.now(),
	})
	if err != nil {
		r.logger.Debug("reply not delivered", zap.String("type", msgType), zap.Error(err))
	}
}

// RunCleanup prunes idle limiter state every interval until ctx is done
func (r *Router) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.rateLimiter.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}
