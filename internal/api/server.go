package api

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"examguard/internal/scoring"
	"examguard/internal/session"
	"examguard/pkg/types"
)

// Sessions is the exam lifecycle the REST surface drives
type Sessions interface {
	CreateRoom(ctx context.Context, room *types.ExamRoom) (*types.ExamRoom, error)
	ListRooms(ctx context.Context) ([]*types.ExamRoom, error)
	DeactivateRoom(ctx context.Context, roomID string) error
	DeleteRoom(ctx context.Context, roomID string) error
	ListSessions(ctx context.Context, roomID string) ([]*types.ExamSession, error)
	Join(ctx context.Context, name, rollNumber, roomCode string) (*types.ExamSession, *types.ExamRoom, error)
	StartInfo(ctx context.Context, roomCode, rollNumber string) (*session.StartInfo, error)
	End(ctx context.Context, roomCode, rollNumber string, clientLog []types.ViolationEvent) (*types.ExamSession, error)
	LogsByCandidate(ctx context.Context, candidateName string) ([]types.ViolationEvent, error)
	LiveEvents(sessionID string) ([]types.ViolationEvent, error)
	GetStats() map[string]interface{}
}

// Assessments lists and scores assessments
type Assessments interface {
	List(ctx context.Context) ([]*types.Assessment, error)
	Submit(ctx context.Context, req scoring.SubmitRequest) (*scoring.Result, error)
}

// HealthChecker reports storage health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Sockets upgrades candidate and proctor WebSocket connections
type Sockets interface {
	HandleCandidate(w http.ResponseWriter, r *http.Request)
	HandleProctor(w http.ResponseWriter, r *http.Request)
}

// StatsSource contributes connection counters to the health report
type StatsSource interface {
	GetStats() map[string]int
}

// Options tunes the HTTP surface
type Options struct {
	AllowedOrigins []string
	JoinRateLimit  uint // joins per client IP per minute
}

// Dependencies are the collaborators behind the routes. Sockets and
// Connections may be nil.
type Dependencies struct {
	Sessions    Sessions
	Assessments Assessments
	Health      HealthChecker
	Sockets     Sockets
	Connections StatsSource
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	deps    Dependencies
	engine  *gin.Engine
	handler http.Handler
	started time.Time
	logger  *zap.Logger
}

// NewServer builds the gin engine with middleware and routes
func NewServer(deps Dependencies, opts Options, logger *zap.Logger) *Server {
	if opts.JoinRateLimit == 0 {
		opts.JoinRateLimit = 10
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		deps:    deps,
		engine:  gin.New(),
		started: time.Now(),
		logger:  logger.Named("api"),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(RequestLogger(s.logger))
	s.engine.Use(secureHeaders())

	s.setupRoutes(joinLimiter(opts.JoinRateLimit))
	s.handler = corsHandler(opts.AllowedOrigins)(s.engine)
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
func (s *Server) setupRoutes(limiter gin.HandlerFunc) {
	api := s.engine.Group("/api")
	{
		rooms := api.Group("/exam-rooms")
		rooms.POST("", s.createRoom)
		rooms.GET("", s.listRooms)
		rooms.DELETE("/:id", s.deleteRoom)
		rooms.POST("/:id/close", s.closeRoom)
		rooms.GET("/:id/sessions", s.listSessions)

		api.POST("/join-exam", limiter, s.joinExam)
		api.GET("/start-exam/:roomCode/:rollNumber", s.startExam)
		api.POST("/end-exam/:roomCode/:rollNumber", s.endExam)
		api.GET("/logs", s.candidateLogs)
		api.GET("/sessions/:id/live", s.liveEvents)

		api.GET("/assessments", s.listAssessments)
		api.POST("/assessments/:id/submit", s.submitAssessment)
	}

	s.engine.GET("/health", s.healthCheck)

	if s.deps.Sockets != nil {
		s.engine.GET("/ws/candidate", gin.WrapF(s.deps.Sockets.HandleCandidate))
		s.engine.GET("/ws/proctor", gin.WrapF(s.deps.Sockets.HandleProctor))
	}
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization
type CreateRoomRequest struct {
	Name                  string `json:"name"`
	FormLink              string `json:"formLink"`
	ExamDurationMinutes   int    `json:"examDurationMinutes"`
	LinkOpenDurationHours int    `json:"linkOpenDurationHours"`
	CreatedBy             string `json:"createdBy"`
}

type CreateRoomResponse struct {
	Room       *types.ExamRoom `json:"room"`
	UniqueCode string          `json:"uniqueCode"`
}

type JoinRequest struct {
	Name       string `json:"name"`
	RollNumber string `json:"rollNumber"`
	RoomCode   string `json:"roomCode"`
}

type JoinResponse struct {
	Session *types.ExamSession `json:"session"`
	Room    *types.ExamRoom    `json:"room"`
}

type EndRequest struct {
	Log []types.ViolationEvent `json:"log"`
}

type SubmitRequest struct {
	CandidateID   string                 `json:"candidateId"`
	CandidateName string                 `json:"candidateName"`
	Answers       []types.Answer         `json:"answers"`
	SessionID     string                 `json:"sessionId"`
	ProctorLog    []types.ViolationEvent `json:"proctorLog"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Connections map[string]int         `json:"connections"`
	Sessions    map[string]interface{} `json:"sessions"`
	System      map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: POST /api/exam-rooms returns the code candidates join with
func (s *Server) createRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid JSON")
		return
	}

	room, err := s.deps.Sessions.CreateRoom(c.Request.Context(), &types.ExamRoom{
		Name:                  req.Name,
		FormLink:              req.FormLink,
		ExamDurationMinutes:   req.ExamDurationMinutes,
		LinkOpenDurationHours: req.LinkOpenDurationHours,
		CreatedBy:             req.CreatedBy,
	})
	if err != nil {
		s.fail(c, err, "Failed to create exam room")
		return
	}

	c.JSON(http.StatusCreated, CreateRoomResponse{Room: room, UniqueCode: room.UniqueCode})
}

func (s *Server) listRooms(c *gin.Context) {
	rooms, err := s.deps.Sessions.ListRooms(c.Request.Context())
	if err != nil {
		s.fail(c, err, "Failed to list exam rooms")
		return
	}
	if rooms == nil {
		rooms = []*types.ExamRoom{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// FUNCTIONAL DISCOVERY: DELETE cascades to the room's sessions and their logs
func (s *Server) deleteRoom(c *gin.Context) {
	if err := s.deps.Sessions.DeleteRoom(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err, "Failed to delete exam room")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Exam room deleted successfully"})
}

func (s *Server) closeRoom(c *gin.Context) {
	if err := s.deps.Sessions.DeactivateRoom(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err, "Failed to close exam room")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Exam room closed to new candidates"})
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.deps.Sessions.ListSessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*types.ExamSession{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// FUNCTIONAL DISCOVERY: joining with the same name and roll number returns the existing session
func (s *Server) joinExam(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.RoomCode == "" {
		sendError(c, http.StatusBadRequest, "Room code is required")
		return
	}

	sess, room, err := s.deps.Sessions.Join(c.Request.Context(), req.Name, req.RollNumber, req.RoomCode)
	if err != nil {
		s.fail(c, err, "Failed to join exam")
		return
	}
	c.JSON(http.StatusOK, JoinResponse{Session: sess, Room: room})
}

func (s *Server) startExam(c *gin.Context) {
	info, err := s.deps.Sessions.StartInfo(c.Request.Context(), c.Param("roomCode"), c.Param("rollNumber"))
	if err != nil {
		s.fail(c, err, "Failed to load exam")
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) endExam(c *gin.Context) {
	var req EndRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			sendError(c, http.StatusBadRequest, "Invalid JSON")
			return
		}
	}

	sess, err := s.deps.Sessions.End(c.Request.Context(), c.Param("roomCode"), c.Param("rollNumber"), req.Log)
	if err != nil {
		s.fail(c, err, "Failed to end exam")
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (s *Server) candidateLogs(c *gin.Context) {
	name := c.Query("candidateName")
	if name == "" {
		sendError(c, http.StatusBadRequest, "No candidate name provided")
		return
	}

	log, err := s.deps.Sessions.LogsByCandidate(c.Request.Context(), name)
	if err != nil {
		s.fail(c, err, "Failed to get candidate logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": log})
}

func (s *Server) liveEvents(c *gin.Context) {
	events, err := s.deps.Sessions.LiveEvents(c.Param("id"))
	if err != nil {
		s.fail(c, err, "Failed to get live events")
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) listAssessments(c *gin.Context) {
	assessments, err := s.deps.Assessments.List(c.Request.Context())
	if err != nil {
		s.fail(c, err, "Failed to list assessments")
		return
	}
	if assessments == nil {
		assessments = []*types.Assessment{}
	}
	c.JSON(http.StatusOK, gin.H{"assessments": assessments})
}

// FUNCTIONAL DISCOVERY: the score is always computed here, never trusted from the client
func (s *Server) submitAssessment(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid JSON")
		return
	}

	result, err := s.deps.Assessments.Submit(c.Request.Context(), scoring.SubmitRequest{
		AssessmentID:  c.Param("id"),
		CandidateID:   req.CandidateID,
		CandidateName: req.CandidateName,
		Answers:       req.Answers,
		SessionID:     req.SessionID,
		ProctorLog:    req.ProctorLog,
	})
	if err != nil {
		s.fail(c, err, "Failed to submit assessment")
		return
	}
	c.JSON(http.StatusOK, result)
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.deps.Health.HealthCheck(ctx); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		status = "unhealthy"
		dbStatus = "unhealthy"
	}

	connections := map[string]int{}
	if s.deps.Connections != nil {
		connections = s.deps.Connections.GetStats()
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: connections,
		Sessions:    s.deps.Sessions.GetStats(),
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// fail maps a domain error to its status code. Unexpected errors are logged
// and hidden behind fallback.
func (s *Server) fail(c *gin.Context, err error, fallback string) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		sendError(c, code, fallback)
		return
	}
	sendError(c, code, err.Error())
}

var notFound = []error{
	types.ErrInvalidRoomCode,
	types.ErrRoomNotFound,
	types.ErrSessionNotFound,
	types.ErrAssessmentNotFound,
}

var badRequest = []error{
	types.ErrDuplicateRollNumber,
	types.ErrAlreadySealed,
	types.ErrAlreadySubmitted,
	types.ErrInvalidRoomName,
	types.ErrInvalidFormLink,
	types.ErrInvalidDuration,
	types.ErrInvalidLinkOpen,
	types.ErrInvalidCreatedBy,
	types.ErrInvalidCandidateName,
	types.ErrInvalidRollNumber,
	types.ErrInvalidKind,
	types.ErrInvalidSeverity,
	types.ErrInvalidCandidateID,
}

func statusFor(err error) int {
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func sendError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
