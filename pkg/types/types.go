package types

import (
	"encoding/json"
	"time"
)

// ViolationKind categorises an exam-integrity concern
type ViolationKind string

// Violation kinds raised by the detector and the guard.
// KindFaceDetected is informational: it confirms a face came back after KindNoFace.
const (
	KindNoFace             ViolationKind = "no_face"
	KindMultipleFaces      ViolationKind = "multiple_faces"
	KindGazeAway           ViolationKind = "gaze_away"
	KindUnauthorizedObject ViolationKind = "unauthorized_object"
	KindTabSwitch          ViolationKind = "tab_switch"
	KindRightClick         ViolationKind = "right_click"
	KindCopyPaste          ViolationKind = "copy_paste"
	KindDevtools           ViolationKind = "devtools"
	KindTextSelect         ViolationKind = "text_select"
	KindFaceDetected       ViolationKind = "face_detected"
)

// Severity of a violation event
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ViolationEvent is one entry of a session's integrity log.
// Events are append-only; replay order is timestamp order.
type ViolationEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Kind      ViolationKind `json:"kind"`
	Severity  Severity      `json:"severity"`
	Message   string        `json:"message"`
}

// ExamRoom is an instructor-defined proctored exam.
// FUNCTIONAL DISCOVERY: UniqueCode is what candidates type to join, so it only
// has to be unique among active rooms, not globally
type ExamRoom struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	FormLink              string    `json:"formLink"`
	ExamDurationMinutes   int       `json:"examDurationMinutes"`
	LinkOpenDurationHours int       `json:"linkOpenDurationHours"`
	UniqueCode            string    `json:"uniqueCode"`
	CreatedBy             string    `json:"createdBy"`
	CreatedAt             time.Time `json:"createdAt"`
	IsActive              bool      `json:"isActive"`
}

// SessionStatus mirrors the session state machine
type SessionStatus string

const (
	StatusIdle   SessionStatus = "idle"
	StatusJoined SessionStatus = "joined"
	StatusActive SessionStatus = "active"
	StatusEnded  SessionStatus = "ended"
)

// ExamSession is one candidate's attempt in a room.
// Once EndTime is set the session is sealed and Log never changes again.
type ExamSession struct {
	ID            string           `json:"id"`
	RoomID        string           `json:"roomId"`
	RoomCode      string           `json:"roomCode"`
	CandidateName string           `json:"candidateName"`
	RollNumber    string           `json:"rollNumber"`
	StartTime     time.Time        `json:"startTime"`
	EndTime       *time.Time       `json:"endTime"`
	WarningsCount int              `json:"warningsCount"`
	Log           []ViolationEvent `json:"log"`
	Status        SessionStatus    `json:"status"`
}

// IsSealed reports whether the session has been ended and persisted
func (s *ExamSession) IsSealed() bool {
	return s.EndTime != nil
}

// CandidateKey identifies a candidate inside a room for socket routing
func CandidateKey(roomCode, rollNumber string) string {
	return roomCode + "/" + rollNumber
}

// QuestionType selects the scoring rule for a question
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTrueFalse      QuestionType = "true-false"
	QuestionFillBlank      QuestionType = "fill-blank"
	QuestionEssay          QuestionType = "essay"
)

// Question is a single assessment item
type Question struct {
	Prompt        string       `json:"question" yaml:"question"`
	Type          QuestionType `json:"type" yaml:"type"`
	Options       []string     `json:"options,omitempty" yaml:"options,omitempty"`
	CorrectAnswer string       `json:"correctAnswer,omitempty" yaml:"correct_answer,omitempty"`
	Points        int          `json:"points" yaml:"points"`
}

// Assessment is a scored quiz that may be taken under proctoring
type Assessment struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Questions   []Question `json:"questions" yaml:"questions"`
	TotalPoints int        `json:"totalPoints" yaml:"-"`
}

// Answer is a submitted answer addressed by question position
type Answer struct {
	QuestionIndex int    `json:"index"`
	Answer        string `json:"answer"`
}

// Submission is a candidate's scored attempt at an assessment.
// Score is always derived on the server.
type Submission struct {
	AssessmentID  string           `json:"assessmentId"`
	CandidateID   string           `json:"candidateId"`
	CandidateName string           `json:"candidateName"`
	Answers       []Answer         `json:"answers"`
	Score         int              `json:"score"`
	SubmittedAt   time.Time        `json:"submittedAt"`
	AttachedLog   []ViolationEvent `json:"attachedLog"`
}

// SignalType is an environment event reported by the candidate's browser
type SignalType string

const (
	SignalVisibility  SignalType = "visibility"
	SignalContextMenu SignalType = "contextmenu"
	SignalKeyDown     SignalType = "keydown"
	SignalSelectStart SignalType = "selectstart"
)

// Signal is a raw environment event. Only the fields relevant to Type are set.
type Signal struct {
	Type       SignalType `json:"type"`
	Visibility string     `json:"visibility,omitempty"`
	Key        string     `json:"key,omitempty"`
	Ctrl       bool       `json:"ctrl,omitempty"`
	Meta       bool       `json:"meta,omitempty"`
	Shift      bool       `json:"shift,omitempty"`
	Alt        bool       `json:"alt,omitempty"`
}

// Point is a 2D pixel coordinate in frame space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned bounding box
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Face is one face detection with optional eye landmarks
type Face struct {
	Box      Box    `json:"box"`
	LeftEye  *Point `json:"leftEye,omitempty"`
	RightEye *Point `json:"rightEye,omitempty"`
}

// FaceResult is the face model output for one frame together with the frame size
type FaceResult struct {
	FrameWidth  float64 `json:"frameWidth"`
	FrameHeight float64 `json:"frameHeight"`
	Faces       []Face  `json:"faces"`
}

// ObjectDetection is one object model prediction
type ObjectDetection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Box   Box     `json:"box"`
}

// Socket message types
const (
	MessageSignal            = "signal"
	MessagePerceptionResult  = "perception_result"
	MessageHeartbeat         = "heartbeat"
	MessagePerceptionRequest = "perception_request"
	MessageCapture           = "capture"
	MessageSignalVerdict     = "signal_verdict"
	MessageCountdown         = "countdown"
	MessageMonitoringStatus  = "monitoring_status"
	MessageViolation         = "violation"
	MessageSessionEnded      = "session_ended"
	MessageRoomDeleted       = "room_deleted"
	MessageError             = "error"
)

// InboundMessage is a frame read from a candidate socket.
// Content is decoded by the router once Type is known.
type InboundMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// OutboundMessage is a frame written to a candidate or proctor socket
type OutboundMessage struct {
	Type       string      `json:"type"`
	RequestID  string      `json:"requestId,omitempty"`
	SessionID  string      `json:"sessionId,omitempty"`
	RollNumber string      `json:"rollNumber,omitempty"`
	Content    interface{} `json:"content,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// PerceptionRequest asks the candidate browser for one detection result
type PerceptionRequest struct {
	Faces   bool `json:"faces"`
	Objects bool `json:"objects"`
}

// PerceptionResult answers a PerceptionRequest. Error is set when the
// browser-side model or capture failed.
type PerceptionResult struct {
	Faces   *FaceResult       `json:"faces,omitempty"`
	Objects []ObjectDetection `json:"objects,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Notification is a session event fanned out to the candidate and the room's proctors
type Notification struct {
	Type       string
	SessionID  string
	RoomCode   string
	RollNumber string
	Payload    interface{}
}

// CountdownPayload is pushed once per second while a session is active
type CountdownPayload struct {
	RemainingSeconds int `json:"remainingSeconds"`
}

// MonitoringStatusPayload drives the "monitoring degraded" indicator
type MonitoringStatusPayload struct {
	Degraded bool `json:"degraded"`
}

// SessionEndedPayload is pushed once when a session is sealed
type SessionEndedPayload struct {
	Reason        string     `json:"reason"`
	EndTime       *time.Time `json:"endTime"`
	WarningsCount int        `json:"warningsCount"`
}

// CapturePayload turns the candidate's camera stream on or off
type CapturePayload struct {
	Active bool `json:"active"`
}

// SignalVerdictPayload tells the browser shim whether to cancel the default action
type SignalVerdictPayload struct {
	Prevent bool `json:"prevent"`
}

// ErrorPayload reports a rejected inbound frame
type ErrorPayload struct {
	Message string `json:"message"`
}
