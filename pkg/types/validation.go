package types

import (
	"regexp"
	"strings"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// since join and submit validate on every request
var (
	userIDRegex   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	roomCodeRegex = regexp.MustCompile(`^[A-Z0-9]{5,10}$`)
)

// DefaultLinkOpenDurationHours applies when a room is created without one
const DefaultLinkOpenDurationHours = 2

// MaxLiveEvents bounds the live view of a session log
const MaxLiveEvents = 50

// Validate checks an exam room definition before it is stored.
// A zero LinkOpenDurationHours is defaulted here so every write path agrees.
func (r *ExamRoom) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if len(r.Name) < 1 || len(r.Name) > 200 {
		return ErrInvalidRoomName
	}
	if strings.TrimSpace(r.FormLink) == "" {
		return ErrInvalidFormLink
	}
	if r.ExamDurationMinutes < 1 || r.ExamDurationMinutes > 1440 {
		return ErrInvalidDuration
	}
	if r.LinkOpenDurationHours == 0 {
		r.LinkOpenDurationHours = DefaultLinkOpenDurationHours
	}
	if r.LinkOpenDurationHours < 1 || r.LinkOpenDurationHours > 168 {
		return ErrInvalidLinkOpen
	}
	if !IsValidUserID(r.CreatedBy) {
		return ErrInvalidCreatedBy
	}
	return nil
}

// Validate checks a violation event carries a known kind and severity
func (e *ViolationEvent) Validate() error {
	if !IsValidKind(e.Kind) {
		return ErrInvalidKind
	}
	if !IsValidSeverity(e.Severity) {
		return ErrInvalidSeverity
	}
	return nil
}

// Validate checks an assessment and fills in default points and the total.
// FUNCTIONAL DISCOVERY: points default to 1 when a question omits them
func (a *Assessment) Validate() error {
	if len(a.Questions) == 0 {
		return ErrEmptyAssessment
	}
	total := 0
	for i := range a.Questions {
		q := &a.Questions[i]
		if !IsValidQuestionType(q.Type) {
			return ErrInvalidQuestionType
		}
		if q.Points <= 0 {
			q.Points = 1
		}
		total += q.Points
	}
	a.TotalPoints = total
	return nil
}

// ValidateCandidate checks the name and roll number supplied on join
func ValidateCandidate(name, rollNumber string) error {
	name = strings.TrimSpace(name)
	if len(name) < 1 || len(name) > 100 {
		return ErrInvalidCandidateName
	}
	if !IsValidUserID(rollNumber) {
		return ErrInvalidRollNumber
	}
	return nil
}

// IsValidUserID checks if a user ID meets format requirements
// FUNCTIONAL DISCOVERY: 1-50 character limit prevents database issues
// and ensures reasonable display in UI components
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidRoomCode checks the shape of a room code, not its existence
func IsValidRoomCode(code string) bool {
	return roomCodeRegex.MatchString(code)
}

// IsValidKind checks if the kind is one the detector or guard can raise
func IsValidKind(kind ViolationKind) bool {
	switch kind {
	case KindNoFace,
		KindMultipleFaces,
		KindGazeAway,
		KindUnauthorizedObject,
		KindTabSwitch,
		KindRightClick,
		KindCopyPaste,
		KindDevtools,
		KindTextSelect,
		KindFaceDetected:
		return true
	default:
		return false
	}
}

func IsValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

func IsValidQuestionType(t QuestionType) bool {
	switch t {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionFillBlank, QuestionEssay:
		return true
	default:
		return false
	}
}
