package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// Store is the persistence the scoring service needs
type Store interface {
	interfaces.AssessmentStore
	GetSession(ctx context.Context, sessionID string) (*types.ExamSession, error)
}

// SubmitRequest is one candidate's answers. SessionID attaches the sealed
// proctoring log of that session; otherwise ProctorLog is attached as sent.
type SubmitRequest struct {
	AssessmentID  string
	CandidateID   string
	CandidateName string
	Answers       []types.Answer
	SessionID     string
	ProctorLog    []types.ViolationEvent
}

// Result is returned to the candidate after a submission
type Result struct {
	Score       int `json:"score"`
	TotalPoints int `json:"totalPoints"`
}

// Service scores submissions against the stored catalog
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a scoring service
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger.Named("scoring"), now: time.Now}
}

// Sync upserts every catalog assessment into the store
func (s *Service) Sync(ctx context.Context, assessments []*types.Assessment) error {
	for _, a := range assessments {
		if err := s.store.UpsertAssessment(ctx, a); err != nil {
			return fmt.Errorf("failed to store assessment %s: %w", a.ID, err)
		}
	}
	s.logger.Info("assessment catalog synced", zap.Int("count", len(assessments)))
	return nil
}

// List returns every assessment with correct answers removed
func (s *Service) List(ctx context.Context) ([]*types.Assessment, error) {
	all, err := s.store.ListAssessments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Assessment, len(all))
	for i, a := range all {
		out[i] = Redact(a)
	}
	return out, nil
}

// Submit scores and stores a submission. A second submission by the same
// candidate returns types.ErrAlreadySubmitted.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	if !types.IsValidUserID(req.CandidateID) {
		return nil, types.ErrInvalidCandidateID
	}
	name := strings.TrimSpace(req.CandidateName)
	if name == "" || len(name) > 100 {
		return nil, types.ErrInvalidCandidateName
	}

	assessment, err := s.store.GetAssessment(ctx, req.AssessmentID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetSubmission(ctx, req.AssessmentID, req.CandidateID); err == nil {
		return nil, types.ErrAlreadySubmitted
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing submission: %w", err)
	}

	attached, err := s.attachedLog(ctx, req)
	if err != nil {
		return nil, err
	}

	sub := &types.Submission{
		AssessmentID:  assessment.ID,
		CandidateID:   req.CandidateID,
		CandidateName: name,
		Answers:       req.Answers,
		Score:         Score(assessment, req.Answers),
		SubmittedAt:   s.now().UTC(),
		AttachedLog:   attached,
	}

	// The unique key is the final arbiter when two submissions race
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("assessment submitted",
		zap.String("assessment_id", assessment.ID),
		zap.String("candidate_id", req.CandidateID),
		zap.Int("score", sub.Score),
		zap.Int("total_points", assessment.TotalPoints),
		zap.Int("attached_events", len(attached)))

	return &Result{Score: sub.Score, TotalPoints: assessment.TotalPoints}, nil
}

func (s *Service) attachedLog(ctx context.Context, req SubmitRequest) ([]types.ViolationEvent, error) {
	if req.SessionID != "" {
		session, err := s.store.GetSession(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		if session.Log == nil {
			return []types.ViolationEvent{}, nil
		}
		return session.Log, nil
	}

	out := make([]types.ViolationEvent, 0, len(req.ProctorLog))
	for _, ev := range req.ProctorLog {
		if err := ev.Validate(); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
