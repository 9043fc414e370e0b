package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// UpsertAssessment stores or replaces a catalog entry
func (m *Manager) UpsertAssessment(ctx context.Context, a *types.Assessment) error {
	questionsJSON, err := json.Marshal(a.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO assessments (id, title, questions, total_points, updated_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				questions = excluded.questions,
				total_points = excluded.total_points,
				updated_at = CURRENT_TIMESTAMP
		`, a.ID, a.Title, string(questionsJSON), a.TotalPoints)
		if err != nil {
			return fmt.Errorf("failed to upsert assessment: %w", err)
		}
		return nil
	})
}

// GetAssessment retrieves one assessment including correct answers
func (m *Manager) GetAssessment(ctx context.Context, id string) (*types.Assessment, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT id, title, questions, total_points FROM assessments WHERE id = ?`, id)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrAssessmentNotFound
	}
	return a, err
}

// ListAssessments returns the catalog ordered by ID
func (m *Manager) ListAssessments(ctx context.Context) ([]*types.Assessment, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, title, questions, total_points FROM assessments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []*types.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assessment rows: %w", err)
	}
	return list, nil
}

// CreateSubmission inserts a scored submission; a repeat returns types.ErrAlreadySubmitted
func (m *Manager) CreateSubmission(ctx context.Context, sub *types.Submission) error {
	answersJSON, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}
	attached := sub.AttachedLog
	if attached == nil {
		attached = []types.ViolationEvent{}
	}
	logJSON, err := json.Marshal(attached)
	if err != nil {
		return fmt.Errorf("failed to marshal attached log: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO submissions (assessment_id, candidate_id, candidate_name, answers, score, submitted_at, attached_log)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			sub.AssessmentID,
			sub.CandidateID,
			sub.CandidateName,
			string(answersJSON),
			sub.Score,
			sub.SubmittedAt,
			string(logJSON),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return types.ErrAlreadySubmitted
			}
			return fmt.Errorf("failed to insert submission: %w", err)
		}
		return nil
	})
}

// GetSubmission retrieves a candidate's submission for an assessment
func (m *Manager) GetSubmission(ctx context.Context, assessmentID, candidateID string) (*types.Submission, error) {
	var sub types.Submission
	var answersJSON, logJSON string

	err := m.db.QueryRowContext(ctx, `
		SELECT assessment_id, candidate_id, candidate_name, answers, score, submitted_at, attached_log
		FROM submissions
		WHERE assessment_id = ? AND candidate_id = ?
	`, assessmentID, candidateID).Scan(
		&sub.AssessmentID,
		&sub.CandidateID,
		&sub.CandidateName,
		&answersJSON,
		&sub.Score,
		&sub.SubmittedAt,
		&logJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query submission: %w", err)
	}

	if err := json.Unmarshal([]byte(answersJSON), &sub.Answers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
	}
	if err := json.Unmarshal([]byte(logJSON), &sub.AttachedLog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attached log: %w", err)
	}
	return &sub, nil
}

func scanAssessment(s scanner) (*types.Assessment, error) {
	var a types.Assessment
	var questionsJSON string
	if err := s.Scan(&a.ID, &a.Title, &questionsJSON, &a.TotalPoints); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan assessment: %w", err)
	}
	if err := json.Unmarshal([]byte(questionsJSON), &a.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}
	return &a, nil
}
