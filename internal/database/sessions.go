package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"examguard/pkg/types"
)

// sessionSelect joins the room so every session carries its room code
const sessionSelect = `
	SELECT s.id, s.room_id, r.unique_code, s.candidate_name, s.roll_number,
		s.start_time, s.end_time, s.warnings_count
	FROM exam_sessions s
	JOIN exam_rooms r ON r.id = s.room_id`

// CreateSession inserts a session; a (room, roll number) clash returns
// types.ErrDuplicateRollNumber
func (m *Manager) CreateSession(ctx context.Context, session *types.ExamSession) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO exam_sessions (id, room_id, candidate_name, roll_number, start_time, warnings_count)
			VALUES (?, ?, ?, ?, ?, 0)
		`,
			session.ID,
			session.RoomID,
			session.CandidateName,
			session.RollNumber,
			session.StartTime,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return types.ErrDuplicateRollNumber
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session with its full persisted log
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.ExamSession, error) {
	row := m.db.QueryRowContext(ctx, sessionSelect+` WHERE s.id = ?`, sessionID)
	return m.loadSession(ctx, row)
}

// GetSessionByRoll retrieves the session for a roll number in a room
func (m *Manager) GetSessionByRoll(ctx context.Context, roomID, rollNumber string) (*types.ExamSession, error) {
	row := m.db.QueryRowContext(ctx,
		sessionSelect+` WHERE s.room_id = ? AND s.roll_number = ?`, roomID, rollNumber)
	return m.loadSession(ctx, row)
}

// FindSessionByCandidate returns the earliest session for a candidate name
func (m *Manager) FindSessionByCandidate(ctx context.Context, candidateName string) (*types.ExamSession, error) {
	row := m.db.QueryRowContext(ctx,
		sessionSelect+` WHERE s.candidate_name = ? ORDER BY s.start_time ASC LIMIT 1`, candidateName)
	return m.loadSession(ctx, row)
}

// ListUnsealedSessions returns every session still waiting for a seal
func (m *Manager) ListUnsealedSessions(ctx context.Context) ([]*types.ExamSession, error) {
	return m.listSessions(ctx, sessionSelect+` WHERE s.end_time IS NULL ORDER BY s.start_time ASC`)
}

// ListSessions returns a room's sessions without their logs
func (m *Manager) ListSessions(ctx context.Context, roomID string) ([]*types.ExamSession, error) {
	return m.listSessions(ctx, sessionSelect+` WHERE s.room_id = ? ORDER BY s.start_time ASC`, roomID)
}

func (m *Manager) listSessions(ctx context.Context, query string, args ...interface{}) ([]*types.ExamSession, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.ExamSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

func (m *Manager) loadSession(ctx context.Context, row *sql.Row) (*types.ExamSession, error) {
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrSessionNotFound
		}
		return nil, err
	}

	session.Log, err = m.GetSessionEvents(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func scanSession(s scanner) (*types.ExamSession, error) {
	var session types.ExamSession
	var endTime sql.NullTime

	err := s.Scan(
		&session.ID,
		&session.RoomID,
		&session.RoomCode,
		&session.CandidateName,
		&session.RollNumber,
		&session.StartTime,
		&endTime,
		&session.WarningsCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	// FUNCTIONAL DISCOVERY: persisted sessions were activated on join,
	// so status is fully determined by the seal
	session.Status = types.StatusActive
	if endTime.Valid {
		session.EndTime = &endTime.Time
		session.Status = types.StatusEnded
	}
	session.Log = []types.ViolationEvent{}
	return &session, nil
}
