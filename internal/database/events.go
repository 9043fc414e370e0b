package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"examguard/pkg/types"
)

// AppendEvent stores one event for an unsealed session.
// The INSERT ... SELECT only matches while end_time is NULL; the trigger in
// the schema is the backstop for writers that bypass this method.
func (m *Manager) AppendEvent(ctx context.Context, sessionID string, seq int, ev types.ViolationEvent) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT INTO violation_events (session_id, seq, timestamp, kind, severity, message)
			SELECT id, ?, ?, ?, ?, ?
			FROM exam_sessions
			WHERE id = ? AND end_time IS NULL
		`,
			seq,
			ev.Timestamp,
			ev.Kind,
			ev.Severity,
			ev.Message,
			sessionID,
		)
		if err != nil {
			if isSealedTrigger(err) {
				return types.ErrAlreadySealed
			}
			return fmt.Errorf("failed to insert violation event: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return m.sealOrMissing(ctx, db, sessionID)
		}
		return nil
	})
}

// GetSessionEvents returns the full log in recording order
func (m *Manager) GetSessionEvents(ctx context.Context, sessionID string) ([]types.ViolationEvent, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT timestamp, kind, severity, message
		FROM violation_events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query violation events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []types.ViolationEvent{}
	for rows.Next() {
		var ev types.ViolationEvent
		if err := rows.Scan(&ev.Timestamp, &ev.Kind, &ev.Severity, &ev.Message); err != nil {
			return nil, fmt.Errorf("failed to scan violation event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating violation events: %w", err)
	}
	return events, nil
}

// SealSession sets end_time and warnings_count exactly once
func (m *Manager) SealSession(ctx context.Context, sessionID string, endTime time.Time, warningsCount int) error {
	return m.SealSessionWithLog(ctx, sessionID, endTime, warningsCount, nil)
}

// SealSessionWithLog appends tail starting at sequence number firstSeq and
// seals the session in one transaction, so a failed seal leaves no partial
// tail behind. warnings_count becomes firstSeq + len(tail).
func (m *Manager) SealSessionWithLog(ctx context.Context, sessionID string, endTime time.Time, firstSeq int, tail []types.ViolationEvent) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin seal: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for i, ev := range tail {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO violation_events (session_id, seq, timestamp, kind, severity, message)
				SELECT id, ?, ?, ?, ?, ?
				FROM exam_sessions
				WHERE id = ? AND end_time IS NULL
			`, firstSeq+i, ev.Timestamp, ev.Kind, ev.Severity, ev.Message, sessionID)
			if err != nil {
				if isSealedTrigger(err) {
					return types.ErrAlreadySealed
				}
				return fmt.Errorf("failed to insert client event: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				_ = tx.Rollback()
				return m.sealOrMissing(ctx, db, sessionID)
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE exam_sessions
			SET end_time = ?, warnings_count = ?
			WHERE id = ? AND end_time IS NULL
		`, endTime, firstSeq+len(tail), sessionID)
		if err != nil {
			return fmt.Errorf("failed to seal session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			_ = tx.Rollback()
			return m.sealOrMissing(ctx, db, sessionID)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit seal: %w", err)
		}
		return nil
	})
}

// sealOrMissing explains a zero-row write against a session
func (m *Manager) sealOrMissing(ctx context.Context, db *sql.DB, sessionID string) error {
	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exam_sessions WHERE id = ?`, sessionID).Scan(&count); err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if count == 0 {
		return types.ErrSessionNotFound
	}
	return types.ErrAlreadySealed
}
