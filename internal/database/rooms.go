package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

const roomColumns = `id, name, form_link, exam_duration_minutes, link_open_duration_hours,
	unique_code, created_by, created_at, is_active`

// CreateRoom inserts a room; an active code clash returns interfaces.ErrRoomCodeConflict
func (m *Manager) CreateRoom(ctx context.Context, room *types.ExamRoom) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO exam_rooms (`+roomColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			room.ID,
			room.Name,
			room.FormLink,
			room.ExamDurationMinutes,
			room.LinkOpenDurationHours,
			room.UniqueCode,
			room.CreatedBy,
			room.CreatedAt,
			room.IsActive,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("room code %s: %w", room.UniqueCode, interfaces.ErrRoomCodeConflict)
			}
			return fmt.Errorf("failed to insert room: %w", err)
		}
		return nil
	})
}

// GetRoom retrieves a room by ID
func (m *Manager) GetRoom(ctx context.Context, roomID string) (*types.ExamRoom, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM exam_rooms WHERE id = ?`, roomID)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrRoomNotFound
	}
	return room, err
}

// GetRoomByCode retrieves the active room holding code
func (m *Manager) GetRoomByCode(ctx context.Context, code string) (*types.ExamRoom, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM exam_rooms WHERE unique_code = ? AND is_active = 1`, code)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrRoomNotFound
	}
	return room, err
}

// ListRoomsByCode returns every room that has held code, the active one
// first and then newest first
func (m *Manager) ListRoomsByCode(ctx context.Context, code string) ([]*types.ExamRoom, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM exam_rooms WHERE unique_code = ?
		 ORDER BY is_active DESC, created_at DESC`, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms by code: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rooms []*types.ExamRoom
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// ListRooms returns every room, newest first
func (m *Manager) ListRooms(ctx context.Context) ([]*types.ExamRoom, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM exam_rooms ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rooms []*types.ExamRoom
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room rows: %w", err)
	}
	return rooms, nil
}

// CodeInUse reports whether an active room holds code, or a closed room
// holding it still has unsealed sessions
func (m *Manager) CodeInUse(ctx context.Context, code string) (bool, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exam_rooms r
		 WHERE r.unique_code = ? AND (r.is_active = 1 OR EXISTS (
		     SELECT 1 FROM exam_sessions s WHERE s.room_id = r.id AND s.end_time IS NULL))`, code).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check room code: %w", err)
	}
	return count > 0, nil
}

// DeactivateRoom marks a room inactive so its code can be reused
func (m *Manager) DeactivateRoom(ctx context.Context, roomID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `UPDATE exam_rooms SET is_active = 0 WHERE id = ?`, roomID)
		if err != nil {
			return fmt.Errorf("failed to deactivate room: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.ErrRoomNotFound
		}
		return nil
	})
}

// DeleteRoom removes a room; sessions and their events go with it via ON DELETE CASCADE
func (m *Manager) DeleteRoom(ctx context.Context, roomID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `DELETE FROM exam_rooms WHERE id = ?`, roomID)
		if err != nil {
			return fmt.Errorf("failed to delete room: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.ErrRoomNotFound
		}
		return nil
	})
}

func scanRoom(s scanner) (*types.ExamRoom, error) {
	var room types.ExamRoom
	err := s.Scan(
		&room.ID,
		&room.Name,
		&room.FormLink,
		&room.ExamDurationMinutes,
		&room.LinkOpenDurationHours,
		&room.UniqueCode,
		&room.CreatedBy,
		&room.CreatedAt,
		&room.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan room: %w", err)
	}
	return &room, nil
}
