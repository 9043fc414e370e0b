package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrRoomCodeConflict = errors.New("room code already used by an active room")
	ErrNotFound         = errors.New("record not found")
)
