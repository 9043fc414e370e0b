package logbook

import "errors"

var ErrSessionNotOpen = errors.New("session log is not open")
