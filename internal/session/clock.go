package session

import "time"

// Clock abstracts time so the countdown can be driven by tests
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of *time.Ticker the countdown needs
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock uses the system clock
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// countdown is the pure remaining-time state of an active session
type countdown struct {
	remaining int
}

func newCountdown(seconds int) countdown {
	if seconds < 0 {
		seconds = 0
	}
	return countdown{remaining: seconds}
}

// advance returns the countdown after the given number of one-second ticks
func (c countdown) advance(ticks int) countdown {
	c.remaining -= ticks
	if c.remaining < 0 {
		c.remaining = 0
	}
	return c
}

func (c countdown) expired() bool {
	return c.remaining <= 0
}

// remainingSeconds computes what is left of an exam that started at start
func remainingSeconds(start time.Time, durationMinutes int, now time.Time) int {
	deadline := start.Add(time.Duration(durationMinutes) * time.Minute)
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	// Round partial seconds up so a fresh session shows its full duration
	return int((left + time.Second - 1) / time.Second)
}
