package tracking

import (
	"sync"
	"time"

	"github.com/vthunder/diner/internal/clock"
)

// SessionTimer tracks foreground time for one context, pausing while the
// context is blurred. Elapsed = accumulated + (active ? now - activeSince : 0).
type SessionTimer struct {
	mu          sync.Mutex
	clock       clock.Clock
	accumulated time.Duration
	active      bool
	activeSince time.Time
}

// TimerState is a point-in-time view of a SessionTimer
type TimerState struct {
	AccumulatedSeconds int        `json:"accumulatedSeconds"`
	ElapsedSeconds     int        `json:"elapsedSeconds"`
	IsActive           bool       `json:"isActive"`
	ActiveSince        *time.Time `json:"activeSince,omitempty"`
}

// NewSessionTimer creates a timer; active timers start counting immediately
func NewSessionTimer(clk clock.Clock, active bool) *SessionTimer {
	t := &SessionTimer{clock: clk, active: active}
	if active {
		t.activeSince = clk.Now()
	}
	return t
}

// Focus resumes counting. No-op if already active.
func (t *SessionTimer) Focus() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active {
		return
	}
	t.active = true
	t.activeSince = t.clock.Now()
}

// Blur commits the in-progress interval and pauses. No-op if already paused.
func (t *SessionTimer) Blur() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return
	}
	t.accumulated += t.running()
	t.active = false
	t.activeSince = time.Time{}
}

// Elapsed returns total active time including the in-progress interval
func (t *SessionTimer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active {
		return t.accumulated + t.running()
	}
	return t.accumulated
}

// ElapsedSeconds returns Elapsed floored to whole seconds
func (t *SessionTimer) ElapsedSeconds() int {
	return int(t.Elapsed() / time.Second)
}

// IsActive reports whether the timer is currently counting
func (t *SessionTimer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Reset zeroes accumulated time, keeping the active/paused state
func (t *SessionTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.accumulated = 0
	if t.active {
		t.activeSince = t.clock.Now()
	}
}

// State returns a snapshot for session data replies
func (t *SessionTimer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := t.accumulated
	st := TimerState{
		AccumulatedSeconds: int(t.accumulated / time.Second),
		IsActive:           t.active,
	}
	if t.active {
		since := t.activeSince
		st.ActiveSince = &since
		total += t.running()
	}
	st.ElapsedSeconds = int(total / time.Second)
	return st
}

// running is the in-progress interval; a clock that stepped backwards counts as zero
func (t *SessionTimer) running() time.Duration {
	d := t.clock.Now().Sub(t.activeSince)
	if d < 0 {
		return 0
	}
	return d
}
