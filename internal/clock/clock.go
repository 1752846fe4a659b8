// Package clock abstracts wall-clock time and timers so that debounce,
// cooldown and auto-dismiss behavior can be driven deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// DayLayout is the calendar-day key format used by the store and challenges
const DayLayout = "2006-01-02"

// Timer is a cancellable pending callback
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired or was stopped.
	Stop() bool
}

// Clock provides the current time and callback timers
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Day returns the local calendar day of t
func Day(t time.Time) string {
	return t.Format(DayLayout)
}

// Real is the system clock
type Real struct{}

// Now returns time.Now()
func (Real) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc
func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Manual is a clock that only moves when told to. Timers fire synchronously
// inside Advance, in deadline order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	m    *Manual
	at   time.Time
	seq  int
	f    func()
	done bool
}

// NewManual creates a manual clock starting at start
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the manual clock's current time
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules f to run once the clock has advanced by d
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{m: m, at: m.now.Add(d), seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer that comes due.
// Timers scheduled by callbacks fire too if their deadline is within the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.at
		next.done = true
		m.remove(next)
		m.mu.Unlock()

		next.f()
	}
}

// Pending returns the number of timers not yet fired or stopped
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Manual) nextDue(target time.Time) *manualTimer {
	if len(m.timers) == 0 {
		return nil
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	if m.timers[0].at.After(target) {
		return nil
	}
	return m.timers[0]
}

func (m *Manual) remove(t *manualTimer) {
	for i, other := range m.timers {
		if other == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.m.remove(t)
	return true
}
