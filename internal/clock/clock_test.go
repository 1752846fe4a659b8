package clock

import (
	"testing"
	"time"
)

func TestManualFiresInOrder(t *testing.T) {
	start := time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC)
	m := NewManual(start)

	var fired []string
	m.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	m.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	m.AfterFunc(10*time.Second, func() { fired = append(fired, "late") })

	m.Advance(5 * time.Second)

	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Fatalf("Expected [a b], got %v", fired)
	}
	if !m.Now().Equal(start.Add(5 * time.Second)) {
		t.Errorf("Expected clock at +5s, got %v", m.Now())
	}
	if m.Pending() != 1 {
		t.Errorf("Expected 1 pending timer, got %d", m.Pending())
	}
}

func TestManualStop(t *testing.T) {
	m := NewManual(time.Now())
	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("Expected first Stop to return true")
	}
	if timer.Stop() {
		t.Error("Expected second Stop to return false")
	}
	m.Advance(2 * time.Second)
	if fired {
		t.Error("Stopped timer fired")
	}
}

func TestManualCallbackSchedulesWithinWindow(t *testing.T) {
	m := NewManual(time.Now())
	count := 0
	var tick func()
	tick = func() {
		count++
		m.AfterFunc(time.Second, tick)
	}
	m.AfterFunc(time.Second, tick)

	m.Advance(3500 * time.Millisecond)
	if count != 3 {
		t.Errorf("Expected 3 ticks, got %d", count)
	}
}
