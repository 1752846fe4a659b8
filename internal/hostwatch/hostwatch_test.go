package hostwatch

import (
	"testing"
	"time"
)

func TestPollTransitions(t *testing.T) {
	gone, back := 0, 0
	w := New([]string{"Firefox"}, time.Second, func() { gone++ }, func() { back++ })

	running := 2
	w.count = func(names []string) int {
		if len(names) != 1 || names[0] != "firefox" {
			t.Fatalf("expected lowercased names, got %v", names)
		}
		return running
	}

	w.poll()
	if gone != 0 || back != 0 {
		t.Fatalf("expected no callbacks while present, got gone=%d back=%d", gone, back)
	}

	running = 0
	w.poll()
	w.poll()
	if gone != 1 {
		t.Errorf("expected one onGone, got %d", gone)
	}
	if w.Present() {
		t.Error("expected Present() false")
	}

	running = 1
	w.poll()
	if back != 1 || !w.Present() {
		t.Errorf("expected one onBack and Present(), got back=%d", back)
	}
}

func TestMatches(t *testing.T) {
	names := []string{"chrome", "firefox"}
	if !matches("google chrome helper", names) {
		t.Error("expected chrome helper to match")
	}
	if matches("bash", names) {
		t.Error("expected bash not to match")
	}
}

func TestStartStop(t *testing.T) {
	w := New([]string{"chrome"}, time.Hour, nil, nil)
	w.count = func([]string) int { return 1 }
	w.Start()
	w.Start()
	w.Stop()
	w.Stop()
}
