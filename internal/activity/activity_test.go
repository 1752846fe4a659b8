package activity

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"
)

// helper: create a Log backed by a temp directory
func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	l := New(t.TempDir())
	return l, l.Path()
}

// helper: read all raw entries from the JSONL file
func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var entries []Entry
	for _, line := range splitLines(string(data)) {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		entries = append(entries, e)
	}
	return entries
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// --- Basic write/read ---

func TestLog_WritesJSONL(t *testing.T) {
	log, path := newTestLog(t)

	ts := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	err := log.Log(Entry{
		Timestamp: ts,
		Type:      TypeAlertTriggered,
		Summary:   "hello world",
		ContextID: "tab-1",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Type != TypeAlertTriggered {
		t.Errorf("type: got %q, want %q", e.Type, TypeAlertTriggered)
	}
	if e.ContextID != "tab-1" {
		t.Errorf("context: got %q", e.ContextID)
	}
	if !e.Timestamp.Equal(ts) {
		t.Errorf("timestamp: got %v, want %v", e.Timestamp, ts)
	}
}

func TestLog_AutoTimestamp(t *testing.T) {
	log, path := newTestLog(t)
	fixed := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	log.now = func() time.Time { return fixed }

	if err := log.Log(Entry{Type: TypeAlertDismissed, Summary: "auto-ts"}); err != nil {
		t.Fatal(err)
	}

	entries := readEntries(t, path)
	if len(entries) != 1 || !entries[0].Timestamp.Equal(fixed) {
		t.Errorf("expected one entry at %v, got %+v", fixed, entries)
	}
}

func TestLog_SkipsMalformedLines(t *testing.T) {
	log, path := newTestLog(t)

	if err := log.Log(Entry{Type: TypeAlertTriggered, Summary: "good"}); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("not json at all\n")
	f.Close()

	if err := log.Log(Entry{Type: TypeAlertTriggered, Summary: "good2"}); err != nil {
		t.Fatal(err)
	}

	entries, err := log.readAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
}

func TestLog_EmptyFileReturnsNil(t *testing.T) {
	log, _ := newTestLog(t)
	entries, err := log.readAll()
	if err != nil {
		t.Fatalf("readAll on missing file: %v", err)
	}
	if entries != nil {
		t.Errorf("expected nil entries for missing file")
	}
}

// --- Helper methods ---

func TestLogAlert(t *testing.T) {
	log, _ := newTestLog(t)
	if err := log.LogAlert("a1", "tab-2", "doomscrolling", "burst", 0.8); err != nil {
		t.Fatal(err)
	}
	entries, _ := log.readAll()
	e := entries[0]
	if e.Type != TypeAlertTriggered || e.AlertID != "a1" || e.Reason != "doomscrolling" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Data["cause"] != "burst" {
		t.Errorf("cause: %v", e.Data["cause"])
	}
}

func TestLogTaskCompleted(t *testing.T) {
	log, _ := newTestLog(t)
	log.LogTaskCompleted("a1", "tab-2", "breathing", "felt restless", 3)
	entries, _ := log.readAll()
	e := entries[0]
	if e.Type != TypeTaskCompleted {
		t.Errorf("type: %q", e.Type)
	}
	// JSON numbers decode as float64
	if e.Data["sessions"] != float64(3) || e.Data["reflection"] != "felt restless" {
		t.Errorf("data: %v", e.Data)
	}
}

func TestLogSummaryFailed(t *testing.T) {
	log, _ := newTestLog(t)
	log.LogSummaryFailed("2026-01-15", errors.New("service returned 503"))
	entries, _ := log.readAll()
	if entries[0].Data["error"] != "service returned 503" {
		t.Errorf("error: %v", entries[0].Data["error"])
	}
}

func TestLogChallenge(t *testing.T) {
	log, _ := newTestLog(t)
	log.LogChallenge(TypeChallengeAssigned, "tab-limit", "2026-01-15")
	log.LogChallenge(TypeChallengeCompleted, "tab-limit", "2026-01-15")
	entries, _ := log.readAll()
	if len(entries) != 2 || entries[1].Type != TypeChallengeCompleted {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

// --- Query: Recent ---

func TestRecent_Basic(t *testing.T) {
	log, _ := newTestLog(t)
	for i := 0; i < 10; i++ {
		log.Log(Entry{Type: TypeAlertTriggered, Summary: "entry"})
	}
	entries, err := log.Recent(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3, got %d", len(entries))
	}
}

func TestRecent_Empty(t *testing.T) {
	log, _ := newTestLog(t)
	entries, err := log.Recent(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected 0, got %d", len(entries))
	}
}

// --- Query: Today ---

func TestToday_ReturnsRecentEntries(t *testing.T) {
	log, _ := newTestLog(t)
	now := time.Date(2026, 1, 15, 15, 0, 0, 0, time.Local)
	log.now = func() time.Time { return now }

	log.Log(Entry{Type: TypeTaskCompleted, Summary: "today's entry", Timestamp: now.Add(-time.Hour)})
	log.Log(Entry{Type: TypeTaskCompleted, Summary: "yesterday", Timestamp: now.AddDate(0, 0, -1)})

	entries, err := log.Today()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 today entry, got %d", len(entries))
	}
	if entries[0].Summary != "today's entry" {
		t.Errorf("unexpected entry: %q", entries[0].Summary)
	}
}

// --- Query: Search ---

func TestSearch_BySummaryAndData(t *testing.T) {
	log, _ := newTestLog(t)
	log.Log(Entry{Type: TypeTaskCompleted, Summary: "completed breathing"})
	log.Log(Entry{Type: TypeTaskCompleted, Summary: "nope", Data: map[string]any{"reflection": "BORED again"}})
	log.Log(Entry{Type: TypeTaskCompleted, Summary: "something else entirely"})

	results, err := log.Search("breathing", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 summary result, got %d", len(results))
	}

	results, _ = log.Search("bored", 10)
	if len(results) != 1 {
		t.Errorf("expected 1 data result, got %d", len(results))
	}
}

func TestSearch_Limit(t *testing.T) {
	log, _ := newTestLog(t)
	for i := 0; i < 10; i++ {
		log.Log(Entry{Type: TypeAlertTriggered, Summary: "matching entry"})
	}
	results, err := log.Search("matching", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3, got %d", len(results))
	}
}

// --- Query: ByType ---

func TestByType_Basic(t *testing.T) {
	log, _ := newTestLog(t)
	log.Log(Entry{Type: TypeAlertTriggered, Summary: "alert1"})
	log.Log(Entry{Type: TypeSummaryFailed, Summary: "failed"})
	log.Log(Entry{Type: TypeAlertTriggered, Summary: "alert2"})

	results, err := log.ByType(TypeAlertTriggered, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2, got %d", len(results))
	}
	if results[0].Summary != "alert2" {
		t.Errorf("expected most recent first, got %q", results[0].Summary)
	}
}

// --- Concurrency ---

func TestConcurrentWrites(t *testing.T) {
	log, path := newTestLog(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Log(Entry{Type: TypeAlertTriggered, Summary: "concurrent"})
		}()
	}
	wg.Wait()

	entries := readEntries(t, path)
	if len(entries) != n {
		t.Errorf("expected %d entries, got %d (possible corruption)", n, len(entries))
	}
}
