// Package activity keeps an append-only JSONL record of interventions,
// completions and challenge progress.
package activity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Type identifies what kind of activity this is
type Type string

const (
	TypeAlertTriggered     Type = "alert_triggered"     // Intervention sent to a context
	TypeAlertDropped       Type = "alert_dropped"       // Granted alert had no reachable context
	TypeAlertDismissed     Type = "alert_dismissed"     // Intervention force-dismissed or released
	TypeTaskCompleted      Type = "task_completed"      // User finished task and reflection
	TypeChallengeAssigned  Type = "challenge_assigned"  // First read of a new day
	TypeChallengeCompleted Type = "challenge_completed" // Today's predicate became true
	TypeSummaryCreated     Type = "summary_created"     // Daily analysis stored
	TypeSummaryFailed      Type = "summary_failed"      // Analysis service unavailable
	TypeBrowserExit        Type = "browser_exit"        // Browser process gone, timers paused
)

// Entry represents a single activity log entry
type Entry struct {
	Timestamp time.Time      `json:"ts"`
	Type      Type           `json:"type"`
	Summary   string         `json:"summary"`
	ContextID string         `json:"context_id,omitempty"`
	AlertID   string         `json:"alert_id,omitempty"`
	Reason    string         `json:"reason,omitempty"` // alert reason or dismissal cause
	Data      map[string]any `json:"data,omitempty"`   // Structured details
}

// Log is the activity logger
type Log struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New creates an activity logger under statePath/system
func New(statePath string) *Log {
	return &Log{
		path: filepath.Join(statePath, "system", "activity.jsonl"),
		now:  time.Now,
	}
}

// Path returns the log file location
func (l *Log) Path() string { return l.path }

// Log appends an entry to the activity log
func (l *Log) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// Helper methods for common event types

// LogAlert logs an intervention delivered to a context
func (l *Log) LogAlert(alertID, contextID, reason, cause string, score float64) error {
	return l.Log(Entry{
		Type:      TypeAlertTriggered,
		Summary:   "intervention: " + reason,
		ContextID: contextID,
		AlertID:   alertID,
		Reason:    reason,
		Data: map[string]any{
			"cause": cause,
			"score": score,
		},
	})
}

// LogDropped logs an alert that could not be delivered
func (l *Log) LogDropped(alertID, contextID, reason string) error {
	return l.Log(Entry{
		Type:      TypeAlertDropped,
		Summary:   "no reachable context for " + reason,
		ContextID: contextID,
		AlertID:   alertID,
		Reason:    reason,
	})
}

// LogDismissed logs an intervention cleared without completion
func (l *Log) LogDismissed(alertID, contextID, cause string) error {
	return l.Log(Entry{
		Type:      TypeAlertDismissed,
		Summary:   "intervention released: " + cause,
		ContextID: contextID,
		AlertID:   alertID,
		Reason:    cause,
	})
}

// LogTaskCompleted logs a finished intervention
func (l *Log) LogTaskCompleted(alertID, contextID, taskKind, reflection string, sessions int) error {
	return l.Log(Entry{
		Type:      TypeTaskCompleted,
		Summary:   "completed " + taskKind,
		ContextID: contextID,
		AlertID:   alertID,
		Data: map[string]any{
			"task_kind":  taskKind,
			"reflection": reflection,
			"sessions":   sessions,
		},
	})
}

// LogChallenge logs a challenge assignment or completion
func (l *Log) LogChallenge(t Type, id, day string) error {
	return l.Log(Entry{
		Type:    t,
		Summary: string(t) + ": " + id,
		Data: map[string]any{
			"challenge": id,
			"date":      day,
		},
	})
}

// LogSummary logs a stored daily analysis
func (l *Log) LogSummary(day, dish string) error {
	return l.Log(Entry{
		Type:    TypeSummaryCreated,
		Summary: "daily analysis for " + day,
		Data: map[string]any{
			"date": day,
			"dish": dish,
		},
	})
}

// LogSummaryFailed logs a failed analysis request
func (l *Log) LogSummaryFailed(day string, err error) error {
	return l.Log(Entry{
		Type:    TypeSummaryFailed,
		Summary: "daily analysis failed",
		Data: map[string]any{
			"date":  day,
			"error": err.Error(),
		},
	})
}

// Query methods

// Recent returns the last n entries
func (l *Log) Recent(n int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	if n >= len(entries) {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}

// Today returns entries from today
func (l *Log) Today() ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	now := l.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var result []Entry
	for _, e := range entries {
		if !e.Timestamp.Before(today) {
			result = append(result, e)
		}
	}
	return result, nil
}

// Search searches entries by text (in summary and data)
func (l *Log) Search(query string, limit int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var result []Entry

	// Search from most recent
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := entries[i]
		if strings.Contains(strings.ToLower(e.Summary), query) {
			result = append(result, e)
			continue
		}
		if e.Data != nil {
			dataJSON, _ := json.Marshal(e.Data)
			if strings.Contains(strings.ToLower(string(dataJSON)), query) {
				result = append(result, e)
			}
		}
	}

	return result, nil
}

// ByType returns entries of a specific type, most recent first
func (l *Log) ByType(t Type, limit int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var result []Entry
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		if entries[i].Type == t {
			result = append(result, entries[i])
		}
	}
	return result, nil
}

// readAll reads all entries from the log file
func (l *Log) readAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // skip malformed entries
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
