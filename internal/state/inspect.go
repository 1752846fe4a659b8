package state

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vthunder/diner/internal/notify"
	"github.com/vthunder/diner/internal/store"
	"github.com/vthunder/diner/internal/types"
)

// Files under the state directory
const (
	ActivityFile      = "system/activity.jsonl"
	NotificationsFile = "system/notifications.jsonl"
	DatabaseFile      = "system/diner.db"
)

// Inspector provides state introspection capabilities
type Inspector struct {
	statePath string
	agg       *store.Aggregate
}

// NewInspector creates a new state inspector
func NewInspector(statePath string, agg *store.Aggregate) *Inspector {
	return &Inspector{statePath: statePath, agg: agg}
}

// StateSummary holds summary of all state
type StateSummary struct {
	Keys                int                 `json:"keys"`
	SessionsCompleted   int                 `json:"sessions_completed"`
	KitchenLevel        int                 `json:"kitchen_level"`
	BurnAlerts          int                 `json:"burn_alerts"`
	Reflections         int                 `json:"reflections"`
	DailyDishes         int                 `json:"daily_dishes"`
	Today               types.DailyBehavior `json:"today"`
	Activity            int                 `json:"activity_entries"`
	Notifications       int                 `json:"notification_entries"`
	PendingNotification int                 `json:"pending_notifications"`
	DatabaseBytes       int64               `json:"database_bytes"`
}

// HealthReport holds health check results
type HealthReport struct {
	Status          string   `json:"status"` // "healthy", "warnings"
	Warnings        []string `json:"warnings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Summary returns a summary of all state components
func (i *Inspector) Summary(ctx context.Context, day string) (*StateSummary, error) {
	summary := &StateSummary{}

	keys, err := i.agg.KV().Keys(ctx)
	if err != nil {
		return nil, err
	}
	summary.Keys = len(keys)

	snap, err := i.agg.Snapshot(ctx, day)
	if err != nil {
		return nil, err
	}
	summary.SessionsCompleted = snap.SessionsCompleted
	summary.KitchenLevel = snap.KitchenLevel
	summary.BurnAlerts = snap.BurnAlertsTriggered
	summary.Reflections = len(snap.Reflections)
	summary.DailyDishes = len(snap.DailyDishes)
	summary.Today = snap.TodaysBehavior

	summary.Activity = i.countJSONL(ActivityFile)
	summary.Notifications = i.countJSONL(NotificationsFile)
	summary.PendingNotification = len(i.notifications().Pending())

	if info, err := os.Stat(filepath.Join(i.statePath, DatabaseFile)); err == nil {
		summary.DatabaseBytes = info.Size()
	}
	return summary, nil
}

// Health runs health checks and returns a report
func (i *Inspector) Health(ctx context.Context, day string) (*HealthReport, error) {
	report := &HealthReport{Status: "healthy"}

	summary, err := i.Summary(ctx, day)
	if err != nil {
		return nil, err
	}

	if summary.Activity > 10000 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Large activity log: %d entries", summary.Activity))
		report.Recommendations = append(report.Recommendations, "Run 'diner-state logs --truncate=1000'")
	}

	// The outbox is append-only; every state change adds a line
	if summary.Notifications > 5000 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Large notification log: %d lines", summary.Notifications))
		report.Recommendations = append(report.Recommendations, "Run 'diner-state notifications --compact'")
	}

	if summary.PendingNotification > 20 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d undismissed notifications", summary.PendingNotification))
		report.Recommendations = append(report.Recommendations, "Dismiss old notifications from the popup or with 'diner-state notifications --clear'")
	}

	settings, err := i.agg.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Stored settings are invalid: %v", err))
		report.Recommendations = append(report.Recommendations, "Save settings again from the settings page")
	}

	if ch, err := i.agg.Challenge(ctx); err == nil && ch != nil && ch.Date != day {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Challenge is from %s", ch.Date))
		report.Recommendations = append(report.Recommendations, "A new challenge is assigned on the next read; no action needed unless the daemon is stopped")
	}

	if len(report.Warnings) > 0 {
		report.Status = "warnings"
	}
	return report, nil
}

// Keys lists stored keys
func (i *Inspector) Keys(ctx context.Context) ([]string, error) {
	return i.agg.KV().Keys(ctx)
}

// Get returns the raw JSON value and version of a key; nil if unset
func (i *Inspector) Get(ctx context.Context, key string) (json.RawMessage, int64, error) {
	raw, version, err := i.agg.KV().Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return json.RawMessage(raw), version, nil
}

// TailLogs returns the last entries of the activity log
func (i *Inspector) TailLogs(count int) ([]map[string]any, error) {
	return i.tailJSONL(ActivityFile, count), nil
}

// TruncateLogs keeps only the last entries of the activity log
func (i *Inspector) TruncateLogs(keep int) error {
	if err := i.truncateJSONL(ActivityFile, keep); err != nil {
		return fmt.Errorf("failed to truncate activity.jsonl: %w", err)
	}
	return nil
}

func (i *Inspector) notifications() *notify.Outbox {
	o := notify.NewOutbox(filepath.Join(i.statePath, NotificationsFile))
	o.Load()
	return o
}

// Notifications returns the undismissed notifications
func (i *Inspector) Notifications() []notify.Notification {
	return i.notifications().Pending()
}

// ClearNotifications dismisses every pending notification
func (i *Inspector) ClearNotifications() (int, error) {
	o := i.notifications()
	cleared := 0
	for _, n := range o.Pending() {
		ok, err := o.Dismiss(n.ID)
		if err != nil {
			return cleared, err
		}
		if ok {
			cleared++
		}
	}
	return cleared, nil
}

// CompactNotifications rewrites the outbox with one line per live notification
func (i *Inspector) CompactNotifications() (int, error) {
	pending := i.notifications().Pending()
	lines := make([]string, 0, len(pending))
	for _, n := range pending {
		data, err := json.Marshal(n)
		if err != nil {
			return 0, err
		}
		lines = append(lines, string(data))
	}
	return len(lines), i.writeJSONL(NotificationsFile, lines)
}

func (i *Inspector) readLines(name string) ([]string, error) {
	file, err := os.Open(filepath.Join(i.statePath, name))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func (i *Inspector) countJSONL(name string) int {
	lines, _ := i.readLines(name)
	return len(lines)
}

func (i *Inspector) tailJSONL(name string, count int) []map[string]any {
	lines, _ := i.readLines(name)

	// Take last N
	if len(lines) > count {
		lines = lines[len(lines)-count:]
	}

	var result []map[string]any
	for _, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			result = append(result, entry)
		}
	}
	return result
}

func (i *Inspector) truncateJSONL(name string, keep int) error {
	lines, err := i.readLines(name)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	// Keep last N
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	return i.writeJSONL(name, lines)
}

func (i *Inspector) writeJSONL(name string, lines []string) error {
	path := filepath.Join(i.statePath, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	return os.WriteFile(path, []byte(content), 0644)
}
