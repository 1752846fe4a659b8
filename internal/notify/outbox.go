// Package notify holds dismissible user notifications and forwards them to
// Discord when a channel is configured.
package notify

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notification kinds
const (
	KindSummaryFailed      = "summary_failed"
	KindChallengeCompleted = "challenge_completed"
	KindUpgradeAvailable   = "upgrade_available"
)

// Notification is one user-visible message
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Dismissed bool      `json:"dismissed"`
	Forwarded bool      `json:"forwarded"`
	Failed    bool      `json:"failed,omitempty"` // forwarding gave up
}

// Outbox keeps notifications in memory and appends every change to a JSONL file
type Outbox struct {
	mu    sync.RWMutex
	items map[string]*Notification
	path  string
	now   func() time.Time
}

// NewOutbox creates an outbox persisted at path; an empty path keeps it in memory
func NewOutbox(path string) *Outbox {
	return &Outbox{
		items: make(map[string]*Notification),
		path:  path,
		now:   time.Now,
	}
}

// Add queues a new notification
func (o *Outbox) Add(kind, title, message string) (Notification, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := &Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: o.now(),
	}
	o.items[n.ID] = n
	return *n, o.appendLocked(n)
}

// Pending returns undismissed notifications, oldest first
func (o *Outbox) Pending() []Notification {
	return o.filter(func(n *Notification) bool { return !n.Dismissed })
}

// Unforwarded returns notifications not yet sent to an external channel
func (o *Outbox) Unforwarded() []Notification {
	return o.filter(func(n *Notification) bool { return !n.Forwarded && !n.Failed })
}

func (o *Outbox) filter(keep func(n *Notification) bool) []Notification {
	o.mu.RLock()
	defer o.mu.RUnlock()

	result := make([]Notification, 0)
	for _, n := range o.items {
		if keep(n) {
			result = append(result, *n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

// Dismiss hides a notification. Returns false for unknown ids.
func (o *Outbox) Dismiss(id string) (bool, error) {
	return o.update(id, func(n *Notification) { n.Dismissed = true })
}

// MarkForwarded records a successful external delivery
func (o *Outbox) MarkForwarded(id string) (bool, error) {
	return o.update(id, func(n *Notification) { n.Forwarded = true })
}

// MarkFailed stops further delivery attempts
func (o *Outbox) MarkFailed(id string) (bool, error) {
	return o.update(id, func(n *Notification) { n.Failed = true })
}

func (o *Outbox) update(id string, fn func(n *Notification)) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n, ok := o.items[id]
	if !ok {
		return false, nil
	}
	fn(n)
	return true, o.appendLocked(n)
}

// Load reads the outbox from its JSONL file
func (o *Outbox) Load() error {
	if o.path == "" {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	file, err := os.Open(o.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	o.items = make(map[string]*Notification)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var n Notification
		if err := json.Unmarshal(scanner.Bytes(), &n); err != nil {
			continue // skip malformed lines
		}
		// Later entries override earlier ones (for status updates)
		o.items[n.ID] = &n
	}
	return scanner.Err()
}

func (o *Outbox) appendLocked(n *Notification) error {
	if o.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(o.path), 0755); err != nil {
		return err
	}

	file, err := os.OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = file.Write(append(data, '\n'))
	return err
}
