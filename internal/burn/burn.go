// Package burn decides when browsing behavior warrants a blocking intervention.
//
// A composite score (70% scroll speed, 30% dwell time) is compared against a
// sensitivity threshold. Hard caps on scroll distance, active time and
// instantaneous bursts bypass the score. Every path shares one gate: at most
// one alert may be active process-wide, and a cooldown separates alerts.
package burn

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vthunder/diner/internal/clock"
	"github.com/vthunder/diner/internal/types"
)

const (
	speedWeight     = 0.7
	timeWeight      = 0.3
	speedSaturation = 3500.0 // px/s at which the speed term maxes out
	timeSaturation  = 600.0  // seconds at which the time term maxes out
)

// Reason is the user-facing category of an alert
type Reason string

const (
	ReasonDoomscrolling     Reason = "doomscrolling"
	ReasonSeasoningOverload Reason = "seasoning_overload"
	ReasonSugarRush         Reason = "sugar_rush"
)

var messages = map[Reason]string{
	ReasonDoomscrolling:     "Your dish is burning! Too much grease from endless scrolling.",
	ReasonSeasoningOverload: "Whoa there, chef! You're over-seasoning with all that tab switching.",
	ReasonSugarRush:         "Sweet overload detected! Time to balance your digital diet.",
}

// Message returns the alert text for a reason
func Message(r Reason) string {
	if msg, ok := messages[r]; ok {
		return msg
	}
	return "Your dish needs attention!"
}

// Cause records which rule fired
type Cause string

const (
	CauseScore     Cause = "score"
	CauseScrollCap Cause = "scroll_cap"
	CauseTimeCap   Cause = "time_cap"
	CauseBurst     Cause = "burst"
	CauseRequested Cause = "requested"
)

// Config holds the trigger thresholds
type Config struct {
	Threshold      float64       // composite score needed to fire, in [0,1]
	Cooldown       time.Duration // minimum gap between alerts
	ScrollCap      float64       // cumulative px in one context
	TimeCap        int           // active seconds in one context
	BurstSpeed     float64       // px/s, exclusive
	BurstMinActive int           // seconds, exclusive
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() Config {
	return Config{
		Threshold:      0.75,
		Cooldown:       15 * time.Minute,
		ScrollCap:      10000,
		TimeCap:        3600,
		BurstSpeed:     2000,
		BurstMinActive: 30,
	}
}

// Score computes the composite burn score in [0,1]
func Score(scrollSpeed float64, activeSeconds int) float64 {
	speed := math.Min(1, math.Max(0, scrollSpeed)/speedSaturation)
	dwell := math.Min(1, math.Max(0, float64(activeSeconds))/timeSaturation)
	return speedWeight*speed + timeWeight*dwell
}

// Assess applies the hard caps and then the composite score to a sample.
// It does not consult the gate.
func (c Config) Assess(s types.BehaviorSample) (Cause, float64, bool) {
	score := Score(s.ScrollSpeed, s.ActiveSeconds)

	switch {
	case c.ScrollCap > 0 && s.ScrollDistance >= c.ScrollCap:
		return CauseScrollCap, score, true
	case c.TimeCap > 0 && s.ActiveSeconds >= c.TimeCap:
		return CauseTimeCap, score, true
	case s.ScrollSpeed > c.BurstSpeed && s.ActiveSeconds > c.BurstMinActive:
		return CauseBurst, score, true
	case score >= c.Threshold:
		return CauseScore, score, true
	}
	return "", score, false
}

// Alert is one granted intervention request
type Alert struct {
	ID          string          `json:"id"`
	ContextID   types.ContextID `json:"contextId"`
	URL         string          `json:"url,omitempty"`
	Reason      Reason          `json:"reason"`
	Message     string          `json:"message"`
	Cause       Cause           `json:"cause"`
	Score       float64         `json:"score"`
	TriggeredAt time.Time       `json:"triggeredAt"`
}

// State is the observable BurnAlertState
type State struct {
	LastTriggeredAt      *time.Time `json:"lastTriggeredAt,omitempty"`
	CooldownSeconds      int        `json:"cooldownSeconds"`
	IsAlertActive        bool       `json:"isAlertActive"`
	SensitivityThreshold float64    `json:"sensitivityThreshold"`
	ActiveAlert          *Alert     `json:"activeAlert,omitempty"`
}

// Trigger owns the process-wide alert gate
type Trigger struct {
	mu            sync.Mutex
	cfg           Config
	clock         clock.Clock
	lastTriggered time.Time
	prevTriggered time.Time // restored by Abort
	active        *Alert
	newID         func() string
}

// NewTrigger creates a trigger with no alert history
func NewTrigger(cfg Config, clk clock.Clock) *Trigger {
	return &Trigger{
		cfg:   cfg,
		clock: clk,
		newID: uuid.NewString,
	}
}

// Configure replaces the thresholds (settings changes)
func (t *Trigger) Configure(cfg Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
}

// Config returns the current thresholds
func (t *Trigger) Config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// Evaluate checks a sample against the gate and rules. On success the gate
// is taken (alert active, cooldown restarted) and the alert is returned.
func (t *Trigger) Evaluate(s types.BehaviorSample) (*Alert, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if !t.openLocked(now) {
		return nil, false
	}
	cause, score, ok := t.cfg.Assess(s)
	if !ok {
		return nil, false
	}
	return t.acquireLocked(now, s.ContextID, s.URL, ReasonDoomscrolling, cause, score), true
}

// Request takes the gate for a rule evaluated elsewhere (tab-switch overload).
// Cooldown and mutual exclusion still apply.
func (t *Trigger) Request(contextID types.ContextID, reason Reason) (*Alert, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if !t.openLocked(now) {
		return nil, false
	}
	return t.acquireLocked(now, contextID, "", reason, CauseRequested, 0), true
}

// Release clears the active flag if alertID is the active alert
func (t *Trigger) Release(alertID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil || t.active.ID != alertID {
		return false
	}
	t.active = nil
	return true
}

// Abort releases an alert that was never shown (target unresolvable or send
// failed) and restores the previous cooldown reference.
func (t *Trigger) Abort(alertID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil || t.active.ID != alertID {
		return false
	}
	t.active = nil
	t.lastTriggered = t.prevTriggered
	return true
}

// Active returns a copy of the active alert, or nil
func (t *Trigger) Active() *Alert {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return nil
	}
	a := *t.active
	return &a
}

// State returns the current BurnAlertState
func (t *Trigger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := State{
		CooldownSeconds:      int(t.cfg.Cooldown / time.Second),
		IsAlertActive:        t.active != nil,
		SensitivityThreshold: t.cfg.Threshold,
	}
	if !t.lastTriggered.IsZero() {
		last := t.lastTriggered
		st.LastTriggeredAt = &last
	}
	if t.active != nil {
		a := *t.active
		st.ActiveAlert = &a
	}
	return st
}

func (t *Trigger) openLocked(now time.Time) bool {
	if t.active != nil {
		return false
	}
	if !t.lastTriggered.IsZero() && now.Sub(t.lastTriggered) < t.cfg.Cooldown {
		return false
	}
	return true
}

func (t *Trigger) acquireLocked(now time.Time, contextID types.ContextID, url string, reason Reason, cause Cause, score float64) *Alert {
	t.prevTriggered = t.lastTriggered
	t.lastTriggered = now
	t.active = &Alert{
		ID:          t.newID(),
		ContextID:   contextID,
		URL:         url,
		Reason:      reason,
		Message:     Message(reason),
		Cause:       cause,
		Score:       score,
		TriggeredAt: now,
	}
	a := *t.active
	return &a
}
