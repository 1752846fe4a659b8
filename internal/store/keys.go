package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/vthunder/diner/internal/ingredients"
	"github.com/vthunder/diner/internal/tasks"
)

// Persisted keys
const (
	KeyTotalScrollDistance  = "totalScrollDistance"
	KeySessionsCompleted    = "sessionsCompleted"
	KeyBurnAlertsTriggered  = "burnAlertsTriggered"
	KeyKitchenLevel         = "kitchenLevel"
	KeyUnlockedUpgrades     = "unlockedUpgrades"
	KeyDailyDishes          = "dailyDishes"
	KeyTodaysBehavior       = "todaysBehavior"
	KeyTodaysChallenge      = "todaysChallenge"
	KeyReflections          = "reflections"
	KeyDailyAnalysis        = "dailyAnalysis"
	KeyCustomScrollCap      = "customScrollCap"
	KeyCustomTimeCap        = "customTimeCap"
	KeyBurnCooldownMinutes  = "burnCooldownMinutes"
	KeyBurnAlertTimeout     = "burnAlertTimeout"
	KeyTaskPreference       = "taskPreference"
	KeySensitivityThreshold = "sensitivityThreshold"
)

// Bounds on the rolling lists
const (
	MaxDailyDishes      = 7
	MaxReflections      = 30
	MinStoredReflection = 3 // characters, after trimming
	SessionsPerLevel    = 5
)

// ChallengeRecord is today's assigned challenge. ID and Date never change
// once written; Completed only goes from false to true.
type ChallengeRecord struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
}

// DailyDish is the dish recorded for one day
type DailyDish struct {
	Date   string           `json:"date"`
	Dish   ingredients.Dish `json:"dish"`
	Source string           `json:"source"` // "profile" or "summary"
}

// DailyAnalysis is the latest summary from the analysis service
type DailyAnalysis struct {
	Date      string    `json:"date"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
}

// Upgrade is a kitchen upgrade unlocked by completed sessions
type Upgrade struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	UnlockAt int    `json:"unlockAt"`
}

// Upgrades is the upgrade catalogue
var Upgrades = []Upgrade{
	{ID: "basic-kitchen", Name: "Basic Kitchen", Icon: "🏠", UnlockAt: 0},
	{ID: "zen-kitchen", Name: "Zen Kitchen", Icon: "🧘", UnlockAt: 5},
	{ID: "street-food", Name: "Food Truck", Icon: "🚚", UnlockAt: 10},
	{ID: "cafe", Name: "Cozy Café", Icon: "☕", UnlockAt: 15},
	{ID: "restaurant", Name: "Restaurant", Icon: "🍽️", UnlockAt: 25},
	{ID: "master-chef", Name: "Master Chef", Icon: "👨‍🍳", UnlockAt: 50},
}

var (
	ErrUnknownUpgrade  = errors.New("unknown upgrade")
	ErrUpgradeLocked   = errors.New("upgrade not yet unlockable")
	ErrInvalidSettings = errors.New("invalid settings")
)

func findUpgrade(id string) (Upgrade, bool) {
	for _, u := range Upgrades {
		if u.ID == id {
			return u, true
		}
	}
	return Upgrade{}, false
}

// Settings are the user-adjustable thresholds
type Settings struct {
	ScrollCap            int     `json:"customScrollCap" yaml:"scroll_cap"`
	TimeCap              int     `json:"customTimeCap" yaml:"time_cap"`
	CooldownMinutes      int     `json:"burnCooldownMinutes" yaml:"cooldown_minutes"`
	AlertTimeoutSeconds  int     `json:"burnAlertTimeout" yaml:"alert_timeout_seconds"`
	TaskPreference       string  `json:"taskPreference" yaml:"task_preference"`
	SensitivityThreshold float64 `json:"sensitivityThreshold" yaml:"sensitivity_threshold"`
}

// DefaultSettings returns the stock thresholds
func DefaultSettings() Settings {
	return Settings{
		ScrollCap:            10000,
		TimeCap:              3600,
		CooldownMinutes:      15,
		AlertTimeoutSeconds:  90,
		TaskPreference:       tasks.PreferenceAuto,
		SensitivityThreshold: 0.75,
	}
}

// Validate checks every field against its allowed range
func (s Settings) Validate() error {
	switch {
	case s.CooldownMinutes < 1 || s.CooldownMinutes > 60:
		return fmt.Errorf("%w: cooldown must be 1-60 minutes, got %d", ErrInvalidSettings, s.CooldownMinutes)
	case s.AlertTimeoutSeconds < 30 || s.AlertTimeoutSeconds > 120:
		return fmt.Errorf("%w: alert timeout must be 30-120 seconds, got %d", ErrInvalidSettings, s.AlertTimeoutSeconds)
	case s.ScrollCap < 1000 || s.ScrollCap > 100000:
		return fmt.Errorf("%w: scroll cap must be 1000-100000 px, got %d", ErrInvalidSettings, s.ScrollCap)
	case s.TimeCap < 60 || s.TimeCap > 28800:
		return fmt.Errorf("%w: time cap must be 60-28800 seconds, got %d", ErrInvalidSettings, s.TimeCap)
	case s.SensitivityThreshold < 0 || s.SensitivityThreshold > 1:
		return fmt.Errorf("%w: sensitivity threshold must be 0-1, got %v", ErrInvalidSettings, s.SensitivityThreshold)
	}
	if !validPreference(s.TaskPreference) {
		return fmt.Errorf("%w: unknown task preference %q", ErrInvalidSettings, s.TaskPreference)
	}
	return nil
}

func validPreference(p string) bool {
	switch p {
	case tasks.PreferenceAuto, string(tasks.CategoryBreathing), string(tasks.CategoryPuzzle), string(tasks.CategoryReflection):
		return true
	}
	return false
}

// Cooldown returns the cooldown as a duration
func (s Settings) Cooldown() time.Duration {
	return time.Duration(s.CooldownMinutes) * time.Minute
}

// AlertTimeout returns the auto-dismiss timeout as a duration
func (s Settings) AlertTimeout() time.Duration {
	return time.Duration(s.AlertTimeoutSeconds) * time.Second
}
