package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/vthunder/diner/internal/ingredients"
	"github.com/vthunder/diner/internal/tasks"
	"github.com/vthunder/diner/internal/types"
)

// Aggregate is the typed view over the persisted keys
type Aggregate struct {
	kv       KV
	defaults Settings
}

// NewAggregate wraps kv. defaults fill in settings that were never saved.
func NewAggregate(kv KV, defaults Settings) *Aggregate {
	return &Aggregate{kv: kv, defaults: defaults}
}

// KV exposes the underlying store
func (a *Aggregate) KV() KV { return a.kv }

// Init writes starting values for keys that have never been set
func (a *Aggregate) Init(ctx context.Context, day string) error {
	inits := []struct {
		key   string
		value any
	}{
		{KeyTotalScrollDistance, 0},
		{KeySessionsCompleted, 0},
		{KeyBurnAlertsTriggered, 0},
		{KeyKitchenLevel, 1},
		{KeyUnlockedUpgrades, []string{Upgrades[0].ID}},
		{KeyDailyDishes, []DailyDish{}},
		{KeyReflections, []types.Reflection{}},
		{KeyTodaysBehavior, types.NewDailyBehavior(day)},
	}
	for _, in := range inits {
		if _, err := InitJSON(ctx, a.kv, in.key, in.value); err != nil {
			return fmt.Errorf("init %s: %w", in.key, err)
		}
	}
	return nil
}

// rollover returns today's behavior, starting fresh when the stored day is stale
func rollover(b types.DailyBehavior, exists bool, day string) types.DailyBehavior {
	if !exists || b.Date != day {
		return types.NewDailyBehavior(day)
	}
	if b.Platforms == nil {
		b.Platforms = make(map[types.PlatformTag]int)
	}
	if b.Hosts == nil {
		b.Hosts = make(map[string]int)
	}
	return b
}

// RecordSample folds a sample's deltas into the lifetime and daily totals
func (a *Aggregate) RecordSample(ctx context.Context, s types.BehaviorSample, day string) (types.DailyBehavior, error) {
	if s.ScrollDistanceDelta > 0 {
		if _, err := UpdateJSON(ctx, a.kv, KeyTotalScrollDistance, func(total float64, _ bool) (float64, error) {
			return total + s.ScrollDistanceDelta, nil
		}); err != nil {
			return types.DailyBehavior{}, err
		}
	}

	return UpdateJSON(ctx, a.kv, KeyTodaysBehavior, func(b types.DailyBehavior, exists bool) (types.DailyBehavior, error) {
		b = rollover(b, exists, day)
		b.ScrollDistance += s.ScrollDistanceDelta
		b.ActiveSeconds += s.ActiveSecondsDelta
		if s.ActiveSecondsDelta > 0 {
			b.Platforms[s.Platform] += s.ActiveSecondsDelta
			if host := types.KnownHost(s.URL); host != "" {
				b.Hosts[host] += s.ActiveSecondsDelta
			}
		}
		return b, nil
	})
}

// RecordTabSwitch counts one tab activation for today
func (a *Aggregate) RecordTabSwitch(ctx context.Context, day string) (types.DailyBehavior, error) {
	return UpdateJSON(ctx, a.kv, KeyTodaysBehavior, func(b types.DailyBehavior, exists bool) (types.DailyBehavior, error) {
		b = rollover(b, exists, day)
		b.TabSwitches++
		return b, nil
	})
}

// RecordBurnAlert increments the lifetime alert counter
func (a *Aggregate) RecordBurnAlert(ctx context.Context) (int, error) {
	return UpdateJSON(ctx, a.kv, KeyBurnAlertsTriggered, func(n int, _ bool) (int, error) {
		return n + 1, nil
	})
}

// Progress is the result of completing a session
type Progress struct {
	SessionsCompleted int  `json:"sessionsCompleted"`
	KitchenLevel      int  `json:"kitchenLevel"`
	ReflectionStored  bool `json:"reflectionStored"`
}

// CompleteSession records a finished intervention
func (a *Aggregate) CompleteSession(ctx context.Context, kind, reflection, day string) (Progress, error) {
	var p Progress

	sessions, err := UpdateJSON(ctx, a.kv, KeySessionsCompleted, func(n int, _ bool) (int, error) {
		return n + 1, nil
	})
	if err != nil {
		return p, err
	}
	p.SessionsCompleted = sessions

	level, err := UpdateJSON(ctx, a.kv, KeyKitchenLevel, func(old int, _ bool) (int, error) {
		next := max(old, sessions/SessionsPerLevel+1)
		if next == old {
			return old, ErrUnchanged
		}
		return next, nil
	})
	if err != nil {
		return p, err
	}
	p.KitchenLevel = level

	if _, err := UpdateJSON(ctx, a.kv, KeyTodaysBehavior, func(b types.DailyBehavior, exists bool) (types.DailyBehavior, error) {
		b = rollover(b, exists, day)
		b.SessionsCompleted++
		return b, nil
	}); err != nil {
		return p, err
	}

	text := strings.TrimSpace(reflection)
	if kind != tasks.TakeBreak && utf8.RuneCountInString(text) >= MinStoredReflection {
		if _, err := UpdateJSON(ctx, a.kv, KeyReflections, func(list []types.Reflection, _ bool) ([]types.Reflection, error) {
			list = append(list, types.Reflection{Date: day, Text: text})
			if len(list) > MaxReflections {
				list = list[len(list)-MaxReflections:]
			}
			return list, nil
		}); err != nil {
			return p, err
		}
		p.ReflectionStored = true
	}
	return p, nil
}

// UnlockUpgrade adds an upgrade to the unlocked set once enough sessions are done
func (a *Aggregate) UnlockUpgrade(ctx context.Context, id string) ([]string, error) {
	up, ok := findUpgrade(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUpgrade, id)
	}

	sessions, _, err := GetJSON[int](ctx, a.kv, KeySessionsCompleted)
	if err != nil {
		return nil, err
	}
	if sessions < up.UnlockAt {
		return nil, fmt.Errorf("%w: %s needs %d sessions, have %d", ErrUpgradeLocked, id, up.UnlockAt, sessions)
	}

	return UpdateJSON(ctx, a.kv, KeyUnlockedUpgrades, func(list []string, _ bool) ([]string, error) {
		if slices.Contains(list, id) {
			return list, ErrUnchanged
		}
		return append(list, id), nil
	})
}

// RecordDailyDish stores the dish for d.Date, replacing an earlier dish for the
// same day, and keeps the last MaxDailyDishes days
func (a *Aggregate) RecordDailyDish(ctx context.Context, d DailyDish) ([]DailyDish, error) {
	return UpdateJSON(ctx, a.kv, KeyDailyDishes, func(list []DailyDish, _ bool) ([]DailyDish, error) {
		if n := len(list); n > 0 && list[n-1].Date == d.Date {
			list[n-1] = d
			return list, nil
		}
		list = append(list, d)
		if len(list) > MaxDailyDishes {
			list = list[len(list)-MaxDailyDishes:]
		}
		return list, nil
	})
}

// Today returns today's behavior; a stale stored day reads as empty
func (a *Aggregate) Today(ctx context.Context, day string) (types.DailyBehavior, error) {
	b, found, err := GetJSON[types.DailyBehavior](ctx, a.kv, KeyTodaysBehavior)
	if err != nil {
		return types.DailyBehavior{}, err
	}
	return rollover(b, found, day), nil
}

// SessionsCompleted returns the lifetime session count
func (a *Aggregate) SessionsCompleted(ctx context.Context) (int, error) {
	n, _, err := GetJSON[int](ctx, a.kv, KeySessionsCompleted)
	return n, err
}

// Profile recomputes today's ingredient profile
func (a *Aggregate) Profile(ctx context.Context, day string) (ingredients.Profile, error) {
	b, err := a.Today(ctx, day)
	if err != nil {
		return ingredients.Profile{}, err
	}
	sessions, err := a.SessionsCompleted(ctx)
	if err != nil {
		return ingredients.Profile{}, err
	}
	return ingredients.Normalize(b.ScrollDistance, float64(b.ActiveSeconds), b.TabSwitches, sessions), nil
}

// Reflections returns the stored reflections, optionally limited to one day
func (a *Aggregate) Reflections(ctx context.Context, day string) ([]types.Reflection, error) {
	list, _, err := GetJSON[[]types.Reflection](ctx, a.kv, KeyReflections)
	if err != nil || day == "" {
		return list, err
	}
	var out []types.Reflection
	for _, r := range list {
		if r.Date == day {
			out = append(out, r)
		}
	}
	return out, nil
}

// SetDailyAnalysis stores the latest summary
func (a *Aggregate) SetDailyAnalysis(ctx context.Context, da DailyAnalysis) error {
	return PutJSON(ctx, a.kv, KeyDailyAnalysis, da)
}

// DailyAnalysis returns the latest summary, if any
func (a *Aggregate) DailyAnalysis(ctx context.Context) (*DailyAnalysis, error) {
	da, found, err := GetJSON[DailyAnalysis](ctx, a.kv, KeyDailyAnalysis)
	if err != nil || !found {
		return nil, err
	}
	return &da, nil
}

// Challenge returns the stored challenge record, if any
func (a *Aggregate) Challenge(ctx context.Context) (*ChallengeRecord, error) {
	rec, found, err := GetJSON[ChallengeRecord](ctx, a.kv, KeyTodaysChallenge)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

// ResetDay clears today's behavior, challenge and dishes
func (a *Aggregate) ResetDay(ctx context.Context, day string) error {
	if err := PutJSON(ctx, a.kv, KeyTodaysBehavior, types.NewDailyBehavior(day)); err != nil {
		return err
	}
	if err := Clear(ctx, a.kv, KeyTodaysChallenge); err != nil {
		return err
	}
	return PutJSON(ctx, a.kv, KeyDailyDishes, []DailyDish{})
}

// Settings returns the saved settings layered over the defaults
func (a *Aggregate) Settings(ctx context.Context) (Settings, error) {
	s := a.defaults
	if err := overlay(ctx, a.kv, KeyCustomScrollCap, &s.ScrollCap); err != nil {
		return s, err
	}
	if err := overlay(ctx, a.kv, KeyCustomTimeCap, &s.TimeCap); err != nil {
		return s, err
	}
	if err := overlay(ctx, a.kv, KeyBurnCooldownMinutes, &s.CooldownMinutes); err != nil {
		return s, err
	}
	if err := overlay(ctx, a.kv, KeyBurnAlertTimeout, &s.AlertTimeoutSeconds); err != nil {
		return s, err
	}
	if err := overlay(ctx, a.kv, KeyTaskPreference, &s.TaskPreference); err != nil {
		return s, err
	}
	if err := overlay(ctx, a.kv, KeySensitivityThreshold, &s.SensitivityThreshold); err != nil {
		return s, err
	}
	return s, nil
}

func overlay[T any](ctx context.Context, kv KV, key string, dst *T) error {
	v, found, err := GetJSON[T](ctx, kv, key)
	if err != nil {
		return err
	}
	if found {
		*dst = v
	}
	return nil
}

// PutSettings validates and saves every setting
func (a *Aggregate) PutSettings(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := PutJSON(ctx, a.kv, KeyCustomScrollCap, s.ScrollCap); err != nil {
		return err
	}
	if err := PutJSON(ctx, a.kv, KeyCustomTimeCap, s.TimeCap); err != nil {
		return err
	}
	if err := PutJSON(ctx, a.kv, KeyBurnCooldownMinutes, s.CooldownMinutes); err != nil {
		return err
	}
	if err := PutJSON(ctx, a.kv, KeyBurnAlertTimeout, s.AlertTimeoutSeconds); err != nil {
		return err
	}
	if err := PutJSON(ctx, a.kv, KeyTaskPreference, s.TaskPreference); err != nil {
		return err
	}
	return PutJSON(ctx, a.kv, KeySensitivityThreshold, s.SensitivityThreshold)
}

// Snapshot is every persisted value plus the derived profile
type Snapshot struct {
	TotalScrollDistance float64             `json:"totalScrollDistance"`
	SessionsCompleted   int                 `json:"sessionsCompleted"`
	BurnAlertsTriggered int                 `json:"burnAlertsTriggered"`
	KitchenLevel        int                 `json:"kitchenLevel"`
	UnlockedUpgrades    []string            `json:"unlockedUpgrades"`
	DailyDishes         []DailyDish         `json:"dailyDishes"`
	TodaysBehavior      types.DailyBehavior `json:"todaysBehavior"`
	TodaysChallenge     *ChallengeRecord    `json:"todaysChallenge,omitempty"`
	Reflections         []types.Reflection  `json:"reflections"`
	DailyAnalysis       *DailyAnalysis      `json:"dailyAnalysis,omitempty"`
	Settings            Settings            `json:"settings"`
	Profile             ingredients.Profile `json:"profile"`
}

// Snapshot reads the whole aggregate
func (a *Aggregate) Snapshot(ctx context.Context, day string) (Snapshot, error) {
	var s Snapshot
	var err error

	if s.TotalScrollDistance, _, err = GetJSON[float64](ctx, a.kv, KeyTotalScrollDistance); err != nil {
		return s, err
	}
	if s.SessionsCompleted, _, err = GetJSON[int](ctx, a.kv, KeySessionsCompleted); err != nil {
		return s, err
	}
	if s.BurnAlertsTriggered, _, err = GetJSON[int](ctx, a.kv, KeyBurnAlertsTriggered); err != nil {
		return s, err
	}
	if s.KitchenLevel, _, err = GetJSON[int](ctx, a.kv, KeyKitchenLevel); err != nil {
		return s, err
	}
	if s.UnlockedUpgrades, _, err = GetJSON[[]string](ctx, a.kv, KeyUnlockedUpgrades); err != nil {
		return s, err
	}
	if s.DailyDishes, _, err = GetJSON[[]DailyDish](ctx, a.kv, KeyDailyDishes); err != nil {
		return s, err
	}
	if s.TodaysBehavior, err = a.Today(ctx, day); err != nil {
		return s, err
	}
	if s.TodaysChallenge, err = a.Challenge(ctx); err != nil {
		return s, err
	}
	if s.Reflections, err = a.Reflections(ctx, ""); err != nil {
		return s, err
	}
	if s.DailyAnalysis, err = a.DailyAnalysis(ctx); err != nil {
		return s, err
	}
	if s.Settings, err = a.Settings(ctx); err != nil {
		return s, err
	}

	b := s.TodaysBehavior
	s.Profile = ingredients.Normalize(b.ScrollDistance, float64(b.ActiveSeconds), b.TabSwitches, s.SessionsCompleted)
	return s, nil
}
