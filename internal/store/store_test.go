package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/vthunder/diner/internal/ingredients"
	"github.com/vthunder/diner/internal/tasks"
	"github.com/vthunder/diner/internal/types"
)

const testDay = "2026-03-14"

// backends returns a fresh instance of every KV implementation
func backends(t *testing.T) map[string]KV {
	t.Helper()

	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]KV{
		"memory": NewMemoryKV(),
		"sqlite": db,
	}
}

func TestCompareAndSwapVersions(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, _, err := kv.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Expected ErrNotFound, got %v", err)
			}

			ok, err := kv.CompareAndSwap(ctx, "k", 0, []byte(`1`))
			if err != nil || !ok {
				t.Fatalf("Expected create to succeed, got ok=%v err=%v", ok, err)
			}
			ok, _ = kv.CompareAndSwap(ctx, "k", 0, []byte(`2`))
			if ok {
				t.Error("Expected second create to fail")
			}

			val, version, err := kv.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(val) != "1" || version != 1 {
				t.Errorf("Expected (1, v1), got (%s, v%d)", val, version)
			}

			if ok, _ := kv.CompareAndSwap(ctx, "k", 5, []byte(`3`)); ok {
				t.Error("Expected stale version to fail")
			}
			if ok, _ := kv.CompareAndSwap(ctx, "k", 1, []byte(`3`)); !ok {
				t.Error("Expected current version to succeed")
			}

			keys, err := kv.Keys(ctx)
			if err != nil || len(keys) != 1 || keys[0] != "k" {
				t.Errorf("Expected [k], got %v (err=%v)", keys, err)
			}
		})
	}
}

func TestUpdateNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	const writers, perWriter = 8, 25

	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < perWriter; i++ {
						if _, err := UpdateJSON(ctx, kv, "counter", func(n int, _ bool) (int, error) {
							return n + 1, nil
						}); err != nil {
							errs <- err
							return
						}
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Fatalf("Update failed: %v", err)
			}

			got, _, err := GetJSON[int](ctx, kv, "counter")
			if err != nil {
				t.Fatalf("GetJSON failed: %v", err)
			}
			if got != writers*perWriter {
				t.Errorf("Expected %d, got %d", writers*perWriter, got)
			}
		})
	}
}

func TestUpdateUnchangedSkipsWrite(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	if err := PutJSON(ctx, kv, "k", 5); err != nil {
		t.Fatal(err)
	}
	_, before, _ := kv.Get(ctx, "k")

	got, err := UpdateJSON(ctx, kv, "k", func(n int, _ bool) (int, error) { return n, ErrUnchanged })
	if err != nil || got != 5 {
		t.Errorf("Expected 5 with no error, got %d (%v)", got, err)
	}
	if _, after, _ := kv.Get(ctx, "k"); after != before {
		t.Errorf("Expected version %d to be kept, got %d", before, after)
	}
}

func TestUpdateStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := UpdateJSON(ctx, NewMemoryKV(), "k", func(n int, _ bool) (int, error) { return n + 1, nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestClearReadsAsMissing(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	PutJSON(ctx, kv, "k", ChallengeRecord{ID: "x"})
	if err := Clear(ctx, kv, "k"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, found, _ := GetJSON[ChallengeRecord](ctx, kv, "k"); found {
		t.Error("Expected cleared key to read as missing")
	}
	if _, version, _ := kv.Get(ctx, "k"); version != 2 {
		t.Errorf("Expected version 2 after clear, got %d", version)
	}
}

func newAggregate(t *testing.T) *Aggregate {
	t.Helper()
	a := NewAggregate(NewMemoryKV(), DefaultSettings())
	if err := a.Init(context.Background(), testDay); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return a
}

func TestRecordSample(t *testing.T) {
	ctx := context.Background()
	a := newAggregate(t)

	samples := []types.BehaviorSample{
		{ScrollDistanceDelta: 1200, ActiveSecondsDelta: 30, Platform: types.PlatformShortForm},
		{ScrollDistanceDelta: 800, ActiveSecondsDelta: 15, Platform: types.PlatformGeneral},
		{ScrollDistanceDelta: 0, ActiveSecondsDelta: 0, Platform: types.PlatformForum},
	}
	var b types.DailyBehavior
	var err error
	for _, s := range samples {
		if b, err = a.RecordSample(ctx, s, testDay); err != nil {
			t.Fatalf("RecordSample failed: %v", err)
		}
	}

	if b.ScrollDistance != 2000 || b.ActiveSeconds != 45 {
		t.Errorf("Expected 2000px/45s, got %vpx/%ds", b.ScrollDistance, b.ActiveSeconds)
	}
	if b.Platforms[types.PlatformShortForm] != 30 {
		t.Errorf("Expected 30s on short_form, got %d", b.Platforms[types.PlatformShortForm])
	}
	if b.Visited(types.PlatformForum) {
		t.Error("A zero-activity sample must not mark a platform visited")
	}

	total, _, _ := GetJSON[float64](ctx, a.KV(), KeyTotalScrollDistance)
	if total != 2000 {
		t.Errorf("Expected lifetime scroll 2000, got %v", total)
	}

	next, err := a.RecordSample(ctx, types.BehaviorSample{ScrollDistanceDelta: 10}, "2026-03-15")
	if err != nil {
		t.Fatal(err)
	}
	if next.Date != "2026-03-15" || next.ScrollDistance != 10 {
		t.Errorf("Expected fresh day with 10px, got %+v", next)
	}
	total, _, _ = GetJSON[float64](ctx, a.KV(), KeyTotalScrollDistance)
	if total != 2010 {
		t.Errorf("Expected lifetime scroll to carry over, got %v", total)
	}
}

func TestRecordSampleTracksSites(t *testing.T) {
	ctx := context.Background()
	a := newAggregate(t)

	insta := types.BehaviorSample{URL: "https://www.instagram.com/reels/", ActiveSecondsDelta: 20, Platform: types.PlatformSocial}
	twitter := types.BehaviorSample{URL: "https://x.com/home", ActiveSecondsDelta: 10, Platform: types.PlatformSocial}
	other := types.BehaviorSample{URL: "https://go.dev/doc", ActiveSecondsDelta: 5, Platform: types.PlatformGeneral}
	for _, s := range []types.BehaviorSample{insta, twitter, other} {
		if _, err := a.RecordSample(ctx, s, testDay); err != nil {
			t.Fatal(err)
		}
	}

	b, _ := a.Today(ctx, testDay)
	if b.Hosts["instagram.com"] != 20 || b.Hosts["x.com"] != 10 || len(b.Hosts) != 2 {
		t.Errorf("hosts = %v", b.Hosts)
	}
	if !b.VisitedHost("instagram.com") || b.VisitedHost("tiktok.com") {
		t.Errorf("VisitedHost wrong for %v", b.Hosts)
	}
}

func TestCompleteSessionProgression(t *testing.T) {
	ctx := context.Background()
	a := newAggregate(t)

	var p Progress
	var err error
	for i := 0; i < 5; i++ {
		if p, err = a.CompleteSession(ctx, "breathing", fmt.Sprintf("reflection number %d", i), testDay); err != nil {
			t.Fatalf("CompleteSession failed: %v", err)
		}
	}
	if p.SessionsCompleted != 5 || p.KitchenLevel != 2 {
		t.Errorf("Expected 5 sessions at level 2, got %+v", p)
	}

	today, _ := a.Today(ctx, testDay)
	if today.SessionsCompleted != 5 {
		t.Errorf("Expected 5 sessions today, got %d", today.SessionsCompleted)
	}

	p, _ = a.CompleteSession(ctx, "breathing", "ok", testDay)
	if p.ReflectionStored {
		t.Error("Expected 2-character reflection to be dropped")
	}
	p, _ = a.CompleteSession(ctx, tasks.TakeBreak, "", testDay)
	if p.ReflectionStored {
		t.Error("Expected take_break to store no reflection")
	}

	refl, _ := a.Reflections(ctx, testDay)
	if len(refl) != 5 {
		t.Errorf("Expected 5 reflections, got %d", len(refl))
	}
}

func TestKitchenLevelNeverDecreases(t *testing.T) {
	ctx := context.Background()
	a := newAggregate(t)
	PutJSON(ctx, a.KV(), KeyKitchenLevel, 7)

	p, err := a.CompleteSession(ctx, "breathing", "", testDay)
	if err != nil {
		t.Fatal(err)
	}
	if p.KitchenLevel != 7 {
		t.Errorf("Expected level to stay at 7, got %d", p.KitchenLevel)
	}
}

func TestReflectionsCapped(t *testing.T) {
	ctx := context.Background()
	a := newAggregate(t)
	for i := 0; i < MaxReflections+5; i++ {
		a.CompleteSession(ctx, "breathing", fmt.Sprintf("entry %02d", i), testDay)
	}
	refl, _ := a.Reflections(ctx, "")
	if len(refl) != MaxReflections {
		t.Fatalf("Expected %d reflections, got %d", MaxReflections, len(refl))
	}
	if refl[0].Text != "entry 05" {
		t.Errorf("Expected oldest entries dropped, first is %q", refl[0].Text)
	}
}

func TestUnlockUpgrade(t *testing.T) {
	ctx := context.Background()
	a := newAggregate(t)

	if _, err := a.UnlockUpgrade(ctx, "zen-kitchen"); !errors.Is(err, ErrUpgradeLocked) {
		t.Errorf("Expected ErrUpgradeLocked, got %v", err)
	}
	if _, err := a.UnlockUpgrade(ctx, "space-station"); !errors.Is(err, ErrUnknownUpgrade) {
		t.Errorf("Expected ErrUnknownUpgrade, got %v", err)
	}

	PutJSON(ctx, a.KV(), KeySessionsCompleted, 5)
	list, err := a.UnlockUpgrade(ctx, "zen-kitchen")
	if err != nil {
		t.Fatalf("UnlockUpgrade failed: %v", err)
	}
	list, _ = a.UnlockUpgrade(ctx, "zen-kitchen")
	if len(list) != 2 {
		t.Errorf("Expected [basic-kitchen zen-kitchen], got %v", list)
	}
}

func TestRecordDailyDish(t *testing.T) {
	ctx := context.Background()
	a := newAggregate(t)
	bowl := ingredients.Dishes[ingredients.DishMindfulBowl]
	salad := ingredients.Dishes[ingredients.DishSalad]

	a.RecordDailyDish(ctx, DailyDish{Date: testDay, Dish: bowl, Source: "profile"})
	list, _ := a.RecordDailyDish(ctx, DailyDish{Date: testDay, Dish: salad, Source: "summary"})
	if len(list) != 1 || list[0].Dish.ID != ingredients.DishSalad {
		t.Errorf("Expected one salad entry, got %+v", list)
	}

	for i := 1; i <= 10; i++ {
		list, _ = a.RecordDailyDish(ctx, DailyDish{Date: fmt.Sprintf("2026-04-%02d", i), Dish: bowl})
	}
	if len(list) != MaxDailyDishes {
		t.Fatalf("Expected %d dishes, got %d", MaxDailyDishes, len(list))
	}
	if list[0].Date != "2026-04-04" {
		t.Errorf("Expected oldest kept date 2026-04-04, got %s", list[0].Date)
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	a := newAggregate(t)

	s, err := a.Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s != DefaultSettings() {
		t.Errorf("Expected defaults, got %+v", s)
	}

	s.CooldownMinutes = 5
	s.TaskPreference = string(tasks.CategoryPuzzle)
	if err := a.PutSettings(ctx, s); err != nil {
		t.Fatalf("PutSettings failed: %v", err)
	}
	got, _ := a.Settings(ctx)
	if got.CooldownMinutes != 5 || got.TaskPreference != "puzzle" {
		t.Errorf("Expected saved settings, got %+v", got)
	}

	bad := []Settings{
		func() Settings { s := DefaultSettings(); s.CooldownMinutes = 0; return s }(),
		func() Settings { s := DefaultSettings(); s.AlertTimeoutSeconds = 200; return s }(),
		func() Settings { s := DefaultSettings(); s.ScrollCap = 10; return s }(),
		func() Settings { s := DefaultSettings(); s.TimeCap = 30000; return s }(),
		func() Settings { s := DefaultSettings(); s.SensitivityThreshold = 1.5; return s }(),
		func() Settings { s := DefaultSettings(); s.TaskPreference = "juggling"; return s }(),
	}
	for _, b := range bad {
		if err := a.PutSettings(ctx, b); !errors.Is(err, ErrInvalidSettings) {
			t.Errorf("Expected ErrInvalidSettings for %+v, got %v", b, err)
		}
	}
}

func TestResetDayAndSnapshot(t *testing.T) {
	ctx := context.Background()
	a := newAggregate(t)

	a.RecordSample(ctx, types.BehaviorSample{ScrollDistanceDelta: 10000}, testDay)
	PutJSON(ctx, a.KV(), KeyTodaysChallenge, ChallengeRecord{ID: "tab-limit", Date: testDay})

	snap, err := a.Snapshot(ctx, testDay)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Profile != (ingredients.Profile{Grease: 70, Greens: 30}) {
		t.Errorf("Expected grease 70 / greens 30, got %+v", snap.Profile)
	}
	if snap.TodaysChallenge == nil || snap.KitchenLevel != 1 {
		t.Errorf("Expected challenge and level 1, got %+v", snap)
	}

	if err := a.ResetDay(ctx, testDay); err != nil {
		t.Fatalf("ResetDay failed: %v", err)
	}
	snap, _ = a.Snapshot(ctx, testDay)
	if snap.TodaysChallenge != nil || snap.TodaysBehavior.ScrollDistance != 0 {
		t.Errorf("Expected cleared day, got %+v", snap)
	}
	if snap.TotalScrollDistance != 10000 {
		t.Errorf("Expected lifetime total kept, got %v", snap.TotalScrollDistance)
	}
	if snap.Profile.Greens != 100 {
		t.Errorf("Expected all-greens profile after reset, got %+v", snap.Profile)
	}
}
