package api

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vthunder/diner/internal/challenge"
	"github.com/vthunder/diner/internal/clock"
	"github.com/vthunder/diner/internal/coordinator"
	"github.com/vthunder/diner/internal/ingredients"
	"github.com/vthunder/diner/internal/messages"
	"github.com/vthunder/diner/internal/notify"
	"github.com/vthunder/diner/internal/store"
	"github.com/vthunder/diner/internal/summary"
	"github.com/vthunder/diner/internal/tasks"
	"github.com/vthunder/diner/internal/types"
)

type testEnv struct {
	server  *httptest.Server
	api     *Server
	clock   *clock.Manual
	failing atomic.Bool // analysis service answers 500
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{clock: clock.NewManual(time.Date(2026, 3, 10, 15, 0, 0, 0, time.Local))}
	analysis := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if env.failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"summary": "A balanced day of deep reading."})
	}))
	t.Cleanup(analysis.Close)

	agg := store.NewAggregate(store.NewMemoryKV(), store.DefaultSettings())
	outbox := notify.NewOutbox("")
	evaluator := challenge.NewEvaluator(agg, rand.NewSource(3))

	opts := coordinator.DefaultOptions()
	opts.Clock = env.clock
	coord, err := coordinator.New(coordinator.Deps{
		Aggregate:  agg,
		Selector:   tasks.NewSelector(rand.NewSource(3)),
		Challenges: evaluator,
		Outbox:     outbox,
	}, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(coord.Close)

	env.api = &Server{
		Coordinator: coord,
		Hub:         coordinator.NewHub(coord, nil),
		Aggregate:   agg,
		Challenges:  evaluator,
		Summary:     summary.NewService(summary.NewClient(analysis.URL, "", time.Second, 0), agg, env.clock, nil, outbox),
		Outbox:      outbox,
		Clock:       env.clock,
	}
	env.server = httptest.NewServer(env.api.Router())
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) day() string { return clock.Day(e.clock.Now()) }

func (e *testEnv) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	if code := env.do(t, http.MethodGet, "/healthz", "", nil); code != http.StatusOK {
		t.Errorf("healthz = %d", code)
	}

	resp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "diner_contexts_connected") {
		t.Error("metrics should expose diner_contexts_connected")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	var got store.Settings
	if code := env.do(t, http.MethodGet, "/api/settings", "", &got); code != http.StatusOK {
		t.Fatalf("GET settings = %d", code)
	}
	if got != store.DefaultSettings() {
		t.Errorf("settings = %+v, want defaults", got)
	}

	if code := env.do(t, http.MethodPut, "/api/settings", `{"burnCooldownMinutes": 5}`, &got); code != http.StatusOK {
		t.Fatalf("PUT settings = %d", code)
	}
	if got.CooldownMinutes != 5 || got.ScrollCap != 10000 {
		t.Errorf("settings after PUT = %+v", got)
	}
	if cd := env.api.Coordinator.Trigger().Config().Cooldown; cd != 5*time.Minute {
		t.Errorf("trigger cooldown = %v, want 5m", cd)
	}

	tests := []struct {
		name string
		body string
	}{
		{"out of range", `{"burnCooldownMinutes": 0}`},
		{"unknown field", `{"cooldown": 3}`},
		{"bad preference", `{"taskPreference": "juggling"}`},
		{"not json", `cooldown=3`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := env.do(t, http.MethodPut, "/api/settings", tt.body, nil); code != http.StatusBadRequest {
				t.Errorf("PUT %s = %d, want 400", tt.body, code)
			}
		})
	}

	var after store.Settings
	env.do(t, http.MethodGet, "/api/settings", "", &after)
	if after.CooldownMinutes != 5 {
		t.Errorf("rejected updates must not be saved: %+v", after)
	}
}

func TestProfileAndAggregate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.api.Aggregate.RecordSample(ctx, types.BehaviorSample{
		ContextID:           "tab-1",
		ScrollDistanceDelta: 15000,
		ActiveSecondsDelta:  300,
		Platform:            types.PlatformShortForm,
	}, env.day()); err != nil {
		t.Fatal(err)
	}

	var prof ProfileResponse
	if code := env.do(t, http.MethodGet, "/api/profile", "", &prof); code != http.StatusOK {
		t.Fatalf("GET profile = %d", code)
	}
	if prof.Profile.Sum() != 100 {
		t.Errorf("profile sums to %d", prof.Profile.Sum())
	}
	if prof.Dish.Dish.ID != ingredients.SelectDish(prof.Profile).ID || prof.Date != env.day() {
		t.Errorf("profile response = %+v", prof)
	}

	var snap store.Snapshot
	if code := env.do(t, http.MethodGet, "/api/aggregate", "", &snap); code != http.StatusOK {
		t.Fatalf("GET aggregate = %d", code)
	}
	if snap.TotalScrollDistance != 15000 || len(snap.DailyDishes) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestChallengeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	var first, second store.ChallengeRecord
	env.do(t, http.MethodGet, "/api/challenge", "", &first)
	env.do(t, http.MethodGet, "/api/challenge", "", &second)
	if first.Date != env.day() || first.ID == "" || first.ID != second.ID {
		t.Errorf("challenge = %+v then %+v", first, second)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if code := env.do(t, http.MethodPost, "/api/summary", "", nil); code != http.StatusBadRequest {
		t.Errorf("summary without reflections = %d, want 400", code)
	}

	if _, err := env.api.Aggregate.CompleteSession(ctx, "breathing", "Reading felt better than scrolling", env.day()); err != nil {
		t.Fatal(err)
	}
	var res summary.Result
	if code := env.do(t, http.MethodPost, "/api/summary", "", &res); code != http.StatusOK {
		t.Fatalf("summary = %d", code)
	}
	if res.Dish.Dish.ID != ingredients.DishSalad || res.Analysis.Date != env.day() {
		t.Errorf("result = %+v", res)
	}

	env.failing.Store(true)
	if code := env.do(t, http.MethodPost, "/api/summary", "", nil); code != http.StatusBadGateway {
		t.Errorf("failing service = %d, want 502", code)
	}

	var pending []notify.Notification
	env.do(t, http.MethodGet, "/api/notifications", "", &pending)
	if len(pending) != 1 || pending[0].Kind != notify.KindSummaryFailed {
		t.Fatalf("notifications = %+v", pending)
	}
	if code := env.do(t, http.MethodPost, "/api/notifications/"+pending[0].ID+"/dismiss", "", nil); code != http.StatusNoContent {
		t.Errorf("dismiss = %d", code)
	}
	if code := env.do(t, http.MethodPost, "/api/notifications/nope/dismiss", "", nil); code != http.StatusNotFound {
		t.Errorf("dismiss unknown = %d", code)
	}
	env.do(t, http.MethodGet, "/api/notifications", "", &pending)
	if len(pending) != 0 {
		t.Errorf("dismissed notification still pending: %+v", pending)
	}
}

func TestUpgradeEndpoints(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		id   string
		want int
	}{
		{"basic-kitchen", http.StatusOK},
		{"zen-kitchen", http.StatusConflict},
		{"space-station", http.StatusNotFound},
	}
	for _, tt := range tests {
		if code := env.do(t, http.MethodPost, "/api/upgrades/"+tt.id, "", nil); code != tt.want {
			t.Errorf("unlock %s = %d, want %d", tt.id, code, tt.want)
		}
	}

	var list []UpgradeStatus
	env.do(t, http.MethodGet, "/api/upgrades", "", &list)
	if len(list) != len(store.Upgrades) || !list[0].Unlocked || list[1].Unlockable {
		t.Errorf("upgrades = %+v", list)
	}
}

func TestResetDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.api.Aggregate.RecordTabSwitch(ctx, env.day())

	if code := env.do(t, http.MethodPost, "/api/reset-day", "", nil); code != http.StatusNoContent {
		t.Fatalf("reset = %d", code)
	}
	today, _ := env.api.Aggregate.Today(ctx, env.day())
	if today.TabSwitches != 0 {
		t.Errorf("today after reset = %+v", today)
	}
}

type nopConn struct{}

func (nopConn) Send(string, messages.Message) error { return nil }

func TestContextEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if code := env.do(t, http.MethodGet, "/api/contexts/tab-9/session", "", nil); code != http.StatusNotFound {
		t.Errorf("unknown session = %d", code)
	}

	env.api.Coordinator.Register("tab-9", "https://www.youtube.com/watch?v=1", nopConn{})
	var sd messages.SessionData
	if code := env.do(t, http.MethodGet, "/api/contexts/tab-9/session", "", &sd); code != http.StatusOK {
		t.Fatalf("session = %d", code)
	}
	if sd.ContextID != "tab-9" || sd.Sample.Platform != types.PlatformVideo {
		t.Errorf("session = %+v", sd)
	}

	var list []coordinator.ContextInfo
	env.do(t, http.MethodGet, "/api/contexts", "", &list)
	if len(list) != 1 || !list[0].Focused {
		t.Errorf("contexts = %+v", list)
	}

	var burnResp struct {
		State struct {
			IsAlertActive bool `json:"isAlertActive"`
		} `json:"state"`
	}
	if code := env.do(t, http.MethodGet, "/api/burn", "", &burnResp); code != http.StatusOK || burnResp.State.IsAlertActive {
		t.Errorf("burn = %d %+v", code, burnResp)
	}
}
