// Package api serves the popup and dashboard HTTP surface and the context
// WebSocket endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vthunder/diner/internal/activity"
	"github.com/vthunder/diner/internal/burn"
	"github.com/vthunder/diner/internal/challenge"
	"github.com/vthunder/diner/internal/clock"
	"github.com/vthunder/diner/internal/coordinator"
	"github.com/vthunder/diner/internal/ingredients"
	"github.com/vthunder/diner/internal/metrics"
	"github.com/vthunder/diner/internal/notify"
	"github.com/vthunder/diner/internal/store"
	"github.com/vthunder/diner/internal/summary"
	"github.com/vthunder/diner/internal/types"
)

// Server holds what the handlers read and write
type Server struct {
	Coordinator *coordinator.Coordinator
	Hub         *coordinator.Hub
	Aggregate   *store.Aggregate
	Challenges  *challenge.Evaluator
	Summary     *summary.Service
	Outbox      *notify.Outbox
	Activity    *activity.Log // optional
	Clock       clock.Clock
}

func (s *Server) day() string {
	clk := s.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return clock.Day(clk.Now())
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	router.Get("/healthz", s.handleHealthz)
	router.Get("/metrics", metrics.Handler().ServeHTTP)
	if s.Hub != nil {
		router.Get("/ws", s.Hub.HandleWebSocket)
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/profile", s.handleProfile)
		r.Get("/challenge", s.handleChallenge)
		r.Get("/aggregate", s.handleAggregate)
		r.Get("/burn", s.handleBurn)
		r.Get("/contexts", s.handleContexts)
		r.Get("/contexts/{id}/session", s.handleSession)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Post("/summary", s.handleSummary)
		r.Get("/notifications", s.handleNotifications)
		r.Post("/notifications/{id}/dismiss", s.handleDismissNotification)
		r.Get("/upgrades", s.handleUpgrades)
		r.Post("/upgrades/{id}", s.handleUnlockUpgrade)
		r.Post("/reset-day", s.handleResetDay)
		r.Get("/activity", s.handleActivity)
	})
	return router
}

func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ProfileResponse is today's ingredient profile and dish
type ProfileResponse struct {
	Date     string              `json:"date"`
	Profile  ingredients.Profile `json:"profile"`
	Dominant string              `json:"dominant"`
	Dish     store.DailyDish     `json:"dish"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	day := s.day()

	profile, err := s.Aggregate.Profile(ctx, day)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	dish, err := s.Summary.TodaysDish(ctx, day)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	dominant, _ := profile.Dominant()
	respondJSON(w, ProfileResponse{Date: day, Profile: profile, Dominant: dominant, Dish: dish})
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	rec, _, err := s.Challenges.Check(r.Context(), s.day())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, rec)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Aggregate.Snapshot(r.Context(), s.day())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, snap)
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		State        burn.State                `json:"state"`
		Intervention *coordinator.Intervention `json:"intervention,omitempty"`
	}{State: s.Coordinator.Trigger().State()}
	if in, ok := s.Coordinator.Active(); ok {
		resp.Intervention = &in
	}
	respondJSON(w, resp)
}

func (s *Server) handleContexts(w http.ResponseWriter, r *http.Request) {
	list := s.Coordinator.Contexts()
	if list == nil {
		list = []coordinator.ContextInfo{}
	}
	respondJSON(w, list)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := types.ContextID(chi.URLParam(r, "id"))
	data, err := s.Coordinator.SessionData(id)
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	respondJSON(w, data)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.Aggregate.Settings(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, settings)
}

// handlePutSettings accepts a full or partial settings object
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := s.Aggregate.Settings(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&settings); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Aggregate.PutSettings(ctx, settings); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrInvalidSettings) {
			status = http.StatusBadRequest
		}
		respondError(w, status, err)
		return
	}
	s.Coordinator.ApplySettings(settings)
	respondJSON(w, settings)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	// The analysis outlives a dropped popup connection
	ctx := context.WithoutCancel(r.Context())
	res, err := s.Summary.Run(ctx, s.day())
	switch {
	case errors.Is(err, summary.ErrNoReflections):
		respondError(w, http.StatusBadRequest, err)
	case err != nil:
		respondError(w, http.StatusBadGateway, err)
	default:
		respondJSON(w, res)
	}
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	list := s.Outbox.Pending()
	if list == nil {
		list = []notify.Notification{}
	}
	respondJSON(w, list)
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.Outbox.Dismiss(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("notification not found: "+id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpgradeStatus is one catalogue entry with its unlock state
type UpgradeStatus struct {
	store.Upgrade
	Unlockable bool `json:"unlockable"`
	Unlocked   bool `json:"unlocked"`
}

func (s *Server) handleUpgrades(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Aggregate.Snapshot(r.Context(), s.day())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	unlocked := make(map[string]bool, len(snap.UnlockedUpgrades))
	for _, id := range snap.UnlockedUpgrades {
		unlocked[id] = true
	}
	out := make([]UpgradeStatus, 0, len(store.Upgrades))
	for _, u := range store.Upgrades {
		out = append(out, UpgradeStatus{
			Upgrade:    u,
			Unlockable: snap.SessionsCompleted >= u.UnlockAt,
			Unlocked:   unlocked[u.ID],
		})
	}
	respondJSON(w, out)
}

func (s *Server) handleUnlockUpgrade(w http.ResponseWriter, r *http.Request) {
	list, err := s.Aggregate.UnlockUpgrade(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrUnknownUpgrade):
		respondError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrUpgradeLocked):
		respondError(w, http.StatusConflict, err)
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
	default:
		respondJSON(w, map[string][]string{"unlockedUpgrades": list})
	}
}

func (s *Server) handleResetDay(w http.ResponseWriter, r *http.Request) {
	if err := s.Aggregate.ResetDay(r.Context(), s.day()); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.Activity == nil {
		respondJSON(w, []activity.Entry{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	var entries []activity.Entry
	var err error
	if q := r.URL.Query().Get("q"); q != "" {
		entries, err = s.Activity.Search(q, limit)
	} else {
		entries, err = s.Activity.Recent(limit)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	respondJSON(w, entries)
}
