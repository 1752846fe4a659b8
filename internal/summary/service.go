package summary

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/vthunder/diner/internal/activity"
	"github.com/vthunder/diner/internal/clock"
	"github.com/vthunder/diner/internal/ingredients"
	"github.com/vthunder/diner/internal/metrics"
	"github.com/vthunder/diner/internal/notify"
	"github.com/vthunder/diner/internal/store"
)

// Dish sources
const (
	SourceProfile = "profile"
	SourceSummary = "summary"
)

// Analyzer produces a summary for a day's aggregate and reflections
type Analyzer interface {
	DailyAnalysis(ctx context.Context, req Request) (string, error)
}

// Service runs the daily analysis and records its outcome
type Service struct {
	analyzer Analyzer
	agg      *store.Aggregate
	clock    clock.Clock
	activity *activity.Log  // optional
	outbox   *notify.Outbox // optional
}

// NewService wires the analysis flow. activity and outbox may be nil.
func NewService(analyzer Analyzer, agg *store.Aggregate, clk clock.Clock, act *activity.Log, outbox *notify.Outbox) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{analyzer: analyzer, agg: agg, clock: clk, activity: act, outbox: outbox}
}

// Result is a stored analysis and the dish it produced
type Result struct {
	Analysis store.DailyAnalysis `json:"analysis"`
	Dish     store.DailyDish     `json:"dish"`
}

// Run requests the analysis for day. A service failure raises a notification
// and is returned; ErrNoReflections is returned without one.
func (s *Service) Run(ctx context.Context, day string) (Result, error) {
	var res Result

	behavior, err := s.agg.Today(ctx, day)
	if err != nil {
		return res, err
	}
	reflections, err := s.agg.Reflections(ctx, day)
	if err != nil {
		return res, err
	}
	req := Request{
		ScrollData: ScrollData{
			ScrollDistance: behavior.ScrollDistance,
			ActiveSeconds:  behavior.ActiveSeconds,
			TabSwitches:    behavior.TabSwitches,
		},
	}
	for _, r := range reflections {
		req.Reflections = append(req.Reflections, r.Text)
	}
	if len(req.Reflections) == 0 {
		metrics.SummaryRequests.WithLabelValues("skipped").Inc()
		return res, ErrNoReflections
	}

	text, err := s.analyzer.DailyAnalysis(ctx, req)
	if err != nil {
		s.fail(day, err)
		return res, err
	}

	res.Analysis = store.DailyAnalysis{Date: day, Summary: text, CreatedAt: s.clock.Now()}
	if err := s.agg.SetDailyAnalysis(ctx, res.Analysis); err != nil {
		return res, fmt.Errorf("store analysis: %w", err)
	}

	res.Dish = store.DailyDish{Date: day, Source: SourceSummary}
	if dish, ok := ingredients.DishFromSummary(text); ok {
		res.Dish.Dish = dish
	} else {
		profile, err := s.agg.Profile(ctx, day)
		if err != nil {
			return res, err
		}
		res.Dish.Dish = ingredients.SelectDish(profile)
		res.Dish.Source = SourceProfile
	}
	if _, err := s.agg.RecordDailyDish(ctx, res.Dish); err != nil {
		return res, fmt.Errorf("record dish: %w", err)
	}

	metrics.SummaryRequests.WithLabelValues("ok").Inc()
	if s.activity != nil {
		s.activity.LogSummary(day, res.Dish.Dish.ID)
	}
	log.Printf("[summary] Daily analysis for %s stored, dish %s", day, res.Dish.Dish.ID)
	return res, nil
}

func (s *Service) fail(day string, err error) {
	metrics.SummaryRequests.WithLabelValues("failed").Inc()
	log.Printf("[summary] Daily analysis for %s failed: %v", day, err)

	if s.activity != nil {
		s.activity.LogSummaryFailed(day, err)
	}
	if s.outbox == nil {
		return
	}
	msg := "The daily analysis service is unavailable. Your data is safe; try again later."
	if errors.Is(err, ErrNotConfigured) {
		msg = "No daily analysis service is configured."
	}
	if _, err := s.outbox.Add(notify.KindSummaryFailed, "Daily analysis failed", msg); err != nil {
		log.Printf("[summary] Failed to queue notification: %v", err)
	}
}

// TodaysDish returns the dish for day. A dish from a summary is kept; otherwise
// the dish is recomputed from the current profile and recorded.
func (s *Service) TodaysDish(ctx context.Context, day string) (store.DailyDish, error) {
	snap, err := s.agg.Snapshot(ctx, day)
	if err != nil {
		return store.DailyDish{}, err
	}
	for _, d := range snap.DailyDishes {
		if d.Date == day && d.Source == SourceSummary {
			return d, nil
		}
	}

	d := store.DailyDish{Date: day, Dish: ingredients.SelectDish(snap.Profile), Source: SourceProfile}
	if _, err := s.agg.RecordDailyDish(ctx, d); err != nil {
		return store.DailyDish{}, err
	}
	return d, nil
}
