// Package challenge assigns one behavioral goal per calendar day and marks it
// complete once today's aggregate satisfies it.
package challenge

import (
	"context"
	"math/rand"
	"sync"

	"github.com/vthunder/diner/internal/store"
	"github.com/vthunder/diner/internal/types"
)

// Predicate reports whether today's behavior satisfies a challenge
type Predicate func(b types.DailyBehavior) bool

// Challenge is one catalogue entry
type Challenge struct {
	ID    string    `json:"id"`
	Text  string    `json:"text"`
	Check Predicate `json:"-"`
}

// Catalogue is the fixed set of daily challenges, drawn uniformly
var Catalogue = []Challenge{
	{
		ID:   "no-reels",
		Text: "Avoid reels and short-form videos today.",
		Check: func(b types.DailyBehavior) bool {
			return !b.Visited(types.PlatformShortForm, types.PlatformVideo) &&
				!b.VisitedHost("instagram.com")
		},
	},
	{
		ID:    "reading-session",
		Text:  "Complete a 5-min focused reading session.",
		Check: func(b types.DailyBehavior) bool { return b.ActiveSeconds >= 300 },
	},
	{
		ID:    "tab-limit",
		Text:  "Keep tab switches under 10 today.",
		Check: func(b types.DailyBehavior) bool { return b.TabSwitches < 10 },
	},
	{
		ID:    "take-break",
		Text:  "Take at least one mindful break.",
		Check: func(b types.DailyBehavior) bool { return b.SessionsCompleted > 0 },
	},
	{
		ID:    "scroll-moderate",
		Text:  "Keep scrolling under 3000px today.",
		Check: func(b types.DailyBehavior) bool { return b.ScrollDistance < 3000 },
	},
}

// Find looks up a challenge by id
func Find(id string) (Challenge, bool) {
	for _, c := range Catalogue {
		if c.ID == id {
			return c, true
		}
	}
	return Challenge{}, false
}

// Evaluator owns the todaysChallenge key
type Evaluator struct {
	agg *store.Aggregate

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEvaluator creates an evaluator drawing from src
func NewEvaluator(agg *store.Aggregate, src rand.Source) *Evaluator {
	return &Evaluator{agg: agg, rng: rand.New(src)}
}

func (e *Evaluator) draw() Challenge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Catalogue[e.rng.Intn(len(Catalogue))]
}

// Today returns the challenge for day, assigning one on the first read of the
// day. assigned is true only for the call that created the record.
func (e *Evaluator) Today(ctx context.Context, day string) (rec store.ChallengeRecord, assigned bool, err error) {
	rec, err = store.UpdateJSON(ctx, e.agg.KV(), store.KeyTodaysChallenge, func(cur store.ChallengeRecord, exists bool) (store.ChallengeRecord, error) {
		assigned = false
		if exists && cur.Date == day {
			return cur, store.ErrUnchanged
		}
		c := e.draw()
		assigned = true
		return store.ChallengeRecord{ID: c.ID, Text: c.Text, Date: day}, nil
	})
	return rec, assigned, err
}

// Check evaluates today's challenge against today's behavior. completed is
// true only for the call that flipped the record.
func (e *Evaluator) Check(ctx context.Context, day string) (rec store.ChallengeRecord, completed bool, err error) {
	rec, _, err = e.Today(ctx, day)
	if err != nil || rec.Completed {
		return rec, false, err
	}

	c, ok := Find(rec.ID)
	if !ok {
		return rec, false, nil
	}
	behavior, err := e.agg.Today(ctx, day)
	if err != nil {
		return rec, false, err
	}
	if !c.Check(behavior) {
		return rec, false, nil
	}

	rec, err = store.UpdateJSON(ctx, e.agg.KV(), store.KeyTodaysChallenge, func(cur store.ChallengeRecord, exists bool) (store.ChallengeRecord, error) {
		completed = false
		if !exists || cur.Date != day || cur.ID != c.ID || cur.Completed {
			return cur, store.ErrUnchanged
		}
		cur.Completed = true
		completed = true
		return cur, nil
	})
	return rec, completed, err
}
