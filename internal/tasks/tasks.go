// Package tasks chooses the mindfulness task shown in an intervention and
// decides when an intervention may be dismissed.
package tasks

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"unicode/utf8"
)

// MinReflectionLength is the number of characters a reflection needs before
// the user may resume
const MinReflectionLength = 10

// DefaultTaskID is returned when the draw cannot resolve
const DefaultTaskID = "breathing"

// TakeBreak is the completion kind for "take a break instead of resuming"
const TakeBreak = "take_break"

var (
	ErrTaskIncomplete     = errors.New("task not completed")
	ErrReflectionTooShort = errors.New("reflection too short")
)

// Category groups tasks for the task preference setting
type Category string

const (
	CategoryBreathing  Category = "breathing"
	CategoryPuzzle     Category = "puzzle"
	CategoryReflection Category = "reflection"
)

// PreferenceAuto lets the selector draw from the whole catalogue
const PreferenceAuto = "auto"

// Task is one entry of the catalogue
type Task struct {
	ID       string   `json:"id"`
	Weight   int      `json:"weight"`
	Category Category `json:"category"`
}

// Catalogue is the fixed set of mindfulness tasks
var Catalogue = []Task{
	{ID: "breathing", Weight: 17, Category: CategoryBreathing},
	{ID: "icon_match", Weight: 19, Category: CategoryPuzzle},
	{ID: "nature_gif", Weight: 10, Category: CategoryReflection},
	{ID: "scroll_puzzle", Weight: 9, Category: CategoryPuzzle},
	{ID: "chef_memory", Weight: 17, Category: CategoryPuzzle},
	{ID: "footprint_maze", Weight: 10, Category: CategoryPuzzle},
	{ID: "breathing_bubble", Weight: 18, Category: CategoryBreathing},
	{ID: "turtle_race", Weight: 10, Category: CategoryReflection},
	{ID: "egg_catch", Weight: 15, Category: CategoryPuzzle},
}

// BreakActivities are offered when the user takes a break instead of resuming
var BreakActivities = []string{
	"flower_breath",
	"nature_sounds",
	"gratitude_garden",
	"mindful_movement",
	"digital_sunset",
}

// Pick performs the weighted draw. r must be uniform in [0,1).
// Tasks with non-positive weight are never selected.
func Pick(catalogue []Task, r float64) Task {
	total := 0
	for _, t := range catalogue {
		if t.Weight > 0 {
			total += t.Weight
		}
	}
	if total == 0 {
		return Task{ID: DefaultTaskID, Weight: 1, Category: CategoryBreathing}
	}

	remaining := r * float64(total)
	for _, t := range catalogue {
		if t.Weight <= 0 {
			continue
		}
		remaining -= float64(t.Weight)
		if remaining <= 0 {
			return t
		}
	}
	return Task{ID: DefaultTaskID, Weight: 1, Category: CategoryBreathing}
}

// Filter restricts the catalogue to a preference. Unknown or empty results
// fall back to the full catalogue.
func Filter(catalogue []Task, preference string) []Task {
	if preference == "" || preference == PreferenceAuto {
		return catalogue
	}
	var out []Task
	for _, t := range catalogue {
		if string(t.Category) == preference || t.ID == preference {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return catalogue
	}
	return out
}

// Selector draws tasks from an injected random source
type Selector struct {
	mu        sync.Mutex
	rng       *rand.Rand
	catalogue []Task
}

// NewSelector creates a selector over the standard catalogue
func NewSelector(src rand.Source) *Selector {
	return NewSelectorWithCatalogue(src, Catalogue)
}

// NewSelectorWithCatalogue creates a selector over a custom catalogue
func NewSelectorWithCatalogue(src rand.Source, catalogue []Task) *Selector {
	return &Selector{rng: rand.New(src), catalogue: catalogue}
}

// Pick draws one task honoring the preference
func (s *Selector) Pick(preference string) Task {
	s.mu.Lock()
	r := s.rng.Float64()
	s.mu.Unlock()
	return Pick(Filter(s.catalogue, preference), r)
}

// PickBreak draws a break activity uniformly
func (s *Selector) PickBreak() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BreakActivities[s.rng.Intn(len(BreakActivities))]
}

// ReflectionComplete reports whether text is long enough to unlock resuming
func ReflectionComplete(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) >= MinReflectionLength
}

// Gate tracks the two independent conditions for dismissing an intervention
type Gate struct {
	mu         sync.Mutex
	taskDone   bool
	reflection string
}

// MarkTaskDone records that the interactive task reported completion
func (g *Gate) MarkTaskDone() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.taskDone = true
}

// SetReflection records the latest reflection text
func (g *Gate) SetReflection(text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reflection = text
}

// TaskDone reports whether the task finished
func (g *Gate) TaskDone() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.taskDone
}

// Check returns nil once both the task and the reflection are complete
func (g *Gate) Check() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.taskDone {
		return ErrTaskIncomplete
	}
	if !ReflectionComplete(g.reflection) {
		return ErrReflectionTooShort
	}
	return nil
}
