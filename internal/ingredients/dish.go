package ingredients

import (
	"strings"

	"github.com/tsawler/prose/v3"
)

// Dish is the symbolic summary of a day
type Dish struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon"`
	Description string   `json:"description"`
	Ingredients []string `json:"ingredients"`
}

// Dish IDs
const (
	DishMindfulBowl = "mindful-morning-bowl"
	DishAlfredo     = "greasy-dopaminari-alfredo"
	DishRamen       = "overcooked-reels-ramen"
	DishStirFry     = "seasoned-tab-switching-stir-fry"
	DishSalad       = "fresh-focus-salad"
	DishBurger      = "burnout-burger-deluxe"
)

// Dishes is the menu
var Dishes = map[string]Dish{
	DishMindfulBowl: {DishMindfulBowl, "Mindful Morning Bowl", "🥣", "A balanced start with focused browsing", []string{Greens, Water}},
	DishAlfredo:     {DishAlfredo, "Greasy Dopaminari Alfredo", "🍝", "Heavy on the scrolling sauce", []string{Grease, Salt}},
	DishRamen:       {DishRamen, "Overcooked Reels Ramen", "🍜", "Too much sugar from short-form content", []string{Sugar, Grease}},
	DishStirFry:     {DishStirFry, "Seasoned Tab Switching Stir-fry", "🥘", "Over-seasoned with context switching", []string{Salt, Grease, Sugar}},
	DishSalad:       {DishSalad, "Fresh Focus Salad", "🥗", "Clean and nutritious deep reading", []string{Greens, Water}},
	DishBurger:      {DishBurger, "Burnout Burger Deluxe", "🍔", "All the unhealthy digital ingredients", []string{Grease, Salt, Sugar}},
}

// SelectDish picks the dish for a profile by its dominant ingredient
func SelectDish(p Profile) Dish {
	name, amount := p.Dominant()
	switch {
	case amount == 0:
		return Dishes[DishMindfulBowl]
	case name == Grease && amount > 50:
		return Dishes[DishAlfredo]
	case name == Sugar && amount > 50:
		return Dishes[DishRamen]
	case name == Salt && amount > 50:
		return Dishes[DishStirFry]
	case name == Greens || name == Water:
		return Dishes[DishSalad]
	default:
		return Dishes[DishBurger]
	}
}

// keywordRule maps any of its phrases (all words in a phrase required, in order)
// to a dish. Each word matches a token by prefix so "scroll" covers "scrolling".
type keywordRule struct {
	all  [][]string // every phrase must appear
	any  [][]string // at least one phrase must appear
	dish string
}

var summaryRules = []keywordRule{
	{all: [][]string{{"scroll"}, {"too", "much"}}, dish: DishAlfredo},
	{any: [][]string{{"short", "form"}, {"sugar"}}, dish: DishRamen},
	{all: [][]string{{"tab"}, {"switch"}}, dish: DishStirFry},
	{any: [][]string{{"focus"}, {"deep", "reading"}, {"balanced"}}, dish: DishSalad},
	{any: [][]string{{"burnout"}, {"unhealthy"}}, dish: DishBurger},
	{any: [][]string{{"mindful"}, {"healthy"}}, dish: DishMindfulBowl},
}

// DishFromSummary picks a dish from the words of a summary. ok is false for an
// empty summary; a summary with no matching keywords yields the mindful bowl.
func DishFromSummary(summary string) (dish Dish, ok bool) {
	words := tokenize(summary)
	if len(words) == 0 {
		return Dish{}, false
	}
	for _, rule := range summaryRules {
		if rule.matches(words) {
			return Dishes[rule.dish], true
		}
	}
	return Dishes[DishMindfulBowl], true
}

func (r keywordRule) matches(words []string) bool {
	for _, phrase := range r.all {
		if !containsPhrase(words, phrase) {
			return false
		}
	}
	if len(r.any) == 0 {
		return len(r.all) > 0
	}
	for _, phrase := range r.any {
		if containsPhrase(words, phrase) {
			return true
		}
	}
	return false
}

func containsPhrase(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		hit := true
		for j, w := range phrase {
			if !strings.HasPrefix(words[i+j], w) {
				hit = false
				break
			}
		}
		if hit {
			return true
		}
	}
	return false
}

// tokenize lowercases the summary into words, splitting hyphenated tokens
func tokenize(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var raw []string
	doc, err := prose.NewDocument(text)
	if err != nil {
		raw = strings.Fields(text)
	} else {
		for _, tok := range doc.Tokens() {
			raw = append(raw, tok.Text)
		}
	}

	words := make([]string, 0, len(raw))
	for _, r := range raw {
		for _, part := range strings.Split(strings.ToLower(r), "-") {
			part = strings.Trim(part, ".,;:!?\"'()")
			if part != "" {
				words = append(words, part)
			}
		}
	}
	return words
}
