// Package ingredients turns a day's behavior into a five-part ingredient
// profile and picks the dish that represents it.
package ingredients

import (
	"math"
)

// Normalization constants
const (
	ScrollUnit    = 10000.0 // px of scroll that count as one unit of grease
	ActiveUnit    = 3600.0  // seconds of activity that count as one unit of sugar
	TabSwitchUnit = 50.0    // tab switches that count as one unit of salt
	BadShare      = 70      // percentage points shared by grease, sugar and salt
	WaterPerBreak = 3       // water earned per completed mindful break
	MaxWater      = 15
)

// Ingredient names, in tie-break order
const (
	Grease = "grease"
	Sugar  = "sugar"
	Salt   = "salt"
	Greens = "greens"
	Water  = "water"
)

// Profile is a percentage breakdown whose components always sum to 100
type Profile struct {
	Grease int `json:"grease"`
	Sugar  int `json:"sugar"`
	Salt   int `json:"salt"`
	Greens int `json:"greens"`
	Water  int `json:"water"`
}

// Sum returns the total of all components
func (p Profile) Sum() int {
	return p.Grease + p.Sugar + p.Salt + p.Greens + p.Water
}

// Dominant returns the largest component; ties go to the earlier ingredient
func (p Profile) Dominant() (string, int) {
	name, amount := Grease, p.Grease
	for _, c := range []struct {
		name   string
		amount int
	}{
		{Sugar, p.Sugar},
		{Salt, p.Salt},
		{Greens, p.Greens},
		{Water, p.Water},
	} {
		if c.amount > amount {
			name, amount = c.name, c.amount
		}
	}
	return name, amount
}

// Normalize maps a behavioral aggregate and lifetime session count to a profile.
// Negative or non-finite inputs are treated as zero.
func Normalize(scrollDistance, activeSeconds float64, tabSwitches, sessionsCompleted int) Profile {
	s := nonNegative(scrollDistance) / ScrollUnit
	t := nonNegative(activeSeconds) / ActiveUnit
	ts := float64(max(tabSwitches, 0)) / TabSwitchUnit
	totalBad := s + t + ts

	var p Profile
	if totalBad > 0 {
		p.Grease = round(s / totalBad * BadShare)
		p.Sugar = round(t / totalBad * BadShare)
		p.Salt = round(ts / totalBad * BadShare)
	}
	p.Greens = 100 - (p.Grease + p.Sugar + p.Salt)
	breaks := min(max(sessionsCompleted, 0), MaxWater/WaterPerBreak+1)
	p.Water = min(MaxWater, breaks*WaterPerBreak)

	// Water is a bonus; make room for it by shrinking the bad components.
	if total := p.Sum(); total > 100 {
		bad := p.Grease + p.Sugar + p.Salt
		if bad > 0 {
			ratio := float64(total-100) / float64(bad)
			p.Grease -= round(float64(p.Grease) * ratio)
			p.Sugar -= round(float64(p.Sugar) * ratio)
			p.Salt -= round(float64(p.Salt) * ratio)
		}
	}

	// Greens absorbs rounding drift.
	p.Greens += 100 - p.Sum()

	p.Grease = max(p.Grease, 0)
	p.Sugar = max(p.Sugar, 0)
	p.Salt = max(p.Salt, 0)
	p.Greens = max(p.Greens, 0)
	p.Water = max(p.Water, 0)
	return p
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// round matches JavaScript-style half-up rounding for the non-negative values used here
func round(v float64) int {
	return int(math.Floor(v + 0.5))
}
