// Package nutrition contains nutrient profiles, enrichment provenance and the
// calorie arithmetic shared by the analysis and meal domains.
package nutrition

import (
	"errors"
	"math"
)

// Atwater factors in kcal per gram.
const (
	KcalPerGramProtein = 4.0
	KcalPerGramCarbs   = 4.0
	KcalPerGramFat     = 9.0
)

// DefaultCalorieTolerance is the relative divergence between stated and
// macro-implied calories tolerated before calories are recomputed.
const DefaultCalorieTolerance = 0.18

// ErrNegativeNutrient is returned when a profile carries a negative value.
var ErrNegativeNutrient = errors.New("nutrient profile contains a negative value")

// Profile holds nutrients per 100 g of food.
type Profile struct {
	Calories float64 `json:"calories" yaml:"calories"`
	ProteinG float64 `json:"protein_g" yaml:"protein_g"`
	CarbsG   float64 `json:"carbs_g" yaml:"carbs_g"`
	FatG     float64 `json:"fat_g" yaml:"fat_g"`
	FiberG   float64 `json:"fiber_g,omitempty" yaml:"fiber_g"`
}

// DefaultProfile is the generic profile used when no better source resolves:
// 100 kcal with a balanced macro split.
func DefaultProfile() Profile {
	return Profile{Calories: 100, ProteinG: 5, CarbsG: 12.5, FatG: 3.5, FiberG: 1}
}

// Validate rejects profiles with negative or non-finite values.
func (p Profile) Validate() error {
	for _, v := range []float64{p.Calories, p.ProteinG, p.CarbsG, p.FatG, p.FiberG} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNegativeNutrient
		}
	}
	return nil
}

// MacroCalories returns the calories implied by the macronutrients.
func (p Profile) MacroCalories() float64 {
	return p.ProteinG*KcalPerGramProtein + p.CarbsG*KcalPerGramCarbs + p.FatG*KcalPerGramFat
}

// Reconcile recomputes calories from macros when the stated value diverges
// from the macro-implied value by more than tolerance. Profiles without
// macros are returned unchanged. The boolean reports whether a correction
// was applied.
func (p Profile) Reconcile(tolerance float64) (Profile, bool) {
	implied := p.MacroCalories()
	if implied <= 0 {
		return p, false
	}
	if math.Abs(p.Calories-implied)/implied <= tolerance {
		return p, false
	}
	p.Calories = Round1(implied)
	return p, true
}

// Scale returns the nutrients contained in the given quantity of food.
func (p Profile) Scale(quantityGrams float64) Profile {
	f := quantityGrams / 100
	return Profile{
		Calories: ItemCalories(quantityGrams, p.Calories),
		ProteinG: floorZero(Round1(p.ProteinG * f)),
		CarbsG:   floorZero(Round1(p.CarbsG * f)),
		FatG:     floorZero(Round1(p.FatG * f)),
		FiberG:   floorZero(Round1(p.FiberG * f)),
	}
}
