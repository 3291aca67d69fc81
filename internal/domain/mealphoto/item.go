package mealphoto

import "github.com/alchemorsel/mealsnap/internal/domain/nutrition"

// ItemPrediction is one recognised food item after parsing and enrichment.
type ItemPrediction struct {
	Label             string            `json:"label"`
	DisplayName       *string           `json:"display_name,omitempty"`
	QuantityGrams     float64           `json:"quantity_grams"`
	Confidence        float64           `json:"confidence"`
	Calories          float64           `json:"calories"`
	EnrichmentSource  nutrition.Source  `json:"enrichment_source"`
	Nutrients         nutrition.Profile `json:"nutrients"`
	CaloriesCorrected bool              `json:"calories_corrected"`
}

// Name returns the display name when present and the label otherwise.
func (i ItemPrediction) Name() string {
	if i.DisplayName != nil && *i.DisplayName != "" {
		return *i.DisplayName
	}
	return i.Label
}

// Enrich attaches a per-100 g profile and recomputes calories for the
// item's quantity.
func (i ItemPrediction) Enrich(p nutrition.Profile, source nutrition.Source, corrected bool) ItemPrediction {
	i.Nutrients = p
	i.EnrichmentSource = source
	i.CaloriesCorrected = corrected
	i.Calories = nutrition.ItemCalories(i.QuantityGrams, p.Calories)
	return i
}
