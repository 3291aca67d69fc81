// Package testutils provides test data factories for consistent test data generation
package testutils

import (
	"encoding/json"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

var foodLabels = []string{
	"grilled chicken breast", "white rice", "broccoli", "scrambled eggs",
	"whole wheat toast", "avocado", "spaghetti", "tomato sauce",
	"baked salmon", "quinoa", "mixed salad", "banana",
}

// PredictionItem is one item of a raw vision payload.
type PredictionItem struct {
	Label         string  `json:"label"`
	QuantityGrams float64 `json:"quantity_grams"`
	Confidence    float64 `json:"confidence"`
}

// PredictionBuilder provides a fluent interface for building raw vision
// payloads in the envelope shape.
type PredictionBuilder struct {
	faker     *gofakeit.Faker
	items     []PredictionItem
	dishTitle string
}

// NewPredictionBuilder creates a builder with a seeded faker and no items
func NewPredictionBuilder(seed int64) *PredictionBuilder {
	return &PredictionBuilder{faker: gofakeit.New(seed)}
}

// WithItem appends an item
func (pb *PredictionBuilder) WithItem(label string, grams, confidence float64) *PredictionBuilder {
	pb.items = append(pb.items, PredictionItem{Label: label, QuantityGrams: grams, Confidence: confidence})
	return pb
}

// WithRandomItems appends n plausible items above the default confidence gate
func (pb *PredictionBuilder) WithRandomItems(n int) *PredictionBuilder {
	for i := 0; i < n; i++ {
		pb.items = append(pb.items, PredictionItem{
			Label:         foodLabels[pb.faker.Number(0, len(foodLabels)-1)],
			QuantityGrams: float64(pb.faker.Number(30, 400)),
			Confidence:    float64(pb.faker.Number(50, 99)) / 100,
		})
	}
	return pb
}

// WithDishTitle sets the dish title
func (pb *PredictionBuilder) WithDishTitle(title string) *PredictionBuilder {
	pb.dishTitle = title
	return pb
}

// Items returns the items added so far
func (pb *PredictionBuilder) Items() []PredictionItem {
	return append([]PredictionItem(nil), pb.items...)
}

// Build encodes the payload
func (pb *PredictionBuilder) Build() []byte {
	env := map[string]interface{}{"items": pb.items}
	if pb.items == nil {
		env["items"] = []PredictionItem{}
	}
	if pb.dishTitle != "" {
		env["dish_title"] = pb.dishTitle
	}
	data, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	return data
}

// AnalysisBuilder provides a fluent interface for building analyses
type AnalysisBuilder struct {
	faker     *gofakeit.Faker
	params    mealphoto.AnalysisParams
	items     []mealphoto.ItemPrediction
	dishTitle *string
	warnings  []mealphoto.AnalysisError
	failure   *mealphoto.ErrorCode
}

// NewAnalysisBuilder creates a builder for a completed analysis owned by a
// random user with two enriched items.
func NewAnalysisBuilder(seed int64) *AnalysisBuilder {
	faker := gofakeit.New(seed)
	ref, _ := mealphoto.NewPhotoRef("photo-"+faker.UUID(), "")
	b := &AnalysisBuilder{
		faker: faker,
		params: mealphoto.AnalysisParams{
			UserID:    uuid.New(),
			PhotoRef:  ref,
			Source:    "stub",
			CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		},
	}
	b.params.IdempotencyKey = mealphoto.Fingerprint(b.params.UserID, ref, "")
	b.items = []mealphoto.ItemPrediction{
		NewEnrichedItem("grilled chicken breast", 150, nutrition.Profile{Calories: 165, ProteinG: 31, FatG: 3.6}),
		NewEnrichedItem("white rice", 180, nutrition.Profile{Calories: 130, ProteinG: 2.7, CarbsG: 28, FatG: 0.3}),
	}
	return b
}

// NewEnrichedItem builds an item enriched from the exact tier
func NewEnrichedItem(label string, grams float64, per100g nutrition.Profile) mealphoto.ItemPrediction {
	item := mealphoto.ItemPrediction{Label: label, QuantityGrams: grams, Confidence: 0.9}
	return item.Enrich(per100g, nutrition.SourceExact, false)
}

// WithUser sets the owner
func (ab *AnalysisBuilder) WithUser(userID uuid.UUID) *AnalysisBuilder {
	ab.params.UserID = userID
	return ab
}

// WithFingerprint sets the idempotency key
func (ab *AnalysisBuilder) WithFingerprint(key string) *AnalysisBuilder {
	ab.params.IdempotencyKey = key
	return ab
}

// WithCreatedAt sets the creation time
func (ab *AnalysisBuilder) WithCreatedAt(at time.Time) *AnalysisBuilder {
	ab.params.CreatedAt = at.UTC()
	return ab
}

// WithItems replaces the items
func (ab *AnalysisBuilder) WithItems(items ...mealphoto.ItemPrediction) *AnalysisBuilder {
	ab.items = items
	return ab
}

// WithDishTitle sets the dish title
func (ab *AnalysisBuilder) WithDishTitle(title string) *AnalysisBuilder {
	ab.dishTitle = &title
	return ab
}

// WithWarning appends a warning
func (ab *AnalysisBuilder) WithWarning(w mealphoto.AnalysisError) *AnalysisBuilder {
	ab.warnings = append(ab.warnings, w)
	return ab
}

// Failed makes the builder produce a FAILED analysis
func (ab *AnalysisBuilder) Failed(code mealphoto.ErrorCode) *AnalysisBuilder {
	ab.failure = &code
	return ab
}

// Build creates the analysis
func (ab *AnalysisBuilder) Build() (*mealphoto.Analysis, error) {
	if ab.failure != nil {
		return mealphoto.NewFailedAnalysis(ab.params, *ab.failure, ab.faker.Sentence(5))
	}
	return mealphoto.NewCompletedAnalysis(ab.params, ab.items, ab.dishTitle, ab.warnings)
}

// MustBuild creates the analysis and panics on error
func (ab *AnalysisBuilder) MustBuild() *mealphoto.Analysis {
	a, err := ab.Build()
	if err != nil {
		panic(err)
	}
	return a
}
