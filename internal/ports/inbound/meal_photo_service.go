// Package inbound defines the interfaces for inbound ports (primary/driving adapters)
// These are the interfaces that the application exposes to the outside world
package inbound

import (
	"context"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/meal"
	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/google/uuid"
)

// MealPhotoService defines the meal photo use cases.
// Transport adapters (REST here, GraphQL elsewhere) drive the pipeline through it.
type MealPhotoService interface {
	AnalyzeMealPhoto(ctx context.Context, cmd AnalyzeCommand) (*AnalysisDTO, error)
	ConfirmMealPhoto(ctx context.Context, cmd ConfirmCommand) (*ConfirmationDTO, error)
	GetMealPhotoAnalysis(ctx context.Context, analysisID, userID uuid.UUID) (*AnalysisDTO, error)
}

// AnalyzeCommand requests analysis of one photo
type AnalyzeCommand struct {
	UserID         uuid.UUID
	PhotoID        string
	PhotoURL       string
	DishHint       string
	IdempotencyKey string
}

// ConfirmCommand converts selected analysis items into meal entries
type ConfirmCommand struct {
	AnalysisID      uuid.UUID
	UserID          uuid.UUID
	AcceptedIndexes []int
}

// AnalysisDTO is the client-facing view of an analysis
type AnalysisDTO struct {
	ID             uuid.UUID                 `json:"analysis_id"`
	UserID         uuid.UUID                 `json:"user_id"`
	Status         mealphoto.Status          `json:"status"`
	Items          []ItemDTO                 `json:"items"`
	TotalCalories  float64                   `json:"total_calories"`
	DishTitle      *string                   `json:"dish_title,omitempty"`
	Source         string                    `json:"source"`
	AnalysisErrors []mealphoto.AnalysisError `json:"analysis_errors"`
	FailureReason  *mealphoto.ErrorCode      `json:"failure_reason,omitempty"`
	FailureMessage string                    `json:"failure_message,omitempty"`
	IdempotencyKey string                    `json:"idempotency_key_used"`
	CreatedAt      time.Time                 `json:"created_at"`
	ConvertedAt    *time.Time                `json:"converted_at,omitempty"`
}

// ItemDTO is one predicted item
type ItemDTO struct {
	Index            int               `json:"index"`
	Label            string            `json:"label"`
	DisplayName      *string           `json:"display_name,omitempty"`
	QuantityGrams    float64           `json:"quantity_grams"`
	Confidence       float64           `json:"confidence"`
	Calories         float64           `json:"calories_per_item"`
	EnrichmentSource nutrition.Source  `json:"enrichment_source"`
	NutrientsPer100g nutrition.Profile `json:"nutrients_per_100g"`
}

// ConfirmationDTO reports the meals bound to a confirmation
type ConfirmationDTO struct {
	AnalysisID     uuid.UUID      `json:"analysis_id"`
	CreatedMealIDs []uuid.UUID    `json:"created_meal_ids"`
	Entries        []MealEntryDTO `json:"entries"`
	Replayed       bool           `json:"replayed"`
}

// MealEntryDTO is a persisted meal entry
type MealEntryDTO struct {
	ID               uuid.UUID        `json:"id"`
	ItemIndex        int              `json:"item_index"`
	Label            string           `json:"label"`
	DisplayName      string           `json:"display_name"`
	QuantityGrams    float64          `json:"quantity_grams"`
	Calories         float64          `json:"calories"`
	ProteinG         float64          `json:"protein_g"`
	CarbsG           float64          `json:"carbs_g"`
	FatG             float64          `json:"fat_g"`
	FiberG           float64          `json:"fiber_g"`
	EnrichmentSource nutrition.Source `json:"enrichment_source"`
	CreatedAt        time.Time        `json:"created_at"`
}

// NewAnalysisDTO maps an analysis to its client view.
func NewAnalysisDTO(a *mealphoto.Analysis) *AnalysisDTO {
	items := a.Items()
	dto := &AnalysisDTO{
		ID:             a.ID(),
		UserID:         a.UserID(),
		Status:         a.Status(),
		Items:          make([]ItemDTO, len(items)),
		TotalCalories:  a.TotalCalories(),
		DishTitle:      a.DishTitle(),
		Source:         a.Source(),
		AnalysisErrors: a.Warnings(),
		FailureReason:  a.FailureReason(),
		FailureMessage: a.FailureMessage(),
		IdempotencyKey: a.IdempotencyKey(),
		CreatedAt:      a.CreatedAt(),
		ConvertedAt:    a.ConvertedAt(),
	}
	for i, it := range items {
		dto.Items[i] = ItemDTO{
			Index:            i,
			Label:            it.Label,
			DisplayName:      it.DisplayName,
			QuantityGrams:    it.QuantityGrams,
			Confidence:       it.Confidence,
			Calories:         it.Calories,
			EnrichmentSource: it.EnrichmentSource,
			NutrientsPer100g: it.Nutrients,
		}
	}
	return dto
}

// NewMealEntryDTO maps a meal entry.
func NewMealEntryDTO(e *meal.Entry) MealEntryDTO {
	return MealEntryDTO{
		ID:               e.ID,
		ItemIndex:        e.ItemIndex,
		Label:            e.Label,
		DisplayName:      e.DisplayName,
		QuantityGrams:    e.QuantityGrams,
		Calories:         e.Calories,
		ProteinG:         e.ProteinG,
		CarbsG:           e.CarbsG,
		FatG:             e.FatG,
		FiberG:           e.FiberG,
		EnrichmentSource: e.EnrichmentSource,
		CreatedAt:        e.CreatedAt,
	}
}
