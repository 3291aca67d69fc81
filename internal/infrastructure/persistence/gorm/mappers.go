package gorm

import (
	"github.com/alchemorsel/mealsnap/internal/domain/meal"
	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
)

// AnalysisToModel converts a domain analysis to a GORM model
func AnalysisToModel(a *mealphoto.Analysis) *MealPhotoAnalysisModel {
	s := a.Snapshot()
	model := &MealPhotoAnalysisModel{
		ID:             s.ID,
		UserID:         s.UserID,
		Status:         string(s.Status),
		Items:          s.Items,
		TotalCalories:  s.TotalCalories,
		DishTitle:      s.DishTitle,
		Source:         s.Source,
		Warnings:       s.Warnings,
		FailureMessage: s.FailureMessage,
		IdempotencyKey: s.IdempotencyKey,
		PhotoID:        s.PhotoRef.ID,
		PhotoURL:       s.PhotoRef.URL,
		Hint:           s.Hint,
		CreatedAt:      s.CreatedAt,
		ConvertedAt:    s.ConvertedAt,
	}
	if s.FailureReason != nil {
		reason := string(*s.FailureReason)
		model.FailureReason = &reason
	}
	return model
}

// ModelToAnalysis converts a GORM model to a domain analysis
func ModelToAnalysis(m *MealPhotoAnalysisModel) (*mealphoto.Analysis, error) {
	s := mealphoto.Snapshot{
		ID:             m.ID,
		UserID:         m.UserID,
		Status:         mealphoto.Status(m.Status),
		Items:          m.Items,
		TotalCalories:  m.TotalCalories,
		DishTitle:      m.DishTitle,
		Source:         m.Source,
		Warnings:       m.Warnings,
		FailureMessage: m.FailureMessage,
		IdempotencyKey: m.IdempotencyKey,
		PhotoRef:       mealphoto.PhotoRef{ID: m.PhotoID, URL: m.PhotoURL},
		Hint:           m.Hint,
		CreatedAt:      m.CreatedAt.UTC(),
		ConvertedAt:    m.ConvertedAt,
	}
	if m.FailureReason != nil {
		code := mealphoto.ErrorCode(*m.FailureReason)
		s.FailureReason = &code
	}
	return mealphoto.Reconstitute(s)
}

// EntryToModel converts a meal entry to a GORM model
func EntryToModel(e *meal.Entry) *MealEntryModel {
	return &MealEntryModel{
		ID:               e.ID,
		UserID:           e.UserID,
		AnalysisID:       e.AnalysisID,
		ItemIndex:        e.ItemIndex,
		ConfirmationKey:  e.ConfirmationKey,
		Label:            e.Label,
		DisplayName:      e.DisplayName,
		QuantityGrams:    e.QuantityGrams,
		Calories:         e.Calories,
		ProteinG:         e.ProteinG,
		CarbsG:           e.CarbsG,
		FatG:             e.FatG,
		FiberG:           e.FiberG,
		EnrichmentSource: string(e.EnrichmentSource),
		CreatedAt:        e.CreatedAt,
	}
}

// ModelToEntry converts a GORM model to a meal entry
func ModelToEntry(m *MealEntryModel) *meal.Entry {
	return &meal.Entry{
		ID:               m.ID,
		UserID:           m.UserID,
		AnalysisID:       m.AnalysisID,
		ItemIndex:        m.ItemIndex,
		ConfirmationKey:  m.ConfirmationKey,
		Label:            m.Label,
		DisplayName:      m.DisplayName,
		QuantityGrams:    m.QuantityGrams,
		Calories:         m.Calories,
		ProteinG:         m.ProteinG,
		CarbsG:           m.CarbsG,
		FatG:             m.FatG,
		FiberG:           m.FiberG,
		EnrichmentSource: nutrition.Source(m.EnrichmentSource),
		CreatedAt:        m.CreatedAt.UTC(),
	}
}
