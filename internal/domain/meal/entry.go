// Package meal contains the permanent meal records created from confirmed
// photo analyses.
package meal

import (
	"errors"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/google/uuid"
)

var (
	ErrMissingUser     = errors.New("meal entry requires a user")
	ErrInvalidQuantity = errors.New("meal entry quantity must be positive")
	ErrEntryNotFound   = errors.New("meal entry not found")
)

// Entry is a snapshot of one confirmed item. Nutrients are absolute values
// for the logged quantity.
type Entry struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	AnalysisID       uuid.UUID
	ItemIndex        int
	ConfirmationKey  string
	Label            string
	DisplayName      string
	QuantityGrams    float64
	Calories         float64
	ProteinG         float64
	CarbsG           float64
	FatG             float64
	FiberG           float64
	EnrichmentSource nutrition.Source
	CreatedAt        time.Time
}

// EntrySource carries what a confirmed item contributes to an entry.
type EntrySource struct {
	Label            string
	DisplayName      string
	QuantityGrams    float64
	Calories         float64
	Per100g          nutrition.Profile
	EnrichmentSource nutrition.Source
}

// NewEntry builds an entry for one confirmed item. Calories are carried
// over from the analysis so the entry agrees with what the user saw.
func NewEntry(userID, analysisID uuid.UUID, itemIndex int, confirmationKey string, src EntrySource, now time.Time) (*Entry, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUser
	}
	if src.QuantityGrams <= 0 {
		return nil, ErrInvalidQuantity
	}
	abs := src.Per100g.Scale(src.QuantityGrams)
	return &Entry{
		ID:               uuid.New(),
		UserID:           userID,
		AnalysisID:       analysisID,
		ItemIndex:        itemIndex,
		ConfirmationKey:  confirmationKey,
		Label:            src.Label,
		DisplayName:      src.DisplayName,
		QuantityGrams:    src.QuantityGrams,
		Calories:         src.Calories,
		ProteinG:         abs.ProteinG,
		CarbsG:           abs.CarbsG,
		FatG:             abs.FatG,
		FiberG:           abs.FiberG,
		EnrichmentSource: src.EnrichmentSource,
		CreatedAt:        now.UTC(),
	}, nil
}
