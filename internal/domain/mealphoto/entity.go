// Package mealphoto holds the meal photo analysis aggregate: recognised items,
// their enrichment provenance and the analysis lifecycle.
package mealphoto

import (
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/alchemorsel/mealsnap/internal/domain/shared"
	"github.com/google/uuid"
)

// Status of an analysis.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Analysis is the result of one analyze request. It is immutable once built
// except for the conversion timestamp set by the first confirmation.
type Analysis struct {
	id             uuid.UUID
	userID         uuid.UUID
	status         Status
	items          []ItemPrediction
	totalCalories  float64
	dishTitle      *string
	source         string
	warnings       []AnalysisError
	failureReason  *ErrorCode
	failureMessage string
	idempotencyKey string
	photoRef       PhotoRef
	hint           *string
	createdAt      time.Time
	convertedAt    *time.Time

	events shared.EventRecorder
}

// AnalysisParams carries the request-side attributes of a new analysis.
type AnalysisParams struct {
	UserID         uuid.UUID
	PhotoRef       PhotoRef
	Hint           *string
	IdempotencyKey string
	Source         string
	CreatedAt      time.Time
}

func (p AnalysisParams) validate() error {
	if p.UserID == uuid.Nil {
		return ErrMissingUser
	}
	if p.PhotoRef.IsZero() {
		return ErrMissingPhotoReference
	}
	return nil
}

func newAnalysis(p AnalysisParams) *Analysis {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return &Analysis{
		id:             uuid.New(),
		userID:         p.UserID,
		photoRef:       p.PhotoRef,
		hint:           p.Hint,
		idempotencyKey: p.IdempotencyKey,
		source:         p.Source,
		createdAt:      createdAt,
	}
}

// NewCompletedAnalysis builds a COMPLETED analysis. Total calories are
// derived from the items.
func NewCompletedAnalysis(p AnalysisParams, items []ItemPrediction, dishTitle *string, warnings []AnalysisError) (*Analysis, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	a := newAnalysis(p)
	a.status = StatusCompleted
	a.items = append([]ItemPrediction(nil), items...)
	a.totalCalories = totalCalories(a.items)
	a.dishTitle = dishTitle
	a.warnings = append([]AnalysisError(nil), warnings...)

	a.events.Record(MealPhotoAnalyzedEvent{
		AnalysisID:    a.id,
		UserID:        a.userID,
		Status:        a.status,
		ItemCount:     len(a.items),
		TotalCalories: a.totalCalories,
		AnalyzedAt:    a.createdAt,
	})
	return a, nil
}

// NewFailedAnalysis builds a FAILED analysis with a terminal failure reason.
func NewFailedAnalysis(p AnalysisParams, reason ErrorCode, message string) (*Analysis, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if !reason.Terminal() {
		return nil, ErrNotTerminal
	}
	a := newAnalysis(p)
	a.status = StatusFailed
	a.failureReason = &reason
	a.failureMessage = message

	a.events.Record(MealPhotoAnalyzedEvent{
		AnalysisID:    a.id,
		UserID:        a.userID,
		Status:        a.status,
		FailureReason: reason,
		AnalyzedAt:    a.createdAt,
	})
	return a, nil
}

// Snapshot is the persisted form of an analysis.
type Snapshot struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Status         Status
	Items          []ItemPrediction
	TotalCalories  float64
	DishTitle      *string
	Source         string
	Warnings       []AnalysisError
	FailureReason  *ErrorCode
	FailureMessage string
	IdempotencyKey string
	PhotoRef       PhotoRef
	Hint           *string
	CreatedAt      time.Time
	ConvertedAt    *time.Time
}

// Reconstitute rebuilds an analysis from storage. It raises no events.
func Reconstitute(s Snapshot) (*Analysis, error) {
	a := &Analysis{
		id:             s.ID,
		userID:         s.UserID,
		status:         s.Status,
		items:          s.Items,
		totalCalories:  s.TotalCalories,
		dishTitle:      s.DishTitle,
		source:         s.Source,
		warnings:       s.Warnings,
		failureReason:  s.FailureReason,
		failureMessage: s.FailureMessage,
		idempotencyKey: s.IdempotencyKey,
		photoRef:       s.PhotoRef,
		hint:           s.Hint,
		createdAt:      s.CreatedAt,
		convertedAt:    s.ConvertedAt,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Snapshot exports the analysis state for persistence.
func (a *Analysis) Snapshot() Snapshot {
	return Snapshot{
		ID:             a.id,
		UserID:         a.userID,
		Status:         a.status,
		Items:          a.Items(),
		TotalCalories:  a.totalCalories,
		DishTitle:      a.dishTitle,
		Source:         a.source,
		Warnings:       a.Warnings(),
		FailureReason:  a.failureReason,
		FailureMessage: a.failureMessage,
		IdempotencyKey: a.idempotencyKey,
		PhotoRef:       a.photoRef,
		Hint:           a.hint,
		CreatedAt:      a.createdAt,
		ConvertedAt:    a.convertedAt,
	}
}

// Validate checks that status, failure reason and items agree.
func (a *Analysis) Validate() error {
	switch a.status {
	case StatusFailed:
		if a.failureReason == nil || !a.failureReason.Terminal() {
			return ErrNotTerminal
		}
		if len(a.items) > 0 {
			return ErrUnexpectedItems
		}
	case StatusCompleted:
		if a.failureReason != nil {
			return ErrNotTerminal
		}
		if len(a.items) == 0 {
			return ErrNoItems
		}
	case StatusPending:
	default:
		return ErrNotTerminal
	}
	return nil
}

// MarkConverted records the first confirmation time. Later calls are no-ops.
func (a *Analysis) MarkConverted(at time.Time) bool {
	if a.convertedAt != nil {
		return false
	}
	t := at.UTC()
	a.convertedAt = &t
	return true
}

// IsOwnedBy reports whether the analysis belongs to the user.
func (a *Analysis) IsOwnedBy(userID uuid.UUID) bool {
	return a.userID == userID
}

// IsConfirmable reports whether items may be turned into meal entries.
func (a *Analysis) IsConfirmable() bool {
	return a.status == StatusCompleted
}

// Events returns and clears pending domain events.
func (a *Analysis) Events() []shared.DomainEvent {
	return a.events.Drain()
}

func (a *Analysis) ID() uuid.UUID             { return a.id }
func (a *Analysis) UserID() uuid.UUID         { return a.userID }
func (a *Analysis) Status() Status            { return a.status }
func (a *Analysis) TotalCalories() float64    { return a.totalCalories }
func (a *Analysis) DishTitle() *string        { return a.dishTitle }
func (a *Analysis) Source() string            { return a.source }
func (a *Analysis) FailureReason() *ErrorCode { return a.failureReason }
func (a *Analysis) FailureMessage() string    { return a.failureMessage }
func (a *Analysis) IdempotencyKey() string    { return a.idempotencyKey }
func (a *Analysis) PhotoRef() PhotoRef        { return a.photoRef }
func (a *Analysis) Hint() *string             { return a.hint }
func (a *Analysis) CreatedAt() time.Time      { return a.createdAt }
func (a *Analysis) ConvertedAt() *time.Time   { return a.convertedAt }

// Items returns a copy of the analysed items in prediction order.
func (a *Analysis) Items() []ItemPrediction {
	return append([]ItemPrediction(nil), a.items...)
}

// Item returns the item at index i.
func (a *Analysis) Item(i int) (ItemPrediction, bool) {
	if i < 0 || i >= len(a.items) {
		return ItemPrediction{}, false
	}
	return a.items[i], true
}

// ItemCount returns the number of items.
func (a *Analysis) ItemCount() int {
	return len(a.items)
}

// Warnings returns the non-terminal problems recorded during analysis.
func (a *Analysis) Warnings() []AnalysisError {
	return append([]AnalysisError(nil), a.warnings...)
}

func totalCalories(items []ItemPrediction) float64 {
	cals := make([]float64, len(items))
	for i, it := range items {
		cals[i] = it.Calories
	}
	return nutrition.TotalCalories(cals...)
}
