package mealphoto

import (
	"time"

	"github.com/google/uuid"
)

// MealPhotoAnalyzedEvent is raised when a new analysis is built
type MealPhotoAnalyzedEvent struct {
	AnalysisID    uuid.UUID
	UserID        uuid.UUID
	Status        Status
	FailureReason ErrorCode
	ItemCount     int
	TotalCalories float64
	AnalyzedAt    time.Time
}

func (e MealPhotoAnalyzedEvent) EventName() string {
	return "mealphoto.analyzed"
}

func (e MealPhotoAnalyzedEvent) OccurredAt() time.Time {
	return e.AnalyzedAt
}

// MealPhotoConfirmedEvent is raised when items are turned into meal entries
type MealPhotoConfirmedEvent struct {
	AnalysisID  uuid.UUID
	UserID      uuid.UUID
	MealIDs     []uuid.UUID
	ConfirmedAt time.Time
}

func (e MealPhotoConfirmedEvent) EventName() string {
	return "mealphoto.confirmed"
}

func (e MealPhotoConfirmedEvent) OccurredAt() time.Time {
	return e.ConfirmedAt
}
