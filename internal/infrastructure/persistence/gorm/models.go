// Package gorm provides GORM model definitions and repositories
package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MealPhotoAnalysisModel represents the GORM model for analyses
type MealPhotoAnalysisModel struct {
	ID             uuid.UUID                           `gorm:"type:char(36);primaryKey"`
	UserID         uuid.UUID                           `gorm:"type:char(36);not null;index"`
	Status         string                              `gorm:"type:varchar(20);not null"`
	Items          JSONSlice[mealphoto.ItemPrediction] `gorm:"type:json"`
	TotalCalories  float64                             `gorm:"not null;default:0"`
	DishTitle      *string                             `gorm:"type:varchar(255)"`
	Source         string                              `gorm:"type:varchar(50);not null"`
	Warnings       JSONSlice[mealphoto.AnalysisError]  `gorm:"type:json"`
	FailureReason  *string                             `gorm:"type:varchar(50)"`
	FailureMessage string                              `gorm:"type:text"`
	IdempotencyKey string                              `gorm:"type:varchar(255);index"`
	PhotoID        string                              `gorm:"type:varchar(255)"`
	PhotoURL       string                              `gorm:"type:text"`
	Hint           *string                             `gorm:"type:text"`
	CreatedAt      time.Time
	ConvertedAt    *time.Time
}

func (MealPhotoAnalysisModel) TableName() string { return "meal_photo_analyses" }

// IdempotencyKeyModel maps a fingerprint to the analysis it produced
type IdempotencyKeyModel struct {
	Fingerprint string    `gorm:"type:varchar(255);primaryKey"`
	AnalysisID  uuid.UUID `gorm:"type:char(36);not null"`
	CreatedAt   time.Time
	ExpiresAt   time.Time `gorm:"not null;index"`
}

func (IdempotencyKeyModel) TableName() string { return "meal_photo_idempotency_keys" }

// MealPhotoConfirmationModel records one confirmation and the meals it created
type MealPhotoConfirmationModel struct {
	ConfirmationKey string               `gorm:"type:varchar(512);primaryKey"`
	AnalysisID      uuid.UUID            `gorm:"type:char(36);not null;index"`
	UserID          uuid.UUID            `gorm:"type:char(36);not null"`
	MealIDs         JSONSlice[uuid.UUID] `gorm:"type:json"`
	CreatedAt       time.Time
}

func (MealPhotoConfirmationModel) TableName() string { return "meal_photo_confirmations" }

// MealEntryModel represents the GORM model for meal entries
type MealEntryModel struct {
	ID               uuid.UUID `gorm:"type:char(36);primaryKey"`
	UserID           uuid.UUID `gorm:"type:char(36);not null;index"`
	AnalysisID       uuid.UUID `gorm:"type:char(36);index"`
	ItemIndex        int
	ConfirmationKey  string  `gorm:"type:varchar(512);index"`
	Label            string  `gorm:"type:varchar(255);not null"`
	DisplayName      string  `gorm:"type:varchar(255)"`
	QuantityGrams    float64 `gorm:"not null"`
	Calories         float64 `gorm:"not null"`
	ProteinG         float64
	CarbsG           float64
	FatG             float64
	FiberG           float64
	EnrichmentSource string `gorm:"type:varchar(30)"`
	CreatedAt        time.Time
}

func (MealEntryModel) TableName() string { return "meal_entries" }

// AllModels lists every model for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&MealPhotoAnalysisModel{},
		&IdempotencyKeyModel{},
		&MealPhotoConfirmationModel{},
		&MealEntryModel{},
	}
}

// JSONSlice stores a slice as a JSON column
type JSONSlice[T any] []T

// Scan implements the sql.Scanner interface
func (j *JSONSlice[T]) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("cannot scan %T into JSONSlice", value)
	}
}

// Value implements the driver.Valuer interface
func (j JSONSlice[T]) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]T(j))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// BeforeCreate hook for MealEntryModel
func (m *MealEntryModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// NowUTC is the gorm NowFunc. SQLite compares timestamps as text, so every
// stored time is kept in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}
