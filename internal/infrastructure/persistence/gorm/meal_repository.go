package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/meal"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MealRepository implements the meal store using GORM
type MealRepository struct {
	db *gorm.DB
}

// NewMealRepository creates a new meal repository
func NewMealRepository(db *gorm.DB) *MealRepository {
	return &MealRepository{db: db}
}

var _ outbound.MealStore = (*MealRepository)(nil)

func (r *MealRepository) withTx(tx *gorm.DB) *MealRepository {
	return &MealRepository{db: tx}
}

// CreateMealEntry inserts a meal entry
func (r *MealRepository) CreateMealEntry(ctx context.Context, entry *meal.Entry) (uuid.UUID, error) {
	if entry.UserID == uuid.Nil {
		return uuid.Nil, meal.ErrMissingUser
	}
	model := EntryToModel(entry)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return uuid.Nil, err
	}
	entry.ID = model.ID
	return model.ID, nil
}

// FindByConfirmationKey returns the entries of one confirmation in item order
func (r *MealRepository) FindByConfirmationKey(ctx context.Context, key string) ([]*meal.Entry, error) {
	var models []MealEntryModel
	err := r.db.WithContext(ctx).
		Where("confirmation_key = ?", key).
		Order("item_index ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]*meal.Entry, len(models))
	for i := range models {
		entries[i] = ModelToEntry(&models[i])
	}
	return entries, nil
}

// ConfirmationRepository records confirmations and creates their meal
// entries in a single transaction
type ConfirmationRepository struct {
	db    *gorm.DB
	meals *MealRepository
}

// NewConfirmationRepository creates a new confirmation repository
func NewConfirmationRepository(db *gorm.DB, meals *MealRepository) *ConfirmationRepository {
	return &ConfirmationRepository{db: db, meals: meals}
}

var _ outbound.ConfirmationRepository = (*ConfirmationRepository)(nil)

// ConfirmOnce inserts the confirmation row first; losing the insert means
// the key was already confirmed and the stored ids are returned instead.
func (r *ConfirmationRepository) ConfirmOnce(ctx context.Context, req outbound.ConfirmationRequest) (outbound.ConfirmationOutcome, error) {
	var out outbound.ConfirmationOutcome

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := MealPhotoConfirmationModel{
			ConfirmationKey: req.Key,
			AnalysisID:      req.AnalysisID,
			UserID:          req.UserID,
			CreatedAt:       req.ConfirmedAt,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("insert confirmation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var existing MealPhotoConfirmationModel
			if err := tx.Take(&existing, "confirmation_key = ?", req.Key).Error; err != nil {
				return fmt.Errorf("load confirmation: %w", err)
			}
			out = outbound.ConfirmationOutcome{MealIDs: existing.MealIDs, Replayed: true}
			return nil
		}

		meals := r.meals.withTx(tx)
		ids := make([]uuid.UUID, 0, len(req.Entries))
		for _, e := range req.Entries {
			id, err := meals.CreateMealEntry(ctx, e)
			if err != nil {
				return fmt.Errorf("create meal entry: %w", err)
			}
			ids = append(ids, id)
		}

		if err := tx.Model(&MealPhotoConfirmationModel{}).
			Where("confirmation_key = ?", req.Key).
			Update("meal_ids", JSONSlice[uuid.UUID](ids)).Error; err != nil {
			return fmt.Errorf("store meal ids: %w", err)
		}
		if err := markConverted(tx, req.AnalysisID, req.ConfirmedAt); err != nil {
			return err
		}
		out = outbound.ConfirmationOutcome{MealIDs: ids}
		return nil
	})
	return out, err
}

func markConverted(tx *gorm.DB, analysisID uuid.UUID, at time.Time) error {
	res := tx.Model(&MealPhotoAnalysisModel{}).
		Where("id = ? AND converted_at IS NULL", analysisID).
		Update("converted_at", at.UTC())
	if res.Error != nil {
		return fmt.Errorf("mark analysis converted: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := tx.Model(&MealPhotoAnalysisModel{}).Where("id = ?", analysisID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return errors.New("analysis to convert does not exist")
		}
	}
	return nil
}
