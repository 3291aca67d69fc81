package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"
)

var errLostRace = errors.New("fingerprint committed concurrently")

// MealPhotoRepository implements analysis storage and the idempotency store
// using GORM. An analysis and its fingerprint mapping are written in one
// transaction.
type MealPhotoRepository struct {
	db *gorm.DB
}

// NewMealPhotoRepository creates a new meal photo repository
func NewMealPhotoRepository(db *gorm.DB) *MealPhotoRepository {
	return &MealPhotoRepository{db: db}
}

var (
	_ outbound.AnalysisRepository = (*MealPhotoRepository)(nil)
	_ outbound.IdempotencyStore   = (*MealPhotoRepository)(nil)
)

// FindByID finds an analysis by ID
func (r *MealPhotoRepository) FindByID(ctx context.Context, id uuid.UUID) (*mealphoto.Analysis, error) {
	return findAnalysis(r.db.WithContext(ctx), id)
}

func findAnalysis(db *gorm.DB, id uuid.UUID) (*mealphoto.Analysis, error) {
	var model MealPhotoAnalysisModel
	if err := db.Take(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mealphoto.ErrAnalysisNotFound
		}
		return nil, err
	}
	return ModelToAnalysis(&model)
}

// Lookup returns the analysis id for an unexpired fingerprint
func (r *MealPhotoRepository) Lookup(ctx context.Context, fingerprint string, now time.Time) (uuid.UUID, bool, error) {
	return lookupFingerprint(r.db.WithContext(ctx), fingerprint, now)
}

func lookupFingerprint(db *gorm.DB, fingerprint string, now time.Time) (uuid.UUID, bool, error) {
	var rec IdempotencyKeyModel
	err := db.
		Where("fingerprint = ? AND expires_at > ?", fingerprint, now).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return rec.AnalysisID, true, nil
}

// CommitIfAbsent inserts the analysis and its fingerprint mapping unless a
// live mapping exists. Concurrent committers are arbitrated by the primary
// key on the fingerprint column.
func (r *MealPhotoRepository) CommitIfAbsent(ctx context.Context, fingerprint string, analysis *mealphoto.Analysis, expiresAt time.Time) (*mealphoto.Analysis, bool, error) {
	at := analysis.CreatedAt()
	var winnerID uuid.UUID

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec IdempotencyKeyModel
		err := tx.Where("fingerprint = ?", fingerprint).Take(&rec).Error
		switch {
		case err == nil && rec.ExpiresAt.After(at):
			winnerID = rec.AnalysisID
			return nil
		case err == nil:
			if err := tx.Delete(&rec).Error; err != nil {
				return fmt.Errorf("drop expired fingerprint: %w", err)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := tx.Create(AnalysisToModel(analysis)).Error; err != nil {
			return fmt.Errorf("insert analysis: %w", err)
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&IdempotencyKeyModel{
			Fingerprint: fingerprint,
			AnalysisID:  analysis.ID(),
			CreatedAt:   at,
			ExpiresAt:   expiresAt,
		})
		if res.Error != nil {
			return fmt.Errorf("insert fingerprint: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errLostRace
		}
		return nil
	})

	// Read the winner from the primary; a replica may not have it yet.
	primary := r.db.WithContext(ctx).Clauses(dbresolver.Write).Session(&gorm.Session{})
	switch {
	case errors.Is(err, errLostRace):
		id, ok, lerr := lookupFingerprint(primary, fingerprint, at)
		if lerr != nil {
			return nil, false, lerr
		}
		if !ok {
			return nil, false, fmt.Errorf("fingerprint %s vanished after conflict", fingerprint)
		}
		winnerID = id
	case err != nil:
		return nil, false, err
	case winnerID == uuid.Nil:
		return analysis, true, nil
	}

	winner, err := findAnalysis(primary, winnerID)
	if err != nil {
		return nil, false, fmt.Errorf("load winning analysis: %w", err)
	}
	return winner, false, nil
}

// PurgeExpired deletes fingerprint mappings that expired before now
func (r *MealPhotoRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&IdempotencyKeyModel{})
	return res.RowsAffected, res.Error
}
