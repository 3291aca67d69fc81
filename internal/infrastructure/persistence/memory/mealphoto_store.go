package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"github.com/google/uuid"
)

type idempotencyRecord struct {
	analysisID uuid.UUID
	expiresAt  time.Time
}

// MealPhotoStore keeps analyses, fingerprint mappings and confirmations in
// memory. One mutex guards all three maps so commits are atomic; it is never
// held across anything slower than a map operation.
type MealPhotoStore struct {
	mu            sync.Mutex
	analyses      map[uuid.UUID]mealphoto.Snapshot
	keys          map[string]idempotencyRecord
	confirmations map[string][]uuid.UUID
	meals         outbound.MealStore
}

// NewMealPhotoStore creates an empty store writing meal entries to meals.
func NewMealPhotoStore(meals outbound.MealStore) *MealPhotoStore {
	return &MealPhotoStore{
		analyses:      make(map[uuid.UUID]mealphoto.Snapshot),
		keys:          make(map[string]idempotencyRecord),
		confirmations: make(map[string][]uuid.UUID),
		meals:         meals,
	}
}

var (
	_ outbound.AnalysisRepository     = (*MealPhotoStore)(nil)
	_ outbound.IdempotencyStore       = (*MealPhotoStore)(nil)
	_ outbound.ConfirmationRepository = (*MealPhotoStore)(nil)
)

// FindByID returns a fresh copy of the analysis.
func (s *MealPhotoStore) FindByID(_ context.Context, id uuid.UUID) (*mealphoto.Analysis, error) {
	s.mu.Lock()
	snap, ok := s.analyses[id]
	s.mu.Unlock()

	if !ok {
		return nil, mealphoto.ErrAnalysisNotFound
	}
	return mealphoto.Reconstitute(snap)
}

// Lookup returns the analysis id mapped to a live fingerprint.
func (s *MealPhotoStore) Lookup(_ context.Context, fingerprint string, now time.Time) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.keys[fingerprint]
	if !ok || !now.Before(rec.expiresAt) {
		return uuid.Nil, false, nil
	}
	return rec.analysisID, true, nil
}

// CommitIfAbsent stores the analysis and its mapping unless a live mapping
// already exists, in which case the mapped analysis is returned.
func (s *MealPhotoStore) CommitIfAbsent(_ context.Context, fingerprint string, analysis *mealphoto.Analysis, expiresAt time.Time) (*mealphoto.Analysis, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.keys[fingerprint]; ok && analysis.CreatedAt().Before(rec.expiresAt) {
		snap, ok := s.analyses[rec.analysisID]
		if !ok {
			return nil, false, fmt.Errorf("fingerprint %s maps to missing analysis %s", fingerprint, rec.analysisID)
		}
		winner, err := mealphoto.Reconstitute(snap)
		return winner, false, err
	}

	s.analyses[analysis.ID()] = analysis.Snapshot()
	s.keys[fingerprint] = idempotencyRecord{analysisID: analysis.ID(), expiresAt: expiresAt}
	return analysis, true, nil
}

// PurgeExpired drops expired mappings. Analyses are kept.
func (s *MealPhotoStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, rec := range s.keys {
		if !now.Before(rec.expiresAt) {
			delete(s.keys, k)
			n++
		}
	}
	return n, nil
}

// ConfirmOnce creates the entries for a new confirmation key, or returns the
// ids stored for a known one.
func (s *MealPhotoStore) ConfirmOnce(ctx context.Context, req outbound.ConfirmationRequest) (outbound.ConfirmationOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ids, ok := s.confirmations[req.Key]; ok {
		return outbound.ConfirmationOutcome{MealIDs: append([]uuid.UUID(nil), ids...), Replayed: true}, nil
	}

	snap, ok := s.analyses[req.AnalysisID]
	if !ok {
		return outbound.ConfirmationOutcome{}, mealphoto.ErrAnalysisNotFound
	}

	ids := make([]uuid.UUID, 0, len(req.Entries))
	for _, e := range req.Entries {
		id, err := s.meals.CreateMealEntry(ctx, e)
		if err != nil {
			return outbound.ConfirmationOutcome{}, fmt.Errorf("create meal entry: %w", err)
		}
		ids = append(ids, id)
	}
	s.confirmations[req.Key] = ids

	if snap.ConvertedAt == nil {
		at := req.ConfirmedAt.UTC()
		snap.ConvertedAt = &at
		s.analyses[req.AnalysisID] = snap
	}
	return outbound.ConfirmationOutcome{MealIDs: append([]uuid.UUID(nil), ids...)}, nil
}

// AnalysisCount returns the number of stored analyses.
func (s *MealPhotoStore) AnalysisCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.analyses)
}
