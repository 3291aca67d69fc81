// Package outbound defines the interfaces for outbound ports (secondary/driven adapters)
// These are the interfaces that the application uses to interact with external systems
package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/meal"
	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/google/uuid"
)

// AnalysisRepository reads persisted analyses.
type AnalysisRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*mealphoto.Analysis, error)
}

// IdempotencyStore maps analyze fingerprints to analyses. Records are written
// once and never updated.
type IdempotencyStore interface {
	// Lookup returns the analysis id for an unexpired fingerprint.
	Lookup(ctx context.Context, fingerprint string, now time.Time) (uuid.UUID, bool, error)

	// CommitIfAbsent persists the analysis together with its fingerprint
	// mapping in one step. When an unexpired mapping already exists nothing
	// is written and the analysis it points to is returned with
	// committed=false.
	CommitIfAbsent(ctx context.Context, fingerprint string, analysis *mealphoto.Analysis, expiresAt time.Time) (stored *mealphoto.Analysis, committed bool, err error)

	// PurgeExpired removes mappings that expired before now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// MealStore persists meal entries.
type MealStore interface {
	CreateMealEntry(ctx context.Context, entry *meal.Entry) (uuid.UUID, error)
	FindByConfirmationKey(ctx context.Context, key string) ([]*meal.Entry, error)
}

// ConfirmationRequest is one attempt to convert analysis items into meals.
type ConfirmationRequest struct {
	Key         string
	AnalysisID  uuid.UUID
	UserID      uuid.UUID
	Entries     []*meal.Entry
	ConfirmedAt time.Time
}

// ConfirmationOutcome reports the meal ids bound to a confirmation key.
type ConfirmationOutcome struct {
	MealIDs  []uuid.UUID
	Replayed bool
}

// ConfirmationRepository records confirmations exactly once. The first call
// for a key creates the entries through the MealStore and marks the analysis
// converted; later calls return the stored ids and create nothing.
type ConfirmationRepository interface {
	ConfirmOnce(ctx context.Context, req ConfirmationRequest) (ConfirmationOutcome, error)
}

// ErrCacheMiss is returned by CacheRepository.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
