package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alchemorsel/mealsnap/internal/domain/meal"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"github.com/google/uuid"
)

// MealStore keeps meal entries in memory.
type MealStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]meal.Entry
	byKey   map[string][]uuid.UUID
}

// NewMealStore creates an empty meal store.
func NewMealStore() *MealStore {
	return &MealStore{
		entries: make(map[uuid.UUID]meal.Entry),
		byKey:   make(map[string][]uuid.UUID),
	}
}

var _ outbound.MealStore = (*MealStore)(nil)

// CreateMealEntry stores a copy of the entry.
func (s *MealStore) CreateMealEntry(_ context.Context, entry *meal.Entry) (uuid.UUID, error) {
	if entry.UserID == uuid.Nil {
		return uuid.Nil, meal.ErrMissingUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	s.entries[entry.ID] = *entry
	if entry.ConfirmationKey != "" {
		s.byKey[entry.ConfirmationKey] = append(s.byKey[entry.ConfirmationKey], entry.ID)
	}
	return entry.ID, nil
}

// FindByConfirmationKey returns entries created by one confirmation in item order.
func (s *MealStore) FindByConfirmationKey(_ context.Context, key string) ([]*meal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byKey[key]
	out := make([]*meal.Entry, 0, len(ids))
	for _, id := range ids {
		e := s.entries[id]
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemIndex < out[j].ItemIndex })
	return out, nil
}

// Count returns the number of stored entries.
func (s *MealStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
