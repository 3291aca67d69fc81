package fdc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	Found   bool              `json:"found"`
	Profile nutrition.Profile `json:"profile"`
}

// CachedSource is a read-through cache in front of a nutrient source.
// Not-found results are cached for a shorter negative TTL. Concurrent
// lookups of the same label share one upstream call. Cache failures are
// logged and bypassed.
type CachedSource struct {
	source      outbound.NutrientSource
	cache       outbound.CacheRepository
	ttl         time.Duration
	negativeTTL time.Duration
	group       singleflight.Group
	logger      *zap.Logger
}

// NewCachedSource wraps source with cache
func NewCachedSource(source outbound.NutrientSource, cache outbound.CacheRepository, ttl, negativeTTL time.Duration, logger *zap.Logger) *CachedSource {
	return &CachedSource{
		source:      source,
		cache:       cache,
		ttl:         ttl,
		negativeTTL: negativeTTL,
		logger:      logger.Named("nutrient_cache"),
	}
}

var _ outbound.NutrientSource = (*CachedSource)(nil)

// Name returns the wrapped source name
func (s *CachedSource) Name() string {
	return s.source.Name()
}

// Lookup returns the cached profile or queries the source
func (s *CachedSource) Lookup(ctx context.Context, label string) (nutrition.Profile, error) {
	key := s.key(label)

	if entry, ok := s.get(ctx, key); ok {
		if !entry.Found {
			return nutrition.Profile{}, outbound.ErrNotFound
		}
		return entry.Profile, nil
	}

	// The shared call outlives any single caller so its result is cached.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		p, err := s.source.Lookup(shared, label)
		switch {
		case err == nil:
			s.put(shared, key, cacheEntry{Found: true, Profile: p}, s.ttl)
		case errors.Is(err, outbound.ErrNotFound) && s.negativeTTL > 0:
			s.put(shared, key, cacheEntry{Found: false}, s.negativeTTL)
		}
		return p, err
	})

	select {
	case <-ctx.Done():
		return nutrition.Profile{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nutrition.Profile{}, res.Err
		}
		return res.Val.(nutrition.Profile), nil
	}
}

func (s *CachedSource) key(label string) string {
	return "nutrient:" + s.source.Name() + ":" + strings.Join(strings.Fields(strings.ToLower(label)), " ")
}

func (s *CachedSource) get(ctx context.Context, key string) (cacheEntry, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, outbound.ErrCacheMiss) {
			s.logger.Warn("Nutrient cache read failed", zap.String("key", key), zap.Error(err))
		}
		return cacheEntry{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("Discarding corrupt nutrient cache entry", zap.String("key", key), zap.Error(err))
		_ = s.cache.Delete(ctx, key)
		return cacheEntry{}, false
	}
	return entry, true
}

func (s *CachedSource) put(ctx context.Context, key string, entry cacheEntry, ttl time.Duration) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		s.logger.Warn("Nutrient cache write failed", zap.String("key", key), zap.Error(err))
	}
}
