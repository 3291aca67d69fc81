package mealphoto

import (
	"context"
	"time"

	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"go.uber.org/zap"
)

// IdempotencyJanitor periodically deletes expired fingerprint mappings.
// Lookups already ignore expired records; purging only bounds storage.
type IdempotencyJanitor struct {
	store    outbound.IdempotencyStore
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewIdempotencyJanitor creates a janitor running every interval
func NewIdempotencyJanitor(store outbound.IdempotencyStore, interval time.Duration, logger *zap.Logger) *IdempotencyJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &IdempotencyJanitor{
		store:    store,
		interval: interval,
		logger:   logger.Named("idempotency-janitor"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PurgeOnce removes expired mappings and returns how many were deleted
func (j *IdempotencyJanitor) PurgeOnce(ctx context.Context) (int64, error) {
	n, err := j.store.PurgeExpired(ctx, j.now())
	if err != nil {
		j.logger.Warn("Idempotency purge failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		j.logger.Info("Purged expired idempotency keys", zap.Int64("count", n))
	}
	return n, nil
}

// Run purges on every tick until ctx is cancelled
func (j *IdempotencyJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = j.PurgeOnce(ctx)
		}
	}
}
