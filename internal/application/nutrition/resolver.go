// Package nutrition resolves food labels to per-100 g nutrient profiles
// through an ordered list of enrichment tiers.
package nutrition

import (
	"context"
	"fmt"

	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/alchemorsel/mealsnap/internal/application/nutrition")

// Attempt records one tier failure.
type Attempt struct {
	Source nutrition.Source
	Err    error
}

// Resolution is the outcome of enriching one item.
type Resolution struct {
	Profile   nutrition.Profile
	Source    nutrition.Source
	Corrected bool
	Calories  float64
	Attempts  []Attempt
}

// Degraded reports whether a better tier was tried and failed.
func (r Resolution) Degraded() bool {
	return len(r.Attempts) > 0
}

// Resolver walks the tiers in order until one yields a valid profile.
type Resolver struct {
	tiers     []Tier
	tolerance float64
	metrics   outbound.PipelineMetrics
	logger    *zap.Logger
}

// NewResolver creates a resolver. A DefaultTier is appended when the list
// does not end with one, so resolution always succeeds.
func NewResolver(tiers []Tier, tolerance float64, metrics outbound.PipelineMetrics, logger *zap.Logger) *Resolver {
	if n := len(tiers); n == 0 || tiers[n-1].Source() != nutrition.SourceDefault {
		tiers = append(append([]Tier(nil), tiers...), DefaultTier{})
	}
	if tolerance <= 0 {
		tolerance = nutrition.DefaultCalorieTolerance
	}
	if metrics == nil {
		metrics = outbound.NopMetrics{}
	}
	return &Resolver{
		tiers:     tiers,
		tolerance: tolerance,
		metrics:   metrics,
		logger:    logger.Named("nutrient-resolver"),
	}
}

// Resolve enriches a label for the given quantity. It errors only when ctx
// is done.
func (r *Resolver) Resolve(ctx context.Context, label string, quantityGrams float64) (Resolution, error) {
	ctx, span := tracer.Start(ctx, "nutrition.resolve")
	defer span.End()

	var res Resolution
	for _, tier := range r.tiers {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}

		profile, err := r.lookup(ctx, tier, label)
		if err == nil {
			err = profile.Validate()
		}
		if err != nil {
			res.Attempts = append(res.Attempts, Attempt{Source: tier.Source(), Err: err})
			r.record(func() { r.metrics.TierFailed(string(tier.Source())) })
			r.logger.Debug("Enrichment tier failed",
				zap.String("label", label),
				zap.String("tier", string(tier.Source())),
				zap.Error(err),
			)
			continue
		}

		res.Profile, res.Corrected = profile.Reconcile(r.tolerance)
		res.Source = tier.Source()
		res.Calories = nutrition.ItemCalories(quantityGrams, res.Profile.Calories)

		r.record(func() { r.metrics.EnrichmentResolved(res.Source) })
		if res.Corrected {
			r.record(func() { r.metrics.CaloriesCorrected() })
		}
		span.SetAttributes(
			attribute.String("nutrition.source", string(res.Source)),
			attribute.Bool("nutrition.corrected", res.Corrected),
		)
		return res, nil
	}

	// Unreachable with a trailing DefaultTier unless it was made to fail.
	res.Profile, res.Source = nutrition.DefaultProfile(), nutrition.SourceDefault
	res.Calories = nutrition.ItemCalories(quantityGrams, res.Profile.Calories)
	r.record(func() { r.metrics.EnrichmentResolved(res.Source) })
	return res, nil
}

// record runs a metrics call; a panicking sink never changes the resolution.
func (r *Resolver) record(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("Metrics recording failed", zap.Any("panic", rec))
		}
	}()
	fn()
}

func (r *Resolver) lookup(ctx context.Context, tier Tier, label string) (p nutrition.Profile, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tier %s panicked: %v", tier.Source(), rec)
		}
	}()
	return tier.Lookup(ctx, label)
}
