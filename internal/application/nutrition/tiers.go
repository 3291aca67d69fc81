package nutrition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
)

// ErrNoCategory is returned when no category keyword matches a label.
var ErrNoCategory = errors.New("no category matches label")

// Tier is one step of nutrient enrichment.
type Tier interface {
	Source() nutrition.Source
	Lookup(ctx context.Context, label string) (nutrition.Profile, error)
}

// ExactTier queries an external nutrient database under a deadline.
type ExactTier struct {
	source  outbound.NutrientSource
	timeout time.Duration
}

// NewExactTier wraps a nutrient source.
func NewExactTier(source outbound.NutrientSource, timeout time.Duration) *ExactTier {
	return &ExactTier{source: source, timeout: timeout}
}

func (t *ExactTier) Source() nutrition.Source { return nutrition.SourceExact }

func (t *ExactTier) Lookup(ctx context.Context, label string) (nutrition.Profile, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	p, err := t.source.Lookup(ctx, label)
	if err != nil {
		return nutrition.Profile{}, fmt.Errorf("%s: %w", t.source.Name(), err)
	}
	return p, nil
}

// CategoryTier estimates a profile from a static category table.
type CategoryTier struct {
	table outbound.CategoryProfileTable
}

// NewCategoryTier wraps a category table.
func NewCategoryTier(table outbound.CategoryProfileTable) *CategoryTier {
	return &CategoryTier{table: table}
}

func (t *CategoryTier) Source() nutrition.Source { return nutrition.SourceCategoryProfile }

func (t *CategoryTier) Lookup(_ context.Context, label string) (nutrition.Profile, error) {
	c, ok := t.table.Match(label)
	if !ok {
		return nutrition.Profile{}, ErrNoCategory
	}
	return c.Profile, nil
}

// DefaultTier always returns the generic profile.
type DefaultTier struct{}

func (DefaultTier) Source() nutrition.Source { return nutrition.SourceDefault }

func (DefaultTier) Lookup(context.Context, string) (nutrition.Profile, error) {
	return nutrition.DefaultProfile(), nil
}
