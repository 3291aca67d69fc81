// Package testutils provides custom assertions and testing utilities
package testutils

import (
	"testing"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AnalysisAssertions provides analysis-specific assertion methods
type AnalysisAssertions struct {
	t *testing.T
}

// NewAnalysisAssertions creates a new analysis assertions helper
func NewAnalysisAssertions(t *testing.T) *AnalysisAssertions {
	return &AnalysisAssertions{t: t}
}

// Consistent asserts the invariants every stored analysis must hold
func (aa *AnalysisAssertions) Consistent(a *mealphoto.Analysis, msgAndArgs ...interface{}) {
	aa.t.Helper()
	require.NotNil(aa.t, a, "Analysis should not be nil")
	assert.NotEqual(aa.t, uuid.Nil, a.ID(), "Analysis should have an ID")
	assert.NoError(aa.t, a.Validate(), msgAndArgs...)

	switch a.Status() {
	case mealphoto.StatusFailed:
		require.NotNil(aa.t, a.FailureReason(), "FAILED analysis needs a failure reason")
		assert.True(aa.t, a.FailureReason().Terminal(), "failure reason must be terminal")
		assert.Zero(aa.t, a.ItemCount(), "FAILED analysis must not carry items")
		assert.Zero(aa.t, a.TotalCalories())
	case mealphoto.StatusCompleted:
		assert.Nil(aa.t, a.FailureReason(), "COMPLETED analysis must not have a failure reason")
		assert.NotZero(aa.t, a.ItemCount(), "COMPLETED analysis needs items")
		aa.CaloriesAdd(a, msgAndArgs...)
	}
}

// CaloriesAdd asserts that item calories follow from quantity and profile
// and that the total is their rounded sum
func (aa *AnalysisAssertions) CaloriesAdd(a *mealphoto.Analysis, msgAndArgs ...interface{}) {
	aa.t.Helper()
	var cals []float64
	for i, item := range a.Items() {
		assert.Equal(aa.t, nutrition.ItemCalories(item.QuantityGrams, item.Nutrients.Calories), item.Calories,
			"item %d calories", i)
		assert.True(aa.t, item.EnrichmentSource.IsValid(), "item %d enrichment source", i)
		cals = append(cals, item.Calories)
	}
	assert.Equal(aa.t, nutrition.TotalCalories(cals...), a.TotalCalories(), msgAndArgs...)
}

// HasWarning asserts that a warning with the code was recorded
func (aa *AnalysisAssertions) HasWarning(a *mealphoto.Analysis, code mealphoto.ErrorCode, msgAndArgs ...interface{}) {
	aa.t.Helper()
	for _, w := range a.Warnings() {
		if w.Code == code {
			return
		}
	}
	assert.Fail(aa.t, "expected warning "+string(code), msgAndArgs...)
}

// FailedWith asserts a FAILED analysis with the given reason
func (aa *AnalysisAssertions) FailedWith(a *mealphoto.Analysis, code mealphoto.ErrorCode, msgAndArgs ...interface{}) {
	aa.t.Helper()
	require.NotNil(aa.t, a)
	assert.Equal(aa.t, mealphoto.StatusFailed, a.Status(), msgAndArgs...)
	require.NotNil(aa.t, a.FailureReason(), msgAndArgs...)
	assert.Equal(aa.t, code, *a.FailureReason(), msgAndArgs...)
	aa.Consistent(a, msgAndArgs...)
}
