package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestPipelineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)

	m.AnalysisCompleted("stub", mealphoto.StatusCompleted, 120*time.Millisecond)
	m.AnalysisCompleted("stub", mealphoto.StatusCompleted, 80*time.Millisecond)
	m.AdapterFailed("remote:openai", mealphoto.CodeRateLimited)
	m.ItemsDropped("low_confidence", 2)
	m.ItemsDropped("empty_label", 0)
	m.EnrichmentResolved(nutrition.SourceCategoryProfile)
	m.TierFailed("exact")
	m.CaloriesCorrected()
	m.ConfirmationCompleted(false, 3)
	m.ConfirmationCompleted(true, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.analysesTotal.WithLabelValues("stub", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.adapterFailures.WithLabelValues("remote:openai", "RATE_LIMITED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.itemsDropped.WithLabelValues("low_confidence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.enrichmentResolved.WithLabelValues("category_profile")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tierFailures.WithLabelValues("exact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.caloriesCorrected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.confirmationsTotal.WithLabelValues("true")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.mealEntriesCreated))
	assert.Equal(t, 1, testutil.CollectAndCount(m.analysisDuration))
}

func TestHTTPMetrics_LabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	hm := NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(hm.Middleware)
	r.Get("/api/v1/meal-photos/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/meal-photos/"+id, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(hm.requestsTotal.WithLabelValues("GET", "/api/v1/meal-photos/{id}", "404")))
}

func TestTracingProvider_Disabled(t *testing.T) {
	tp, err := NewTracingProvider(TracingConfig{Enabled: false}, zaptest.NewLogger(t))
	assert.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}
