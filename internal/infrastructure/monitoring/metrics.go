// Package monitoring provides Prometheus metrics and OpenTelemetry tracing.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mealsnap"

// PipelineMetrics records analysis pipeline telemetry in Prometheus
type PipelineMetrics struct {
	analysesTotal      *prometheus.CounterVec
	analysisDuration   *prometheus.HistogramVec
	adapterFailures    *prometheus.CounterVec
	itemsDropped       *prometheus.CounterVec
	enrichmentResolved *prometheus.CounterVec
	tierFailures       *prometheus.CounterVec
	caloriesCorrected  prometheus.Counter
	confirmationsTotal *prometheus.CounterVec
	mealEntriesCreated prometheus.Counter
}

// NewPipelineMetrics registers pipeline metrics with reg
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	f := promauto.With(reg)
	return &PipelineMetrics{
		analysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Meal photo analyses committed, by adapter and status",
		}, []string{"adapter", "status"}),
		analysisDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time from request to committed analysis",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"adapter"}),
		adapterFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vision_adapter_failures_total",
			Help:      "Vision adapter failures by terminal code",
		}, []string{"adapter", "code"}),
		itemsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_items_dropped_total",
			Help:      "Predicted items discarded by the parser",
		}, []string{"reason"}),
		enrichmentResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_resolved_total",
			Help:      "Items enriched, by winning tier",
		}, []string{"source"}),
		tierFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_tier_failures_total",
			Help:      "Enrichment tier lookups that failed",
		}, []string{"tier"}),
		caloriesCorrected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calories_corrected_total",
			Help:      "Profiles whose calories were recomputed from macros",
		}),
		confirmationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Confirmations handled, split by replay",
		}, []string{"replayed"}),
		mealEntriesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meal_entries_created_total",
			Help:      "Meal entries created by confirmations",
		}),
	}
}

var _ outbound.PipelineMetrics = (*PipelineMetrics)(nil)

func (m *PipelineMetrics) AnalysisCompleted(adapter string, status mealphoto.Status, duration time.Duration) {
	m.analysesTotal.WithLabelValues(adapter, string(status)).Inc()
	m.analysisDuration.WithLabelValues(adapter).Observe(duration.Seconds())
}

func (m *PipelineMetrics) AdapterFailed(adapter string, code mealphoto.ErrorCode) {
	m.adapterFailures.WithLabelValues(adapter, string(code)).Inc()
}

func (m *PipelineMetrics) ItemsDropped(reason string, n int) {
	if n > 0 {
		m.itemsDropped.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *PipelineMetrics) EnrichmentResolved(source nutrition.Source) {
	m.enrichmentResolved.WithLabelValues(string(source)).Inc()
}

func (m *PipelineMetrics) TierFailed(tier string) {
	m.tierFailures.WithLabelValues(tier).Inc()
}

func (m *PipelineMetrics) CaloriesCorrected() {
	m.caloriesCorrected.Inc()
}

func (m *PipelineMetrics) ConfirmationCompleted(replayed bool, entries int) {
	m.confirmationsTotal.WithLabelValues(strconv.FormatBool(replayed)).Inc()
	if !replayed {
		m.mealEntriesCreated.Add(float64(entries))
	}
}

// HTTPMetrics records request counts and latency per route pattern
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics registers HTTP metrics with reg
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	f := promauto.With(reg)
	return &HTTPMetrics{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Middleware instruments requests. Routes are labelled by chi pattern to
// keep cardinality bounded.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
