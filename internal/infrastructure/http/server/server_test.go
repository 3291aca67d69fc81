package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alchemorsel/mealsnap/internal/infrastructure/config"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/http/handlers"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/http/middleware"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/monitoring"
	"github.com/alchemorsel/mealsnap/internal/ports/inbound"
	"github.com/alchemorsel/mealsnap/pkg/healthcheck"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeService struct{}

func (fakeService) AnalyzeMealPhoto(_ context.Context, cmd inbound.AnalyzeCommand) (*inbound.AnalysisDTO, error) {
	return &inbound.AnalysisDTO{ID: uuid.New(), UserID: cmd.UserID, IdempotencyKey: cmd.IdempotencyKey}, nil
}

func (fakeService) ConfirmMealPhoto(_ context.Context, cmd inbound.ConfirmCommand) (*inbound.ConfirmationDTO, error) {
	return &inbound.ConfirmationDTO{AnalysisID: cmd.AnalysisID}, nil
}

func (fakeService) GetMealPhotoAnalysis(_ context.Context, id, userID uuid.UUID) (*inbound.AnalysisDTO, error) {
	return &inbound.AnalysisDTO{ID: id, UserID: userID}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Environment: "test"},
		Server: config.ServerConfig{
			Port:           8080,
			MaxBodyBytes:   1 << 10,
			RequestTimeout: 5 * time.Second,
		},
		RateLimit: config.RateLimitConfig{Enable: true},
		Monitoring: config.MonitoringConfig{
			EnableMetrics:   true,
			HealthCheckPath: "/health",
			ReadinessPath:   "/ready",
			MetricsPath:     "/metrics",
		},
	}
}

func newTestServer(t *testing.T, limiter *middleware.RateLimiter) http.Handler {
	t.Helper()
	log := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()

	health := healthcheck.New("test", log)
	health.Register("database", healthcheck.NewPingChecker("database", func(context.Context) error { return nil }))

	s := NewServer(
		testConfig(),
		log,
		handlers.NewMealPhotoHandlers(fakeService{}, nil, log),
		health,
		monitoring.NewHTTPMetrics(reg),
		reg,
		limiter,
	)
	return s.Handler()
}

func request(h http.Handler, method, path, body string, user bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user {
		req.Header.Set(middleware.UserIDHeader, uuid.NewString())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Routes(t *testing.T) {
	h := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		user   bool
		want   int
	}{
		{"Health", http.MethodGet, "/health", "", false, http.StatusOK},
		{"Ready", http.MethodGet, "/ready", "", false, http.StatusOK},
		{"Analyze", http.MethodPost, "/api/v1/meal-photos/analyze", `{"photo_id":"p1"}`, true, http.StatusOK},
		{"AnalyzeWithoutUser", http.MethodPost, "/api/v1/meal-photos/analyze", `{"photo_id":"p1"}`, false, http.StatusUnauthorized},
		{"Confirm", http.MethodPost, "/api/v1/meal-photos/" + uuid.NewString() + "/confirm", `{"accepted_indexes":[0]}`, true, http.StatusCreated},
		{"Get", http.MethodGet, "/api/v1/meal-photos/" + uuid.NewString(), "", true, http.StatusOK},
		{"UnknownRoute", http.MethodGet, "/api/v1/meals", "", true, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := request(h, tt.method, tt.path, tt.body, tt.user)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	h := newTestServer(t, nil)
	request(h, http.MethodGet, "/api/v1/meal-photos/"+uuid.NewString(), "", true)

	rec := request(h, http.MethodGet, "/metrics", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mealsnap_http_requests_total")
}

func TestServer_RateLimited(t *testing.T) {
	h := newTestServer(t, middleware.NewRateLimiter(1, 1, time.Minute))

	first := request(h, http.MethodGet, "/api/v1/meal-photos/"+uuid.NewString(), "", true)
	second := request(h, http.MethodGet, "/api/v1/meal-photos/"+uuid.NewString(), "", true)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	health := request(h, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, health.Code, "health endpoints are not rate limited")
}

func TestServer_RejectsLargeBodies(t *testing.T) {
	h := newTestServer(t, nil)
	body := `{"photo_id":"` + strings.Repeat("a", 2<<10) + `"}`

	rec := request(h, http.MethodPost, "/api/v1/meal-photos/analyze", body, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
