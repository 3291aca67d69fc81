// Package server provides the HTTP server for the meal photo REST API
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/alchemorsel/mealsnap/internal/infrastructure/config"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/http/handlers"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/http/middleware"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/monitoring"
	"github.com/alchemorsel/mealsnap/pkg/healthcheck"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server
type Server struct {
	config      *config.Config
	logger      *zap.Logger
	router      *chi.Mux
	server      *http.Server
	mealPhotos  *handlers.MealPhotoHandlers
	health      *healthcheck.HealthCheck
	httpMetrics *monitoring.HTTPMetrics
	gatherer    prometheus.Gatherer
	limiter     *middleware.RateLimiter
}

// NewServer creates a new HTTP server instance. httpMetrics, gatherer and
// limiter are optional.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	mealPhotos *handlers.MealPhotoHandlers,
	health *healthcheck.HealthCheck,
	httpMetrics *monitoring.HTTPMetrics,
	gatherer prometheus.Gatherer,
	limiter *middleware.RateLimiter,
) *Server {
	s := &Server{
		config:      cfg,
		logger:      logger.Named("http"),
		mealPhotos:  mealPhotos,
		health:      health,
		httpMetrics: httpMetrics,
		gatherer:    gatherer,
		limiter:     limiter,
	}

	s.router = s.setupRouter()

	var handler http.Handler = s.router
	if cfg.Monitoring.EnableTracing {
		handler = otelhttp.NewHandler(s.router, "mealsnap.http",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}

	s.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port)),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// setupRouter configures the HTTP router with middleware and routes
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()
	mon := s.config.Monitoring

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger, mon.HealthCheckPath, mon.ReadinessPath, mon.MetricsPath))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Security())
	r.Use(middleware.CORS(s.config.Server.AllowedOrigins))
	if s.httpMetrics != nil {
		r.Use(s.httpMetrics.Middleware)
	}

	r.Get(mon.HealthCheckPath, s.health.Handler())
	r.Get(mon.ReadinessPath, s.health.ReadinessHandler())
	r.Get("/live", s.health.LivenessHandler())
	if mon.EnableMetrics && s.gatherer != nil {
		r.Handle(mon.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil && s.config.RateLimit.Enable {
			r.Use(s.limiter.Middleware)
		}
		if s.config.Server.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(s.config.Server.RequestTimeout))
		}
		r.Use(middleware.MaxBodyBytes(s.config.Server.MaxBodyBytes))
		r.Use(middleware.JSONOnly())
		r.Use(middleware.UserID())

		r.Route("/meal-photos", s.mealPhotos.Routes)
	})

	return r
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		zap.String("address", s.server.Addr),
		zap.String("environment", s.config.App.Environment),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
