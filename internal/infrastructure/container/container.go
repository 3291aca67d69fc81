// Package container provides dependency injection using Uber FX
// This implements the Dependency Inversion Principle from SOLID
package container

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	mealphotoapp "github.com/alchemorsel/mealsnap/internal/application/mealphoto"
	nutritionapp "github.com/alchemorsel/mealsnap/internal/application/nutrition"
	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/ai/vision"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/awsclient"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/config"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/events"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/http/handlers"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/http/middleware"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/http/server"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/monitoring"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/nutrition/categories"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/nutrition/fdc"
	gormrepo "github.com/alchemorsel/mealsnap/internal/infrastructure/persistence/gorm"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/persistence/memory"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/persistence/migrations"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/persistence/postgres"
	redisrepo "github.com/alchemorsel/mealsnap/internal/infrastructure/persistence/redis"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/persistence/sqlite"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/storage"
	"github.com/alchemorsel/mealsnap/internal/ports/inbound"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"github.com/alchemorsel/mealsnap/pkg/healthcheck"
	"github.com/alchemorsel/mealsnap/pkg/logger"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/rekognition"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ConfigPath is the configuration file to load. Empty means defaults plus
// environment overrides.
type ConfigPath string

// Module provides all dependency injection modules
var Module = fx.Options(
	// Infrastructure modules
	ConfigModule,
	LoggerModule,
	ObservabilityModule,
	DatabaseModule,
	CacheModule,

	// Adapter modules
	RepositoryModule,
	VisionModule,
	NutritionModule,
	EventModule,

	// Service modules
	ServiceModule,

	// HTTP modules
	HTTPModule,

	// Lifecycle hooks
	LifecycleModule,
)

// ConfigModule provides configuration
var ConfigModule = fx.Provide(
	func(path ConfigPath) (*config.Config, error) {
		return config.Load(string(path))
	},
)

// LoggerModule provides logging
var LoggerModule = fx.Provide(
	func(cfg *config.Config) (*zap.Logger, error) {
		log, err := logger.New(logger.Config{
			Level:       cfg.App.LogLevel,
			Format:      cfg.App.LogFormat,
			Development: cfg.App.Debug,
		})
		if err != nil {
			return nil, err
		}
		return log.With(
			zap.String("service", cfg.App.Name),
			zap.String("version", cfg.App.Version),
		), nil
	},
)

// ObservabilityModule provides metrics, tracing and health checks
var ObservabilityModule = fx.Provide(
	func() *prometheus.Registry {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		return reg
	},
	func(reg *prometheus.Registry) outbound.PipelineMetrics {
		return monitoring.NewPipelineMetrics(reg)
	},
	func(reg *prometheus.Registry) *monitoring.HTTPMetrics {
		return monitoring.NewHTTPMetrics(reg)
	},
	provideTracing,
	func(cfg *config.Config, reg *prometheus.Registry, log *zap.Logger) *healthcheck.HealthCheck {
		hc := healthcheck.New(cfg.App.Version, log)
		hc.SetMetrics(healthcheck.NewHealthMetrics(reg, "mealsnap"))
		return hc
	},
)

func provideTracing(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*monitoring.TracingProvider, error) {
	tp, err := monitoring.NewTracingProvider(monitoring.TracingConfig{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		Exporter:       cfg.Monitoring.TraceExporter,
		JaegerEndpoint: cfg.Monitoring.JaegerEndpoint,
		OTLPEndpoint:   cfg.Monitoring.OTLPEndpoint,
		SamplingRate:   cfg.Monitoring.SamplingRate,
		Enabled:        cfg.Monitoring.EnableTracing,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	lc.Append(fx.Hook{OnStop: tp.Shutdown})
	return tp, nil
}

// Database is the selected persistence backend. GORM and SQL are nil for
// the memory driver.
type Database struct {
	GORM *gorm.DB
	SQL  *sql.DB
}

// DatabaseModule provides database connections
var DatabaseModule = fx.Provide(provideDatabase)

func provideDatabase(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, hc *healthcheck.HealthCheck) (*Database, error) {
	var db *Database

	switch cfg.Database.Driver {
	case "memory":
		log.Info("Using in-memory stores")
		return &Database{}, nil

	case "sqlite":
		gdb, err := sqlite.SetupDatabase(cfg.Database.SQLitePath, cfg.Database.LogLevel, log)
		if err != nil {
			return nil, fmt.Errorf("failed to setup SQLite database: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		db = &Database{GORM: gdb, SQL: sqlDB}
		log.Info("Connected to SQLite database", zap.String("path", cfg.Database.SQLitePath))

	case "postgres":
		cm, err := postgres.NewConnectionManager(cfg, log)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			// The migrator shares the pool and is not closed here, closing
			// it would close the pool too.
			m, err := migrations.New(cm.SQLDB(), log)
			if err != nil {
				_ = cm.Close()
				return nil, err
			}
			if err := m.Up(); err != nil {
				_ = cm.Close()
				return nil, err
			}
		}
		db = &Database{GORM: cm.GetDB(), SQL: cm.SQLDB()}

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	hc.Register("database", healthcheck.NewDatabaseChecker(db.SQL))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return db.SQL.Close()
		},
	})
	return db, nil
}

// CacheModule provides caching
var CacheModule = fx.Provide(provideCache)

func provideCache(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, hc *healthcheck.HealthCheck) outbound.CacheRepository {
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewClient(cfg.Redis, log)
		if err == nil {
			repo := redisrepo.NewCacheRepository(client, log)
			hc.RegisterOptional("cache", healthcheck.NewPingChecker("cache", repo.Ping))
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error { return client.Close() },
			})
			return repo
		}
		log.Warn("Redis unavailable, falling back to in-memory cache", zap.Error(err))
	}

	repo := memory.NewCacheRepository(time.Minute)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return repo.Close() },
	})
	return repo
}

// Stores groups the persistence ports backed by the selected database
type Stores struct {
	fx.Out

	Analyses      outbound.AnalysisRepository
	Idempotency   outbound.IdempotencyStore
	Confirmations outbound.ConfirmationRepository
	Meals         outbound.MealStore
}

// RepositoryModule provides repository implementations
var RepositoryModule = fx.Provide(provideStores)

func provideStores(db *Database) Stores {
	if db.GORM == nil {
		meals := memory.NewMealStore()
		photos := memory.NewMealPhotoStore(meals)
		return Stores{
			Analyses:      photos,
			Idempotency:   photos,
			Confirmations: photos,
			Meals:         meals,
		}
	}

	meals := gormrepo.NewMealRepository(db.GORM)
	photos := gormrepo.NewMealPhotoRepository(db.GORM)
	return Stores{
		Analyses:      photos,
		Idempotency:   photos,
		Confirmations: gormrepo.NewConfirmationRepository(db.GORM, meals),
		Meals:         meals,
	}
}

// VisionModule provides the photo loader and the vision adapter
var VisionModule = fx.Provide(
	func(cfg *config.Config) (*session.Session, error) {
		return awsclient.NewSession(cfg.AWS)
	},
	providePhotoLoader,
	provideVisionAdapter,
)

func providePhotoLoader(cfg *config.Config, sess *session.Session, log *zap.Logger) outbound.PhotoLoader {
	web := storage.NewHTTPLoader(cfg.Vision.PhotoFetchTime, cfg.Vision.MaxPhotoBytes, log)

	var objects *storage.S3Loader
	if cfg.AWS.PhotoBucket != "" {
		objects = storage.NewS3Loader(s3.New(sess), cfg.AWS.PhotoBucket, cfg.Vision.MaxPhotoBytes, log)
	}
	return storage.NewLoader(objects, web)
}

func provideVisionAdapter(
	cfg *config.Config,
	loader outbound.PhotoLoader,
	sess *session.Session,
	hc *healthcheck.HealthCheck,
	log *zap.Logger,
) outbound.VisionAdapter {
	var remote *vision.RemoteAdapter
	if cfg.Vision.Mode == vision.ModeRemote {
		var backend vision.Backend
		switch cfg.Vision.Provider {
		case "rekognition":
			backend = vision.NewRekognitionBackend(rekognition.New(sess), cfg.Vision.MinConfidence, log)
		default:
			backend = vision.NewOpenAIBackend(vision.OpenAIConfig{
				BaseURL:   cfg.Vision.OpenAIBaseURL,
				APIKey:    cfg.Vision.OpenAIKey,
				Model:     cfg.Vision.OpenAIModel,
				MaxTokens: cfg.Vision.MaxTokens,
				Timeout:   cfg.Vision.Timeout,
			}, log)
		}
		remote = vision.NewRemoteAdapter(loader, backend, log)
	}

	adapter := vision.Select(context.Background(), cfg.Vision.Mode, remote, cfg.Vision.PingTimeout, log)
	if p, ok := adapter.(outbound.Pinger); ok {
		hc.RegisterOptional("vision", healthcheck.NewPingChecker("vision", p.Ping))
	}
	return adapter
}

// NutritionModule provides the nutrient resolver and its tiers
var NutritionModule = fx.Provide(
	func(cfg *config.Config) (*categories.Table, error) {
		if cfg.Nutrition.CategoriesFile != "" {
			return categories.Load(cfg.Nutrition.CategoriesFile)
		}
		return categories.Default()
	},
	provideResolver,
)

func provideResolver(
	cfg *config.Config,
	table *categories.Table,
	cache outbound.CacheRepository,
	metrics outbound.PipelineMetrics,
	hc *healthcheck.HealthCheck,
	log *zap.Logger,
) *nutritionapp.Resolver {
	tiers := make([]nutritionapp.Tier, 0, 3)

	if cfg.Nutrition.FDCEnabled {
		client := fdc.NewClient(fdc.Config{
			BaseURL:        cfg.Nutrition.FDCBaseURL,
			APIKey:         cfg.Nutrition.FDCAPIKey,
			Timeout:        cfg.Nutrition.LookupTimeout,
			RequestsPerSec: cfg.Nutrition.RequestsPerSec,
			Burst:          cfg.Nutrition.Burst,
		}, log)
		hc.RegisterOptional("nutrient_source", healthcheck.NewPingChecker("nutrient_source", client.Ping))

		source := fdc.NewCachedSource(client, cache, cfg.Nutrition.CacheTTL, cfg.Nutrition.NegativeCacheTTL, log)
		tiers = append(tiers, nutritionapp.NewExactTier(source, cfg.Nutrition.LookupTimeout))
	}

	tiers = append(tiers, nutritionapp.NewCategoryTier(table), nutritionapp.DefaultTier{})
	log.Info("Nutrient resolver configured",
		zap.Bool("exact_tier", cfg.Nutrition.FDCEnabled),
		zap.Int("categories", table.Len()),
	)
	return nutritionapp.NewResolver(tiers, cfg.Nutrition.CalorieTolerance, metrics, log)
}

// EventModule provides event handling
var EventModule = fx.Options(
	fx.Provide(
		events.NewDispatcher,
		func(d *events.Dispatcher) outbound.EventPublisher { return d },
	),
	fx.Invoke(RegisterEventHandlers),
)

// RegisterEventHandlers subscribes the log handler to the meal photo events
func RegisterEventHandlers(d *events.Dispatcher, log *zap.Logger) {
	h := events.LogHandler(log)
	d.Register(mealphoto.MealPhotoAnalyzedEvent{}.EventName(), h)
	d.Register(mealphoto.MealPhotoConfirmedEvent{}.EventName(), h)
}

// ServiceModule provides application services
var ServiceModule = fx.Provide(
	func(cfg *config.Config) *mealphotoapp.PredictionParser {
		return mealphotoapp.NewPredictionParser(mealphotoapp.ParserConfig{
			ConfidenceGate:    cfg.Pipeline.ConfidenceGate,
			ClampBoundGrams:   cfg.Pipeline.ClampBoundGrams,
			MaxItems:          cfg.Pipeline.MaxItems,
			DefaultGrams:      cfg.Pipeline.DefaultGrams,
			DefaultConfidence: cfg.Pipeline.DefaultConfidence,
		})
	},
	func(
		cfg *config.Config,
		adapter outbound.VisionAdapter,
		parser *mealphotoapp.PredictionParser,
		resolver *nutritionapp.Resolver,
		store outbound.IdempotencyStore,
		analyses outbound.AnalysisRepository,
		metrics outbound.PipelineMetrics,
		publisher outbound.EventPublisher,
		log *zap.Logger,
	) *mealphotoapp.AnalysisOrchestrator {
		return mealphotoapp.NewAnalysisOrchestrator(adapter, parser, resolver, store, analyses, metrics, publisher,
			mealphotoapp.OrchestratorConfig{
				AdapterTimeout:        cfg.Vision.Timeout,
				EnrichmentConcurrency: cfg.Pipeline.EnrichmentConcurrency,
				IdempotencyRetention:  cfg.Idempotency.Retention,
			}, log)
	},
	mealphotoapp.NewConfirmationService,
	mealphotoapp.NewMealPhotoService,
	func(cfg *config.Config, store outbound.IdempotencyStore, log *zap.Logger) *mealphotoapp.IdempotencyJanitor {
		return mealphotoapp.NewIdempotencyJanitor(store, cfg.Idempotency.JanitorInterval, log)
	},
)

// HTTPModule provides HTTP server and handlers
var HTTPModule = fx.Provide(
	func() *validator.Validate { return validator.New() },
	func(svc inbound.MealPhotoService, v *validator.Validate, log *zap.Logger) *handlers.MealPhotoHandlers {
		return handlers.NewMealPhotoHandlers(svc, v, log)
	},
	func(cfg *config.Config) *middleware.RateLimiter {
		return middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize, 10*cfg.RateLimit.CleanupInterval)
	},
	func(
		cfg *config.Config,
		log *zap.Logger,
		h *handlers.MealPhotoHandlers,
		hc *healthcheck.HealthCheck,
		httpMetrics *monitoring.HTTPMetrics,
		reg *prometheus.Registry,
		limiter *middleware.RateLimiter,
	) *server.Server {
		return server.NewServer(cfg, log, h, hc, httpMetrics, reg, limiter)
	},
)

// LifecycleModule provides lifecycle hooks
var LifecycleModule = fx.Invoke(
	RegisterLifecycleHooks,
)

// RegisterLifecycleHooks starts the HTTP server and background workers and
// stops them in reverse order
func RegisterLifecycleHooks(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	log *zap.Logger,
	srv *server.Server,
	janitor *mealphotoapp.IdempotencyJanitor,
	limiter *middleware.RateLimiter,
	_ *monitoring.TracingProvider,
) {
	workers, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting mealsnap",
				zap.String("environment", cfg.App.Environment),
				zap.String("database", cfg.Database.Driver),
				zap.String("vision_mode", cfg.Vision.Mode),
			)

			go janitor.Run(workers)
			if cfg.RateLimit.Enable {
				go limiter.Run(workers, cfg.RateLimit.CleanupInterval)
			}

			go func() {
				if err := srv.Start(); err != nil {
					log.Error("HTTP server failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down mealsnap")
			cancel()

			if err := srv.Shutdown(ctx); err != nil {
				log.Error("Failed to shutdown HTTP server", zap.Error(err))
			}

			_ = log.Sync()
			return nil
		},
	})
}
