// Package config provides centralized configuration management
// using Viper for configuration loading and validation
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	AWS         AWSConfig         `mapstructure:"aws"`
	Vision      VisionConfig      `mapstructure:"vision"`
	Nutrition   NutritionConfig   `mapstructure:"nutrition"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment" validate:"oneof=development staging production test"`
	Debug       bool   `mapstructure:"debug"`
	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string `mapstructure:"log_format" validate:"oneof=json console"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Driver             string        `mapstructure:"driver" validate:"oneof=postgres sqlite memory"`
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Database           string        `mapstructure:"database"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	SSLMode            string        `mapstructure:"ssl_mode"`
	SQLitePath         string        `mapstructure:"sqlite_path"`
	ReadReplicas       []string      `mapstructure:"read_replicas"`
	MaxOpenConns       int           `mapstructure:"max_open_conns"`
	MaxIdleConns       int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel           string        `mapstructure:"log_level"`
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
	AutoMigrate        bool          `mapstructure:"auto_migrate"`
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	MaxRetries   int           `mapstructure:"max_retries"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

// Addr returns the host:port address
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AWSConfig contains AWS service configuration
type AWSConfig struct {
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	Endpoint        string `mapstructure:"endpoint"`
	PhotoBucket     string `mapstructure:"photo_bucket"`
}

// VisionConfig selects and tunes the vision adapter
type VisionConfig struct {
	Mode           string        `mapstructure:"mode" validate:"oneof=remote stub"`
	Provider       string        `mapstructure:"provider" validate:"oneof=openai rekognition"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	PingTimeout    time.Duration `mapstructure:"ping_timeout"`
	OpenAIBaseURL  string        `mapstructure:"openai_base_url"`
	OpenAIKey      string        `mapstructure:"openai_key"`
	OpenAIModel    string        `mapstructure:"openai_model"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	MinConfidence  float64       `mapstructure:"min_confidence" validate:"gte=0,lte=1"`
	MaxPhotoBytes  int64         `mapstructure:"max_photo_bytes" validate:"gt=0"`
	PhotoFetchTime time.Duration `mapstructure:"photo_fetch_timeout"`
}

// NutritionConfig tunes nutrient enrichment
type NutritionConfig struct {
	FDCEnabled       bool          `mapstructure:"fdc_enabled"`
	FDCBaseURL       string        `mapstructure:"fdc_base_url"`
	FDCAPIKey        string        `mapstructure:"fdc_api_key"`
	LookupTimeout    time.Duration `mapstructure:"lookup_timeout" validate:"gt=0"`
	RequestsPerSec   float64       `mapstructure:"requests_per_sec"`
	Burst            int           `mapstructure:"burst"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	NegativeCacheTTL time.Duration `mapstructure:"negative_cache_ttl"`
	CategoriesFile   string        `mapstructure:"categories_file"`
	CalorieTolerance float64       `mapstructure:"calorie_tolerance" validate:"gt=0,lt=1"`
}

// PipelineConfig bounds parsing and enrichment
type PipelineConfig struct {
	ConfidenceGate        float64 `mapstructure:"confidence_gate" validate:"gte=0,lte=1"`
	ClampBoundGrams       float64 `mapstructure:"clamp_bound_grams" validate:"gt=0"`
	MaxItems              int     `mapstructure:"max_items" validate:"gt=0"`
	DefaultGrams          float64 `mapstructure:"default_grams" validate:"gt=0"`
	DefaultConfidence     float64 `mapstructure:"default_confidence" validate:"gt=0,lte=1"`
	EnrichmentConcurrency int     `mapstructure:"enrichment_concurrency" validate:"gt=0"`
}

// IdempotencyConfig controls fingerprint retention
type IdempotencyConfig struct {
	Retention       time.Duration `mapstructure:"retention" validate:"gt=0"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

// MonitoringConfig contains monitoring configuration
type MonitoringConfig struct {
	EnableMetrics   bool    `mapstructure:"enable_metrics"`
	EnableTracing   bool    `mapstructure:"enable_tracing"`
	TraceExporter   string  `mapstructure:"trace_exporter" validate:"oneof=jaeger otlp"`
	JaegerEndpoint  string  `mapstructure:"jaeger_endpoint"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	SamplingRate    float64 `mapstructure:"sampling_rate" validate:"gte=0,lte=1"`
	HealthCheckPath string  `mapstructure:"health_check_path"`
	ReadinessPath   string  `mapstructure:"readiness_path"`
	MetricsPath     string  `mapstructure:"metrics_path"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enable          bool          `mapstructure:"enable"`
	RequestsPerMin  int           `mapstructure:"requests_per_min"`
	BurstSize       int           `mapstructure:"burst_size"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/mealsnap")
	}

	// Enable environment variable override
	v.SetEnvPrefix("MEALSNAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist, we have defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Unmarshal configuration
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "mealsnap")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.max_header_bytes", 1<<20) // 1MB
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 64<<10)
	v.SetDefault("server.request_timeout", "45s")
	v.SetDefault("server.allowed_origins", []string{})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "mealsnap")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.sqlite_path", "mealsnap.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "10m")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.slow_query_threshold", "100ms")
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	// AWS defaults
	v.SetDefault("aws.region", "us-east-1")

	// Vision defaults
	v.SetDefault("vision.mode", "stub")
	v.SetDefault("vision.provider", "openai")
	v.SetDefault("vision.timeout", "20s")
	v.SetDefault("vision.ping_timeout", "5s")
	v.SetDefault("vision.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("vision.openai_model", "gpt-4o-mini")
	v.SetDefault("vision.max_tokens", 800)
	v.SetDefault("vision.min_confidence", 0.5)
	v.SetDefault("vision.max_photo_bytes", 10<<20)
	v.SetDefault("vision.photo_fetch_timeout", "10s")

	// Nutrition defaults
	v.SetDefault("nutrition.fdc_enabled", false)
	v.SetDefault("nutrition.fdc_base_url", "https://api.nal.usda.gov/fdc/v1")
	v.SetDefault("nutrition.lookup_timeout", "3s")
	v.SetDefault("nutrition.requests_per_sec", 5)
	v.SetDefault("nutrition.burst", 5)
	v.SetDefault("nutrition.cache_ttl", "168h")
	v.SetDefault("nutrition.negative_cache_ttl", "6h")
	v.SetDefault("nutrition.calorie_tolerance", 0.18)

	// Pipeline defaults
	v.SetDefault("pipeline.confidence_gate", 0.3)
	v.SetDefault("pipeline.clamp_bound_grams", 2000)
	v.SetDefault("pipeline.max_items", 5)
	v.SetDefault("pipeline.default_grams", 100)
	v.SetDefault("pipeline.default_confidence", 0.5)
	v.SetDefault("pipeline.enrichment_concurrency", 4)

	// Idempotency defaults
	v.SetDefault("idempotency.retention", "24h")
	v.SetDefault("idempotency.janitor_interval", "15m")

	// Monitoring defaults
	v.SetDefault("monitoring.enable_metrics", true)
	v.SetDefault("monitoring.enable_tracing", false)
	v.SetDefault("monitoring.trace_exporter", "otlp")
	v.SetDefault("monitoring.otlp_endpoint", "localhost:4318")
	v.SetDefault("monitoring.sampling_rate", 0.1)
	v.SetDefault("monitoring.health_check_path", "/health")
	v.SetDefault("monitoring.readiness_path", "/ready")
	v.SetDefault("monitoring.metrics_path", "/metrics")

	// Rate limit defaults
	v.SetDefault("rate_limit.enable", true)
	v.SetDefault("rate_limit.requests_per_min", 60)
	v.SetDefault("rate_limit.burst_size", 10)
	v.SetDefault("rate_limit.cleanup_interval", "1m")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Database.Driver == "postgres" && c.Database.Database == "" {
		return fmt.Errorf("database.database is required for postgres")
	}
	if c.Vision.Mode == "remote" {
		switch c.Vision.Provider {
		case "openai":
			if c.Vision.OpenAIKey == "" {
				return fmt.Errorf("vision.openai_key is required for the openai provider")
			}
		case "rekognition":
			if c.AWS.Region == "" {
				return fmt.Errorf("aws.region is required for the rekognition provider")
			}
		}
	}
	if c.Nutrition.FDCEnabled && c.Nutrition.FDCAPIKey == "" {
		return fmt.Errorf("nutrition.fdc_api_key is required when fdc is enabled")
	}
	if c.Pipeline.DefaultConfidence < c.Pipeline.ConfidenceGate {
		return fmt.Errorf("pipeline.default_confidence must not be below pipeline.confidence_gate")
	}

	return nil
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// GetDSN returns the database connection string
func (c *Config) GetDSN() string {
	return c.DSNForHost(c.Database.Host)
}

// DSNForHost returns the connection string for a specific host, used for
// read replicas that share credentials with the primary.
func (c *Config) DSNForHost(host string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host,
		c.Database.Port,
		c.Database.Username,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}
