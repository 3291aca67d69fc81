// Package testutils provides common testing utilities and infrastructure setup
package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/alchemorsel/mealsnap/internal/infrastructure/persistence/migrations"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/persistence/sqlite"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDatabase provides a test database instance with cleanup
type TestDatabase struct {
	Container testcontainers.Container
	DB        *sql.DB
	GormDB    *gorm.DB
	DSN       string
	t         *testing.T
}

// DatabaseConfig holds test database configuration
type DatabaseConfig struct {
	Image    string
	Database string
	Username string
	Password string
	Port     string
}

// DefaultDatabaseConfig returns the default test database configuration
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Image:    "postgres:15-alpine",
		Database: "mealsnap_test",
		Username: "test_user",
		Password: "test_password",
		Port:     "5432",
	}
}

// SetupSQLiteDatabase opens a private in-memory SQLite database with the
// schema migrated
func SetupSQLiteDatabase(t *testing.T) *TestDatabase {
	t.Helper()

	db, err := sqlite.SetupDatabase(":memory:", "silent", zaptest.NewLogger(t))
	require.NoError(t, err, "Failed to open sqlite test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)

	td := &TestDatabase{DB: sqlDB, GormDB: db, DSN: ":memory:", t: t}
	t.Cleanup(td.Cleanup)
	return td
}

// SetupPostgresDatabase starts a postgres container and applies the embedded
// migrations. It skips in short mode.
func SetupPostgresDatabase(t *testing.T) *TestDatabase {
	return SetupPostgresDatabaseWithConfig(t, DefaultDatabaseConfig())
}

// SetupPostgresDatabaseWithConfig starts a postgres container with custom configuration
func SetupPostgresDatabaseWithConfig(t *testing.T, cfg DatabaseConfig) *TestDatabase {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping postgres container tests in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        cfg.Image,
			ExposedPorts: []string{cfg.Port + "/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       cfg.Database,
				"POSTGRES_USER":     cfg.Username,
				"POSTGRES_PASSWORD": cfg.Password,
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
				wait.ForListeningPort(nat.Port(cfg.Port+"/tcp")),
			),
			Tmpfs: map[string]string{
				"/var/lib/postgresql/data": "rw,noexec,nosuid,size=256m",
			},
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start postgres container")

	td := &TestDatabase{Container: container, t: t}
	t.Cleanup(td.Cleanup)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port(cfg.Port))
	require.NoError(t, err)

	td.DSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port.Port(), cfg.Username, cfg.Password, cfg.Database)

	td.GormDB, err = gorm.Open(postgres.Open(td.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to create GORM connection")

	td.DB, err = td.GormDB.DB()
	require.NoError(t, err)
	require.NoError(t, td.DB.PingContext(ctx), "Failed to ping test database")

	require.NoError(t, td.RunMigrations(), "Failed to run migrations")
	return td
}

// RunMigrations applies the embedded migrations. The migrator is not closed
// because closing it would close the shared connection pool.
func (td *TestDatabase) RunMigrations() error {
	m, err := migrations.New(td.DB, zaptest.NewLogger(td.t))
	if err != nil {
		return err
	}
	return m.Up()
}

// TruncateAllTables empties every table between tests
func (td *TestDatabase) TruncateAllTables() error {
	for _, table := range []string{
		"meal_entries",
		"meal_photo_confirmations",
		"meal_photo_idempotency_keys",
		"meal_photo_analyses",
	} {
		if err := td.GormDB.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}
	return nil
}

// Cleanup closes connections and terminates the container
func (td *TestDatabase) Cleanup() {
	if td.DB != nil {
		_ = td.DB.Close()
		td.DB = nil
	}
	if td.Container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := td.Container.Terminate(ctx); err != nil {
			td.t.Logf("Failed to terminate container: %v", err)
		}
		td.Container = nil
	}
}
