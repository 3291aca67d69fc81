// Package sqlite provides SQLite database setup and configuration
package sqlite

import (
	"fmt"
	"strings"

	gormModels "github.com/alchemorsel/mealsnap/internal/infrastructure/persistence/gorm"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SetupDatabase opens the SQLite database at path and migrates the schema.
// An empty path or ":memory:" yields a private in-memory database.
func SetupDatabase(path string, logLevel string, log *zap.Logger) (*gorm.DB, error) {
	dsn, inMemory := dataSource(path)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormModels.NewLogger(log, logLevel, 0),
		NowFunc: gormModels.NowUTC,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// SQLite allows a single writer; a shared in-memory database must also
	// keep one connection open or it is dropped.
	sqlDB.SetMaxOpenConns(1)
	if inMemory {
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetMaxIdleConns(1)
	}

	if err := db.AutoMigrate(gormModels.AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func dataSource(path string) (string, bool) {
	if path == "" || path == ":memory:" {
		return fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString()), true
	}
	if strings.Contains(path, "?") {
		return path, strings.Contains(path, "mode=memory")
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL", false
}
