package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

// OpenSQLite opens a local database for development and tests. ":memory:" is
// pinned to one connection so every query sees the same database.
func OpenSQLite(path string, logg *logger.Logger, quiet bool) (*gorm.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	gl := newGormLogger()
	if quiet {
		gl = gormLogger.Default.LogMode(gormLogger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gl, NowFunc: utcNow})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite %q: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if logg != nil {
		logg.With("service", "SQLite").Info("opened SQLite", "path", path)
	}
	return db, nil
}
