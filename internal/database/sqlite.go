package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/valeevte/PriceTracker/internal/logger"
)

// OpenSQLite opens the file at path (":memory:" for a private in-memory
// database) with foreign keys enforced. The pool is pinned to one connection
// so writers never contend for the file lock.
func OpenSQLite(path string, log *logger.Logger) (*gorm.DB, error) {
	dsn := sqliteDSN(path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %q: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %q: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	log.Info("opened sqlite store", "path", path)
	return db, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}
