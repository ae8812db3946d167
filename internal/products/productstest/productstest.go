// Package productstest provides Store fixtures for tests.
package productstest

import (
	"testing"

	"github.com/valeevte/PriceTracker/internal/database"
	"github.com/valeevte/PriceTracker/internal/logger"
	"github.com/valeevte/PriceTracker/internal/products"
)

// SQLiteStore returns a migrated store backed by a private in-memory
// database that lives until the test ends.
func SQLiteStore(tb testing.TB) *products.GormRepository {
	tb.Helper()
	return SQLiteStoreWithLogger(tb, logger.Nop())
}

// SQLiteStoreWithLogger is SQLiteStore with the repository logging to log.
func SQLiteStoreWithLogger(tb testing.TB, log *logger.Logger) *products.GormRepository {
	tb.Helper()
	db, err := database.OpenSQLite(":memory:", log)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := products.NewGormRepository(db, log)
	if err := repo.AutoMigrate(); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return repo
}
