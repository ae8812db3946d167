// Package app assembles the store, ingestion pipeline and query service from
// configuration.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"github.com/valeevte/PriceTracker/internal/config"
	"github.com/valeevte/PriceTracker/internal/database"
	"github.com/valeevte/PriceTracker/internal/ingest"
	"github.com/valeevte/PriceTracker/internal/logger"
	"github.com/valeevte/PriceTracker/internal/metrics"
	"github.com/valeevte/PriceTracker/internal/products"
	"github.com/valeevte/PriceTracker/internal/scraper"
)

type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Metrics  *metrics.Metrics
	Store    products.Store
	Pipeline *ingest.Pipeline
	Service  *products.Service

	closeStore func()
}

// New opens and migrates the configured store and builds the components on top of it.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	store, closeStore, err := OpenStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}

	m := metrics.New(metrics.Config{Enabled: cfg.Metrics.Enabled})
	fetcher := scraper.NewFetcher(scraper.FetcherOptions{
		Timeout:   cfg.Scrape.Timeout,
		UserAgent: cfg.Scrape.UserAgent,
	})
	parser := scraper.NewParser(scraper.BookstoreSelectors, cfg.Scrape.ItemCap)
	pipeline := ingest.NewPipeline(ingest.Config{
		ListingURL:     cfg.Scrape.URL,
		CurrencySymbol: cfg.Scrape.CurrencySymbol,
	}, fetcher, parser, store, m, log)

	return &App{
		Config:     cfg,
		Log:        log,
		Metrics:    m,
		Store:      store,
		Pipeline:   pipeline,
		Service:    products.NewService(store, log),
		closeStore: closeStore,
	}, nil
}

func (a *App) Close() {
	if a.closeStore != nil {
		a.closeStore()
		a.closeStore = nil
	}
}

// OpenStore connects to the configured backend and ensures its schema exists.
func OpenStore(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (products.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, pool, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return products.NewRepository(pool, log), closePool(pool), nil

	case config.DriverSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath, log)
		if err != nil {
			return nil, nil, err
		}
		repo := products.NewGormRepository(db, log)
		if err := repo.AutoMigrate(); err != nil {
			closeGorm(db)()
			return nil, nil, err
		}
		return repo, closeGorm(db), nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func closePool(pool *pgxpool.Pool) func() {
	return pool.Close
}

func closeGorm(db *gorm.DB) func() {
	return func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
