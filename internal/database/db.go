package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valeevte/PriceTracker/internal/logger"
)

// Connect opens a pool against cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg DBConfig, log *logger.Logger) (*pgxpool.Pool, error) {
	if !cfg.Complete() {
		return nil, errors.New("DB config incomplete: DB_USER/DB_HOST/DB_PORT/DB_NAME must be set")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.TargetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("connected to postgres", "host", cfg.Host, "db", cfg.DBName)
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
    id         BIGSERIAL PRIMARY KEY,
    title      TEXT NOT NULL,
    url        TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS price_history (
    id         BIGSERIAL PRIMARY KEY,
    product_id BIGINT NOT NULL REFERENCES products (id),
    price      NUMERIC(12, 2) NOT NULL CHECK (price >= 0),
    scraped_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_price_history_product_time
    ON price_history (product_id, scraped_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_price_history_scraped_at
    ON price_history (scraped_at DESC)`,
}

// Migrate creates the products and price_history tables if missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	log.Info("postgres schema ready")
	return nil
}
