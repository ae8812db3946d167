// Command scrape runs a single ingestion pass against the configured listing
// page and exits. With -init-only it just prepares the store schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/valeevte/PriceTracker/internal/app"
	"github.com/valeevte/PriceTracker/internal/config"
	"github.com/valeevte/PriceTracker/internal/logger"
)

func main() {
	initOnly := flag.Bool("init-only", false, "create the schema and exit without scraping")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", "error", err)
	}
	defer a.Close()

	if *initOnly {
		log.Info("database initialized")
		return
	}

	res, err := a.Pipeline.Run(ctx)
	if err != nil {
		log.Error("scrape failed", "run_id", res.RunID, "error", err)
		a.Close()
		log.Sync()
		os.Exit(1)
	}
	fmt.Printf("saved_count=%d skipped_count=%d\n", res.Saved, res.Skipped)
}
