package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/valeevte/PriceTracker/internal/app"
	"github.com/valeevte/PriceTracker/internal/config"
	"github.com/valeevte/PriceTracker/internal/logger"
	"github.com/valeevte/PriceTracker/internal/products"
	"github.com/valeevte/PriceTracker/internal/scheduler"
	"github.com/valeevte/PriceTracker/internal/server"
)

func main() {
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

	// graceful shutdown coordination
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", "error", err)
	}
	defer a.Close()

	// prices go out as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true

	if cfg.HTTP.GinMode == "" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(cfg.HTTP.GinMode)
	}

	sched := scheduler.New(func(ctx context.Context) (scheduler.Outcome, error) {
		res, err := a.Pipeline.Run(ctx)
		return scheduler.Outcome{RunID: res.RunID, Saved: res.Saved, Skipped: res.Skipped}, err
	}, scheduler.Config{Interval: cfg.Scrape.Interval}, log)

	router := server.NewRouter(server.RouterConfig{
		Handler:     products.NewHandler(a.Service, log),
		Store:       a.Store,
		Metrics:     a.Metrics,
		Log:         log,
		CORSOrigins: cfg.HTTP.CORSAllowOrigins,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// scheduler runs until gctx is cancelled
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		for rep := range sched.Reports() {
			log.Info("scrape run finished",
				"seq", rep.Seq,
				"run_id", rep.RunID,
				"saved_count", rep.Saved,
				"skipped_count", rep.Skipped,
				"took", rep.FinishedAt.Sub(rep.StartedAt).String(),
				"ok", rep.Err == nil,
			)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("Server started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server ListenAndServe: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		// stop accepting new requests, allow 15s to finish
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server Shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("exited with error", "error", err)
		a.Close()
		log.Sync()
		os.Exit(1)
	}
	log.Info("graceful shutdown complete")
}
