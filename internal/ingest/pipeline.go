// Package ingest runs one fetch, parse and persist pass over the listing page.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/valeevte/PriceTracker/internal/logger"
	"github.com/valeevte/PriceTracker/internal/metrics"
	"github.com/valeevte/PriceTracker/internal/products"
	"github.com/valeevte/PriceTracker/internal/scraper"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type ListingParser interface {
	ParseListing(doc []byte) ([]scraper.RawItem, error)
}

type Config struct {
	ListingURL     string
	CurrencySymbol string
}

// Result summarizes one run.
type Result struct {
	RunID      string
	Found      int
	Saved      int
	Skipped    int
	StartedAt  time.Time
	FinishedAt time.Time
}

type Pipeline struct {
	cfg     Config
	fetcher Fetcher
	parser  ListingParser
	store   products.Store
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewPipeline(cfg Config, fetcher Fetcher, parser ListingParser, store products.Store, m *metrics.Metrics, log *logger.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		fetcher: fetcher,
		parser:  parser,
		store:   store,
		metrics: m,
		log:     log.With("component", "ingest"),
		now:     time.Now,
	}
}

var (
	errMissingTitle = errors.New("missing title")
	errMissingLink  = errors.New("missing item link")
)

// Run executes one ingestion pass. Page-level network and parse failures
// abort the run before anything is written. Items that fail to parse are
// skipped; a storage failure aborts the remaining items. Saved items stay
// durable either way. Cancelling ctx stops the run between items, never in
// the middle of one.
func (p *Pipeline) Run(ctx context.Context) (res Result, err error) {
	res = Result{RunID: uuid.NewString(), StartedAt: p.now()}
	log := p.log.With("run_id", res.RunID, "url", p.cfg.ListingURL)
	outcome := metrics.OutcomeSuccess
	defer func() {
		res.FinishedAt = p.now()
		p.metrics.ObserveRun(outcome, res.Saved, res.Skipped, res.FinishedAt.Sub(res.StartedAt))
	}()

	log.Info("ingestion run started")

	base, err := url.Parse(p.cfg.ListingURL)
	if err != nil {
		outcome = metrics.OutcomeParseError
		log.Error("invalid listing url", "error", err)
		return res, &scraper.ParseError{Input: p.cfg.ListingURL, Err: err}
	}

	doc, err := p.fetcher.Fetch(ctx, p.cfg.ListingURL)
	if err != nil {
		outcome = metrics.OutcomeNetworkError
		log.Error("network error, run aborted", "error", err)
		return res, err
	}

	items, err := p.parser.ParseListing(doc)
	if err != nil {
		outcome = metrics.OutcomeParseError
		log.Warn("listing could not be parsed, run aborted", "error", err)
		return res, err
	}
	res.Found = len(items)
	if len(items) == 0 {
		outcome = metrics.OutcomeEmpty
		log.Warn("no items found on the page")
		return res, nil
	}

	// Inserts run to completion even if ctx is cancelled mid-item.
	writeCtx := context.WithoutCancel(ctx)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			outcome = metrics.OutcomeCanceled
			log.Warn("run abandoned", "saved_count", res.Saved, "remaining", len(items)-i)
			return res, err
		}

		price, err := p.saveItem(writeCtx, base, item)
		if err != nil {
			if products.IsStorageError(err) {
				outcome = metrics.OutcomeStorageError
				log.Error("storage error, run aborted", "title", item.Title, "saved_count", res.Saved, "error", err)
				return res, err
			}
			res.Skipped++
			log.Warn("skipping item", "index", i, "title", item.Title, "price_text", item.PriceText, "error", err)
			continue
		}
		res.Saved++
		log.Info("saved", "title", item.Title, "price", price.StringFixed(2))
	}

	log.Info("ingestion run finished", "saved_count", res.Saved, "skipped_count", res.Skipped)
	return res, nil
}

func (p *Pipeline) saveItem(ctx context.Context, base *url.URL, item scraper.RawItem) (decimal.Decimal, error) {
	if item.Title == "" {
		return decimal.Zero, &scraper.ParseError{Err: errMissingTitle}
	}
	if item.Href == "" {
		return decimal.Zero, &scraper.ParseError{Input: item.Title, Err: errMissingLink}
	}
	ref, err := url.Parse(item.Href)
	if err != nil {
		return decimal.Zero, &scraper.ParseError{Input: item.Href, Err: err}
	}
	itemURL := base.ResolveReference(ref).String()

	price, err := scraper.ParsePrice(item.PriceText, p.cfg.CurrencySymbol)
	if err != nil {
		return decimal.Zero, err
	}

	productID, err := p.store.UpsertProduct(ctx, item.Title, itemURL)
	if err != nil {
		return decimal.Zero, err
	}
	if _, err := p.store.AppendObservation(ctx, productID, price, p.now()); err != nil {
		return decimal.Zero, fmt.Errorf("product %d: %w", productID, err)
	}
	return price, nil
}
