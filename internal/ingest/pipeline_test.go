package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valeevte/PriceTracker/internal/logger"
	"github.com/valeevte/PriceTracker/internal/metrics"
	"github.com/valeevte/PriceTracker/internal/products"
	"github.com/valeevte/PriceTracker/internal/products/productstest"
	"github.com/valeevte/PriceTracker/internal/scraper"
)

type book struct{ title, href, price string }

// listingServer serves a product_pod listing whose items can be swapped
// between runs.
type listingServer struct {
	*httptest.Server
	mu    sync.Mutex
	books []book
}

func newListingServer(t *testing.T, books ...book) *listingServer {
	ls := &listingServer{books: books}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		var b strings.Builder
		b.WriteString("<html><body><ol>")
		for _, bk := range ls.books {
			fmt.Fprintf(&b, `<li><article class="product_pod"><h3><a href=%q title=%q>%s</a></h3><p class="price_color">%s</p></article></li>`,
				bk.href, bk.title, bk.title, bk.price)
		}
		b.WriteString("</ol></body></html>")
		_, _ = w.Write([]byte(b.String()))
	}))
	t.Cleanup(ls.Close)
	return ls
}

func (ls *listingServer) set(books ...book) {
	ls.mu.Lock()
	ls.books = books
	ls.mu.Unlock()
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestPipeline(t *testing.T, listingURL string, store products.Store) (*Pipeline, *clock) {
	t.Helper()
	p := NewPipeline(
		Config{ListingURL: listingURL, CurrencySymbol: "£"},
		scraper.NewFetcher(scraper.FetcherOptions{Timeout: 2 * time.Second}),
		scraper.NewParser(scraper.BookstoreSelectors, 5),
		store,
		metrics.New(metrics.Config{Enabled: true}),
		logger.Nop(),
	)
	c := &clock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	p.now = c.now
	return p, c
}

func TestReingestAppendsHistoryAndRaisesAlert(t *testing.T) {
	ctx := context.Background()
	store := productstest.SQLiteStore(t)
	ls := newListingServer(t,
		book{"Book A", "u1", "£10.00"},
		book{"Book B", "u2", "£20.00"},
	)
	p, clk := newTestPipeline(t, ls.URL+"/", store)

	res, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if res.Saved != 2 || res.Skipped != 0 || res.RunID == "" {
		t.Fatalf("first run result: %+v", res)
	}

	snap, err := store.LatestPerProduct(ctx)
	if err != nil || len(snap) != 2 {
		t.Fatalf("snapshot: %+v err=%v", snap, err)
	}
	var idA int64
	for _, s := range snap {
		switch s.URL {
		case ls.URL + "/u1":
			idA = s.ID
			if !s.CurrentPrice.Equal(decimal.RequireFromString("10")) {
				t.Fatalf("A price %s", s.CurrentPrice)
			}
		case ls.URL + "/u2":
			if !s.CurrentPrice.Equal(decimal.RequireFromString("20")) {
				t.Fatalf("B price %s", s.CurrentPrice)
			}
		default:
			t.Fatalf("unexpected url %q", s.URL)
		}
	}

	t1 := clk.t
	clk.t = clk.t.Add(24 * time.Hour)
	ls.set(book{"Book A", "u1", "£12.00"})
	if res, err = p.Run(ctx); err != nil || res.Saved != 1 {
		t.Fatalf("second run: %+v err=%v", res, err)
	}

	if n, _ := store.CountProducts(ctx); n != 2 {
		t.Fatalf("re-ingest created a duplicate product: %d", n)
	}
	hist, err := store.HistoryFor(ctx, idA, nil, nil)
	if err != nil || len(hist) != 2 {
		t.Fatalf("history: %+v err=%v", hist, err)
	}
	if !hist[0].Price.Equal(decimal.RequireFromString("12")) || !hist[0].ScrapedAt.Equal(clk.t) {
		t.Fatalf("newest history row: %+v", hist[0])
	}
	if !hist[1].Price.Equal(decimal.RequireFromString("10")) || !hist[1].ScrapedAt.Equal(t1) {
		t.Fatalf("oldest history row: %+v", hist[1])
	}

	alerts, err := products.NewService(store, logger.Nop()).Alerts(ctx, 5)
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != idA || !alerts[0].ChangePercent.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("alerts: %+v", alerts)
	}
}

func TestMalformedItemIsSkipped(t *testing.T) {
	store := productstest.SQLiteStore(t)
	ls := newListingServer(t,
		book{"Good 1", "g1", "£1.00"},
		book{"Broken", "b1", "N/A"},
		book{"", "no-title", "£3.00"},
		book{"Good 2", "g2", "£4.00"},
	)
	p, _ := newTestPipeline(t, ls.URL+"/", store)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Found != 4 || res.Skipped != 2 || res.Saved != res.Found-res.Skipped {
		t.Fatalf("result: %+v", res)
	}
	if n, _ := store.CountObservations(context.Background()); n != 2 {
		t.Fatalf("observations=%d", n)
	}
}

func TestItemCapAndRelativeLinks(t *testing.T) {
	store := productstest.SQLiteStore(t)
	var books []book
	for i := 0; i < 8; i++ {
		books = append(books, book{fmt.Sprintf("B%d", i), fmt.Sprintf("../item-%d/index.html", i), "£2.00"})
	}
	ls := newListingServer(t, books...)
	p, _ := newTestPipeline(t, ls.URL+"/catalogue/page-1.html", store)

	res, err := p.Run(context.Background())
	if err != nil || res.Saved != 5 {
		t.Fatalf("result: %+v err=%v", res, err)
	}
	snap, _ := store.LatestPerProduct(context.Background())
	if snap[0].URL != ls.URL+"/item-0/index.html" {
		t.Fatalf("resolved url=%q", snap[0].URL)
	}
}

func TestNetworkErrorAbortsRun(t *testing.T) {
	store := productstest.SQLiteStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	p, _ := newTestPipeline(t, srv.URL, store)

	res, err := p.Run(context.Background())
	if !scraper.IsNetworkError(err) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if res.Saved != 0 {
		t.Fatalf("saved=%d", res.Saved)
	}
	if n, _ := store.CountProducts(context.Background()); n != 0 {
		t.Fatalf("products written on failed fetch: %d", n)
	}
}

func TestEmptyListingIsNotAnError(t *testing.T) {
	ls := newListingServer(t)
	p, _ := newTestPipeline(t, ls.URL, productstest.SQLiteStore(t))
	res, err := p.Run(context.Background())
	if err != nil || res.Found != 0 || res.Saved != 0 {
		t.Fatalf("result: %+v err=%v", res, err)
	}
}

type brokenStore struct {
	products.Store
	failAfter int
	appends   int
}

func (b *brokenStore) AppendObservation(ctx context.Context, id int64, price decimal.Decimal, at time.Time) (int64, error) {
	if b.appends >= b.failAfter {
		return 0, &products.StorageError{Op: "append observation", Err: errors.New("disk full")}
	}
	b.appends++
	return b.Store.AppendObservation(ctx, id, price, at)
}

func TestStorageErrorAbortsRemainingItems(t *testing.T) {
	inner := productstest.SQLiteStore(t)
	ls := newListingServer(t,
		book{"A", "a", "£1.00"},
		book{"B", "b", "£2.00"},
		book{"C", "c", "£3.00"},
	)
	p, _ := newTestPipeline(t, ls.URL+"/", &brokenStore{Store: inner, failAfter: 1})

	res, err := p.Run(context.Background())
	if !products.IsStorageError(err) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if res.Saved != 1 {
		t.Fatalf("saved=%d", res.Saved)
	}
	if n, _ := inner.CountObservations(context.Background()); n != 1 {
		t.Fatalf("items saved before the failure must stay: %d", n)
	}
}

func TestCancelledRunStopsBetweenItems(t *testing.T) {
	store := productstest.SQLiteStore(t)
	ls := newListingServer(t, book{"A", "a", "£1.00"}, book{"B", "b", "£2.00"})
	p, _ := newTestPipeline(t, ls.URL+"/", store)

	ctx, cancel := context.WithCancel(context.Background())
	p.fetcher = cancelAfterFetch{Fetcher: p.fetcher, cancel: cancel}

	res, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Saved != 0 {
		t.Fatalf("saved=%d", res.Saved)
	}
}

// cancelAfterFetch cancels the run once the page has been downloaded.
type cancelAfterFetch struct {
	Fetcher
	cancel context.CancelFunc
}

func (c cancelAfterFetch) Fetch(ctx context.Context, u string) ([]byte, error) {
	b, err := c.Fetcher.Fetch(ctx, u)
	c.cancel()
	return b, err
}
