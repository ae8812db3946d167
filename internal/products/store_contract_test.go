package products_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valeevte/PriceTracker/internal/products"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// runStoreContract checks the behaviour every Store backend must share.
// store must be empty.
func runStoreContract(t *testing.T, store products.Store) {
	ctx := context.Background()

	mustUpsert := func(title, url string) int64 {
		t.Helper()
		id, err := store.UpsertProduct(ctx, title, url)
		if err != nil {
			t.Fatalf("UpsertProduct(%q): %v", url, err)
		}
		return id
	}
	mustAppend := func(id int64, price string, at time.Time) int64 {
		t.Helper()
		oid, err := store.AppendObservation(ctx, id, dec(price), at)
		if err != nil {
			t.Fatalf("AppendObservation: %v", err)
		}
		return oid
	}

	a := mustUpsert("Book A", "https://shop.test/a")
	if again := mustUpsert("Book A (renamed)", "https://shop.test/a"); again != a {
		t.Fatalf("upsert not idempotent: %d != %d", again, a)
	}
	b := mustUpsert("Book B", "https://shop.test/b")
	c := mustUpsert("Book C", "https://shop.test/c") // never observed
	if a == b || b == c {
		t.Fatalf("ids must differ: a=%d b=%d c=%d", a, b, c)
	}
	if n, err := store.CountProducts(ctx); err != nil || n != 3 {
		t.Fatalf("CountProducts: n=%d err=%v", n, err)
	}

	o1 := mustAppend(a, "10.00", t0)
	o2 := mustAppend(a, "12.00", t0.Add(time.Hour))
	o3 := mustAppend(a, "11.00", t0.Add(time.Hour)) // same instant, later id wins
	mustAppend(b, "20.00", t0)
	mustAppend(b, "20.00", t0) // duplicate price is fine
	if !(o1 < o2 && o2 < o3) {
		t.Fatalf("observation ids not increasing: %d %d %d", o1, o2, o3)
	}
	if n, err := store.CountObservations(ctx); err != nil || n != 5 {
		t.Fatalf("CountObservations: n=%d err=%v", n, err)
	}

	t.Run("latest per product", func(t *testing.T) {
		snap, err := store.LatestPerProduct(ctx)
		if err != nil {
			t.Fatalf("LatestPerProduct: %v", err)
		}
		if len(snap) != 2 {
			t.Fatalf("want 2 products with observations, got %d", len(snap))
		}
		byID := map[int64]products.ProductSnapshot{}
		for _, s := range snap {
			byID[s.ID] = s
		}
		if got := byID[a]; !got.CurrentPrice.Equal(dec("11")) || got.Title != "Book A" {
			t.Fatalf("product A snapshot: %+v", got)
		}
		if got := byID[a].LastUpdated; !got.Equal(t0.Add(time.Hour)) {
			t.Fatalf("product A last updated: %v", got)
		}
		if got := byID[b]; !got.CurrentPrice.Equal(dec("20")) {
			t.Fatalf("product B snapshot: %+v", got)
		}
	})

	t.Run("latest two per product", func(t *testing.T) {
		changes, err := store.LatestTwoPerProduct(ctx)
		if err != nil {
			t.Fatalf("LatestTwoPerProduct: %v", err)
		}
		if len(changes) != 2 {
			t.Fatalf("want 2 changes, got %d", len(changes))
		}
		for _, ch := range changes {
			switch ch.Product.ID {
			case a:
				if ch.Current.ID != o3 || ch.Previous.ID != o2 {
					t.Fatalf("product A pair: current=%d previous=%d", ch.Current.ID, ch.Previous.ID)
				}
			case b:
				if !ch.Current.Price.Equal(ch.Previous.Price) {
					t.Fatalf("product B pair: %+v", ch)
				}
			default:
				t.Fatalf("unexpected product %d", ch.Product.ID)
			}
		}
	})

	t.Run("history", func(t *testing.T) {
		all, err := store.HistoryFor(ctx, a, nil, nil)
		if err != nil {
			t.Fatalf("HistoryFor: %v", err)
		}
		want := []string{"11", "12", "10"}
		if len(all) != len(want) {
			t.Fatalf("history len=%d", len(all))
		}
		for i, w := range want {
			if !all[i].Price.Equal(dec(w)) {
				t.Fatalf("history[%d]=%s want %s", i, all[i].Price, w)
			}
		}

		start, end := t0, t0
		bounded, err := store.HistoryFor(ctx, a, &start, &end)
		if err != nil {
			t.Fatalf("HistoryFor bounded: %v", err)
		}
		if len(bounded) != 1 || !bounded[0].Price.Equal(dec("10")) {
			t.Fatalf("inclusive bounds: %+v", bounded)
		}

		later := t0.Add(30 * time.Minute)
		fromLater, err := store.HistoryFor(ctx, a, &later, nil)
		if err != nil || len(fromLater) != 2 {
			t.Fatalf("start bound: len=%d err=%v", len(fromLater), err)
		}

		none, err := store.HistoryFor(ctx, 999999, nil, nil)
		if err != nil || len(none) != 0 {
			t.Fatalf("unknown product: len=%d err=%v", len(none), err)
		}
	})

	t.Run("export", func(t *testing.T) {
		var rows []products.ExportRow
		err := store.AllObservationsJoined(ctx, func(r products.ExportRow) error {
			rows = append(rows, r)
			return nil
		})
		if err != nil {
			t.Fatalf("AllObservationsJoined: %v", err)
		}
		if len(rows) != 5 {
			t.Fatalf("export rows=%d", len(rows))
		}
		for i := 1; i < len(rows); i++ {
			if rows[i].ScrapedAt.After(rows[i-1].ScrapedAt) {
				t.Fatalf("export not newest first at %d", i)
			}
		}
		if rows[0].URL != "https://shop.test/a" || !rows[0].Price.Equal(dec("11")) {
			t.Fatalf("first export row: %+v", rows[0])
		}
	})

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
