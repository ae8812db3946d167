package products

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the durable price history. Products are upserted by URL and
// observations are append-only.
type Store interface {
	// UpsertProduct returns the id of the product with url, creating it if
	// absent. An existing product's title is left untouched.
	UpsertProduct(ctx context.Context, title, url string) (int64, error)
	// AppendObservation always inserts a new row. A zero scrapedAt means now.
	AppendObservation(ctx context.Context, productID int64, price decimal.Decimal, scrapedAt time.Time) (int64, error)

	LatestPerProduct(ctx context.Context) ([]ProductSnapshot, error)
	LatestTwoPerProduct(ctx context.Context) ([]PriceChange, error)
	// HistoryFor returns observations newest first; nil bounds are open and
	// supplied bounds are inclusive.
	HistoryFor(ctx context.Context, productID int64, start, end *time.Time) ([]PricePoint, error)
	CountProducts(ctx context.Context) (int64, error)
	CountObservations(ctx context.Context) (int64, error)
	// AllObservationsJoined calls fn for every observation, newest first,
	// stopping at the first error fn returns.
	AllObservationsJoined(ctx context.Context, fn func(ExportRow) error) error

	Ping(ctx context.Context) error
}

// StorageError wraps every failure coming from a Store backend.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// observationTime normalizes timestamps so both backends order them the same way.
func observationTime(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Microsecond)
}
