package products

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valeevte/PriceTracker/internal/logger"
)

const (
	DefaultAlertThreshold = 5.0

	csvTimeLayout = "2006-01-02 15:04:05"
	csvFlushEvery = 100
)

var csvHeader = []string{"Title", "URL", "Price", "Date"}

// Service answers read-only queries over the price history. It holds no
// state of its own and is safe for concurrent use.
type Service struct {
	store Store
	log   *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log.With("service", "products")}
}

func (s *Service) Snapshot(ctx context.Context) ([]ProductSnapshot, error) {
	return s.store.LatestPerProduct(ctx)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	products, err := s.store.CountProducts(ctx)
	if err != nil {
		return Stats{}, err
	}
	scans, err := s.store.CountObservations(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalProducts: products, TotalScans: scans}, nil
}

// HistoryFilter carries the raw date bounds supplied by the caller.
type HistoryFilter struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type History struct {
	ProductID int64         `json:"product_id"`
	History   []PricePoint  `json:"history"`
	Count     int           `json:"count"`
	Filters   HistoryFilter `json:"filters"`
}

// History returns the product's observations within the filter bounds,
// newest first. Unknown products and unparsable bounds yield an empty history.
func (s *Service) History(ctx context.Context, productID int64, f HistoryFilter) (History, error) {
	out := History{ProductID: productID, History: []PricePoint{}, Filters: f}

	start, ok := parseBound(f.StartDate)
	if !ok {
		s.log.Debug("ignoring history query with invalid start_date", "product_id", productID, "start_date", f.StartDate)
		return out, nil
	}
	end, ok := parseBound(f.EndDate)
	if !ok {
		s.log.Debug("ignoring history query with invalid end_date", "product_id", productID, "end_date", f.EndDate)
		return out, nil
	}

	points, err := s.store.HistoryFor(ctx, productID, start, end)
	if err != nil {
		return History{}, err
	}
	out.History = points
	out.Count = len(points)
	return out, nil
}

var boundLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

// parseBound parses a history bound. An empty bound is open. A date-only
// bound means midnight UTC of that day.
func parseBound(raw string) (*time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	for _, layout := range boundLayouts {
		t, err := time.ParseInLocation(layout, raw, time.UTC)
		if err != nil {
			continue
		}
		return &t, true
	}
	return nil, false
}

// ChangePercent returns (current-previous)/previous*100. ok is false when
// previous is zero and the change is undefined.
func ChangePercent(current, previous decimal.Decimal) (pct decimal.Decimal, ok bool) {
	if previous.IsZero() {
		return decimal.Zero, false
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)), true
}

// Alerts lists products whose latest price moved by at least threshold
// percent against the previous observation.
func (s *Service) Alerts(ctx context.Context, threshold float64) ([]Alert, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("alert threshold must be finite, got %v", threshold)
	}
	changes, err := s.store.LatestTwoPerProduct(ctx)
	if err != nil {
		return nil, err
	}
	limit := decimal.NewFromFloat(threshold)

	alerts := []Alert{}
	for _, ch := range changes {
		pct, ok := ChangePercent(ch.Current.Price, ch.Previous.Price)
		if !ok {
			s.log.Debug("skipping alert: previous price is zero", "product_id", ch.Product.ID)
			continue
		}
		if pct.Abs().LessThan(limit) {
			continue
		}
		alerts = append(alerts, Alert{
			ID:            ch.Product.ID,
			Title:         ch.Product.Title,
			URL:           ch.Product.URL,
			CurrentPrice:  ch.Current.Price,
			PreviousPrice: ch.Previous.Price,
			ChangePercent: pct.Round(2),
			LastUpdated:   ch.Current.ScrapedAt,
		})
	}
	return alerts, nil
}

// ExportCSV writes the header and one row per observation to w, flushing
// periodically. It returns the number of data rows written.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}

	n := 0
	err := s.store.AllObservationsJoined(ctx, func(row ExportRow) error {
		if err := cw.Write([]string{
			row.Title,
			row.URL,
			row.Price.StringFixed(2),
			row.ScrapedAt.UTC().Format(csvTimeLayout),
		}); err != nil {
			return err
		}
		n++
		if n%csvFlushEvery == 0 {
			cw.Flush()
			return cw.Error()
		}
		return nil
	})
	if err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}
