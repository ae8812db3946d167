package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a tracked item, keyed by its source URL. Rows are never updated.
type Product struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Title     string    `json:"title" gorm:"not null"`
	URL       string    `json:"url" gorm:"not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// PriceObservation is one immutable price reading. IDs grow with insertion order.
type PriceObservation struct {
	ID        int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	ProductID int64           `json:"product_id" gorm:"not null;index:idx_price_history_product_time,priority:1"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	ScrapedAt time.Time       `json:"scraped_at" gorm:"not null;index:idx_price_history_product_time,priority:2"`

	Product Product `json:"-" gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT"`
}

func (PriceObservation) TableName() string { return "price_history" }

// ProductSnapshot is a product with its most recent observation.
type ProductSnapshot struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	URL          string          `json:"url"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	LastUpdated  time.Time       `json:"last_updated"`
}

type PricePoint struct {
	Price     decimal.Decimal `json:"price"`
	ScrapedAt time.Time       `json:"scraped_at"`
}

// PriceChange pairs the two most recent observations of a product.
type PriceChange struct {
	Product  Product
	Current  PriceObservation
	Previous PriceObservation
}

type Alert struct {
	ID            int64           `json:"id"`
	Title         string          `json:"title"`
	URL           string          `json:"url"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	LastUpdated   time.Time       `json:"last_updated"`
}

type ExportRow struct {
	Title     string
	URL       string
	Price     decimal.Decimal
	ScrapedAt time.Time
}

type Stats struct {
	TotalProducts int64 `json:"total_products"`
	TotalScans    int64 `json:"total_scans"`
}

// rankedObservation is a store row joining a product with one of its
// observations; Rank 1 is the most recent.
type rankedObservation struct {
	ProductID     int64
	Title         string
	URL           string
	CreatedAt     time.Time
	ObservationID int64
	Price         decimal.Decimal
	ScrapedAt     time.Time
	Rank          int64
}

func (r rankedObservation) product() Product {
	return Product{ID: r.ProductID, Title: r.Title, URL: r.URL, CreatedAt: r.CreatedAt}
}

func (r rankedObservation) observation() PriceObservation {
	return PriceObservation{ID: r.ObservationID, ProductID: r.ProductID, Price: r.Price, ScrapedAt: r.ScrapedAt}
}

func (r rankedObservation) snapshot() ProductSnapshot {
	return ProductSnapshot{
		ID:           r.ProductID,
		Title:        r.Title,
		URL:          r.URL,
		CurrentPrice: r.Price,
		LastUpdated:  r.ScrapedAt,
	}
}

// pairLatestTwo folds rows ordered by (product, rank) into changes, dropping
// products that have fewer than two observations.
func pairLatestTwo(rows []rankedObservation) []PriceChange {
	out := make([]PriceChange, 0, len(rows)/2)
	for i := 0; i+1 < len(rows); i++ {
		cur, prev := rows[i], rows[i+1]
		if cur.Rank != 1 || prev.Rank != 2 || cur.ProductID != prev.ProductID {
			continue
		}
		out = append(out, PriceChange{
			Product:  cur.product(),
			Current:  cur.observation(),
			Previous: prev.observation(),
		})
		i++
	}
	return out
}
