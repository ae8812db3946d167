package products

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/valeevte/PriceTracker/internal/logger"
)

// Repository is the Postgres Store.
type Repository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

func NewRepository(db *pgxpool.Pool, log *logger.Logger) *Repository {
	return &Repository{db: db, log: log.With("store", "postgres")}
}

var _ Store = (*Repository)(nil)

func (r *Repository) UpsertProduct(ctx context.Context, title, url string) (int64, error) {
	// The unique index on url makes the insert a no-op for known products;
	// the follow-up select runs in a fresh snapshot and sees a concurrent winner.
	tag, err := r.db.Exec(ctx,
		`INSERT INTO products (title, url) VALUES ($1, $2) ON CONFLICT (url) DO NOTHING`,
		title, url)
	if err != nil {
		return 0, storageErr("upsert product", err)
	}
	var id int64
	if err := r.db.QueryRow(ctx, `SELECT id FROM products WHERE url = $1`, url).Scan(&id); err != nil {
		return 0, storageErr("upsert product", err)
	}
	if tag.RowsAffected() == 0 {
		r.log.Debug("product already known", "product_id", id, "url", url)
	} else {
		r.log.Info("product created", "product_id", id, "url", url)
	}
	return id, nil
}

func (r *Repository) AppendObservation(ctx context.Context, productID int64, price decimal.Decimal, scrapedAt time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO price_history (product_id, price, scraped_at) VALUES ($1, $2::numeric, $3) RETURNING id`,
		productID, price.String(), observationTime(scrapedAt)).Scan(&id)
	if err != nil {
		return 0, storageErr("append observation", err)
	}
	return id, nil
}

const latestRankedQuery = `
SELECT p.id, p.title, p.url, p.created_at,
       ph.id, ph.price::text, ph.scraped_at, ph.rn
FROM products p
JOIN LATERAL (
    SELECT id, price, scraped_at,
           row_number() OVER (ORDER BY scraped_at DESC, id DESC) AS rn
    FROM price_history ph2
    WHERE ph2.product_id = p.id
    ORDER BY scraped_at DESC, id DESC
    LIMIT $1
) ph ON true
ORDER BY p.id, ph.rn
`

func (r *Repository) latestRanked(ctx context.Context, depth int) ([]rankedObservation, error) {
	rows, err := r.db.Query(ctx, latestRankedQuery, depth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rankedObservation
	for rows.Next() {
		var (
			ro    rankedObservation
			price string
		)
		if err := rows.Scan(&ro.ProductID, &ro.Title, &ro.URL, &ro.CreatedAt,
			&ro.ObservationID, &price, &ro.ScrapedAt, &ro.Rank); err != nil {
			return nil, err
		}
		if ro.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out = append(out, ro)
	}
	return out, rows.Err()
}

func (r *Repository) LatestPerProduct(ctx context.Context) ([]ProductSnapshot, error) {
	rows, err := r.latestRanked(ctx, 1)
	if err != nil {
		return nil, storageErr("latest per product", err)
	}
	out := make([]ProductSnapshot, 0, len(rows))
	for _, ro := range rows {
		out = append(out, ro.snapshot())
	}
	return out, nil
}

func (r *Repository) LatestTwoPerProduct(ctx context.Context) ([]PriceChange, error) {
	rows, err := r.latestRanked(ctx, 2)
	if err != nil {
		return nil, storageErr("latest two per product", err)
	}
	return pairLatestTwo(rows), nil
}

func (r *Repository) HistoryFor(ctx context.Context, productID int64, start, end *time.Time) ([]PricePoint, error) {
	var q strings.Builder
	q.WriteString(`SELECT price::text, scraped_at FROM price_history WHERE product_id = $1`)
	args := []any{productID}
	if start != nil {
		args = append(args, start.UTC())
		q.WriteString(` AND scraped_at >= $` + strconv.Itoa(len(args)))
	}
	if end != nil {
		args = append(args, end.UTC())
		q.WriteString(` AND scraped_at <= $` + strconv.Itoa(len(args)))
	}
	q.WriteString(` ORDER BY scraped_at DESC, id DESC`)

	rows, err := r.db.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, storageErr("history", err)
	}
	defer rows.Close()

	out := []PricePoint{}
	for rows.Next() {
		var (
			pp    PricePoint
			price string
		)
		if err := rows.Scan(&price, &pp.ScrapedAt); err != nil {
			return nil, storageErr("history", err)
		}
		if pp.Price, err = decimal.NewFromString(price); err != nil {
			return nil, storageErr("history", err)
		}
		out = append(out, pp)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("history", err)
	}
	return out, nil
}

func (r *Repository) CountProducts(ctx context.Context) (int64, error) {
	return r.count(ctx, "count products", `SELECT COUNT(*) FROM products`)
}

func (r *Repository) CountObservations(ctx context.Context) (int64, error) {
	return r.count(ctx, "count observations", `SELECT COUNT(*) FROM price_history`)
}

func (r *Repository) count(ctx context.Context, op, q string) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, storageErr(op, err)
	}
	return n, nil
}

func (r *Repository) AllObservationsJoined(ctx context.Context, fn func(ExportRow) error) error {
	rows, err := r.db.Query(ctx, `
SELECT p.title, p.url, ph.price::text, ph.scraped_at
FROM price_history ph
JOIN products p ON ph.product_id = p.id
ORDER BY ph.scraped_at DESC, ph.id DESC
`)
	if err != nil {
		return storageErr("export", err)
	}
	defer rows.Close()

	var (
		row   ExportRow
		price string
		fnErr error
	)
	_, err = pgx.ForEachRow(rows, []any{&row.Title, &row.URL, &price, &row.ScrapedAt}, func() error {
		p, err := decimal.NewFromString(price)
		if err != nil {
			return err
		}
		row.Price = p
		if fnErr = fn(row); fnErr != nil {
			return fnErr
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	return storageErr("export", err)
}

func (r *Repository) Ping(ctx context.Context) error {
	return storageErr("ping", r.db.Ping(ctx))
}
