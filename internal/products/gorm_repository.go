package products

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/valeevte/PriceTracker/internal/logger"
)

// GormRepository is the Store used for local runs against a SQLite file.
type GormRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGormRepository(db *gorm.DB, log *logger.Logger) *GormRepository {
	return &GormRepository{db: db, log: log.With("store", "gorm")}
}

var _ Store = (*GormRepository)(nil)

func (r *GormRepository) AutoMigrate() error {
	if err := r.db.AutoMigrate(&Product{}, &PriceObservation{}); err != nil {
		return storageErr("migrate", err)
	}
	r.log.Info("gorm schema ready")
	return nil
}

func (r *GormRepository) UpsertProduct(ctx context.Context, title, url string) (int64, error) {
	db := r.db.WithContext(ctx)
	p := Product{Title: title, URL: url, CreatedAt: observationTime(time.Time{})}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoNothing: true,
	}).Create(&p)
	if res.Error != nil {
		return 0, storageErr("upsert product", res.Error)
	}

	var existing Product
	if err := db.Select("id").Where("url = ?", url).Take(&existing).Error; err != nil {
		return 0, storageErr("upsert product", err)
	}
	if res.RowsAffected == 0 {
		r.log.Debug("product already known", "product_id", existing.ID, "url", url)
	} else {
		r.log.Info("product created", "product_id", existing.ID, "url", url)
	}
	return existing.ID, nil
}

func (r *GormRepository) AppendObservation(ctx context.Context, productID int64, price decimal.Decimal, scrapedAt time.Time) (int64, error) {
	obs := PriceObservation{
		ProductID: productID,
		Price:     price,
		ScrapedAt: observationTime(scrapedAt),
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&obs).Error; err != nil {
		return 0, storageErr("append observation", err)
	}
	return obs.ID, nil
}

const gormLatestRankedQuery = `
SELECT p.id AS product_id, p.title AS title, p.url AS url, p.created_at AS created_at,
       r.id AS observation_id, r.price AS price, r.scraped_at AS scraped_at, r.rn AS rank
FROM products p
JOIN (
    SELECT id, product_id, price, scraped_at,
           ROW_NUMBER() OVER (PARTITION BY product_id ORDER BY scraped_at DESC, id DESC) AS rn
    FROM price_history
) r ON r.product_id = p.id
WHERE r.rn <= ?
ORDER BY p.id, r.rn
`

func (r *GormRepository) latestRanked(ctx context.Context, depth int) ([]rankedObservation, error) {
	var rows []rankedObservation
	err := r.db.WithContext(ctx).Raw(gormLatestRankedQuery, depth).Scan(&rows).Error
	return rows, err
}

func (r *GormRepository) LatestPerProduct(ctx context.Context) ([]ProductSnapshot, error) {
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

func (r *GormRepository) LatestTwoPerProduct(ctx context.Context) ([]PriceChange, error) {
	rows, err := r.latestRanked(ctx, 2)
	if err != nil {
		return nil, storageErr("latest two per product", err)
	}
	return pairLatestTwo(rows), nil
}

func (r *GormRepository) HistoryFor(ctx context.Context, productID int64, start, end *time.Time) ([]PricePoint, error) {
	q := r.db.WithContext(ctx).
		Model(&PriceObservation{}).
		Select("price", "scraped_at").
		Where("product_id = ?", productID)
	if start != nil {
		q = q.Where("scraped_at >= ?", start.UTC())
	}
	if end != nil {
		q = q.Where("scraped_at <= ?", end.UTC())
	}
	out := []PricePoint{}
	if err := q.Order("scraped_at DESC").Order("id DESC").Scan(&out).Error; err != nil {
		return nil, storageErr("history", err)
	}
	return out, nil
}

func (r *GormRepository) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Product{}).Count(&n).Error; err != nil {
		return 0, storageErr("count products", err)
	}
	return n, nil
}

func (r *GormRepository) CountObservations(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&PriceObservation{}).Count(&n).Error; err != nil {
		return 0, storageErr("count observations", err)
	}
	return n, nil
}

func (r *GormRepository) AllObservationsJoined(ctx context.Context, fn func(ExportRow) error) error {
	db := r.db.WithContext(ctx)
	rows, err := db.Raw(`
SELECT p.title AS title, p.url AS url, ph.price AS price, ph.scraped_at AS scraped_at
FROM price_history ph
JOIN products p ON ph.product_id = p.id
ORDER BY ph.scraped_at DESC, ph.id DESC
`).Rows()
	if err != nil {
		return storageErr("export", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row ExportRow
		if err := db.ScanRows(rows, &row); err != nil {
			return storageErr("export", err)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return storageErr("export", rows.Err())
}

func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return storageErr("ping", err)
	}
	return storageErr("ping", sqlDB.PingContext(ctx))
}
