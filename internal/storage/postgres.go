package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ajit-kumar014/price-tracker-telegram/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres backs the store with a pgx connection pool. Selected when a
// DSN is configured.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres connects to dsn and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	p := &Postgres{pool: pool}
	if err := p.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Println("storage: postgres ready")
	return p, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) init(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		name TEXT,
		user_id TEXT,
		current_price DOUBLE PRECISION,
		lowest_price DOUBLE PRECISION,
		highest_price DOUBLE PRECISION,
		target_price DOUBLE PRECISION NOT NULL,
		last_checked TIMESTAMPTZ,
		active BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMPTZ DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS price_history (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES products(id),
		price DOUBLE PRECISION,
		status TEXT NOT NULL DEFAULT 'success',
		timestamp TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_product_ts ON price_history(product_id, timestamp);
	`
	_, err := p.pool.Exec(ctx, schema)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (p *Postgres) AddProduct(ctx context.Context, product *models.Product) error {
	err := p.pool.QueryRow(ctx,
		"INSERT INTO products (url, name, user_id, current_price, target_price, active) VALUES ($1, $2, $3, 0, $4, TRUE) RETURNING id",
		product.URL, product.Name, product.UserID, product.TargetPrice,
	).Scan(&product.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateURL
		}
		return err
	}
	product.Active = true
	return nil
}

const pgProductColumns = "id, url, COALESCE(name, ''), COALESCE(user_id, ''), COALESCE(current_price, 0), COALESCE(lowest_price, 0), COALESCE(highest_price, 0), target_price, COALESCE(last_checked, 'epoch'::timestamptz), active, created_at"

func scanPgProduct(row pgx.Row) (*models.Product, error) {
	var product models.Product
	err := row.Scan(&product.ID, &product.URL, &product.Name, &product.UserID,
		&product.CurrentPrice, &product.LowestPrice, &product.HighestPrice,
		&product.TargetPrice, &product.LastChecked, &product.Active, &product.CreatedAt)
	if err != nil {
		return nil, err
	}
	if product.LastChecked.Unix() == 0 {
		product.LastChecked = time.Time{}
	}
	return &product, nil
}

func (p *Postgres) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	row := p.pool.QueryRow(ctx,
		"SELECT "+pgProductColumns+" FROM products WHERE id = $1", id)
	product, err := scanPgProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return product, err
}

func (p *Postgres) listProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		product, err := scanPgProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	return products, rows.Err()
}

func (p *Postgres) ListProducts(ctx context.Context) ([]models.Product, error) {
	return p.listProducts(ctx,
		"SELECT "+pgProductColumns+" FROM products ORDER BY created_at DESC")
}

func (p *Postgres) ActiveProducts(ctx context.Context) ([]models.Product, error) {
	return p.listProducts(ctx,
		"SELECT "+pgProductColumns+" FROM products WHERE active ORDER BY id")
}

func (p *Postgres) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := p.pool.Exec(ctx, "UPDATE products SET active = $1 WHERE id = $2", active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdatePrice(ctx context.Context, id int64, price float64, checkedAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE products SET
			current_price = $1,
			lowest_price = CASE WHEN lowest_price IS NULL OR lowest_price = 0 OR $1 < lowest_price THEN $1 ELSE lowest_price END,
			highest_price = CASE WHEN highest_price IS NULL OR $1 > highest_price THEN $1 ELSE highest_price END,
			last_checked = $2
		WHERE id = $3`,
		price, checkedAt.UTC(), id,
	)
	return err
}

func (p *Postgres) AppendObservation(ctx context.Context, obs *models.PriceObservation) error {
	return p.pool.QueryRow(ctx,
		"INSERT INTO price_history (product_id, price, status, timestamp) VALUES ($1, $2, $3, $4) RETURNING id",
		obs.ProductID, obs.Price, string(obs.Status), obs.Timestamp.UTC(),
	).Scan(&obs.ID)
}

func (p *Postgres) LastPricedObservation(ctx context.Context, productID int64) (*models.PriceObservation, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, product_id, price, status, timestamp FROM price_history
		WHERE product_id = $1 AND price IS NOT NULL
		ORDER BY timestamp DESC, id DESC LIMIT 1`,
		productID,
	)
	var obs models.PriceObservation
	var status string
	err := row.Scan(&obs.ID, &obs.ProductID, &obs.Price, &status, &obs.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	obs.Status = models.ObservationStatus(status)
	return &obs, nil
}

func (p *Postgres) History(ctx context.Context, productID int64, since time.Time) ([]models.PriceObservation, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, product_id, price, status, timestamp FROM price_history
		WHERE product_id = $1 AND timestamp >= $2
		ORDER BY timestamp ASC, id ASC`,
		productID, since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.PriceObservation
	for rows.Next() {
		var obs models.PriceObservation
		var status string
		if err := rows.Scan(&obs.ID, &obs.ProductID, &obs.Price, &status, &obs.Timestamp); err != nil {
			return nil, err
		}
		obs.Status = models.ObservationStatus(status)
		history = append(history, obs)
	}
	return history, rows.Err()
}

func (p *Postgres) Stats(ctx context.Context) (models.TrackerStats, error) {
	var stats models.TrackerStats
	err := p.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM products WHERE active),
			(SELECT COUNT(*) FROM price_history)`,
	).Scan(&stats.TotalProducts, &stats.ActiveProducts, &stats.Observations)
	return stats, err
}
