package storage

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/ajit-kumar014/price-tracker-telegram/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the default single-file backend.
type SQLite struct {
	conn *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (or creates) the database at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	s := &SQLite{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}

	log.Printf("storage: sqlite ready at %s", dbPath)
	return s, nil
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		name TEXT,
		user_id TEXT,
		current_price REAL,
		lowest_price REAL,
		highest_price REAL,
		target_price REAL NOT NULL,
		last_checked DATETIME,
		active BOOLEAN DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL REFERENCES products(id),
		price REAL,
		status TEXT NOT NULL DEFAULT 'success',
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_product_ts ON price_history(product_id, timestamp);
	`

	if _, err := s.conn.Exec(schema); err != nil {
		return err
	}

	// SQLite has no IF NOT EXISTS for ALTER TABLE; the error on an
	// existing column is expected and ignored.
	_, _ = s.conn.Exec("ALTER TABLE products ADD COLUMN user_id TEXT")
	_, _ = s.conn.Exec("ALTER TABLE products ADD COLUMN lowest_price REAL")
	_, _ = s.conn.Exec("ALTER TABLE products ADD COLUMN highest_price REAL")

	return nil
}

func (s *SQLite) AddProduct(ctx context.Context, p *models.Product) error {
	res, err := s.conn.ExecContext(ctx,
		"INSERT INTO products (url, name, user_id, current_price, target_price, active) VALUES (?, ?, ?, 0, ?, 1)",
		p.URL, p.Name, p.UserID, p.TargetPrice,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicateURL
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	p.Active = true
	return nil
}

const productColumns = "id, url, name, user_id, current_price, lowest_price, highest_price, target_price, last_checked, active, created_at"

func (s *SQLite) scanProduct(row interface{ Scan(...any) error }) (*models.Product, error) {
	var p models.Product
	var name, userID sql.NullString
	var current, lowest, highest sql.NullFloat64
	var lastChecked sql.NullTime
	err := row.Scan(&p.ID, &p.URL, &name, &userID, &current, &lowest, &highest, &p.TargetPrice, &lastChecked, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Name = name.String
	p.UserID = userID.String
	p.CurrentPrice = current.Float64
	p.LowestPrice = lowest.Float64
	p.HighestPrice = highest.Float64
	if lastChecked.Valid {
		p.LastChecked = lastChecked.Time
	}
	return &p, nil
}

func (s *SQLite) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := s.scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *SQLite) listProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := s.scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *SQLite) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.listProducts(ctx,
		"SELECT "+productColumns+" FROM products ORDER BY created_at DESC")
}

func (s *SQLite) ActiveProducts(ctx context.Context) ([]models.Product, error) {
	return s.listProducts(ctx,
		"SELECT "+productColumns+" FROM products WHERE active = 1 ORDER BY id")
}

func (s *SQLite) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := s.conn.ExecContext(ctx, "UPDATE products SET active = ? WHERE id = ?", active, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) UpdatePrice(ctx context.Context, id int64, price float64, checkedAt time.Time) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE products SET
			current_price = ?,
			lowest_price = CASE WHEN lowest_price IS NULL OR lowest_price = 0 OR ? < lowest_price THEN ? ELSE lowest_price END,
			highest_price = CASE WHEN highest_price IS NULL OR ? > highest_price THEN ? ELSE highest_price END,
			last_checked = ?
		WHERE id = ?`,
		price, price, price, price, price, checkedAt.UTC(), id,
	)
	return err
}

func (s *SQLite) AppendObservation(ctx context.Context, obs *models.PriceObservation) error {
	var price sql.NullFloat64
	if obs.Price != nil {
		price = sql.NullFloat64{Float64: *obs.Price, Valid: true}
	}
	res, err := s.conn.ExecContext(ctx,
		"INSERT INTO price_history (product_id, price, status, timestamp) VALUES (?, ?, ?, ?)",
		obs.ProductID, price, string(obs.Status), obs.Timestamp.UTC(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	obs.ID = id
	return nil
}

func (s *SQLite) LastPricedObservation(ctx context.Context, productID int64) (*models.PriceObservation, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, product_id, price, status, timestamp FROM price_history
		WHERE product_id = ? AND price IS NOT NULL
		ORDER BY timestamp DESC, id DESC LIMIT 1`,
		productID,
	)
	obs, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return obs, err
}

func (s *SQLite) History(ctx context.Context, productID int64, since time.Time) ([]models.PriceObservation, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, product_id, price, status, timestamp FROM price_history
		WHERE product_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC, id ASC`,
		productID, since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.PriceObservation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, *obs)
	}
	return history, rows.Err()
}

func scanObservation(row interface{ Scan(...any) error }) (*models.PriceObservation, error) {
	var obs models.PriceObservation
	var price sql.NullFloat64
	var status string
	if err := row.Scan(&obs.ID, &obs.ProductID, &price, &status, &obs.Timestamp); err != nil {
		return nil, err
	}
	if price.Valid {
		v := price.Float64
		obs.Price = &v
	}
	obs.Status = models.ObservationStatus(status)
	return &obs, nil
}

func (s *SQLite) Stats(ctx context.Context) (models.TrackerStats, error) {
	var stats models.TrackerStats
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM products WHERE active = 1),
			(SELECT COUNT(*) FROM price_history)`,
	).Scan(&stats.TotalProducts, &stats.ActiveProducts, &stats.Observations)
	return stats, err
}
