// Package storage persists products and their append-only price
// history. Two backends exist: SQLite for single-binary deployments
// (the default) and Postgres for shared ones; the rest of the program
// only sees the Store interface.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ajit-kumar014/price-tracker-telegram/internal/models"
)

var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicateURL means a product with that URL is already tracked.
	ErrDuplicateURL = errors.New("storage: product URL already tracked")
)

// Store is the persistence contract consumed by the monitor and the bot.
type Store interface {
	// AddProduct inserts p and fills in its ID.
	AddProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	// ListProducts returns every product, newest first.
	ListProducts(ctx context.Context) ([]models.Product, error)
	// ActiveProducts returns the products eligible for checking.
	ActiveProducts(ctx context.Context) ([]models.Product, error)
	SetActive(ctx context.Context, id int64, active bool) error
	// UpdatePrice records the latest price on the product row and
	// maintains the lowest/highest bounds and last-checked time.
	UpdatePrice(ctx context.Context, id int64, price float64, checkedAt time.Time) error

	// AppendObservation adds one history row. History is append-only.
	AppendObservation(ctx context.Context, obs *models.PriceObservation) error
	// LastPricedObservation returns the most recent observation that
	// carries a price, skipping failure records. ErrNotFound when the
	// product has no priced history yet.
	LastPricedObservation(ctx context.Context, productID int64) (*models.PriceObservation, error)
	// History returns observations since the given time, oldest first.
	History(ctx context.Context, productID int64, since time.Time) ([]models.PriceObservation, error)

	Stats(ctx context.Context) (models.TrackerStats, error)
	Close() error
}
