package models

import "time"

// Product represents a tracked e-commerce listing.
type Product struct {
	ID           int64
	URL          string
	Name         string
	UserID       string // telegram user that added the product
	CurrentPrice float64
	LowestPrice  float64 // lowest price ever observed
	HighestPrice float64 // highest price ever observed
	TargetPrice  float64
	LastChecked  time.Time
	Active       bool
	CreatedAt    time.Time
}
