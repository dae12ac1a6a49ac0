package models

import "time"

// ObservationStatus records how a check attempt ended.
type ObservationStatus string

const (
	StatusSuccess ObservationStatus = "success"
	StatusBlocked ObservationStatus = "blocked"
	StatusError   ObservationStatus = "error"
)

// PriceObservation is one row of a product's append-only price history.
// Price is nil for failure records (blocked or error), which keep the
// timeline honest without affecting change detection.
type PriceObservation struct {
	ID        int64
	ProductID int64
	Price     *float64
	Status    ObservationStatus
	Timestamp time.Time
}
