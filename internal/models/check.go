package models

import (
	"time"

	"github.com/google/uuid"
)

// Classification describes how a freshly observed price relates to the
// previous priced observation and the product's target.
type Classification string

const (
	FirstObservation     Classification = "first-observation"
	Unchanged            Classification = "unchanged"
	Increased            Classification = "increased"
	DecreasedAboveTarget Classification = "decreased-above-target"
	DecreasedToTarget    Classification = "decreased-to-or-below-target"
	FetchFailed          Classification = "fetch-failed"
)

// CheckResult is the outcome of checking a single product once.
type CheckResult struct {
	ProductID     int64
	PreviousPrice *float64
	NewPrice      *float64
	Class         Classification
	ShouldNotify  bool
	Notified      bool
}

// Failed reports whether the check produced no usable price observation.
func (r CheckResult) Failed() bool {
	return r.Class == FetchFailed
}

// CycleSummary aggregates the outcome of one full check cycle.
type CycleSummary struct {
	RunID         uuid.UUID
	Attempted     int
	Succeeded     int
	Failed        int
	Notifications int
	Start         time.Time
	End           time.Time
}

// TrackerStats are the totals reported by the /stats command.
type TrackerStats struct {
	TotalProducts  int64
	ActiveProducts int64
	Observations   int64
}
