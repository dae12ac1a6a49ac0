// Package detector classifies price movements and decides when a drop
// is worth an alert. Alerts are edge-triggered: one fires only when the
// price crosses from above the target to at-or-below it, so a product
// sitting under its target for weeks produces exactly one message.
package detector

import (
	"github.com/ajit-kumar014/price-tracker-telegram/internal/models"
)

// Evaluate classifies newPrice against the product's most recent priced
// observation. prev must be the latest observation carrying a price;
// failure observations are not part of the edge state and must not be
// passed here. A nil prev means the product has never had a price.
func Evaluate(product models.Product, prev *models.PriceObservation, newPrice float64) models.CheckResult {
	result := models.CheckResult{
		ProductID: product.ID,
		NewPrice:  &newPrice,
	}

	if prev == nil || prev.Price == nil {
		result.Class = models.FirstObservation
		return result
	}

	prevPrice := *prev.Price
	result.PreviousPrice = &prevPrice

	switch {
	case newPrice == prevPrice:
		result.Class = models.Unchanged
	case newPrice > prevPrice:
		result.Class = models.Increased
	case newPrice > product.TargetPrice:
		result.Class = models.DecreasedAboveTarget
	default:
		result.Class = models.DecreasedToTarget
		// Notify only on the crossing itself. If the previous price was
		// already at or below target the user has been told.
		result.ShouldNotify = prevPrice > product.TargetPrice
	}
	return result
}

// Failure builds the result for a check that produced no price.
func Failure(productID int64) models.CheckResult {
	return models.CheckResult{ProductID: productID, Class: models.FetchFailed}
}
