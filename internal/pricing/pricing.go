// Package pricing computes cart and order totals. All arithmetic runs on
// decimals; rounding to two places happens once on the final subtotal so
// per-line rounding error cannot compound.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pharmago/internal/models"
)

// ErrInvalidLineItem marks a caller contract violation: a negative unit
// price or quantity. The calculator refuses rather than clamping, so the
// cart-mutation layer can reject the operation.
var ErrInvalidLineItem = errors.New("invalid line item")

// ComputeTotals prices the given lines under the establishment's delivery
// policy. The delivery fee is waived once the subtotal reaches the free
// threshold, boundary inclusive. Empty input yields a zero subtotal and the
// policy fee (itself waived when the threshold is zero).
func ComputeTotals(lines []models.CartLine, policy models.DeliveryPolicy) (models.PriceBreakdown, error) {
	sum := decimal.Zero
	for _, l := range lines {
		if l.UnitPrice.IsNegative() {
			return models.PriceBreakdown{}, fmt.Errorf("%w: item %s has negative price %s", ErrInvalidLineItem, l.CatalogItemID, l.UnitPrice)
		}
		if l.Quantity < 0 {
			return models.PriceBreakdown{}, fmt.Errorf("%w: item %s has negative quantity %d", ErrInvalidLineItem, l.CatalogItemID, l.Quantity)
		}
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	// Round half-up, once, on the summed value.
	subtotal := sum.Round(2)

	fee := policy.FeeAmount
	if subtotal.GreaterThanOrEqual(policy.FreeThreshold) {
		fee = decimal.Zero
	}

	return models.PriceBreakdown{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Total:       subtotal.Add(fee),
	}, nil
}
