// Package cart turns raw cart entries into the pricing input shape.
package cart

import (
	"github.com/shopspring/decimal"

	"pharmago/internal/models"
)

// CatalogLookup resolves the current unit price of a catalog item.
type CatalogLookup interface {
	UnitPrice(catalogItemID string) (decimal.Decimal, bool)
}

// ToLineItems resolves each cart line against the catalog at aggregation
// time, so a price change at the establishment propagates to an uncommitted
// cart automatically. Quantities below one are removal requests and the line
// is dropped. Lines whose item is no longer in the catalog are dropped too
// and reported in the second return for the caller to log.
func ToLineItems(c models.Cart, catalog CatalogLookup) ([]models.CartLine, []string) {
	lines := make([]models.CartLine, 0, len(c.Lines))
	var missing []string
	for _, raw := range c.Lines {
		if raw.Quantity < 1 {
			continue
		}
		price, ok := catalog.UnitPrice(raw.CatalogItemID)
		if !ok {
			missing = append(missing, raw.CatalogItemID)
			continue
		}
		lines = append(lines, models.CartLine{
			CatalogItemID:   raw.CatalogItemID,
			Name:            raw.Name,
			UnitPrice:       price,
			Quantity:        raw.Quantity,
			EstablishmentID: c.EstablishmentID,
		})
	}
	return lines, missing
}
