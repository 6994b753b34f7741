package cart_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmago/internal/cart"
	"pharmago/internal/models"
)

type fakeCatalog map[string]string

func (f fakeCatalog) UnitPrice(id string) (decimal.Decimal, bool) {
	price, ok := f[id]
	if !ok {
		return decimal.Zero, false
	}
	return decimal.RequireFromString(price), true
}

func TestToLineItemsResolvesCurrentPrices(t *testing.T) {
	c := models.Cart{
		ID:              "c1",
		EstablishmentID: "est1",
		Lines: []models.CartLine{
			// Stale price recorded at add-to-cart time; must be ignored.
			{CatalogItemID: "dipirona", Name: "Dipirona 500mg", UnitPrice: decimal.RequireFromString("9.99"), Quantity: 2},
			{CatalogItemID: "soro", Name: "Soro fisiológico", Quantity: 1},
		},
	}
	catalog := fakeCatalog{"dipirona": "12.50", "soro": "4.20"}

	lines, missing := cart.ToLineItems(c, catalog)
	require.Empty(t, missing)
	require.Len(t, lines, 2)

	assert.Equal(t, "12.50", lines[0].UnitPrice.StringFixed(2))
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, "est1", lines[0].EstablishmentID)
	assert.Equal(t, "4.20", lines[1].UnitPrice.StringFixed(2))
}

func TestToLineItemsDropsZeroQuantity(t *testing.T) {
	c := models.Cart{
		EstablishmentID: "est1",
		Lines: []models.CartLine{
			{CatalogItemID: "dipirona", Quantity: 0},
			{CatalogItemID: "soro", Quantity: -1},
			{CatalogItemID: "vitamina", Quantity: 1},
		},
	}
	catalog := fakeCatalog{"dipirona": "12.50", "soro": "4.20", "vitamina": "31.00"}

	lines, missing := cart.ToLineItems(c, catalog)
	assert.Empty(t, missing)
	require.Len(t, lines, 1)
	assert.Equal(t, "vitamina", lines[0].CatalogItemID)
}

func TestToLineItemsReportsMissingItems(t *testing.T) {
	c := models.Cart{
		EstablishmentID: "est1",
		Lines: []models.CartLine{
			{CatalogItemID: "descontinuado", Quantity: 1},
			{CatalogItemID: "vitamina", Quantity: 2},
		},
	}
	catalog := fakeCatalog{"vitamina": "31.00"}

	lines, missing := cart.ToLineItems(c, catalog)
	require.Len(t, lines, 1)
	assert.Equal(t, []string{"descontinuado"}, missing)
}

func TestToLineItemsEmptyCart(t *testing.T) {
	lines, missing := cart.ToLineItems(models.Cart{}, fakeCatalog{})
	assert.Empty(t, lines)
	assert.Empty(t, missing)
}
