package checkout

import (
	"github.com/abgdnv/storefront/internal/cart"
	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the Peruvian IGV.
var DefaultTaxRate = decimal.RequireFromString("0.18")

// Totals are rounded to cents. Total is the rounded subtotal plus the rounded tax.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

func ComputeTotals(snapshot cart.Snapshot, taxRate decimal.Decimal) Totals {
	subtotal := snapshot.Total().Round(2)
	tax := subtotal.Mul(taxRate).Round(2)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}
