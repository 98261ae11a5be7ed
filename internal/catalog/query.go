package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Filter narrows a product list the way the storefront search bar does.
// Zero values disable a criterion.
type Filter struct {
	Search     string
	MaxPrice   decimal.NullDecimal
	CategoryID int64
}

func (f Filter) Matches(p Product) bool {
	if term := strings.TrimSpace(f.Search); term != "" &&
		!strings.Contains(strings.ToLower(p.Name), strings.ToLower(term)) {
		return false
	}
	if f.MaxPrice.Valid && p.UnitPrice.GreaterThan(f.MaxPrice.Decimal) {
		return false
	}
	if f.CategoryID != 0 && p.CategoryID != f.CategoryID {
		return false
	}
	return true
}

// Apply returns the matching products in their original order.
func (f Filter) Apply(products []Product) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}

// Related returns up to limit other products from the same category.
// Uncategorized products have no related products.
func Related(products []Product, product Product, limit int) []Product {
	out := make([]Product, 0, limit)
	if product.CategoryID == 0 || limit <= 0 {
		return out
	}
	for _, p := range products {
		if p.CategoryID == product.CategoryID && p.ID != product.ID {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// MaxPrice is the highest unit price in products, zero for an empty list.
func MaxPrice(products []Product) decimal.Decimal {
	maxPrice := decimal.Zero
	for _, p := range products {
		if p.UnitPrice.GreaterThan(maxPrice) {
			maxPrice = p.UnitPrice
		}
	}
	return maxPrice
}
