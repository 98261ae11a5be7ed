// Package catalog holds the storefront's view of the backend product catalog:
// the canonical Product type, the wire normalization boundary, and a
// read-through cache with derived analytics.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Product is the canonical, normalized product. Values are never shared with the cache.
type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	StockQuantity int32           `json:"stock_quantity"`
	UnitsSold     int32           `json:"units_sold"`
	CategoryID    int64           `json:"category_id,omitempty"`
	CategoryName  string          `json:"category_name,omitempty"`
	ImageURL      string          `json:"image_url,omitempty"`
}

// RawProduct is a product record as the backend sends it. Each attribute may
// arrive under the backend's native name or under an English alias.
type RawProduct struct {
	ID               *int64           `json:"id,omitempty"`
	IDProducto       *int64           `json:"id_producto,omitempty"`
	Nombre           *string          `json:"nombre,omitempty"`
	Name             *string          `json:"name,omitempty"`
	Precio           *decimal.Decimal `json:"precio,omitempty"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	Stock            *int32           `json:"stock,omitempty"`
	Ventas           *int32           `json:"ventas,omitempty"`
	Sales            *int32           `json:"sales,omitempty"`
	IDCategoria      *int64           `json:"id_categoria,omitempty"`
	IDCategoriaCamel *int64           `json:"idCategoria,omitempty"`
	Categoria        *string          `json:"categoria,omitempty"`
	Imagen           *string          `json:"imagen,omitempty"`
	Image            *string          `json:"image,omitempty"`

	decodeErr error
}

// UnmarshalJSON never fails: a record that cannot be decoded is kept and later
// rejected by Normalize, so one bad record does not discard the whole payload.
func (r *RawProduct) UnmarshalJSON(data []byte) error {
	type plain RawProduct
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*r = RawProduct{decodeErr: err}
		return nil
	}
	*r = RawProduct(p)
	return nil
}

// Normalize maps a raw record onto Product. The native field wins when both
// names are present; the alias is only consulted when the native one is absent or null.
func Normalize(raw RawProduct) (Product, error) {
	if raw.decodeErr != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrInvalidProduct, raw.decodeErr)
	}

	id := first(raw.ID, raw.IDProducto)
	if id == nil || *id <= 0 {
		return Product{}, fmt.Errorf("%w: missing id", ErrInvalidProduct)
	}
	name := first(raw.Nombre, raw.Name)
	if name == nil || strings.TrimSpace(*name) == "" {
		return Product{}, fmt.Errorf("%w: product %d has no name", ErrInvalidProduct, *id)
	}
	price := first(raw.Precio, raw.Price)
	if price == nil {
		return Product{}, fmt.Errorf("%w: product %d has no price", ErrInvalidProduct, *id)
	}
	if price.IsNegative() {
		return Product{}, fmt.Errorf("%w: product %d has negative price", ErrInvalidProduct, *id)
	}

	p := Product{
		ID:        *id,
		Name:      strings.TrimSpace(*name),
		UnitPrice: *price,
	}
	if raw.Stock != nil {
		if *raw.Stock < 0 {
			return Product{}, fmt.Errorf("%w: product %d has negative stock", ErrInvalidProduct, *id)
		}
		p.StockQuantity = *raw.Stock
	}
	if sold := first(raw.Ventas, raw.Sales); sold != nil {
		if *sold < 0 {
			return Product{}, fmt.Errorf("%w: product %d has negative sales", ErrInvalidProduct, *id)
		}
		p.UnitsSold = *sold
	}
	if cat := first(raw.IDCategoria, raw.IDCategoriaCamel); cat != nil {
		if *cat < 0 {
			return Product{}, fmt.Errorf("%w: product %d has invalid category", ErrInvalidProduct, *id)
		}
		p.CategoryID = *cat
	}
	if raw.Categoria != nil {
		p.CategoryName = *raw.Categoria
	}
	if img := first(raw.Imagen, raw.Image); img != nil {
		p.ImageURL = *img
	}
	return p, nil
}

// NormalizeAll normalizes records in order. Invalid records and repeated ids
// (after the first occurrence) are dropped and counted in skipped.
func NormalizeAll(raws []RawProduct) (products []Product, skipped int) {
	products = make([]Product, 0, len(raws))
	seen := make(map[int64]struct{}, len(raws))
	for _, raw := range raws {
		p, err := Normalize(raw)
		if err != nil {
			skipped++
			continue
		}
		if _, dup := seen[p.ID]; dup {
			skipped++
			continue
		}
		seen[p.ID] = struct{}{}
		products = append(products, p)
	}
	return products, skipped
}

func first[T any](canonical, alias *T) *T {
	if canonical != nil {
		return canonical
	}
	return alias
}

func clone(products []Product) []Product {
	if products == nil {
		return []Product{}
	}
	out := make([]Product, len(products))
	copy(out, products)
	return out
}
