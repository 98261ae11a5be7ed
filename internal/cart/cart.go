// Package cart keeps the shopper's cart as observable state persisted to storage.
package cart

import (
	"encoding/json"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/shopspring/decimal"
)

// Item is one cart line. Product is a copy taken when the line was created.
type Item struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// Subtotal is UnitPrice * Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Product.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Snapshot is an immutable view of the cart at one point in time.
type Snapshot struct {
	items []Item
}

func newSnapshot(items []Item) Snapshot {
	return Snapshot{items: items}
}

// Items returns a copy of the lines in insertion order.
func (s Snapshot) Items() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

func (s Snapshot) Len() int { return len(s.items) }

func (s Snapshot) IsEmpty() bool { return len(s.items) == 0 }

// Count is the total number of units, as shown on the navigation badge.
func (s Snapshot) Count() int {
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// Total is the sum of line subtotals.
func (s Snapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

func (s Snapshot) Find(productID int64) (Item, bool) {
	for _, it := range s.items {
		if it.Product.ID == productID {
			return it, true
		}
	}
	return Item{}, false
}

type snapshotJSON struct {
	Items []Item          `json:"items"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Items: s.Items(),
		Count: s.Count(),
		Total: s.Total(),
	})
}

// sanitize merges repeated product ids into the first line and drops lines that
// cannot be valid, so hydrated state satisfies the same rules as mutated state.
func sanitize(items []Item) []Item {
	out := make([]Item, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, it := range items {
		if it.Product.ID <= 0 || it.Quantity <= 0 || it.Quantity > MaxQuantity {
			continue
		}
		if i, ok := index[it.Product.ID]; ok {
			if out[i].Quantity <= MaxQuantity-it.Quantity {
				out[i].Quantity += it.Quantity
			}
			continue
		}
		index[it.Product.ID] = len(out)
		out = append(out, it)
	}
	return out
}
