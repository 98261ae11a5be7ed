package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/pkg/observable"
	"github.com/abgdnv/storefront/pkg/storage"
	"github.com/shopspring/decimal"
)

// StorageKey is where the cart lines are persisted.
const StorageKey = "cart"

// MaxQuantity is the largest quantity a line may hold; the backend sale line carries it as int32.
const MaxQuantity = math.MaxInt32

var (
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 2147483647")
	ErrPersist         = errors.New("failed to persist cart")
)

// Store owns the cart. Every mutation is written to storage before observers
// see it; if the write fails the cart and its observers are left untouched.
//
// Store is safe for concurrent use. Observers run synchronously inside the
// mutation and must not call mutating methods of the same Store.
type Store struct {
	subject *observable.Subject[Snapshot]
	storage storage.Store
	logger  *slog.Logger
}

// NewStore hydrates the cart from st. Missing or unreadable data gives an empty cart.
func NewStore(ctx context.Context, st storage.Store, logger *slog.Logger) *Store {
	s := &Store{
		storage: st,
		logger:  logger,
	}
	s.subject = observable.NewSubject(newSnapshot(s.hydrate(ctx)))
	return s
}

func (s *Store) hydrate(ctx context.Context) []Item {
	data, err := s.storage.Get(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return []Item{}
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load saved cart, starting empty", "error", err)
		return []Item{}
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.WarnContext(ctx, "saved cart is unreadable, starting empty", "error", err)
		return []Item{}
	}
	cleaned := sanitize(items)
	if len(cleaned) != len(items) {
		s.logger.WarnContext(ctx, "dropped invalid saved cart lines", "saved", len(items), "kept", len(cleaned))
	}
	return cleaned
}

// Snapshot returns the current cart.
func (s *Store) Snapshot() Snapshot {
	return s.subject.Value()
}

// Total returns the current cart total.
func (s *Store) Total() decimal.Decimal {
	return s.subject.Value().Total()
}

// Count returns the number of units in the cart.
func (s *Store) Count() int {
	return s.subject.Value().Count()
}

// Subscribe delivers the current cart immediately and then every change, in order.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	return s.subject.Subscribe(fn)
}

// Add puts quantity units of product in the cart, merging with an existing line.
// Stock is not checked here.
func (s *Store) Add(ctx context.Context, product catalog.Product, quantity int) error {
	if quantity < 1 || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	overflow := false
	err := s.mutate(ctx, "add", func(items []Item) ([]Item, bool) {
		for i := range items {
			if items[i].Product.ID == product.ID {
				if items[i].Quantity > MaxQuantity-quantity {
					overflow = true
					return items, false
				}
				items[i].Quantity += quantity
				return items, true
			}
		}
		return append(items, Item{Product: product, Quantity: quantity}), true
	})
	if err != nil {
		return err
	}
	if overflow {
		return ErrInvalidQuantity
	}
	return nil
}

// SetQuantity replaces a line's quantity. A quantity of zero or less removes the
// line; an unknown product id is ignored.
func (s *Store) SetQuantity(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return s.Remove(ctx, productID)
	}
	if quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	return s.mutate(ctx, "set_quantity", func(items []Item) ([]Item, bool) {
		for i := range items {
			if items[i].Product.ID == productID {
				items[i].Quantity = quantity
				return items, true
			}
		}
		return items, false
	})
}

// Remove drops the line for productID if there is one.
func (s *Store) Remove(ctx context.Context, productID int64) error {
	return s.mutate(ctx, "remove", func(items []Item) ([]Item, bool) {
		for i := range items {
			if items[i].Product.ID == productID {
				return append(items[:i], items[i+1:]...), true
			}
		}
		return items, false
	})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, "clear", func([]Item) ([]Item, bool) {
		return []Item{}, true
	})
}

// mutate applies change to a private copy of the lines, persists the result and publishes it.
func (s *Store) mutate(ctx context.Context, op string, change func(items []Item) ([]Item, bool)) error {
	err := s.subject.Update(func(current Snapshot) (Snapshot, bool, error) {
		next, changed := change(current.Items())
		if !changed {
			return current, false, nil
		}
		data, err := json.Marshal(next)
		if err != nil {
			return current, false, fmt.Errorf("%w: %w", ErrPersist, err)
		}
		if err := s.storage.Set(ctx, StorageKey, data); err != nil {
			return current, false, fmt.Errorf("%w: %w", ErrPersist, err)
		}
		return newSnapshot(next), true, nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "cart mutation failed", "op", op, "error", err)
		return err
	}
	return nil
}
