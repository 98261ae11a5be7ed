package catalog

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a fetched snapshot is served without asking the backend.
const DefaultTTL = 60 * time.Second

const meterName = "github.com/abgdnv/storefront/internal/catalog"

// Source performs the remote product listing.
type Source interface {
	FetchProducts(ctx context.Context) ([]RawProduct, error)
}

// Cache is a read-through cache over Source with a fixed TTL.
//
// Concurrent misses share one remote call. Invalidate bumps a generation
// counter; a call started under an older generation still answers its own
// waiters but never repopulates the cache, and later callers never join it.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu         sync.Mutex
	products   []Product
	fetchedAt  time.Time
	valid      bool
	generation uint64

	group  singleflight.Group
	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMeter records hit and miss counters on meter instead of the global one.
func WithMeter(meter metric.Meter) Option {
	return func(c *Cache) { c.initCounters(meter) }
}

func NewCache(source Source, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		source: source,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: logger,
	}
	c.initCounters(otel.Meter(meterName))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) initCounters(meter metric.Meter) {
	var err error
	if c.hits, err = meter.Int64Counter("catalog_cache_hits", metric.WithDescription("Catalog reads served from the cache")); err != nil {
		c.hits = noop.Int64Counter{}
	}
	if c.misses, err = meter.Int64Counter("catalog_cache_misses", metric.WithDescription("Catalog reads that went to the backend")); err != nil {
		c.misses = noop.Int64Counter{}
	}
}

// Fetch returns a copy of the cached snapshot, fetching it first when it is
// missing or older than the TTL. On failure the cache is left as it was.
func (c *Cache) Fetch(ctx context.Context) ([]Product, error) {
	c.mu.Lock()
	if c.valid && c.now().Sub(c.fetchedAt) < c.ttl {
		snapshot := clone(c.products)
		c.mu.Unlock()
		c.hits.Add(ctx, 1)
		return snapshot, nil
	}
	gen := c.generation
	c.mu.Unlock()
	c.misses.Add(ctx, 1)

	// The shared call must outlive any single waiter, so it runs without the caller's cancellation.
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return c.load(detached, gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]Product)), nil
	}
}

func (c *Cache) load(ctx context.Context, gen uint64) ([]Product, error) {
	raws, err := c.source.FetchProducts(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "catalog fetch failed", "error", err)
		return nil, err
	}
	products, skipped := NormalizeAll(raws)
	if skipped > 0 {
		c.logger.WarnContext(ctx, "skipped invalid product records", "skipped", skipped, "kept", len(products))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.products = products
		c.fetchedAt = c.now()
		c.valid = true
	}
	c.logger.DebugContext(ctx, "catalog fetched", "products", len(products), "stored", c.generation == gen)
	return products, nil
}

// Invalidate drops the snapshot; the next Fetch goes to the backend.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	old := c.generation
	c.generation++
	c.products = nil
	c.fetchedAt = time.Time{}
	c.valid = false
	c.mu.Unlock()
	c.group.Forget(strconv.FormatUint(old, 10))
}

// Product looks id up in the current snapshot.
func (c *Cache) Product(ctx context.Context, id int64) (Product, error) {
	products, err := c.Fetch(ctx)
	if err != nil {
		return Product{}, err
	}
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, ErrProductNotFound
}

// BestSeller returns the product with the most units sold; the first one wins ties.
// ok is false when the catalog is empty.
func (c *Cache) BestSeller(ctx context.Context) (best Product, ok bool, err error) {
	products, err := c.Fetch(ctx)
	if err != nil {
		return Product{}, false, err
	}
	best, ok = pick(products, func(candidate, current Product) bool {
		return candidate.UnitsSold > current.UnitsSold
	})
	return best, ok, nil
}

// WorstSeller returns the product with the fewest units sold; the first one wins ties.
func (c *Cache) WorstSeller(ctx context.Context) (worst Product, ok bool, err error) {
	products, err := c.Fetch(ctx)
	if err != nil {
		return Product{}, false, err
	}
	worst, ok = pick(products, func(candidate, current Product) bool {
		return candidate.UnitsSold < current.UnitsSold
	})
	return worst, ok, nil
}

// DeadStock returns the products that never sold, in catalog order.
func (c *Cache) DeadStock(ctx context.Context) ([]Product, error) {
	products, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	dead := make([]Product, 0)
	for _, p := range products {
		if p.UnitsSold == 0 {
			dead = append(dead, p)
		}
	}
	return dead, nil
}

func pick(products []Product, better func(candidate, current Product) bool) (Product, bool) {
	if len(products) == 0 {
		return Product{}, false
	}
	chosen := products[0]
	for _, p := range products[1:] {
		if better(p, chosen) {
			chosen = p
		}
	}
	return chosen, true
}
