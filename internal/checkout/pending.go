package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/pkg/storage"
	"github.com/google/uuid"
)

// PendingKey is where the in-flight checkout attempt is recorded.
const PendingKey = "checkout.pending"

// fingerprintSpace namespaces cart fingerprints.
var fingerprintSpace = uuid.MustParse("5b0f3c7e-2a7d-4d0e-9c4b-6f1e3f7a9d21")

// pending records an attempt whose outcome we may not have seen. A later
// attempt by the same client over the same lines reuses Key.
type pending struct {
	Key         string    `json:"key"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// fingerprint identifies a client's cart contents independent of line order.
func fingerprint(clientID int64, snapshot cart.Snapshot) string {
	lines := make([]string, 0, snapshot.Len())
	for _, item := range snapshot.Items() {
		lines = append(lines, fmt.Sprintf("%d:%d:%s", item.Product.ID, item.Quantity, item.Product.UnitPrice.String()))
	}
	sort.Strings(lines)
	data := fmt.Sprintf("%d|%s", clientID, strings.Join(lines, ","))
	return uuid.NewSHA1(fingerprintSpace, []byte(data)).String()
}

type pendingLog struct {
	store storage.Store
	now   func() time.Time
}

// claim returns the idempotency key for an attempt over fp, reusing the
// recorded one when it matches. The record is written before claim returns.
func (l pendingLog) claim(ctx context.Context, fp string) (key string, reused bool, err error) {
	data, err := l.store.Get(ctx, PendingKey)
	switch {
	case err == nil:
		var rec pending
		if json.Unmarshal(data, &rec) == nil && rec.Fingerprint == fp && rec.Key != "" {
			return rec.Key, true, nil
		}
	case !errors.Is(err, storage.ErrNotFound):
		return "", false, fmt.Errorf("failed to read pending checkout: %w", err)
	}

	rec := pending{Key: uuid.NewString(), Fingerprint: fp, CreatedAt: l.now().UTC()}
	data, err = json.Marshal(rec)
	if err != nil {
		return "", false, fmt.Errorf("failed to encode pending checkout: %w", err)
	}
	if err := l.store.Set(ctx, PendingKey, data); err != nil {
		return "", false, fmt.Errorf("failed to record pending checkout: %w", err)
	}
	return rec.Key, false, nil
}

func (l pendingLog) release(ctx context.Context) error {
	return l.store.Delete(ctx, PendingKey)
}
