package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderPlacedEvent(t *testing.T) {
	ev := OrderPlacedEvent{
		SaleID:         12,
		ClientID:       3,
		IdempotencyKey: "k-1",
		PaymentMethod:  "tarjeta",
		Total:          decimal.RequireFromString("118.00"),
		Items:          2,
		PlacedAt:       time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	assert.Equal(t, messaging.OrdersPlacedSubject, ev.Subject())

	data, err := ev.Payload()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "118", got["total"])
	assert.Equal(t, "k-1", got["idempotency_key"])
	assert.NotContains(t, got, "invoice_id")
}
