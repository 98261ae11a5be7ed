package events

import (
	"encoding/json"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/propagation"
)

// OrderPlacedEvent announces a confirmed checkout. Carrier holds the trace
// context of the checkout that produced it.
type OrderPlacedEvent struct {
	Carrier        propagation.MapCarrier `json:"carrier,omitempty"`
	SaleID         int64                  `json:"sale_id"`
	InvoiceID      int64                  `json:"invoice_id,omitempty"`
	ClientID       int64                  `json:"client_id"`
	IdempotencyKey string                 `json:"idempotency_key"`
	PaymentMethod  string                 `json:"payment_method"`
	Total          decimal.Decimal        `json:"total"`
	Items          int                    `json:"items"`
	PlacedAt       time.Time              `json:"placed_at"`
}

func (o OrderPlacedEvent) Subject() string {
	return messaging.OrdersPlacedSubject
}

func (o OrderPlacedEvent) Payload() ([]byte, error) {
	return json.Marshal(o)
}

// MessageID lets brokers de-duplicate republished events for the same checkout.
func (o OrderPlacedEvent) MessageID() string {
	return o.IdempotencyKey
}
