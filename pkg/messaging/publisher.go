package messaging

import (
	"context"
)

const (
	// OrdersStream is the JetStream stream that captures order events.
	OrdersStream = "STOREFRONT_ORDERS"
	// OrdersPlacedSubject carries one event per confirmed checkout.
	OrdersPlacedSubject = "storefront.orders.placed"
)

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
