// Package notifier consumes order-placed events and sends the order confirmation.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/abgdnv/storefront/internal/notifier"

var errInvalidEvent = errors.New("invalid order event")

// Msg is the part of a JetStream message the handler needs.
type Msg interface {
	Data() []byte
	Subject() string
	Ack() error
	Nak() error
	Term() error
}

// Sender delivers the confirmation of one order.
type Sender interface {
	Send(ctx context.Context, event events.OrderPlacedEvent) error
}

// LogSender records the confirmation in the log.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, event events.OrderPlacedEvent) error {
	s.Logger.InfoContext(ctx, "order confirmation sent",
		slog.Int64("sale_id", event.SaleID),
		slog.Int64("invoice_id", event.InvoiceID),
		slog.Int64("client_id", event.ClientID),
		slog.String("total", event.Total.StringFixed(2)),
		slog.String("payment_method", event.PaymentMethod),
		slog.Int("items", event.Items),
		slog.String("placed_at", event.PlacedAt.Format(time.RFC3339)))
	return nil
}

type Handler struct {
	sender Sender
	tracer trace.Tracer
	logger *slog.Logger
}

func NewHandler(sender Sender, logger *slog.Logger) *Handler {
	return &Handler{
		sender: sender,
		tracer: otel.Tracer(instrumentationName),
		logger: logger,
	}
}

// Start creates or updates the durable consumer and runs the configured number of workers until ctx is done.
func Start(ctx context.Context, js jetstream.JetStream, subscriberCfg config.SubscriberConfig, h *Handler) error {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: subscriberCfg.Subject,
		Durable:       subscriberCfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, subscriberCfg.Stream, cfg)
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", subscriberCfg.Consumer, err)
	}
	g, gCtx := errgroup.WithContext(ctx)
	for range subscriberCfg.Workers {
		g.Go(func() error {
			return h.runWorker(gCtx, consumer, subscriberCfg)
		})
	}
	return g.Wait()
}

func (h *Handler) runWorker(ctx context.Context, consumer jetstream.Consumer, cfg config.SubscriberConfig) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		batch, err := consumer.Fetch(cfg.Batch, jetstream.FetchMaxWait(cfg.Timeout))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			h.logger.ErrorContext(ctx, "failed to fetch messages", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Interval):
			}
			continue
		}
		for msg := range batch.Messages() {
			h.Handle(ctx, msg)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
			h.logger.WarnContext(ctx, "batch ended with error", "error", err)
		}
	}
}

// Handle processes one message. Events that cannot be decoded are terminated
// and a failed send is nak'd for redelivery.
func (h *Handler) Handle(ctx context.Context, msg Msg) {
	if msg == nil {
		h.logger.ErrorContext(ctx, "received nil message")
		return
	}
	event, err := decode(msg.Data())
	if err != nil {
		h.logger.ErrorContext(ctx, "discarding order event", "error", err, "subject", msg.Subject())
		if err := msg.Term(); err != nil {
			h.logger.ErrorContext(ctx, "failed to terminate message", "error", err)
		}
		return
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, event.Carrier)
	ctx, span := h.tracer.Start(ctx, "notifier.OrderPlaced",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.Int64("sale_id", event.SaleID),
			attribute.String("messaging.destination.name", msg.Subject()),
		))
	defer span.End()

	if err := h.sender.Send(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		h.logger.WarnContext(ctx, "failed to send order confirmation", "sale_id", event.SaleID, "error", err)
		if err := msg.Nak(); err != nil {
			h.logger.ErrorContext(ctx, "failed to nack message", "error", err)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		h.logger.ErrorContext(ctx, "failed to ack message", "error", err)
	}
}

func decode(data []byte) (events.OrderPlacedEvent, error) {
	var event events.OrderPlacedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("%w: %w", errInvalidEvent, err)
	}
	if event.SaleID <= 0 || event.ClientID <= 0 {
		return event, fmt.Errorf("%w: sale %d for client %d", errInvalidEvent, event.SaleID, event.ClientID)
	}
	return event, nil
}
