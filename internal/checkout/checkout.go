// Package checkout turns the cart into a backend sale with an invoice.
//
// Every attempt carries an idempotency key that is recorded before the sale
// is submitted. A later attempt by the same client over the same cart lines
// reuses the key, so a lost response followed by a retry cannot place a
// second order.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/abgdnv/storefront/internal/backend"
	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/abgdnv/storefront/pkg/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
)

var (
	ErrEmptyCart = errors.New("cart is empty")
	// ErrPaymentMethod means no payment method was chosen or it is not accepted.
	ErrPaymentMethod = errors.New("invalid payment method")
)

// DefaultPaymentMethods are the methods offered at the counter.
var DefaultPaymentMethods = []string{"tarjeta", "agora", "efectivo", "yape"}

// defaultAddress is sent when the customer has no address on file.
const defaultAddress = "No especificada"

// Backend is the part of the backend client checkout needs.
type Backend interface {
	RegisterSale(ctx context.Context, sale backend.SaleRequest, idempotencyKey string) (backend.SaleConfirmation, error)
	LatestInvoice(ctx context.Context, clientID int64) (backend.Invoice, error)
	InvoicePDF(ctx context.Context, invoiceID int64) ([]byte, error)
}

type Cart interface {
	Snapshot() cart.Snapshot
	Clear(ctx context.Context) error
}

type Sessions interface {
	Current(ctx context.Context) (session.User, error)
}

type Config struct {
	// TaxRate nil means DefaultTaxRate. Zero is a valid, tax-free rate.
	TaxRate        *decimal.Decimal
	PaymentMethods []string
	Retry          config.RetryConfig
}

// Request is what the customer submits at checkout.
type Request struct {
	PaymentMethod string `json:"payment_method"`
}

// Receipt describes a placed order. Notices list what went wrong after the
// order was accepted, such as an invoice that could not be downloaded.
type Receipt struct {
	SaleID         int64           `json:"sale_id"`
	InvoiceID      int64           `json:"invoice_id,omitempty"`
	InvoiceNumber  string          `json:"invoice_number,omitempty"`
	InvoicePath    string          `json:"invoice_path,omitempty"`
	PaymentMethod  string          `json:"payment_method"`
	Items          int             `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	IdempotencyKey string          `json:"idempotency_key"`
	PlacedAt       time.Time       `json:"placed_at"`
	Notices        []string        `json:"notices,omitempty"`
}

type Service struct {
	backend   Backend
	cart      Cart
	sessions  Sessions
	pending   pendingLog
	sink      InvoiceSink
	publisher messaging.Publisher
	cfg       Config
	taxRate   decimal.Decimal
	logger    *slog.Logger
	now       func() time.Time
	placed    metric.Int64Counter
}

func NewService(
	b Backend,
	c Cart,
	sessions Sessions,
	st storage.Store,
	sink InvoiceSink,
	publisher messaging.Publisher,
	cfg Config,
	logger *slog.Logger,
) *Service {
	taxRate := DefaultTaxRate
	if cfg.TaxRate != nil {
		taxRate = *cfg.TaxRate
	}
	if len(cfg.PaymentMethods) == 0 {
		cfg.PaymentMethods = DefaultPaymentMethods
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	meter := otel.Meter("storefront/checkout")
	placed, err := meter.Int64Counter("orders_placed", metric.WithDescription("Total number of placed orders"))
	if err != nil {
		panic(fmt.Sprintf("failed to create orders_placed counter: %v", err))
	}
	return &Service{
		backend:   b,
		cart:      c,
		sessions:  sessions,
		pending:   pendingLog{store: st, now: time.Now},
		sink:      sink,
		publisher: publisher,
		cfg:       cfg,
		taxRate:   taxRate,
		logger:    logger,
		now:       time.Now,
		placed:    placed,
	}
}

// PaymentMethods lists the accepted payment methods.
func (s *Service) PaymentMethods() []string {
	return slices.Clone(s.cfg.PaymentMethods)
}

// Quote returns the totals the current cart would be charged.
func (s *Service) Quote() Totals {
	return ComputeTotals(s.cart.Snapshot(), s.taxRate)
}

// Place runs the checkout. Preconditions are checked in order: a non-empty
// cart, an accepted payment method, a signed-in user. Once the backend has
// accepted the sale, later failures only add notices to the receipt.
func (s *Service) Place(ctx context.Context, req Request) (Receipt, error) {
	snapshot := s.cart.Snapshot()
	if snapshot.IsEmpty() {
		return Receipt{}, ErrEmptyCart
	}
	method, err := s.paymentMethod(req.PaymentMethod)
	if err != nil {
		return Receipt{}, err
	}
	user, err := s.sessions.Current(ctx)
	if err != nil {
		return Receipt{}, err
	}

	totals := ComputeTotals(snapshot, s.taxRate)
	key, reused, err := s.pending.claim(ctx, fingerprint(user.ID, snapshot))
	if err != nil {
		return Receipt{}, err
	}
	mLogger := s.logger.With("idempotency_key", key, "client_id", user.ID)
	if reused {
		mLogger.InfoContext(ctx, "resuming earlier checkout attempt")
	}

	placedAt := s.now()
	sale, err := s.buildSale(user, snapshot, totals, method, placedAt)
	if err != nil {
		return Receipt{}, err
	}
	conf, err := s.submit(ctx, sale, key, mLogger)
	if err != nil {
		if !backend.IsTransient(err) && ctx.Err() == nil {
			// the backend answered and refused; nothing was created under this key
			if relErr := s.pending.release(ctx); relErr != nil {
				mLogger.WarnContext(ctx, "failed to release pending checkout", "error", relErr)
			}
		}
		mLogger.WarnContext(ctx, "checkout failed", "error", err)
		return Receipt{}, err
	}
	mLogger.InfoContext(ctx, "sale registered", "sale_id", conf.SaleID, "total", totals.Total.String())
	s.placed.Add(ctx, 1)

	receipt := Receipt{
		SaleID:         conf.SaleID,
		InvoiceID:      conf.InvoiceID,
		InvoiceNumber:  conf.InvoiceNumber,
		PaymentMethod:  method,
		Items:          snapshot.Count(),
		Subtotal:       totals.Subtotal,
		Tax:            totals.Tax,
		Total:          totals.Total,
		IdempotencyKey: key,
		PlacedAt:       placedAt,
	}
	s.fetchInvoice(ctx, user.ID, &receipt, mLogger)

	if err := s.cart.Clear(ctx); err != nil {
		// keep the pending record: a retry over the same lines must reuse the key
		mLogger.ErrorContext(ctx, "order placed but cart could not be cleared", "error", err)
		receipt.Notices = append(receipt.Notices, "Your order was placed but the cart could not be emptied. Do not submit it again.")
	} else if err := s.pending.release(ctx); err != nil {
		mLogger.WarnContext(ctx, "failed to release pending checkout", "error", err)
	}

	s.publish(ctx, user.ID, receipt, mLogger)
	return receipt, nil
}

func (s *Service) paymentMethod(method string) (string, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return "", fmt.Errorf("%w: select a payment method", ErrPaymentMethod)
	}
	if !slices.Contains(s.cfg.PaymentMethods, method) {
		return "", fmt.Errorf("%w: %q is not accepted", ErrPaymentMethod, method)
	}
	return method, nil
}

func (s *Service) buildSale(user session.User, snapshot cart.Snapshot, totals Totals, method string, at time.Time) (backend.SaleRequest, error) {
	address := strings.TrimSpace(user.Address)
	if address == "" {
		address = defaultAddress
	}
	fiscal, err := json.Marshal(backend.FiscalData{
		Customer: user.FullName(),
		Email:    user.Email,
		Address:  address,
	})
	if err != nil {
		return backend.SaleRequest{}, fmt.Errorf("failed to encode fiscal data: %w", err)
	}

	items := snapshot.Items()
	lines := make([]backend.SaleLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, backend.SaleLine{
			ProductID: item.Product.ID,
			Quantity:  int32(item.Quantity),
			UnitPrice: backend.NewAmount(item.Product.UnitPrice),
			Subtotal:  backend.NewAmount(item.Subtotal().Round(2)),
		})
	}
	stamp := at.UTC().Format(time.RFC3339)
	return backend.SaleRequest{
		Sale: backend.SaleHeader{
			ClientID:      user.ID,
			Total:         backend.NewAmount(totals.Total),
			Status:        backend.SaleCompleted,
			PaymentMethod: method,
			Note:          "Compra realizada por " + user.FullName(),
			Date:          stamp,
		},
		Lines: lines,
		Invoice: backend.InvoiceDraft{
			Type:       backend.InvoiceReceipt,
			Total:      backend.NewAmount(totals.Total),
			Status:     backend.InvoiceIssued,
			FiscalData: string(fiscal),
			IssuedAt:   stamp,
		},
	}, nil
}

// submit retries only transient failures; a rejection is final.
func (s *Service) submit(ctx context.Context, sale backend.SaleRequest, key string, logger *slog.Logger) (backend.SaleConfirmation, error) {
	eb := backoff.NewExponentialBackOff()
	if s.cfg.Retry.InitialBackoff > 0 {
		eb.InitialInterval = s.cfg.Retry.InitialBackoff
	}
	if s.cfg.Retry.MaxBackoff > 0 {
		eb.MaxInterval = s.cfg.Retry.MaxBackoff
	}
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.cfg.Retry.MaxAttempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotifyWithData(func() (backend.SaleConfirmation, error) {
		attempt++
		conf, err := s.backend.RegisterSale(ctx, sale, key)
		if err != nil && !backend.IsTransient(err) {
			return conf, backoff.Permanent(err)
		}
		return conf, err
	}, policy, func(err error, wait time.Duration) {
		logger.WarnContext(ctx, "sale submission failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	})
}

// fetchInvoice downloads the invoice of a placed order. Every failure here is
// a notice on the receipt; the order stands.
func (s *Service) fetchInvoice(ctx context.Context, clientID int64, receipt *Receipt, logger *slog.Logger) {
	if receipt.InvoiceID == 0 {
		inv, err := s.backend.LatestInvoice(ctx, clientID)
		if err != nil || inv.ID == 0 {
			logger.WarnContext(ctx, "invoice not found for placed order", "error", err)
			receipt.Notices = append(receipt.Notices, "Your order was placed. The invoice is not available yet; check your purchase history later.")
			return
		}
		receipt.InvoiceID = inv.ID
		if receipt.InvoiceNumber == "" {
			receipt.InvoiceNumber = inv.Number
		}
	}

	pdf, err := s.backend.InvoicePDF(ctx, receipt.InvoiceID)
	if err != nil {
		logger.WarnContext(ctx, "failed to download invoice", "invoice_id", receipt.InvoiceID, "error", err)
		receipt.Notices = append(receipt.Notices, "Your order was placed but the invoice could not be downloaded. You can get it from your purchase history.")
		return
	}
	if len(pdf) == 0 {
		logger.WarnContext(ctx, "invoice is empty", "invoice_id", receipt.InvoiceID)
		receipt.Notices = append(receipt.Notices, "Your order was placed but the invoice came back empty. You can get it from your purchase history.")
		return
	}
	if s.sink == nil {
		return
	}
	path, err := s.sink.Save(ctx, InvoiceFileName(receipt.InvoiceID), pdf)
	if err != nil {
		logger.WarnContext(ctx, "failed to save invoice", "invoice_id", receipt.InvoiceID, "error", err)
		receipt.Notices = append(receipt.Notices, "Your order was placed but the invoice could not be saved.")
		return
	}
	receipt.InvoicePath = path
}

func (s *Service) publish(ctx context.Context, clientID int64, receipt Receipt, logger *slog.Logger) {
	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	event := events.OrderPlacedEvent{
		Carrier:        carrier,
		SaleID:         receipt.SaleID,
		InvoiceID:      receipt.InvoiceID,
		ClientID:       clientID,
		IdempotencyKey: receipt.IdempotencyKey,
		PaymentMethod:  receipt.PaymentMethod,
		Total:          receipt.Total,
		Items:          receipt.Items,
		PlacedAt:       receipt.PlacedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.ErrorContext(ctx, "failed to publish OrderPlacedEvent", "error", err)
	}
}
