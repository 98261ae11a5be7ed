package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/abgdnv/storefront/internal/backend"
	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/abgdnv/storefront/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) RegisterSale(ctx context.Context, sale backend.SaleRequest, key string) (backend.SaleConfirmation, error) {
	args := m.Called(ctx, sale, key)
	return args.Get(0).(backend.SaleConfirmation), args.Error(1)
}

func (m *MockBackend) LatestInvoice(ctx context.Context, clientID int64) (backend.Invoice, error) {
	args := m.Called(ctx, clientID)
	return args.Get(0).(backend.Invoice), args.Error(1)
}

func (m *MockBackend) InvoicePDF(ctx context.Context, invoiceID int64) ([]byte, error) {
	args := m.Called(ctx, invoiceID)
	var pdf []byte
	if args.Get(0) != nil {
		pdf = args.Get(0).([]byte)
	}
	return pdf, args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []messaging.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e messaging.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type fixture struct {
	svc       *Service
	backend   *MockBackend
	cart      *cart.Store
	sessions  *session.Manager
	storage   storage.Store
	publisher *recordingPublisher
	dir       string
}

var (
	apple = catalog.Product{ID: 1, Name: "Manzana", UnitPrice: decimal.RequireFromString("2.50"), StockQuantity: 10}
	milk  = catalog.Product{ID: 2, Name: "Leche", UnitPrice: decimal.RequireFromString("10.00"), StockQuantity: 5}
	user  = session.User{ID: 7, FirstName: "Ana", LastName: "Soto", Email: "ana@example.com", Role: session.RoleClient, Token: "opaque"}
)

var pdfBytes = []byte("%PDF-1.4 invoice")

func newFixture(t *testing.T, signedIn bool) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := storage.NewMemory()
	f := &fixture{
		backend:   new(MockBackend),
		cart:      cart.NewStore(ctx, st, logger),
		sessions:  session.NewManager(st, logger),
		storage:   st,
		publisher: &recordingPublisher{},
		dir:       t.TempDir(),
	}
	t.Cleanup(func() { f.backend.AssertExpectations(t) })
	sink, err := NewFileSink(f.dir)
	require.NoError(t, err)
	f.svc = NewService(f.backend, f.cart, f.sessions, st, sink, f.publisher, Config{
		PaymentMethods: DefaultPaymentMethods,
		Retry:          config.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	}, logger)
	f.svc.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	if signedIn {
		require.NoError(t, f.sessions.Save(ctx, user))
	}
	require.NoError(t, f.cart.Add(ctx, apple, 3))
	require.NoError(t, f.cart.Add(ctx, milk, 1))
	return f
}

func (f *fixture) pendingRecord(t *testing.T) (pending, bool) {
	t.Helper()
	data, err := f.storage.Get(context.Background(), PendingKey)
	if errors.Is(err, storage.ErrNotFound) {
		return pending{}, false
	}
	require.NoError(t, err)
	var rec pending
	require.NoError(t, json.Unmarshal(data, &rec))
	return rec, true
}

func TestComputeTotals(t *testing.T) {
	st := storage.NewMemory()
	c := cart.NewStore(context.Background(), st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, c.Add(context.Background(), apple, 3))
	require.NoError(t, c.Add(context.Background(), milk, 1))

	totals := ComputeTotals(c.Snapshot(), DefaultTaxRate)

	assert.Equal(t, "17.5", totals.Subtotal.String())
	assert.Equal(t, "3.15", totals.Tax.String())
	assert.Equal(t, "20.65", totals.Total.String())
}

func TestService_QuoteTaxRate(t *testing.T) {
	zero := decimal.Zero
	reduced := decimal.RequireFromString("0.10")
	testCases := []struct {
		name    string
		rate    *decimal.Decimal
		wantTax string
		wantTot string
	}{
		{name: "unset uses IGV", rate: nil, wantTax: "3.15", wantTot: "20.65"},
		{name: "zero is tax free", rate: &zero, wantTax: "0", wantTot: "17.5"},
		{name: "configured rate", rate: &reduced, wantTax: "1.75", wantTot: "19.25"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			st := storage.NewMemory()
			c := cart.NewStore(ctx, st, logger)
			require.NoError(t, c.Add(ctx, apple, 3))
			require.NoError(t, c.Add(ctx, milk, 1))
			sink, err := NewFileSink(t.TempDir())
			require.NoError(t, err)
			svc := NewService(new(MockBackend), c, session.NewManager(st, logger), st, sink, nil, Config{TaxRate: tc.rate}, logger)

			totals := svc.Quote()

			assert.Equal(t, "17.5", totals.Subtotal.String())
			assert.Equal(t, tc.wantTax, totals.Tax.String())
			assert.Equal(t, tc.wantTot, totals.Total.String())
		})
	}
}

func TestService_Place(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	var sent backend.SaleRequest
	var sentKey string
	f.backend.On("RegisterSale", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			sent = args.Get(1).(backend.SaleRequest)
			sentKey = args.String(2)
		}).
		Return(backend.SaleConfirmation{SaleID: 15, InvoiceID: 30, InvoiceNumber: "B001-30"}, nil).Once()
	f.backend.On("InvoicePDF", mock.Anything, int64(30)).Return(pdfBytes, nil).Once()

	receipt, err := f.svc.Place(ctx, Request{PaymentMethod: " Yape "})

	require.NoError(t, err)
	assert.Equal(t, int64(15), receipt.SaleID)
	assert.Equal(t, int64(30), receipt.InvoiceID)
	assert.Equal(t, "yape", receipt.PaymentMethod)
	assert.Equal(t, 4, receipt.Items)
	assert.Equal(t, "20.65", receipt.Total.String())
	assert.Empty(t, receipt.Notices)
	assert.Equal(t, sentKey, receipt.IdempotencyKey)

	saved, err := os.ReadFile(receipt.InvoicePath)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, saved)

	assert.True(t, f.cart.Snapshot().IsEmpty())
	_, stillPending := f.pendingRecord(t)
	assert.False(t, stillPending)

	assert.Equal(t, int64(7), sent.Sale.ClientID)
	assert.Equal(t, "Compra realizada por Ana Soto", sent.Sale.Note)
	assert.Equal(t, backend.SaleCompleted, sent.Sale.Status)
	assert.Equal(t, "20.65", sent.Sale.Total.StringFixed(2))
	require.Len(t, sent.Lines, 2)
	assert.Equal(t, "7.50", sent.Lines[0].Subtotal.StringFixed(2))
	var fiscal backend.FiscalData
	require.NoError(t, json.Unmarshal([]byte(sent.Invoice.FiscalData), &fiscal))
	assert.Equal(t, backend.FiscalData{Customer: "Ana Soto", Email: "ana@example.com", Address: "No especificada"}, fiscal)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0].(events.OrderPlacedEvent)
	assert.Equal(t, receipt.IdempotencyKey, event.MessageID())
	assert.Equal(t, int64(15), event.SaleID)
}

func TestService_PlacePreconditions(t *testing.T) {
	testCases := []struct {
		name        string
		signedIn    bool
		emptyCart   bool
		method      string
		expectedErr error
	}{
		{name: "empty cart", signedIn: true, emptyCart: true, method: "yape", expectedErr: ErrEmptyCart},
		{name: "empty cart wins over missing method", signedIn: false, emptyCart: true, method: "", expectedErr: ErrEmptyCart},
		{name: "no payment method", signedIn: true, method: "  ", expectedErr: ErrPaymentMethod},
		{name: "unknown payment method", signedIn: true, method: "bitcoin", expectedErr: ErrPaymentMethod},
		{name: "not signed in", signedIn: false, method: "efectivo", expectedErr: session.ErrNotAuthenticated},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.signedIn)
			ctx := context.Background()
			if tc.emptyCart {
				require.NoError(t, f.cart.Clear(ctx))
			}
			before := f.cart.Snapshot()

			_, err := f.svc.Place(ctx, Request{PaymentMethod: tc.method})

			require.ErrorIs(t, err, tc.expectedErr)
			assert.Equal(t, before.Items(), f.cart.Snapshot().Items())
			_, hasPending := f.pendingRecord(t)
			assert.False(t, hasPending)
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestService_PlaceRetriesTransientFailures(t *testing.T) {
	f := newFixture(t, true)
	var keys []string
	record := func(args mock.Arguments) { keys = append(keys, args.String(2)) }
	f.backend.On("RegisterSale", mock.Anything, mock.Anything, mock.Anything).Run(record).
		Return(backend.SaleConfirmation{}, backend.ErrUnreachable).Once()
	f.backend.On("RegisterSale", mock.Anything, mock.Anything, mock.Anything).Run(record).
		Return(backend.SaleConfirmation{}, &backend.APIError{Status: 503, Message: "busy", Kind: backend.ErrServer}).Once()
	f.backend.On("RegisterSale", mock.Anything, mock.Anything, mock.Anything).Run(record).
		Return(backend.SaleConfirmation{SaleID: 15, InvoiceID: 30}, nil).Once()
	f.backend.On("InvoicePDF", mock.Anything, int64(30)).Return(pdfBytes, nil).Once()

	receipt, err := f.svc.Place(context.Background(), Request{PaymentMethod: "tarjeta"})

	require.NoError(t, err)
	assert.Equal(t, int64(15), receipt.SaleID)
	require.Len(t, keys, 3)
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, keys[1], keys[2])
}

func TestService_PlaceDoesNotRetryRejections(t *testing.T) {
	f := newFixture(t, true)
	rejection := &backend.APIError{Status: 400, Message: "Stock insuficiente", Kind: backend.ErrValidation}
	f.backend.On("RegisterSale", mock.Anything, mock.Anything, mock.Anything).
		Return(backend.SaleConfirmation{}, rejection).Once()

	_, err := f.svc.Place(context.Background(), Request{PaymentMethod: "tarjeta"})

	require.ErrorIs(t, err, backend.ErrValidation)
	assert.Equal(t, "Stock insuficiente", err.Error())
	assert.Equal(t, 2, f.cart.Snapshot().Len())
	_, hasPending := f.pendingRecord(t)
	assert.False(t, hasPending)
}

func TestService_PlaceReusesKeyAfterLostResponse(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	var keys []string
	record := func(args mock.Arguments) { keys = append(keys, args.String(2)) }
	f.backend.On("RegisterSale", mock.Anything, mock.Anything, mock.Anything).Run(record).
		Return(backend.SaleConfirmation{}, backend.ErrUnreachable).Times(3)

	_, err := f.svc.Place(ctx, Request{PaymentMethod: "tarjeta"})
	require.ErrorIs(t, err, backend.ErrUnreachable)
	rec, hasPending := f.pendingRecord(t)
	require.True(t, hasPending)
	assert.Equal(t, 2, f.cart.Snapshot().Len())

	f.backend.On("RegisterSale", mock.Anything, mock.Anything, mock.Anything).Run(record).
		Return(backend.SaleConfirmation{SaleID: 15, InvoiceID: 30}, nil).Once()
	f.backend.On("InvoicePDF", mock.Anything, int64(30)).Return(pdfBytes, nil).Once()

	receipt, err := f.svc.Place(ctx, Request{PaymentMethod: "efectivo"})

	require.NoError(t, err)
	assert.Equal(t, rec.Key, receipt.IdempotencyKey)
	for _, k := range keys {
		assert.Equal(t, rec.Key, k)
	}
}

func TestService_PlaceNewKeyForDifferentCart(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.backend.On("RegisterSale", mock.Anything, mock.Anything, mock.Anything).
		Return(backend.SaleConfirmation{}, backend.ErrUnreachable).Times(3)
	_, err := f.svc.Place(ctx, Request{PaymentMethod: "tarjeta"})
	require.Error(t, err)
	first, _ := f.pendingRecord(t)

	require.NoError(t, f.cart.SetQuantity(ctx, apple.ID, 5))
	f.backend.On("RegisterSale", mock.Anything, mock.Anything, mock.Anything).
		Return(backend.SaleConfirmation{}, backend.ErrUnreachable).Times(3)
	_, err = f.svc.Place(ctx, Request{PaymentMethod: "tarjeta"})
	require.Error(t, err)
	second, _ := f.pendingRecord(t)

	assert.NotEqual(t, first.Key, second.Key)
}

func TestService_PlaceInvoiceSoftFailures(t *testing.T) {
	testCases := []struct {
		name      string
		setupMock func(m *MockBackend)
		invoiceID int64
	}{
		{
			name: "invoice not found",
			setupMock: func(m *MockBackend) {
				m.On("RegisterSale", mock.Anything, mock.Anything, mock.Anything).Return(backend.SaleConfirmation{SaleID: 15}, nil).Once()
				m.On("LatestInvoice", mock.Anything, int64(7)).Return(backend.Invoice{}, &backend.APIError{Status: 404, Kind: backend.ErrNotFound}).Once()
			},
		},
		{
			name: "latest invoice fallback with empty pdf",
			setupMock: func(m *MockBackend) {
				m.On("RegisterSale", mock.Anything, mock.Anything, mock.Anything).Return(backend.SaleConfirmation{SaleID: 15}, nil).Once()
				m.On("LatestInvoice", mock.Anything, int64(7)).Return(backend.Invoice{ID: 31, Number: "B001-31"}, nil).Once()
				m.On("InvoicePDF", mock.Anything, int64(31)).Return([]byte{}, nil).Once()
			},
			invoiceID: 31,
		},
		{
			name: "pdf download fails",
			setupMock: func(m *MockBackend) {
				m.On("RegisterSale", mock.Anything, mock.Anything, mock.Anything).Return(backend.SaleConfirmation{SaleID: 15, InvoiceID: 30}, nil).Once()
				m.On("InvoicePDF", mock.Anything, int64(30)).Return(nil, &backend.APIError{Status: 500, Kind: backend.ErrServer}).Once()
			},
			invoiceID: 30,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, true)
			tc.setupMock(f.backend)

			receipt, err := f.svc.Place(context.Background(), Request{PaymentMethod: "agora"})

			require.NoError(t, err)
			assert.Equal(t, int64(15), receipt.SaleID)
			assert.Equal(t, tc.invoiceID, receipt.InvoiceID)
			assert.Empty(t, receipt.InvoicePath)
			assert.Len(t, receipt.Notices, 1)
			assert.True(t, f.cart.Snapshot().IsEmpty())
			assert.Len(t, f.publisher.events, 1)
		})
	}
}

func TestService_PublishFailureDoesNotFailCheckout(t *testing.T) {
	f := newFixture(t, true)
	f.publisher.err = errors.New("broker down")
	f.backend.On("RegisterSale", mock.Anything, mock.Anything, mock.Anything).Return(backend.SaleConfirmation{SaleID: 15, InvoiceID: 30}, nil).Once()
	f.backend.On("InvoicePDF", mock.Anything, int64(30)).Return(pdfBytes, nil).Once()

	_, err := f.svc.Place(context.Background(), Request{PaymentMethod: "yape"})

	require.NoError(t, err)
}

func TestFingerprint_IgnoresLineOrder(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := cart.NewStore(ctx, storage.NewMemory(), logger)
	b := cart.NewStore(ctx, storage.NewMemory(), logger)
	require.NoError(t, a.Add(ctx, apple, 1))
	require.NoError(t, a.Add(ctx, milk, 2))
	require.NoError(t, b.Add(ctx, milk, 2))
	require.NoError(t, b.Add(ctx, apple, 1))

	assert.Equal(t, fingerprint(7, a.Snapshot()), fingerprint(7, b.Snapshot()))
	assert.NotEqual(t, fingerprint(7, a.Snapshot()), fingerprint(8, a.Snapshot()))
}
