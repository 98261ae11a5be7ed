package history

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/abgdnv/storefront/internal/backend"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) ClientSales(ctx context.Context, clientID int64) ([]backend.Sale, error) {
	args := m.Called(ctx, clientID)
	var sales []backend.Sale
	if args.Get(0) != nil {
		sales = args.Get(0).([]backend.Sale)
	}
	return sales, args.Error(1)
}

func (m *MockBackend) SaleInvoice(ctx context.Context, saleID int64) (backend.Invoice, error) {
	args := m.Called(ctx, saleID)
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

func newService(t *testing.T, signedIn bool) (*Service, *MockBackend) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewManager(storage.NewMemory(), logger)
	if signedIn {
		require.NoError(t, sessions.Save(context.Background(), session.User{ID: 7, FirstName: "Ana", Role: session.RoleClient}))
	}
	b := new(MockBackend)
	t.Cleanup(func() { b.AssertExpectations(t) })
	return NewService(b, sessions, logger), b
}

func TestService_List(t *testing.T) {
	svc, b := newService(t, true)
	b.On("ClientSales", mock.Anything, int64(7)).Return([]backend.Sale{
		{ID: 1, Date: backend.ParseTimestamp("2025-01-05T09:00:00"), Total: decimal.RequireFromString("10")},
		{ID: 3, Date: backend.ParseTimestamp("2025-03-01T09:00:00"), Total: decimal.RequireFromString("30")},
		{ID: 2, Date: backend.ParseTimestamp("2025-02-01T09:00:00"), Total: decimal.RequireFromString("20")},
	}, nil).Once()
	b.On("SaleInvoice", mock.Anything, int64(1)).Return(backend.Invoice{ID: 11, Type: "boleta", Total: decimal.RequireFromString("10")}, nil).Once()
	b.On("SaleInvoice", mock.Anything, int64(2)).Return(backend.Invoice{}, &backend.APIError{Status: 404, Kind: backend.ErrNotFound}).Once()
	b.On("SaleInvoice", mock.Anything, int64(3)).Return(backend.Invoice{ID: 33, Type: "boleta", Total: decimal.RequireFromString("30")}, nil).Once()

	purchases, err := svc.List(context.Background())

	require.NoError(t, err)
	require.Len(t, purchases, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{purchases[0].ID, purchases[1].ID, purchases[2].ID})
	require.NotNil(t, purchases[0].Invoice)
	assert.Equal(t, int64(33), purchases[0].Invoice.ID)
	assert.Equal(t, "30.00", purchases[0].Invoice.Total)
	assert.Nil(t, purchases[1].Invoice)
	require.NotNil(t, purchases[2].Invoice)
	assert.Equal(t, int64(11), purchases[2].Invoice.ID)
}

func TestService_ListRequiresSession(t *testing.T) {
	svc, _ := newService(t, false)

	_, err := svc.List(context.Background())

	require.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestService_ListBackendFailure(t *testing.T) {
	svc, b := newService(t, true)
	b.On("ClientSales", mock.Anything, int64(7)).Return(nil, backend.ErrUnreachable).Once()

	_, err := svc.List(context.Background())

	require.ErrorIs(t, err, backend.ErrUnreachable)
}

func TestService_DownloadInvoice(t *testing.T) {
	ownSale := func(m *MockBackend) {
		m.On("ClientSales", mock.Anything, int64(7)).Return([]backend.Sale{{ID: 4}, {ID: 5}}, nil).Once()
	}
	testCases := []struct {
		name        string
		setupMock   func(m *MockBackend)
		expectedErr error
	}{
		{
			name: "success",
			setupMock: func(m *MockBackend) {
				ownSale(m)
				m.On("SaleInvoice", mock.Anything, int64(5)).Return(backend.Invoice{ID: 50, SaleID: 5}, nil).Once()
				m.On("InvoicePDF", mock.Anything, int64(50)).Return([]byte("%PDF"), nil).Once()
			},
		},
		{
			name: "empty document",
			setupMock: func(m *MockBackend) {
				ownSale(m)
				m.On("SaleInvoice", mock.Anything, int64(5)).Return(backend.Invoice{ID: 50}, nil).Once()
				m.On("InvoicePDF", mock.Anything, int64(50)).Return([]byte{}, nil).Once()
			},
			expectedErr: ErrEmptyInvoice,
		},
		{
			name: "no invoice for sale",
			setupMock: func(m *MockBackend) {
				ownSale(m)
				m.On("SaleInvoice", mock.Anything, int64(5)).Return(backend.Invoice{}, &backend.APIError{Status: 404, Kind: backend.ErrNotFound}).Once()
			},
			expectedErr: backend.ErrNotFound,
		},
		{
			name: "invoice without id",
			setupMock: func(m *MockBackend) {
				ownSale(m)
				m.On("SaleInvoice", mock.Anything, int64(5)).Return(backend.Invoice{}, nil).Once()
			},
			expectedErr: backend.ErrNotFound,
		},
		{
			name: "sale of another customer",
			setupMock: func(m *MockBackend) {
				m.On("ClientSales", mock.Anything, int64(7)).Return([]backend.Sale{{ID: 4}}, nil).Once()
			},
			expectedErr: backend.ErrNotFound,
		},
		{
			name: "invoice issued for a different sale",
			setupMock: func(m *MockBackend) {
				ownSale(m)
				m.On("SaleInvoice", mock.Anything, int64(5)).Return(backend.Invoice{ID: 60, SaleID: 6}, nil).Once()
			},
			expectedErr: backend.ErrNotFound,
		},
		{
			name: "sales lookup fails",
			setupMock: func(m *MockBackend) {
				m.On("ClientSales", mock.Anything, int64(7)).Return(nil, backend.ErrUnreachable).Once()
			},
			expectedErr: backend.ErrUnreachable,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, b := newService(t, true)
			tc.setupMock(b)

			inv, pdf, err := svc.DownloadInvoice(context.Background(), 5)

			b.AssertExpectations(t)
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(50), inv.ID)
			assert.Equal(t, []byte("%PDF"), pdf)
		})
	}
}
