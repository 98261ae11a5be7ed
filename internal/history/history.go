// Package history lists a customer's past purchases with their invoices.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/abgdnv/storefront/internal/backend"
	"github.com/abgdnv/storefront/internal/session"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyInvoice means the backend returned an invoice document with no content.
var ErrEmptyInvoice = errors.New("invoice document is empty")

// maxConcurrentLookups bounds parallel invoice lookups for one listing.
const maxConcurrentLookups = 4

type Backend interface {
	ClientSales(ctx context.Context, clientID int64) ([]backend.Sale, error)
	SaleInvoice(ctx context.Context, saleID int64) (backend.Invoice, error)
	InvoicePDF(ctx context.Context, invoiceID int64) ([]byte, error)
}

type Sessions interface {
	Current(ctx context.Context) (session.User, error)
}

// InvoiceInfo is the invoice summary shown next to a purchase.
type InvoiceInfo struct {
	ID       int64             `json:"id"`
	Number   string            `json:"number,omitempty"`
	Type     string            `json:"type"`
	Total    string            `json:"total"`
	Status   string            `json:"status"`
	IssuedAt backend.Timestamp `json:"issued_at"`
}

// Purchase is one past sale. Invoice is nil when none could be found.
type Purchase struct {
	backend.Sale
	Invoice *InvoiceInfo `json:"invoice"`
}

type Service struct {
	backend  Backend
	sessions Sessions
	logger   *slog.Logger
}

func NewService(b Backend, sessions Sessions, logger *slog.Logger) *Service {
	return &Service{backend: b, sessions: sessions, logger: logger}
}

// List returns the signed-in customer's purchases, newest first. Invoices are
// looked up concurrently; a failed lookup leaves that purchase without one.
func (s *Service) List(ctx context.Context) ([]Purchase, error) {
	user, err := s.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	sales, err := s.backend.ClientSales(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sales, func(i, j int) bool {
		return sales[i].Date.After(sales[j].Date.Time)
	})

	purchases := make([]Purchase, len(sales))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i, sale := range sales {
		purchases[i] = Purchase{Sale: sale}
		g.Go(func() error {
			inv, err := s.backend.SaleInvoice(gCtx, sale.ID)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				s.logger.WarnContext(gCtx, "no invoice for sale", "sale_id", sale.ID, "error", err)
				return nil
			}
			purchases[i].Invoice = &InvoiceInfo{
				ID:       inv.ID,
				Number:   inv.Number,
				Type:     inv.Type,
				Total:    inv.Total.StringFixed(2),
				Status:   inv.Status,
				IssuedAt: inv.IssuedAt,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return purchases, nil
}

// DownloadInvoice returns the PDF of the invoice issued for one of the
// customer's sales. A sale of another customer is reported as not found.
func (s *Service) DownloadInvoice(ctx context.Context, saleID int64) (backend.Invoice, []byte, error) {
	user, err := s.sessions.Current(ctx)
	if err != nil {
		return backend.Invoice{}, nil, err
	}
	sales, err := s.backend.ClientSales(ctx, user.ID)
	if err != nil {
		return backend.Invoice{}, nil, err
	}
	if !slices.ContainsFunc(sales, func(sale backend.Sale) bool { return sale.ID == saleID }) {
		return backend.Invoice{}, nil, fmt.Errorf("sale %d of client %d: %w", saleID, user.ID, backend.ErrNotFound)
	}
	inv, err := s.backend.SaleInvoice(ctx, saleID)
	if err != nil {
		return backend.Invoice{}, nil, err
	}
	if inv.SaleID != 0 && inv.SaleID != saleID {
		return backend.Invoice{}, nil, fmt.Errorf("invoice %d belongs to sale %d: %w", inv.ID, inv.SaleID, backend.ErrNotFound)
	}
	if inv.ID == 0 {
		return backend.Invoice{}, nil, fmt.Errorf("sale %d has no invoice: %w", saleID, backend.ErrNotFound)
	}
	pdf, err := s.backend.InvoicePDF(ctx, inv.ID)
	if err != nil {
		return backend.Invoice{}, nil, err
	}
	if len(pdf) == 0 {
		return backend.Invoice{}, nil, ErrEmptyInvoice
	}
	return inv, pdf, nil
}
