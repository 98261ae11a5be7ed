// Package app contains the application setup for the storefront.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/account"
	"github.com/abgdnv/storefront/internal/admin"
	"github.com/abgdnv/storefront/internal/backend"
	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/history"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/internal/transport/rest"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/server"
	"github.com/abgdnv/storefront/pkg/storage"
	"github.com/go-chi/chi/v5"
)

const defaultInvoiceDir = "invoices"

type Dependencies struct {
	Services rest.Services
	Backend  *backend.Client
	Cart     *cart.Store
	Logger   *slog.Logger
	// Metrics, when set, is mounted at MetricsPath next to the API.
	Metrics     http.Handler
	MetricsPath string
}

// SetupDependencies builds the storefront services on top of an opened store and publisher.
// The cart is hydrated from st before it is returned.
func SetupDependencies(
	ctx context.Context,
	cfg *config.Config,
	st storage.Store,
	publisher messaging.Publisher,
	logger *slog.Logger,
	opts ...backend.Option,
) (*Dependencies, error) {
	sessions := session.NewManager(st, logger.With("component", "session"))

	client, err := backend.NewClient(cfg.Backend, sessions, logger.With("component", "backend"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	products := catalog.NewCache(client, logger.With("component", "catalog"), catalog.WithTTL(cfg.Catalog.TTL))
	categories := catalog.NewDirectory(client, logger.With("component", "categories"))
	cartStore := cart.NewStore(ctx, st, logger.With("component", "cart"))

	rate, err := cfg.Checkout.Rate()
	if err != nil {
		return nil, err
	}
	invoiceDir := cfg.Checkout.InvoiceDir
	if invoiceDir == "" {
		invoiceDir = defaultInvoiceDir
	}
	sink, err := checkout.NewFileSink(invoiceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare invoice directory: %w", err)
	}
	checkoutSvc := checkout.NewService(client, cartStore, sessions, st, sink, publisher, checkout.Config{
		TaxRate:        rate,
		PaymentMethods: cfg.Checkout.PaymentMethods,
		Retry:          cfg.Backend.Resilience.Retry,
	}, logger.With("component", "checkout"))

	return &Dependencies{
		Services: rest.Services{
			Accounts:   account.NewService(client, sessions, logger.With("component", "account")),
			Catalog:    products,
			Categories: categories,
			Cart:       cartStore,
			Checkout:   checkoutSvc,
			History:    history.NewService(client, sessions, logger.With("component", "history")),
			Admin:      admin.NewService(client, products, categories, sessions, logger.With("component", "admin")),
			Backend:    client,
		},
		Backend: client,
		Cart:    cartStore,
		Logger:  logger,
	}, nil
}

// SetupHttpHandler initializes the router and routes of the storefront API.
// Used by E2E tests to run the handler in an httptest.Server.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	handler := rest.NewHandler(deps.Services, deps.Logger)
	handler.RegisterRoutes(mux)
	if deps.Metrics != nil {
		mux.Method(http.MethodGet, deps.MetricsPath, deps.Metrics)
	}
}

// SetupHttpServer creates and configures the HTTP server of the storefront API.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	return server.NewHTTPServer(cfg.HTTPServer, SetupHttpHandler(deps))
}
