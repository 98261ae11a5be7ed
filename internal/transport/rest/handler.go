// Package rest exposes the storefront over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/account"
	"github.com/abgdnv/storefront/internal/admin"
	"github.com/abgdnv/storefront/internal/backend"
	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/history"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/internal/validation"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
)

// Messages for failures the user can do nothing about but wait or retry.
const (
	msgUnreachable = "server unreachable"
	msgServerFault = "The server could not complete the request. Check your purchase history before trying again, or retry later."
	msgInternal    = "internal error"
)

type Accounts interface {
	Login(ctx context.Context, creds account.Credentials) (session.User, error)
	LoginAdmin(ctx context.Context, creds account.Credentials) (session.User, error)
	Register(ctx context.Context, reg account.Registration) error
	Logout(ctx context.Context) error
	Current(ctx context.Context) (session.User, error)
}

type Catalog interface {
	Fetch(ctx context.Context) ([]catalog.Product, error)
	Product(ctx context.Context, id int64) (catalog.Product, error)
	BestSeller(ctx context.Context) (catalog.Product, bool, error)
	WorstSeller(ctx context.Context) (catalog.Product, bool, error)
}

type Categories interface {
	List(ctx context.Context) ([]catalog.Category, error)
}

type Cart interface {
	Snapshot() cart.Snapshot
	Subscribe(fn func(cart.Snapshot)) (cancel func())
	Add(ctx context.Context, product catalog.Product, quantity int) error
	SetQuantity(ctx context.Context, productID int64, quantity int) error
	Remove(ctx context.Context, productID int64) error
	Clear(ctx context.Context) error
}

type Checkout interface {
	Place(ctx context.Context, req checkout.Request) (checkout.Receipt, error)
	Quote() checkout.Totals
	PaymentMethods() []string
}

type History interface {
	List(ctx context.Context) ([]history.Purchase, error)
	DownloadInvoice(ctx context.Context, saleID int64) (backend.Invoice, []byte, error)
}

type Admin interface {
	Products(ctx context.Context) ([]catalog.Product, error)
	Analytics(ctx context.Context) (admin.Analytics, error)
	CreateProduct(ctx context.Context, in admin.ProductInput) (catalog.Product, error)
	UpdateProduct(ctx context.Context, id int64, in admin.ProductInput) (catalog.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	Categories(ctx context.Context) ([]catalog.Category, error)
	Dashboard(ctx context.Context, report backend.Report) (json.RawMessage, error)
}

// BackendHealth reports on the backend connection.
type BackendHealth interface {
	State() string
}

// Services are the handler's collaborators.
type Services struct {
	Accounts   Accounts
	Catalog    Catalog
	Categories Categories
	Cart       Cart
	Checkout   Checkout
	History    History
	Admin      Admin
	Backend    BackendHealth
}

type Handler struct {
	svc    Services
	logger *slog.Logger
}

func NewHandler(svc Services, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes of the storefront.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/admin/login", h.LoginAdmin)
			r.Post("/register", h.Register)
			r.Post("/logout", h.Logout)
			r.Get("/me", h.Me)
		})
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/products", h.ListProducts)
			r.Get("/products/{id}", h.GetProduct)
			r.Get("/categories", h.ListCategories)
			r.Get("/highlights", h.Highlights)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Get("/events", h.CartEvents)
			r.Post("/items", h.AddItem)
			r.Put("/items/{productID}", h.SetItemQuantity)
			r.Delete("/items/{productID}", h.RemoveItem)
		})
		r.Get("/checkout", h.Quote)
		r.Post("/checkout", h.PlaceOrder)
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Get("/{saleID}/invoice", h.DownloadInvoice)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Get("/products", h.AdminProducts)
			r.Post("/products", h.AdminCreateProduct)
			r.Put("/products/{id}", h.AdminUpdateProduct)
			r.Delete("/products/{id}", h.AdminDeleteProduct)
			r.Get("/analytics", h.AdminAnalytics)
			r.Get("/categories", h.AdminCategories)
			r.Get("/dashboard", h.AdminDashboard)
		})
	})

	r.Get("/healthz", h.HealthCheck)
}

// HealthCheck reports liveness and the backend circuit state.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	body := map[string]string{"status": "ok"}
	if h.svc.Backend != nil {
		body["backend"] = h.svc.Backend.State()
	}
	web.RespondJSON(w, h.logger, http.StatusOK, body)
}

// respondServiceError maps an error from the service layer onto a status code
// and a message fit for the user.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if fields := validation.Fields(err); fields != nil {
		h.logger.WarnContext(ctx, "Validation errors occurred", "errors", fields)
		web.RespondJSON(w, h.logger, http.StatusBadRequest, map[string]any{"validation_errors": fields})
		return
	}

	var apiErr *backend.APIError
	switch {
	case errors.Is(err, context.Canceled):
		h.logger.InfoContext(ctx, "request cancelled by client")
		return
	case errors.Is(err, backend.ErrUnreachable):
		h.logger.WarnContext(ctx, "backend unreachable", "error", err)
		web.RespondError(w, h.logger, http.StatusServiceUnavailable, msgUnreachable)
	case errors.Is(err, backend.ErrServer):
		h.logger.ErrorContext(ctx, "backend fault", "error", err)
		web.RespondError(w, h.logger, http.StatusBadGateway, msgServerFault)
	case errors.Is(err, session.ErrNotAuthenticated):
		web.RespondError(w, h.logger, http.StatusUnauthorized, "sign in required")
	case errors.Is(err, backend.ErrUnauthorized):
		web.RespondError(w, h.logger, http.StatusUnauthorized, backendMessage(err, "not authorized"))
	case errors.Is(err, admin.ErrForbidden), errors.Is(err, account.ErrNotAdmin):
		web.RespondError(w, h.logger, http.StatusForbidden, err.Error())
	case errors.Is(err, backend.ErrNotFound), errors.Is(err, catalog.ErrProductNotFound):
		web.RespondError(w, h.logger, http.StatusNotFound, backendMessage(err, "not found"))
	case errors.Is(err, history.ErrEmptyInvoice):
		web.RespondError(w, h.logger, http.StatusNotFound, "invoice not available yet")
	case errors.As(err, &apiErr):
		h.logger.WarnContext(ctx, "backend rejected request", "status", apiErr.Status, "message", apiErr.Message)
		web.RespondError(w, h.logger, http.StatusBadRequest, apiErr.Message)
	case errors.Is(err, account.ErrInvalidInput),
		errors.Is(err, admin.ErrInvalidInput),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrPaymentMethod),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, errInsufficientStock):
		web.RespondError(w, h.logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrPersist):
		h.logger.ErrorContext(ctx, "cart storage failed", "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, "the cart could not be saved, please try again")
	default:
		h.logger.ErrorContext(ctx, "request failed", "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, msgInternal)
	}
}

// backendMessage prefers the backend's own wording when there is one.
func backendMessage(err error, fallback string) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
