// Package admin is the back office: product maintenance, catalog analytics and
// the sales dashboard. Every operation requires an administrator session.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/abgdnv/storefront/internal/backend"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/internal/validation"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	// ErrForbidden means the signed-in user is not an administrator.
	ErrForbidden    = errors.New("administrator access required")
	ErrInvalidInput = errors.New("invalid input")
)

type Backend interface {
	CreateProduct(ctx context.Context, in backend.ProductInput) (catalog.RawProduct, error)
	UpdateProduct(ctx context.Context, id int64, in backend.ProductInput) (catalog.RawProduct, error)
	DeleteProduct(ctx context.Context, id int64) error
	Dashboard(ctx context.Context, report backend.Report) (json.RawMessage, error)
}

// Catalog is the product cache the back office reads and invalidates.
type Catalog interface {
	Fetch(ctx context.Context) ([]catalog.Product, error)
	Invalidate()
	BestSeller(ctx context.Context) (catalog.Product, bool, error)
	WorstSeller(ctx context.Context) (catalog.Product, bool, error)
	DeadStock(ctx context.Context) ([]catalog.Product, error)
}

type Categories interface {
	List(ctx context.Context) ([]catalog.Category, error)
}

type Sessions interface {
	Current(ctx context.Context) (session.User, error)
}

// ProductInput is a product as entered in the back office.
type ProductInput struct {
	Name       string          `json:"name" validate:"required,max=150"`
	Price      decimal.Decimal `json:"price" validate:"gt=0"`
	Stock      int32           `json:"stock" validate:"gte=0"`
	CategoryID *int64          `json:"category_id" validate:"omitempty,gt=0"`
	ImageURL   string          `json:"image_url" validate:"omitempty,url"`
}

// Analytics summarises sales across the catalog. BestSeller and WorstSeller
// are nil for an empty catalog.
type Analytics struct {
	BestSeller  *catalog.Product  `json:"best_seller"`
	WorstSeller *catalog.Product  `json:"worst_seller"`
	DeadStock   []catalog.Product `json:"dead_stock"`
}

type Service struct {
	backend    Backend
	catalog    Catalog
	categories Categories
	sessions   Sessions
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewService(b Backend, cat Catalog, categories Categories, sessions Sessions, logger *slog.Logger) *Service {
	return &Service{
		backend:    b,
		catalog:    cat,
		categories: categories,
		sessions:   sessions,
		validate:   validation.New(),
		logger:     logger,
	}
}

func (s *Service) requireAdmin(ctx context.Context) (session.User, error) {
	user, err := s.sessions.Current(ctx)
	if err != nil {
		return session.User{}, err
	}
	if !user.IsAdmin() {
		return session.User{}, ErrForbidden
	}
	return user, nil
}

// Products returns the catalog as the backend has it now, bypassing the cache.
func (s *Service) Products(ctx context.Context) ([]catalog.Product, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	s.catalog.Invalidate()
	return s.catalog.Fetch(ctx)
}

func (s *Service) Analytics(ctx context.Context) (Analytics, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return Analytics{}, err
	}
	var a Analytics
	best, ok, err := s.catalog.BestSeller(ctx)
	if err != nil {
		return Analytics{}, err
	}
	if ok {
		a.BestSeller = &best
	}
	worst, ok, err := s.catalog.WorstSeller(ctx)
	if err != nil {
		return Analytics{}, err
	}
	if ok {
		a.WorstSeller = &worst
	}
	if a.DeadStock, err = s.catalog.DeadStock(ctx); err != nil {
		return Analytics{}, err
	}
	return a, nil
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (catalog.Product, error) {
	user, err := s.requireAdmin(ctx)
	if err != nil {
		return catalog.Product{}, err
	}
	wire, err := s.toWire(in)
	if err != nil {
		return catalog.Product{}, err
	}
	raw, err := s.backend.CreateProduct(ctx, wire)
	if err != nil {
		return catalog.Product{}, err
	}
	s.catalog.Invalidate()
	p := s.result(ctx, raw, 0, in)
	s.logger.InfoContext(ctx, "product created", "product_id", p.ID, "admin_id", user.ID)
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput) (catalog.Product, error) {
	user, err := s.requireAdmin(ctx)
	if err != nil {
		return catalog.Product{}, err
	}
	if id <= 0 {
		return catalog.Product{}, fmt.Errorf("%w: product id must be positive", ErrInvalidInput)
	}
	wire, err := s.toWire(in)
	if err != nil {
		return catalog.Product{}, err
	}
	raw, err := s.backend.UpdateProduct(ctx, id, wire)
	if err != nil {
		return catalog.Product{}, err
	}
	s.catalog.Invalidate()
	p := s.result(ctx, raw, id, in)
	s.logger.InfoContext(ctx, "product updated", "product_id", id, "admin_id", user.ID)
	return p, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	user, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("%w: product id must be positive", ErrInvalidInput)
	}
	if err := s.backend.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.catalog.Invalidate()
	s.logger.InfoContext(ctx, "product deleted", "product_id", id, "admin_id", user.ID)
	return nil
}

func (s *Service) Categories(ctx context.Context) ([]catalog.Category, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.categories.List(ctx)
}

// Dashboard passes a report through from the backend.
func (s *Service) Dashboard(ctx context.Context, report backend.Report) (json.RawMessage, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if _, err := report.Path(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return s.backend.Dashboard(ctx, report)
}

func (s *Service) toWire(in ProductInput) (backend.ProductInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if err := s.validate.Struct(in); err != nil {
		return backend.ProductInput{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return backend.ProductInput{
		Name:       in.Name,
		Price:      backend.NewAmount(in.Price),
		Stock:      in.Stock,
		CategoryID: in.CategoryID,
		ImageURL:   in.ImageURL,
	}, nil
}

// result normalizes the backend's echo of a saved product. Some backend
// versions answer with an empty or partial body; then the input stands in.
func (s *Service) result(ctx context.Context, raw catalog.RawProduct, id int64, in ProductInput) catalog.Product {
	if p, err := catalog.Normalize(raw); err == nil {
		return p
	}
	s.logger.DebugContext(ctx, "backend did not echo the saved product", "product_id", id)
	p := catalog.Product{
		ID:            id,
		Name:          strings.TrimSpace(in.Name),
		UnitPrice:     in.Price,
		StockQuantity: in.Stock,
		ImageURL:      strings.TrimSpace(in.ImageURL),
	}
	if in.CategoryID != nil {
		p.CategoryID = *in.CategoryID
	}
	return p
}
