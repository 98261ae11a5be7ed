package backend

import (
	"context"
	"net/http"

	"github.com/abgdnv/storefront/internal/catalog"
)

// ProductInput is the create/update payload for a product.
type ProductInput struct {
	Name       string `json:"nombre"`
	Price      Amount `json:"precio"`
	Stock      int32  `json:"stock"`
	CategoryID *int64 `json:"id_categoria,omitempty"`
	ImageURL   string `json:"imagen,omitempty"`
}

// FetchProducts returns the raw product list; normalization is the catalog's job.
func (c *Client) FetchProducts(ctx context.Context) ([]catalog.RawProduct, error) {
	var products []catalog.RawProduct
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/productos"}, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, id int64) (catalog.RawProduct, error) {
	var p catalog.RawProduct
	err := c.doJSON(ctx, request{method: http.MethodGet, path: idPath("/productos/%d", id)}, &p)
	return p, err
}

func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (catalog.RawProduct, error) {
	var p catalog.RawProduct
	err := c.doJSON(ctx, request{method: http.MethodPost, path: "/productos", body: in}, &p)
	return p, err
}

func (c *Client) UpdateProduct(ctx context.Context, id int64, in ProductInput) (catalog.RawProduct, error) {
	var p catalog.RawProduct
	err := c.doJSON(ctx, request{method: http.MethodPut, path: idPath("/productos/%d", id), body: in}, &p)
	return p, err
}

func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	return c.doJSON(ctx, request{method: http.MethodDelete, path: idPath("/productos/%d", id)}, nil)
}

// FetchCategories is public on the backend and is sent without credentials.
func (c *Client) FetchCategories(ctx context.Context) ([]catalog.RawCategory, error) {
	var categories []catalog.RawCategory
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/categorias", noAuth: true}, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}
