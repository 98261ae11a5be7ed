package rest

import (
	"net/http"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/shopspring/decimal"
)

// relatedLimit is how many related products a product page shows.
const relatedLimit = 4

type productList struct {
	Products []catalog.Product `json:"products"`
	Count    int               `json:"count"`
	MaxPrice decimal.Decimal   `json:"max_price"`
}

type productPage struct {
	Product catalog.Product   `json:"product"`
	Related []catalog.Product `json:"related"`
}

type highlights struct {
	BestSeller  *catalog.Product `json:"best_seller"`
	WorstSeller *catalog.Product `json:"worst_seller"`
}

// ListProducts lists the catalog, optionally filtered by search, max_price and category_id.
// max_price in the response is over the whole catalog so a price slider keeps its range.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	maxPrice, hasMax, ok := web.ParseOptionalDecimal(r, w, h.logger, "max_price")
	if !ok {
		return
	}
	categoryID, ok := web.ParseOptionalGte(r, w, h.logger, "category_id", 1)
	if !ok {
		return
	}
	filter := catalog.Filter{
		Search:     r.URL.Query().Get("search"),
		MaxPrice:   decimal.NullDecimal{Decimal: maxPrice, Valid: hasMax},
		CategoryID: categoryID,
	}

	products, err := h.svc.Catalog.Fetch(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	matching := filter.Apply(products)
	h.logger.DebugContext(r.Context(), "Successfully retrieved product list", "count", len(matching))
	web.RespondJSON(w, h.logger, http.StatusOK, productList{
		Products: matching,
		Count:    len(matching),
		MaxPrice: catalog.MaxPrice(products),
	})
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger, "id")
	if !ok {
		return
	}
	products, err := h.svc.Catalog.Fetch(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	for _, p := range products {
		if p.ID == id {
			web.RespondJSON(w, h.logger, http.StatusOK, productPage{
				Product: p,
				Related: catalog.Related(products, p, relatedLimit),
			})
			return
		}
	}
	h.respondServiceError(w, r, catalog.ErrProductNotFound)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.Categories.List(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, categories)
}

// Highlights returns the best and worst selling products; both are null for an empty catalog.
func (h *Handler) Highlights(w http.ResponseWriter, r *http.Request) {
	var out highlights
	best, ok, err := h.svc.Catalog.BestSeller(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if ok {
		out.BestSeller = &best
	}
	worst, ok, err := h.svc.Catalog.WorstSeller(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if ok {
		out.WorstSeller = &worst
	}
	web.RespondJSON(w, h.logger, http.StatusOK, out)
}
