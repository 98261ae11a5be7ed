package rest

import (
	"net/http"
	"sort"

	"github.com/abgdnv/storefront/internal/admin"
	"github.com/abgdnv/storefront/internal/backend"
	"github.com/abgdnv/storefront/pkg/web"
)

func (h *Handler) AdminProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Admin.Products(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, products)
}

func (h *Handler) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in admin.ProductInput
	if !web.DecodeJSON(w, r, h.logger, &in) {
		return
	}
	h.logger.DebugContext(r.Context(), "Received request to create product", "name", in.Name)
	p, err := h.svc.Admin.CreateProduct(r.Context(), in)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusCreated, p)
}

func (h *Handler) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger, "id")
	if !ok {
		return
	}
	var in admin.ProductInput
	if !web.DecodeJSON(w, r, h.logger, &in) {
		return
	}
	p, err := h.svc.Admin.UpdateProduct(r.Context(), id, in)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, p)
}

func (h *Handler) AdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger, "id")
	if !ok {
		return
	}
	if err := h.svc.Admin.DeleteProduct(r.Context(), id); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AdminAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Admin.Analytics(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, a)
}

func (h *Handler) AdminCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.Admin.Categories(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, categories)
}

// AdminDashboard passes a dashboard report through. Without a report
// parameter it lists the available reports.
func (h *Handler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("report")
	if kind == "" {
		kinds := backend.ReportKinds()
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
		web.RespondJSON(w, h.logger, http.StatusOK, map[string]any{"reports": kinds})
		return
	}
	year, ok := web.ParseOptionalGte(r, w, h.logger, "year", 0)
	if !ok {
		return
	}
	month, ok := web.ParseOptionalGte(r, w, h.logger, "month", 0)
	if !ok {
		return
	}
	categoryID, ok := web.ParseOptionalGte(r, w, h.logger, "category_id", 0)
	if !ok {
		return
	}
	raw, err := h.svc.Admin.Dashboard(r.Context(), backend.Report{
		Kind:       backend.ReportKind(kind),
		Year:       int(year),
		Month:      int(month),
		CategoryID: categoryID,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
