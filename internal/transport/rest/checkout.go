package rest

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/pkg/web"
)

type quote struct {
	checkout.Totals
	Items          int      `json:"items"`
	PaymentMethods []string `json:"payment_methods"`
}

// Quote shows what the current cart would be charged.
func (h *Handler) Quote(w http.ResponseWriter, _ *http.Request) {
	web.RespondJSON(w, h.logger, http.StatusOK, quote{
		Totals:         h.svc.Checkout.Quote(),
		Items:          h.svc.Cart.Snapshot().Count(),
		PaymentMethods: h.svc.Checkout.PaymentMethods(),
	})
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if !web.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	receipt, err := h.svc.Checkout.Place(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusCreated, receipt)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.svc.History.List(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, purchases)
}

// DownloadInvoice streams the invoice PDF of one sale.
func (h *Handler) DownloadInvoice(w http.ResponseWriter, r *http.Request) {
	saleID, ok := web.ParseID(w, r, h.logger, "saleID")
	if !ok {
		return
	}
	inv, pdf, err := h.svc.History.DownloadInvoice(r.Context(), saleID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, checkout.InvoiceFileName(inv.ID)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		h.logger.WarnContext(r.Context(), "failed to send invoice", "sale_id", saleID, "error", err)
	}
}
