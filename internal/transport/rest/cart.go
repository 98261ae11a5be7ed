package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/pkg/web"
)

var errInsufficientStock = errors.New("not enough stock")

// heartbeatInterval keeps idle event streams from being closed by proxies.
const heartbeatInterval = 25 * time.Second

type addItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) GetCart(w http.ResponseWriter, _ *http.Request) {
	web.RespondJSON(w, h.logger, http.StatusOK, h.svc.Cart.Snapshot())
}

// AddItem adds a catalog product to the cart. The resulting line may not
// exceed the product's stock.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !web.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 {
		h.respondServiceError(w, r, cart.ErrInvalidQuantity)
		return
	}
	product, err := h.svc.Catalog.Product(r.Context(), req.ProductID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	// Stock bounds what one request may add on top of the cart as it was read;
	// it is not atomic with Add. The backend checks stock again when the sale is placed.
	inCart := 0
	if line, ok := h.svc.Cart.Snapshot().Find(product.ID); ok {
		inCart = line.Quantity
	}
	if inCart+req.Quantity > int(product.StockQuantity) {
		h.respondServiceError(w, r, fmt.Errorf("%w: only %d of %s available", errInsufficientStock, product.StockQuantity, product.Name))
		return
	}
	if err := h.svc.Cart.Add(r.Context(), product, req.Quantity); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, h.svc.Cart.Snapshot())
}

// SetItemQuantity sets a line's quantity; zero removes the line.
func (h *Handler) SetItemQuantity(w http.ResponseWriter, r *http.Request) {
	productID, ok := web.ParseID(w, r, h.logger, "productID")
	if !ok {
		return
	}
	var req quantityRequest
	if !web.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	if req.Quantity > 0 {
		// the stock bound is checked against the catalog when it is reachable
		if product, err := h.svc.Catalog.Product(r.Context(), productID); err == nil && req.Quantity > int(product.StockQuantity) {
			h.respondServiceError(w, r, fmt.Errorf("%w: only %d of %s available", errInsufficientStock, product.StockQuantity, product.Name))
			return
		}
	}
	if err := h.svc.Cart.SetQuantity(r.Context(), productID, req.Quantity); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, h.svc.Cart.Snapshot())
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := web.ParseID(w, r, h.logger, "productID")
	if !ok {
		return
	}
	if err := h.svc.Cart.Remove(r.Context(), productID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, h.svc.Cart.Snapshot())
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cart.Clear(r.Context()); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, h.svc.Cart.Snapshot())
}

// CartEvents streams cart snapshots as server-sent events, starting with the
// current one. A slow client only sees the latest snapshot.
func (h *Handler) CartEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)
	// the stream outlives the server's write timeout
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.WarnContext(ctx, "failed to clear write deadline", "error", err)
	}

	latest := make(chan cart.Snapshot, 1)
	cancel := h.svc.Cart.Subscribe(func(s cart.Snapshot) {
		select {
		case <-latest:
		default:
		}
		latest <- s
	})
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.WarnContext(ctx, "event stream not supported", "error", err)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case s := <-latest:
			data, err := json.Marshal(s)
			if err != nil {
				h.logger.ErrorContext(ctx, "failed to encode cart snapshot", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: cart\ndata: %s\n\n", data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
