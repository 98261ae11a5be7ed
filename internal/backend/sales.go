package backend

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// Sale states and invoice types the storefront sends.
const (
	SaleCompleted  = "completada"
	InvoiceReceipt = "boleta"
	InvoiceIssued  = "emitida"
)

// SaleRequest is the body of POST /ventas/registrar-venta.
type SaleRequest struct {
	Sale    SaleHeader   `json:"venta"`
	Lines   []SaleLine   `json:"detalles"`
	Invoice InvoiceDraft `json:"factura"`
}

type SaleHeader struct {
	ClientID      int64  `json:"id_cliente"`
	Total         Amount `json:"total"`
	Status        string `json:"estado"`
	PaymentMethod string `json:"metodo_pago"`
	Note          string `json:"observacion"`
	Date          string `json:"fecha_venta"`
}

type SaleLine struct {
	ProductID int64  `json:"id_producto"`
	Quantity  int32  `json:"cantidad"`
	UnitPrice Amount `json:"precio_unitario"`
	Subtotal  Amount `json:"subtotal"`
}

// InvoiceDraft is created together with the sale; SaleID stays 0 and the
// backend links it. FiscalData is a JSON document encoded as a string.
type InvoiceDraft struct {
	SaleID     int64  `json:"id_venta"`
	Type       string `json:"tipo_comprobante"`
	Total      Amount `json:"total"`
	Status     string `json:"estado"`
	FiscalData string `json:"datos_fiscales"`
	IssuedAt   string `json:"fecha_emision"`
}

// FiscalData is what goes inside InvoiceDraft.FiscalData.
type FiscalData struct {
	Customer string `json:"cliente"`
	Email    string `json:"correo"`
	Address  string `json:"direccion"`
}

// SaleConfirmation is the backend's answer to a sale submission.
type SaleConfirmation struct {
	SaleID        int64
	InvoiceID     int64
	InvoiceNumber string
	Message       string
}

type saleConfirmationWire struct {
	IDVenta        *int64  `json:"id_venta"`
	IDVentaCamel   *int64  `json:"idVenta"`
	ID             *int64  `json:"id"`
	IDFactura      *int64  `json:"id_factura"`
	IDFacturaCamel *int64  `json:"idFactura"`
	NumeroFactura  *string `json:"numero_factura"`
	NumeroCamel    *string `json:"numeroFactura"`
	Mensaje        *string `json:"mensaje"`
	Message        *string `json:"message"`
}

// Invoice is the invoice record attached to a sale.
type Invoice struct {
	ID       int64
	SaleID   int64
	Number   string
	Type     string
	Total    decimal.Decimal
	Status   string
	IssuedAt Timestamp
}

type invoiceWire struct {
	ID              *int64           `json:"id"`
	IDFactura       *int64           `json:"id_factura"`
	IDFacturaCamel  *int64           `json:"idFactura"`
	IDVenta         *int64           `json:"id_venta"`
	IDVentaCamel    *int64           `json:"idVenta"`
	NumeroFactura   *string          `json:"numero_factura"`
	NumeroCamel     *string          `json:"numeroFactura"`
	TipoComprobante *string          `json:"tipo_comprobante"`
	Total           *decimal.Decimal `json:"total"`
	Estado          *string          `json:"estado"`
	FechaEmision    *Timestamp       `json:"fecha_emision"`
}

func (w invoiceWire) invoice() Invoice {
	return Invoice{
		ID:       deref(first(w.IDFactura, w.IDFacturaCamel, w.ID)),
		SaleID:   deref(first(w.IDVenta, w.IDVentaCamel)),
		Number:   deref(first(w.NumeroFactura, w.NumeroCamel)),
		Type:     deref(w.TipoComprobante),
		Total:    deref(w.Total),
		Status:   deref(w.Estado),
		IssuedAt: deref(w.FechaEmision),
	}
}

// Sale is one entry of a client's purchase history.
type Sale struct {
	ID            int64           `json:"id"`
	Date          Timestamp       `json:"fecha_venta"`
	Total         decimal.Decimal `json:"total"`
	Status        string          `json:"estado"`
	PaymentMethod string          `json:"metodo_pago"`
	Note          string          `json:"observacion"`
}

type saleWire struct {
	ID           *int64           `json:"id"`
	IDVenta      *int64           `json:"id_venta"`
	IDVentaCamel *int64           `json:"idVenta"`
	FechaVenta   *Timestamp       `json:"fecha_venta"`
	Total        *decimal.Decimal `json:"total"`
	Estado       *string          `json:"estado"`
	MetodoPago   *string          `json:"metodo_pago"`
	Observacion  *string          `json:"observacion"`
}

// RegisterSale submits a sale. The idempotency key lets the backend recognise
// a resubmission of an attempt whose response was lost.
func (c *Client) RegisterSale(ctx context.Context, sale SaleRequest, idempotencyKey string) (SaleConfirmation, error) {
	header := http.Header{}
	if idempotencyKey != "" {
		header.Set(IdempotencyKeyHeader, idempotencyKey)
	}
	var w saleConfirmationWire
	err := c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   "/ventas/registrar-venta",
		body:   sale,
		header: header,
	}, &w)
	if err != nil {
		return SaleConfirmation{}, err
	}
	return SaleConfirmation{
		SaleID:        deref(first(w.IDVenta, w.IDVentaCamel, w.ID)),
		InvoiceID:     deref(first(w.IDFactura, w.IDFacturaCamel)),
		InvoiceNumber: deref(first(w.NumeroFactura, w.NumeroCamel)),
		Message:       deref(first(w.Mensaje, w.Message)),
	}, nil
}

// LatestInvoice returns the most recent invoice issued to a client.
func (c *Client) LatestInvoice(ctx context.Context, clientID int64) (Invoice, error) {
	var w invoiceWire
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: idPath("/facturas/cliente/%d/ultima", clientID)}, &w); err != nil {
		return Invoice{}, err
	}
	return w.invoice(), nil
}

// InvoicePDF downloads the rendered invoice. An empty body is returned as is.
func (c *Client) InvoicePDF(ctx context.Context, invoiceID int64) ([]byte, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   idPath("/facturas/%d/pdf", invoiceID),
		accept: "application/pdf",
	})
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

func (c *Client) ClientSales(ctx context.Context, clientID int64) ([]Sale, error) {
	var wires []saleWire
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: idPath("/ventas/cliente/%d", clientID)}, &wires); err != nil {
		return nil, err
	}
	sales := make([]Sale, 0, len(wires))
	for _, w := range wires {
		sales = append(sales, Sale{
			ID:            deref(first(w.ID, w.IDVenta, w.IDVentaCamel)),
			Date:          deref(w.FechaVenta),
			Total:         deref(w.Total),
			Status:        deref(w.Estado),
			PaymentMethod: deref(w.MetodoPago),
			Note:          deref(w.Observacion),
		})
	}
	return sales, nil
}

// SaleInvoice returns the invoice issued for a sale.
func (c *Client) SaleInvoice(ctx context.Context, saleID int64) (Invoice, error) {
	var w invoiceWire
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: idPath("/ventas/factura/%d", saleID)}, &w); err != nil {
		return Invoice{}, err
	}
	inv := w.invoice()
	if inv.SaleID == 0 {
		inv.SaleID = saleID
	}
	return inv, nil
}
