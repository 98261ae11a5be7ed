package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrInvalidReport means the report name is unknown or its parameters are out of range.
var ErrInvalidReport = errors.New("invalid dashboard report")

// ReportKind names a back-office dashboard report.
type ReportKind string

const (
	SalesByYear           ReportKind = "ventas/resumen-anio"
	SalesByMonth          ReportKind = "ventas/resumen-mes"
	SalesList             ReportKind = "ventas/lista"
	SalesTotalByYear      ReportKind = "ventas/total-anio"
	SalesTotalByMonth     ReportKind = "ventas/total-mes"
	PurchasesByYear       ReportKind = "compras/resumen-anio"
	PurchasesByMonth      ReportKind = "compras/resumen-mes"
	PurchasesList         ReportKind = "compras/lista"
	PurchasesTotalByYear  ReportKind = "compras/total-anio"
	PurchasesTotalByMonth ReportKind = "compras/total-mes"
	GeneralSummary        ReportKind = "resumen-general"
	TopCategory           ReportKind = "categoria-mas-vendida"
	TopProductInCategory  ReportKind = "producto-mas-vendido-categoria"
	TopPaymentMethod      ReportKind = "forma-pago-mas-usada"
	IdealInventory        ReportKind = "inventario-serial-ideal"
)

type reportParams int

const (
	noParams reportParams = iota
	yearParam
	yearMonthParams
	categoryParam
)

var reportKinds = map[ReportKind]reportParams{
	SalesByYear:           noParams,
	SalesByMonth:          yearParam,
	SalesList:             yearMonthParams,
	SalesTotalByYear:      noParams,
	SalesTotalByMonth:     yearParam,
	PurchasesByYear:       noParams,
	PurchasesByMonth:      yearParam,
	PurchasesList:         yearMonthParams,
	PurchasesTotalByYear:  noParams,
	PurchasesTotalByMonth: yearParam,
	GeneralSummary:        noParams,
	TopCategory:           noParams,
	TopProductInCategory:  categoryParam,
	TopPaymentMethod:      noParams,
	IdealInventory:        noParams,
}

// Report selects a dashboard report and its parameters. Parameters the kind
// does not take are ignored.
type Report struct {
	Kind       ReportKind
	Year       int
	Month      int
	CategoryID int64
}

// Path builds the endpoint path below /dashboard.
func (r Report) Path() (string, error) {
	params, ok := reportKinds[r.Kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown report %q", ErrInvalidReport, r.Kind)
	}
	switch params {
	case yearParam:
		if err := validYear(r.Year); err != nil {
			return "", err
		}
		return fmt.Sprintf("/dashboard/%s/%d", r.Kind, r.Year), nil
	case yearMonthParams:
		if err := validYear(r.Year); err != nil {
			return "", err
		}
		if r.Month < 1 || r.Month > 12 {
			return "", fmt.Errorf("%w: month must be between 1 and 12", ErrInvalidReport)
		}
		return fmt.Sprintf("/dashboard/%s/%d/%d", r.Kind, r.Year, r.Month), nil
	case categoryParam:
		if r.CategoryID <= 0 {
			return "", fmt.Errorf("%w: category id must be positive", ErrInvalidReport)
		}
		return fmt.Sprintf("/dashboard/%s/%d", r.Kind, r.CategoryID), nil
	default:
		return "/dashboard/" + string(r.Kind), nil
	}
}

func validYear(year int) error {
	if year < 2000 || year > time.Now().Year()+1 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidReport, year)
	}
	return nil
}

// ReportKinds lists every supported report.
func ReportKinds() []ReportKind {
	kinds := make([]ReportKind, 0, len(reportKinds))
	for k := range reportKinds {
		kinds = append(kinds, k)
	}
	return kinds
}

// Dashboard fetches a report and returns the backend's JSON untouched.
func (c *Client) Dashboard(ctx context.Context, report Report) (json.RawMessage, error) {
	path, err := report.Path()
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return nil, err
	}
	if !json.Valid(resp.body) {
		return nil, fmt.Errorf("dashboard report %s returned invalid JSON", report.Kind)
	}
	return json.RawMessage(resp.body), nil
}
