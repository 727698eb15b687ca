// Package pos collects the point-of-sale side of the reconciliation.
//
// The POS exposes two paginated report endpoints, one for treatment
// (service) sales and one for product sales. An Aggregator walks both,
// page by page, and sums every in-month record into a DailyLedger keyed by
// the branch name the POS reports. Branch names from the POS are already
// canonical, so no synonym resolution happens here.
//
// The transport sits behind the PageFetcher interface. Client is the HTTP
// implementation; tests use the gomock mock in the mocks package.
package pos

import (
	"context"
	"fmt"
)

// TransactionCategory is one of the POS report endpoints.
type TransactionCategory string

const (
	CategoryService TransactionCategory = "service"
	CategoryProduct TransactionCategory = "product"
)

// AllCategories lists the categories in fetch order.
var AllCategories = []TransactionCategory{CategoryService, CategoryProduct}

// Endpoint returns the report path segment for the category
func (c TransactionCategory) Endpoint() string {
	switch c {
	case CategoryService:
		return "laporan-penjualan-perawatan"
	case CategoryProduct:
		return "laporan-penjualan-produk"
	default:
		return ""
	}
}

// IsValid checks the category is known
func (c TransactionCategory) IsValid() bool {
	return c.Endpoint() != ""
}

// ParseTransactionCategory parses a category name
func ParseTransactionCategory(s string) (TransactionCategory, error) {
	c := TransactionCategory(s)
	if !c.IsValid() {
		return "", fmt.Errorf("invalid transaction category %q (must be 'service' or 'product')", s)
	}
	return c, nil
}

// DateRange is the inclusive ISO date range sent with every page request.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Record is one transaction as decoded from the POS JSON.
type Record map[string]interface{}

// Page is one page of a report.
type Page struct {
	Records []Record
	// NextPageURL is nil or empty on the last page.
	NextPageURL *string
}

// HasNext reports whether the source signalled another page
func (p *Page) HasNext() bool {
	return p != nil && p.NextPageURL != nil && *p.NextPageURL != ""
}

// PageFetcher retrieves a single page of a POS report.
//
//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks -source=interface.go PageFetcher
type PageFetcher interface {
	FetchPage(ctx context.Context, category TransactionCategory, dateRange DateRange, page int) (*Page, error)
}
