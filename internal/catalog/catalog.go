// =============================================================================
// Storage Billing - Service Catalog Reader
// =============================================================================
//
// This module reads the service-configuration workbook and the exchange-rate
// workbook and produces the priced CatalogService rows the calculator
// matches against.
//
// CATALOG WORKBOOK:
//   Headers are on row 2 and several of them span lines ("Protocol\nID").
//   Only rows offered in the configured country with an active service
//   status are kept. A row without a currency stays as an unpriced service.
//
// SERVICE LABELS:
//   A service label carries its billing unit as a suffix:
//
//     "Ambient Storage (per Pallet)"  ->  Service "Ambient Storage"
//                                          Position Type "Pallet"
//
//   A label without the suffix is priced per "Unknown", which no conversion
//   accepts, so its groups fail at the conversion step.
//
// USD PRICE:
//   Price_USD = Price * exchange rate of the row's currency, or null when
//   either is missing.
//
// =============================================================================

package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/storage-billing/internal/types"
	"github.com/ginjaninja78/storage-billing/internal/xlsxparser"
)

// UnknownPositionType is the position type of a label without a unit suffix.
const UnknownPositionType = "Unknown"

// Canonical column names.
const (
	ColProtocol      = "Protocol"
	ColProtocolID    = "Protocol ID"
	ColService       = "Service"
	ColServiceID     = "Service ID"
	ColServiceStatus = "Service Status"
	ColPrice         = "Price"
	ColCurrency      = "Currency"
	ColCountry       = "Country"
	ColExchangeRate  = "Exchange Rate"
)

// DefaultRenames maps the catalog's multi-line headers to column names.
func DefaultRenames() map[string]string {
	return map[string]string{
		"Sponsor\nID":                       "Sponsor ID",
		"Sponsor\nStatus":                   "Sponsor Status",
		"Protocol\nID":                      ColProtocolID,
		"Study\nStatus":                     "Study Status",
		"Service\nID":                       ColServiceID,
		"Service\nStatus":                   ColServiceStatus,
		"Have \nPrice / Contract":           ColPrice,
		"Discount\n(inherited\n or custom)": "Discount",
	}
}

// Options controls catalog filtering.
type Options struct {
	Sheet        string
	HeaderRow    int
	Country      string
	ActiveStatus string

	// Renames is merged over DefaultRenames.
	Renames map[string]string
}

// =============================================================================
// EXCHANGE RATES
// =============================================================================

// ExchangeRates maps a currency code to its USD rate.
type ExchangeRates map[string]decimal.Decimal

// Rate returns the rate of currency, if known.
func (r ExchangeRates) Rate(currency string) (decimal.Decimal, bool) {
	rate, ok := r[currency]
	return rate, ok
}

// ReadExchangeRates reads a Currency / Exchange Rate workbook.
func ReadExchangeRates(path, sheet string) (ExchangeRates, error) {
	table, err := xlsxparser.Read(path, xlsxparser.Options{Sheet: sheet})
	if err != nil {
		return nil, fmt.Errorf("exchange rates: %w", err)
	}
	return ExchangeRatesFromTable(table)
}

// ExchangeRatesFromTable builds the rate table. Rows without a currency are
// ignored; the first rate of a repeated currency is kept.
func ExchangeRatesFromTable(table *xlsxparser.Table) (ExchangeRates, error) {
	if err := table.Require(ColCurrency, ColExchangeRate); err != nil {
		return nil, err
	}

	rates := make(ExchangeRates)
	for _, row := range table.Rows {
		currency := row.Get(ColCurrency)
		if currency == "" {
			continue
		}
		if _, dup := rates[currency]; dup {
			continue
		}

		raw := row.Get(ColExchangeRate)
		if raw == "" {
			continue
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid exchange rate %q for %s", table.Source, row.Number, raw, currency)
		}
		rates[currency] = rate
	}

	return rates, nil
}

// =============================================================================
// SERVICE CATALOG
// =============================================================================

// Read reads and filters the service catalog workbook.
//
// PARAMETERS:
//   - path: The catalog workbook.
//   - opts: Sheet, header row and filters.
//   - rates: Exchange rates used to derive Price_USD.
//
// RETURNS:
//   - The catalog rows in sheet order.
//   - An error if the workbook cannot be read or lacks a required column.
func Read(path string, opts Options, rates ExchangeRates) ([]types.CatalogService, error) {
	renames := DefaultRenames()
	for k, v := range opts.Renames {
		renames[k] = v
	}

	table, err := xlsxparser.Read(path, xlsxparser.Options{
		Sheet:     opts.Sheet,
		HeaderRow: opts.HeaderRow,
		Renames:   renames,
	})
	if err != nil {
		return nil, fmt.Errorf("service catalog: %w", err)
	}

	return FromTable(table, opts, rates)
}

// FromTable filters and prices the rows of an already parsed catalog sheet.
func FromTable(table *xlsxparser.Table, opts Options, rates ExchangeRates) ([]types.CatalogService, error) {
	if err := table.Require(ColProtocol, ColProtocolID, ColService, ColServiceID,
		ColServiceStatus, ColPrice, ColCurrency, ColCountry); err != nil {
		return nil, err
	}

	var out []types.CatalogService
	for _, row := range table.Rows {
		if row.Get(ColCountry) != opts.Country || row.Get(ColServiceStatus) != opts.ActiveStatus {
			continue
		}
		// A blank currency keeps the service; it stays unpriced.
		currency := row.Get(ColCurrency)

		service, positionType := SplitService(row.Get(ColService))

		svc := types.CatalogService{
			Protocol:     row.Get(ColProtocol),
			ProtocolID:   row.Get(ColProtocolID),
			Service:      service,
			ServiceID:    row.Get(ColServiceID),
			PositionType: positionType,
			Currency:     currency,
			Price:        parseNullDecimal(row.Get(ColPrice)),
		}

		if rate, ok := rates.Rate(currency); ok && svc.Price.Valid {
			svc.PriceUSD = decimal.NewNullDecimal(svc.Price.Decimal.Mul(rate))
		}

		out = append(out, svc)
	}

	return out, nil
}

// SplitService separates a service label from its " (per <unit>)" suffix.
//
// EXAMPLE:
//   SplitService("Ambient Storage (per Pallet)") = ("Ambient Storage", "Pallet")
//   SplitService("Handling fee")                 = ("Handling fee", "Unknown")
func SplitService(label string) (service, positionType string) {
	const marker = " (per"

	idx := strings.Index(label, marker)
	if idx < 0 {
		return label, UnknownPositionType
	}

	unit := label[idx+len(marker):]
	if end := strings.Index(unit, ")"); end >= 0 {
		unit = unit[:end]
	}
	return label[:idx], strings.TrimSpace(unit)
}

func parseNullDecimal(raw string) decimal.NullDecimal {
	if raw == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
