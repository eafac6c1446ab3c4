// =============================================================================
// Storage Billing - Shared Types
// =============================================================================
//
// This package contains the row types that flow through the billing pipeline.
// They live here to avoid import cycles between:
//   - catalog    (produces CatalogService)
//   - depot      (produces InventoryRow)
//   - billing    (produces InventoryGroup, BillingRow, ErrorEntry)
//   - aggregate  (produces MaxEntry)
//   - report     (reads and writes all of the above)
//
// =============================================================================

package types

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// CATALOG TYPES
// =============================================================================

// CatalogService is one priced service row of the service catalog.
// Catalog rows are read once per run and never modified.
type CatalogService struct {
	Protocol   string
	ProtocolID string

	// Service is the service label with its "(per <unit>)" suffix removed.
	Service   string
	ServiceID string

	// PositionType is the storage unit the service is priced per
	// (Pallet, Shelf, Bin, or "Unknown" when the label carried no unit).
	PositionType string

	Currency string
	Price    decimal.NullDecimal

	// PriceUSD is Price converted with the currency's exchange rate.
	// It is null when either the price or the rate is missing.
	PriceUSD decimal.NullDecimal
}

// =============================================================================
// INVENTORY TYPES
// =============================================================================

// InventoryRow is a single normalized depot line, before grouping.
type InventoryRow struct {
	Protocol         string
	ItemType         string
	LotStatus        string
	Temperature      string
	StorageType      string
	Position         string
	AmountOfKits     int64
	IsReturn         bool
	GeneralType      string
	PotentialService string
	Description      string
}

// InventoryGroup is the unit of billing: all depot lines sharing the same
// protocol, potential service and storage type.
type InventoryGroup struct {
	Protocol          string
	PotentialService  string
	StorageType       string
	Description       string
	AmountOfKits      int64
	DistinctPositions int
}

// =============================================================================
// BILLING TYPES
// =============================================================================

// FailureKind classifies a row-local billing failure.
type FailureKind string

const (
	FailureProtocol   FailureKind = "protocol"
	FailureService    FailureKind = "service"
	FailureConversion FailureKind = "conversion"
)

// Failure describes why a group could not be priced.
type Failure struct {
	Kind    FailureKind
	Message string
}

// BillingRow is the billing outcome for one InventoryGroup.
//
// A row is either priced (Failure == nil) or failed (Failure != nil). Failed
// rows never carry ConvertedPositions, PriceUSD or TotalPrice; they keep only
// the match context that was known when the failure happened.
type BillingRow struct {
	InventoryGroup

	MatchedProtocol     string
	ProtocolID          string
	ServiceID           string
	ServicePositionType string

	// ConvertedPositions is DistinctPositions expressed in ServicePositionType.
	// Only meaningful on priced rows.
	ConvertedPositions int

	PriceUSD   decimal.NullDecimal
	TotalPrice decimal.NullDecimal

	Failure *Failure
}

// Priced reports whether the row completed all billing steps.
func (r BillingRow) Priced() bool {
	return r.Failure == nil
}

// ErrorMessage returns the failure message, or "" for priced rows.
func (r BillingRow) ErrorMessage() string {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Message
}

// ErrorEntry is one deduplicated billing failure with its provenance.
type ErrorEntry struct {
	Protocol          string
	MatchedProtocol   string
	ProtocolID        string
	PotentialService  string
	ServiceID         string
	Description       string
	StorageType       string
	AmountOfKits      int64
	DistinctPositions int
	Error             string
	FileName          string
}

// =============================================================================
// AGGREGATION TYPES
// =============================================================================

// MaxEntry is a billing row retained by the max aggregator, tagged with the
// label of the report it came from.
type MaxEntry struct {
	BillingRow
	FileName string
}
