// =============================================================================
// Storage Billing - Billing Calculator
// =============================================================================
//
// The calculator prices inventory groups against the service catalog.
//
// BILLING STEPS (per group):
//   1. Resolve the raw protocol against the catalog protocols.
//   2. Resolve the potential service among the matched protocol's services.
//   3. Convert the distinct positions from the group's storage type into the
//      service's position type.
//   4. Total Price = converted positions * Price_USD (null when the service
//      has no USD price; an unpriced service is not a failure).
//
// A step that fails produces a failed BillingRow and one ErrorEntry in the
// ledger, and the next group is processed. Every input group yields exactly
// one output row.
//
// LIFETIME:
//   One calculator is built per catalog snapshot and reused for every file of
//   a batch, so resolver caches and the error ledger span the whole batch.
//
// =============================================================================

package billing

import (
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/storage-billing/internal/conversion"
	"github.com/ginjaninja78/storage-billing/internal/matching"
	"github.com/ginjaninja78/storage-billing/internal/types"
)

// Failure messages for unresolved labels. Conversion failures carry the
// conversion error's own message.
const (
	MsgNoProtocol = "No matching protocol found"
	MsgNoService  = "No matching service found"
)

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator prices inventory groups and records failures in its ledger.
type Calculator struct {
	protocols *matching.ProtocolResolver
	services  *matching.ServiceResolver
	matrix    *conversion.Matrix
	ledger    *Ledger
}

// NewCalculator builds a calculator over a catalog snapshot.
//
// PARAMETERS:
//   - catalog: Filtered, currency-converted catalog rows. May be empty, in
//     which case every group fails protocol resolution.
//   - matrix: The unit conversion matrix. Nil selects conversion.Default().
//   - matcher: The similarity matcher used by both resolvers.
func NewCalculator(catalog []types.CatalogService, matrix *conversion.Matrix, matcher matching.Matcher) *Calculator {
	if matrix == nil {
		matrix = conversion.Default()
	}
	return &Calculator{
		protocols: matching.NewProtocolResolver(catalog, matcher),
		services:  matching.NewServiceResolver(catalog, matcher),
		matrix:    matrix,
		ledger:    NewLedger(),
	}
}

// Ledger returns the calculator's error ledger.
func (c *Calculator) Ledger() *Ledger {
	return c.ledger
}

// Calculate prices each group. source labels the ledger entries recorded
// while billing these groups.
func (c *Calculator) Calculate(groups []types.InventoryGroup, source string) []types.BillingRow {
	rows := make([]types.BillingRow, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, c.bill(g, source))
	}
	return rows
}

// CalculateInventory groups raw inventory rows and prices the groups.
func (c *Calculator) CalculateInventory(rows []types.InventoryRow, source string) []types.BillingRow {
	return c.Calculate(GroupInventory(rows), source)
}

func (c *Calculator) bill(g types.InventoryGroup, source string) types.BillingRow {
	// Step 1: protocol.
	protocol := c.protocols.Resolve(g.Protocol)
	if !protocol.Found() {
		row := failedRow(g, types.BillingRow{}, types.FailureProtocol, MsgNoProtocol)
		c.record(row, source)
		return row
	}

	ctx := types.BillingRow{
		MatchedProtocol: protocol.Name,
		ProtocolID:      protocol.ID,
	}

	// Step 2: service.
	svc, ok := c.services.Resolve(protocol.Name, g.PotentialService)
	if !ok {
		row := failedRow(g, ctx, types.FailureService, MsgNoService)
		c.record(row, source)
		return row
	}

	ctx.ServiceID = svc.ServiceID
	ctx.ServicePositionType = svc.PositionType

	// Step 3: conversion.
	converted, err := c.matrix.Convert(g.DistinctPositions, g.StorageType, svc.PositionType)
	if err != nil {
		row := failedRow(g, ctx, types.FailureConversion, err.Error())
		c.record(row, source)
		return row
	}

	// Step 4: price.
	return pricedRow(g, ctx, converted, svc.PriceUSD)
}

func (c *Calculator) record(row types.BillingRow, source string) {
	c.ledger.Add(types.ErrorEntry{
		Protocol:          row.Protocol,
		MatchedProtocol:   row.MatchedProtocol,
		ProtocolID:        row.ProtocolID,
		PotentialService:  row.PotentialService,
		ServiceID:         row.ServiceID,
		Description:       row.Description,
		StorageType:       row.StorageType,
		AmountOfKits:      row.AmountOfKits,
		DistinctPositions: row.DistinctPositions,
		Error:             row.ErrorMessage(),
		FileName:          source,
	})
}

// =============================================================================
// ROW CONSTRUCTORS
// =============================================================================
// These are the only places a BillingRow is assembled, so a failed row can
// never carry converted positions or prices.

func failedRow(g types.InventoryGroup, ctx types.BillingRow, kind types.FailureKind, msg string) types.BillingRow {
	return types.BillingRow{
		InventoryGroup:      g,
		MatchedProtocol:     ctx.MatchedProtocol,
		ProtocolID:          ctx.ProtocolID,
		ServiceID:           ctx.ServiceID,
		ServicePositionType: ctx.ServicePositionType,
		Failure:             &types.Failure{Kind: kind, Message: msg},
	}
}

func pricedRow(g types.InventoryGroup, ctx types.BillingRow, converted int, priceUSD decimal.NullDecimal) types.BillingRow {
	row := types.BillingRow{
		InventoryGroup:      g,
		MatchedProtocol:     ctx.MatchedProtocol,
		ProtocolID:          ctx.ProtocolID,
		ServiceID:           ctx.ServiceID,
		ServicePositionType: ctx.ServicePositionType,
		ConvertedPositions:  converted,
		PriceUSD:            priceUSD,
	}
	if priceUSD.Valid {
		row.TotalPrice = decimal.NewNullDecimal(decimal.NewFromInt(int64(converted)).Mul(priceUSD.Decimal))
	}
	return row
}
