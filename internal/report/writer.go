// =============================================================================
// Storage Billing - Report Writer
// =============================================================================
//
// This module writes the batch outputs as XLSX workbooks, one sheet each:
//
//   | Workbook                  | Sheet   | Rows                              |
//   |---------------------------|---------|-----------------------------------|
//   | output_<name>.xlsx        | Billing | one BillingRow per inventory group|
//   | protocols_with_errors.xlsx| Errors  | the deduplicated error ledger     |
//   | max_values.xlsx           | Max     | the max ledger                    |
//
// Null values (unmatched IDs, unpriced totals, fields of failed rows) are
// written as empty cells. Every workbook carries the batch run ID in its
// document properties so outputs of one run can be told apart.
//
// =============================================================================

package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/storage-billing/internal/types"
)

// Sheet names.
const (
	SheetBilling = "Billing"
	SheetErrors  = "Errors"
	SheetMax     = "Max"
)

// Column headers.
const (
	ColProtocol            = "PROTOCOL"
	ColMatchedProtocol     = "MATCHED_PROTOCOL"
	ColProtocolID          = "PROTOCOL_ID"
	ColPotentialService    = "POTENTIAL_SERVICE"
	ColServiceID           = "SERVICE_ID"
	ColDescription         = "DESCRIPTION"
	ColStorageType         = "STORAGE_TYPE"
	ColServicePositionType = "SERVICE_POSITION_TYPE"
	ColAmountOfKits        = "AMOUNT_OF_KITS"
	ColDistinctPositions   = "DISTINCT_POSITIONS"
	ColConvertedPositions  = "CONVERTED_POSITIONS"
	ColPriceUSD            = "PRICE_USD"
	ColTotalPrice          = "TOTAL_PRICE"
	ColError               = "ERROR"
	ColFileName            = "FILE_NAME"
)

// BillingColumns is the column order of a billing report.
var BillingColumns = []string{
	ColProtocol, ColMatchedProtocol, ColProtocolID, ColPotentialService,
	ColServiceID, ColDescription, ColStorageType, ColServicePositionType,
	ColAmountOfKits, ColDistinctPositions, ColConvertedPositions,
	ColPriceUSD, ColTotalPrice, ColError,
}

// ErrorColumns is the column order of the error ledger.
var ErrorColumns = []string{
	ColProtocol, ColMatchedProtocol, ColProtocolID, ColPotentialService,
	ColServiceID, ColDescription, ColStorageType, ColAmountOfKits,
	ColDistinctPositions, ColError, ColFileName,
}

// MaxColumns is the column order of the max ledger.
var MaxColumns = append(append([]string(nil), BillingColumns...), ColFileName)

// Properties are stamped on every written workbook.
type Properties struct {
	// RunID identifies the batch run.
	RunID string

	// Created is the batch start time. Zero means now.
	Created time.Time
}

// =============================================================================
// WRITERS
// =============================================================================

// WriteBillingReport writes one billing report.
func WriteBillingReport(path string, rows []types.BillingRow, props Properties) error {
	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		data = append(data, billingCells(r))
	}
	return writeSheet(path, SheetBilling, "Storage billing report", BillingColumns, data, props)
}

// WriteErrorLedger writes the error ledger.
func WriteErrorLedger(path string, entries []types.ErrorEntry, props Properties) error {
	data := make([][]any, 0, len(entries))
	for _, e := range entries {
		data = append(data, []any{
			e.Protocol,
			nullString(e.MatchedProtocol),
			nullString(e.ProtocolID),
			e.PotentialService,
			nullString(e.ServiceID),
			e.Description,
			e.StorageType,
			e.AmountOfKits,
			e.DistinctPositions,
			e.Error,
			e.FileName,
		})
	}
	return writeSheet(path, SheetErrors, "Protocols with errors", ErrorColumns, data, props)
}

// WriteMaxValues writes the max ledger.
func WriteMaxValues(path string, entries []types.MaxEntry, props Properties) error {
	data := make([][]any, 0, len(entries))
	for _, e := range entries {
		data = append(data, append(billingCells(e.BillingRow), e.FileName))
	}
	return writeSheet(path, SheetMax, "Max storage values", MaxColumns, data, props)
}

func billingCells(r types.BillingRow) []any {
	var converted any
	if r.Priced() {
		converted = r.ConvertedPositions
	}
	return []any{
		r.Protocol,
		nullString(r.MatchedProtocol),
		nullString(r.ProtocolID),
		r.PotentialService,
		nullString(r.ServiceID),
		r.Description,
		r.StorageType,
		nullString(r.ServicePositionType),
		r.AmountOfKits,
		r.DistinctPositions,
		converted,
		nullDecimal(r.PriceUSD),
		nullDecimal(r.TotalPrice),
		nullString(r.ErrorMessage()),
	}
}

func writeSheet(path, sheet, title string, headers []string, rows [][]any, props Properties) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	created := props.Created
	if created.IsZero() {
		created = time.Now()
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:      title,
		Creator:    "storage-billing",
		Identifier: props.RunID,
		Created:    created.UTC().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("failed to set document properties: %w", err)
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(sheet, "A1", last, style)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// nullString maps "" to an empty cell.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}
