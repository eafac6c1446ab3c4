// =============================================================================
// Storage Billing - Report Reader Module
// =============================================================================
//
// Reads back the workbooks this tool writes: billing reports for the max
// recompute and the error ledger, whose protocols the max ledger excludes.
//
// =============================================================================

package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/storage-billing/internal/billing"
	"github.com/ginjaninja78/storage-billing/internal/types"
	"github.com/ginjaninja78/storage-billing/internal/xlsxparser"
)

// ReadBillingReport reads a billing report written by WriteBillingReport.
func ReadBillingReport(path string) ([]types.BillingRow, error) {
	table, err := xlsxparser.Read(path, xlsxparser.Options{})
	if err != nil {
		return nil, err
	}
	if err := table.Require(ColProtocol, ColPotentialService, ColStorageType, ColTotalPrice, ColError); err != nil {
		return nil, err
	}

	rows := make([]types.BillingRow, 0, len(table.Rows))
	for _, r := range table.Rows {
		row, err := billingRowFrom(r)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, r.Number, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func billingRowFrom(r xlsxparser.Row) (types.BillingRow, error) {
	kits, err := parseInt(r.Get(ColAmountOfKits))
	if err != nil {
		return types.BillingRow{}, fmt.Errorf("%s: %w", ColAmountOfKits, err)
	}
	positions, err := parseInt(r.Get(ColDistinctPositions))
	if err != nil {
		return types.BillingRow{}, fmt.Errorf("%s: %w", ColDistinctPositions, err)
	}

	row := types.BillingRow{
		InventoryGroup: types.InventoryGroup{
			Protocol:          r.Get(ColProtocol),
			PotentialService:  r.Get(ColPotentialService),
			StorageType:       r.Get(ColStorageType),
			Description:       r.Get(ColDescription),
			AmountOfKits:      kits,
			DistinctPositions: int(positions),
		},
		MatchedProtocol:     r.Get(ColMatchedProtocol),
		ProtocolID:          r.Get(ColProtocolID),
		ServiceID:           r.Get(ColServiceID),
		ServicePositionType: r.Get(ColServicePositionType),
	}

	if msg := r.Get(ColError); msg != "" {
		row.Failure = &types.Failure{Kind: failureKind(msg), Message: msg}
		return row, nil
	}

	converted, err := parseInt(r.Get(ColConvertedPositions))
	if err != nil {
		return types.BillingRow{}, fmt.Errorf("%s: %w", ColConvertedPositions, err)
	}
	row.ConvertedPositions = int(converted)

	if row.PriceUSD, err = parseNullDecimal(r.Get(ColPriceUSD)); err != nil {
		return types.BillingRow{}, fmt.Errorf("%s: %w", ColPriceUSD, err)
	}
	if row.TotalPrice, err = parseNullDecimal(r.Get(ColTotalPrice)); err != nil {
		return types.BillingRow{}, fmt.Errorf("%s: %w", ColTotalPrice, err)
	}
	return row, nil
}

func failureKind(msg string) types.FailureKind {
	switch msg {
	case billing.MsgNoProtocol:
		return types.FailureProtocol
	case billing.MsgNoService:
		return types.FailureService
	default:
		return types.FailureConversion
	}
}

// ReadErrorProtocols reads the exclusion set for the max ledger.
//
// SUPPORTED FORMATS:
//   - .txt:  one protocol per line, blank lines ignored
//   - .xlsx: the PROTOCOL column of an error ledger
//
// Protocols are returned once each, in file order.
func ReadErrorProtocols(path string) ([]string, error) {
	var raw []string

	if strings.EqualFold(filepath.Ext(path), ".txt") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			raw = append(raw, strings.TrimSpace(scanner.Text()))
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		table, err := xlsxparser.Read(path, xlsxparser.Options{})
		if err != nil {
			return nil, err
		}
		if err := table.Require(ColProtocol); err != nil {
			return nil, err
		}
		for _, r := range table.Rows {
			raw = append(raw, r.Get(ColProtocol))
		}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, p := range raw {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func parseInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return d.IntPart(), nil
}

func parseNullDecimal(raw string) (decimal.NullDecimal, error) {
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid number %q", raw)
	}
	return decimal.NewNullDecimal(d), nil
}
