// =============================================================================
// Storage Billing - XLS Parser Module
// =============================================================================
//
// This module reads legacy Excel 97-2003 workbooks (BIFF8 inside an OLE2
// container), the format the PERI warehouse system still exports. The result
// is the same header-keyed table the XLSX and CSV readers produce.
//
// FEATURES:
//   - Sheet selection by name (empty selects the first sheet)
//   - Rows missing from the file read as blank rows
//   - Numeric cells rendered without exponent or trailing zeros ("3", "4.7")
//
// =============================================================================

package xlsparser

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/extrame/xls"

	"github.com/ginjaninja78/storage-billing/internal/xlsxparser"
)

// charset is handed to the OLE2 reader. BIFF8 strings carry their own
// encoding flag, so it only matters for BIFF5 files.
const charset = "utf-8"

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Read parses an .xls workbook.
//
// PARAMETERS:
//   - filePath: The path to the workbook.
//   - opts: Sheet and header row. Renames apply to the header cells.
//
// RETURNS:
//   - The parsed table.
//   - An error if the file is not a readable BIFF workbook or the sheet does
//     not exist.
func Read(filePath string, opts xlsxparser.Options) (table *xlsxparser.Table, err error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// The BIFF decoder indexes record data without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			table = nil
			err = fmt.Errorf("%s: corrupt xls workbook: %v", filepath.Base(filePath), r)
		}
	}()

	workbook, err := xls.OpenReader(file, charset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(filePath), err)
	}
	if workbook == nil {
		return nil, fmt.Errorf("%s: no workbook stream", filepath.Base(filePath))
	}

	sheet, err := findSheet(workbook, opts.Sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(filePath), err)
	}

	table, err = xlsxparser.FromRows(filePath, sheet.Name, sheetRows(sheet), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(filePath), err)
	}
	return table, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func findSheet(workbook *xls.WorkBook, name string) (*xls.WorkSheet, error) {
	if workbook.NumSheets() == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	if name == "" {
		return workbook.GetSheet(0), nil
	}

	for i := 0; i < workbook.NumSheets(); i++ {
		if sheet := workbook.GetSheet(i); sheet != nil && sheet.Name == name {
			return sheet, nil
		}
	}
	return nil, fmt.Errorf("sheet %q not found", name)
}

// sheetRows flattens a sheet into rows of cell text, one entry per row
// number up to the last used row.
func sheetRows(sheet *xls.WorkSheet) [][]string {
	rows := make([][]string, 0, int(sheet.MaxRow)+1)

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := rowAt(sheet, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}

		// LastCol is one past the last used column.
		cells := make([]string, row.LastCol())
		for c := row.FirstCol(); c < row.LastCol(); c++ {
			cells[c] = row.Col(c)
		}
		rows = append(rows, cells)
	}

	return rows
}

// rowAt returns row i, or nil when the sheet has no such row.
func rowAt(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	// WorkSheet.Row dereferences the row before checking it exists.
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}
