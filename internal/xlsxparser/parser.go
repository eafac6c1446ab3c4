// =============================================================================
// Storage Billing - XLSX Table Parser
// =============================================================================
//
// This module reads one sheet of an XLSX workbook as a header-keyed table.
// Every workbook the application consumes (exchange rates, service catalog,
// protocol renaming, depot extracts, previously written reports) goes through
// it. CSV depot extracts are parsed elsewhere and handed over as raw rows.
//
// SHEET LAYOUT:
//
//   | row 1 .. HeaderRow-1 | ignored (titles, notes)                       |
//   | row HeaderRow        | column headers                                |
//   | row HeaderRow+1 ..   | data; fully blank rows are skipped            |
//
// HEADERS:
//   Headers are looked up in Options.Renames verbatim first (catalog headers
//   contain embedded line breaks), then trimmed. When two columns share a
//   header, the first one wins.
//
// VALUES:
//   Cells are read raw: numbers come back unformatted ("1250.5"), not with
//   the cell's display format applied.
//
// =============================================================================

package xlsxparser

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options selects the sheet and header layout.
type Options struct {
	// Sheet is the sheet name. Empty selects the first sheet.
	Sheet string

	// HeaderRow is the 1-based header row. Zero means 1.
	HeaderRow int

	// Renames maps raw header text to column names.
	Renames map[string]string
}

// =============================================================================
// TABLE STRUCTURE
// =============================================================================

// Table is a parsed sheet.
type Table struct {
	// Source is the workbook path, for error messages.
	Source string

	// Sheet is the sheet that was read.
	Sheet string

	// Headers holds the column names in sheet order.
	Headers []string

	// Rows holds the data rows in sheet order.
	Rows []Row

	index map[string]int
}

// Row is one data row.
type Row struct {
	// Number is the 1-based sheet row number.
	Number int

	cells []string
	table *Table
}

// Get returns the trimmed value of column name, or "" if the column or the
// cell is absent.
func (r Row) Get(name string) string {
	i, ok := r.table.index[name]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

// Has reports whether the table has column name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Require returns an error naming every column in names the table lacks.
func (t *Table) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if !t.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Source: t.Source, Sheet: t.Sheet, Columns: missing}
	}
	return nil
}

// MissingColumnsError is returned when a sheet lacks required columns.
type MissingColumnsError struct {
	Source  string
	Sheet   string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s [%s]: missing columns %s", e.Source, e.Sheet, strings.Join(e.Columns, ", "))
}

// =============================================================================
// PARSING FUNCTIONS
// =============================================================================

// Read opens a workbook and parses one sheet.
//
// PARAMETERS:
//   - path: The path to the XLSX file.
//   - opts: Sheet and header selection.
//
// RETURNS:
//   - The parsed table.
//   - An error if the file cannot be opened, the sheet does not exist, or the
//     header row is missing.
func Read(path string, opts Options) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	t, err := ReadFile(f, opts)
	if err != nil {
		return nil, err
	}
	t.Source = path
	return t, nil
}

// ReadFile parses one sheet of an already opened workbook.
func ReadFile(f *excelize.File, opts Options) (*Table, error) {
	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
		if sheet == "" {
			return nil, fmt.Errorf("workbook has no sheets")
		}
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return FromRows(f.Path, sheet, rows, opts)
}

// FromRows builds a table from rows already read by another reader, such
// as a CSV file. opts.Sheet is ignored.
//
// RETURNS:
//   - The table.
//   - An error if there is no header row.
func FromRows(source, sheet string, rows [][]string, opts Options) (*Table, error) {
	headerRow := opts.HeaderRow
	if headerRow <= 0 {
		headerRow = 1
	}

	if len(rows) < headerRow {
		return nil, fmt.Errorf("sheet %q has no header row %d", sheet, headerRow)
	}

	t := &Table{
		Source: source,
		Sheet:  sheet,
		index:  make(map[string]int),
	}

	for i, raw := range rows[headerRow-1] {
		name := headerName(raw, opts.Renames)
		t.Headers = append(t.Headers, name)
		if name == "" {
			continue
		}
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}

	for i := headerRow; i < len(rows); i++ {
		if isRowEmpty(rows[i]) {
			continue
		}
		t.Rows = append(t.Rows, Row{Number: i + 1, cells: rows[i], table: t})
	}

	return t, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func headerName(raw string, renames map[string]string) string {
	if name, ok := renames[raw]; ok {
		return name
	}
	trimmed := strings.TrimSpace(raw)
	if name, ok := renames[trimmed]; ok {
		return name
	}
	return trimmed
}

// isRowEmpty checks if a row contains only empty cells.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
