// =============================================================================
// Storage Billing - CSV Parser Module
// =============================================================================
//
// This module parses depot extracts exported as CSV instead of XLSX. The
// result is the same header-keyed table the XLSX reader produces, so the
// depot normalization does not care which format a depot exports.
//
// FEATURES:
//   - Configurable delimiter (comma, semicolon, pipe, tab)
//   - Legacy single-byte encodings (Windows-1252, ISO-8859-1), common in
//     Spanish-language WMS exports ("UBICACIÓN", "Medicación")
//   - Byte order mark removal (a UTF-16 BOM also switches to UTF-16)
//   - Ragged rows: short rows read as blank trailing cells
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/storage-billing/internal/config"
	"github.com/ginjaninja78/storage-billing/internal/xlsxparser"
)

// Supported encodings.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
	EncodingISO88591    = "iso-8859-1"
)

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Read parses a CSV file.
//
// PARAMETERS:
//   - filePath: The path to the CSV file.
//   - settings: Delimiter, encoding and header row from the depot config.
//
// RETURNS:
//   - The parsed table. Its sheet name is the file's base name.
//   - An error if the file cannot be opened or parsed.
func Read(filePath string, settings config.CSVSettings) (*xlsxparser.Table, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return Parse(file, filePath, settings)
}

// Parse reads CSV data from r. source names the data in errors.
//
// PARSING PROCESS:
//   1. Decode the configured encoding to UTF-8
//   2. Drop a leading byte order mark before any field is parsed
//   3. Configure the CSV reader with the delimiter
//   4. Read every record
//   5. Build the table from the header row onwards
func Parse(r io.Reader, source string, settings config.CSVSettings) (*xlsxparser.Table, error) {
	decoded, err := decode(bufio.NewReader(r), settings.Encoding)
	if err != nil {
		return nil, err
	}

	// A BOM left in front of a quoted header turns its quotes into text.
	csvReader := csv.NewReader(transform.NewReader(decoded, unicode.BOMOverride(transform.Nop)))
	if err := configureReader(csvReader, settings); err != nil {
		return nil, err
	}

	allRows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	if len(allRows) == 0 {
		return nil, fmt.Errorf("CSV file %s is empty", source)
	}

	table, err := xlsxparser.FromRows(source, filepath.Base(source), allRows, xlsxparser.Options{
		HeaderRow: settings.HeaderRow,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	return table, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings config.CSVSettings) error {
	delimiter := settings.Delimiter
	if delimiter == "" {
		delimiter = ","
	}

	runes := []rune(delimiter)
	if len(runes) != 1 {
		return fmt.Errorf("invalid CSV delimiter %q", settings.Delimiter)
	}
	reader.Comma = runes[0]

	// Depot exports are not always rectangular.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	return nil
}

// decode wraps r with a decoder for encoding.
func decode(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", EncodingUTF8, "utf8":
		return r, nil
	case EncodingWindows1252, "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	case EncodingISO88591, "latin1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}
