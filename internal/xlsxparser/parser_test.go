package xlsxparser

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, sheet string, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName(f.GetSheetName(0), sheet))

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestRead_HeaderRowAndRenames(t *testing.T) {
	path := writeWorkbook(t, "Services", [][]any{
		{"Service catalog export"},
		{"Protocol", "Protocol\nID", " Price ", "Protocol"},
		{"STUDY-001", "P-1", 1250.5, "shadowed"},
		{},
		{"STUDY-002", "P-2"},
	})

	table, err := Read(path, Options{
		HeaderRow: 2,
		Renames:   map[string]string{"Protocol\nID": "Protocol ID"},
	})
	require.NoError(t, err)

	assert.Equal(t, path, table.Source)
	assert.Equal(t, "Services", table.Sheet)
	assert.Equal(t, []string{"Protocol", "Protocol ID", "Price", "Protocol"}, table.Headers)
	require.Len(t, table.Rows, 2)

	first := table.Rows[0]
	assert.Equal(t, 3, first.Number)
	assert.Equal(t, "STUDY-001", first.Get("Protocol"))
	assert.Equal(t, "P-1", first.Get("Protocol ID"))
	assert.Equal(t, "1250.5", first.Get("Price"))

	second := table.Rows[1]
	assert.Equal(t, 5, second.Number)
	assert.Equal(t, "", second.Get("Price"), "short rows read as blank")
	assert.Equal(t, "", second.Get("Nope"))
}

func TestRead_NamedSheet(t *testing.T) {
	path := writeWorkbook(t, "PERI", [][]any{{"Depot", "FisherBook"}, {"A", "B"}})

	table, err := Read(path, Options{Sheet: "PERI"})
	require.NoError(t, err)
	assert.Equal(t, "B", table.Rows[0].Get("FisherBook"))

	_, err = Read(path, Options{Sheet: "Other"})
	assert.Error(t, err)
}

func TestRead_MissingHeaderRow(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]any{{"only a title"}})

	_, err := Read(path, Options{HeaderRow: 3})
	assert.Error(t, err)
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.xlsx"), Options{})
	assert.Error(t, err)
}

func TestTable_Require(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]any{{"Currency", "Exchange Rate"}})

	table, err := Read(path, Options{})
	require.NoError(t, err)

	assert.NoError(t, table.Require("Currency", "Exchange Rate"))

	err = table.Require("Currency", "Country", "Price")
	var missing *MissingColumnsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"Country", "Price"}, missing.Columns)
	assert.Contains(t, err.Error(), "missing columns Country, Price")
}
