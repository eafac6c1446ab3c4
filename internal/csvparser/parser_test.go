package csvparser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/storage-billing/internal/config"
)

func settings(delimiter, encoding string) config.CSVSettings {
	return config.CSVSettings{Delimiter: delimiter, Encoding: encoding, HeaderRow: 1}
}

func TestParse(t *testing.T) {
	data := "\ufeffPROTOCOLO;UBICACIÓN;SALDO\n" +
		"STUDY-001;EF-01;3\n" +
		";;\n" +
		"STUDY-002;\"L-02; back\"\n"

	table, err := Parse(strings.NewReader(data), "stock.csv", settings(";", ""))
	require.NoError(t, err)

	assert.Equal(t, []string{"PROTOCOLO", "UBICACIÓN", "SALDO"}, table.Headers)
	assert.Equal(t, "stock.csv", table.Sheet)
	require.Len(t, table.Rows, 2)

	assert.Equal(t, "STUDY-001", table.Rows[0].Get("PROTOCOLO"))
	assert.Equal(t, "3", table.Rows[0].Get("SALDO"))

	assert.Equal(t, 4, table.Rows[1].Number)
	assert.Equal(t, "L-02; back", table.Rows[1].Get("UBICACIÓN"))
	assert.Equal(t, "", table.Rows[1].Get("SALDO"), "short rows read as blank")
}

func TestParse_ByteOrderMarkBeforeQuotedHeader(t *testing.T) {
	data := "\ufeff\"PROTOCOLO\",\"SALDO\"\n\"STUDY-001\",3\n"

	table, err := Parse(strings.NewReader(data), "x.csv", settings(",", EncodingUTF8))
	require.NoError(t, err)
	assert.Equal(t, []string{"PROTOCOLO", "SALDO"}, table.Headers)
	require.NoError(t, table.Require("PROTOCOLO", "SALDO"))
	assert.Equal(t, "STUDY-001", table.Rows[0].Get("PROTOCOLO"))
}

func TestParse_UTF16ByteOrderMark(t *testing.T) {
	// "A,B\n1,2\n" in UTF-16LE with its BOM.
	data := "\xff\xfeA\x00,\x00B\x00\n\x001\x00,\x002\x00\n\x00"

	table, err := Parse(strings.NewReader(data), "x.csv", settings(",", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, table.Headers)
	assert.Equal(t, "2", table.Rows[0].Get("B"))
}

func TestParse_Windows1252(t *testing.T) {
	// "UBICACIÓN" and "Medicación" in Windows-1252.
	data := []byte("UBICACI\xd3N,LINEA\nEF-01,Medicaci\xf3n oral\n")

	table, err := Parse(strings.NewReader(string(data)), "stock.csv", settings(",", EncodingWindows1252))
	require.NoError(t, err)
	require.True(t, table.Has("UBICACIÓN"))
	assert.Equal(t, "Medicación oral", table.Rows[0].Get("LINEA"))
}

func TestParse_HeaderRow(t *testing.T) {
	data := "Stock report\nA,B\n1,2\n"

	s := settings(",", "")
	s.HeaderRow = 2
	table, err := Parse(strings.NewReader(data), "stock.csv", s)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, table.Headers)
	assert.Equal(t, "2", table.Rows[0].Get("B"))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		settings config.CSVSettings
	}{
		{"empty", "", settings(",", "")},
		{"unknown encoding", "A\n1\n", settings(",", "ebcdic")},
		{"bad delimiter", "A\n1\n", settings(";;", "")},
		{"missing header row", "A\n", config.CSVSettings{Delimiter: ",", HeaderRow: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.data), "x.csv", tt.settings)
			assert.Error(t, err)
		})
	}
}

func TestRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock.csv")
	require.NoError(t, os.WriteFile(path, []byte("A|B\n1|2\n"), 0644))

	table, err := Read(path, settings("|", EncodingUTF8))
	require.NoError(t, err)
	assert.Equal(t, path, table.Source)
	assert.Equal(t, "1", table.Rows[0].Get("A"))

	_, err = Read(filepath.Join(t.TempDir(), "nope.csv"), settings(",", ""))
	assert.Error(t, err)
}
