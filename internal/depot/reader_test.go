package depot

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/storage-billing/internal/config"
	"github.com/ginjaninja78/storage-billing/internal/types"
)

func periConfig(t *testing.T) *config.DepotConfig {
	t.Helper()
	cfg, err := config.LoadDepotConfig(filepath.Join("..", "..", "configs", "peri.yaml"))
	require.NoError(t, err)
	return cfg
}

func saveSheet(t *testing.T, dir, name, sheet string, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	if sheet != "" {
		require.NoError(t, f.SetSheetName(f.GetSheetName(0), sheet))
	} else {
		sheet = f.GetSheetName(0)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	path := filepath.Join(dir, name)
	require.NoError(t, f.SaveAs(path))
	return path
}

var periHeader = []any{"PROTOCOLO", "LINEA", "ESTADO STOCK", "CLIENTE", "UBICACIÓN", "SALDO"}

func TestReader_Matches(t *testing.T) {
	r := NewReader(periConfig(t), nil)

	assert.Equal(t, "PERI", r.Name())
	assert.True(t, r.Matches("StockThermoFisher_ST_20240105.xls"))
	assert.True(t, r.Matches("StockThermoFisher_ST_20240105.xlsx"))
	assert.True(t, r.Matches("StockThermoFisher_ST_20240105.csv"))
	assert.False(t, r.Matches("StockThermoFisher_ST_20240105.pdf"))
	assert.False(t, r.Matches("notes.xlsx"))
}

func TestReader_LocationRules(t *testing.T) {
	r := NewReader(periConfig(t), nil)

	tests := []struct {
		position    string
		temperature string
		storage     string
	}{
		{"EFR-01-02", "Refrigerated", "Bin"},
		{"EF-03-01", "Ambient", "Bin"},
		{"L-12", "Ambient", "Pallet"},
		{"MG-4", "Frozen", "Shelf"},
		{"X-1", "", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.position, func(t *testing.T) {
			temp := r.Temperature(tt.position)
			assert.Equal(t, tt.temperature, temp)
			assert.Equal(t, tt.storage, r.StorageType(tt.position, temp))
		})
	}
}

func TestReader_ItemType(t *testing.T) {
	r := NewReader(periConfig(t), nil)

	assert.Equal(t, "Medication", r.ItemType("Medicación oral"))
	assert.Equal(t, "Ancillaries", r.ItemType("  MATERIALES  "))
	assert.Equal(t, "TT4", r.ItemType("monitores"))
	assert.Equal(t, "otros", r.ItemType("OTROS cosas"))
	assert.Equal(t, "", r.ItemType(""))
}

func TestReader_ReadFile(t *testing.T) {
	dir := t.TempDir()
	path := saveSheet(t, dir, "StockThermoFisher_ST_20240105.xlsx", "", [][]any{
		periHeader,
		{"OLD-001", "Medicación oral", "LIBERADO", "Acme", "EF-01", 3},
		{"OLD-001", "Medicación oral", "LIBERADO", "Acme", "EF-01", 2},
		{"OLD-001", "Materiales varios", "CUARENTENA", "Acme", "MG-02", "n/a"},
		{"STUDY-002", "Retorno kit", "DEVOLUCION", "Acme", "L-07", 4.7},
		{"", "Medicación", "LIBERADO", "Acme", "EF-09", 1},
	})

	r := NewReader(periConfig(t), map[string]string{"OLD-001": "STUDY-001"})
	rows, err := r.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, types.InventoryRow{
		Protocol:         "STUDY-001",
		ItemType:         "Ancillaries",
		LotStatus:        "Quarantine",
		Temperature:      "Frozen",
		StorageType:      "Shelf",
		Position:         "MG-02",
		AmountOfKits:     0,
		GeneralType:      "Non-Drug",
		PotentialService: "Non-Drug Storage Frozen",
		Description:      "Frozen Quarantine Ancillaries",
	}, rows[0])

	assert.Equal(t, types.InventoryRow{
		Protocol:         "STUDY-001",
		ItemType:         "Medication",
		LotStatus:        "Approved",
		Temperature:      "Ambient",
		StorageType:      "Bin",
		Position:         "EF-01",
		AmountOfKits:     5,
		GeneralType:      "Drug",
		PotentialService: "Storage Ambient",
		Description:      "Ambient Approved Medication",
	}, rows[1])

	assert.Equal(t, types.InventoryRow{
		Protocol:         "STUDY-002",
		ItemType:         "Medication",
		LotStatus:        "Expired",
		Temperature:      "Ambient",
		StorageType:      "Pallet",
		Position:         "L-07",
		AmountOfKits:     4,
		IsReturn:         true,
		GeneralType:      "Drug",
		PotentialService: "Storage of Returns",
		Description:      "Returned Medication",
	}, rows[2])
}

func TestReader_ReadCSV(t *testing.T) {
	cfg := periConfig(t)
	cfg.CSV = config.CSVSettings{Delimiter: ";", Encoding: "windows-1252", HeaderRow: 1}

	path := filepath.Join(t.TempDir(), "StockThermoFisher_ST_20240105.csv")
	data := "PROTOCOLO;LINEA;ESTADO STOCK;CLIENTE;UBICACI\xd3N;SALDO\n" +
		"STUDY-001;Medicaci\xf3n oral;LIBERADO;Acme;EF-01;2\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	rows, err := NewReader(cfg, nil).ReadFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Medication", rows[0].ItemType)
	assert.Equal(t, "EF-01", rows[0].Position)
	assert.Equal(t, int64(2), rows[0].AmountOfKits)
}

func TestReader_ReadXLS(t *testing.T) {
	fixture, err := os.ReadFile(filepath.Join("..", "xlsparser", "testdata", "stock.xls"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "StockThermoFisher_ST_20240105.xls")
	require.NoError(t, os.WriteFile(path, fixture, 0644))

	r := NewReader(periConfig(t), nil)
	require.True(t, r.Matches(filepath.Base(path)))

	rows, err := r.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "STUDY-001", rows[0].Protocol)
	assert.Equal(t, "Medication", rows[0].ItemType)
	assert.Equal(t, "Approved", rows[0].LotStatus)
	assert.Equal(t, "Bin", rows[0].StorageType)
	assert.Equal(t, int64(5), rows[0].AmountOfKits)

	assert.Equal(t, "STUDY-002", rows[1].Protocol)
	assert.Equal(t, "Ancillaries", rows[1].ItemType)
	assert.Equal(t, "Quarantine", rows[1].LotStatus)
	assert.Equal(t, "Shelf", rows[1].StorageType)
	assert.Equal(t, int64(1), rows[1].AmountOfKits)
}

func TestReader_MissingColumn(t *testing.T) {
	path := saveSheet(t, t.TempDir(), "x.xlsx", "", [][]any{{"PROTOCOLO", "SALDO"}})

	_, err := NewReader(periConfig(t), nil).ReadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UBICACIÓN")
}

func TestReader_UnknownGeneralTypeFallsBackToDefault(t *testing.T) {
	path := saveSheet(t, t.TempDir(), "x.xlsx", "", [][]any{
		periHeader,
		{"STUDY-001", "Otros", "LIBERADO", "Acme", "EF-01", 1},
	})

	rows, err := NewReader(periConfig(t), nil).ReadFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Unknown Service", rows[0].PotentialService)
}

func TestLoadRenaming(t *testing.T) {
	path := saveSheet(t, t.TempDir(), "protocols_renaming.xlsx", "PERI", [][]any{
		{"Depot", "FisherBook"},
		{"OLD-001", "STUDY-001"},
		{"", "ignored"},
		{"OLD-001", "STUDY-001B"},
	})

	renaming, err := LoadRenaming(path, "PERI")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"OLD-001": "STUDY-001B"}, renaming)

	_, err = LoadRenaming(path, "OTHER")
	assert.Error(t, err)
}

func TestLoadRenaming_MissingFile(t *testing.T) {
	_, err := LoadRenaming(filepath.Join(t.TempDir(), "nope.xlsx"), "PERI")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
