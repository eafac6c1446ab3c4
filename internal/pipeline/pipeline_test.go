package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/storage-billing/internal/billing"
	"github.com/ginjaninja78/storage-billing/internal/config"
	"github.com/ginjaninja78/storage-billing/internal/depot"
	"github.com/ginjaninja78/storage-billing/internal/report"
	"github.com/ginjaninja78/storage-billing/internal/types"
	"github.com/ginjaninja78/storage-billing/internal/xlsxparser"
	"github.com/ginjaninja78/storage-billing/pkg/logger"
)

const (
	day1 = "StockThermoFisher_ST_20240101"
	day2 = "StockThermoFisher_ST_20240102"
)

var periHeader = []any{"PROTOCOLO", "LINEA", "ESTADO STOCK", "CLIENTE", "UBICACIÓN", "SALDO"}

func testContext() context.Context {
	return logger.WithLogger(context.Background(), logger.Nop())
}

func saveRows(t *testing.T, path, sheet string, rows [][]any) {
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

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, f.SaveAs(path))
}

func usd(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

func testCatalog() []types.CatalogService {
	return []types.CatalogService{
		{
			Protocol: "STUDY-001", ProtocolID: "P-1", Service: "Storage Ambient", ServiceID: "S-1",
			PositionType: "Pallet", Currency: "USD", Price: usd("10"), PriceUSD: usd("10"),
		},
		{
			Protocol: "STUDY-002", ProtocolID: "P-2", Service: "Storage Ambient", ServiceID: "S-2",
			PositionType: "Bin", Currency: "USD", Price: usd("1"), PriceUSD: usd("1"),
		},
	}
}

// testConfig lays out a data directory with two PERI extracts, an unreadable
// extract and an unrelated file.
func testConfig(t *testing.T) *config.MainConfig {
	t.Helper()

	root := t.TempDir()
	cfg := config.DefaultMainConfig()
	cfg.DataDir = root
	cfg.DepotReportsDir = filepath.Join(root, "depot_reports")
	cfg.ProcessedReportsDir = filepath.Join(root, "processed_reports")
	cfg.ErrorsOutputPath = filepath.Join(root, "protocols_with_errors.xlsx")
	cfg.MaxValuesOutputPath = filepath.Join(root, "max_values.xlsx")
	cfg.SummaryDir = filepath.Join(root, "logs")
	cfg.ConfigsDir = filepath.Join("..", "..", "configs")
	cfg.MaxConcurrency = 2

	saveRows(t, filepath.Join(cfg.DepotReportsDir, day1+".xlsx"), "", [][]any{
		periHeader,
		{"STUDY-001", "Medicación oral", "LIBERADO", "Acme", "EF-01", 3},
		{"STUDY-001", "Medicación oral", "LIBERADO", "Acme", "EF-02", 1},
		{"STUDY-002", "Medicación oral", "LIBERADO", "Acme", "EF-03", 1},
		{"UNKNOWN-999", "Medicación oral", "LIBERADO", "Acme", "EF-09", 1},
	})
	saveRows(t, filepath.Join(cfg.DepotReportsDir, day2+".xlsx"), "", [][]any{
		periHeader,
		{"STUDY-001", "Medicación oral", "LIBERADO", "Acme", "L-01", 3},
		{"STUDY-001", "Medicación oral", "LIBERADO", "Acme", "L-02", 1},
		{"STUDY-002", "Medicación oral", "LIBERADO", "Acme", "EF-03", 1},
		{"STUDY-002", "Medicación oral", "LIBERADO", "Acme", "EF-04", 1},
		{"UNKNOWN-999", "Medicación oral", "LIBERADO", "Acme", "EF-09", 1},
	})
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DepotReportsDir, "StockThermoFisher_ST_bad.xlsx"), []byte("not a workbook"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DepotReportsDir, "notes.txt"), []byte("x"), 0644))

	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.MainConfig) *Pipeline {
	t.Helper()

	depotCfg, err := config.LoadDepotConfig(filepath.Join(cfg.ConfigsDir, "peri.yaml"))
	require.NoError(t, err)

	p, err := New(cfg, depot.NewReader(depotCfg, nil), testCatalog())
	require.NoError(t, err)
	return p
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg)

	result, err := p.Run(testContext())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "PERI", result.Depot)
	assert.Equal(t, []string{"notes.txt"}, result.SkippedFiles)

	require.Len(t, result.FailedFiles, 1)
	assert.Equal(t, "StockThermoFisher_ST_bad.xlsx", filepath.Base(result.FailedFiles[0].Path))
	assert.Error(t, result.FailedFiles[0].Err)

	require.Len(t, result.Reports, 2)
	assert.Equal(t, day1, result.Reports[0].Name)
	assert.Equal(t, day2, result.Reports[1].Name)
	assert.Len(t, result.ProcessedFiles(), 2)

	first := result.Reports[0]
	assert.Equal(t, 4, first.Inventory)
	require.Len(t, first.Rows, 3)
	assert.Equal(t, 1, first.Failures())
	assert.True(t, first.Rows[0].TotalPrice.Decimal.Equal(decimal.NewFromInt(10)))
	assert.True(t, first.Rows[1].TotalPrice.Decimal.Equal(decimal.NewFromInt(1)))
	require.NotNil(t, first.Rows[2].Failure)
	assert.Equal(t, billing.MsgNoProtocol, first.Rows[2].Failure.Message)

	// The second report repeats the failure; the ledger keeps one entry.
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "UNKNOWN-999", result.Errors[0].Protocol)
	assert.Equal(t, day1, result.Errors[0].FileName)
	assert.Equal(t, []string{"UNKNOWN-999"}, result.Excluded)

	require.Len(t, result.MaxValues, 2)
	assert.Equal(t, "STUDY-001", result.MaxValues[0].Protocol)
	assert.Equal(t, "output_"+day2+".xlsx", result.MaxValues[0].FileName)
	assert.True(t, result.MaxValues[0].TotalPrice.Decimal.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "STUDY-002", result.MaxValues[1].Protocol)
	assert.True(t, result.MaxValues[1].TotalPrice.Decimal.Equal(decimal.NewFromInt(2)))
	require.Len(t, result.MaxTotals, 2)
	assert.True(t, result.MaxTotals["STUDY-001"].Equal(decimal.NewFromInt(20)))
	assert.True(t, result.MaxTotals["STUDY-002"].Equal(decimal.NewFromInt(2)))
}

func TestRun_UsesRunIDFromContext(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg)

	result, err := p.Run(logger.WithRunID(testContext(), "run-42"))
	require.NoError(t, err)
	assert.Equal(t, "run-42", result.RunID)
}

func TestRun_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg)

	ctx, cancel := context.WithCancel(testContext())
	cancel()

	_, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_MissingDepotReportsDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.DepotReportsDir = filepath.Join(cfg.DataDir, "nope")
	p := newTestPipeline(t, cfg)

	_, err := p.Run(testContext())
	assert.Error(t, err)
}

func TestSave(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg)

	stale := filepath.Join(cfg.ProcessedReportsDir, "output_old.xlsx")
	saveRows(t, stale, "", [][]any{{"PROTOCOL"}})

	result, err := p.Run(testContext())
	require.NoError(t, err)
	require.NoError(t, p.Save(testContext(), result))

	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(cfg.ProcessedReportsDir, "output_"+day1+".xlsx"))

	rows, err := report.ReadBillingReport(filepath.Join(cfg.ProcessedReportsDir, "output_"+day2+".xlsx"))
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	protocols, err := report.ReadErrorProtocols(cfg.ErrorsOutputPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"UNKNOWN-999"}, protocols)

	maxTable, err := xlsxparser.Read(cfg.MaxValuesOutputPath, xlsxparser.Options{})
	require.NoError(t, err)
	assert.Len(t, maxTable.Rows, 2)

	summaries, err := filepath.Glob(filepath.Join(cfg.SummaryDir, "billing_summary_*.txt"))
	require.NoError(t, err)
	assert.Len(t, summaries, 1)

	// A clean batch removes the previous error ledger.
	result.Errors = nil
	require.NoError(t, p.Save(testContext(), result))
	assert.NoFileExists(t, cfg.ErrorsOutputPath)
}

func TestSummary(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg)

	result, err := p.Run(testContext())
	require.NoError(t, err)

	summary := Summary(result, true)
	assert.True(t, summary.DryRun)
	require.Len(t, summary.ProcessedFiles, 2)
	assert.Equal(t, "output_"+day1+".xlsx", summary.ProcessedFiles[0].OutputFile)
	assert.Equal(t, 1, summary.ProcessedFiles[0].Failures)
	assert.True(t, summary.ProcessedFiles[0].Total.Equal(decimal.NewFromInt(11)))
	assert.Len(t, summary.FailedFilesList, 1)
	assert.Equal(t, 1, summary.ErrorEntries)
	assert.Equal(t, 2, summary.MaxProtocols)
	assert.True(t, summary.MaxTotal.Equal(decimal.NewFromInt(22)))
}

func TestRecomputeMax(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg)

	result, err := p.Run(testContext())
	require.NoError(t, err)

	var paths []string
	for _, rep := range result.Reports {
		path := filepath.Join(dir, "output_"+rep.Name+".xlsx")
		require.NoError(t, report.WriteBillingReport(path, rep.Rows, report.Properties{}))
		paths = append(paths, path)
	}

	entries, err := RecomputeMax(testContext(), paths, []string{"STUDY-002"})
	require.NoError(t, err)

	// UNKNOWN-999 bills nothing in either report, so the first one is kept.
	// STUDY-001 moves behind it when the second report replaces its rows.
	require.Len(t, entries, 2)
	assert.Equal(t, "UNKNOWN-999", entries[0].Protocol)
	assert.Equal(t, "output_"+day1+".xlsx", entries[0].FileName)
	assert.Equal(t, "STUDY-001", entries[1].Protocol)
	assert.Equal(t, "output_"+day2+".xlsx", entries[1].FileName)
}

func TestRecomputeMax_BadReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output_bad.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0644))

	_, err := RecomputeMax(testContext(), []string{path}, nil)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	cfg := testConfig(t)
	configs := filepath.Join(cfg.DataDir, "configs")

	peri, err := os.ReadFile(filepath.Join("..", "..", "configs", "peri.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(configs, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configs, "peri.yaml"), peri, 0644))
	cfg.ConfigsDir = configs

	cfg.ExchangeRatePath = filepath.Join(configs, "exchanges_rate.xlsx")
	saveRows(t, cfg.ExchangeRatePath, "", [][]any{
		{"Currency", "Exchange Rate"},
		{"USD", 1},
	})

	cfg.ServiceConfigPath = filepath.Join(configs, "Services - Configuration.xlsx")
	saveRows(t, cfg.ServiceConfigPath, "", [][]any{
		{"Services - Configuration"},
		{"Protocol", "Protocol\nID", "Service", "Service\nID", "Service\nStatus", "Have \nPrice / Contract", "Currency", "Country"},
		{"STUDY-001", "P-1", "Storage Ambient (per Pallet)", "S-1", "Active", 10, "USD", "Chile"},
	})

	cfg.ProtocolRenamingPath = filepath.Join(configs, "protocols_renaming.xlsx")
	saveRows(t, cfg.ProtocolRenamingPath, "PERI", [][]any{
		{"Depot", "FisherBook"},
		{"UNKNOWN-999", "STUDY-001"},
	})

	p, err := Load(testContext(), cfg, "peri")
	require.NoError(t, err)
	assert.Equal(t, "PERI", p.Depot())
	require.Len(t, p.Catalog(), 1)

	result, err := p.Run(testContext())
	require.NoError(t, err)

	// UNKNOWN-999 is renamed into STUDY-001 and STUDY-002 is close enough
	// to match it, so every group bills.
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Excluded)
	require.Len(t, result.Reports[0].Rows, 2)
	assert.Equal(t, "STUDY-001", result.Reports[0].Rows[0].Protocol)
	assert.Equal(t, int64(5), result.Reports[0].Rows[0].AmountOfKits)
}

func TestLoad_UnknownDepot(t *testing.T) {
	cfg := testConfig(t)

	_, err := Load(testContext(), cfg, "NOWHERE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOWHERE")
}

func TestLoad_MissingRenamingIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProtocolRenamingPath = filepath.Join(cfg.DataDir, "missing.xlsx")
	cfg.ExchangeRatePath = filepath.Join(cfg.DataDir, "rates.xlsx")
	saveRows(t, cfg.ExchangeRatePath, "", [][]any{{"Currency", "Exchange Rate"}, {"USD", 1}})
	cfg.ServiceConfigPath = filepath.Join(cfg.DataDir, "services.xlsx")
	saveRows(t, cfg.ServiceConfigPath, "", [][]any{
		{"title"},
		{"Protocol", "Protocol\nID", "Service", "Service\nID", "Service\nStatus", "Have \nPrice / Contract", "Currency", "Country"},
	})

	p, err := Load(testContext(), cfg, "PERI")
	require.NoError(t, err)
	assert.Empty(t, p.Catalog())
}
