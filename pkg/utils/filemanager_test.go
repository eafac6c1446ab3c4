package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestDiscoverDepotFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "StockThermoFisher_ST_2.xlsx"))
	touch(t, filepath.Join(dir, "StockThermoFisher_ST_1.xlsx"))
	touch(t, filepath.Join(dir, "notes.txt"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "StockThermoFisher_ST_dir.xlsx"), 0755))

	fm := NewFileManager(dir, "", "")
	matched, skipped, err := fm.DiscoverDepotFiles(func(name string) bool {
		return strings.HasPrefix(name, "StockThermoFisher_ST_") && strings.HasSuffix(name, ".xlsx")
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "StockThermoFisher_ST_1.xlsx"),
		filepath.Join(dir, "StockThermoFisher_ST_2.xlsx"),
	}, matched)
	assert.Equal(t, []string{"notes.txt"}, skipped)
}

func TestDiscoverDepotFiles_MissingDir(t *testing.T) {
	fm := NewFileManager(filepath.Join(t.TempDir(), "nope"), "", "")
	_, _, err := fm.DiscoverDepotFiles(func(string) bool { return true })
	assert.Error(t, err)
}

func TestRemoveStaleOutputs(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "output_a.xlsx"))
	touch(t, filepath.Join(dir, "output_b.xlsx"))
	touch(t, filepath.Join(dir, "keep.xlsx"))

	fm := NewFileManager("", dir, "")

	reports, err := fm.DiscoverReports()
	require.NoError(t, err)
	assert.Len(t, reports, 2)

	removed, err := fm.RemoveStaleOutputs()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.False(t, FileExists(filepath.Join(dir, "output_a.xlsx")))
	assert.True(t, FileExists(filepath.Join(dir, "keep.xlsx")))
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	fm := NewFileManager("", filepath.Join(root, "processed"), filepath.Join(root, "logs"))

	require.NoError(t, fm.EnsureDirectories())
	assert.DirExists(t, fm.ProcessedReportsDir)
	assert.DirExists(t, fm.SummaryDir)
}

func TestReportName(t *testing.T) {
	assert.Equal(t, "StockThermoFisher_ST_20240105", ReportName("/data/StockThermoFisher_ST_20240105.xlsx"))
	assert.Equal(t, "plain", ReportName("plain"))
}

func TestWriteSummaryLog(t *testing.T) {
	start := time.Date(2024, 1, 5, 8, 30, 0, 0, time.UTC)
	summary := ProcessingSummary{
		RunID:     "0123456789abcdef",
		Depot:     "PERI",
		StartTime: start,
		EndTime:   start.Add(2 * time.Second),
		ProcessedFiles: []ProcessedFileInfo{{
			InputFile:  "StockThermoFisher_ST_1.xlsx",
			OutputFile: "output_StockThermoFisher_ST_1.xlsx",
			Rows:       10,
			Groups:     3,
			Failures:   1,
			Total:      decimal.RequireFromString("12.5"),
		}},
		SkippedFiles:    []string{"notes.txt"},
		FailedFilesList: []FailedFileInfo{{InputFile: "bad.xlsx", ErrorMessage: "boom"}},
		ErrorEntries:    1,
		MaxTotal:        decimal.RequireFromString("12.5"),
	}

	dir := filepath.Join(t.TempDir(), "logs")
	path, err := WriteSummaryLog(summary, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "billing_summary_20240105_083000_01234567.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "Depot:          PERI")
	assert.Contains(t, text, "Total (USD):  12.50")
	assert.Contains(t, text, "  notes.txt")
	assert.Contains(t, text, "Error: boom")
	assert.True(t, strings.HasSuffix(text, "End of Summary\n"))
}
