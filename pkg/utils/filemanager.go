// =============================================================================
// Storage Billing - File Manager Utility
// =============================================================================
//
// This module provides utility functions for file management: discovering
// depot extracts, clearing stale billing reports, and writing the plain-text
// summary of a batch run.
//
// DIRECTORY STRUCTURE:
//   data/
//   ├── depot_reports/       (depot stock extracts)
//   ├── processed_reports/   (output_<name>.xlsx per billed extract)
//   ├── logs/                (billing_summary_*.txt)
//   ├── protocols_with_errors.xlsx
//   └── max_values.xlsx
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OutputPattern matches the billing reports of a batch.
const OutputPattern = "output_*.xlsx"

// =============================================================================
// FILE MANAGER STRUCTURE
// =============================================================================

// FileManager handles the batch directories.
type FileManager struct {
	// DepotReportsDir is scanned for depot extracts.
	DepotReportsDir string

	// ProcessedReportsDir receives the billing reports.
	ProcessedReportsDir string

	// SummaryDir receives the run summaries. Empty disables them.
	SummaryDir string
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(depotReportsDir, processedReportsDir, summaryDir string) *FileManager {
	return &FileManager{
		DepotReportsDir:     depotReportsDir,
		ProcessedReportsDir: processedReportsDir,
		SummaryDir:          summaryDir,
	}
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates the output directories if they don't exist.
// The depot reports directory is an input and must already exist.
//
// RETURNS:
//   - An error if any directory cannot be created.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.ProcessedReportsDir, fm.SummaryDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverDepotFiles lists the regular files of the depot reports directory
// and splits them by match.
//
// PARAMETERS:
//   - match: Reports whether a file name belongs to the depot.
//
// RETURNS:
//   - The matching file paths, sorted by name.
//   - The names of the non-matching files, sorted.
//   - An error if the directory cannot be read.
func (fm *FileManager) DiscoverDepotFiles(match func(name string) bool) (matched, skipped []string, err error) {
	entries, err := os.ReadDir(fm.DepotReportsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan depot reports directory: %w", err)
	}

	// os.ReadDir returns entries sorted by file name.
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if match(name) {
			matched = append(matched, filepath.Join(fm.DepotReportsDir, name))
		} else {
			skipped = append(skipped, name)
		}
	}

	return matched, skipped, nil
}

// DiscoverReports lists the billing reports of the processed reports
// directory, sorted by name.
func (fm *FileManager) DiscoverReports() ([]string, error) {
	return DiscoverReports(fm.ProcessedReportsDir)
}

// DiscoverReports lists the output_*.xlsx files of dir, sorted by name.
func DiscoverReports(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, OutputPattern))
	if err != nil {
		return nil, fmt.Errorf("failed to scan reports directory: %w", err)
	}

	var result []string
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil || info.IsDir() {
			continue
		}
		result = append(result, file)
	}
	sort.Strings(result)

	return result, nil
}

// RemoveStaleOutputs deletes every billing report left by a previous run.
//
// RETURNS:
//   - The number of files removed.
//   - An error naming the first file that could not be removed.
func (fm *FileManager) RemoveStaleOutputs() (int, error) {
	files, err := fm.DiscoverReports()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", file, err)
		}
		removed++
	}

	return removed, nil
}

// ReportName returns the name a depot extract is billed under: its file
// name without extension.
func ReportName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about a batch run.
type ProcessingSummary struct {
	RunID     string
	Depot     string
	DryRun    bool
	StartTime time.Time
	EndTime   time.Time

	ProcessedFiles  []ProcessedFileInfo
	SkippedFiles    []string
	FailedFilesList []FailedFileInfo

	// ErrorEntries is the size of the deduplicated error ledger.
	ErrorEntries int

	// ErrorProtocols is the number of protocols excluded from the max ledger.
	ErrorProtocols int

	// MaxProtocols is the number of protocols held in the max ledger.
	MaxProtocols int

	// MaxTotal is the billed total of the max ledger.
	MaxTotal decimal.Decimal
}

// ProcessedFileInfo contains information about a billed depot extract.
type ProcessedFileInfo struct {
	InputFile  string
	OutputFile string
	Rows       int
	Groups     int
	Failures   int
	Total      decimal.Decimal
}

// FailedFileInfo contains information about an extract that could not be read.
type FailedFileInfo struct {
	InputFile    string
	ErrorMessage string
}

// WriteSummaryLog writes a processing summary to a log file.
//
// PARAMETERS:
//   - summary: The processing summary.
//   - outputDir: The directory to write the summary file.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create summary directory: %w", err)
	}

	timestamp := summary.StartTime.Format("20060102_150405")
	summaryFileName := fmt.Sprintf("billing_summary_%s.txt", timestamp)
	if id := summary.RunID; id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		summaryFileName = fmt.Sprintf("billing_summary_%s_%s.txt", timestamp, id)
	}
	summaryPath := filepath.Join(outputDir, summaryFileName)

	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	mode := "write"
	if summary.DryRun {
		mode = "dry run"
	}

	duration := summary.EndTime.Sub(summary.StartTime)
	fmt.Fprintf(writer, "Storage Billing - Processing Summary\n"+
		"================================================================================\n\n"+
		"Run Information:\n"+
		"  Run ID:         %s\n"+
		"  Depot:          %s\n"+
		"  Mode:           %s\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n\n"+
		"Statistics:\n"+
		"  Processed Files:    %d\n"+
		"  Skipped Files:      %d\n"+
		"  Failed Files:       %d\n"+
		"  Error Entries:      %d\n"+
		"  Error Protocols:    %d\n"+
		"  Max Protocols:      %d\n"+
		"  Max Total (USD):    %s\n\n",
		summary.RunID,
		summary.Depot,
		mode,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		duration.String(),
		len(summary.ProcessedFiles),
		len(summary.SkippedFiles),
		len(summary.FailedFilesList),
		summary.ErrorEntries,
		summary.ErrorProtocols,
		summary.MaxProtocols,
		summary.MaxTotal.StringFixed(2))

	if len(summary.ProcessedFiles) > 0 {
		writer.WriteString("Processed Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, pf := range summary.ProcessedFiles {
			fmt.Fprintf(writer, "  Input:        %s\n", pf.InputFile)
			fmt.Fprintf(writer, "  Output:       %s\n", pf.OutputFile)
			fmt.Fprintf(writer, "  Rows:         %d\n", pf.Rows)
			fmt.Fprintf(writer, "  Groups:       %d\n", pf.Groups)
			fmt.Fprintf(writer, "  Failures:     %d\n", pf.Failures)
			fmt.Fprintf(writer, "  Total (USD):  %s\n\n", pf.Total.StringFixed(2))
		}
	}

	if len(summary.SkippedFiles) > 0 {
		writer.WriteString("Skipped Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, name := range summary.SkippedFiles {
			fmt.Fprintf(writer, "  %s\n", name)
		}
		writer.WriteString("\n")
	}

	if len(summary.FailedFilesList) > 0 {
		writer.WriteString("Failed Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, ff := range summary.FailedFilesList {
			fmt.Fprintf(writer, "  File:  %s\n", ff.InputFile)
			fmt.Fprintf(writer, "  Error: %s\n\n", ff.ErrorMessage)
		}
	}

	writer.WriteString("================================================================================\n" +
		"End of Summary\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}

	return summaryPath, nil
}
