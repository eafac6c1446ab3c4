// =============================================================================
// Storage Billing - Process Command
// =============================================================================
//
// This file defines the 'process' command, which bills every extract of one
// depot and writes the batch outputs.
//
// COMMAND USAGE:
//   storage-billing process [flags]
//
// FLAGS:
//   --depot    : Depot whose extracts are billed (default PERI)
//   --dry-run  : Bill and report without writing any output file
//
// PROCESSING PIPELINE:
//   1. Load configuration, depot config, exchange rates and catalog
//   2. Discover the depot's extracts in the depot reports directory
//   3. Read the extracts concurrently
//   4. Bill each extract, collecting the error ledger
//   5. Build the max ledger, excluding protocols with errors
//   6. Write billing reports, error ledger, max values and summary
//
// =============================================================================

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/storage-billing/internal/pipeline"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// depotName selects the depot configuration.
var depotName string

// dryRun bills without writing output files.
var dryRun bool

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Bill depot extracts against the service catalog",
	Long: `The process command scans the depot reports directory for the depot's
extracts, prices every inventory group against the service catalog and
writes the batch outputs.

Files that do not match the depot's naming pattern are skipped. An extract
that cannot be read is reported and the batch continues with the rest.

Outputs:
  - processed_reports/output_<extract>.xlsx, one per billed extract
    (previous output_*.xlsx files are removed first)
  - protocols_with_errors.xlsx, when anything could not be billed
  - max_values.xlsx, the best report per protocol
  - logs/billing_summary_*.txt`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(
		&depotName,
		"depot",
		"PERI",
		"Depot whose extracts are billed",
	)

	processCmd.Flags().BoolVar(
		&dryRun,
		"dry-run",
		false,
		"Bill and report without writing output files",
	)
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runProcess(cmd *cobra.Command) error {
	mainConfig, ctx, sync, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer sync()

	fmt.Println("=== Storage Billing ===")
	fmt.Printf("Depot: %s\n", depotName)

	p, err := pipeline.Load(ctx, mainConfig, depotName)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d catalog service(s)\n", len(p.Catalog()))

	result, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	for _, rep := range result.Reports {
		fmt.Printf("  ✓ %s (%d groups, %d failed)\n", filepath.Base(rep.Source), len(rep.Rows), rep.Failures())
	}
	for _, ff := range result.FailedFiles {
		fmt.Printf("  ✗ %s: %v\n", filepath.Base(ff.Path), ff.Err)
	}

	summary := pipeline.Summary(result, dryRun)

	fmt.Println("\n=== Processing Complete ===")
	fmt.Printf("Run ID:          %s\n", result.RunID)
	fmt.Printf("Processed:       %d\n", len(result.ProcessedFiles()))
	fmt.Printf("Skipped:         %d\n", len(result.SkippedFiles))
	fmt.Printf("Failed:          %d\n", len(result.FailedFiles))
	fmt.Printf("Error entries:   %d\n", len(result.Errors))
	fmt.Printf("Max protocols:   %d\n", summary.MaxProtocols)
	fmt.Printf("Max total (USD): %s\n", summary.MaxTotal.StringFixed(2))
	fmt.Printf("Time elapsed:    %s\n", result.EndTime.Sub(result.StartTime))

	if dryRun {
		fmt.Println("\nDry run: no files were written.")
		return nil
	}

	if err := p.Save(ctx, result); err != nil {
		return fmt.Errorf("failed to save outputs: %w", err)
	}
	fmt.Printf("\nReports written to %s\n", mainConfig.ProcessedReportsDir)

	if len(result.FailedFiles) > 0 {
		return fmt.Errorf("%d extract(s) could not be read", len(result.FailedFiles))
	}
	return nil
}
