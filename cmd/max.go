// =============================================================================
// Storage Billing - Max Command
// =============================================================================
//
// This file defines the 'max' command, which rebuilds the max ledger from
// billing reports already on disk, for instance after a report was edited or
// removed by hand.
//
// COMMAND USAGE:
//   storage-billing max [flags]
//
// FLAGS:
//   --reports : Directory holding the output_*.xlsx reports
//               (default: processed_reports_dir)
//   --errors  : Protocols to exclude: an error ledger workbook or a .txt file
//               with one protocol per line (default: errors_output_path;
//               a missing default file excludes nothing)
//   --output  : Max values workbook to write (default: max_values_output_path)
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/storage-billing/internal/pipeline"
	"github.com/ginjaninja78/storage-billing/internal/report"
	"github.com/ginjaninja78/storage-billing/pkg/logger"
	"github.com/ginjaninja78/storage-billing/pkg/utils"
)

var (
	maxReportsDir string
	maxErrorsPath string
	maxOutputPath string
)

var maxCmd = &cobra.Command{
	Use:   "max",
	Short: "Rebuild the max values workbook from saved billing reports",
	Long: `The max command reads every output_*.xlsx report in name order and
keeps, per protocol, the rows of the report with the highest total price.
Protocols listed in the error file are left out.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runMax(cmd)
	},
}

func init() {
	rootCmd.AddCommand(maxCmd)

	maxCmd.Flags().StringVar(&maxReportsDir, "reports", "", "Directory holding the output_*.xlsx reports")
	maxCmd.Flags().StringVar(&maxErrorsPath, "errors", "", "Error ledger (.xlsx) or protocol list (.txt) to exclude")
	maxCmd.Flags().StringVar(&maxOutputPath, "output", "", "Max values workbook to write")
}

func runMax(cmd *cobra.Command) error {
	mainConfig, ctx, sync, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer sync()

	reportsDir := mainConfig.ProcessedReportsDir
	if maxReportsDir != "" {
		reportsDir = maxReportsDir
	}
	outputPath := mainConfig.MaxValuesOutputPath
	if maxOutputPath != "" {
		outputPath = maxOutputPath
	}

	var exclude []string
	switch {
	case maxErrorsPath != "":
		if exclude, err = report.ReadErrorProtocols(maxErrorsPath); err != nil {
			return fmt.Errorf("failed to read error protocols: %w", err)
		}
	case utils.FileExists(mainConfig.ErrorsOutputPath):
		if exclude, err = report.ReadErrorProtocols(mainConfig.ErrorsOutputPath); err != nil {
			return fmt.Errorf("failed to read error protocols: %w", err)
		}
	}

	reports, err := utils.DiscoverReports(reportsDir)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Printf("No billing reports found in %s\n", reportsDir)
		return nil
	}

	ctx = logger.WithRunID(ctx, uuid.NewString())
	entries, err := pipeline.RecomputeMax(ctx, reports, exclude)
	if err != nil {
		return err
	}

	if err := report.WriteMaxValues(outputPath, entries, report.Properties{RunID: logger.RunID(ctx)}); err != nil {
		return err
	}

	fmt.Printf("Reports:            %d\n", len(reports))
	fmt.Printf("Excluded protocols: %d\n", len(exclude))
	fmt.Printf("Max rows:           %d\n", len(entries))
	fmt.Printf("Written to:         %s\n", outputPath)
	return nil
}
