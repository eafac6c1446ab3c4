// =============================================================================
// Storage Billing - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (storage-billing)
//   ├── processCmd  (storage-billing process)
//   ├── maxCmd      (storage-billing max)
//   ├── validateCmd (storage-billing validate)
//   └── versionCmd  (storage-billing version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Loading the main configuration
//   3. Setting up logging
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/storage-billing/internal/config"
	"github.com/ginjaninja78/storage-billing/pkg/logger"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
// This can be overridden using the --config flag.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "storage-billing",
	Short: "Storage Billing - Price depot inventory against the service catalog",
	Long: `Storage Billing reads depot stock extracts, prices every inventory group
against the sponsor service catalog, and keeps, per protocol, the report in
which the protocol billed the most.

Key Features:
  - Fuzzy protocol and service matching against the catalog
  - Storage-unit conversion (Pallet, Shelf, Bin) with configurable rates
  - Deduplicated error ledger of everything that could not be billed
  - Max ledger across a batch of daily reports
  - Depot-specific normalization rules in YAML

Example Usage:
  storage-billing process                    # Bill every PERI extract
  storage-billing process --depot PERI --dry-run
  storage-billing max                        # Rebuild max_values.xlsx from saved reports
  storage-billing validate                   # Check configuration and catalog`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// An interrupt cancels the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// loadConfig loads the main configuration and builds the logger.
//
// A missing default config.yaml is not an error: the built-in defaults and
// environment overrides apply. A missing file named with --config is.
//
// RETURNS:
//   - The main configuration.
//   - A context carrying the logger.
//   - A function that flushes the logger.
//   - An error if the configuration is invalid or the logger cannot be built.
func loadConfig(cmd *cobra.Command) (*config.MainConfig, context.Context, func(), error) {
	mainConfig, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, nil, nil, fmt.Errorf("failed to load main config: %w", err)
		}
		if mainConfig, err = config.ParseMainConfig(nil); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load default config: %w", err)
		}
	}

	logCfg := logger.Config{
		Level:       mainConfig.LogLevel,
		Development: mainConfig.LogDevelopment,
		OutputPaths: []string{"stderr"},
	}
	if verbose {
		logCfg.Level = "debug"
	}
	if mainConfig.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(mainConfig.LogFile), 0755); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logCfg.OutputPaths = append(logCfg.OutputPaths, mainConfig.LogFile)
	}

	log, err := logger.New(logCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	ctx := logger.WithLogger(cmd.Context(), log)
	return mainConfig, ctx, func() { _ = log.Sync() }, nil
}
