// =============================================================================
// Storage Billing - Validate Command
// =============================================================================
//
// This file defines the 'validate' command, which loads every input a batch
// depends on without billing anything.
//
// COMMAND USAGE:
//   storage-billing validate [--depot PERI]
//
// CHECKS:
//   1. Main configuration parses and validates
//   2. Every depot configuration parses and validates
//   3. The selected depot exists, its renaming sheet, the exchange rates and
//      the service catalog can be read
//   4. The depot reports directory can be scanned
//
// =============================================================================

package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/storage-billing/internal/config"
	"github.com/ginjaninja78/storage-billing/internal/depot"
	"github.com/ginjaninja78/storage-billing/internal/matching"
	"github.com/ginjaninja78/storage-billing/internal/pipeline"
	"github.com/ginjaninja78/storage-billing/pkg/utils"
)

var validateDepot string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration, depot configs and the service catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateDepot, "depot", "PERI", "Depot to validate")
}

func runValidate(cmd *cobra.Command) error {
	mainConfig, ctx, sync, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer sync()

	fmt.Println("Main configuration:  OK")

	depots, err := config.LoadDepotConfigs(mainConfig.ConfigsDir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(depots))
	for _, d := range depots {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	fmt.Printf("Depot configurations: %d %v\n", len(depots), names)

	p, err := pipeline.Load(ctx, mainConfig, validateDepot)
	if err != nil {
		return err
	}

	protocols := matching.NewProtocolResolver(p.Catalog(), mainConfig.Matcher())
	fmt.Printf("Catalog services:    %d (%d protocols)\n", len(p.Catalog()), protocols.Candidates())

	if utils.FileExists(mainConfig.ProtocolRenamingPath) {
		renaming, err := depot.LoadRenaming(mainConfig.ProtocolRenamingPath, depots[config.DepotKey(validateDepot)].RenamingSheet)
		if err != nil {
			fmt.Printf("Protocol renaming:   unavailable (%v)\n", err)
		} else {
			fmt.Printf("Protocol renaming:   %d entries\n", len(renaming))
		}
	} else {
		fmt.Println("Protocol renaming:   none")
	}

	files := utils.NewFileManager(mainConfig.DepotReportsDir, "", "")
	matched, skipped, err := files.DiscoverDepotFiles(depot.NewReader(depots[config.DepotKey(validateDepot)], nil).Matches)
	if err != nil {
		return err
	}
	fmt.Printf("Depot extracts:      %d (%d other files)\n", len(matched), len(skipped))

	fmt.Println("\nConfiguration is valid.")
	return nil
}
