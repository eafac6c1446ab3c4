// =============================================================================
// Storage Billing - Main Entry Point
// =============================================================================
//
// USAGE:
//   storage-billing process    - Bill every depot extract and write the outputs
//   storage-billing max        - Rebuild max_values.xlsx from saved reports
//   storage-billing validate   - Validate configuration and catalog
//   storage-billing version    - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : Billing logic, readers and writers
//   - pkg/       : Logging and file utilities
//   - configs/   : Depot-specific YAML configurations
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/storage-billing/cmd"
)

func main() {
	cmd.Execute()
}
