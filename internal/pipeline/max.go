// =============================================================================
// Storage Billing - Max Recompute
// =============================================================================
//
// Rebuilds the max ledger offline from billing reports already written,
// without re-reading the depot extracts.
//
// =============================================================================

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ginjaninja78/storage-billing/internal/aggregate"
	"github.com/ginjaninja78/storage-billing/internal/report"
	"github.com/ginjaninja78/storage-billing/internal/types"
	"github.com/ginjaninja78/storage-billing/pkg/logger"
)

// RecomputeMax rebuilds the max ledger from billing reports already on disk.
//
// PARAMETERS:
//   - reports: Billing report workbooks, applied in the given order. Each is
//     labelled by its file name.
//   - exclude: Protocols kept out of the ledger.
//
// RETURNS:
//   - The max ledger.
//   - An error naming the first report that cannot be read.
func RecomputeMax(ctx context.Context, reports []string, exclude []string) ([]types.MaxEntry, error) {
	log := logger.FromContext(ctx).WithComponent("max")

	agg := aggregate.NewMaxAggregator(exclude)
	for _, path := range reports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := report.ReadBillingReport(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read report %s: %w", path, err)
		}

		replaced := agg.Apply(rows, filepath.Base(path))
		log.Debugw("Applied report", "file", filepath.Base(path), "rows", len(rows), "replaced", len(replaced))
	}

	log.Infow("Recomputed max values", "reports", len(reports), "excluded", len(exclude), "protocols", agg.Len())
	return agg.Result(), nil
}
