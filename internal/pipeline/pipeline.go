// =============================================================================
// Storage Billing - Pipeline Module
// =============================================================================
//
// This module orchestrates one billing batch for one depot, from the depot
// extracts to the billing reports, the error ledger and the max ledger.
//
// BATCH PIPELINE:
//   1. Discover the depot's extracts (other files are skipped)
//   2. Read and normalize every extract
//   3. Group each extract's inventory and bill it
//   4. Derive the exclusion set from the error ledger
//   5. Reduce the billing reports into the max ledger
//   6. Save: billing reports, error ledger, max ledger, summary log
//
// CONCURRENCY:
//   Extracts are read concurrently, bounded by max_concurrency. Billing and
//   aggregation run on a single goroutine in file-name order with one
//   calculator, so every report shares the same resolver caches and error
//   ledger, and the max ledger does not depend on scheduling.
//
// =============================================================================

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ginjaninja78/storage-billing/internal/aggregate"
	"github.com/ginjaninja78/storage-billing/internal/billing"
	"github.com/ginjaninja78/storage-billing/internal/catalog"
	"github.com/ginjaninja78/storage-billing/internal/config"
	"github.com/ginjaninja78/storage-billing/internal/conversion"
	"github.com/ginjaninja78/storage-billing/internal/depot"
	"github.com/ginjaninja78/storage-billing/internal/matching"
	"github.com/ginjaninja78/storage-billing/internal/report"
	"github.com/ginjaninja78/storage-billing/internal/types"
	"github.com/ginjaninja78/storage-billing/pkg/logger"
	"github.com/ginjaninja78/storage-billing/pkg/utils"
)

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Report is the billing report of one depot extract.
type Report struct {
	// Name is the extract's file name without extension. The report is
	// saved as output_<Name>.xlsx.
	Name string

	// Source is the path of the extract.
	Source string

	// Inventory is the number of normalized inventory rows.
	Inventory int

	// Rows holds one BillingRow per inventory group.
	Rows []types.BillingRow
}

// Failures returns the number of rows that could not be billed.
func (r Report) Failures() int {
	n := 0
	for _, row := range r.Rows {
		if !row.Priced() {
			n++
		}
	}
	return n
}

// FailedFile is an extract that could not be read.
type FailedFile struct {
	Path string
	Err  error
}

// Result represents the outcome of one batch.
type Result struct {
	// RunID identifies the batch in logs, workbooks and the summary.
	RunID string

	// Depot is the depot name.
	Depot string

	StartTime time.Time
	EndTime   time.Time

	// Reports holds the billing reports in file-name order.
	Reports []Report

	// Errors is the deduplicated error ledger.
	Errors []types.ErrorEntry

	// Excluded lists the protocols kept out of the max ledger.
	Excluded []string

	// MaxValues is the max ledger.
	MaxValues []types.MaxEntry

	// MaxTotals holds the winning total per protocol of the max ledger.
	MaxTotals map[string]decimal.Decimal

	// SkippedFiles lists files of the depot reports directory that are not
	// extracts of this depot.
	SkippedFiles []string

	// FailedFiles lists extracts that could not be read.
	FailedFiles []FailedFile
}

// ProcessedFiles returns the paths of the billed extracts.
func (r *Result) ProcessedFiles() []string {
	files := make([]string, len(r.Reports))
	for i, rep := range r.Reports {
		files[i] = rep.Source
	}
	return files
}

// =============================================================================
// PIPELINE STRUCTURE
// =============================================================================

// Pipeline runs billing batches for one depot.
type Pipeline struct {
	cfg     *config.MainConfig
	reader  *depot.Reader
	catalog []types.CatalogService
	matrix  *conversion.Matrix
	matcher matching.Matcher
	files   *utils.FileManager
}

// New creates a pipeline over an already loaded catalog.
//
// PARAMETERS:
//   - cfg: The main configuration.
//   - reader: The depot reader.
//   - services: The filtered service catalog.
//
// RETURNS:
//   - A new Pipeline.
//   - An error if the configured conversion table is invalid.
func New(cfg *config.MainConfig, reader *depot.Reader, services []types.CatalogService) (*Pipeline, error) {
	matrix, err := cfg.Matrix()
	if err != nil {
		return nil, fmt.Errorf("invalid conversion table: %w", err)
	}

	return &Pipeline{
		cfg:     cfg,
		reader:  reader,
		catalog: services,
		matrix:  matrix,
		matcher: cfg.Matcher(),
		files:   utils.NewFileManager(cfg.DepotReportsDir, cfg.ProcessedReportsDir, cfg.SummaryDir),
	}, nil
}

// Load reads everything a batch for depotName needs: the depot
// configuration, its protocol renaming table, the exchange rates and the
// service catalog.
//
// A missing or unreadable renaming workbook disables renaming with a warning.
func Load(ctx context.Context, cfg *config.MainConfig, depotName string) (*Pipeline, error) {
	log := logger.FromContext(ctx).WithComponent("pipeline")

	depots, err := config.LoadDepotConfigs(cfg.ConfigsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load depot configs: %w", err)
	}
	depotCfg, ok := depots[config.DepotKey(depotName)]
	if !ok {
		return nil, fmt.Errorf("no configuration for depot %q in %s", depotName, cfg.ConfigsDir)
	}

	renaming := map[string]string{}
	if cfg.ProtocolRenamingPath != "" {
		loaded, err := depot.LoadRenaming(cfg.ProtocolRenamingPath, depotCfg.RenamingSheet)
		if err != nil {
			log.Warnw("Protocol renaming disabled", "path", cfg.ProtocolRenamingPath, "error", err)
		} else {
			renaming = loaded
			log.Debugw("Loaded protocol renaming", "entries", len(renaming))
		}
	}

	rates, err := catalog.ReadExchangeRates(cfg.ExchangeRatePath, cfg.Catalog.ExchangeRateSheet)
	if err != nil {
		return nil, err
	}

	services, err := catalog.Read(cfg.ServiceConfigPath, catalog.Options{
		Sheet:        cfg.Catalog.Sheet,
		HeaderRow:    cfg.Catalog.HeaderRow,
		Country:      cfg.Catalog.Country,
		ActiveStatus: cfg.Catalog.ActiveStatus,
		Renames:      cfg.Catalog.ColumnRenames,
	}, rates)
	if err != nil {
		return nil, err
	}
	log.Infow("Loaded service catalog", "services", len(services), "currencies", len(rates))

	return New(cfg, depot.NewReader(depotCfg, renaming), services)
}

// Depot returns the depot name.
func (p *Pipeline) Depot() string {
	return p.reader.Name()
}

// Catalog returns the service catalog.
func (p *Pipeline) Catalog() []types.CatalogService {
	return p.catalog
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

type parsedFile struct {
	rows []types.InventoryRow
	err  error
}

// Run bills every extract of the depot and builds the error and max
// ledgers. Nothing is written; see Save.
//
// The run ID is taken from ctx (logger.WithRunID) or generated.
//
// RETURNS:
//   - The batch result. Extracts that cannot be read are recorded in
//     FailedFiles and do not stop the batch.
//   - An error if the depot reports directory cannot be scanned or ctx is
//     cancelled.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	runID := logger.RunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logger.WithRunID(ctx, runID)
	}
	log := logger.FromContext(ctx).WithComponent("pipeline").With("depot", p.Depot())

	result := &Result{
		RunID:     runID,
		Depot:     p.Depot(),
		StartTime: time.Now(),
	}

	// =========================================================================
	// STEP 1: DISCOVER EXTRACTS
	// =========================================================================

	files, skipped, err := p.files.DiscoverDepotFiles(p.reader.Matches)
	if err != nil {
		return nil, err
	}
	result.SkippedFiles = skipped
	for _, name := range skipped {
		log.Debugw("Skipping file", "file", name)
	}
	log.Infow("Discovered depot extracts", "files", len(files), "skipped", len(skipped))

	// =========================================================================
	// STEP 2: READ EXTRACTS CONCURRENTLY
	// =========================================================================

	parsed := make([]parsedFile, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows, err := p.reader.ReadFile(path)
			parsed[i] = parsedFile{rows: rows, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// =========================================================================
	// STEP 3: BILL SEQUENTIALLY
	// =========================================================================

	calc := billing.NewCalculator(p.catalog, p.matrix, p.matcher)

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if parsed[i].err != nil {
			log.Errorw("Failed to read extract", "file", filepath.Base(path), "error", parsed[i].err)
			result.FailedFiles = append(result.FailedFiles, FailedFile{Path: path, Err: parsed[i].err})
			continue
		}

		name := utils.ReportName(path)
		rep := Report{
			Name:      name,
			Source:    path,
			Inventory: len(parsed[i].rows),
			Rows:      calc.CalculateInventory(parsed[i].rows, name),
		}
		result.Reports = append(result.Reports, rep)

		log.Infow("Billed extract",
			"file", filepath.Base(path),
			"rows", rep.Inventory,
			"groups", len(rep.Rows),
			"errors", rep.Failures())
	}

	// =========================================================================
	// STEP 4: ERROR AND MAX LEDGERS
	// =========================================================================

	result.Errors = calc.Ledger().Entries()
	result.Excluded = calc.Ledger().Protocols()

	agg := aggregate.NewMaxAggregator(result.Excluded)
	for _, rep := range result.Reports {
		agg.Apply(rep.Rows, aggregate.ReportLabel(rep.Name))
	}
	result.MaxValues = agg.Result()
	result.MaxTotals = agg.Totals()
	result.EndTime = time.Now()

	log.Infow("Batch complete",
		"reports", len(result.Reports),
		"failed", len(result.FailedFiles),
		"error_entries", len(result.Errors),
		"excluded_protocols", len(result.Excluded),
		"max_protocols", agg.Len())

	return result, nil
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the outputs of a batch.
//
// OUTPUTS:
//   - Every output_*.xlsx left in the processed reports directory is removed,
//     then one output_<name>.xlsx is written per report.
//   - The error ledger is written when non-empty and removed otherwise, so a
//     stale ledger never excludes protocols from a later max recomputation.
//   - The max ledger is always written.
//   - The summary log is written when a summary directory is configured.
//
// A failed write does not stop the remaining writes; all failures are
// returned together.
func (p *Pipeline) Save(ctx context.Context, result *Result) error {
	ctx = logger.WithRunID(ctx, result.RunID)
	log := logger.FromContext(ctx).WithComponent("pipeline")
	props := report.Properties{RunID: result.RunID, Created: result.StartTime}

	if err := p.files.EnsureDirectories(); err != nil {
		return err
	}

	removed, err := p.files.RemoveStaleOutputs()
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Debugw("Removed stale reports", "files", removed)
	}

	var errs []error
	for _, rep := range result.Reports {
		path := filepath.Join(p.cfg.ProcessedReportsDir, aggregate.ReportLabel(rep.Name))
		if err := report.WriteBillingReport(path, rep.Rows, props); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Debugw("Wrote billing report", "path", path, "rows", len(rep.Rows))
	}

	if len(result.Errors) > 0 {
		if err := report.WriteErrorLedger(p.cfg.ErrorsOutputPath, result.Errors, props); err != nil {
			errs = append(errs, err)
		} else {
			log.Infow("Wrote error ledger", "path", p.cfg.ErrorsOutputPath, "entries", len(result.Errors))
		}
	} else if err := os.Remove(p.cfg.ErrorsOutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("failed to remove stale error ledger: %w", err))
	}

	if err := report.WriteMaxValues(p.cfg.MaxValuesOutputPath, result.MaxValues, props); err != nil {
		errs = append(errs, err)
	} else {
		log.Infow("Wrote max values", "path", p.cfg.MaxValuesOutputPath, "rows", len(result.MaxValues))
	}

	if p.cfg.SummaryDir != "" {
		path, err := utils.WriteSummaryLog(Summary(result, false), p.cfg.SummaryDir)
		if err != nil {
			errs = append(errs, err)
		} else {
			log.Debugw("Wrote summary", "path", path)
		}
	}

	return errors.Join(errs...)
}

// Summary builds the run summary of a batch.
func Summary(result *Result, dryRun bool) utils.ProcessingSummary {
	summary := utils.ProcessingSummary{
		RunID:          result.RunID,
		Depot:          result.Depot,
		DryRun:         dryRun,
		StartTime:      result.StartTime,
		EndTime:        result.EndTime,
		SkippedFiles:   result.SkippedFiles,
		ErrorEntries:   len(result.Errors),
		ErrorProtocols: len(result.Excluded),
		MaxTotal:       decimal.Zero,
	}

	for _, rep := range result.Reports {
		summary.ProcessedFiles = append(summary.ProcessedFiles, utils.ProcessedFileInfo{
			InputFile:  filepath.Base(rep.Source),
			OutputFile: aggregate.ReportLabel(rep.Name),
			Rows:       rep.Inventory,
			Groups:     len(rep.Rows),
			Failures:   rep.Failures(),
			Total:      aggregate.Total(rep.Rows),
		})
	}
	for _, ff := range result.FailedFiles {
		summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
			InputFile:    filepath.Base(ff.Path),
			ErrorMessage: ff.Err.Error(),
		})
	}

	for _, total := range result.MaxTotals {
		summary.MaxTotal = summary.MaxTotal.Add(total)
	}
	summary.MaxProtocols = len(result.MaxTotals)

	return summary
}
