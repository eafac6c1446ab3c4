// =============================================================================
// Storage Billing - Depot Reader
// =============================================================================
//
// This module turns one depot stock extract into normalized InventoryRows.
// Every depot-specific rule (column names, status and type tables, location
// prefixes, label templates) comes from the depot's YAML configuration.
//
// NORMALIZATION PIPELINE:
//   1. Rename protocols through the depot's renaming table
//   2. Coerce the amount column to an integer (unparseable -> 0)
//   3. Sum amounts over identical (protocol, item line, lot status,
//      component, position) lines
//   4. Drop lines without a protocol
//   5. Derive temperature and storage type from the position
//   6. Flag returns, replace lot status, derive item type and general type
//   7. Render the potential service and description labels
//
// =============================================================================

package depot

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/storage-billing/internal/config"
	"github.com/ginjaninja78/storage-billing/internal/csvparser"
	"github.com/ginjaninja78/storage-billing/internal/types"
	"github.com/ginjaninja78/storage-billing/internal/xlsparser"
	"github.com/ginjaninja78/storage-billing/internal/xlsxparser"
)

// =============================================================================
// READER
// =============================================================================

// Reader reads the extracts of one depot.
type Reader struct {
	cfg      *config.DepotConfig
	renaming map[string]string
}

// NewReader returns a reader for cfg. renaming maps depot protocol names to
// catalog protocol names and may be nil.
func NewReader(cfg *config.DepotConfig, renaming map[string]string) *Reader {
	if renaming == nil {
		renaming = map[string]string{}
	}
	return &Reader{cfg: cfg, renaming: renaming}
}

// Name returns the depot name.
func (r *Reader) Name() string {
	return r.cfg.Name
}

// Matches reports whether fileName is one of this depot's extracts.
func (r *Reader) Matches(fileName string) bool {
	if !strings.HasPrefix(fileName, r.cfg.FilePrefix) {
		return false
	}
	for _, suffix := range r.cfg.FileSuffixes {
		if strings.HasSuffix(fileName, suffix) {
			return true
		}
	}
	return false
}

// ReadFile reads and normalizes one extract. The extension picks the parser:
// ".csv" uses the depot's CSV settings, ".xls" the BIFF reader, anything
// else is read as XLSX.
func (r *Reader) ReadFile(path string) ([]types.InventoryRow, error) {
	var (
		table *xlsxparser.Table
		err   error
	)
	switch ext := filepath.Ext(path); {
	case strings.EqualFold(ext, ".csv"):
		table, err = csvparser.Read(path, r.cfg.CSV)
	case strings.EqualFold(ext, ".xls"):
		table, err = xlsparser.Read(path, xlsxparser.Options{Sheet: r.cfg.Sheet})
	default:
		table, err = xlsxparser.Read(path, xlsxparser.Options{Sheet: r.cfg.Sheet})
	}
	if err != nil {
		return nil, err
	}
	return r.FromTable(table)
}

// rawKey identifies a depot line before normalization.
type rawKey struct {
	protocol  string
	itemLine  string
	lotStatus string
	component string
	position  string
}

// FromTable normalizes an already parsed extract.
//
// RETURNS:
//   - One InventoryRow per distinct raw line with a protocol, ordered by the
//     raw key.
//   - An error if a configured column is missing.
func (r *Reader) FromTable(table *xlsxparser.Table) ([]types.InventoryRow, error) {
	cols := r.cfg.Columns
	required := []string{cols.Protocol, cols.ItemType, cols.LotStatus, cols.Position, cols.Amount}
	if cols.Component != "" {
		required = append(required, cols.Component)
	}
	if err := table.Require(required...); err != nil {
		return nil, err
	}

	amounts := make(map[rawKey]int64)
	var keys []rawKey

	for _, row := range table.Rows {
		protocol := row.Get(cols.Protocol)
		if renamed, ok := r.renaming[protocol]; ok {
			protocol = renamed
		}

		key := rawKey{
			protocol:  protocol,
			itemLine:  row.Get(cols.ItemType),
			lotStatus: row.Get(cols.LotStatus),
			position:  row.Get(cols.Position),
		}
		if cols.Component != "" {
			key.component = row.Get(cols.Component)
		}

		if _, seen := amounts[key]; !seen {
			keys = append(keys, key)
		}
		amounts[key] += parseAmount(row.Get(cols.Amount))
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	rows := make([]types.InventoryRow, 0, len(keys))
	for _, key := range keys {
		if key.protocol == "" {
			continue
		}
		rows = append(rows, r.normalize(key, amounts[key]))
	}

	return rows, nil
}

func (k rawKey) less(o rawKey) bool {
	a := [...]string{k.protocol, k.itemLine, k.lotStatus, k.component, k.position}
	b := [...]string{o.protocol, o.itemLine, o.lotStatus, o.component, o.position}
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// =============================================================================
// NORMALIZATION RULES
// =============================================================================

func (r *Reader) normalize(key rawKey, amount int64) types.InventoryRow {
	temperature := r.Temperature(key.position)
	isReturn := r.cfg.ReturnStatus != "" && key.lotStatus == r.cfg.ReturnStatus

	lotStatus := key.lotStatus
	if replaced, ok := r.cfg.LotStatusReplacements[lotStatus]; ok {
		lotStatus = replaced
	}

	itemType := r.ItemType(key.itemLine)
	generalType := itemType
	if replaced, ok := r.cfg.GeneralTypeReplacements[itemType]; ok {
		generalType = replaced
	}

	row := types.InventoryRow{
		Protocol:     key.protocol,
		ItemType:     itemType,
		LotStatus:    lotStatus,
		Temperature:  temperature,
		StorageType:  r.StorageType(key.position, temperature),
		Position:     key.position,
		AmountOfKits: amount,
		IsReturn:     isReturn,
		GeneralType:  generalType,
	}

	vars := strings.NewReplacer(
		"{temperature}", row.Temperature,
		"{lot_status}", row.LotStatus,
		"{item_type}", row.ItemType,
		"{general_type}", row.GeneralType,
	)
	row.PotentialService = vars.Replace(pickTemplate(r.cfg.PotentialService, row))
	row.Description = vars.Replace(pickTemplate(r.cfg.Description, row))

	return row
}

// Temperature returns the temperature condition of a position, or "" when
// no rule matches.
func (r *Reader) Temperature(position string) string {
	if position == "" {
		return ""
	}
	for _, rule := range r.cfg.TemperatureRules {
		if strings.HasPrefix(position, rule.Prefix) {
			return rule.Temperature
		}
	}
	return ""
}

// StorageType returns the storage unit of a position, or "" when no rule
// matches.
func (r *Reader) StorageType(position, temperature string) string {
	if position == "" {
		return ""
	}
	for _, rule := range r.cfg.StorageRules {
		if rule.Temperature != "" && rule.Temperature != temperature {
			continue
		}
		if rule.Prefix != "" && !strings.HasPrefix(position, rule.Prefix) {
			continue
		}
		return rule.StorageType
	}
	return ""
}

// ItemType derives the item type from the first word of an item line.
func (r *Reader) ItemType(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	first, _, _ := strings.Cut(line, " ")
	first = strings.ToLower(strings.TrimSpace(first))
	if replaced, ok := r.cfg.ItemTypeReplacements[first]; ok {
		return replaced
	}
	return first
}

func pickTemplate(t config.ServiceTemplates, row types.InventoryRow) string {
	if row.IsReturn && t.Return != "" {
		return t.Return
	}
	if tmpl, ok := t.ByGeneralType[row.GeneralType]; ok {
		return tmpl
	}
	return t.Default
}

// parseAmount coerces a raw amount to an integer. Fractions are truncated and
// anything unparseable counts as 0.
func parseAmount(raw string) int64 {
	if raw == "" {
		return 0
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0
	}
	return d.IntPart()
}

// =============================================================================
// PROTOCOL RENAMING
// =============================================================================

// Renaming column names.
const (
	ColRenameFrom = "Depot"
	ColRenameTo   = "FisherBook"
)

// LoadRenaming reads the depot's sheet of the protocol renaming workbook.
// When a depot name appears twice the last row wins.
func LoadRenaming(path, sheet string) (map[string]string, error) {
	table, err := xlsxparser.Read(path, xlsxparser.Options{Sheet: sheet})
	if err != nil {
		return nil, fmt.Errorf("protocol renaming: %w", err)
	}
	if err := table.Require(ColRenameFrom, ColRenameTo); err != nil {
		return nil, err
	}

	renaming := make(map[string]string, len(table.Rows))
	for _, row := range table.Rows {
		from := row.Get(ColRenameFrom)
		if from == "" {
			continue
		}
		renaming[from] = row.Get(ColRenameTo)
	}
	return renaming, nil
}
