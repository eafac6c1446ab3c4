// =============================================================================
// Storage Billing - Configuration Module
// =============================================================================
//
// This module is responsible for loading and managing all configuration files.
// It handles both the main application configuration and the depot-specific
// configurations.
//
// CONFIGURATION FILES:
//   1. Main Config (config.yaml): Global settings, file locations, catalog
//      filters, matching threshold and conversion rates
//   2. Depot Configs (configs/*.yaml): How one depot's stock extract is read
//      and normalized into inventory rows
//
// LOADING ORDER (main config):
//   1. YAML file
//   2. Defaults for unset fields
//   3. Environment overrides (prefix STORAGE, e.g. STORAGE_MAX_CONCURRENCY)
//   4. Struct validation
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/storage-billing/internal/conversion"
	"github.com/ginjaninja78/storage-billing/internal/matching"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "STORAGE"

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
// This is loaded from the main config.yaml file.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// DataDir is the root data directory.
	// Default: "./data"
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`

	// DepotReportsDir is scanned for depot stock extracts.
	// Default: "<data_dir>/depot_reports"
	DepotReportsDir string `yaml:"depot_reports_dir" envconfig:"DEPOT_REPORTS_DIR" validate:"required"`

	// ProcessedReportsDir receives one output_<name>.xlsx per billed report.
	// Every output_*.xlsx in it is removed before a batch is saved.
	// Default: "<data_dir>/processed_reports"
	ProcessedReportsDir string `yaml:"processed_reports_dir" envconfig:"PROCESSED_REPORTS_DIR" validate:"required"`

	// ConfigsDir contains one YAML file per depot.
	// Default: "./configs"
	ConfigsDir string `yaml:"configs_dir" envconfig:"CONFIGS_DIR" validate:"required"`

	// =========================================================================
	// INPUT WORKBOOKS
	// =========================================================================

	// ExchangeRatePath is the workbook with Currency / Exchange Rate columns.
	ExchangeRatePath string `yaml:"exchange_rate_path" envconfig:"EXCHANGE_RATE_PATH" validate:"required"`

	// ServiceConfigPath is the service-price catalog workbook.
	ServiceConfigPath string `yaml:"service_config_path" envconfig:"SERVICE_CONFIG_PATH" validate:"required"`

	// ProtocolRenamingPath maps depot protocol names to catalog protocol
	// names, one sheet per depot. Optional: a missing file disables renaming.
	ProtocolRenamingPath string `yaml:"protocol_renaming_path" envconfig:"PROTOCOL_RENAMING_PATH"`

	// =========================================================================
	// OUTPUT WORKBOOKS
	// =========================================================================

	// ErrorsOutputPath receives the error ledger. It is only written when
	// the batch produced at least one failure.
	ErrorsOutputPath string `yaml:"errors_output_path" envconfig:"ERRORS_OUTPUT_PATH" validate:"required"`

	// MaxValuesOutputPath receives the max ledger.
	MaxValuesOutputPath string `yaml:"max_values_output_path" envconfig:"MAX_VALUES_OUTPUT_PATH" validate:"required"`

	// SummaryDir receives the plain-text summary of each run.
	// Default: "<data_dir>/logs"
	SummaryDir string `yaml:"summary_dir" envconfig:"SUMMARY_DIR"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile is an additional log destination. Empty logs to stderr only.
	LogFile string `yaml:"log_file" envconfig:"LOG_FILE"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	// LogDevelopment switches to human-readable console output.
	LogDevelopment bool `yaml:"log_development" envconfig:"LOG_DEVELOPMENT"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// MaxConcurrency is the maximum number of depot files parsed concurrently.
	// Billing itself is always sequential.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency" envconfig:"MAX_CONCURRENCY" validate:"min=1,max=64"`

	// SimilarityThreshold is the score a label must strictly exceed to match.
	// Default: 0.85
	SimilarityThreshold float64 `yaml:"similarity_threshold" envconfig:"SIMILARITY_THRESHOLD" validate:"gt=0,lte=1"`

	// Conversion is the storage-unit conversion table.
	Conversion ConversionSettings `yaml:"conversion" ignored:"true"`

	// Catalog controls how the service catalog workbook is read.
	Catalog CatalogSettings `yaml:"catalog" envconfig:"CATALOG"`
}

// ConversionSettings defines the closed unit set and its directional rates.
type ConversionSettings struct {
	// Units lists the storage units in display order.
	// Default: [Pallet, Shelf, Bin]
	Units []string `yaml:"units" validate:"min=1,dive,required"`

	// Rates holds rates[from][to]. Every pair of units must be present.
	Rates map[string]map[string]float64 `yaml:"rates" validate:"required"`
}

// CatalogSettings controls the service catalog reader.
type CatalogSettings struct {
	// Sheet is the catalog sheet name. Empty selects the first sheet.
	Sheet string `yaml:"sheet" envconfig:"SHEET"`

	// HeaderRow is the 1-based row holding the column headers.
	// Default: 2
	HeaderRow int `yaml:"header_row" envconfig:"HEADER_ROW" validate:"min=1"`

	// Country keeps only services offered in this country.
	// Default: "Chile"
	Country string `yaml:"country" envconfig:"COUNTRY" validate:"required"`

	// ActiveStatus is the Service Status value of billable services.
	// Default: "Active"
	ActiveStatus string `yaml:"active_status" envconfig:"ACTIVE_STATUS" validate:"required"`

	// ColumnRenames maps raw (possibly multi-line) headers to canonical names.
	// Merged over the built-in renames.
	ColumnRenames map[string]string `yaml:"column_renames" ignored:"true"`

	// ExchangeRateSheet is the exchange-rate sheet name. Empty selects the
	// first sheet.
	ExchangeRateSheet string `yaml:"exchange_rate_sheet" envconfig:"EXCHANGE_RATE_SHEET"`
}

// =============================================================================
// DEPOT CONFIGURATION STRUCTURE
// =============================================================================

// DepotConfig describes how one depot's stock extract is read and normalized.
// Each depot has its own YAML file in the configs directory.
type DepotConfig struct {
	// Name identifies the depot on the command line (--depot PERI).
	Name string `yaml:"name" validate:"required"`

	// =========================================================================
	// FILE MATCHING RULES
	// =========================================================================

	// FilePrefix and FileSuffixes select the depot's files in the depot
	// reports directory. Other files are skipped. The suffix also picks the
	// reader: ".xls" (BIFF), ".csv", anything else as XLSX.
	FilePrefix   string   `yaml:"file_prefix" validate:"required"`
	FileSuffixes []string `yaml:"file_suffixes" validate:"required,min=1,dive,required"`

	// Sheet is the data sheet name. Empty selects the first sheet.
	Sheet string `yaml:"sheet"`

	// CSV applies to extracts whose name ends in ".csv".
	CSV CSVSettings `yaml:"csv"`

	// =========================================================================
	// COLUMNS
	// =========================================================================

	Columns DepotColumns `yaml:"columns"`

	// =========================================================================
	// NORMALIZATION TABLES
	// =========================================================================

	// ReturnStatus is the raw lot status that marks a returned item.
	ReturnStatus string `yaml:"return_status"`

	// LotStatusReplacements maps raw lot statuses to billing statuses.
	LotStatusReplacements map[string]string `yaml:"lot_status_replacements"`

	// ItemTypeReplacements maps the lower-cased first word of the item line
	// to an item type.
	ItemTypeReplacements map[string]string `yaml:"item_type_replacements"`

	// GeneralTypeReplacements maps item types to general types
	// (Drug, Non-Drug, Label).
	GeneralTypeReplacements map[string]string `yaml:"general_type_replacements"`

	// TemperatureRules are checked in order against the position; the first
	// rule whose prefix matches sets the temperature.
	TemperatureRules []TemperatureRule `yaml:"temperature_rules" validate:"dive"`

	// StorageRules are checked in order; the first rule whose conditions all
	// hold sets the storage type.
	StorageRules []StorageRule `yaml:"storage_rules" validate:"dive"`

	// =========================================================================
	// TEMPLATES
	// =========================================================================
	// Templates accept the placeholders {temperature}, {lot_status},
	// {item_type} and {general_type}.

	PotentialService ServiceTemplates `yaml:"potential_service"`
	Description      ServiceTemplates `yaml:"description"`

	// RenamingSheet is the sheet of the protocol renaming workbook that
	// applies to this depot. Default: Name.
	RenamingSheet string `yaml:"renaming_sheet"`
}

// CSVSettings contains settings for parsing CSV depot extracts.
type CSVSettings struct {
	// Delimiter is the character used to separate fields.
	// Common values: "," (comma), ";" (semicolon), "|" (pipe), "\t" (tab)
	// Default: ","
	Delimiter string `yaml:"delimiter" validate:"len=1"`

	// Encoding is the character encoding of the file.
	// Valid values: "utf-8", "windows-1252", "iso-8859-1"
	// Default: "utf-8"
	Encoding string `yaml:"encoding" validate:"oneof=utf-8 windows-1252 iso-8859-1"`

	// HeaderRow is the 1-based row holding the column headers.
	// Default: 1
	HeaderRow int `yaml:"header_row" validate:"min=1"`
}

// DepotColumns names the raw columns of a depot extract.
type DepotColumns struct {
	Protocol  string `yaml:"protocol" validate:"required"`
	ItemType  string `yaml:"item_type" validate:"required"`
	LotStatus string `yaml:"lot_status" validate:"required"`
	Component string `yaml:"component"`
	Position  string `yaml:"position" validate:"required"`
	Amount    string `yaml:"amount" validate:"required"`
}

// TemperatureRule maps a position prefix to a temperature condition.
type TemperatureRule struct {
	Prefix      string `yaml:"prefix" validate:"required"`
	Temperature string `yaml:"temperature" validate:"required"`
}

// StorageRule maps a position prefix and/or temperature to a storage type.
// An empty condition always holds.
type StorageRule struct {
	Prefix      string `yaml:"prefix"`
	Temperature string `yaml:"temperature"`
	StorageType string `yaml:"storage_type" validate:"required"`
}

// ServiceTemplates selects a label template for an inventory row.
type ServiceTemplates struct {
	// Return is used for returned items.
	Return string `yaml:"return"`

	// ByGeneralType is keyed by general type.
	ByGeneralType map[string]string `yaml:"by_general_type"`

	// Default is used when no other template applies.
	Default string `yaml:"default"`
}

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

// ValidationError lists every field that failed validation in one source.
type ValidationError struct {
	Source   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Source, strings.Join(e.Problems, "; "))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateStruct(source string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate %s: %w", source, err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			problems = append(problems, fmt.Sprintf("%s must satisfy %s", fe.Namespace(), fe.Tag()))
		}
	}
	return &ValidationError{Source: source, Problems: problems}
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the main configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be read, parsed or validated.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseMainConfig(data)
}

// ParseMainConfig builds the main configuration from YAML bytes, applying
// defaults and environment overrides.
func ParseMainConfig(data []byte) (*MainConfig, error) {
	var config MainConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyMainConfigDefaults(&config)

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validateStruct("main config", &config); err != nil {
		return nil, err
	}

	if _, err := config.Matrix(); err != nil {
		return nil, fmt.Errorf("invalid conversion table: %w", err)
	}

	return &config, nil
}

// DefaultMainConfig returns a configuration with every default applied.
func DefaultMainConfig() *MainConfig {
	var config MainConfig
	applyMainConfigDefaults(&config)
	return &config
}

// applyMainConfigDefaults sets default values for any unset configuration options.
func applyMainConfigDefaults(config *MainConfig) {
	if config.DataDir == "" {
		config.DataDir = "./data"
	}
	if config.DepotReportsDir == "" {
		config.DepotReportsDir = filepath.Join(config.DataDir, "depot_reports")
	}
	if config.ProcessedReportsDir == "" {
		config.ProcessedReportsDir = filepath.Join(config.DataDir, "processed_reports")
	}
	if config.ConfigsDir == "" {
		config.ConfigsDir = "./configs"
	}
	if config.ExchangeRatePath == "" {
		config.ExchangeRatePath = filepath.Join(config.DataDir, "configs", "exchanges_rate.xlsx")
	}
	if config.ServiceConfigPath == "" {
		config.ServiceConfigPath = filepath.Join(config.DataDir, "configs", "Services - Configuration.xlsx")
	}
	if config.ProtocolRenamingPath == "" {
		config.ProtocolRenamingPath = filepath.Join(config.DataDir, "configs", "protocols_renaming.xlsx")
	}
	if config.ErrorsOutputPath == "" {
		config.ErrorsOutputPath = filepath.Join(config.DataDir, "protocols_with_errors.xlsx")
	}
	if config.MaxValuesOutputPath == "" {
		config.MaxValuesOutputPath = filepath.Join(config.DataDir, "max_values.xlsx")
	}
	if config.SummaryDir == "" {
		config.SummaryDir = filepath.Join(config.DataDir, "logs")
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 4
	}
	if config.SimilarityThreshold == 0 {
		config.SimilarityThreshold = matching.DefaultThreshold
	}

	if len(config.Conversion.Units) == 0 {
		config.Conversion.Units = []string{conversion.UnitPallet, conversion.UnitShelf, conversion.UnitBin}
	}
	if len(config.Conversion.Rates) == 0 {
		config.Conversion.Rates = conversion.DefaultRates()
	}

	if config.Catalog.HeaderRow == 0 {
		config.Catalog.HeaderRow = 2
	}
	if config.Catalog.Country == "" {
		config.Catalog.Country = "Chile"
	}
	if config.Catalog.ActiveStatus == "" {
		config.Catalog.ActiveStatus = "Active"
	}
}

// Matrix builds the conversion matrix described by the configuration.
func (c *MainConfig) Matrix() (*conversion.Matrix, error) {
	return conversion.New(c.Conversion.Units, c.Conversion.Rates)
}

// Matcher returns the similarity matcher for the configured threshold.
func (c *MainConfig) Matcher() matching.Matcher {
	return matching.NewMatcher(c.SimilarityThreshold)
}

// LoadDepotConfigs loads all depot configurations from a directory.
//
// PARAMETERS:
//   - configsDir: The directory containing depot configuration files.
//
// RETURNS:
//   - A map of depot configurations, keyed by upper-cased depot name.
//   - An error if the directory cannot be read, any file is invalid, or two
//     files declare the same depot.
func LoadDepotConfigs(configsDir string) (map[string]*DepotConfig, error) {
	configs := make(map[string]*DepotConfig)

	files, err := filepath.Glob(filepath.Join(configsDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list config files: %w", err)
	}

	ymlFiles, err := filepath.Glob(filepath.Join(configsDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list config files: %w", err)
	}
	files = append(files, ymlFiles...)
	sort.Strings(files)

	for _, file := range files {
		config, err := LoadDepotConfig(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}

		key := DepotKey(config.Name)
		if _, dup := configs[key]; dup {
			return nil, fmt.Errorf("depot %q is configured twice (%s)", config.Name, file)
		}
		configs[key] = config
	}

	return configs, nil
}

// DepotKey normalizes a depot name for lookups.
func DepotKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// LoadDepotConfig loads a single depot configuration file.
func LoadDepotConfig(filePath string) (*DepotConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return ParseDepotConfig(data)
}

// ParseDepotConfig builds a depot configuration from YAML bytes.
func ParseDepotConfig(data []byte) (*DepotConfig, error) {
	var config DepotConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}

	applyDepotConfigDefaults(&config)

	if err := validateStruct("depot config", &config); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyDepotConfigDefaults sets default values for depot configuration.
func applyDepotConfigDefaults(config *DepotConfig) {
	if len(config.FileSuffixes) == 0 {
		config.FileSuffixes = []string{".xls", ".xlsx"}
	}
	if config.RenamingSheet == "" {
		config.RenamingSheet = config.Name
	}
	if config.CSV.Delimiter == "" {
		config.CSV.Delimiter = ","
	}
	if config.CSV.Encoding == "" {
		config.CSV.Encoding = "utf-8"
	}
	if config.CSV.HeaderRow == 0 {
		config.CSV.HeaderRow = 1
	}
	if config.PotentialService.Default == "" {
		config.PotentialService.Default = "Unknown Service"
	}
	if config.Description.Default == "" {
		config.Description.Default = "{temperature} {lot_status} {item_type}"
	}
}
