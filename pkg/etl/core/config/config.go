// Package config provides the configuration structures, loader and provider for the DataFactory pipeline.
package config

import (
	"os"
	"runtime"
	"strconv"

	dbconfig "github.com/tigerroll/datafactory/pkg/etl/adapter/database/config"
)

// DatasetConfig describes one dataset entry under "Datasets".
type DatasetConfig struct {
	Sources       []string            `yaml:"sources" mapstructure:"sources"`               // Sources are input files relative to input_dir.
	FieldMappings []map[string]string `yaml:"field_mappings" mapstructure:"field_mappings"` // FieldMappings map target columns to source columns.
	OutputFile    string              `yaml:"output_file" mapstructure:"output_file"`       // OutputFile overrides "<dataset>_cooked.<ext>".
}

// TargetSchemaConfig points at the DDL file defining the staging tables.
type TargetSchemaConfig struct {
	DefinitionFile string `yaml:"definition_file"` // DefinitionFile is relative to the root directory.
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // Level is DEBUG, INFO, WARN or ERROR.
}

// MetricsConfig toggles the Prometheus recorder.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Textfile receives the gathered metrics at shutdown, in the text exposition format.
	Textfile string `yaml:"textfile"`
}

// TracingConfig configures the OpenTelemetry exporter. An empty endpoint disables export.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Config is the root of the YAML configuration.
type Config struct {
	// EngineParameters is the flattened "Engine_Parameters" section; see EngineParameters for the typed view.
	EngineParameters map[string]interface{} `yaml:"Engine_Parameters"`
	// Datasets maps dataset names to their sources and field mappings.
	Datasets map[string]DatasetConfig `yaml:"Datasets"`
	// DatasetOrder lists dataset names in file order.
	DatasetOrder []string `yaml:"-"`
	// TargetSchema points at the DDL used to derive target schemas.
	TargetSchema TargetSchemaConfig `yaml:"TargetSchema"`
	Logging      LoggingConfig      `yaml:"Logging"`
	Metrics      MetricsConfig      `yaml:"Metrics"`
	Tracing      TracingConfig      `yaml:"Tracing"`
	// Storage holds named storage connections keyed by name; decoded by the storage provider.
	Storage map[string]interface{} `yaml:"Storage"`
	// Database configures the optional staging sink.
	Database dbconfig.DatabaseConfig `yaml:"Database"`
	// RootDir is the project root every relative path is resolved against.
	RootDir string `yaml:"-"`
}

// EngineParameters is the typed view of the engine parameters.
type EngineParameters struct {
	RootDir  string `yaml:"root_dir"`
	InputDir string `yaml:"input_dir"`
	// OutputDir receives cooked files; its files are removed at start-up.
	OutputDir string `yaml:"output_dir"`
	LogDir    string `yaml:"log_dir"`
	CacheDir  string `yaml:"cache_dir"`
	ReportDir string `yaml:"report_dir"`

	// MaxWorkers is an integer or "auto" (CPU count minus one).
	MaxWorkers         string `yaml:"max_workers"`
	ParallelProcessing bool   `yaml:"parallel_processing"`
	ChunkSize          int    `yaml:"chunk_size"`

	NSamples                int      `yaml:"nsamples"`
	KNNNeighbors            int      `yaml:"knn_neighbors"`
	OutlierThreshold        float64  `yaml:"outlier_threshold"`
	MinNumericPercent       float64  `yaml:"min_numeric_percent"`
	MaxMissingPct           float64  `yaml:"max_missing_pct"`
	CorrelationThreshold    float64  `yaml:"correlation_threshold"`
	NormalizeNumeric        bool     `yaml:"normalize_numeric"`
	OnehotEncodeCategorical bool     `yaml:"onehot_encode_categorical"`
	DecimalRounding         int      `yaml:"decimal_rounding"`
	IntegerPatterns         []string `yaml:"integer_patterns"`
	BinaryPatterns          []string `yaml:"binary_patterns"`

	Checkpointing           bool     `yaml:"checkpointing"`
	EnableCaching           bool     `yaml:"enable_caching"`
	ValidateAfterFixing     bool     `yaml:"validate_after_fixing"`
	ValidationReport        bool     `yaml:"validation_report"`
	StatisticalReport       bool     `yaml:"statistical_report"`
	DataQualityReport       bool     `yaml:"data_quality_report"`
	AddDataLineage          bool     `yaml:"add_data_lineage"`
	MaintainIDRelationships bool     `yaml:"maintain_id_relationships"`
	IDRelationshipFields    []string `yaml:"id_relationship_fields"`
	KeepTempFiles           bool     `yaml:"keep_temp_files"`

	ReportMaxColumns         int      `yaml:"report_max_columns"`
	ReportNumericColumns     []string `yaml:"report_numeric_columns"`
	ReportCorrelationColumns []string `yaml:"report_correlation_columns"`
	ShowCorrelationValues    bool     `yaml:"show_correlation_values"`

	// OutputFormat is the extension of cooked files (csv, json, xlsx, parquet).
	OutputFormat string `yaml:"output_format"`
}

// Workers resolves MaxWorkers into a positive worker count.
// "auto" (or an empty value) means CPU count minus one; integers are clamped to [1, CPU].
func (e EngineParameters) Workers() int {
	cpus := runtime.NumCPU()
	if e.MaxWorkers == "" || e.MaxWorkers == "auto" {
		return max(1, cpus-1)
	}
	n, err := strconv.Atoi(e.MaxWorkers)
	if err != nil {
		return max(1, cpus-1)
	}
	return max(1, min(n, cpus))
}

// DefaultEngineParameters returns the engine defaults as a flat map, with directories under root.
func DefaultEngineParameters(root string) map[string]interface{} {
	return map[string]interface{}{
		"root_dir":   root,
		"input_dir":  joinRoot(root, "Datasets/Raw"),
		"output_dir": joinRoot(root, "Datasets/Cooked"),
		"log_dir":    joinRoot(root, "Logs"),
		"cache_dir":  joinRoot(root, "cache"),
		"report_dir": joinRoot(root, "Reports"),

		"max_workers":         strconv.Itoa(max(1, runtime.NumCPU()-1)),
		"parallel_processing": false,
		"chunk_size":          1000,

		"nsamples":                  100,
		"knn_neighbors":             5,
		"outlier_threshold":         3.0,
		"min_numeric_percent":       0.5,
		"max_missing_pct":           0.5,
		"correlation_threshold":     0.95,
		"normalize_numeric":         false,
		"onehot_encode_categorical": false,
		"decimal_rounding":          2,
		"integer_patterns":          []string{"num_", "number", "count", "qtd", "qty", "_id", "_nbr", "age", "delayed"},
		"binary_patterns":           []string{"employed", "self-employed"},

		"checkpointing":             false,
		"enable_caching":            true,
		"validate_after_fixing":     true,
		"validation_report":         true,
		"statistical_report":        true,
		"data_quality_report":       true,
		"add_data_lineage":          true,
		"maintain_id_relationships": true,
		"id_relationship_fields":    []string{},
		"keep_temp_files":           false,

		"report_max_columns":      10,
		"show_correlation_values": false,

		"output_format": "csv",
	}
}

// NewConfig returns a Config with default values rooted at root.
func NewConfig(root string) *Config {
	return &Config{
		EngineParameters: DefaultEngineParameters(root),
		Datasets:         map[string]DatasetConfig{},
		Logging:          LoggingConfig{Level: "INFO"},
		Tracing:          TracingConfig{ServiceName: "datafactory"},
		Database: dbconfig.DatabaseConfig{
			Mode:      dbconfig.ModeReplace,
			BatchSize: 500,
			Retry:     dbconfig.RetryConfig{MaxAttempts: 3, IntervalMillis: 500},
		},
		RootDir: root,
	}
}

// DefaultRoot returns the working directory, used when no root is given.
func DefaultRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
