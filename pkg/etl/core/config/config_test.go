package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datafactory/pkg/etl/core/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := config.NewConfig("/project")

	assert.Equal(t, filepath.Join("/project", "Datasets/Raw"), cfg.EngineParameters["input_dir"])
	assert.Equal(t, filepath.Join("/project", "Datasets/Cooked"), cfg.EngineParameters["output_dir"])
	assert.Equal(t, 100, cfg.EngineParameters["nsamples"])
	assert.Equal(t, 3.0, cfg.EngineParameters["outlier_threshold"])
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "csv", cfg.EngineParameters["output_format"])
}

func TestLoad_MergesDocumentsInOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config.yaml"), `
Engine_Parameters:
  output_dir: out
  parallel_processing: true
Datasets:
  Market:
    sources: [market.csv]
  Loan:
    sources: [a.csv, b.csv]
    field_mappings:
      - CustomerID: customer_id
      - Age: age
---
Engine_Parameters:
  report_dir: rep
  max_workers: auto
  enable_caching: false
Logging:
  level: DEBUG
`)

	cfg, err := config.Load(config.LoadOptions{RootDir: root})
	require.NoError(t, err)

	assert.Equal(t, []string{"Market", "Loan"}, cfg.DatasetOrder)
	assert.Equal(t, []string{"a.csv", "b.csv"}, cfg.Datasets["Loan"].Sources)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	// The second document replaces Engine_Parameters wholesale.
	assert.Equal(t, filepath.Join(root, "Datasets/Cooked"), cfg.EngineParameters["output_dir"])
	assert.Equal(t, filepath.Join(root, "rep"), cfg.EngineParameters["report_dir"])
	assert.Equal(t, false, cfg.EngineParameters["enable_caching"])

	provider, err := config.NewProvider(cfg, config.DefaultSchemas())
	require.NoError(t, err)
	assert.Equal(t, []string{"Market", "Loan"}, provider.Datasets())
	assert.Equal(t, []map[string]string{{"CustomerID": "customer_id"}, {"Age": "age"}}, provider.FieldMappings("Loan"))
	assert.Nil(t, provider.FieldMappings("Fraud"))
	assert.False(t, provider.Engine().EnableCaching)
	assert.Equal(t, max(1, runtime.NumCPU()-1), provider.Engine().Workers())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	root := t.TempDir()

	cfg, err := config.Load(config.LoadOptions{RootDir: root, ConfigPath: "nope.yaml", LogLevel: "debug"})
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.EngineParameters["nsamples"])
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Empty(t, cfg.Datasets)
}

func TestLoad_ZeroSampleSizeFallsBack(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config.yaml"), "Engine_Parameters:\n  nsamples: 0\n")

	cfg, err := config.Load(config.LoadOptions{RootDir: root})
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.EngineParameters["nsamples"])
}

func TestLoad_EnvironmentOverridesAndExpansion(t *testing.T) {
	root := t.TempDir()
	t.Setenv("DF_TEST_INPUT", "raw_files")
	t.Setenv("DATAFACTORY_KNN_NEIGHBORS", "7")
	t.Setenv("DATAFACTORY_CACHE_DIR", "tmpcache")
	t.Setenv("DATAFACTORY_INTEGER_PATTERNS", "num_, qty")
	t.Setenv("DATAFACTORY_LOGGING_LEVEL", "WARN")
	t.Setenv("DATAFACTORY_DATABASE_TABLE_PREFIX", "stg_")
	writeFile(t, filepath.Join(root, "config.yaml"), `
Engine_Parameters:
  input_dir: ${DF_TEST_INPUT}
  log_dir: ${DF_TEST_UNSET:-logs_fallback}
  pattern: "^$amount"
`)

	provider, err := config.LoadProvider(config.LoadOptions{RootDir: root})
	require.NoError(t, err)

	engine := provider.Engine()
	assert.Equal(t, filepath.Join(root, "raw_files"), engine.InputDir)
	assert.Equal(t, filepath.Join(root, "logs_fallback"), engine.LogDir)
	assert.Equal(t, filepath.Join(root, "tmpcache"), engine.CacheDir)
	assert.Equal(t, 7, engine.KNNNeighbors)
	assert.Equal(t, []string{"num_", "qty"}, engine.IntegerPatterns)
	assert.Equal(t, "^$amount", provider.Get("pattern", ""))
	assert.Equal(t, "WARN", provider.Config().Logging.Level)
	assert.Equal(t, "stg_Loan", provider.Config().Database.TableName("Loan"))
}

func TestProvider_GetSet(t *testing.T) {
	provider, err := config.NewProvider(config.NewConfig(t.TempDir()), nil)
	require.NoError(t, err)

	assert.Equal(t, "fallback", provider.Get("missing", "fallback"))
	require.NoError(t, provider.Set("outlier_threshold", "1.5"))
	assert.Equal(t, 1.5, provider.Engine().OutlierThreshold)

	assert.Error(t, provider.Set("knn_neighbors", "many"))
	assert.Equal(t, 5, provider.Engine().KNNNeighbors)
	assert.Equal(t, 5, provider.Get("knn_neighbors", 0))
}

func TestProvider_SchemasAndIdentities(t *testing.T) {
	provider, err := config.NewProvider(config.NewConfig(t.TempDir()), config.DefaultSchemas())
	require.NoError(t, err)

	assert.Equal(t, []string{"MarketID"}, provider.IdentityColumns("Market"))
	assert.Equal(t, []string{"MacroID"}, provider.IdentityColumns("macro"))
	assert.Empty(t, provider.IdentityColumns("Loan"))
	assert.True(t, provider.SchemaFor("Unknown").IsEmpty())

	typ, ok := provider.SchemaFor("Fraud").TypeOf("TransactionDate")
	assert.True(t, ok)
	assert.Equal(t, "DATETIME", typ)
	assert.Equal(t, "CustomerID", provider.SchemaFor("Loan").Names()[0])
}

func TestProvider_PrepareDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := config.NewConfig(root)
	out := filepath.Join(root, "Datasets/Cooked")
	writeFile(t, filepath.Join(out, "stale_cooked.csv"), "a\n1\n")
	require.NoError(t, os.MkdirAll(filepath.Join(out, "keep"), 0o755))

	provider, err := config.NewProvider(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, provider.PrepareDirectories())

	for _, dir := range []string{"Datasets/Raw", "Logs", "cache", "Reports"} {
		assert.DirExists(t, filepath.Join(root, dir))
	}
	assert.NoFileExists(t, filepath.Join(out, "stale_cooked.csv"))
	assert.DirExists(t, filepath.Join(out, "keep"))
}

func TestEngineParameters_Workers(t *testing.T) {
	cpus := runtime.NumCPU()

	assert.Equal(t, max(1, cpus-1), config.EngineParameters{MaxWorkers: "auto"}.Workers())
	assert.Equal(t, 1, config.EngineParameters{MaxWorkers: "0"}.Workers())
	assert.Equal(t, cpus, config.EngineParameters{MaxWorkers: "100000"}.Workers())
}
