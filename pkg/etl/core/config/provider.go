package config

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// Provider serves configuration values, target schemas and field mappings to the pipeline.
// It is safe for concurrent use.
type Provider struct {
	mu      sync.RWMutex
	cfg     *Config
	params  map[string]interface{}
	engine  EngineParameters
	schemas map[string]Schema
}

// NewProvider wraps cfg and the parsed schemas.
func NewProvider(cfg *Config, schemas map[string]Schema) (*Provider, error) {
	params := make(map[string]interface{}, len(cfg.EngineParameters))
	for k, v := range cfg.EngineParameters {
		params[k] = v
	}
	engine, err := decodeEngineParameters(params)
	if err != nil {
		return nil, err
	}
	if schemas == nil {
		schemas = map[string]Schema{}
	}
	return &Provider{cfg: cfg, params: params, engine: engine, schemas: schemas}, nil
}

// LoadProvider loads the configuration and the target schemas described by opts.
func LoadProvider(opts LoadOptions) (*Provider, error) {
	cfg, err := Load(opts)
	if err != nil {
		return nil, err
	}
	return NewProvider(cfg, LoadSchemas(cfg.RootDir, cfg.TargetSchema.DefinitionFile))
}

// Get returns the engine parameter key, or def when unset.
func (p *Provider) Get(key string, def interface{}) interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.params[key]; ok && v != nil {
		return v
	}
	return def
}

// Set stores an engine parameter and refreshes the typed view.
func (p *Provider) Set(key string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	previous, existed := p.params[key]
	p.params[key] = value
	engine, err := decodeEngineParameters(p.params)
	if err != nil {
		if existed {
			p.params[key] = previous
		} else {
			delete(p.params, key)
		}
		return err
	}
	p.engine = engine
	return nil
}

// Engine returns a copy of the typed engine parameters.
func (p *Provider) Engine() EngineParameters {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.engine
}

// Config returns the loaded configuration.
func (p *Provider) Config() *Config { return p.cfg }

// RootDir returns the project root.
func (p *Provider) RootDir() string { return p.cfg.RootDir }

// Logger returns the logger scoped to dataset.
func (p *Provider) Logger(dataset string) logger.DatasetLogger {
	return logger.ForDataset(dataset)
}

// SchemaFor returns the target schema of a dataset, matching names case-insensitively
// when no exact entry exists. An unknown dataset yields an empty schema.
func (p *Provider) SchemaFor(dataset string) Schema {
	if s, ok := p.schemas[dataset]; ok {
		return s
	}
	for name, s := range p.schemas {
		if strings.EqualFold(name, dataset) {
			return s
		}
	}
	return Schema{}
}

// SchemaNames returns the names of every known target schema, sorted.
func (p *Provider) SchemaNames() []string {
	names := make([]string, 0, len(p.schemas))
	for n := range p.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FieldMappings returns the ordered {target: source} mappings of a dataset.
func (p *Provider) FieldMappings(dataset string) []map[string]string {
	if ds, ok := p.cfg.Datasets[dataset]; ok {
		return ds.FieldMappings
	}
	return nil
}

// IdentityColumns returns the identity columns of a dataset's target schema.
func (p *Provider) IdentityColumns(dataset string) []string {
	return p.SchemaFor(dataset).Identities()
}

// Datasets returns the configured dataset names in file order.
func (p *Provider) Datasets() []string {
	if len(p.cfg.DatasetOrder) > 0 {
		return append([]string(nil), p.cfg.DatasetOrder...)
	}
	names := make([]string, 0, len(p.cfg.Datasets))
	for n := range p.cfg.Datasets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Dataset returns the configuration of one dataset.
func (p *Provider) Dataset(name string) (DatasetConfig, bool) {
	ds, ok := p.cfg.Datasets[name]
	return ds, ok
}

// PrepareDirectories creates every configured directory and empties output_dir of files.
func (p *Provider) PrepareDirectories() error {
	p.mu.RLock()
	engine := p.engine
	p.mu.RUnlock()

	var result *multierror.Error
	val := reflect.ValueOf(engine)
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("yaml")
		if !strings.HasSuffix(tag, "_dir") || tag == "root_dir" {
			continue
		}
		dir := val.Field(i).String()
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			result = multierror.Append(result, exception.NewPipelineErrorf(moduleName, "failed to create %s '%s'", tag, dir, err))
		}
	}

	if engine.OutputDir != "" {
		entries, err := os.ReadDir(engine.OutputDir)
		if err != nil {
			result = multierror.Append(result, exception.NewPipelineError(moduleName, "failed to read output directory", err))
		}
		removed := 0
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(engine.OutputDir, e.Name())); err != nil {
				result = multierror.Append(result, err)
				continue
			}
			removed++
		}
		if removed > 0 {
			logger.Infof("Removed %d existing files from %s", removed, engine.OutputDir)
		}
	}
	return result.ErrorOrNil()
}
