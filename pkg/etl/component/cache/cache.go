// Package cache implements the two-tier step cache: an in-process map in front of
// gob-encoded tables in the cache directory. Validation results of validation steps
// are kept next to their tables as JSON.
package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/datafactory/pkg/etl/adapter/storage"
	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/metrics"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/serialization"
)

const (
	moduleName    = "cache"
	fileExt       = ".gob"
	validationExt = "_validation.json"

	tierMemory = "memory"
	tierDisk   = "disk"
)

// Manager caches step outputs per dataset. Every operation is a no-op when caching is disabled.
type Manager struct {
	mu       sync.RWMutex
	memory   map[string]*table.Table
	results  map[string][]byte
	dir      string
	enabled  bool
	conn     storage.StorageConnection
	recorder metrics.MetricRecorder
}

var (
	_ port.Cache           = (*Manager)(nil)
	_ port.ValidationCache = (*Manager)(nil)
)

// NewManager creates a Manager for cache_dir, creating the directory when caching is enabled.
func NewManager(provider *config.Provider, conn storage.StorageConnection, recorder metrics.MetricRecorder) (*Manager, error) {
	engine := provider.Engine()
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	m := &Manager{
		memory:   make(map[string]*table.Table),
		results:  make(map[string][]byte),
		dir:      engine.CacheDir,
		enabled:  engine.EnableCaching,
		conn:     conn,
		recorder: recorder,
	}
	if m.enabled {
		if err := os.MkdirAll(m.dir, 0o755); err != nil {
			return nil, exception.NewPipelineErrorf(moduleName, "failed to create cache directory '%s'", m.dir, err)
		}
	}
	return m, nil
}

// Key returns the cache key of a dataset step.
func Key(dataset, step string) string {
	return dataset + "_" + step
}

func (m *Manager) path(key string) string {
	return filepath.Join(m.dir, key+fileExt)
}

// Get returns a copy of the cached output of step. A disk hit is promoted to memory.
func (m *Manager) Get(dataset, step string) (*table.Table, bool) {
	if !m.enabled {
		return nil, false
	}
	ctx := context.Background()
	key := Key(dataset, step)

	m.mu.RLock()
	t, ok := m.memory[key]
	m.mu.RUnlock()
	if ok {
		m.recorder.RecordCacheLookup(ctx, tierMemory, "hit")
		logger.ForDataset(dataset).Infof("Retrieved %s result from memory cache", step)
		return t.Clone(), true
	}
	m.recorder.RecordCacheLookup(ctx, tierMemory, "miss")

	t, err := m.readDisk(ctx, key)
	if err != nil {
		logger.ForDataset(dataset).Warnf("Failed to load cache %s: %v", m.path(key), err)
	}
	if t == nil {
		m.recorder.RecordCacheLookup(ctx, tierDisk, "miss")
		return nil, false
	}
	m.recorder.RecordCacheLookup(ctx, tierDisk, "hit")

	m.mu.Lock()
	m.memory[key] = t.Clone()
	m.mu.Unlock()
	logger.ForDataset(dataset).Infof("Retrieved %s result from disk cache", step)
	return t, true
}

func (m *Manager) readDisk(ctx context.Context, key string) (*table.Table, error) {
	path := m.path(key)
	exists, err := m.conn.Exists(ctx, path)
	if err != nil || !exists {
		return nil, err
	}
	rc, err := m.conn.Download(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t := table.Empty()
	if err := gob.NewDecoder(rc).Decode(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Put stores a copy of t as the output of step. Empty tables are not cached.
// A failed disk write is logged; the memory entry is kept.
func (m *Manager) Put(t *table.Table, dataset, step string) error {
	if !m.enabled || t.IsEmpty() {
		return nil
	}
	key := Key(dataset, step)

	m.mu.Lock()
	m.memory[key] = t.Clone()
	m.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t); err != nil {
		logger.ForDataset(dataset).Warnf("Failed to encode cache entry %s: %v", key, err)
		return exception.NewPipelineErrorf(moduleName, "failed to encode %s", key, err)
	}
	if err := m.conn.Upload(context.Background(), m.path(key), &buf); err != nil {
		logger.ForDataset(dataset).Warnf("Failed to save cache to %s: %v", m.path(key), err)
		return exception.NewPipelineErrorf(moduleName, "failed to write %s", m.path(key), err)
	}
	logger.ForDataset(dataset).Debugf("Cached %s result", step)
	return nil
}

// GetValidation returns a copy of the validation result cached with step.
func (m *Manager) GetValidation(dataset, step string) (*model.ValidationResult, bool) {
	if !m.enabled {
		return nil, false
	}
	ctx := context.Background()
	key := Key(dataset, step)

	m.mu.RLock()
	data, ok := m.results[key]
	m.mu.RUnlock()
	if !ok {
		path := filepath.Join(m.dir, key+validationExt)
		exists, err := m.conn.Exists(ctx, path)
		if err != nil || !exists {
			return nil, false
		}
		rc, err := m.conn.Download(ctx, path)
		if err != nil {
			logger.ForDataset(dataset).Warnf("Failed to load cached validation %s: %v", path, err)
			return nil, false
		}
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		rc.Close()
		if err != nil {
			return nil, false
		}
		data = buf.Bytes()
	}

	r := model.NewValidationResult()
	if err := serialization.Unmarshal(data, r); err != nil {
		logger.ForDataset(dataset).Warnf("Failed to decode cached validation of %s: %v", step, err)
		return nil, false
	}
	if !ok {
		m.mu.Lock()
		m.results[key] = data
		m.mu.Unlock()
	}
	return r, true
}

// PutValidation stores r as the validation result of step.
func (m *Manager) PutValidation(r *model.ValidationResult, dataset, step string) error {
	if !m.enabled || r == nil {
		return nil
	}
	key := Key(dataset, step)
	data, err := serialization.Marshal(r)
	if err != nil {
		return exception.NewPipelineErrorf(moduleName, "failed to encode validation of %s", key, err)
	}

	m.mu.Lock()
	m.results[key] = data
	m.mu.Unlock()

	path := filepath.Join(m.dir, key+validationExt)
	if err := m.conn.Upload(context.Background(), path, bytes.NewReader(data)); err != nil {
		logger.ForDataset(dataset).Warnf("Failed to save cached validation to %s: %v", path, err)
		return exception.NewPipelineErrorf(moduleName, "failed to write %s", path, err)
	}
	return nil
}

// Clear removes the entries of dataset from both tiers, or every entry when dataset is empty.
func (m *Manager) Clear(dataset string) error {
	if !m.enabled {
		return nil
	}
	prefix := ""
	if dataset != "" {
		prefix = dataset + "_"
	}

	m.mu.Lock()
	for key := range m.memory {
		if strings.HasPrefix(key, prefix) {
			delete(m.memory, key)
		}
	}
	for key := range m.results {
		if strings.HasPrefix(key, prefix) {
			delete(m.results, key)
		}
	}
	m.mu.Unlock()

	err := m.removeFiles(func(name string) bool {
		return strings.HasPrefix(name, prefix) && (strings.HasSuffix(name, fileExt) || strings.HasSuffix(name, validationExt))
	})
	if dataset != "" {
		logger.Infof("Cleared cache for dataset %s", dataset)
	} else {
		logger.Infof("Cleared all cache")
	}
	return err
}

// DeleteAll empties the memory tier and removes the cache directory.
func (m *Manager) DeleteAll() error {
	if !m.enabled {
		return nil
	}
	m.mu.Lock()
	m.memory = make(map[string]*table.Table)
	m.results = make(map[string][]byte)
	m.mu.Unlock()
	logger.Infof("Cleared memory cache")

	if err := m.removeFiles(func(string) bool { return true }); err != nil {
		return err
	}
	if err := os.Remove(m.dir); err != nil && !os.IsNotExist(err) {
		logger.Warnf("Could not delete cache directory: %v", err)
		return exception.NewPipelineErrorf(moduleName, "failed to remove '%s'", m.dir, err)
	}
	logger.Infof("Deleted cache directory")
	return nil
}

// removeFiles deletes the files directly inside the cache directory whose base name matches.
func (m *Manager) removeFiles(match func(name string) bool) error {
	if _, err := os.Stat(m.dir); os.IsNotExist(err) {
		return nil
	}
	ctx := context.Background()
	var victims []string
	err := m.conn.ListObjects(ctx, m.dir, func(objectName string) error {
		if filepath.Dir(objectName) == filepath.Clean(m.dir) && match(filepath.Base(objectName)) {
			victims = append(victims, objectName)
		}
		return nil
	})
	if err != nil {
		return exception.NewPipelineError(moduleName, "failed to list cache files", err)
	}

	var result *multierror.Error
	for _, name := range victims {
		if err := m.conn.DeleteObject(ctx, name); err != nil {
			logger.Warnf("Could not delete cache file %s: %v", name, err)
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Enabled reports whether caching is on.
func (m *Manager) Enabled() bool { return m.enabled }
