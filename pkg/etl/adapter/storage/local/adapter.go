// Package local provides a local file system implementation of the storage adapter interfaces.
package local

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"

	storageAdapter "github.com/tigerroll/datafactory/pkg/etl/adapter/storage"
	storageConfig "github.com/tigerroll/datafactory/pkg/etl/adapter/storage/config"
	coreConfig "github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

const (
	// ProviderType defines the type identifier for this local storage provider.
	ProviderType = "local"
	// DefaultConnection is the connection used by the pipeline's loaders and savers.
	DefaultConnection = "default"

	moduleName = "storage"
)

// localAdapter implements the storage.StorageConnection interface for local file system operations.
type localAdapter struct {
	cfg  storageConfig.StorageConfig
	name string
}

var _ storageAdapter.StorageConnection = (*localAdapter)(nil)

// NewLocalAdapter creates a new localAdapter instance, creating BaseDir when it does not exist.
func NewLocalAdapter(cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	if cfg.BaseDir == "" {
		return nil, exception.NewPipelineErrorf(moduleName, "local storage adapter '%s': BaseDir must be specified in configuration", name)
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, exception.NewPipelineErrorf(moduleName, "local storage adapter '%s': failed to stat BaseDir '%s'", name, cfg.BaseDir, err)
		}
		if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
			return nil, exception.NewPipelineErrorf(moduleName, "local storage adapter '%s': failed to create BaseDir '%s'", name, cfg.BaseDir, err)
		}
	} else if !info.IsDir() {
		return nil, exception.NewPipelineErrorf(moduleName, "local storage adapter '%s': BaseDir '%s' is not a directory", name, cfg.BaseDir)
	}
	return &localAdapter{cfg: cfg, name: name}, nil
}

func (a *localAdapter) Close() error {
	logger.Debugf("Local storage adapter '%s' closed.", a.name)
	return nil
}

func (a *localAdapter) Type() string { return ProviderType }

func (a *localAdapter) Name() string { return a.name }

// Upload writes data to objectName, creating the parent directories.
func (a *localAdapter) Upload(ctx context.Context, objectName string, data io.Reader) error {
	fullPath, err := a.resolvePath(objectName)
	if err != nil {
		return exception.NewPipelineErrorf(moduleName, "failed to resolve path for upload", err)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return exception.NewPipelineErrorf(moduleName, "failed to create directory '%s'", filepath.Dir(fullPath), err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return exception.NewPipelineErrorf(moduleName, "failed to create file '%s'", fullPath, err)
	}
	if _, err := io.Copy(file, data); err != nil {
		file.Close()
		return exception.NewPipelineErrorf(moduleName, "failed to write data to file '%s'", fullPath, err)
	}
	if err := file.Close(); err != nil {
		return exception.NewPipelineErrorf(moduleName, "failed to close file '%s'", fullPath, err)
	}
	logger.Debugf("Uploaded data to '%s' (local adapter '%s').", fullPath, a.name)
	return nil
}

// Download opens objectName for reading.
func (a *localAdapter) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(objectName)
	if err != nil {
		return nil, exception.NewPipelineErrorf(moduleName, "failed to resolve path for download", err)
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, exception.NewPipelineErrorf(moduleName, "failed to open file '%s'", fullPath, err)
	}
	return file, nil
}

// ListObjects walks the directory tree below prefix and calls fn with each file path.
// Paths are relative to BaseDir unless prefix is absolute.
func (a *localAdapter) ListObjects(ctx context.Context, prefix string, fn func(objectName string) error) error {
	root, err := a.resolvePath(prefix)
	if err != nil {
		return exception.NewPipelineErrorf(moduleName, "failed to resolve base path for listing", err)
	}
	absolute := filepath.IsAbs(prefix)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if absolute {
			return fn(path)
		}
		objectName, err := filepath.Rel(a.cfg.BaseDir, path)
		if err != nil {
			return exception.NewPipelineErrorf(moduleName, "failed to get relative path for '%s' from '%s'", path, a.cfg.BaseDir, err)
		}
		return fn(filepath.ToSlash(objectName))
	})
	if err != nil {
		return exception.NewPipelineErrorf(moduleName, "failed to list objects in '%s'", root, err)
	}
	return nil
}

// DeleteObject deletes objectName. A missing object is logged and ignored.
func (a *localAdapter) DeleteObject(ctx context.Context, objectName string) error {
	fullPath, err := a.resolvePath(objectName)
	if err != nil {
		return exception.NewPipelineErrorf(moduleName, "failed to resolve path for delete", err)
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("Attempted to delete non-existent object '%s' (local adapter '%s').", fullPath, a.name)
			return nil
		}
		return exception.NewPipelineErrorf(moduleName, "failed to delete file '%s'", fullPath, err)
	}
	logger.Debugf("Deleted object '%s' (local adapter '%s').", fullPath, a.name)
	return nil
}

// Exists reports whether objectName names an existing file.
func (a *localAdapter) Exists(ctx context.Context, objectName string) (bool, error) {
	fullPath, err := a.resolvePath(objectName)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// resolvePath returns absolute object names unchanged. Relative names are joined to
// BaseDir and must not escape it.
func (a *localAdapter) resolvePath(objectName string) (string, error) {
	if filepath.IsAbs(objectName) {
		return filepath.Clean(objectName), nil
	}
	absBaseDir, err := filepath.Abs(a.cfg.BaseDir)
	if err != nil {
		return "", exception.NewPipelineErrorf(moduleName, "failed to get absolute path for BaseDir '%s'", a.cfg.BaseDir, err)
	}
	fullPath := filepath.Join(absBaseDir, filepath.FromSlash(objectName))
	if fullPath != absBaseDir && !strings.HasPrefix(fullPath, absBaseDir+string(filepath.Separator)) {
		return "", exception.NewPipelineErrorf(moduleName, "resolved path '%s' is outside of BaseDir '%s'", fullPath, a.cfg.BaseDir)
	}
	return fullPath, nil
}

// LocalProvider implements the storage.StorageProvider interface for local file system connections.
type LocalProvider struct {
	cfg         *coreConfig.Config
	connections map[string]storageAdapter.StorageConnection
	mu          sync.RWMutex
}

// NewLocalProvider creates a new LocalProvider instance.
func NewLocalProvider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return &LocalProvider{
		cfg:         cfg,
		connections: make(map[string]storageAdapter.StorageConnection),
	}
}

// GetConnection returns the named connection, creating it from the "Storage" section on first use.
// The default connection falls back to the project root when it is not configured.
func (p *LocalProvider) GetConnection(name string) (storageAdapter.StorageConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}

	storageCfg, err := p.decodeConfig(name)
	if err != nil {
		return nil, err
	}
	if storageCfg.Type != "" && storageCfg.Type != ProviderType {
		return nil, exception.NewPipelineErrorf(moduleName, "storage config type mismatch for '%s': expected '%s', got '%s'", name, ProviderType, storageCfg.Type)
	}
	if storageCfg.BaseDir != "" && !filepath.IsAbs(storageCfg.BaseDir) {
		storageCfg.BaseDir = filepath.Join(p.cfg.RootDir, storageCfg.BaseDir)
	}

	newConn, err := NewLocalAdapter(storageCfg, name)
	if err != nil {
		return nil, exception.NewPipelineErrorf(moduleName, "failed to create local adapter for '%s'", name, err)
	}
	p.connections[name] = newConn
	logger.Debugf("Created new local storage connection '%s' at '%s'.", name, storageCfg.BaseDir)
	return newConn, nil
}

func (p *LocalProvider) decodeConfig(name string) (storageConfig.StorageConfig, error) {
	var storageCfg storageConfig.StorageConfig
	raw, ok := p.cfg.Storage[name]
	if !ok {
		if name != DefaultConnection {
			return storageCfg, exception.NewPipelineErrorf(moduleName, "storage configuration for name '%s' not found", name)
		}
		return storageConfig.StorageConfig{Type: ProviderType, BaseDir: p.cfg.RootDir}, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &storageCfg,
		TagName: "yaml",
	})
	if err != nil {
		return storageCfg, exception.NewPipelineErrorf(moduleName, "failed to create decoder for storage config '%s'", name, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return storageCfg, exception.NewPipelineErrorf(moduleName, "failed to decode storage config for '%s'", name, err)
	}
	if storageCfg.BaseDir == "" {
		storageCfg.BaseDir = p.cfg.RootDir
	}
	return storageCfg, nil
}

// CloseAll closes all connections managed by this provider.
func (p *LocalProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			errs = multierror.Append(errs, exception.NewPipelineErrorf(moduleName, "failed to close local storage connection '%s'", name, err))
		}
		delete(p.connections, name)
	}
	return errs.ErrorOrNil()
}

// Type returns "local".
func (p *LocalProvider) Type() string {
	return ProviderType
}

// NewDefaultConnection resolves the connection used by the pipeline.
func NewDefaultConnection(p storageAdapter.StorageProvider) (storageAdapter.StorageConnection, error) {
	return p.GetConnection(DefaultConnection)
}
