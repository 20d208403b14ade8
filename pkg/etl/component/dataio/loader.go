package dataio

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/tigerroll/datafactory/pkg/etl/adapter/storage"
	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// unsampled formats are always read in full.
var unsampled = map[string]bool{"parquet": true}

// Loader reads tables through a storage connection, capping row-oriented formats at nsamples rows.
type Loader struct {
	conn     storage.StorageConnection
	provider *config.Provider
}

var _ port.Loader = (*Loader)(nil)

// NewLoader creates a Loader. The sample size is read from provider on every load.
func NewLoader(conn storage.StorageConnection, provider *config.Provider) *Loader {
	return &Loader{conn: conn, provider: provider}
}

func (l *Loader) limitFor(path string) int {
	if l.provider == nil {
		return 0
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if unsampled[ext] {
		return 0
	}
	return l.provider.Engine().NSamples
}

// Load returns the table stored at path. On any failure it returns an empty table and the cause.
func (l *Loader) Load(ctx context.Context, path string) (*table.Table, error) {
	logger.Debugf("Loading data from %s", path)

	codec, err := CodecFor(path)
	if err != nil {
		logger.Errorf("Error loading data from %s: %v", path, err)
		return table.Empty(), err
	}
	rc, err := l.conn.Download(ctx, path)
	if err != nil {
		err = exception.NewPipelineErrorf(moduleName, "failed to open %s", path, err)
		logger.Errorf("Error loading data from %s: %v", path, err)
		return table.Empty(), err
	}
	defer rc.Close()

	t, err := codec.Decode(rc, l.limitFor(path))
	if err != nil {
		err = exception.NewPipelineErrorf(moduleName, "failed to decode %s", path, err)
		logger.Errorf("Error loading data from %s: %v", path, err)
		return table.Empty(), err
	}
	logger.Infof("Successfully loaded %d rows from %s", t.NumRows(), filepath.Base(path))
	return t, nil
}
