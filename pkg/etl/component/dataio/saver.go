package dataio

import (
	"bytes"
	"context"
	"path/filepath"

	"github.com/tigerroll/datafactory/pkg/etl/adapter/storage"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// Saver encodes tables by extension and uploads them through a storage connection,
// which creates parent directories.
type Saver struct {
	conn storage.StorageConnection
}

var _ port.Saver = (*Saver)(nil)

// NewSaver creates a Saver writing to conn.
func NewSaver(conn storage.StorageConnection) *Saver {
	return &Saver{conn: conn}
}

// Save writes t to path. The file is only created once encoding succeeded.
func (s *Saver) Save(ctx context.Context, t *table.Table, path string) error {
	logger.Infof("Saving data to %s", path)

	codec, err := CodecFor(path)
	if err != nil {
		logger.Errorf("Error saving data to %s: %v", path, err)
		return err
	}
	var buf bytes.Buffer
	if err := codec.Encode(&buf, t); err != nil {
		err = exception.NewPipelineErrorf(moduleName, "failed to encode %s", path, err)
		logger.Errorf("Error saving data to %s: %v", path, err)
		return err
	}
	if err := s.conn.Upload(ctx, path, &buf); err != nil {
		err = exception.NewPipelineErrorf(moduleName, "failed to write %s", path, err)
		logger.Errorf("Error saving data to %s: %v", path, err)
		return err
	}
	logger.Infof("Successfully saved %d rows to %s", t.NumRows(), filepath.Base(path))
	return nil
}
