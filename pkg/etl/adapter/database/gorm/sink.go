package gorm

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/datafactory/pkg/etl/adapter/database"
	dbconfig "github.com/tigerroll/datafactory/pkg/etl/adapter/database/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/retry"
)

const (
	moduleName       = "database"
	defaultBatchSize = 500
)

// defaultRetryableErrors are transient failures of the supported databases.
var defaultRetryableErrors = []string{"BadConnection", "connection refused", "connection reset", "deadlock", "database is locked"}

func init() {
	exception.RegisterErrorType("BadConnection", driver.ErrBadConn)
}

// TableSink writes cooked tables into staging tables through GORM.
type TableSink struct {
	db     *gorm.DB
	cfg    dbconfig.DatabaseConfig
	policy retry.RetryPolicy
}

var _ database.TableSink = (*TableSink)(nil)

// NewTableSink wraps an open connection.
func NewTableSink(db *gorm.DB, cfg dbconfig.DatabaseConfig) *TableSink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Mode == "" {
		cfg.Mode = dbconfig.ModeReplace
	}
	retryable := cfg.Retry.RetryableErrors
	if len(retryable) == 0 {
		retryable = defaultRetryableErrors
	}
	policy := retry.NewDefaultRetryPolicyFactory().Create(
		cfg.Retry.MaxAttempts, time.Duration(cfg.Retry.IntervalMillis)*time.Millisecond, retryable)
	return &TableSink{db: db, cfg: cfg, policy: policy}
}

// Type returns the configured database type.
func (s *TableSink) Type() string { return s.cfg.Type }

// Write creates the staging table of dataset when needed and inserts every row of t in
// batches inside one transaction. In replace mode the table is dropped first.
// A transaction failing with a retryable error is run again.
func (s *TableSink) Write(ctx context.Context, dataset string, t *table.Table) (int64, error) {
	if t.IsEmpty() {
		return 0, exception.NewPipelineErrorf(moduleName, "refusing to load empty table for dataset '%s'", dataset, exception.ErrEmptyTable)
	}
	name := s.cfg.TableName(dataset)
	rows := tableRows(t)

	var written int64
	err := retry.Do(ctx, s.policy, "load of "+name, func(ctx context.Context) error {
		written = 0
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if s.cfg.Mode == dbconfig.ModeReplace {
				if err := tx.Exec("DROP TABLE IF EXISTS " + tx.Statement.Quote(name)).Error; err != nil {
					return err
				}
			}
			if err := tx.Exec(createTableSQL(tx, name, t)).Error; err != nil {
				return err
			}
			for start := 0; start < len(rows); start += s.cfg.BatchSize {
				end := min(start+s.cfg.BatchSize, len(rows))
				result := tx.Table(name).Create(rows[start:end])
				if result.Error != nil {
					return result.Error
				}
				written += result.RowsAffected
			}
			return nil
		})
	})
	if err != nil {
		return 0, exception.NewPipelineErrorf(moduleName, "failed to load dataset '%s' into table '%s'", dataset, name, err)
	}
	logger.Infof("Loaded %d rows of dataset '%s' into table '%s' (%s).", written, dataset, name, s.cfg.Type)
	return written, nil
}

// Close closes the underlying connection pool.
func (s *TableSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func createTableSQL(tx *gorm.DB, name string, t *table.Table) string {
	defs := make([]string, 0, t.NumCols())
	for _, c := range t.Columns() {
		defs = append(defs, fmt.Sprintf("%s %s", tx.Statement.Quote(c.Name()), columnType(tx.Dialector.Name(), c.Kind())))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tx.Statement.Quote(name), strings.Join(defs, ", "))
}

func columnType(dialect string, kind table.Kind) string {
	switch kind {
	case table.KindFloat:
		return "DOUBLE PRECISION"
	case table.KindInt:
		return "BIGINT"
	case table.KindTime:
		if dialect == "mysql" {
			return "DATETIME"
		}
		return "TIMESTAMP"
	case table.KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func tableRows(t *table.Table) []map[string]interface{} {
	cols := t.Columns()
	rows := make([]map[string]interface{}, t.NumRows())
	for i := range rows {
		row := make(map[string]interface{}, len(cols))
		for _, c := range cols {
			row[c.Name()] = c.Value(i)
		}
		rows[i] = row
	}
	return rows
}
