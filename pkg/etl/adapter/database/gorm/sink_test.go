package gorm_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"

	dbconfig "github.com/tigerroll/datafactory/pkg/etl/adapter/database/config"
	gormadapter "github.com/tigerroll/datafactory/pkg/etl/adapter/database/gorm"
	_ "github.com/tigerroll/datafactory/pkg/etl/adapter/database/gorm/sqlite"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
)

func cookedMacro() *table.Table {
	day := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	return table.MustNew(
		table.NewTime("ReportDate", []time.Time{day, day, day}, nil),
		table.NewString("CountryName", []string{"Japan", "Chile", ""}, []bool{true, true, false}),
		table.NewInt("GDP", []float64{4200000, 300000, 0}),
		table.NewFloat("Inflation", []float64{2.5, -0.4, math.NaN()}),
	)
}

func TestTableSink_SQLite(t *testing.T) {
	cfg := dbconfig.DatabaseConfig{
		Enabled:     true,
		Type:        "sqlite",
		Database:    filepath.Join(t.TempDir(), "staging.db"),
		TablePrefix: "stg_",
		Mode:        dbconfig.ModeReplace,
		BatchSize:   2,
	}
	db, err := gormadapter.Open(cfg)
	require.NoError(t, err)
	sink := gormadapter.NewTableSink(db, cfg)
	defer sink.Close()

	ctx := context.Background()
	n, err := sink.Write(ctx, "Macro", cookedMacro())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	// Replace mode drops the previous load.
	n, err = sink.Write(ctx, "Macro", cookedMacro())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	var count int64
	require.NoError(t, db.Table("stg_Macro").Count(&count).Error)
	assert.EqualValues(t, 3, count)

	var nullCountries int64
	require.NoError(t, db.Table("stg_Macro").Where("CountryName IS NULL").Count(&nullCountries).Error)
	assert.EqualValues(t, 1, nullCountries)

	appendCfg := cfg
	appendCfg.Mode = dbconfig.ModeAppend
	_, err = gormadapter.NewTableSink(db, appendCfg).Write(ctx, "Macro", cookedMacro())
	require.NoError(t, err)
	require.NoError(t, db.Table("stg_Macro").Count(&count).Error)
	assert.EqualValues(t, 6, count)
}

func TestTableSink_RejectsEmptyTable(t *testing.T) {
	cfg := dbconfig.DatabaseConfig{Type: "sqlite", Database: filepath.Join(t.TempDir(), "s.db")}
	db, err := gormadapter.Open(cfg)
	require.NoError(t, err)
	sink := gormadapter.NewTableSink(db, cfg)
	defer sink.Close()

	_, err = sink.Write(context.Background(), "Loan", table.Empty())
	assert.ErrorIs(t, err, exception.ErrEmptyTable)
}

func TestTableSink_FailureRollsBack(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gormadapter.OpenDialector(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), dbconfig.PoolConfig{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE IF EXISTS `stg_Fraud`").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	sink := gormadapter.NewTableSink(db, dbconfig.DatabaseConfig{Type: "mysql", TablePrefix: "stg_"})
	_, err = sink.Write(context.Background(), "Fraud", table.MustNew(table.NewInt("IsFraudulent", []float64{1, 0})))
	require.Error(t, err)
	assert.True(t, exception.IsPipelineError(err))
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableSink_RetriesTransientFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gormadapter.OpenDialector(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), dbconfig.PoolConfig{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE IF EXISTS `stg_Fraud`").WillReturnError(errors.New("Error 1213: Deadlock found when trying to get lock"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE IF EXISTS `stg_Fraud`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO `stg_Fraud`").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	sink := gormadapter.NewTableSink(db, dbconfig.DatabaseConfig{
		Type:        "mysql",
		TablePrefix: "stg_",
		Retry:       dbconfig.RetryConfig{MaxAttempts: 2, IntervalMillis: 1},
	})
	n, err := sink.Write(context.Background(), "Fraud", table.MustNew(table.NewInt("IsFraudulent", []float64{1, 0})))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
