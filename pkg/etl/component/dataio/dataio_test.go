package dataio_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/datafactory/pkg/etl/adapter/storage/config"
	"github.com/tigerroll/datafactory/pkg/etl/adapter/storage/local"
	"github.com/tigerroll/datafactory/pkg/etl/component/dataio"
	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
)

func newIO(t *testing.T, nsamples int) (*dataio.Loader, *dataio.Saver, string) {
	t.Helper()
	dir := t.TempDir()
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: local.ProviderType, BaseDir: dir}, local.DefaultConnection)
	require.NoError(t, err)
	provider, err := config.NewProvider(config.NewConfig(dir), nil)
	require.NoError(t, err)
	require.NoError(t, provider.Set("nsamples", nsamples))
	return dataio.NewLoader(conn, provider), dataio.NewSaver(conn), dir
}

func sample() *table.Table {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return table.MustNew(
		table.NewInt("LoanID", []float64{1, 2, 3}),
		table.NewFloat("Amount", []float64{1500.5, math.NaN(), 20}),
		table.NewString("Country", []string{"Brazil", "", "Chile"}, []bool{true, false, true}),
		table.NewBool("Active", []bool{true, false, true}, nil),
		table.NewTime("StartDate", []time.Time{day, day.AddDate(0, 1, 0), day}, []bool{true, true, false}),
	)
}

func TestRoundTripEveryFormat(t *testing.T) {
	for _, ext := range []string{"csv", "json", "xlsx", "parquet"} {
		t.Run(ext, func(t *testing.T) {
			loader, saver, dir := newIO(t, 100)
			path := filepath.Join(dir, "nested", "loans."+ext)

			require.NoError(t, saver.Save(context.Background(), sample(), path))
			got, err := loader.Load(context.Background(), path)
			require.NoError(t, err)

			assert.Equal(t, []string{"LoanID", "Amount", "Country", "Active", "StartDate"}, got.Names())
			assert.Equal(t, 3, got.NumRows())
			assert.Equal(t, table.KindInt, got.Col("LoanID").Kind())
			assert.Equal(t, 1500.5, got.Col("Amount").Float(0))
			assert.True(t, got.Col("Amount").IsNull(1))
			assert.True(t, got.Col("Country").IsNull(1))
			assert.Equal(t, table.KindBool, got.Col("Active").Kind())
			// dates stay text until the cleaning stage parses them
			s, ok := got.Col("StartDate").Str(0)
			assert.True(t, ok)
			assert.Equal(t, "2024-03-01", s)
			assert.True(t, got.Col("StartDate").IsNull(2))
		})
	}
}

func TestLoadCapsRowsAtSampleSize(t *testing.T) {
	loader, _, dir := newIO(t, 2)
	path := filepath.Join(dir, "raw.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeffa,b,a\n1,x,2\n3,y,4\n5,z,6\n"), 0o644))

	got, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, got.NumRows())
	assert.Equal(t, []string{"a", "b", "a_1"}, got.Names())
}

func TestParquetIsReadInFull(t *testing.T) {
	loader, saver, dir := newIO(t, 1)
	path := filepath.Join(dir, "full.parquet")
	require.NoError(t, saver.Save(context.Background(), sample(), path))

	got, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, got.NumRows())
}

func TestLoadFailuresReturnEmptyTable(t *testing.T) {
	loader, saver, dir := newIO(t, 100)

	got, err := loader.Load(context.Background(), filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
	assert.True(t, got.IsEmpty())

	got, err = loader.Load(context.Background(), filepath.Join(dir, "data.txt"))
	assert.ErrorIs(t, err, exception.ErrUnsupportedFormat)
	assert.True(t, got.IsEmpty())

	err = saver.Save(context.Background(), sample(), filepath.Join(dir, "out.xml"))
	assert.ErrorIs(t, err, exception.ErrUnsupportedFormat)
	_, statErr := os.Stat(filepath.Join(dir, "out.xml"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestJSONKeepsFirstSeenColumnOrder(t *testing.T) {
	loader, _, dir := newIO(t, 100)
	path := filepath.Join(dir, "records.json")
	body := `[{"z": 1, "a": "x"}, {"a": "y", "m": true, "z": null}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	got, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, got.Names())
	assert.True(t, got.Col("z").IsNull(1))
	assert.True(t, got.Col("m").IsNull(0))
}

func TestInferColumn(t *testing.T) {
	assert.Equal(t, table.KindInt, dataio.InferColumn("n", []string{"1", "NA", "3"}).Kind())
	assert.Equal(t, table.KindFloat, dataio.InferColumn("n", []string{"1.5", "", "3"}).Kind())
	assert.Equal(t, table.KindBool, dataio.InferColumn("b", []string{"True", "false", "null"}).Kind())
	assert.Equal(t, table.KindString, dataio.InferColumn("s", []string{"1", "two"}).Kind())

	empty := dataio.InferColumn("e", []string{"", "n/a"})
	assert.Equal(t, 2, empty.NullCount())
	assert.True(t, dataio.IsMissing(" NaN "))
	assert.True(t, dataio.Supported("x.XLSX"))
	assert.False(t, dataio.Supported("x.pkl"))
}
