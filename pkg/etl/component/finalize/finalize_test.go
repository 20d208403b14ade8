package finalize_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datafactory/pkg/etl/component/finalize"
	"github.com/tigerroll/datafactory/pkg/etl/component/preprocess"
	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	etltest "github.com/tigerroll/datafactory/pkg/etl/test"
)

func newStrategy(t *testing.T) *finalize.Strategy {
	t.Helper()
	s, err := finalize.New(preprocess.NewFactory(nil))
	require.NoError(t, err)
	return s
}

func apply(t *testing.T, ec *execution.Context, in *table.Table) model.Outcome {
	t.Helper()
	out, err := newStrategy(t).Apply(context.Background(), ec, in)
	require.NoError(t, err)
	return out
}

func TestFinalize_MacroKeysScalesAndLineage(t *testing.T) {
	schema := config.Schema{Columns: []config.SchemaColumn{
		{Name: "ReportDate", Type: "DATE"},
		{Name: "CountryName", Type: "NVARCHAR(50)"},
		{Name: "GDP", Type: "DECIMAL(18,2)"},
		{Name: "Rate", Type: "DECIMAL(5,2)"},
	}}
	cfg := etltest.NewTestConfig(t.TempDir(), nil, nil)
	provider, err := config.NewProvider(cfg, map[string]config.Schema{"Macro": schema})
	require.NoError(t, err)
	ec := etltest.NewTestContext("Macro", provider)

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	in := table.MustNew(
		table.NewTime("ReportDate", []time.Time{jan, jan, feb}, nil),
		table.NewString("CountryName", []string{"Peru", "Peru", "Peru"}, nil),
		table.NewFloat("GDP", []float64{100.6, 200.2, 300.4}),
		table.NewFloat("Rate", []float64{1.234, 9.5, 3.456}),
	)

	out := apply(t, ec, in)
	tbl := out.Table

	require.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, 3, in.NumRows())
	assert.Equal(t, []float64{101, 300}, tbl.Col("GDP").Nums())
	assert.Equal(t, table.KindInt, tbl.Col("GDP").Kind())
	assert.Equal(t, []float64{1.23, 3.46}, tbl.Col("Rate").Nums())

	batch := tbl.Col(finalize.LoadBatchID)
	require.NotNil(t, batch)
	for i := 0; i < tbl.NumRows(); i++ {
		id, ok := batch.Str(i)
		require.True(t, ok)
		assert.Equal(t, ec.Shared.RunID, id)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		loaded, ok := tbl.Col(finalize.LoadDate).Time(i)
		require.True(t, ok)
		assert.Equal(t, etltest.Now, loaded)
	}
	assert.Equal(t, 2, tbl.Col(finalize.LastUpdated).NullCount())
	assert.Positive(t, out.Changes)
}

func TestFinalize_SuffixesRepeatedAccountIDs(t *testing.T) {
	provider := etltest.NewTestProvider(t, t.TempDir(), map[string]interface{}{"add_data_lineage": false}, nil)
	ec := etltest.NewTestContext("Account", provider)
	in := table.MustNew(
		table.NewInt("AccountID", []float64{7, 7, 8, 7}),
		table.NewFloat("Balance", []float64{1, 2, 3, 4}),
	)

	out := apply(t, ec, in)

	ids := out.Table.Col("AccountID")
	require.Equal(t, table.KindString, ids.Kind())
	var got []string
	for i := 0; i < ids.Len(); i++ {
		s, _ := ids.Str(i)
		got = append(got, s)
	}
	assert.Equal(t, []string{"7", "7_01", "8", "7_02"}, got)
	assert.False(t, out.Table.Has(finalize.LoadBatchID))
}

func TestFinalize_LoanInterestAndCleanup(t *testing.T) {
	ec := etltest.NewTestContext("Loan", etltest.NewTestProvider(t, t.TempDir(), nil, nil))
	in := table.MustNew(
		table.NewFloat("InterestRate", []float64{-1, 45, 10}),
		table.NewFloat("Unused", []float64{math.NaN(), math.NaN(), math.NaN()}),
	)

	out := apply(t, ec, in)

	assert.Equal(t, []float64{0, 30, 10}, out.Table.Col("InterestRate").Nums())
	assert.False(t, out.Table.Has("Unused"))
	assert.True(t, out.Table.Has(finalize.LoadDate))
}

func TestFinalize_EmptyTablePassesThrough(t *testing.T) {
	ec := etltest.NewTestContext("Loan", nil)
	empty := table.Empty()
	out := apply(t, ec, empty)
	assert.Same(t, empty, out.Table)
}
