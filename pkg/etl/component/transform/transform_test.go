package transform_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datafactory/pkg/etl/component/transform"
	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	etltest "github.com/tigerroll/datafactory/pkg/etl/test"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
)

func run(t *testing.T, f *transform.Factory, ec *execution.Context, in *table.Table) *table.Table {
	t.Helper()
	out := in
	for _, name := range transform.Order {
		s, err := f.Get(name)
		require.NoError(t, err)
		res, err := s.Apply(context.Background(), ec, out)
		require.NoError(t, err, name)
		out = res.Table
	}
	return out
}

func customProvider(t *testing.T, dataset string, schema config.Schema, mappings []map[string]string) *config.Provider {
	t.Helper()
	cfg := etltest.NewTestConfig(t.TempDir(), nil, map[string]config.DatasetConfig{dataset: {FieldMappings: mappings}})
	provider, err := config.NewProvider(cfg, map[string]config.Schema{dataset: schema})
	require.NoError(t, err)
	return provider
}

func TestFactory_Names(t *testing.T) {
	f := transform.NewFactory(nil)
	assert.Equal(t, []string{transform.DataGeneration, transform.SchemaTransformation}, f.Names())
	_, err := f.Get("Schema_transformation")
	assert.ErrorIs(t, err, exception.ErrUnknownStrategy)
}

func TestSchemaStrategy_MapsAndMarksFields(t *testing.T) {
	provider := etltest.NewTestProvider(t, t.TempDir(), nil, map[string]config.DatasetConfig{
		"Macro": {FieldMappings: []map[string]string{
			{"ReportDate": "report_date"},
			{"CountryName": "country"},
			{"GDP": "gdp"},
			{"DebtRatio": "debt"},
		}},
	})
	ec := etltest.NewTestContext("Macro", provider)
	in := table.MustNew(
		table.NewInt("report_date", []float64{2020, 2021}),
		table.NewString("Country", []string{"Brazil", "Chile"}, nil),
		table.NewFloat("gdp", []float64{1.5, math.NaN()}),
		table.NewFloat("debt", []float64{0.123, 0.456}),
		table.NewFloat("unused", []float64{1, 2}),
	)
	s, err := transform.NewFactory(nil).Get(transform.SchemaTransformation)
	require.NoError(t, err)

	res, err := s.Apply(context.Background(), ec, in)
	require.NoError(t, err)
	out := res.Table

	// Every schema column but the identity appears, in schema order.
	assert.Equal(t, []string{"ReportDate", "CountryName", "UnemploymentRate", "GDP", "DebtRatio",
		"DeficitRatio", "InflationRate", "ConsumerPriceIndex", "HousePriceIndex"}, out.Names())
	assert.False(t, out.Has("MacroID"))
	assert.Equal(t, []string{"UnemploymentRate", "DeficitRatio", "InflationRate", "ConsumerPriceIndex", "HousePriceIndex"}, ec.PendingFields)

	ts, ok := out.Col("ReportDate").Time(1)
	require.True(t, ok)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), ts)
	country, _ := out.Col("CountryName").Str(0)
	assert.Equal(t, "Brazil", country)
	assert.Equal(t, []float64{1.5, 0}, out.Col("GDP").Nums())
	assert.Equal(t, []float64{0.12, 0.46}, out.Col("DebtRatio").Nums())
	assert.Equal(t, 2, out.Col("UnemploymentRate").NullCount())
}

func TestSchemaStrategy_EnumeratesTextIDs(t *testing.T) {
	provider := etltest.NewTestProvider(t, t.TempDir(), nil, map[string]config.DatasetConfig{
		"Loan": {FieldMappings: []map[string]string{{"CustomerID": "cust_id"}}},
	})
	ec := etltest.NewTestContext("Loan", provider)
	in := table.MustNew(table.NewString("cust_id", []string{"a", "b", "a", ""}, []bool{true, true, true, false}))
	s, err := transform.NewFactory(nil).Get(transform.SchemaTransformation)
	require.NoError(t, err)

	res, err := s.Apply(context.Background(), ec, in)
	require.NoError(t, err)

	ids := res.Table.Col("CustomerID")
	require.Equal(t, table.KindInt, ids.Kind())
	assert.Equal(t, ids.Float(0), ids.Float(2))
	assert.NotEqual(t, ids.Float(0), ids.Float(1))
	assert.GreaterOrEqual(t, ids.Float(0), 10000.0)
	assert.Equal(t, 0.0, ids.Float(3))
}

func TestSchemaStrategy_CoercesBitTextAndUUID(t *testing.T) {
	schema := config.Schema{Columns: []config.SchemaColumn{
		{Name: "Active", Type: "BIT"},
		{Name: "Code", Type: "VARCHAR(3)"},
		{Name: "Token", Type: "UNIQUEIDENTIFIER"},
		{Name: "Seq", Type: "INT", Identity: true},
	}}
	provider := customProvider(t, "Flags", schema, []map[string]string{
		{"Active": "active"}, {"Code": "code"}, {"Token": "token"}, {"Seq": "seq"},
	})
	ec := etltest.NewTestContext("Flags", provider)
	in := table.MustNew(
		table.NewString("active", []string{"Enabled", "off", "", "maybe"}, []bool{true, true, false, true}),
		table.NewString("code", []string{"ABCDE", "XY", "", "Q"}, []bool{true, true, false, true}),
		table.NewString("token", []string{"x", "y", "z", "w"}, nil),
		table.NewInt("seq", []float64{1, 2, 3, 4}),
	)
	s, err := transform.NewFactory(nil).Get(transform.SchemaTransformation)
	require.NoError(t, err)

	res, err := s.Apply(context.Background(), ec, in)
	require.NoError(t, err)
	out := res.Table

	assert.Equal(t, []string{"Active", "Code", "Token"}, out.Names())
	for i, want := range []bool{true, false, false, true} {
		got, ok := out.Col("Active").Bool(i)
		require.True(t, ok)
		assert.Equal(t, want, got, i)
	}
	code, _ := out.Col("Code").Str(0)
	assert.Equal(t, "ABC", code)
	token, _ := out.Col("Token").Str(0)
	assert.Len(t, token, 36)
	assert.Empty(t, ec.PendingFields)
}

func TestGeneration_MarketRelations(t *testing.T) {
	provider := etltest.NewTestProvider(t, t.TempDir(), nil, map[string]config.DatasetConfig{
		"Market": {FieldMappings: []map[string]string{{"MarketDate": "date"}}},
	})
	ec := etltest.NewTestContext("Market", provider)
	in := table.MustNew(table.NewString("date", []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, nil))

	out := run(t, transform.NewFactory(nil), ec, in)

	assert.Equal(t, 4, out.NumRows())
	for _, c := range out.Columns() {
		assert.Zero(t, c.NullCount(), c.Name())
	}
	high, low := out.Col("HighestValue"), out.Col("LowestValue")
	for i := 0; i < out.NumRows(); i++ {
		assert.GreaterOrEqual(t, high.Float(i), low.Float(i))
		name, _ := out.Col("MarketName").Str(i)
		assert.Equal(t, "NASDAQ", name)
	}
}

func TestGeneration_ReusesCookedIDsAndUniqueAccounts(t *testing.T) {
	root := t.TempDir()
	provider := etltest.NewTestProvider(t, root, nil, nil)
	cooked := filepath.Join(provider.Engine().OutputDir, "Fraud_cooked.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(cooked), 0o755))
	require.NoError(t, os.WriteFile(cooked, []byte("CustomerID\n501\n502\n0\n"), 0o644))
	loader := &etltest.StubLoader{Tables: map[string]*table.Table{
		cooked: table.MustNew(table.NewInt("CustomerID", []float64{501, 502, 0})),
	}}
	ec := etltest.NewTestContext("Loan", provider)
	in := table.MustNew(table.NewFloat("x", []float64{1, 2, 3, 4}))

	out := run(t, transform.NewFactory(loader), ec, in)

	for _, v := range out.Col("CustomerID").Nums() {
		assert.Contains(t, []float64{501, 502}, v)
	}
	accounts := out.Col("AccountID")
	for i := 0; i < accounts.Len(); i++ {
		v, _ := accounts.Str(i)
		assert.True(t, strings.HasPrefix(v, "ACC"), v)
	}
	assert.Equal(t, 4, ec.Shared.Accounts.Len())
	assert.Equal(t, 1, ec.Shared.IDs.Fields())
	for _, v := range out.Col("LoanDurationMonths").Nums() {
		assert.GreaterOrEqual(t, v, 3.0)
	}
}

func TestGeneration_RelatesDatesAndRatios(t *testing.T) {
	schema := config.Schema{Columns: []config.SchemaColumn{
		{Name: "StartDate", Type: "DATE"},
		{Name: "EndDate", Type: "DATE"},
		{Name: "UtilizationRatio", Type: "DECIMAL(10,4)"},
		{Name: "Notes", Type: "VARCHAR(5)"},
	}}
	provider := customProvider(t, "Contract", schema, []map[string]string{
		{"StartDate": "start"}, {"EndDate": "end"}, {"UtilizationRatio": "util"},
	})
	ec := etltest.NewTestContext("Contract", provider)
	in := table.MustNew(
		table.NewString("start", []string{"2024-01-10", "2024-02-01", "2024-03-01"}, nil),
		table.NewString("end", []string{"2024-01-01", "2024-02-10", "2024-03-01"}, nil),
		table.NewFloat("util", []float64{5, 10, 15}),
	)

	out := run(t, transform.NewFactory(nil), ec, in)

	start, end := out.Col("StartDate"), out.Col("EndDate")
	for i := 0; i < out.NumRows(); i++ {
		s, _ := start.Time(i)
		e, _ := end.Time(i)
		assert.False(t, e.Before(s), i)
	}
	e, _ := end.Time(1)
	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), e)
	assert.Equal(t, []float64{0, 0.5, 1}, out.Col("UtilizationRatio").Nums())
	for i := 0; i < out.NumRows(); i++ {
		note, _ := out.Col("Notes").Str(i)
		assert.LessOrEqual(t, len(note), 5)
	}
}

func TestGeneration_TextFitsDeclaredLength(t *testing.T) {
	schema := config.Schema{Columns: []config.SchemaColumn{
		{Name: "Amount", Type: "DECIMAL(10,2)"},
		{Name: "LoanStatus", Type: "VARCHAR(4)"},
		{Name: "CustomerName", Type: "VARCHAR(16)"},
		{Name: "BranchCode", Type: "VARCHAR(6)"},
		{Name: "Comment", Type: "NVARCHAR(2)"},
	}}
	provider := customProvider(t, "Ledger", schema, []map[string]string{{"Amount": "amt"}})
	ec := etltest.NewTestContext("Ledger", provider)
	in := table.MustNew(table.NewFloat("amt", []float64{10, 20, 30, 40, 50, 60, 70, 80}))

	out := run(t, transform.NewFactory(nil), ec, in)

	limits := map[string]int{"LoanStatus": 4, "CustomerName": 16, "BranchCode": 6, "Comment": 2}
	for name, limit := range limits {
		col := out.Col(name)
		require.NotNil(t, col, name)
		for i := 0; i < col.Len(); i++ {
			v, ok := col.Str(i)
			require.True(t, ok, "%s row %d", name, i)
			assert.NotEmpty(t, v, "%s row %d", name, i)
			assert.LessOrEqual(t, len([]rune(v)), limit, "%s row %d: %q", name, i, v)
		}
	}
}

func TestEnsureUnique_MacroKeepsFirst(t *testing.T) {
	ec := etltest.NewTestContext("Macro", nil)
	in := table.MustNew(
		table.NewString("ReportDate", []string{"2024-01-31", "2024-01-31", "2024-02-29"}, nil),
		table.NewString("CountryName", []string{"BR", "BR", "BR"}, nil),
		table.NewInt("GDP", []float64{1, 2, 3}),
	)

	out, removed := transform.EnsureUnique(ec, in)

	assert.Equal(t, 1, removed)
	assert.Equal(t, []float64{1, 3}, out.Col("GDP").Nums())
}

func TestEnsureUnique_CustomerAggregates(t *testing.T) {
	ec := etltest.NewTestContext("Customer", nil)
	in := table.MustNew(
		table.NewInt("CustomerID", []float64{1, 1, 2}),
		table.NewString("StatementDate", []string{"d1", "d1", "d2"}, nil),
		table.NewFloat("TotalAssets", []float64{10, 20, 5}),
		table.NewFloat("AnnualIncome", []float64{100, 300, 50}),
		table.NewInt("MonthlySavings", []float64{1, 2, 3}),
		table.NewString("Note", []string{"first", "second", "third"}, nil),
	)

	out, removed := transform.EnsureUnique(ec, in)

	assert.Equal(t, 1, removed)
	assert.Equal(t, []float64{30, 5}, out.Col("TotalAssets").Nums())
	assert.Equal(t, []float64{300, 50}, out.Col("AnnualIncome").Nums())
	assert.Equal(t, []float64{1.5, 3}, out.Col("MonthlySavings").Nums())
	assert.Equal(t, table.KindFloat, out.Col("MonthlySavings").Kind())
	note, _ := out.Col("Note").Str(0)
	assert.Equal(t, "first", note)
}
