package fix_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datafactory/pkg/etl/component/fix"
	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	etltest "github.com/tigerroll/datafactory/pkg/etl/test"
)

var nan = math.NaN()

func newContext(t *testing.T, dataset string) *execution.Context {
	t.Helper()
	return etltest.NewTestContext(dataset, etltest.NewTestProvider(t, t.TempDir(), nil, nil))
}

func apply(t *testing.T, ec *execution.Context, name string, in *table.Table) model.Outcome {
	t.Helper()
	s, err := fix.NewFactory().Get(name)
	require.NoError(t, err)
	out, err := s.Apply(context.Background(), ec, in)
	require.NoError(t, err)
	return out
}

// runChain applies the dataset's fixer chain and returns the result and the total changes.
func runChain(t *testing.T, ec *execution.Context, in *table.Table) (*table.Table, int) {
	t.Helper()
	chain, err := fix.NewFactory().Chain(ec.Dataset)
	require.NoError(t, err)
	total := 0
	for _, s := range chain {
		out, err := s.Apply(context.Background(), ec, in)
		require.NoError(t, err, s.Name())
		in = out.Table
		total += out.Changes
	}
	return in, total
}

func TestChainSelectsOneDomainFixer(t *testing.T) {
	f := fix.NewFactory()
	for dataset, want := range map[string][]string{
		"Loan":        {fix.MissingValue, fix.Outlier, fix.Loan, fix.Consistency},
		"raw_FRAUD":   {fix.MissingValue, fix.Outlier, fix.Fraud, fix.Consistency},
		"MarketDaily": {fix.MissingValue, fix.Outlier, fix.Market, fix.Consistency},
		"Macro":       {fix.MissingValue, fix.Outlier, fix.Macro, fix.Consistency},
		"Customer":    {fix.MissingValue, fix.Outlier, fix.Consistency},
	} {
		chain, err := f.Chain(dataset)
		require.NoError(t, err)
		names := make([]string, len(chain))
		for i, s := range chain {
			names[i] = s.Name()
		}
		assert.Equal(t, want, names, dataset)
	}
	assert.Len(t, f.Names(), 7)
}

func TestChain_CreditScoreScenarioAndIdempotence(t *testing.T) {
	ec := newContext(t, "Loan")
	in := table.MustNew(
		table.NewInt("CreditScore", []float64{-10, 300, 850, 900, 750}),
		table.NewInt("Age", []float64{25, 130, -4, 40, 17}),
		table.NewFloat("InterestRate", []float64{5, 150, -2, 7, 9}),
	)

	once, changes := runChain(t, ec, in)
	assert.Positive(t, changes)
	assert.Equal(t, []float64{300, 300, 850, 850, 750}, once.Col("CreditScore").Nums())
	assert.Equal(t, []float64{-10, 300, 850, 900, 750}, in.Col("CreditScore").Nums(), "input must stay untouched")

	twice, changes := runChain(t, ec, once)
	assert.Zero(t, changes)
	assert.True(t, once.Equal(twice))
}

func TestLoanFixer_Ranges(t *testing.T) {
	ec := newContext(t, "Loan")
	in := table.MustNew(
		table.NewInt("Age", []float64{-5, 0, 12, 45, 130, 30}),
		table.NewFloat("InterestRate", []float64{-3, 150, 5, 6, 7, 8}),
		table.NewInt("CreditScore", []float64{0, 299, 900, 500, 600, 700}),
		table.NewFloat("LoanAmount", []float64{-100, 2e7, 1, 2, 3, 4}),
		table.NewInt("NumLoans", []float64{-1, 2, 3, 150, 1, 2}),
		table.NewFloat("Num_Accounts", []float64{1.4, 2.5, -1, 3, 4, 5}),
	)

	out := apply(t, ec, fix.Loan, in)

	tbl := out.Table
	assert.Equal(t, []float64{21, 18, 18, 45, 100, 30}, tbl.Col("Age").Nums())
	assert.Equal(t, []float64{3, 100, 5, 6, 7, 8}, tbl.Col("InterestRate").Nums())
	assert.Equal(t, []float64{300, 300, 850, 500, 600, 700}, tbl.Col("CreditScore").Nums())
	assert.Equal(t, []float64{100, 1e7, 1, 2, 3, 4}, tbl.Col("LoanAmount").Nums())
	assert.Equal(t, []float64{0, 2, 3, 20, 1, 2}, tbl.Col("NumLoans").Nums())
	assert.Equal(t, []float64{1, 2, 0, 3, 4, 5}, tbl.Col("Num_Accounts").Nums())
	assert.Equal(t, 16, out.Changes)
}

func TestOutlierFixer_GroupConsensusThenIQR(t *testing.T) {
	ec := newContext(t, "Customer")
	in := table.MustNew(
		table.NewInt("CustomerID", []float64{1, 1, 1, 1, 2, 2, 2, 2, 3, 3}),
		table.NewFloat("Balance", []float64{100, 100, 100, 900, 50, 50, 50, nan, 10, 20}),
	)

	out := apply(t, ec, fix.Outlier, in)

	assert.Equal(t, []float64{100, 100, 100, 100, 50, 50, 50, 50, 10, 20}, out.Table.Col("Balance").Nums())
	assert.Equal(t, 2, out.Changes)
}

func TestOutlierFixer_CapsWithinOriginalBounds(t *testing.T) {
	ec := newContext(t, "Sample")
	vals := make([]float64, 0, 20)
	for i := 1; i <= 19; i++ {
		vals = append(vals, float64(i))
	}
	vals = append(vals, 1000)
	in := table.MustNew(
		table.NewFloat("Value", vals),
		table.NewInt("Flag", []float64{0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1}),
	)
	lower, upper, _ := table.IQRBounds(vals, 3)

	out := apply(t, ec, fix.Outlier, in)

	for _, v := range out.Table.Col("Value").Nums() {
		assert.GreaterOrEqual(t, v, lower)
		assert.LessOrEqual(t, v, upper)
	}
	assert.Equal(t, 43.75, out.Table.Col("Value").Float(19))
	assert.Equal(t, 1, out.Changes)
}

func TestOutlierFixer_LeavesProtectedColumns(t *testing.T) {
	ec := newContext(t, "Market")
	vals := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 1000}
	in := table.MustNew(table.NewFloat("HighestValue", vals))

	out := apply(t, ec, fix.Outlier, in)

	assert.Equal(t, vals, out.Table.Col("HighestValue").Nums())
	assert.Zero(t, out.Changes)
}

func TestMissingValueFixer(t *testing.T) {
	ec := newContext(t, "Loan")
	in := table.MustNew(
		table.NewFloat("Income", []float64{10, nan, 30, 40}),
		table.NewString("LoanType", []string{"Auto", "", "Home", "Auto"}, []bool{true, false, true, true}),
		table.NewString("BankName", []string{"", "X", "Y", "Z"}, []bool{false, true, true, true}),
		table.NewString("City", []string{"Lima", "Oslo", "", "Oslo"}, []bool{true, true, false, true}),
		table.NewTime("Opened", []time.Time{
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), {},
			time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC),
		}, []bool{true, false, true, true}),
		table.NewFloat("Sparse", []float64{nan, nan, nan, 1}),
	)

	out := apply(t, ec, fix.MissingValue, in)
	tbl := out.Table

	assert.Equal(t, 30.0, tbl.Col("Income").Float(1))
	s, _ := tbl.Col("LoanType").Str(1)
	assert.Equal(t, "Unknown", s)
	s, _ = tbl.Col("BankName").Str(0)
	assert.Equal(t, "Not Specified", s)
	s, _ = tbl.Col("City").Str(2)
	assert.Equal(t, "Oslo", s)
	ts, ok := tbl.Col("Opened").Time(1)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), ts)
	assert.Equal(t, 3, tbl.Col("Sparse").NullCount())
	assert.Equal(t, 5, out.Changes)
}

func TestMissingValueFixer_KNN(t *testing.T) {
	ec := newContext(t, "Loan")
	a := make([]float64, 12)
	b := make([]float64, 12)
	c := make([]float64, 12)
	for i := range a {
		a[i] = float64(i + 1)
		b[i] = 2 * a[i]
		c[i] = a[i]
	}
	c[5] = nan
	in := table.MustNew(table.NewFloat("A", a), table.NewFloat("B", b), table.NewFloat("C", c))

	out := apply(t, ec, fix.MissingValue, in)

	assert.InDelta(t, 5.4, out.Table.Col("C").Float(5), 1e-9)
}

func TestFraudFixer(t *testing.T) {
	ec := newContext(t, "Fraud")
	in := table.MustNew(
		table.NewFloat("IsFraudulent", []float64{0, 0.7, 0.2, nan}),
		table.NewString("IsUsedPIN", []string{"1", "0", "2", ""}, []bool{true, true, true, false}),
		table.NewFloat("DistanceFromHome", []float64{-5, 30000, 10, 20}),
		table.NewString("TransactionDate", []string{"2030-01-01", "2000-01-01", "2024-01-01", "2024-02-01"}, nil),
	)

	out := apply(t, ec, fix.Fraud, in)
	tbl := out.Table

	assert.Equal(t, []float64{0, 1, 0, 0}, tbl.Col("IsFraudulent").Nums())
	assert.Equal(t, table.KindInt, tbl.Col("IsFraudulent").Kind())
	assert.Equal(t, []float64{1, 0, 1, 0}, tbl.Col("IsUsedPIN").Nums())
	assert.Equal(t, []float64{5, 20000, 10, 20}, tbl.Col("DistanceFromHome").Nums())
	dates := tbl.Col("TransactionDate")
	require.Equal(t, table.KindTime, dates.Kind())
	first, _ := dates.Time(0)
	assert.Equal(t, etltest.Now, first)
	second, _ := dates.Time(1)
	assert.Equal(t, etltest.Now.AddDate(0, 0, -3650), second)
}

func TestMarketFixer_PriceRelationships(t *testing.T) {
	ec := newContext(t, "Market")
	in := table.MustNew(
		table.NewFloat("OpenValue", []float64{10, 11, 12, 13, 14}),
		table.NewFloat("CloseValue", []float64{11, 12, 13, 14, 15}),
		table.NewFloat("HighestValue", []float64{9, 13, 14, 15, 16}),
		table.NewFloat("LowestValue", []float64{12, 10, 11, 12, 13}),
		table.NewFloat("InterestRate", []float64{-1, 45, 3, 4, 5}),
		table.NewTime("MarketDate", []time.Time{
			etltest.Now.AddDate(1, 0, 0), etltest.Now, etltest.Now, etltest.Now, etltest.Now,
		}, nil),
	)

	out := apply(t, ec, fix.Market, in)
	tbl := out.Table

	open, closing := tbl.Col("OpenValue"), tbl.Col("CloseValue")
	high, low := tbl.Col("HighestValue"), tbl.Col("LowestValue")
	for i := 0; i < tbl.NumRows(); i++ {
		assert.GreaterOrEqual(t, high.Float(i), low.Float(i))
		for _, c := range []*table.Column{open, closing} {
			assert.GreaterOrEqual(t, c.Float(i), low.Float(i))
			assert.LessOrEqual(t, c.Float(i), high.Float(i))
		}
	}
	assert.Equal(t, 12.0, high.Float(0))
	assert.Equal(t, 9.0, low.Float(0))
	assert.Equal(t, []float64{0, 30, 3, 4, 5}, tbl.Col("InterestRate").Nums())
	ts, _ := tbl.Col("MarketDate").Time(0)
	assert.Equal(t, etltest.Now, ts)
	assert.Equal(t, 4, out.Changes)

	again := apply(t, ec, fix.Market, tbl)
	assert.Zero(t, again.Changes)
}

func TestMacroFixer(t *testing.T) {
	ec := newContext(t, "Macro")
	in := table.MustNew(
		table.NewFloat("UnemploymentRate", []float64{-5, 70}),
		table.NewFloat("InflationRate", []float64{-3, 400}),
		table.NewFloat("DebtRatio", []float64{250, 80}),
		table.NewInt("GDP", []float64{-100, 200}),
		table.NewFloat("ConsumerPriceIndex", []float64{-1, 2}),
		table.NewTime("ReportDate", []time.Time{etltest.Now.AddDate(0, 2, 0), etltest.Now.AddDate(-1, 0, 0)}, nil),
	)

	out := apply(t, ec, fix.Macro, in)
	tbl := out.Table

	assert.Equal(t, []float64{5, 50}, tbl.Col("UnemploymentRate").Nums())
	assert.Equal(t, []float64{-3, 100}, tbl.Col("InflationRate").Nums())
	assert.Equal(t, []float64{200, 80}, tbl.Col("DebtRatio").Nums())
	assert.Equal(t, []float64{100, 200}, tbl.Col("GDP").Nums())
	assert.Equal(t, []float64{1, 2}, tbl.Col("ConsumerPriceIndex").Nums())
	ts, _ := tbl.Col("ReportDate").Time(0)
	assert.Equal(t, etltest.Now, ts)
}

func TestConsistencyFixer(t *testing.T) {
	t.Run("fraud online transactions use no chip", func(t *testing.T) {
		in := table.MustNew(
			table.NewInt("IsOnlineTransaction", []float64{1, 0}),
			table.NewInt("IsUsedChip", []float64{1, 1}),
			table.NewBool("IsUsedPIN", []bool{true, true}, nil),
		)
		out := apply(t, newContext(t, "Fraud"), fix.Consistency, in)
		assert.Equal(t, []float64{0, 1}, out.Table.Col("IsUsedChip").Nums())
		pin, _ := out.Table.Col("IsUsedPIN").Bool(0)
		assert.False(t, pin)
		assert.Equal(t, 2, out.Changes)
	})

	t.Run("loan payments and utilization", func(t *testing.T) {
		in := table.MustNew(
			table.NewFloat("LoanAmount", []float64{12000, 12000}),
			table.NewInt("LoanDurationMonths", []float64{12, 0}),
			table.NewFloat("MonthlyPayment", []float64{5000, 5000}),
			table.NewFloat("Balance", []float64{50, 10}),
			table.NewFloat("CreditLimit", []float64{100, nan}),
			table.NewFloat("CreditUtilizationRatio", []float64{90, -150}),
		)
		out := apply(t, newContext(t, "Loan"), fix.Consistency, in)
		assert.Equal(t, []float64{1000, 5000}, out.Table.Col("MonthlyPayment").Nums())
		assert.Equal(t, []float64{50, 100}, out.Table.Col("CreditUtilizationRatio").Nums())
	})

	t.Run("market indicators", func(t *testing.T) {
		in := table.MustNew(
			table.NewFloat("VIX", []float64{60, 10}),
			table.NewFloat("TEDSpread", []float64{0.2, 3}),
		)
		out := apply(t, newContext(t, "Market"), fix.Consistency, in)
		assert.InDeltaSlice(t, []float64{38, 10}, out.Table.Col("VIX").Nums(), 1e-9)
		assert.InDeltaSlice(t, []float64{0.2, 0.75}, out.Table.Col("TEDSpread").Nums(), 1e-9)
	})
}

func TestFixersPassEmptyTablesThrough(t *testing.T) {
	ec := newContext(t, "Loan")
	f := fix.NewFactory()
	for _, name := range f.Names() {
		empty := table.Empty()
		out := apply(t, ec, name, empty)
		assert.Same(t, empty, out.Table, name)
	}
}
