package fix

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

const (
	minAge, maxAge               = 18, 100
	minCreditScore               = 300
	maxCreditScore               = 850
	maxLoanAmount                = 10_000_000
	maxAnnualIncome              = 100_000_000
	maxLoanInterest              = 100
	maxNumLoans, numLoansHardCap = 100, 20
)

// LoanFixer enforces the value ranges of loan applications.
type LoanFixer struct{}

func (s *LoanFixer) Name() string { return Loan }

func (s *LoanFixer) Apply(_ context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	return run(ec, s.Name(), t, func(f *tally, t *table.Table) error {
		if c := numericCol(t, "Age"); c != nil {
			fixAge(f, c)
		}
		if c := numericCol(t, "LoanAmount"); c != nil {
			f.add(replace(c, below(0), math.Abs), "negative loan amounts fixed")
			f.add(replace(c, above(maxLoanAmount), to(maxLoanAmount)), "unrealistically high loan amounts fixed")
		}
		if c := numericCol(t, "InterestRate"); c != nil {
			f.add(replace(c, below(0), math.Abs), "negative interest rates fixed")
			f.add(replace(c, above(maxLoanInterest), to(maxLoanInterest)), "unrealistically high interest rates fixed")
		}
		if c := numericCol(t, "CreditScore"); c != nil {
			f.add(replace(c, below(0), to(minCreditScore)), "negative credit scores fixed")
			f.add(replace(c, below(minCreditScore), to(minCreditScore)), "unrealistically low credit scores fixed")
			f.add(replace(c, above(maxCreditScore), to(maxCreditScore)), "unrealistically high credit scores fixed")
		}
		if c := numericCol(t, "AnnualIncome"); c != nil {
			f.add(replace(c, below(0), math.Abs), "negative annual income values fixed")
			f.add(replace(c, above(maxAnnualIncome), to(maxAnnualIncome)), "unrealistically high annual income values fixed")
		}
		if c := numericCol(t, "NumLoans"); c != nil {
			f.add(replace(c, below(0), to(0)), "negative loan counts fixed")
			if countWhere(c, above(maxNumLoans)) > 0 {
				limit := math.Min(c.Quantiles(0.99)[0], numLoansHardCap)
				f.add(replace(c, above(maxNumLoans), to(limit)),
					fmt.Sprintf("unrealistically high loan counts fixed (capped at %g)", limit))
			}
		}
		fixCountColumns(f, t)
		return nil
	})
}

// fixAge replaces negative ages with the column median and moves the rest into [18, 100].
func fixAge(f *tally, c *table.Column) {
	median := math.Max(minAge, math.Min(maxAge, table.Median(c.NonNull())))
	f.add(replace(c, below(0), to(median)), "negative ages fixed")
	f.add(replace(c, above(maxAge), to(maxAge)), "unrealistically high ages fixed")
	f.add(replace(c, below(minAge), to(minAge)), "unrealistically low ages fixed")
}

// fixCountColumns makes Num_*, *Count* and *Number* columns non-negative whole numbers.
func fixCountColumns(f *tally, t *table.Table) {
	for _, c := range t.NumericColumns() {
		name := c.Name()
		if !strings.HasPrefix(name, "Num_") && !strings.Contains(name, "Count") && !strings.Contains(name, "Number") {
			continue
		}
		f.add(replace(c, below(0), to(0)), fmt.Sprintf("negative %s values fixed", name))
		fractional := func(v float64) bool { return v != math.Trunc(v) }
		f.add(replace(c, fractional, math.RoundToEven), fmt.Sprintf("non-integer %s values fixed", name))
	}
}

func countWhere(c *table.Column, pred func(float64) bool) int {
	n := 0
	for _, v := range c.Nums() {
		if !math.IsNaN(v) && pred(v) {
			n++
		}
	}
	return n
}
