package fix

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

var groupKeyCandidates = []string{"Customer_ID", "CustomerID", "ID", "User_ID", "UserID", "UserName"}

// protectedColumns are left to the domain fixer of each dataset kind.
var protectedColumns = map[string][]string{
	"loan":   {"Age", "AnnualIncome", "CreditScore", "InterestRate", "LoanAmount", "DebtToIncomeRatio"},
	"fraud":  {"TransactionAmount", "DistanceFromHome"},
	"market": {"OpenValue", "CloseValue", "HighestValue", "LowestValue", "VIX", "TEDSpread"},
	"macro":  {"UnemploymentRate", "GDP", "InflationRate"},
}

// OutlierFixer first replaces values deviating from a group's consensus and then caps each
// eligible numeric column at [Q1 - k*IQR, Q3 + k*IQR].
type OutlierFixer struct{}

func (s *OutlierFixer) Name() string { return Outlier }

func (s *OutlierFixer) Apply(_ context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	k := ec.Engine().OutlierThreshold
	if k <= 0 {
		k = 3.0
	}
	return run(ec, s.Name(), t, func(f *tally, t *table.Table) error {
		key := groupKey(ec, t)
		var keyGroups [][]int
		if key != "" {
			keyGroups = table.GroupRows(t.Col(key))
		}
		grouped := false
		for _, c := range t.NumericColumns() {
			if skipOutliers(ec, c) {
				continue
			}
			if n := consensus(c, keyGroups); n > 0 {
				grouped = true
				f.add(n, fmt.Sprintf("outliers fixed in '%s' using group majority value approach", c.Name()))
			}
			f.add(capIQR(c, k), fmt.Sprintf("outliers fixed in '%s' using statistical approach", c.Name()))
		}
		if grouped {
			ec.Log.Infof("Applied group-based outlier detection using '%s' as the group key", key)
		}
		return nil
	})
}

// groupKey returns the first column, in name order, that is a known customer or user key.
func groupKey(ec *execution.Context, t *table.Table) string {
	names := t.Names()
	return execution.Remember(ec.Memo, execution.Fingerprint("fix.groupkey", names...), func() string {
		sorted := append([]string(nil), names...)
		sort.Strings(sorted)
		for _, name := range sorted {
			for _, candidate := range groupKeyCandidates {
				if strings.EqualFold(name, candidate) {
					return name
				}
			}
		}
		return ""
	})
}

func skipOutliers(ec *execution.Context, c *table.Column) bool {
	lower := strings.ToLower(c.Name())
	if strings.Contains(lower, "id") && !strings.Contains(lower, "ratio") {
		return true
	}
	if c.NUnique() <= 2 || c.MissingRatio() > 0.5 {
		return true
	}
	for kind, cols := range protectedColumns {
		if !ec.Is(kind) {
			continue
		}
		for _, name := range cols {
			if name == c.Name() {
				return true
			}
		}
	}
	return false
}

// consensus overwrites, within each group of at least three rows, every value that differs
// from a value shared by all but at most two rows of the group. Ties between equally
// frequent values resolve to the smallest.
func consensus(c *table.Column, groups [][]int) int {
	fixed := 0
	for _, rows := range groups {
		n := len(rows)
		if n < 3 {
			continue
		}
		counts := map[float64]int{}
		for _, i := range rows {
			if v := c.Float(i); !math.IsNaN(v) {
				counts[v]++
			}
		}
		expected, top := math.NaN(), 0
		for v, cnt := range counts {
			if cnt > top || (cnt == top && v < expected) {
				expected, top = v, cnt
			}
		}
		if top == 0 || top < n-2 {
			continue
		}
		for _, i := range rows {
			if c.Float(i) != expected {
				c.SetFloat(i, expected)
				fixed++
			}
		}
	}
	return fixed
}

// capIQR clamps present values into the k*IQR fences of the column; constant columns are left alone.
func capIQR(c *table.Column, k float64) int {
	vals := c.NonNull()
	if len(vals) == 0 {
		return 0
	}
	lower, upper, iqr := table.IQRBounds(vals, k)
	if iqr == 0 {
		return 0
	}
	n := replace(c, below(lower), to(lower))
	n += replace(c, above(upper), to(upper))
	if n > 0 && c.Kind() == table.KindInt && !table.IsWholeNumbers(c) {
		c.SetIntKind(false)
	}
	return n
}
