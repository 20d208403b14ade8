package transform

import (
	"strings"

	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

type aggregation int

const (
	aggSum aggregation = iota
	aggMean
	aggMax
)

// customerAggregation decides how repeated CustomerID and date rows are merged.
var customerAggregation = map[string]aggregation{
	"AnnualIncome":        aggMax,
	"TotalAssets":         aggSum,
	"TotalLiabilities":    aggSum,
	"AnnualExpenses":      aggSum,
	"MonthlySavings":      aggMean,
	"AnnualBonus":         aggSum,
	"DebtToIncomeRatio":   aggMean,
	"PaymentHistoryYears": aggMax,
	"JobTenureMonths":     aggMax,
	"NumDependents":       aggMax,
}

// EnsureUnique enforces the natural keys of Macro (ReportDate and CountryName, first row
// kept) and Customer (CustomerID and the first date column, rows aggregated) datasets.
// It returns the resulting table and the number of rows removed.
func EnsureUnique(ec *execution.Context, t *table.Table) (*table.Table, int) {
	switch {
	case ec.Is("Macro") && t.Has("ReportDate") && t.Has("CountryName"):
		dup := t.DuplicateRows("ReportDate", "CountryName")
		removed := 0
		keep := make([]bool, len(dup))
		for i, d := range dup {
			keep[i] = !d
			if d {
				removed++
			}
		}
		if removed == 0 {
			return t, 0
		}
		ec.Log.Warnf("Found %d duplicate date/country combinations in Macro data. Keeping first occurrence only.", removed)
		return t.Filter(keep), removed

	case ec.Is("Customer") && t.Has("CustomerID"):
		var dateCol string
		for _, name := range t.Names() {
			if strings.Contains(name, "Date") {
				dateCol = name
				break
			}
		}
		if dateCol == "" {
			return t, 0
		}
		out := aggregateByKey(t, []string{"CustomerID", dateCol}, customerAggregation)
		removed := t.NumRows() - out.NumRows()
		if removed > 0 {
			ec.Log.Infof("Aggregated duplicate CustomerID/Date combinations to %d unique customer records", out.NumRows())
		}
		return out, removed
	}
	return t, 0
}

// aggregateByKey merges rows sharing the key columns into their first row, in first-seen
// order. Numeric columns named in policy are summed, averaged or maximized over the
// group's present values; every other column keeps the first row's value.
func aggregateByKey(t *table.Table, keys []string, policy map[string]aggregation) *table.Table {
	keyCols := make([]*table.Column, 0, len(keys))
	for _, k := range keys {
		if c := t.Col(k); c != nil {
			keyCols = append(keyCols, c)
		}
	}
	index := map[string]int{}
	var groups [][]int
	for i := 0; i < t.NumRows(); i++ {
		key := table.RowKey(i, keyCols)
		g, ok := index[key]
		if !ok {
			g = len(groups)
			index[key] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	if len(groups) == t.NumRows() {
		return t
	}

	firsts := make([]int, len(groups))
	for g, rows := range groups {
		firsts[g] = rows[0]
	}
	out := t.Take(firsts)
	for name, agg := range policy {
		src, dst := t.Col(name), out.Col(name)
		if src == nil || !src.IsNumeric() {
			continue
		}
		if agg == aggMean {
			dst.SetIntKind(false)
		}
		for g, rows := range groups {
			var vals []float64
			for _, i := range rows {
				if !src.IsNull(i) {
					vals = append(vals, src.Float(i))
				}
			}
			if len(vals) == 0 {
				continue
			}
			dst.SetFloat(g, aggregate(agg, vals))
		}
	}
	return out
}

func aggregate(agg aggregation, vals []float64) float64 {
	switch agg {
	case aggMean:
		return table.Mean(vals)
	case aggMax:
		best := vals[0]
		for _, v := range vals[1:] {
			if v > best {
				best = v
			}
		}
		return best
	default:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum
	}
}
