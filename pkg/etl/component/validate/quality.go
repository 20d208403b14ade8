package validate

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
	defaultMaxMissing = 0.5
	defaultOutlierK   = 3.0
	// rows over the missing threshold are only reported above this share of the table
	missingRowShare = 0.1
	// columns are only reported when more of their values are outliers
	outlierShare = 0.05
)

// QualityValidator checks missing values, duplicate rows, outliers and date/age consistency.
type QualityValidator struct{}

// Name implements port.Validator.
func (v *QualityValidator) Name() string { return DataQuality }

// Validate implements port.Validator.
func (v *QualityValidator) Validate(_ context.Context, ec *execution.Context, t *table.Table) (*model.ValidationResult, error) {
	r := model.NewValidationResult()
	defer r.Finalize()

	if t.IsEmpty() {
		r.AddIssue(emptyIssue())
		return r, nil
	}

	engine := ec.Engine()
	maxMissing := engine.MaxMissingPct
	if maxMissing <= 0 {
		maxMissing = defaultMaxMissing
	}
	k := engine.OutlierThreshold
	if k <= 0 {
		k = defaultOutlierK
	}

	checkMissing(r, t, maxMissing)
	checkDuplicates(r, t)
	checkOutliers(r, t, k)
	checkConsistency(r, ec, t)
	return r, nil
}

func checkMissing(r *model.ValidationResult, t *table.Table, maxMissing float64) {
	details := map[string]interface{}{}
	nulls := 0
	for _, c := range t.Columns() {
		nulls += c.NullCount()
		if ratio := c.MissingRatio(); ratio > maxMissing {
			details[c.Name()] = ratio
		}
	}
	if len(details) > 0 {
		r.AddIssue(model.Issue{
			Type:    "high_missing_values",
			Message: fmt.Sprintf("High percentage of missing values in %d columns", len(details)),
			Details: details,
		})
	} else {
		r.Pass()
	}

	rows := t.NumRows()
	bad := 0
	for _, n := range t.RowNullCounts() {
		if float64(n)/float64(t.NumCols()) > maxMissing {
			bad++
		}
	}
	if bad > 0 && float64(bad)/float64(rows) > missingRowShare {
		pct := 100 * float64(bad) / float64(rows)
		r.AddIssue(model.Issue{
			Type:    "high_missing_rows",
			Message: fmt.Sprintf("%d rows (%.1f%%) have excessive missing values", bad, pct),
			Details: map[string]interface{}{"count": bad, "percentage": pct},
		})
	} else {
		r.Pass()
	}

	cells := rows * t.NumCols()
	r.QualityMetrics["completeness"] = 100 * (1 - float64(nulls)/float64(cells))
}

func checkDuplicates(r *model.ValidationResult, t *table.Table) {
	count := 0
	for _, dup := range t.DuplicateRows() {
		if dup {
			count++
		}
	}
	pct := 100 * float64(count) / float64(t.NumRows())
	r.QualityMetrics["uniqueness"] = 100 - pct
	if count == 0 {
		r.Pass()
		return
	}
	r.AddIssue(model.Issue{
		Type:    "duplicates",
		Message: fmt.Sprintf("Found %d duplicate rows (%.1f%% of dataset)", count, pct),
		Details: map[string]interface{}{"count": count, "percentage": pct},
	})
}

// checkOutliers reports numeric columns whose share of values outside the k*IQR fences
// exceeds outlierShare. ID-like, binary and mostly-missing columns are not examined.
func checkOutliers(r *model.ValidationResult, t *table.Table, k float64) {
	details := map[string]interface{}{}
	for _, c := range t.NumericColumns() {
		if strings.Contains(strings.ToLower(c.Name()), "id") || c.NUnique() <= 2 || c.MissingRatio() > 0.5 {
			continue
		}
		vals := c.NonNull()
		lower, upper, iqr := table.IQRBounds(vals, k)
		if iqr <= 0 || len(vals) == 0 {
			continue
		}
		count := 0
		for _, x := range vals {
			if x < lower || x > upper {
				count++
			}
		}
		if share := float64(count) / float64(len(vals)); share > outlierShare {
			details[c.Name()] = map[string]interface{}{
				"count":       count,
				"percentage":  share * 100,
				"lower_bound": lower,
				"upper_bound": upper,
			}
		}
	}
	if len(details) == 0 {
		r.Pass()
		return
	}
	r.AddIssue(model.Issue{
		Type:    "outliers",
		Message: fmt.Sprintf("Found high outlier percentage in %d columns", len(details)),
		Details: details,
	})
}

func checkConsistency(r *model.ValidationResult, ec *execution.Context, t *table.Table) {
	now := ec.Now()
	for _, c := range t.ColumnsOfKind(table.KindTime) {
		if !strings.Contains(strings.ToLower(c.Name()), "date") {
			continue
		}
		future, present := 0, 0
		for i := 0; i < c.Len(); i++ {
			ts, ok := c.Time(i)
			if !ok {
				continue
			}
			present++
			if ts.After(now) {
				future++
			}
		}
		if future == 0 {
			r.Pass()
			continue
		}
		r.AddIssue(model.Issue{
			Type:    "future_dates",
			Message: fmt.Sprintf("Found %d future dates in column '%s'", future, c.Name()),
			Field:   c.Name(),
			Details: map[string]interface{}{"count": future, "percentage": 100 * float64(future) / float64(present)},
		})
	}

	age := t.Col("Age")
	if age == nil || !age.IsNumeric() {
		return
	}
	invalid := countWhere(age, func(v float64) bool { return v < 18 || v > 100 })
	if invalid == 0 {
		r.Pass()
		return
	}
	present := len(age.NonNull())
	r.AddIssue(model.Issue{
		Type:    "invalid_ages",
		Message: fmt.Sprintf("Found %d invalid ages (< 18 or > 100)", invalid),
		Field:   "Age",
		Details: map[string]interface{}{"count": invalid, "percentage": 100 * float64(invalid) / float64(present)},
	})
}

// countWhere counts the present values of c matching pred.
func countWhere(c *table.Column, pred func(float64) bool) int {
	n := 0
	for _, v := range c.Nums() {
		if !math.IsNaN(v) && pred(v) {
			n++
		}
	}
	return n
}
