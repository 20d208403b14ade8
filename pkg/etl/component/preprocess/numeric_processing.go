package preprocess

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

// featureCorrelation is the |r| a column needs to serve as a KNN feature for another.
const featureCorrelation = 0.3

// noNormalize marks names of columns that are never z-scored.
var noNormalize = []string{"id", "count", "num_", "flag", "indicator", "binary"}

// NumericStrategy imputes, optionally normalizes, rounds and de-duplicates numeric columns.
type NumericStrategy struct{}

func (s *NumericStrategy) Name() string { return NumericProcessing }

func (s *NumericStrategy) Apply(ctx context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	if t.IsEmpty() {
		return model.Outcome{Table: t}, nil
	}
	if len(t.NumericColumns()) == 0 {
		ec.Log.Warnf("No numeric columns found for processing")
		return model.Outcome{Table: t}, nil
	}
	out := t.Clone()
	engine := ec.Engine()

	changes := imputeNumeric(ec, out)
	if engine.NormalizeNumeric {
		changes += normalize(ec, out)
	}
	if engine.DecimalRounding > 0 {
		for _, c := range out.NumericColumns() {
			roundColumn(c, engine.DecimalRounding)
		}
	}
	changes += convertFloatToInteger(ec, out, engine.IntegerPatterns)
	changes += dropRedundantColumns(ec, out, engine.CorrelationThreshold)
	return model.Outcome{Table: out, Changes: changes}, nil
}

// knnNeighbours chooses k from the sample size; zero means median imputation only.
func knnNeighbours(n int) int {
	switch {
	case n < 20:
		return 0
	case n < 100:
		return max(1, min(3, n/4))
	case n < 1000:
		return max(1, min(5, n/100))
	default:
		return max(1, min(10, int(math.Sqrt(float64(n))/10)))
	}
}

func imputeNumeric(ec *execution.Context, t *table.Table) int {
	var allNull []string
	for _, c := range t.NumericColumns() {
		nums := c.Nums()
		for i, v := range nums {
			if math.IsInf(v, 0) {
				nums[i] = math.NaN()
			}
		}
		if c.NullCount() == c.Len() {
			allNull = append(allNull, c.Name())
		}
	}
	t.Drop(allNull...)

	filled := 0
	var nonBinary []*table.Column
	for _, c := range t.NumericColumns() {
		if c.NUnique() != 2 {
			nonBinary = append(nonBinary, c)
			continue
		}
		values := table.Sorted(uniqueFloats(c))
		for i := 0; i < c.Len(); i++ {
			if c.IsNull(i) {
				c.SetFloat(i, values[ec.Rand.Intn(len(values))])
				filled++
			}
		}
	}

	var missing []*table.Column
	for _, c := range nonBinary {
		if c.NullCount() > 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return filled
	}

	k := knnNeighbours(t.NumRows())
	if k == 0 {
		for _, c := range missing {
			filled += fillWith(c, table.Median(c.NonNull()))
		}
		ec.Log.Debugf("Using median imputation for small dataset (n=%d)", t.NumRows())
		return filled
	}

	features := map[string]bool{}
	targets := make([]string, 0, len(missing))
	for _, c := range missing {
		targets = append(targets, c.Name())
		features[c.Name()] = true
		for _, other := range nonBinary {
			if other == c {
				continue
			}
			if r := table.Correlation(c, other); !math.IsNaN(r) && math.Abs(r) > featureCorrelation {
				features[other.Name()] = true
			}
		}
	}
	featureNames := make([]string, 0, len(features))
	for name := range features {
		featureNames = append(featureNames, name)
	}
	sort.Strings(featureNames)

	filled += table.KNNImpute(t, featureNames, targets, k)
	ec.Log.Infof("Successfully imputed missing values in %d numeric columns", len(targets))
	return filled
}

func uniqueFloats(c *table.Column) []float64 {
	seen := map[float64]bool{}
	var out []float64
	for _, v := range c.NonNull() {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func fillWith(c *table.Column, v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			c.SetFloat(i, v)
			n++
		}
	}
	return n
}

func normalize(ec *execution.Context, t *table.Table) int {
	n := 0
	for _, c := range t.NumericColumns() {
		if containsAny(strings.ToLower(c.Name()), noNormalize) {
			continue
		}
		vals := c.NonNull()
		if skew := table.Skew(vals); math.IsNaN(skew) || math.Abs(skew) <= 1 {
			continue
		}
		mean, std := table.Mean(vals), table.StdDev(vals)
		if math.IsNaN(std) || std == 0 {
			std = 1
		}
		nums := c.Nums()
		for i, v := range nums {
			if !math.IsNaN(v) {
				nums[i] = (v - mean) / std
			}
		}
		c.SetIntKind(false)
		n++
	}
	if n > 0 {
		ec.Log.Debugf("%s: %d numeric columns normalized", NumericProcessing, n)
	}
	return n
}

func roundColumn(c *table.Column, places int) {
	scale := math.Pow(10, float64(places))
	nums := c.Nums()
	for i, v := range nums {
		if !math.IsNaN(v) {
			nums[i] = math.RoundToEven(v*scale) / scale
		}
	}
}

// convertFloatToInteger turns float columns into integers, missing values becoming 0,
// when they hold whole numbers or their name matches an integer pattern.
func convertFloatToInteger(ec *execution.Context, t *table.Table, patterns []string) int {
	n := 0
	for _, c := range t.ColumnsOfKind(table.KindFloat) {
		if !containsAny(strings.ToLower(c.Name()), patterns) && !table.IsWholeNumbers(c) {
			continue
		}
		nums := c.Nums()
		for i, v := range nums {
			if math.IsNaN(v) {
				nums[i] = 0
			} else {
				nums[i] = math.Trunc(v)
			}
		}
		c.SetIntKind(true)
		n++
	}
	if n > 0 {
		ec.Log.Debugf("%s: %d float columns converted to integer", NumericProcessing, n)
	}
	return n
}

// dropRedundantColumns removes numeric columns that repeat another column's values or
// correlate above threshold with an earlier one. Mapped source columns are kept.
func dropRedundantColumns(ec *execution.Context, t *table.Table, threshold float64) int {
	preserve := map[string]bool{}
	if ec.Provider != nil {
		for _, m := range ec.Provider.FieldMappings(ec.Dataset) {
			for _, source := range m {
				preserve[source] = true
			}
		}
	}

	var candidates []*table.Column
	for _, c := range t.NumericColumns() {
		if !preserve[c.Name()] {
			candidates = append(candidates, c)
		}
	}

	drop := map[string]bool{}
	seen := map[string]bool{}
	for _, c := range candidates {
		key := zeroFilledKey(c)
		if seen[key] {
			drop[c.Name()] = true
			continue
		}
		seen[key] = true
	}

	var remaining []*table.Column
	for _, c := range candidates {
		if !drop[c.Name()] {
			remaining = append(remaining, c)
		}
	}
	for i, a := range remaining {
		if drop[a.Name()] {
			continue
		}
		for _, b := range remaining[i+1:] {
			if drop[b.Name()] {
				continue
			}
			if r := table.Correlation(a, b); !math.IsNaN(r) && math.Abs(r) > threshold {
				drop[b.Name()] = true
			}
		}
	}
	if len(drop) == 0 {
		return 0
	}
	names := make([]string, 0, len(drop))
	for name := range drop {
		names = append(names, name)
	}
	sort.Strings(names)
	t.Drop(names...)
	ec.Log.Debugf("%s: %d redundant or highly correlated columns dropped", NumericProcessing, len(names))
	return len(names)
}

func zeroFilledKey(c *table.Column) string {
	var b strings.Builder
	for i := 0; i < c.Len(); i++ {
		v := c.Float(i)
		if math.IsNaN(v) {
			v = 0
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		b.WriteByte(',')
	}
	return b.String()
}
