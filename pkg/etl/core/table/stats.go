package table

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// NonNull returns the present values of a numeric column in row order.
func (c *Column) NonNull() []float64 {
	out := make([]float64, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		if v := c.Float(i); !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Quantile returns the q-quantile of an ascending slice using linear interpolation
// between closest ranks (the "type 7" definition). It returns NaN for an empty slice.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	h := q * float64(n-1)
	lo := math.Floor(h)
	i := int(lo)
	if i >= n-1 {
		return sorted[n-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// Sorted returns an ascending copy of vals.
func Sorted(vals []float64) []float64 {
	out := append([]float64(nil), vals...)
	sort.Float64s(out)
	return out
}

// Quantiles returns the requested quantiles of the present values of c.
func (c *Column) Quantiles(qs ...float64) []float64 {
	sorted := Sorted(c.NonNull())
	out := make([]float64, len(qs))
	for i, q := range qs {
		out[i] = Quantile(sorted, q)
	}
	return out
}

// Median returns the median of vals, or NaN when empty.
func Median(vals []float64) float64 {
	return Quantile(Sorted(vals), 0.5)
}

// IQRBounds returns [Q1 - k*IQR, Q3 + k*IQR] and the IQR of vals.
func IQRBounds(vals []float64, k float64) (lower, upper, iqr float64) {
	sorted := Sorted(vals)
	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr = q3 - q1
	return q1 - k*iqr, q3 + k*iqr, iqr
}

// Mean returns the arithmetic mean of vals, or NaN when empty.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

// StdDev returns the sample standard deviation of vals, or NaN with fewer than two values.
func StdDev(vals []float64) float64 {
	if len(vals) < 2 {
		return math.NaN()
	}
	return stat.StdDev(vals, nil)
}

// Skew returns the sample skewness of vals, or NaN with fewer than three values.
func Skew(vals []float64) float64 {
	if len(vals) < 3 {
		return math.NaN()
	}
	return stat.Skew(vals, nil)
}

// Correlation returns the Pearson correlation of two numeric columns over the rows where
// both are present. It returns NaN when fewer than two pairs exist or either side is constant.
func Correlation(a, b *Column) float64 {
	n := a.Len()
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		x, y := a.Float(i), b.Float(i)
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}

// NUnique returns the number of distinct present values.
func (c *Column) NUnique() int {
	seen := make(map[string]struct{})
	for i := 0; i < c.Len(); i++ {
		if !c.IsNull(i) {
			seen[c.Format(i)] = struct{}{}
		}
	}
	return len(seen)
}

// Unique returns the distinct present values formatted as text, in first-seen order.
func (c *Column) Unique() []string {
	seen := make(map[string]struct{})
	var out []string
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			continue
		}
		v := c.Format(i)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ValueCounts counts present values by their text form.
func (c *Column) ValueCounts() map[string]int {
	counts := make(map[string]int)
	for i := 0; i < c.Len(); i++ {
		if !c.IsNull(i) {
			counts[c.Format(i)]++
		}
	}
	return counts
}

// ModeString returns the most frequent present value as text. Ties resolve to the
// lexically smallest value; numeric columns compare numerically.
func (c *Column) ModeString() (string, bool) {
	counts := c.ValueCounts()
	if len(counts) == 0 {
		return "", false
	}
	best, bestN := "", -1
	for v, n := range counts {
		if n > bestN || (n == bestN && c.less(v, best)) {
			best, bestN = v, n
		}
	}
	return best, true
}

func (c *Column) less(a, b string) bool {
	if c.IsNumeric() {
		x, _ := ParseNumber(a)
		y, _ := ParseNumber(b)
		return x < y
	}
	return a < b
}

// ModeFloat returns the most frequent present value of a numeric column (smallest on ties).
func (c *Column) ModeFloat() (float64, bool) {
	counts := make(map[float64]int)
	for _, v := range c.NonNull() {
		counts[v]++
	}
	if len(counts) == 0 {
		return math.NaN(), false
	}
	best, bestN := math.Inf(1), -1
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best, true
}

// RowNullCounts returns, for each row, how many columns are missing.
func (t *Table) RowNullCounts() []int {
	counts := make([]int, t.nrows)
	for _, c := range t.cols {
		for i := 0; i < t.nrows; i++ {
			if c.IsNull(i) {
				counts[i]++
			}
		}
	}
	return counts
}

// NumericColumns returns the numeric columns in order.
func (t *Table) NumericColumns() []*Column {
	var out []*Column
	for _, c := range t.cols {
		if c.IsNumeric() {
			out = append(out, c)
		}
	}
	return out
}

// ColumnsOfKind returns the columns of the given kind in order.
func (t *Table) ColumnsOfKind(kind Kind) []*Column {
	var out []*Column
	for _, c := range t.cols {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}
