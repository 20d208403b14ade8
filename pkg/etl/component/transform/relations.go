package transform

import (
	"math"
	"regexp"
	"strings"

	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

var (
	startDatePattern = regexp.MustCompile(`(?i)start.*date`)
	ratioNamePattern = regexp.MustCompile(`(?i)ratio|rate|percent`)
	durationName     = regexp.MustCompile(`(?i)duration|months$`)
	interestRateName = regexp.MustCompile(`(?i)interest.*rate`)
	inflationName    = regexp.MustCompile(`(?i)inflation`)
	indexName        = regexp.MustCompile(`(?i)(^index|index$|\bindex\b|price.*index)`)
)

// loanTerms are the standard loan durations in months.
var loanTerms = []float64{3, 6, 12, 24, 36, 48, 60}

// relateFields restores relations between columns after independent generation and
// returns the number of adjusted values.
func relateFields(ec *execution.Context, t *table.Table) int {
	n := relatePrices(t)
	n += relateDates(ec, t)
	n += boundRatios(ec, t)
	n += relateLoanTerms(ec, t)
	n += enforcePrecision(t)
	return n
}

func numericCols(t *table.Table, names ...string) ([]*table.Column, bool) {
	cols := make([]*table.Column, len(names))
	for i, name := range names {
		c := t.Col(name)
		if c == nil || !c.IsNumeric() {
			return nil, false
		}
		cols[i] = c
	}
	return cols, true
}

// relatePrices orders High above Low and keeps both within 10% of the row's mean price,
// pulled toward Open and Close.
func relatePrices(t *table.Table) int {
	cols, ok := numericCols(t, "OpenValue", "CloseValue", "HighestValue", "LowestValue")
	if !ok {
		return 0
	}
	open, closing, high, low := cols[0], cols[1], cols[2], cols[3]
	changed := 0
	for i := 0; i < t.NumRows(); i++ {
		o, c, h, l := open.Float(i), closing.Float(i), high.Float(i), low.Float(i)
		if math.IsNaN(o) || math.IsNaN(c) || math.IsNaN(h) || math.IsNaN(l) {
			continue
		}
		if h < l {
			h, l = l, h
		}
		avg := (h + l + o + c) / 4
		deviation := 0.1 * avg
		nh := math.Min(math.Max(h, math.Max(o, c)), avg+deviation)
		nl := math.Max(math.Min(l, math.Min(o, c)), avg-deviation)
		if nh != high.Float(i) || nl != low.Float(i) {
			changed++
		}
		high.SetFloat(i, nh)
		low.SetFloat(i, nl)
	}
	return changed
}

// relateDates moves every end date that is missing or before its start date to 1..29
// days after the start.
func relateDates(ec *execution.Context, t *table.Table) int {
	changed := 0
	for _, start := range t.ColumnsOfKind(table.KindTime) {
		if !startDatePattern.MatchString(start.Name()) {
			continue
		}
		endName, ok := t.FindFold(strings.Replace(strings.ToLower(start.Name()), "start", "end", 1))
		if !ok {
			continue
		}
		end := t.Col(endName)
		if end.Kind() != table.KindTime {
			continue
		}
		for i := 0; i < t.NumRows(); i++ {
			s, ok := start.Time(i)
			if !ok {
				continue
			}
			if e, ok := end.Time(i); ok && !e.Before(s) {
				continue
			}
			end.SetTime(i, s.AddDate(0, 0, 1+ec.Rand.Intn(29)))
			changed++
		}
	}
	return changed
}

// boundRatios scales "ratio" columns into [0,1] and clamps other rate or percent columns
// into [0,100]. Durations, interest rates, inflation and index columns are left alone.
func boundRatios(ec *execution.Context, t *table.Table) int {
	changed := 0
	for _, c := range t.NumericColumns() {
		name := c.Name()
		if !ratioNamePattern.MatchString(name) || durationName.MatchString(name) ||
			interestRateName.MatchString(name) || inflationName.MatchString(name) || indexName.MatchString(name) {
			continue
		}
		vals := c.NonNull()
		if len(vals) == 0 {
			continue
		}
		nums := c.Nums()
		if !strings.Contains(strings.ToLower(name), "ratio") {
			for i, v := range nums {
				if !math.IsNaN(v) && (v < 0 || v > 100) {
					nums[i] = clamp(v, 0, 100)
					changed++
				}
			}
			continue
		}
		lo, hi := vals[0], vals[0]
		for _, v := range vals {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		if lo >= 0 && hi <= 1 {
			continue
		}
		ec.Log.Debugf("Normalizing %s values to range [0,1]", name)
		for i, v := range nums {
			if math.IsNaN(v) {
				continue
			}
			if hi > lo {
				nums[i] = math.Round((v-lo)/(hi-lo)*100) / 100
			} else {
				nums[i] = 0.5
			}
			changed++
		}
		c.SetIntKind(false)
	}
	return changed
}

// relateLoanTerms snaps loan durations to the standard terms and recomputes monthly
// payments with the annuity formula.
func relateLoanTerms(ec *execution.Context, t *table.Table) int {
	cols, ok := numericCols(t, "LoanAmount", "LoanDurationMonths")
	if !ok {
		return 0
	}
	amount, duration := cols[0], cols[1]
	changed := 0

	present := duration.NonNull()
	if len(present) > 0 {
		if longest := table.Sorted(present)[len(present)-1]; longest <= 1 {
			changed += snapToTerms(duration)
			ec.Log.Debugf("Fixed LoanDurationMonths to use standard loan terms")
		} else {
			nums := duration.Nums()
			for i, v := range nums {
				if !math.IsNaN(v) && v < 3 {
					nums[i] = 3
					changed++
				}
			}
		}
	}

	payment := t.Col("MonthlyPayment")
	rate := t.Col("InterestRate")
	if payment == nil || rate == nil || !payment.IsNumeric() || !rate.IsNumeric() {
		return changed
	}
	payment.SetIntKind(false)
	for i := 0; i < t.NumRows(); i++ {
		p := monthlyPayment(amount.Float(i), rate.Float(i), duration.Float(i))
		if !math.IsNaN(p) {
			p = math.Round(p*100) / 100
		}
		payment.SetFloat(i, p)
		changed++
	}
	return changed
}

// snapToTerms bins durations by quantile into as many bins as there are standard terms.
func snapToTerms(c *table.Column) int {
	sorted := table.Sorted(c.NonNull())
	edges := make([]float64, len(loanTerms)-1)
	for j := range edges {
		edges[j] = table.Quantile(sorted, float64(j+1)/float64(len(loanTerms)))
	}
	nums := c.Nums()
	n := 0
	for i, v := range nums {
		if math.IsNaN(v) {
			continue
		}
		bin := 0
		for _, e := range edges {
			if v > e {
				bin++
			}
		}
		nums[i] = loanTerms[bin]
		n++
	}
	c.SetIntKind(true)
	return n
}

// monthlyPayment is the annuity payment of amount at an annual percentage rate over
// months, falling back to straight division when the rate or term is not positive.
func monthlyPayment(amount, annualRate, months float64) float64 {
	if annualRate > 0 && months > 0 {
		r := annualRate / 100 / 12
		f := math.Pow(1+r, months)
		if p := amount * r * f / (f - 1); !math.IsNaN(p) && !math.IsInf(p, 0) {
			return p
		}
	}
	p := amount / months
	if math.IsInf(p, 0) {
		return math.NaN()
	}
	return p
}

// enforcePrecision rounds ratio and rate columns to two decimals and GDP to integers.
func enforcePrecision(t *table.Table) int {
	changed := 0
	for _, c := range t.NumericColumns() {
		lower := strings.ToLower(c.Name())
		switch {
		case c.Name() == "GDP":
			changed += roundColumn(c, 0)
			c.SetIntKind(true)
		case strings.Contains(lower, "ratio") || strings.Contains(lower, "rate"):
			changed += roundColumn(c, 2)
		}
	}
	return changed
}

func roundColumn(c *table.Column, places int) int {
	p := math.Pow(10, float64(places))
	nums := c.Nums()
	n := 0
	for i, v := range nums {
		if math.IsNaN(v) {
			continue
		}
		if r := math.Round(v*p) / p; r != v {
			nums[i] = r
			n++
		}
	}
	return n
}
