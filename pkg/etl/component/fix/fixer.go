package fix

import (
	"math"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

// tally accumulates the fixes of one call.
type tally struct {
	name  string
	ec    *execution.Context
	total int
}

// add records n fixes described by what.
func (f *tally) add(n int, what string) {
	if n <= 0 {
		return
	}
	f.total += n
	f.ec.Log.Debugf("%s: %d %s", f.name, n, what)
}

// run applies fix to a clone of t. Empty tables pass through untouched.
func run(ec *execution.Context, name string, t *table.Table, fix func(*tally, *table.Table) error) (model.Outcome, error) {
	if t.IsEmpty() {
		ec.Log.Warnf("%s: Empty dataframe, nothing to fix", name)
		return model.Outcome{Table: t}, nil
	}
	out := t.Clone()
	f := &tally{name: name, ec: ec}
	if err := fix(f, out); err != nil {
		return model.Outcome{Table: t}, err
	}
	if f.total > 0 {
		ec.Log.Infof("%s: Applied %d fixes", name, f.total)
	}
	return model.Outcome{Table: out, Changes: f.total}, nil
}

// numericCol returns the named column when it exists and is numeric.
func numericCol(t *table.Table, name string) *table.Column {
	c := t.Col(name)
	if c == nil || !c.IsNumeric() {
		return nil
	}
	return c
}

// replace sets every present value of c matching bad to fix(v). It returns the number of
// values that actually changed.
func replace(c *table.Column, bad func(float64) bool, fix func(float64) float64) int {
	n := 0
	nums := c.Nums()
	for i, v := range nums {
		if math.IsNaN(v) || !bad(v) {
			continue
		}
		if nv := fix(v); nv != v {
			nums[i] = nv
			n++
		}
	}
	return n
}

func below(limit float64) func(float64) bool { return func(v float64) bool { return v < limit } }
func above(limit float64) func(float64) bool { return func(v float64) bool { return v > limit } }
func to(v float64) func(float64) float64     { return func(float64) float64 { return v } }

// timeCol returns the named column as a time column, converting text in place when every
// present value parses. It returns nil when the column is missing or cannot be converted.
func timeCol(ec *execution.Context, t *table.Table, name string) *table.Column {
	c := t.Col(name)
	if c == nil {
		return nil
	}
	if c.Kind() == table.KindTime {
		return c
	}
	converted := table.ToTime(c)
	if converted.NullCount() != c.NullCount() {
		ec.Log.Warnf("Could not convert %s to datetime", name)
		return nil
	}
	if err := t.Set(converted); err != nil {
		return nil
	}
	return converted
}

// clampTimes moves present values of c into [lo, hi]; a zero bound is open. It returns the
// number of values before lo and after hi that were moved.
func clampTimes(c *table.Column, lo, hi time.Time) (early, late int) {
	for i := 0; i < c.Len(); i++ {
		ts, ok := c.Time(i)
		if !ok {
			continue
		}
		switch {
		case !hi.IsZero() && ts.After(hi):
			c.SetTime(i, hi)
			late++
		case !lo.IsZero() && ts.Before(lo):
			c.SetTime(i, lo)
			early++
		}
	}
	return early, late
}
