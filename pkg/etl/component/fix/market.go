package fix

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

const maxMarketInterest = 30

var priceColumns = []string{"OpenValue", "CloseValue", "HighestValue", "LowestValue"}

// MarketFixer repairs OHLC price relationships, negative prices, interest rates and dates.
type MarketFixer struct{}

func (s *MarketFixer) Name() string { return Market }

func (s *MarketFixer) Apply(_ context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	return run(ec, s.Name(), t, func(f *tally, t *table.Table) error {
		if p, ok := pricesOf(t); ok {
			fixPriceRelationships(ec, f, p)
		}
		for _, name := range priceColumns {
			if c := numericCol(t, name); c != nil {
				f.add(replace(c, below(0), math.Abs), fmt.Sprintf("negative %s values fixed", name))
			}
		}
		if c := numericCol(t, "InterestRate"); c != nil {
			f.add(replace(c, below(0), to(0)), "negative interest rates fixed")
			f.add(replace(c, above(maxMarketInterest), to(maxMarketInterest)), "unrealistically high interest rates fixed")
		}
		if c := timeCol(ec, t, "MarketDate"); c != nil {
			_, future := clampTimes(c, time.Time{}, ec.Now())
			f.add(future, "future market dates fixed")
		}
		return nil
	})
}

type prices struct {
	open, close, high, low *table.Column
}

func pricesOf(t *table.Table) (prices, bool) {
	p := prices{
		open:  numericCol(t, "OpenValue"),
		close: numericCol(t, "CloseValue"),
		high:  numericCol(t, "HighestValue"),
		low:   numericCol(t, "LowestValue"),
	}
	return p, p.open != nil && p.close != nil && p.high != nil && p.low != nil
}

func (p prices) columns() []*table.Column { return []*table.Column{p.open, p.close, p.high, p.low} }

// complete reports whether row i holds all four prices.
func (p prices) complete(i int) bool {
	for _, c := range p.columns() {
		if c.IsNull(i) {
			return false
		}
	}
	return true
}

// fixPriceRelationships swaps inverted highs and lows, caps price outliers and moves open and
// close into the [low, high] band. Rows missing any price are only capped.
func fixPriceRelationships(ec *execution.Context, f *tally, p prices) {
	rows := p.high.Len()
	valid := make([]bool, rows)
	complete := false
	for i := range valid {
		valid[i] = p.complete(i)
		complete = complete || valid[i]
	}
	if !complete {
		ec.Log.Infof("No complete price data rows to fix relationships")
		return
	}

	f.add(swapInverted(p, valid), "highest/lowest value inconsistencies fixed")

	for _, c := range p.columns() {
		m := 1.5
		if c == p.high {
			m = 1.0
		}
		q := c.Quantiles(0.25, 0.75)
		iqr := q[1] - q[0]
		lower, upper := math.Max(0, q[0]-m*iqr), q[1]+m*iqr
		n := replace(c, below(lower), to(lower)) + replace(c, above(upper), to(upper))
		f.add(n, fmt.Sprintf("extreme %s outliers capped", c.Name()))
	}

	// Capping the two ends with different fences can invert a row again.
	if n := swapInverted(p, valid); n > 0 {
		ec.Log.Errorf("%d high/low inconsistencies reappeared after capping outliers; swapped them", n)
		f.add(n, "highest/lowest value inconsistencies fixed after capping")
	}

	for _, c := range []*table.Column{p.open, p.close} {
		high, low := 0, 0
		for i := 0; i < rows; i++ {
			if !valid[i] {
				continue
			}
			switch v := c.Float(i); {
			case v > p.high.Float(i):
				c.SetFloat(i, p.high.Float(i))
				high++
			case v < p.low.Float(i):
				c.SetFloat(i, p.low.Float(i))
				low++
			}
		}
		f.add(high, fmt.Sprintf("%s values above highest value fixed", c.Name()))
		f.add(low, fmt.Sprintf("%s values below lowest value fixed", c.Name()))
	}
}

// swapInverted exchanges high and low on valid rows where high < low and returns how many
// rows it touched. Rows still inverted after the swap take the row-wise max and min.
func swapInverted(p prices, valid []bool) int {
	n := 0
	for i, ok := range valid {
		if !ok {
			continue
		}
		h, l := p.high.Float(i), p.low.Float(i)
		if h >= l {
			continue
		}
		p.high.SetFloat(i, l)
		p.low.SetFloat(i, h)
		if p.high.Float(i) < p.low.Float(i) {
			hi, lo := math.Inf(-1), math.Inf(1)
			for _, c := range p.columns() {
				hi = math.Max(hi, c.Float(i))
				lo = math.Min(lo, c.Float(i))
			}
			p.high.SetFloat(i, hi)
			p.low.SetFloat(i, lo)
		}
		n++
	}
	return n
}
