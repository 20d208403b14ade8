package fix

import (
	"context"
	"math"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

// ConsistencyFixer repairs fields that contradict related fields of the same row. It runs
// last because it trusts each field to be individually valid.
type ConsistencyFixer struct{}

func (s *ConsistencyFixer) Name() string { return Consistency }

func (s *ConsistencyFixer) Apply(_ context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	return run(ec, s.Name(), t, func(f *tally, t *table.Table) error {
		switch {
		case ec.Is("loan"):
			fixPayments(f, t)
			fixUtilization(f, t)
		case ec.Is("market"):
			fixMarketIndicators(f, t)
		case ec.Is("fraud"):
			fixCardPresence(f, t)
		}
		return nil
	})
}

// fixPayments replaces monthly payments more than twice or less than half of the plain
// amount-over-duration estimate with that estimate.
func fixPayments(f *tally, t *table.Table) {
	payment, amount, duration := numericCol(t, "MonthlyPayment"), numericCol(t, "LoanAmount"), numericCol(t, "LoanDurationMonths")
	if payment == nil || amount == nil || duration == nil {
		return
	}
	n := 0
	for i := 0; i < t.NumRows(); i++ {
		p, a, d := payment.Float(i), amount.Float(i), duration.Float(i)
		if math.IsNaN(p) || math.IsNaN(a) || math.IsNaN(d) || d <= 0 {
			continue
		}
		expected := a / d
		if p > 2*expected || 2*p < expected {
			payment.SetFloat(i, expected)
			n++
		}
	}
	if n > 0 {
		payment.SetIntKind(false)
	}
	f.add(n, "monthly payment inconsistencies fixed")
}

// fixUtilization recomputes the utilization ratio from balance and credit limit when they
// disagree by more than ten points, then keeps every ratio within [0, 100]. The recomputed
// ratio is bounded the same way so a second run finds nothing to change.
func fixUtilization(f *tally, t *table.Table) {
	ratio := numericCol(t, "CreditUtilizationRatio")
	if ratio == nil {
		return
	}
	balance, limit := numericCol(t, "Balance"), numericCol(t, "CreditLimit")
	if balance != nil && limit != nil {
		n := 0
		for i := 0; i < t.NumRows(); i++ {
			r, b, l := ratio.Float(i), balance.Float(i), limit.Float(i)
			if math.IsNaN(r) || math.IsNaN(b) || math.IsNaN(l) || l == 0 {
				continue
			}
			if expected := math.Min(100, math.Abs(b/l*100)); math.Abs(r-expected) > 10 {
				ratio.SetFloat(i, expected)
				n++
			}
		}
		f.add(n, "credit utilization ratio inconsistencies fixed")
	}
	n := replace(ratio, below(0), math.Abs)
	n += replace(ratio, above(100), to(100))
	f.add(n, "out-of-range credit utilization ratios fixed")
}

// fixMarketIndicators reconciles a VIX spike with a calm TED spread and the reverse.
func fixMarketIndicators(f *tally, t *table.Table) {
	vix, ted := numericCol(t, "VIX"), numericCol(t, "TEDSpread")
	if vix == nil || ted == nil {
		return
	}
	vixFixed, tedFixed := 0, 0
	for i := 0; i < t.NumRows(); i++ {
		if vix.Float(i) > 50 && ted.Float(i) < 0.5 {
			vix.SetFloat(i, 30+ted.Float(i)*40)
			vixFixed++
		}
	}
	for i := 0; i < t.NumRows(); i++ {
		if ted.Float(i) > 2 && vix.Float(i) < 20 {
			ted.SetFloat(i, 0.5+vix.Float(i)*0.025)
			tedFixed++
		}
	}
	if vixFixed > 0 {
		vix.SetIntKind(false)
	}
	f.add(vixFixed, "inconsistent VIX values fixed")
	f.add(tedFixed, "inconsistent TED spread values fixed")
}

// fixCardPresence clears chip and PIN usage on online transactions.
func fixCardPresence(f *tally, t *table.Table) {
	online := t.Col("IsOnlineTransaction")
	if online == nil {
		return
	}
	for _, name := range []string{"IsUsedChip", "IsUsedPIN"} {
		c := t.Col(name)
		if c == nil || (!c.IsNumeric() && c.Kind() != table.KindBool) {
			continue
		}
		n := 0
		for i := 0; i < t.NumRows(); i++ {
			if online.Float(i) != 1 || c.Float(i) != 1 {
				continue
			}
			if c.Kind() == table.KindBool {
				c.SetBool(i, false)
			} else {
				c.SetFloat(i, 0)
			}
			n++
		}
		f.add(n, "inconsistent "+name+" usage for online transactions fixed")
	}
}
