package fix

import (
	"context"
	"fmt"
	"math"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

const maxDistance = 20000

var (
	fraudIndicators = []string{"IsFraudulent", "IsOnlineTransaction", "IsUsedChip", "IsUsedPIN"}
	distanceColumns = []string{"DistanceFromHome", "DistanceFromLastTransaction"}
)

// FraudFixer normalizes transaction indicators, distances and transaction dates.
type FraudFixer struct{}

func (s *FraudFixer) Name() string { return Fraud }

func (s *FraudFixer) Apply(_ context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	return run(ec, s.Name(), t, func(f *tally, t *table.Table) error {
		for _, name := range fraudIndicators {
			if c := indicatorCol(t, name); c != nil {
				fixIndicator(f, c)
			}
		}
		for _, name := range distanceColumns {
			if c := numericCol(t, name); c != nil {
				f.add(replace(c, below(0), math.Abs), fmt.Sprintf("negative %s values fixed", name))
				f.add(replace(c, above(maxDistance), to(maxDistance)), fmt.Sprintf("unrealistically large %s values fixed", name))
			}
		}
		if c := timeCol(ec, t, "TransactionDate"); c != nil {
			now := ec.Now()
			old, future := clampTimes(c, now.AddDate(0, 0, -365*10), now)
			f.add(future, "future transaction dates fixed")
			f.add(old, "very old transaction dates fixed")
		}
		return nil
	})
}

// indicatorCol returns an indicator column as numbers. Text columns whose values all parse
// are converted in place.
func indicatorCol(t *table.Table, name string) *table.Column {
	c := t.Col(name)
	switch {
	case c == nil:
		return nil
	case c.Kind() == table.KindBool:
		return c
	case c.IsNumeric():
		return c
	case c.Kind() == table.KindString && table.NumericParseRatio(c) == 1:
		converted := table.ToNumeric(c)
		if err := t.Set(converted); err != nil {
			return nil
		}
		return converted
	}
	return nil
}

// fixIndicator maps values other than 0 and 1 to 1 when they are at least 0.5 and to 0
// otherwise, then fills missing indicators with 0.
func fixIndicator(f *tally, c *table.Column) {
	if c.Kind() == table.KindBool {
		n := 0
		for i := 0; i < c.Len(); i++ {
			if c.IsNull(i) {
				c.SetBool(i, false)
				n++
			}
		}
		f.add(n, fmt.Sprintf("missing %s values filled with 0", c.Name()))
		return
	}
	invalid := func(v float64) bool { return v != 0 && v != 1 }
	f.add(replace(c, invalid, func(v float64) float64 {
		if v >= 0.5 {
			return 1
		}
		return 0
	}), fmt.Sprintf("invalid %s values fixed", c.Name()))
	f.add(replaceNulls(c, 0), fmt.Sprintf("missing %s values filled with 0", c.Name()))
	c.SetIntKind(true)
}
