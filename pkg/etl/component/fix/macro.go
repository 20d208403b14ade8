package fix

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

var (
	macroRatios  = []string{"UnemploymentRate", "InflationRate", "DebtRatio", "DeficitRatio"}
	macroIndexes = []string{"ConsumerPriceIndex", "HousePriceIndex"}
	ratioCaps    = map[string]float64{"UnemploymentRate": 50, "InflationRate": 100, "DebtRatio": 200, "DeficitRatio": 200}
)

// MacroFixer bounds macroeconomic ratios and indexes and clamps future report dates.
type MacroFixer struct{}

func (s *MacroFixer) Name() string { return Macro }

func (s *MacroFixer) Apply(_ context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	return run(ec, s.Name(), t, func(f *tally, t *table.Table) error {
		for _, name := range macroRatios {
			c := numericCol(t, name)
			if c == nil {
				continue
			}
			limit, ok := ratioCaps[name]
			if !ok {
				limit = 100
			}
			// inflation can legitimately be negative
			if !strings.Contains(strings.ToLower(name), "inflation") {
				f.add(replace(c, below(0), math.Abs), fmt.Sprintf("negative %s values fixed", name))
			}
			f.add(replace(c, above(limit), to(limit)), fmt.Sprintf("unrealistically high %s values fixed", name))
		}
		if c := numericCol(t, "GDP"); c != nil {
			f.add(replace(c, below(0), math.Abs), "negative GDP values fixed")
		}
		for _, name := range macroIndexes {
			if c := numericCol(t, name); c != nil {
				f.add(replace(c, below(0), math.Abs), fmt.Sprintf("negative %s values fixed", name))
			}
		}
		if c := timeCol(ec, t, "ReportDate"); c != nil {
			_, future := clampTimes(c, time.Time{}, ec.Now())
			f.add(future, "future report dates fixed")
		}
		return nil
	})
}
