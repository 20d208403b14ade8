package fix

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

const (
	knnMinRows     = 10
	knnMaxMissing  = 0.3
	knnMinFeatures = 3
	knnMaxK        = 5
)

// MissingValueFixer imputes missing values of columns that are not too sparse to keep.
// Numbers use KNN over the other numeric columns when there is enough data and the median
// otherwise, dates use the median date, and text uses a domain default or the mode.
type MissingValueFixer struct{}

func (s *MissingValueFixer) Name() string { return MissingValue }

func (s *MissingValueFixer) Apply(_ context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	maxMissing := ec.Engine().MaxMissingPct
	if maxMissing <= 0 {
		maxMissing = 0.5
	}
	return run(ec, s.Name(), t, func(f *tally, t *table.Table) error {
		for _, c := range t.Columns() {
			missing := c.NullCount()
			if missing == 0 || c.MissingRatio() > maxMissing {
				continue
			}
			switch c.Kind() {
			case table.KindFloat, table.KindInt:
				fillNumeric(ec, f, t, c, missing)
			case table.KindTime:
				f.add(fillMedianTime(c), fmt.Sprintf("missing values in '%s' fixed with median date", c.Name()))
			case table.KindString:
				f.add(fillText(c), fmt.Sprintf("missing values in '%s' fixed with categorical imputation", c.Name()))
			case table.KindBool:
				f.add(fillBool(c), fmt.Sprintf("missing values in '%s' fixed with the most frequent flag", c.Name()))
			}
		}
		return nil
	})
}

func fillNumeric(ec *execution.Context, f *tally, t *table.Table, c *table.Column, missing int) {
	defer func() {
		if c.Kind() == table.KindInt && !table.IsWholeNumbers(c) {
			c.SetIntKind(false)
		}
	}()
	rows := t.NumRows()
	if rows > knnMinRows && float64(missing)/float64(rows) < knnMaxMissing {
		numeric := t.NumericColumns()
		if len(numeric) >= knnMinFeatures {
			features := make([]string, len(numeric))
			for i, nc := range numeric {
				features[i] = nc.Name()
			}
			if n := table.KNNImpute(t, features, []string{c.Name()}, min(knnMaxK, rows-1)); n > 0 {
				f.add(n, fmt.Sprintf("missing values in '%s' fixed with KNN imputation", c.Name()))
				return
			}
			ec.Log.Warnf("KNN imputation failed for '%s'", c.Name())
		}
	}
	median := table.Median(c.NonNull())
	if math.IsNaN(median) {
		return
	}
	f.add(replaceNulls(c, median), fmt.Sprintf("missing values in '%s' fixed with median imputation", c.Name()))
}

func replaceNulls(c *table.Column, v float64) int {
	n := 0
	nums := c.Nums()
	for i := range nums {
		if math.IsNaN(nums[i]) {
			nums[i] = v
			n++
		}
	}
	return n
}

// fillMedianTime fills missing timestamps with the median instant, interpolating between
// the two middle values for an even count.
func fillMedianTime(c *table.Column) int {
	var present []time.Time
	for i := 0; i < c.Len(); i++ {
		if ts, ok := c.Time(i); ok {
			present = append(present, ts)
		}
	}
	if len(present) == 0 {
		return 0
	}
	sort.Slice(present, func(a, b int) bool { return present[a].Before(present[b]) })
	median := present[len(present)/2]
	if len(present)%2 == 0 {
		lo := present[len(present)/2-1]
		median = lo.Add(median.Sub(lo) / 2)
	}
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			c.SetTime(i, median)
			n++
		}
	}
	return n
}

// fillText fills missing text with "Unknown" for type and status columns, "Not Specified"
// for name columns and the mode otherwise.
func fillText(c *table.Column) int {
	name := c.Name()
	var value string
	switch {
	case strings.Contains(name, "Type") || strings.Contains(name, "Status"):
		value = "Unknown"
	case strings.Contains(name, "Name"):
		value = "Not Specified"
	default:
		mode, ok := c.ModeString()
		if !ok {
			mode = "Unknown"
		}
		value = mode
	}
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			c.SetStr(i, value)
			n++
		}
	}
	return n
}

func fillBool(c *table.Column) int {
	trues, falses := 0, 0
	for i := 0; i < c.Len(); i++ {
		if b, ok := c.Bool(i); ok {
			if b {
				trues++
			} else {
				falses++
			}
		}
	}
	value := trues > falses
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			c.SetBool(i, value)
			n++
		}
	}
	return n
}
