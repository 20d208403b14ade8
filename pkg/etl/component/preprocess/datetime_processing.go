package preprocess

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

var durationPattern = regexp.MustCompile(`(\d+)\s*(year|yr|years|month|months|mo|week|weeks|wk|day|days|d)`)

// durationFactors maps a unit to its length in months and in days.
var durationFactors = map[string][2]float64{
	"year": {12, 365}, "years": {12, 365}, "yr": {12, 365},
	"month": {1, 30.4}, "months": {1, 30.4}, "mo": {1, 30.4},
	"week": {0.25, 7}, "weeks": {0.25, 7}, "wk": {0.25, 7},
	"day": {0.0329, 1}, "days": {0.0329, 1}, "d": {0.0329, 1},
}

const (
	inMonths = 0
	inDays   = 1
)

var durationNameHints = []string{"duration", "period", "term", "history", "age", "time"}

// DateTimeStrategy parses date columns and converts "N years M months" durations to numbers.
type DateTimeStrategy struct{}

func (s *DateTimeStrategy) Name() string { return DateTimeProcessing }

func (s *DateTimeStrategy) Apply(ctx context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	if t.IsEmpty() {
		return model.Outcome{Table: t}, nil
	}
	out := t.Clone()
	dates, err := parseDates(out)
	if err != nil {
		return model.Outcome{}, err
	}
	if dates > 0 {
		ec.Log.Debugf("%s: %d date columns processed", s.Name(), dates)
	}
	durations, renamed, err := parseDurations(out)
	if err != nil {
		return model.Outcome{}, err
	}
	if len(renamed) > 0 {
		ec.Log.Infof("Renamed %d columns with unit suffixes: %s", len(renamed), strings.Join(renamed, ", "))
	}
	if durations > 0 {
		ec.Log.Debugf("%s: %d duration values processed", s.Name(), durations)
	}
	return model.Outcome{Table: out, Changes: dates + durations}, nil
}

// parseDates converts text columns named like dates when more than half of the rows parse.
func parseDates(t *table.Table) (int, error) {
	processed := 0
	for _, c := range t.ColumnsOfKind(table.KindString) {
		lower := strings.ToLower(c.Name())
		if !strings.Contains(lower, "date") && !strings.Contains(lower, "time") {
			continue
		}
		parsed := table.ToTime(c)
		valid := parsed.Len() - parsed.NullCount()
		if float64(valid) > 0.5*float64(t.NumRows()) {
			if err := t.Set(parsed); err != nil {
				return processed, err
			}
			processed++
		}
	}
	return processed, nil
}

func parseDurations(t *table.Table) (int, []string, error) {
	processed := 0
	var renamed []string
	for _, c := range t.ColumnsOfKind(table.KindString) {
		lower := strings.ToLower(c.Name())
		if !containsAny(lower, durationNameHints) {
			continue
		}
		unit := durationUnit(c, lower)

		vals := make([]float64, c.Len())
		converted := map[string]bool{}
		for i := range vals {
			vals[i] = math.NaN()
			v, ok := c.Str(i)
			if !ok {
				continue
			}
			if total, ok := durationValue(v, unit); ok {
				vals[i] = total
				converted[v] = true
			} else if n, ok := table.ParseNumber(v); ok {
				vals[i] = n
			}
		}
		if len(converted) == 0 {
			continue
		}
		processed += len(converted)

		name := c.Name()
		if !strings.HasSuffix(lower, "_months") && !strings.HasSuffix(lower, "_days") {
			suffix := "_Months"
			if unit == inDays {
				suffix = "_Days"
			}
			name = table.UniqueName(t, name+suffix)
			renamed = append(renamed, name)
		}
		if err := t.Set(table.NewFloat(c.Name(), vals)); err != nil {
			return processed, renamed, err
		}
		if name != c.Name() {
			if err := t.Rename(c.Name(), name); err != nil {
				return processed, renamed, err
			}
		}
	}
	return processed, renamed, nil
}

// durationUnit picks days when the name mentions days, then lets the first of up to 100
// values that names a unit decide.
func durationUnit(c *table.Column, lowerName string) int {
	unit := inMonths
	if strings.Contains(lowerName, "day") {
		unit = inDays
	}
	seen := 0
	for i := 0; i < c.Len() && seen < 100; i++ {
		v, ok := c.Str(i)
		if !ok {
			continue
		}
		seen++
		lv := strings.ToLower(v)
		if strings.Contains(lv, "day") {
			return inDays
		}
		if strings.Contains(lv, "month") || strings.Contains(lv, "year") {
			return inMonths
		}
	}
	return unit
}

func durationValue(v string, unit int) (float64, bool) {
	matches := durationPattern.FindAllStringSubmatch(strings.ToLower(v), -1)
	if len(matches) == 0 {
		return 0, false
	}
	total := 0.0
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		total += float64(n) * durationFactors[m[2]][unit]
	}
	return math.RoundToEven(total), true
}

func containsAny(s string, parts []string) bool {
	for _, p := range parts {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
