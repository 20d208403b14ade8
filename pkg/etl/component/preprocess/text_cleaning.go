package preprocess

import (
	"context"
	"strings"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

// underscoreSample is how many leading values decide whether a column's underscores go.
const underscoreSample = 100

// TextCleaningStrategy strips underscores, drops values with non-printable characters and
// converts mostly-numeric text columns to numbers. Duplicate column names never reach it:
// the loader already renamed them.
type TextCleaningStrategy struct{}

func (s *TextCleaningStrategy) Name() string { return TextCleaning }

func (s *TextCleaningStrategy) Apply(ctx context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	if t.IsEmpty() {
		return model.Outcome{Table: t}, nil
	}
	out := t.Clone()
	cleaned := 0
	for _, c := range out.ColumnsOfKind(table.KindString) {
		cleaned += cleanSpecialCharacters(c)
	}
	if cleaned > 0 {
		ec.Log.Debugf("%s: %d values with special characters cleaned", s.Name(), cleaned)
	}

	minNumeric := ec.Engine().MinNumericPercent
	converted := 0
	for _, c := range out.ColumnsOfKind(table.KindString) {
		if numericShare(c) >= minNumeric {
			if err := out.Set(table.ToNumeric(c)); err != nil {
				return model.Outcome{}, err
			}
			converted++
		}
	}
	if converted > 0 {
		ec.Log.Debugf("%s: %d columns converted from string to numeric", s.Name(), converted)
	}
	return model.Outcome{Table: out, Changes: cleaned + converted}, nil
}

func cleanSpecialCharacters(c *table.Column) int {
	n := c.Len()
	cleaned := 0

	var sample strings.Builder
	for i := 0; i < n && i < underscoreSample; i++ {
		if v, ok := c.Str(i); ok {
			sample.WriteString(v)
		}
	}
	if strings.Contains(sample.String(), "_") {
		for i := 0; i < n; i++ {
			if v, ok := c.Str(i); ok {
				c.SetStr(i, strings.ReplaceAll(v, "_", ""))
			}
		}
		cleaned += n
	}

	for i := 0; i < n; i++ {
		if v, ok := c.Str(i); ok && !printableASCII(v) {
			c.SetNull(i)
			cleaned++
		}
	}
	return cleaned
}

func printableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}

// numericShare is the share of all rows, missing ones included, that parse as numbers.
func numericShare(c *table.Column) float64 {
	if c.Len() == 0 {
		return 0
	}
	parsed := 0
	for i := 0; i < c.Len(); i++ {
		if v, ok := c.Str(i); ok {
			if _, ok := table.ParseNumber(v); ok {
				parsed++
			}
		}
	}
	return float64(parsed) / float64(c.Len())
}
