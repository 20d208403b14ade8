package table

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// timeLayouts are tried in order when parsing text as a timestamp.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"1/2/2006",
	"1/2/2006 15:04",
	"02-01-2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"2006-01",
	"Jan-2006",
}

// ParseTime parses common date and timestamp layouts.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// FormatTime renders a timestamp as a date when it has no clock component.
func FormatTime(ts time.Time) string {
	if ts.Hour() == 0 && ts.Minute() == 0 && ts.Second() == 0 && ts.Nanosecond() == 0 {
		return ts.Format("2006-01-02")
	}
	return ts.Format("2006-01-02 15:04:05")
}

// ParseNumber parses a decimal number, tolerating surrounding spaces.
// Infinity and NaN spellings are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

var (
	truthy = map[string]bool{"true": true, "yes": true, "y": true, "t": true, "1": true}
	falsy  = map[string]bool{"false": true, "no": true, "n": true, "f": true, "0": true}
)

// ParseBool parses the usual spellings of true and false.
func ParseBool(s string) (value bool, ok bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	if truthy[v] {
		return true, true
	}
	if falsy[v] {
		return false, true
	}
	return false, false
}

// ToNumeric converts any column into a float column. Unparseable text becomes missing,
// booleans become 0/1 and timestamps become Unix seconds.
func ToNumeric(c *Column) *Column {
	n := c.Len()
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		vals[i] = math.NaN()
		if c.IsNull(i) {
			continue
		}
		switch c.kind {
		case KindFloat, KindInt, KindBool:
			vals[i] = c.Float(i)
		case KindString:
			if v, ok := ParseNumber(c.strs[i]); ok {
				vals[i] = v
			}
		case KindTime:
			vals[i] = float64(c.times[i].Unix())
		}
	}
	return NewFloat(c.name, vals)
}

// NumericParseRatio returns the share of present values of a text column that parse as numbers.
func NumericParseRatio(c *Column) float64 {
	present, parsed := 0, 0
	for i := 0; i < c.Len(); i++ {
		s, ok := c.Str(i)
		if !ok {
			continue
		}
		present++
		if _, ok := ParseNumber(s); ok {
			parsed++
		}
	}
	if present == 0 {
		return 0
	}
	return float64(parsed) / float64(present)
}

// ToTime converts a column into a time column. Unparseable values become missing.
func ToTime(c *Column) *Column {
	if c.kind == KindTime {
		return c.Clone()
	}
	n := c.Len()
	out := NewNull(c.name, KindTime, n)
	for i := 0; i < n; i++ {
		s, ok := c.Str(i)
		if !ok {
			continue
		}
		if ts, ok := ParseTime(s); ok {
			out.SetTime(i, ts)
		}
	}
	return out
}

// ToText converts a column into a text column using Format.
func ToText(c *Column) *Column {
	if c.kind == KindString {
		return c.Clone()
	}
	n := c.Len()
	out := NewNull(c.name, KindString, n)
	for i := 0; i < n; i++ {
		if !c.IsNull(i) {
			out.SetStr(i, c.Format(i))
		}
	}
	return out
}

// IsWholeNumbers reports whether every present value of a numeric column is integral.
func IsWholeNumbers(c *Column) bool {
	if !c.IsNumeric() {
		return false
	}
	for _, v := range c.nums {
		if math.IsNaN(v) {
			continue
		}
		if v != math.Trunc(v) {
			return false
		}
	}
	return true
}
