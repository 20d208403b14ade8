package table

import (
	"math"
	"strconv"
	"time"
)

// Kind is the storage kind of a column.
type Kind int

const (
	// KindFloat holds float64 values; NaN marks a missing value.
	KindFloat Kind = iota
	// KindInt holds whole numbers stored as float64; NaN marks a missing value.
	KindInt
	// KindString holds text values with a validity mask.
	KindString
	// KindTime holds timestamps with a validity mask.
	KindTime
	// KindBool holds booleans with a validity mask.
	KindBool
)

// String returns the dtype-like name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float64"
	case KindInt:
		return "int64"
	case KindString:
		return "object"
	case KindTime:
		return "datetime64"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether the kind stores numbers.
func (k Kind) IsNumeric() bool {
	return k == KindFloat || k == KindInt
}

// Column is a named, typed vector. Numeric kinds use NaN for missing values;
// the other kinds carry an explicit validity mask.
type Column struct {
	name  string
	kind  Kind
	nums  []float64
	strs  []string
	times []time.Time
	bools []bool
	valid []bool
}

func allValid(n int) []bool {
	v := make([]bool, n)
	for i := range v {
		v[i] = true
	}
	return v
}

func maskOrAll(valid []bool, n int) []bool {
	if valid == nil {
		return allValid(n)
	}
	out := make([]bool, n)
	copy(out, valid)
	return out
}

// NewFloat creates a float column. The slice is used as is.
func NewFloat(name string, vals []float64) *Column {
	return &Column{name: name, kind: KindFloat, nums: vals}
}

// NewInt creates an integer column backed by float64 values. The slice is used as is.
func NewInt(name string, vals []float64) *Column {
	return &Column{name: name, kind: KindInt, nums: vals}
}

// NewString creates a text column. A nil valid mask means every value is present.
func NewString(name string, vals []string, valid []bool) *Column {
	return &Column{name: name, kind: KindString, strs: vals, valid: maskOrAll(valid, len(vals))}
}

// NewTime creates a timestamp column. A nil valid mask means every value is present.
func NewTime(name string, vals []time.Time, valid []bool) *Column {
	return &Column{name: name, kind: KindTime, times: vals, valid: maskOrAll(valid, len(vals))}
}

// NewBool creates a boolean column. A nil valid mask means every value is present.
func NewBool(name string, vals []bool, valid []bool) *Column {
	return &Column{name: name, kind: KindBool, bools: vals, valid: maskOrAll(valid, len(vals))}
}

// NewNull creates a column of n missing values of the given kind.
func NewNull(name string, kind Kind, n int) *Column {
	switch kind {
	case KindFloat, KindInt:
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = math.NaN()
		}
		return &Column{name: name, kind: kind, nums: vals}
	case KindString:
		return &Column{name: name, kind: kind, strs: make([]string, n), valid: make([]bool, n)}
	case KindTime:
		return &Column{name: name, kind: kind, times: make([]time.Time, n), valid: make([]bool, n)}
	default:
		return &Column{name: name, kind: KindBool, bools: make([]bool, n), valid: make([]bool, n)}
	}
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Kind returns the column kind.
func (c *Column) Kind() Kind { return c.kind }

// IsNumeric reports whether the column stores numbers.
func (c *Column) IsNumeric() bool { return c.kind.IsNumeric() }

// Len returns the number of values.
func (c *Column) Len() int {
	switch c.kind {
	case KindFloat, KindInt:
		return len(c.nums)
	case KindString:
		return len(c.strs)
	case KindTime:
		return len(c.times)
	default:
		return len(c.bools)
	}
}

// SetIntKind switches a numeric column between the int and float kinds.
// It has no effect on non-numeric columns.
func (c *Column) SetIntKind(isInt bool) {
	if !c.IsNumeric() {
		return
	}
	if isInt {
		c.kind = KindInt
	} else {
		c.kind = KindFloat
	}
}

// IsNull reports whether row i is missing.
func (c *Column) IsNull(i int) bool {
	if c.IsNumeric() {
		return math.IsNaN(c.nums[i])
	}
	return !c.valid[i]
}

// NullCount returns the number of missing values.
func (c *Column) NullCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			n++
		}
	}
	return n
}

// MissingRatio returns NullCount divided by Len (0 for an empty column).
func (c *Column) MissingRatio() float64 {
	if c.Len() == 0 {
		return 0
	}
	return float64(c.NullCount()) / float64(c.Len())
}

// Nums exposes the numeric backing slice for in-place updates. It is nil for other kinds.
func (c *Column) Nums() []float64 { return c.nums }

// Float returns row i as a number. Booleans map to 0/1; text and time yield NaN.
func (c *Column) Float(i int) float64 {
	switch c.kind {
	case KindFloat, KindInt:
		return c.nums[i]
	case KindBool:
		if !c.valid[i] {
			return math.NaN()
		}
		if c.bools[i] {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}

// SetFloat stores v at row i of a numeric column.
func (c *Column) SetFloat(i int, v float64) {
	if c.IsNumeric() {
		c.nums[i] = v
	}
}

// Str returns row i of a text column and whether it is present.
func (c *Column) Str(i int) (string, bool) {
	if c.kind != KindString {
		if c.IsNull(i) {
			return "", false
		}
		return c.Format(i), true
	}
	return c.strs[i], c.valid[i]
}

// SetStr stores s at row i of a text column.
func (c *Column) SetStr(i int, s string) {
	if c.kind == KindString {
		c.strs[i] = s
		c.valid[i] = true
	}
}

// Time returns row i of a time column and whether it is present.
func (c *Column) Time(i int) (time.Time, bool) {
	if c.kind != KindTime {
		return time.Time{}, false
	}
	return c.times[i], c.valid[i]
}

// SetTime stores ts at row i of a time column.
func (c *Column) SetTime(i int, ts time.Time) {
	if c.kind == KindTime {
		c.times[i] = ts
		c.valid[i] = true
	}
}

// Bool returns row i of a bool column and whether it is present.
func (c *Column) Bool(i int) (bool, bool) {
	if c.kind != KindBool {
		return false, false
	}
	return c.bools[i], c.valid[i]
}

// SetBool stores b at row i of a bool column.
func (c *Column) SetBool(i int, b bool) {
	if c.kind == KindBool {
		c.bools[i] = b
		c.valid[i] = true
	}
}

// SetNull marks row i as missing.
func (c *Column) SetNull(i int) {
	if c.IsNumeric() {
		c.nums[i] = math.NaN()
		return
	}
	c.valid[i] = false
	switch c.kind {
	case KindString:
		c.strs[i] = ""
	case KindTime:
		c.times[i] = time.Time{}
	case KindBool:
		c.bools[i] = false
	}
}

// Value returns row i as float64, int64, string, time.Time or bool, or nil when missing.
func (c *Column) Value(i int) interface{} {
	if c.IsNull(i) {
		return nil
	}
	switch c.kind {
	case KindFloat:
		return c.nums[i]
	case KindInt:
		return int64(math.Round(c.nums[i]))
	case KindString:
		return c.strs[i]
	case KindTime:
		return c.times[i]
	default:
		return c.bools[i]
	}
}

// Format renders row i as text. Missing values render as the empty string.
func (c *Column) Format(i int) string {
	if c.IsNull(i) {
		return ""
	}
	switch c.kind {
	case KindFloat:
		return strconv.FormatFloat(c.nums[i], 'f', -1, 64)
	case KindInt:
		return strconv.FormatInt(int64(math.Round(c.nums[i])), 10)
	case KindString:
		return c.strs[i]
	case KindTime:
		return FormatTime(c.times[i])
	default:
		if c.bools[i] {
			return "True"
		}
		return "False"
	}
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	out := &Column{name: c.name, kind: c.kind}
	if c.nums != nil {
		out.nums = append([]float64(nil), c.nums...)
	}
	if c.strs != nil {
		out.strs = append([]string(nil), c.strs...)
	}
	if c.times != nil {
		out.times = append([]time.Time(nil), c.times...)
	}
	if c.bools != nil {
		out.bools = append([]bool(nil), c.bools...)
	}
	if c.valid != nil {
		out.valid = append([]bool(nil), c.valid...)
	}
	return out
}

// WithName returns a copy of the column under a different name.
func (c *Column) WithName(name string) *Column {
	out := c.Clone()
	out.name = name
	return out
}

// Take returns a new column holding the given rows in order. A negative index yields a missing value.
func (c *Column) Take(rows []int) *Column {
	out := NewNull(c.name, c.kind, len(rows))
	for j, i := range rows {
		if i < 0 || c.IsNull(i) {
			continue
		}
		switch c.kind {
		case KindFloat, KindInt:
			out.nums[j] = c.nums[i]
		case KindString:
			out.SetStr(j, c.strs[i])
		case KindTime:
			out.SetTime(j, c.times[i])
		case KindBool:
			out.SetBool(j, c.bools[i])
		}
	}
	return out
}

// Pad returns a copy extended with missing values up to n rows.
func (c *Column) Pad(n int) *Column {
	if c.Len() >= n {
		return c.Clone()
	}
	rows := make([]int, n)
	for i := range rows {
		if i < c.Len() {
			rows[i] = i
		} else {
			rows[i] = -1
		}
	}
	return c.Take(rows)
}

// Equal reports whether two columns have the same name, kind and values.
func (c *Column) Equal(o *Column) bool {
	if c.name != o.name || c.kind != o.kind || c.Len() != o.Len() {
		return false
	}
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) != o.IsNull(i) {
			return false
		}
		if c.IsNull(i) {
			continue
		}
		switch c.kind {
		case KindFloat, KindInt:
			if c.nums[i] != o.nums[i] {
				return false
			}
		case KindString:
			if c.strs[i] != o.strs[i] {
				return false
			}
		case KindTime:
			if !c.times[i].Equal(o.times[i]) {
				return false
			}
		case KindBool:
			if c.bools[i] != o.bools[i] {
				return false
			}
		}
	}
	return true
}

// SameValues reports whether two columns hold identical values regardless of name.
func (c *Column) SameValues(o *Column) bool {
	return c.WithName("").Equal(o.WithName(""))
}
