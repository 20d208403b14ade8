package transform

import (
	"context"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

// lineageBatchColumn is owned by the lineage step; a source that already carries it keeps
// the target column out of the mapping.
const lineageBatchColumn = "loadbatchid"

var (
	truthyValues = map[string]bool{"true": true, "t": true, "yes": true, "y": true, "1": true, "on": true, "enable": true, "enabled": true}
	falsyValues  = map[string]bool{"false": true, "f": true, "no": true, "n": true, "0": true, "off": true, "disable": true, "disabled": true}
)

// SchemaStrategy rebuilds the table in target-schema order. Each target column takes its
// mapped source column, coerced to the SQL type, or stays null and is recorded in
// PendingFields for generation. Identity columns are never produced.
type SchemaStrategy struct{}

func (s *SchemaStrategy) Name() string { return SchemaTransformation }

func (s *SchemaStrategy) Apply(ctx context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	if t.IsEmpty() {
		return model.Outcome{Table: t}, nil
	}
	ec.PendingFields = nil
	schema := ec.Schema()
	if schema.IsEmpty() {
		ec.Log.Warnf("No target schema defined for %s", ec.Dataset)
		return model.Outcome{Table: t}, nil
	}

	skip := map[string]bool{}
	for _, name := range ec.Provider.IdentityColumns(ec.Dataset) {
		skip[name] = true
	}
	if name, ok := t.FindFold(lineageBatchColumn); ok {
		skip[name] = true
	}
	mappings := ec.Provider.FieldMappings(ec.Dataset)

	out := table.Empty()
	transformed := 0
	for _, col := range schema.Columns {
		if skip[col.Name] {
			ec.Log.Debugf("Skipping IDENTITY/UNIQUEIDENTIFIER column: %s", col.Name)
			continue
		}
		sqlType := parseType(ec, col.Type)

		source, ok := matchSource(t, mappings, col.Name)
		if !ok {
			ec.PendingFields = append(ec.PendingFields, col.Name)
			if err := out.Set(table.NewNull(col.Name, kindFor(sqlType), t.NumRows())); err != nil {
				return model.Outcome{}, err
			}
			continue
		}
		if source != mappedName(mappings, col.Name) {
			ec.Log.Debugf("Case-insensitive match: '%s' -> '%s'", mappedName(mappings, col.Name), source)
		}
		converted := coerce(ec, t.Col(source), col.Name, col.Type, sqlType)
		if err := out.Set(converted.WithName(col.Name)); err != nil {
			return model.Outcome{}, err
		}
		transformed++
	}
	if len(skip) > 0 {
		ec.Log.Debugf("Skipped %d IDENTITY columns in %s", len(skip), ec.Dataset)
	}
	ec.Log.Infof("Schema transformation complete: %d fields transformed, %d fields marked for generation",
		transformed, len(ec.PendingFields))
	return model.Outcome{Table: out, Changes: transformed + len(ec.PendingFields)}, nil
}

func parseType(ec *execution.Context, s string) config.SQLType {
	return execution.Remember(ec.Memo, "sqltype:"+s, func() config.SQLType { return config.ParseSQLType(s) })
}

// mappedName returns the source column configured for target, or "" when unmapped.
func mappedName(mappings []map[string]string, target string) string {
	for _, m := range mappings {
		if source, ok := m[target]; ok {
			return source
		}
	}
	return ""
}

// matchSource resolves the configured source of target, exactly first and then ignoring case.
func matchSource(t *table.Table, mappings []map[string]string, target string) (string, bool) {
	source := mappedName(mappings, target)
	if source == "" {
		return "", false
	}
	if t.Has(source) {
		return source, true
	}
	return t.FindFold(source)
}

func kindFor(t config.SQLType) table.Kind {
	switch {
	case t.IsInteger():
		return table.KindInt
	case t.IsDecimal():
		return table.KindFloat
	case t.IsDate():
		return table.KindTime
	case t.IsBool():
		return table.KindBool
	default:
		return table.KindString
	}
}

// coerce converts a source column to the target SQL type.
func coerce(ec *execution.Context, c *table.Column, target, raw string, t config.SQLType) *table.Column {
	lowerSource := strings.ToLower(c.Name())
	if t.IsInteger() && c.Kind() == table.KindString &&
		(strings.Contains(lowerSource, "id") || strings.Contains(strings.ToLower(raw), "id")) {
		return enumerateIDs(ec, c)
	}
	switch {
	case t.IsUUID():
		return coerceUUID(c)
	case t.IsText():
		return coerceText(c, t.Length)
	case t.IsInteger():
		return coerceInteger(c)
	case t.IsDecimal():
		return coerceDecimal(ec, c, target, raw, t)
	case t.IsDate():
		return coerceDate(ec, c)
	case t.IsBool():
		return coerceBool(c)
	default:
		ec.Log.Warnf("Unknown SQL type: %s, using string conversion", raw)
		return coerceText(c, 0)
	}
}

// enumerateIDs maps distinct text IDs to consecutive integers from a random offset, so equal
// source values share one integer and distinct ones never collide. Missing IDs become 0.
func enumerateIDs(ec *execution.Context, c *table.Column) *table.Column {
	offset := 10000 + ec.Rand.Intn(89999)
	ids := map[string]float64{}
	vals := make([]float64, c.Len())
	for i := range vals {
		v, ok := c.Str(i)
		if !ok {
			continue
		}
		id, seen := ids[v]
		if !seen {
			id = float64(offset + len(ids))
			ids[v] = id
		}
		vals[i] = id
	}
	return table.NewInt(c.Name(), vals)
}

func coerceUUID(c *table.Column) *table.Column {
	if c.Kind() == table.KindString {
		checked, valid := 0, true
		for i := 0; i < c.Len() && checked < 5; i++ {
			v, ok := c.Str(i)
			if !ok {
				continue
			}
			checked++
			if _, err := uuid.Parse(v); err != nil {
				valid = false
				break
			}
		}
		if valid && checked > 0 {
			return c.Clone()
		}
	}
	vals := make([]string, c.Len())
	for i := range vals {
		vals[i] = uuid.NewString()
	}
	return table.NewString(c.Name(), vals, nil)
}

func coerceText(c *table.Column, length int) *table.Column {
	vals := make([]string, c.Len())
	for i := range vals {
		if c.IsNull(i) {
			continue
		}
		vals[i] = truncate(c.Format(i), length)
	}
	return table.NewString(c.Name(), vals, nil)
}

// truncate cuts v to length runes; a non-positive length leaves it whole.
func truncate(v string, length int) string {
	if length <= 0 {
		return v
	}
	if r := []rune(v); len(r) > length {
		return string(r[:length])
	}
	return v
}

func coerceInteger(c *table.Column) *table.Column {
	num := table.ToNumeric(c)
	nums := num.Nums()
	for i, v := range nums {
		if math.IsNaN(v) {
			nums[i] = 0
		} else {
			nums[i] = math.Trunc(v)
		}
	}
	num.SetIntKind(true)
	return num
}

func coerceDecimal(ec *execution.Context, c *table.Column, target, raw string, t config.SQLType) *table.Column {
	num := table.ToNumeric(c)
	nums := num.Nums()
	for i, v := range nums {
		if math.IsNaN(v) {
			nums[i] = 0
		}
	}
	if t.HasScale {
		if exceedsScale(nums, t.Scale) {
			ec.Log.Warnf("Column %s contains values with more decimal places than the target SQL type %s allows. Values will be rounded.", c.Name(), raw)
		}
		roundAll(nums, t.Scale)
	}
	if strings.Contains(strings.ToLower(c.Name()), "ratio") || strings.Contains(strings.ToLower(target), "ratio") {
		roundAll(nums, 2)
	}
	return num
}

func exceedsScale(nums []float64, scale int) bool {
	p := math.Pow(10, float64(scale))
	for _, v := range nums {
		if math.Abs(v*p-math.Round(v*p)) > 1e-9 {
			return true
		}
	}
	return false
}

func roundAll(nums []float64, places int) {
	p := math.Pow(10, float64(places))
	for i, v := range nums {
		if !math.IsNaN(v) {
			nums[i] = math.Round(v*p) / p
		}
	}
}

// coerceDate parses dates, treating whole numbers in a year-only report_date column as
// 1 January of that year. Missing dates take the run clock.
func coerceDate(ec *execution.Context, c *table.Column) *table.Column {
	var out *table.Column
	if strings.EqualFold(c.Name(), "report_date") && yearsOnly(c) {
		out = table.NewNull(c.Name(), table.KindTime, c.Len())
		for i := 0; i < c.Len(); i++ {
			if y, ok := table.ParseNumber(c.Format(i)); ok && !c.IsNull(i) {
				out.SetTime(i, dateOf(int(y), 1, 1))
			}
		}
	} else {
		out = table.ToTime(c)
	}
	now := ec.Now()
	for i := 0; i < out.Len(); i++ {
		if out.IsNull(i) {
			out.SetTime(i, now)
		}
	}
	return out
}

func yearsOnly(c *table.Column) bool {
	seen := false
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			continue
		}
		y, ok := table.ParseNumber(c.Format(i))
		if !ok || y != math.Trunc(y) || y < 1000 || y > 9999 {
			return false
		}
		seen = true
	}
	return seen
}

func coerceBool(c *table.Column) *table.Column {
	vals := make([]bool, c.Len())
	for i := range vals {
		if c.IsNull(i) {
			continue
		}
		switch c.Kind() {
		case table.KindBool, table.KindFloat, table.KindInt:
			vals[i] = c.Float(i) != 0
		default:
			v := strings.ToLower(strings.TrimSpace(c.Format(i)))
			switch {
			case truthyValues[v]:
				vals[i] = true
			case falsyValues[v]:
				vals[i] = false
			default:
				vals[i] = v != ""
			}
		}
	}
	return table.NewBool(c.Name(), vals, nil)
}
