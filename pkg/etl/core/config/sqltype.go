package config

import (
	"strconv"
	"strings"
)

// SQLType is a parsed SQL column type such as "DECIMAL(10,2)" or "VARCHAR(50)".
type SQLType struct {
	// Base is the upper-cased name before any parameters.
	Base string
	// Length is the declared length of a single-parameter type, zero when absent.
	Length int
	// Precision and Scale come from two-parameter types; HasScale tells a zero scale from none.
	Precision int
	Scale     int
	HasScale  bool
}

// ParseSQLType parses a SQL type descriptor. Malformed parameters are ignored.
func ParseSQLType(s string) SQLType {
	s = strings.ToUpper(strings.TrimSpace(s))
	t := SQLType{Base: s}
	open := strings.Index(s, "(")
	if open < 0 {
		return t
	}
	t.Base = strings.TrimSpace(s[:open])
	end := strings.Index(s[open:], ")")
	if end < 0 {
		return t
	}
	params := strings.Split(s[open+1:open+end], ",")
	if len(params) == 1 {
		if n, err := strconv.Atoi(strings.TrimSpace(params[0])); err == nil {
			t.Length = n
		}
		return t
	}
	if p, err := strconv.Atoi(strings.TrimSpace(params[0])); err == nil {
		t.Precision = p
	}
	if sc, err := strconv.Atoi(strings.TrimSpace(params[1])); err == nil {
		t.Scale = sc
		t.HasScale = true
	}
	return t
}

// IsText reports VARCHAR, NVARCHAR, CHAR and TEXT types.
func (t SQLType) IsText() bool {
	return strings.Contains(t.Base, "CHAR") || strings.Contains(t.Base, "TEXT")
}

// IsInteger reports INT-family types (TINYINT, SMALLINT, INT, BIGINT, INTEGER).
func (t SQLType) IsInteger() bool { return strings.Contains(t.Base, "INT") }

// IsDecimal reports DECIMAL, NUMERIC, FLOAT, REAL and MONEY types.
func (t SQLType) IsDecimal() bool {
	for _, k := range []string{"DECIMAL", "NUMERIC", "FLOAT", "REAL", "MONEY", "DOUBLE"} {
		if strings.Contains(t.Base, k) {
			return true
		}
	}
	return false
}

// IsDateTime reports types that carry a clock component.
func (t SQLType) IsDateTime() bool {
	return strings.Contains(t.Base, "DATETIME") || strings.Contains(t.Base, "TIMESTAMP")
}

// IsDate reports DATE and every date-time type.
func (t SQLType) IsDate() bool { return strings.Contains(t.Base, "DATE") || t.IsDateTime() }

// IsBool reports BIT and BOOLEAN.
func (t SQLType) IsBool() bool { return t.Base == "BIT" || strings.Contains(t.Base, "BOOL") }

// IsUUID reports UNIQUEIDENTIFIER and UUID.
func (t SQLType) IsUUID() bool { return t.Base == "UNIQUEIDENTIFIER" || t.Base == "UUID" }
