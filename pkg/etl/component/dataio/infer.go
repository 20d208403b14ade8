package dataio

import (
	"strconv"
	"strings"

	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

// missingMarkers are cell spellings read as missing values.
var missingMarkers = map[string]bool{
	"": true, "na": true, "n/a": true, "nan": true, "-nan": true, "null": true,
	"none": true, "#n/a": true, "<na>": true, "nat": true,
}

// IsMissing reports whether a text cell denotes a missing value.
func IsMissing(s string) bool {
	return missingMarkers[strings.ToLower(strings.TrimSpace(s))]
}

// InferColumn builds a typed column from text cells: integers, then floats, then
// True/False booleans, else text. Dates stay text; the cleaning stage parses them.
func InferColumn(name string, cells []string) *table.Column {
	n := len(cells)
	present := 0
	allInt, allNum, allBool := true, true, true
	for _, s := range cells {
		if IsMissing(s) {
			continue
		}
		present++
		s = strings.TrimSpace(s)
		if allInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				allInt = false
			}
		}
		if allNum {
			if _, ok := table.ParseNumber(s); !ok {
				allNum = false
			}
		}
		if allBool {
			switch s {
			case "True", "False", "TRUE", "FALSE", "true", "false":
			default:
				allBool = false
			}
		}
	}

	switch {
	case present == 0:
		return table.NewNull(name, table.KindFloat, n)
	case allNum:
		vals := make([]float64, n)
		for i, s := range cells {
			if v, ok := table.ParseNumber(s); ok && !IsMissing(s) {
				vals[i] = v
			} else {
				vals[i] = nan
			}
		}
		if allInt {
			return table.NewInt(name, vals)
		}
		return table.NewFloat(name, vals)
	case allBool:
		vals := make([]bool, n)
		valid := make([]bool, n)
		for i, s := range cells {
			if IsMissing(s) {
				continue
			}
			vals[i] = strings.EqualFold(strings.TrimSpace(s), "true")
			valid[i] = true
		}
		return table.NewBool(name, vals, valid)
	default:
		vals := make([]string, n)
		valid := make([]bool, n)
		for i, s := range cells {
			if IsMissing(s) {
				continue
			}
			vals[i] = s
			valid[i] = true
		}
		return table.NewString(name, vals, valid)
	}
}

// fromRows builds a table from a header and text records. Short records are padded
// with missing cells; duplicate header names get "_<n>" suffixes.
func fromRows(header []string, records [][]string) (*table.Table, error) {
	t := table.Empty()
	for j, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(j)
		}
		cells := make([]string, len(records))
		for i, rec := range records {
			if j < len(rec) {
				cells[i] = rec[j]
			}
		}
		if err := t.Set(InferColumn(table.UniqueName(t, name), cells)); err != nil {
			return nil, err
		}
	}
	return t, nil
}
