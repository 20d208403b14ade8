package preprocess

import (
	"context"
	"regexp"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

var suffixedName = regexp.MustCompile(`^(.+)_\d+$`)

// CleanupStrategy drops sparse rows, repeated rows and columns, and sparse columns.
type CleanupStrategy struct{}

func (s *CleanupStrategy) Name() string { return Cleanup }

func (s *CleanupStrategy) Apply(ctx context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	if t.IsEmpty() {
		return model.Outcome{Table: t}, nil
	}
	maxMissing := ec.Engine().MaxMissingPct
	rowsBefore, colsBefore := t.NumRows(), t.NumCols()

	minValues := int(float64(t.NumCols()) * (1 - maxMissing))
	keep := make([]bool, t.NumRows())
	for i, nulls := range t.RowNullCounts() {
		keep[i] = t.NumCols()-nulls >= minValues
	}
	out := t.Filter(keep)

	dup := out.DuplicateRows()
	for i := range dup {
		dup[i] = !dup[i]
	}
	out = out.Filter(dup)

	var drop []string
	for _, c := range out.Columns() {
		m := suffixedName.FindStringSubmatch(c.Name())
		if m == nil {
			continue
		}
		if orig := out.Col(m[1]); orig != nil && orig.SameValues(c) {
			drop = append(drop, c.Name())
		}
	}
	out.Drop(drop...)

	drop = drop[:0]
	for _, c := range out.Columns() {
		if out.NumRows() == 0 || c.MissingRatio() >= maxMissing {
			drop = append(drop, c.Name())
		}
	}
	out.Drop(drop...)

	rowsDropped, colsDropped := rowsBefore-out.NumRows(), colsBefore-out.NumCols()
	if rowsDropped > 0 || colsDropped > 0 {
		ec.Log.Infof("%s: dropped %d rows and %d columns", s.Name(), rowsDropped, colsDropped)
	}
	return model.Outcome{Table: out, Changes: rowsDropped + colsDropped}, nil
}
