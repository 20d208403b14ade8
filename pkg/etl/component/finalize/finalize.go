// Package finalize holds the last step of every pipeline. It prepares a fixed table for
// the target database: cleanup, decimal scales, natural keys, CHECK constraints and lineage.
package finalize

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/component/preprocess"
	"github.com/tigerroll/datafactory/pkg/etl/component/transform"
	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
)

const moduleName = "finalize"

// Name is the registry name of the final cleanup strategy.
const Name = "final_cleanup"

// Lineage column names.
const (
	LoadBatchID = "LoadBatchID"
	LoadDate    = "LoadDate"
	LastUpdated = "LastUpdated"
)

// maxLoanInterest mirrors the CK_InterestRate constraint of the loan table.
const maxLoanInterest = 30

// Strategy runs the final cleanup of a dataset.
type Strategy struct {
	cleanup port.Strategy
}

// New builds the final cleanup around the cleanup strategy of f.
func New(f *preprocess.Factory) (*Strategy, error) {
	cleanup, err := f.Get(preprocess.Cleanup)
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "cleanup strategy unavailable", err)
	}
	return &Strategy{cleanup: cleanup}, nil
}

func (s *Strategy) Name() string { return Name }

// Apply returns a cleaned copy of t; t itself is never modified.
func (s *Strategy) Apply(ctx context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	if t.IsEmpty() {
		return model.Outcome{Table: t}, nil
	}
	ec.Log.Infof("Running final custom operations")

	cleaned, err := s.cleanup.Apply(ctx, ec, t.Clone())
	if err != nil {
		return model.Outcome{Table: t}, exception.NewPipelineError(moduleName, "cleanup failed", err)
	}
	out, changes := cleaned.Table, cleaned.Changes

	if schema := ec.Schema(); !schema.IsEmpty() {
		changes += roundToSchema(ec, out, schema)
	}

	var removed int
	out, removed = transform.EnsureUnique(ec, out)
	changes += removed

	n, err := uniqueAccounts(ec, out)
	if err != nil {
		return model.Outcome{Table: t}, err
	}
	changes += n

	if ec.Is("loan") {
		changes += clipLoanInterest(ec, out)
	}

	if ec.Engine().AddDataLineage {
		if err := addLineage(ec, out); err != nil {
			return model.Outcome{Table: t}, err
		}
		ec.Log.Infof("Added data lineage columns")
	}
	return model.Outcome{Table: out, Changes: changes}, nil
}

// roundToSchema rounds numeric columns to the scale of their DECIMAL type and turns GDP
// into whole numbers.
func roundToSchema(ec *execution.Context, t *table.Table, schema config.Schema) int {
	n := 0
	for _, c := range t.NumericColumns() {
		sqlType, ok := schema.TypeOf(c.Name())
		if !ok {
			continue
		}
		if st := config.ParseSQLType(sqlType); st.IsDecimal() && st.HasScale {
			ec.Log.Debugf("Enforcing %d decimal places for %s", st.Scale, c.Name())
			n += roundColumn(c, st.Scale)
		}
		if c.Name() == "GDP" {
			n += roundColumn(c, 0)
			c.SetIntKind(true)
		}
	}
	return n
}

func roundColumn(c *table.Column, places int) int {
	p := math.Pow10(places)
	n := 0
	nums := c.Nums()
	for i, v := range nums {
		if math.IsNaN(v) {
			continue
		}
		if r := math.RoundToEven(v*p) / p; r != v {
			nums[i] = r
			n++
		}
	}
	return n
}

// uniqueAccounts suffixes repeated AccountIDs with their occurrence number ("_01", "_02"),
// leaving the first occurrence unchanged. Numeric identifiers become text.
func uniqueAccounts(ec *execution.Context, t *table.Table) (int, error) {
	c := t.Col("AccountID")
	if c == nil {
		return 0, nil
	}
	dup := t.DuplicateRows("AccountID")
	repeated := 0
	for i, d := range dup {
		if d && !c.IsNull(i) {
			repeated++
		}
	}
	if repeated == 0 {
		return 0, nil
	}
	ec.Log.Warnf("Found %d duplicate AccountIDs. Fixing by adding suffixes.", repeated)

	ids := c
	if c.Kind() != table.KindString {
		ids = table.ToText(c)
		if err := t.Set(ids); err != nil {
			return 0, exception.NewPipelineError(moduleName, "converting AccountID to text", err)
		}
	}
	seen := map[string]int{}
	for i := 0; i < ids.Len(); i++ {
		id, ok := ids.Str(i)
		if !ok {
			continue
		}
		occurrence := seen[id]
		seen[id]++
		if occurrence > 0 {
			renamed := fmt.Sprintf("%s_%02d", id, occurrence)
			ids.SetStr(i, renamed)
			ec.Log.Debugf("Changed duplicate AccountID from %s to %s", id, renamed)
		}
	}

	for i, d := range t.DuplicateRows("AccountID") {
		if d && !ids.IsNull(i) {
			ec.Log.Errorf("Failed to ensure AccountID uniqueness")
			return repeated, nil
		}
	}
	ec.Log.Infof("Verified %d unique AccountID values", ids.NUnique())
	return repeated, nil
}

// clipLoanInterest enforces 0 <= InterestRate <= 30.
func clipLoanInterest(ec *execution.Context, t *table.Table) int {
	c := t.Col("InterestRate")
	if c == nil || !c.IsNumeric() {
		return 0
	}
	n := 0
	nums := c.Nums()
	for i, v := range nums {
		switch {
		case v < 0:
			nums[i] = 0
			n++
		case v > maxLoanInterest:
			nums[i] = maxLoanInterest
			n++
		}
	}
	if n > 0 {
		ec.Log.Warnf("Modified %d out-of-range InterestRate values to meet CHECK constraint (0-30%%)", n)
	}
	return n
}

// addLineage sets the batch id of the run, the load time and an empty update time on every row.
func addLineage(ec *execution.Context, t *table.Table) error {
	rows := t.NumRows()
	batch := make([]string, rows)
	loaded := make([]time.Time, rows)
	now := ec.Now()
	for i := range batch {
		batch[i] = ec.Shared.RunID
		loaded[i] = now
	}
	for _, c := range []*table.Column{
		table.NewString(LoadBatchID, batch, nil),
		table.NewTime(LoadDate, loaded, nil),
		table.NewNull(LastUpdated, table.KindTime, rows),
	} {
		if err := t.Set(c); err != nil {
			return exception.NewPipelineError(moduleName, "adding lineage column "+c.Name(), err)
		}
	}
	return nil
}
