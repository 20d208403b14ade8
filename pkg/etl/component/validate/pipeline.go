package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
)

// Pipeline runs validators in order and combines their findings into one result.
// It leaves the table untouched, so it can stand in as a strategy of a pipeline step.
type Pipeline struct {
	validators []port.Validator
}

// NewPipeline returns a pipeline over vs.
func NewPipeline(vs ...port.Validator) *Pipeline {
	return &Pipeline{validators: vs}
}

// Name implements port.Strategy.
func (p *Pipeline) Name() string { return "validation" }

// Apply implements port.Strategy: the table is returned as is with the combined result attached.
func (p *Pipeline) Apply(ctx context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	return model.Outcome{Table: t, Validation: p.Process(ctx, ec, t)}, nil
}

// Process runs one validation pass. Each call advances the dataset's pass counter.
// A failing validator is recorded as a critical exception issue and marks the result as error.
func (p *Pipeline) Process(ctx context.Context, ec *execution.Context, t *table.Table) *model.ValidationResult {
	started := ec.Now()
	clock := time.Now()
	result := model.NewValidationResult()
	result.Dataset = ec.Dataset
	result.ValidationPass = ec.NextValidationPass()
	result.StartedAt = started
	result.RowCount = t.NumRows()
	result.ColumnCount = t.NumCols()
	ec.Log.Infof("Running validation pass #%d", result.ValidationPass)

	if t.IsEmpty() {
		result.AddIssue(model.Issue{
			Type:     "empty_dataframe",
			Message:  "Empty dataframe provided for validation",
			Severity: model.SeverityCritical,
		})
		result.Finalize()
		return result
	}

	errored := false
	for i, v := range p.validators {
		stepClock := time.Now()
		ec.Log.Infof("Executing validation step %d/%d: %s", i+1, len(p.validators), v.Name())
		r, err := runValidator(ctx, ec, v, t)
		if err != nil {
			ec.Log.Errorf("Error in validation step %s: %v", v.Name(), err)
			errored = true
			r = model.NewValidationResult()
			r.AddIssue(model.Issue{Type: "exception", Message: err.Error(), Severity: model.SeverityCritical})
			r.Status = model.StatusError
		}
		result.Merge(v.Name(), r)
		result.Steps = append(result.Steps, model.StepSummary{
			Name:        v.Name(),
			Status:      r.Status,
			IssuesCount: len(r.Issues),
			DurationMs:  msSince(stepClock),
		})
	}

	result.Finalize()
	if errored {
		result.Status = model.StatusError
	}
	result.DurationMs = msSince(clock)
	ec.Log.Infof("Validation pass #%d finished: %s, %d issues, score %.1f",
		result.ValidationPass, result.Status, len(result.Issues), result.QualityScore)
	return result
}

// runValidator calls v, converting a panic into an error.
func runValidator(ctx context.Context, ec *execution.Context, v port.Validator, t *table.Table) (r *model.ValidationResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = exception.NewPipelineErrorf(moduleName, "validator %s panicked: %s", v.Name(), fmt.Sprint(rec))
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err = v.Validate(ctx, ec, t)
	if err == nil && r == nil {
		err = exception.NewPipelineError(moduleName, fmt.Sprintf("validator %s returned no result", v.Name()), nil)
	}
	return r, err
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
