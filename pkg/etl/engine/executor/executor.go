// Package executor runs one dataset through its ordered steps: load, every step with
// cache lookups and optional checkpoints, then save.
package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/metrics"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
)

const moduleName = "executor"

// Result is what one run of the executor yields. Table and Validation may be set even
// when Success is false, holding whatever the run got to.
type Result struct {
	Success    bool
	Table      *table.Table
	Validation *model.ValidationResult
	Err        error
}

// Executor holds the ordered steps of one dataset.
type Executor struct {
	loader    port.Loader
	saver     port.Saver
	cache     port.Cache
	steps     []port.Step
	listeners []port.StepExecutionListener
	recorder  metrics.MetricRecorder
	tracer    metrics.Tracer
}

// Option configures an Executor.
type Option func(*Executor)

// WithCache looks up and stores step outputs in c.
func WithCache(c port.Cache) Option {
	return func(e *Executor) { e.cache = c }
}

// WithListeners registers step listeners, notified in order.
func WithListeners(listeners ...port.StepExecutionListener) Option {
	return func(e *Executor) { e.listeners = append(e.listeners, listeners...) }
}

// WithRecorder reports quality scores to recorder.
func WithRecorder(recorder metrics.MetricRecorder) Option {
	return func(e *Executor) {
		if recorder != nil {
			e.recorder = recorder
		}
	}
}

// WithTracer records step failures on the spans of tracer.
func WithTracer(tracer metrics.Tracer) Option {
	return func(e *Executor) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// New creates an executor without steps.
func New(loader port.Loader, saver port.Saver, opts ...Option) *Executor {
	e := &Executor{
		loader:   loader,
		saver:    saver,
		recorder: metrics.NewNoOpMetricRecorder(),
		tracer:   metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddStep appends s and returns the executor for chaining.
func (e *Executor) AddStep(s port.Step) *Executor {
	e.steps = append(e.steps, s)
	return e
}

// Steps returns the configured steps in execution order.
func (e *Executor) Steps() []port.Step {
	return append([]port.Step(nil), e.steps...)
}

// CheckpointPath returns the checkpoint file of step next to outputPath.
func CheckpointPath(outputPath, step string) string {
	ext := filepath.Ext(outputPath)
	stem := strings.TrimSuffix(filepath.Base(outputPath), ext)
	return filepath.Join(filepath.Dir(outputPath), fmt.Sprintf("%s_%s_checkpoint%s", stem, step, ext))
}

// Execute loads inputPath, runs every step and saves the final table to outputPath.
// It never panics: failures of any kind end up in Result.Err with Success false.
func (e *Executor) Execute(ctx context.Context, ec *execution.Context, inputPath, outputPath string) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res.Success = false
			res.Err = exception.NewPipelineError(moduleName, fmt.Sprintf("pipeline panicked: %v", rec), nil)
			ec.Log.Errorf("Error executing pipeline: %v", res.Err)
		}
	}()

	t, err := e.loader.Load(ctx, inputPath)
	if err != nil || t == nil || t.IsEmpty() {
		ec.Log.Errorf("Failed to load data or empty dataset")
		if err == nil {
			err = exception.ErrEmptyTable
		}
		return Result{Err: exception.NewPipelineErrorf(moduleName, "failed to load %s", inputPath, err)}
	}
	ec.ResetValidationPass()
	checkpointing := ec.Engine().Checkpointing

	for _, s := range e.steps {
		if err := ctx.Err(); err != nil {
			res.Err = exception.NewPipelineErrorf(moduleName, "cancelled before step %s", s.Name(), err)
			ec.Log.Warnf("%v", res.Err)
			return res
		}

		se := e.newStepExecution(ec, s, t)
		e.notifyBeforeStep(ctx, se)

		out := e.runStep(ctx, ec, s, t, se)
		if out.Validation != nil {
			res.Validation = out.Validation
			e.recorder.RecordQualityScore(ctx, ec.Dataset, out.Validation.ValidationPass, out.Validation.QualityScore)
		}
		t = out.Table

		se.EndTime = time.Now()
		se.RowsOut = t.NumRows()
		se.Columns = t.NumCols()
		se.Changes = out.Changes
		if t.IsEmpty() {
			se.Status = model.StepAborted
			if se.Err == nil {
				se.Err = exception.ErrEmptyTable
			}
		}
		e.notifyAfterStep(ctx, se)
		ec.Log.Infof("Step %s completed in %.2f seconds", s.Name(), se.Duration().Seconds())

		if t.IsEmpty() {
			ec.Log.Errorf("Pipeline step %s returned empty table", s.Name())
			res.Table = nil
			res.Err = exception.NewPipelineErrorf(moduleName, "step %s returned an empty table", s.Name(), exception.ErrEmptyTable)
			return res
		}
		res.Table = t

		if checkpointing {
			path := CheckpointPath(outputPath, s.Name())
			if err := e.saver.Save(ctx, t, path); err != nil {
				ec.Log.Warnf("Failed to save checkpoint %s: %v", path, err)
			}
		}
	}

	res.Table = t
	if err := e.saver.Save(ctx, t, outputPath); err != nil {
		ec.Log.Errorf("Failed to save %s: %v", outputPath, err)
		res.Err = exception.NewPipelineErrorf(moduleName, "failed to save %s", outputPath, err)
		return res
	}
	res.Success = true
	return res
}

// runStep serves s from the cache or executes it and caches the result.
// A validation step is only served from the cache together with its validation result.
// Step errors are recorded on se; the step has already substituted its input.
func (e *Executor) runStep(ctx context.Context, ec *execution.Context, s port.Step, t *table.Table, se *model.StepExecution) model.Outcome {
	validations, _ := e.cache.(port.ValidationCache)
	validating := s.Kind() == port.KindValidation
	if e.cache != nil {
		if cached, ok := e.cache.Get(ec.Dataset, s.Name()); ok && !cached.IsEmpty() {
			switch {
			case !validating:
				se.Status = model.StepCached
				return model.Outcome{Table: cached}
			case validations != nil:
				if r, ok := validations.GetValidation(ec.Dataset, s.Name()); ok {
					r.ValidationPass = ec.NextValidationPass()
					se.Status = model.StepCached
					return model.Outcome{Table: cached, Validation: r}
				}
			}
			ec.Log.Debugf("No cached validation result for %s, running the step", s.Name())
		}
	}

	out, err := s.Execute(ctx, ec, t)
	if out.Table == nil {
		out.Table = table.Empty()
	}
	if err != nil {
		se.Status = model.StepFailed
		se.Err = err
		e.tracer.RecordError(ctx, s.Name(), err)
	} else {
		se.Status = model.StepCompleted
	}

	if e.cache != nil && !out.Table.IsEmpty() {
		if err := e.cache.Put(out.Table, ec.Dataset, s.Name()); err != nil {
			ec.Log.Warnf("Failed to cache %s: %v", s.Name(), err)
		}
		if validations != nil && out.Validation != nil {
			if err := validations.PutValidation(out.Validation, ec.Dataset, s.Name()); err != nil {
				ec.Log.Warnf("Failed to cache the validation result of %s: %v", s.Name(), err)
			}
		}
	}
	return out
}

func (e *Executor) newStepExecution(ec *execution.Context, s port.Step, t *table.Table) *model.StepExecution {
	return &model.StepExecution{
		ID:        uuid.NewString(),
		Dataset:   ec.Dataset,
		StepName:  s.Name(),
		Kind:      string(s.Kind()),
		Status:    model.StepStarted,
		StartTime: time.Now(),
		RowsIn:    t.NumRows(),
		Columns:   t.NumCols(),
	}
}

// notifyBeforeStep calls BeforeStep on every registered listener.
func (e *Executor) notifyBeforeStep(ctx context.Context, se *model.StepExecution) {
	for _, l := range e.listeners {
		l.BeforeStep(ctx, se)
	}
}

// notifyAfterStep calls AfterStep on every registered listener.
func (e *Executor) notifyAfterStep(ctx context.Context, se *model.StepExecution) {
	for _, l := range e.listeners {
		l.AfterStep(ctx, se)
	}
}
