// Package port defines the contracts between the pipeline engine and its components.
package port

import (
	"context"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

// Strategy is one swappable unit of cleaning, transforming or fixing.
// Implementations may mutate t; callers that need the input afterwards pass a clone.
type Strategy interface {
	// Name is the registry name of the strategy.
	Name() string
	// Apply runs the strategy over t and reports the resulting table and number of changes.
	Apply(ctx context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error)
}

// Validator inspects a table without changing it.
type Validator interface {
	Name() string
	Validate(ctx context.Context, ec *execution.Context, t *table.Table) (*model.ValidationResult, error)
}

// StepKind classifies a pipeline step.
type StepKind string

const (
	KindCleaning       StepKind = "cleaning"
	KindTransformation StepKind = "transformation"
	KindValidation     StepKind = "validation"
	KindFixing         StepKind = "fixing"
	KindFinalize       StepKind = "finalize"
)

// Step is a named unit of the executor. It always returns a table: the step's result,
// the unchanged input after a recovered failure, or an empty table to abort the dataset.
type Step interface {
	Name() string
	Kind() StepKind
	Execute(ctx context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error)
}

// Loader reads a table from a file. On failure it returns an empty table and the cause.
type Loader interface {
	Load(ctx context.Context, path string) (*table.Table, error)
}

// Saver writes a table to a file, creating parent directories as needed.
type Saver interface {
	Save(ctx context.Context, t *table.Table, path string) error
}

// Cache stores step outputs per dataset. Memory lookups take precedence over disk.
type Cache interface {
	Get(dataset, step string) (*table.Table, bool)
	Put(t *table.Table, dataset, step string) error
	// Clear removes the entries of dataset, or every entry when dataset is empty.
	Clear(dataset string) error
	DeleteAll() error
}

// ValidationCache is implemented by caches that also keep the validation result
// produced by a cached validation step.
type ValidationCache interface {
	GetValidation(dataset, step string) (*model.ValidationResult, bool)
	PutValidation(r *model.ValidationResult, dataset, step string) error
}

// Reporter writes quality artifacts for a validated table.
type Reporter interface {
	GenerateReport(ctx context.Context, dataset string, t *table.Table, result *model.ValidationResult) error
}

// Sink loads a cooked table into an external store.
type Sink interface {
	Write(ctx context.Context, dataset string, t *table.Table) (int64, error)
	Close() error
}

// StepListenerGroup is the fx value group collecting step listeners.
const StepListenerGroup = `group:"step_listeners"`

// StepExecutionListener observes every step run by the executor.
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, se *model.StepExecution)
	AfterStep(ctx context.Context, se *model.StepExecution)
}

// Notifier announces the outcome of a whole run.
type Notifier interface {
	NotifyRunCompletion(ctx context.Context, runID string, results []model.DatasetResult, elapsed time.Duration)
}
