package metrics

import (
	"context"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
)

// Tracer abstracts span management for datasets and steps.
type Tracer interface {
	// StartDatasetSpan starts the span of one dataset. The returned function ends it,
	// marking it failed when err is non-nil.
	StartDatasetSpan(ctx context.Context, dataset string) (context.Context, func(err error))
	// StartStepSpan starts the span of one step; the returned function ends it.
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())
	// RecordError records err on the span in ctx.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds an event to the span in ctx.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
