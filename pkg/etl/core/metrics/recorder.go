// Package metrics defines the metric and tracing abstractions used by the pipeline.
package metrics

import (
	"context"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
)

// MetricRecorder records pipeline metrics independently of the backend.
type MetricRecorder interface {
	// RecordDatasetEnd records the final status of a dataset.
	RecordDatasetEnd(ctx context.Context, result *model.DatasetResult)
	// RecordStepStart records that a step began.
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	// RecordStepEnd records the duration and status of a finished step.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)
	// RecordFixes adds the number of values a fixer strategy changed.
	RecordFixes(ctx context.Context, dataset, strategy string, count int)
	// RecordQualityScore sets the latest quality score of a dataset for one validation pass.
	RecordQualityScore(ctx context.Context, dataset string, pass int, score float64)
	// RecordCacheLookup counts a cache lookup; tier is "memory" or "disk", result "hit" or "miss".
	RecordCacheLookup(ctx context.Context, tier, result string)
	// RecordDuration records the duration of an arbitrary operation.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
