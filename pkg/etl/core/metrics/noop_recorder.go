package metrics

import (
	"context"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
)

// NoOpMetricRecorder discards every metric. It is used when metrics are disabled and in tests.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordDatasetEnd(ctx context.Context, result *model.DatasetResult)    {}
func (r *NoOpMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}
func (r *NoOpMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution)   {}
func (r *NoOpMetricRecorder) RecordFixes(ctx context.Context, dataset, strategy string, count int) {}
func (r *NoOpMetricRecorder) RecordQualityScore(ctx context.Context, dataset string, pass int, score float64) {
}
func (r *NoOpMetricRecorder) RecordCacheLookup(ctx context.Context, tier, result string) {}
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer starts no spans.
type NoOpTracer struct{}

// NewNoOpTracer creates a NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartDatasetSpan(ctx context.Context, dataset string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

func (t *NoOpTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var _ Tracer = (*NoOpTracer)(nil)
