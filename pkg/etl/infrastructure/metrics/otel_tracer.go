package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	metrics "github.com/tigerroll/datafactory/pkg/etl/core/metrics"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

const instrumentationName = "github.com/tigerroll/datafactory/pkg/etl"

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer that starts spans on provider.
func NewOpenTelemetryTracer(provider trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: provider.Tracer(instrumentationName)}
}

// StartDatasetSpan starts the "dataset.process" span.
func (t *OpenTelemetryTracer) StartDatasetSpan(ctx context.Context, dataset string) (context.Context, func(error)) {
	ctx, span := t.tracer.Start(ctx, "dataset.process", trace.WithAttributes(attribute.String("dataset", dataset)))
	logger.Debugf("Tracer: started span for dataset '%s'", dataset)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// StartStepSpan starts a "step.<name>" span and closes it with the final step status.
func (t *OpenTelemetryTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "step."+execution.StepName, trace.WithAttributes(
		attribute.String("dataset", execution.Dataset),
		attribute.String("step.kind", execution.Kind),
		attribute.Int("rows.in", execution.RowsIn),
	))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("step.status", string(execution.Status)),
			attribute.Int("rows.out", execution.RowsOut),
			attribute.Int("changes", execution.Changes),
		)
		if execution.Err != nil {
			span.RecordError(execution.Err)
			span.SetStatus(codes.Error, execution.Err.Error())
		}
		span.End()
	}
}

// RecordError records an error in the current span.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent records an event in the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
