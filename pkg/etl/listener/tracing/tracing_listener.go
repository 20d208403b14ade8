// Package tracing provides the step listener that opens a span around every executor step.
package tracing

import (
	"context"
	"sync"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/metrics"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
)

type openSpan struct {
	ctx context.Context
	end func()
}

// TracingStepListener manages the spans of step executions. Datasets running in parallel
// share one listener, so the open spans are guarded.
type TracingStepListener struct {
	tracer metrics.Tracer
	mu     sync.Mutex
	// StepExecution ID -> open span
	spans map[string]openSpan
}

func NewTracingStepListener(tracer metrics.Tracer) port.StepExecutionListener {
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &TracingStepListener{tracer: tracer, spans: make(map[string]openSpan)}
}

func (l *TracingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	spanCtx, end := l.tracer.StartStepSpan(ctx, stepExecution)
	l.mu.Lock()
	l.spans[stepExecution.ID] = openSpan{ctx: spanCtx, end: end}
	l.mu.Unlock()
}

func (l *TracingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	l.mu.Lock()
	span, ok := l.spans[stepExecution.ID]
	delete(l.spans, stepExecution.ID)
	l.mu.Unlock()
	if !ok {
		return
	}
	if stepExecution.Err != nil {
		l.tracer.RecordError(span.ctx, stepExecution.StepName, stepExecution.Err)
	}
	span.end()
}

// Open returns the number of spans not yet ended.
func (l *TracingStepListener) Open() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.spans)
}

var _ port.StepExecutionListener = (*TracingStepListener)(nil)
