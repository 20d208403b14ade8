package step

import (
	"context"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/metrics"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

// Pipeline runs its steps one after another over a single table.
// It implements port.Strategy so that a whole pipeline can be wrapped as one executor step.
type Pipeline struct {
	name     string
	kind     port.StepKind
	steps    []*StrategyStep
	recorder metrics.MetricRecorder
}

var _ port.Strategy = (*Pipeline)(nil)

// NewPipeline chains strategies under name. Every strategy becomes a StrategyStep of kind.
func NewPipeline(name string, kind port.StepKind, strategies ...port.Strategy) *Pipeline {
	p := &Pipeline{name: name, kind: kind, recorder: metrics.NewNoOpMetricRecorder()}
	for _, s := range strategies {
		p.steps = append(p.steps, New("", kind, s))
	}
	return p
}

// WithRecorder reports the changes of fixing steps to recorder.
func (p *Pipeline) WithRecorder(recorder metrics.MetricRecorder) *Pipeline {
	if recorder != nil {
		p.recorder = recorder
	}
	return p
}

// Name implements port.Strategy.
func (p *Pipeline) Name() string { return p.name }

// Steps lists the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Apply runs every step in order. Failed steps are skipped with their input carried on,
// so Apply itself only fails when ctx is done. An empty intermediate table stops the
// pipeline and is returned as is. Changes add up; the last validation result wins.
func (p *Pipeline) Apply(ctx context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	result := model.Outcome{Table: t}
	if t == nil || t.IsEmpty() {
		result.Table = emptyIfNil(t)
		return result, nil
	}

	failed := 0
	for i, s := range p.steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		ec.Log.Infof("Executing %s step %d/%d: %s", p.name, i+1, len(p.steps), s.Name())

		out, err := s.Execute(ctx, ec, result.Table)
		if err != nil {
			failed++
		}
		result.Table = out.Table
		result.Changes += out.Changes
		if out.Validation != nil {
			result.Validation = out.Validation
		}
		if p.kind == port.KindFixing && out.Changes > 0 {
			p.recorder.RecordFixes(ctx, ec.Dataset, s.Name(), out.Changes)
		}
		if result.Table.IsEmpty() {
			ec.Log.Errorf("%s step %s produced an empty table", p.name, s.Name())
			return result, nil
		}
	}

	if failed > 0 {
		ec.Log.Warnf("%s pipeline finished with %d failed step(s)", p.name, failed)
	} else {
		ec.Log.Debugf("%s pipeline finished: %d changes", p.name, result.Changes)
	}
	return result, nil
}
