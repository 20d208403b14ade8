// Package step adapts strategies to executor steps and chains them into sequential pipelines.
package step

import (
	"context"
	"fmt"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
)

const moduleName = "step"

// StrategyStep runs one strategy as a step. It is the single place where a failing
// strategy is absorbed: the error is logged and the untouched input is handed on.
type StrategyStep struct {
	name     string
	kind     port.StepKind
	strategy port.Strategy
}

var _ port.Step = (*StrategyStep)(nil)

// New wraps strategy under name. An empty name falls back to the strategy's own name.
func New(name string, kind port.StepKind, strategy port.Strategy) *StrategyStep {
	if name == "" {
		name = strategy.Name()
	}
	return &StrategyStep{name: name, kind: kind, strategy: strategy}
}

// Name implements port.Step.
func (s *StrategyStep) Name() string { return s.name }

// Kind implements port.Step.
func (s *StrategyStep) Kind() port.StepKind { return s.kind }

// Strategy returns the wrapped strategy.
func (s *StrategyStep) Strategy() port.Strategy { return s.strategy }

// Execute runs the strategy on a clone of t. On error or panic the outcome carries t itself
// and the returned error describes the failure; callers continue with the outcome's table.
// An empty input is passed through without calling the strategy.
func (s *StrategyStep) Execute(ctx context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	if t == nil || t.IsEmpty() {
		return model.Outcome{Table: emptyIfNil(t)}, nil
	}
	if err := ctx.Err(); err != nil {
		return model.Outcome{Table: t}, err
	}

	out, err := s.run(ctx, ec, t.Clone())
	if err == nil && out.Table == nil {
		err = exception.NewPipelineErrorf(moduleName, "strategy %s returned no table", s.strategy.Name())
	}
	if err != nil {
		ec.Log.Errorf("Error in %s step %s: %v", s.kind, s.name, err)
		return model.Outcome{Table: t, Validation: out.Validation}, err
	}
	if out.Changes > 0 {
		ec.Log.Debugf("%s changed %d values", s.name, out.Changes)
	}
	return out, nil
}

func (s *StrategyStep) run(ctx context.Context, ec *execution.Context, t *table.Table) (out model.Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = model.Outcome{}
			err = exception.NewPipelineError(moduleName, fmt.Sprintf("strategy %s panicked: %v", s.strategy.Name(), rec), nil)
		}
	}()
	out, err = s.strategy.Apply(ctx, ec, t)
	if err != nil {
		return out, exception.NewPipelineErrorf(moduleName, "strategy %s failed", s.strategy.Name(), err)
	}
	return out, nil
}

func emptyIfNil(t *table.Table) *table.Table {
	if t == nil {
		return table.Empty()
	}
	return t
}
