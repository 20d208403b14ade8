// Package factory assembles the executor of a dataset from the strategy factories.
package factory

import (
	"go.uber.org/fx"

	"github.com/tigerroll/datafactory/pkg/etl/component/finalize"
	"github.com/tigerroll/datafactory/pkg/etl/component/fix"
	"github.com/tigerroll/datafactory/pkg/etl/component/preprocess"
	"github.com/tigerroll/datafactory/pkg/etl/component/transform"
	"github.com/tigerroll/datafactory/pkg/etl/component/validate"
	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/metrics"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/engine/executor"
	"github.com/tigerroll/datafactory/pkg/etl/engine/step"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

const moduleName = "factory"

// Executor step names. They also key the cache and name checkpoint files.
const (
	StepCleaning       = "DataCleaning"
	StepTransformation = "Transformation"
	StepValidationPre  = "DataValidation_Pre"
	StepFixing         = "DataFixer"
	StepValidationPost = "DataValidation_Post"
	StepFinal          = "FinalCleanup"
)

// PipelineFactory builds one executor per dataset.
type PipelineFactory struct {
	provider   *config.Provider
	preprocess *preprocess.Factory
	transform  *transform.Factory
	validate   *validate.Factory
	fix        *fix.Factory
	finalize   *finalize.Strategy

	loader    port.Loader
	saver     port.Saver
	cache     port.Cache
	listeners []port.StepExecutionListener
	recorder  metrics.MetricRecorder
	tracer    metrics.Tracer
}

// Params are the dependencies of NewPipelineFactory injected by fx.
// Cache, listeners and telemetry are optional.
type Params struct {
	fx.In
	Provider   *config.Provider
	Preprocess *preprocess.Factory
	Transform  *transform.Factory
	Validate   *validate.Factory
	Fix        *fix.Factory
	Finalize   *finalize.Strategy
	Loader     port.Loader
	Saver      port.Saver
	Cache      port.Cache                   `optional:"true"`
	Listeners  []port.StepExecutionListener `group:"step_listeners"`
	Recorder   metrics.MetricRecorder       `optional:"true"`
	Tracer     metrics.Tracer               `optional:"true"`
}

// NewPipelineFactory creates a PipelineFactory.
func NewPipelineFactory(p Params) *PipelineFactory {
	f := &PipelineFactory{
		provider:   p.Provider,
		preprocess: p.Preprocess,
		transform:  p.Transform,
		validate:   p.Validate,
		fix:        p.Fix,
		finalize:   p.Finalize,
		loader:     p.Loader,
		saver:      p.Saver,
		cache:      p.Cache,
		listeners:  p.Listeners,
		recorder:   p.Recorder,
		tracer:     p.Tracer,
	}
	if f.recorder == nil {
		f.recorder = metrics.NewNoOpMetricRecorder()
	}
	if f.tracer == nil {
		f.tracer = metrics.NewNoOpTracer()
	}
	return f
}

// CreatePipeline returns the executor of dataset:
// cleaning, transformation, validation, fixing, an optional second validation and the final cleanup.
// The post-fix validation reuses the pre-fix pipeline under its own step name.
func (f *PipelineFactory) CreatePipeline(dataset string) (*executor.Executor, error) {
	cleaning, err := f.cleaningPipeline()
	if err != nil {
		return nil, err
	}
	transformation, err := f.transformationPipeline()
	if err != nil {
		return nil, err
	}
	validation, err := f.validate.Pipeline()
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to build validation pipeline", err)
	}
	fixing, err := f.fixingPipeline(dataset)
	if err != nil {
		return nil, err
	}

	opts := []executor.Option{
		executor.WithListeners(f.listeners...),
		executor.WithRecorder(f.recorder),
		executor.WithTracer(f.tracer),
	}
	if f.cache != nil {
		opts = append(opts, executor.WithCache(f.cache))
	}
	e := executor.New(f.loader, f.saver, opts...)
	e.AddStep(step.New(StepCleaning, port.KindCleaning, cleaning)).
		AddStep(step.New(StepTransformation, port.KindTransformation, transformation)).
		AddStep(step.New(StepValidationPre, port.KindValidation, validation)).
		AddStep(step.New(StepFixing, port.KindFixing, fixing))
	if f.provider.Engine().ValidateAfterFixing {
		e.AddStep(step.New(StepValidationPost, port.KindValidation, validation))
	}
	e.AddStep(step.New(StepFinal, port.KindFinalize, f.finalize))

	logger.Debugf("Pipeline for '%s' built with %d steps.", dataset, len(e.Steps()))
	return e, nil
}

func (f *PipelineFactory) cleaningPipeline() (*step.Pipeline, error) {
	strategies := make([]port.Strategy, 0, len(preprocess.CleaningOrder))
	for _, name := range preprocess.CleaningOrder {
		s, err := f.preprocess.Get(name)
		if err != nil {
			return nil, exception.NewPipelineErrorf(moduleName, "failed to build cleaning pipeline", err)
		}
		strategies = append(strategies, s)
	}
	return step.NewPipeline("preprocessing", port.KindCleaning, strategies...), nil
}

func (f *PipelineFactory) transformationPipeline() (*step.Pipeline, error) {
	strategies := make([]port.Strategy, 0, len(transform.Order))
	for _, name := range transform.Order {
		s, err := f.transform.Get(name)
		if err != nil {
			return nil, exception.NewPipelineErrorf(moduleName, "failed to build transformation pipeline", err)
		}
		strategies = append(strategies, s)
	}
	return step.NewPipeline("transformation", port.KindTransformation, strategies...), nil
}

func (f *PipelineFactory) fixingPipeline(dataset string) (*step.Pipeline, error) {
	chain, err := f.fix.Chain(dataset)
	if err != nil {
		return nil, exception.NewPipelineErrorf(moduleName, "failed to build fixer pipeline for %s", dataset, err)
	}
	return step.NewPipeline("fixer", port.KindFixing, chain...).WithRecorder(f.recorder), nil
}
