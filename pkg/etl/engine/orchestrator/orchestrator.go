// Package orchestrator runs every configured dataset through its pipeline, then
// generates the quality reports and removes the run's temporary files.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"github.com/tigerroll/datafactory/pkg/etl/component/preprocess"
	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/metrics"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/engine/executor"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

const moduleName = "orchestrator"

// PipelineFactory creates the executor of a dataset.
type PipelineFactory interface {
	CreatePipeline(dataset string) (*executor.Executor, error)
}

// Orchestrator processes the registered datasets of one run.
type Orchestrator struct {
	provider   *config.Provider
	factory    PipelineFactory
	preprocess *preprocess.Factory
	saver      port.Saver
	cache      port.Cache
	reporter   port.Reporter
	sink       port.Sink
	recorder   metrics.MetricRecorder
	tracer     metrics.Tracer
	shared     *execution.Shared
	opts       []execution.Option

	datasets []string
}

// Params are the dependencies of New injected by fx.
type Params struct {
	fx.In
	Provider   *config.Provider
	Factory    PipelineFactory
	Preprocess *preprocess.Factory
	Saver      port.Saver
	Cache      port.Cache             `optional:"true"`
	Reporter   port.Reporter          `optional:"true"`
	Sink       port.Sink              `optional:"true"`
	Recorder   metrics.MetricRecorder `optional:"true"`
	Tracer     metrics.Tracer         `optional:"true"`
}

// New creates an Orchestrator with the datasets of the configuration registered.
// contextOpts are applied to every dataset context, e.g. a fixed seed.
func New(p Params, contextOpts ...execution.Option) *Orchestrator {
	o := &Orchestrator{
		provider:   p.Provider,
		factory:    p.Factory,
		preprocess: p.Preprocess,
		saver:      p.Saver,
		cache:      p.Cache,
		reporter:   p.Reporter,
		sink:       p.Sink,
		recorder:   p.Recorder,
		tracer:     p.Tracer,
		shared:     execution.NewShared(),
		opts:       contextOpts,
	}
	if o.recorder == nil {
		o.recorder = metrics.NewNoOpMetricRecorder()
	}
	if o.tracer == nil {
		o.tracer = metrics.NewNoOpTracer()
	}
	o.RegisterDatasets(p.Provider.Datasets())
	return o
}

// RegisterDatasets replaces the datasets to process; results keep this order.
func (o *Orchestrator) RegisterDatasets(names []string) {
	o.datasets = append([]string(nil), names...)
	logger.Infof("Registered %d datasets for processing", len(o.datasets))
}

// Datasets returns the registered dataset names.
func (o *Orchestrator) Datasets() []string {
	return append([]string(nil), o.datasets...)
}

// RunID identifies the run; it is the LoadBatchID of every cooked table.
func (o *Orchestrator) RunID() string { return o.shared.RunID }

// Run processes every dataset, generates the reports and cleans up.
// The returned results are in registration order.
func (o *Orchestrator) Run(ctx context.Context) []model.DatasetResult {
	results := o.ProcessAll(ctx)
	o.GenerateReports(ctx, results)
	if err := o.Cleanup(); err != nil {
		logger.Errorf("Error during cleanup: %v", err)
	}
	succeeded, total := Summary(results)
	logger.Infof("%d/%d datasets processed successfully", succeeded, total)
	return results
}

// ProcessAll processes the registered datasets, in parallel when configured and
// there is more than one. A cancelled ctx stops scheduling; unscheduled datasets are errors.
func (o *Orchestrator) ProcessAll(ctx context.Context) []model.DatasetResult {
	engine := o.provider.Engine()
	results := make([]model.DatasetResult, len(o.datasets))

	if engine.ParallelProcessing && len(o.datasets) > 1 {
		workers := engine.Workers()
		logger.Infof("Starting processing with parallel=true, max_workers=%d", workers)
		g := new(errgroup.Group)
		g.SetLimit(workers)
		for i, name := range o.datasets {
			if ctx.Err() != nil {
				results[i] = cancelled(name, ctx.Err())
				continue
			}
			g.Go(func() error {
				results[i] = o.ProcessDataset(ctx, name)
				logger.Infof("Completed processing dataset: %s", name)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		logger.Infof("Starting sequential processing")
		for i, name := range o.datasets {
			if ctx.Err() != nil {
				results[i] = cancelled(name, ctx.Err())
				continue
			}
			results[i] = o.ProcessDataset(ctx, name)
		}
	}

	logger.Infof("All datasets processing complete")
	return results
}

func cancelled(name string, err error) model.DatasetResult {
	return model.DatasetResult{Dataset: name, Status: model.DatasetError, Error: fmt.Sprintf("not started: %v", err)}
}

// ProcessDataset runs one dataset. It never panics; every failure becomes an error result.
func (o *Orchestrator) ProcessDataset(ctx context.Context, name string) (result model.DatasetResult) {
	started := time.Now()
	ctx, endSpan := o.tracer.StartDatasetSpan(ctx, name)
	result = model.DatasetResult{Dataset: name, Status: model.DatasetError}
	log := logger.ForDataset(name)

	defer func() {
		if rec := recover(); rec != nil {
			result = model.DatasetResult{Dataset: name, Status: model.DatasetError, Error: fmt.Sprintf("panic: %v", rec)}
			log.Errorf("Error processing %s: %v", name, rec)
		}
		var spanErr error
		if !result.Succeeded() {
			spanErr = exception.NewPipelineError(moduleName, result.Error, nil)
		}
		endSpan(spanErr)
		o.recorder.RecordDatasetEnd(ctx, &result)
		o.recorder.RecordDuration(ctx, "dataset", time.Since(started), map[string]string{"dataset": name})
	}()

	ds, _ := o.provider.Dataset(name)
	result.FileCount = len(ds.Sources)
	log.Infof("Processing dataset with %d files", len(ds.Sources))
	if len(ds.Sources) == 0 {
		result.Error = "No files specified"
		return result
	}

	ec := execution.New(name, o.provider, append([]execution.Option{execution.WithShared(o.shared)}, o.opts...)...)
	engine := ec.Engine()
	outputPath := OutputPath(engine, name, ds)

	inputPath := resolveInput(engine.InputDir, ds.Sources[0])
	if len(ds.Sources) > 1 {
		tempPath, err := o.concatenate(ctx, ec, outputPath)
		if err != nil {
			result.Error = err.Error()
			log.Errorf("Failed to concatenate files: %v", err)
			return result
		}
		inputPath = tempPath
		if !engine.KeepTempFiles {
			defer func() {
				if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
					log.Warnf("Could not delete temp file %s: %v", tempPath, err)
				}
			}()
		}
	}

	pipeline, err := o.factory.CreatePipeline(name)
	if err != nil {
		result.Error = err.Error()
		log.Errorf("Error processing %s: %v", name, err)
		return result
	}
	res := pipeline.Execute(ctx, ec, inputPath, outputPath)
	result.Validation = res.Validation
	if !res.Success {
		if res.Err != nil {
			result.Error = res.Err.Error()
		} else {
			result.Error = "pipeline failed"
		}
		return result
	}
	result.Table = res.Table
	result.OutputPath = outputPath

	if o.sink != nil {
		rows, err := o.sink.Write(ctx, name, res.Table)
		if err != nil {
			result.Error = exception.NewPipelineErrorf(moduleName, "failed to load %s into the database", name, err).Error()
			log.Errorf("%s", result.Error)
			return result
		}
		log.Infof("Loaded %d rows into the database", rows)
	}

	result.Status = model.DatasetSuccess
	log.Infof("Dataset processed in %.2f seconds: %s", time.Since(started).Seconds(), outputPath)
	return result
}

// concatenate joins the sources of a multi-file dataset and saves them next to the output.
func (o *Orchestrator) concatenate(ctx context.Context, ec *execution.Context, outputPath string) (string, error) {
	s, err := o.preprocess.Get(preprocess.DataConcatenation)
	if err != nil {
		return "", err
	}
	out, err := s.Apply(ctx, ec, nil)
	if err != nil {
		return "", err
	}
	if out.Table == nil || out.Table.IsEmpty() {
		return "", exception.NewPipelineError(moduleName, "Failed to concatenate files", exception.ErrEmptyTable)
	}
	tempPath := filepath.Join(filepath.Dir(outputPath), fmt.Sprintf("%s_concatenated_temp%s", ec.Dataset, filepath.Ext(outputPath)))
	if err := o.saver.Save(ctx, out.Table, tempPath); err != nil {
		return "", err
	}
	return tempPath, nil
}

// GenerateReports writes the reports of every successful dataset, one at a time,
// when data_quality_report is enabled. Failures are logged only.
func (o *Orchestrator) GenerateReports(ctx context.Context, results []model.DatasetResult) {
	if o.reporter == nil {
		return
	}
	if !o.provider.Engine().DataQualityReport {
		logger.Infof("Data quality report generation is disabled in config.")
		return
	}

	logger.Infof("Starting report generation")
	for _, r := range results {
		log := logger.ForDataset(r.Dataset)
		if !r.Succeeded() || r.Table == nil || r.Table.IsEmpty() || r.Validation == nil {
			log.Warnf("Skipping report generation for %s: invalid data or validation results not available.", r.Dataset)
			continue
		}
		r.Validation.ReportGenerated = false
		r.Validation.ForceRegenerate = true
		if err := o.reporter.GenerateReport(ctx, r.Dataset, r.Table, r.Validation); err != nil {
			log.Errorf("Error generating report for %s: %v", r.Dataset, err)
		}
	}
	logger.Infof("Report generation complete")
}

// Cleanup deletes the cache and the "*_temp.*" files of the output directory.
func (o *Orchestrator) Cleanup() error {
	var result *multierror.Error
	if o.cache != nil {
		if err := o.cache.DeleteAll(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	dir := o.provider.Engine().OutputDir
	if dir != "" {
		temps, err := filepath.Glob(filepath.Join(dir, "*_temp.*"))
		if err != nil {
			result = multierror.Append(result, err)
		}
		for _, path := range temps {
			if err := os.Remove(path); err != nil {
				logger.Warnf("Could not delete temp file %s: %v", path, err)
				result = multierror.Append(result, err)
				continue
			}
			logger.Debugf("Deleted temporary file: %s", path)
		}
	}
	return result.ErrorOrNil()
}

// OutputPath is the cooked file of a dataset: its output_file, or "<dataset>_cooked.<output_format>".
func OutputPath(engine config.EngineParameters, name string, ds config.DatasetConfig) string {
	file := ds.OutputFile
	if file == "" {
		ext := strings.TrimPrefix(engine.OutputFormat, ".")
		if ext == "" {
			ext = "csv"
		}
		file = fmt.Sprintf("%s_cooked.%s", name, ext)
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(engine.OutputDir, file)
}

func resolveInput(dir, source string) string {
	if filepath.IsAbs(source) {
		return source
	}
	return filepath.Join(dir, source)
}

// Summary counts the successful results.
func Summary(results []model.DatasetResult) (succeeded, total int) {
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		}
	}
	return succeeded, len(results)
}
