// Package app wires the pipeline components with uber-fx and runs one processing pass.
package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/fx"

	dbgorm "github.com/tigerroll/datafactory/pkg/etl/adapter/database/gorm"
	"github.com/tigerroll/datafactory/pkg/etl/adapter/storage/local"
	"github.com/tigerroll/datafactory/pkg/etl/component/cache"
	"github.com/tigerroll/datafactory/pkg/etl/component/dataio"
	"github.com/tigerroll/datafactory/pkg/etl/component/finalize"
	"github.com/tigerroll/datafactory/pkg/etl/component/fix"
	"github.com/tigerroll/datafactory/pkg/etl/component/preprocess"
	"github.com/tigerroll/datafactory/pkg/etl/component/report"
	"github.com/tigerroll/datafactory/pkg/etl/component/transform"
	"github.com/tigerroll/datafactory/pkg/etl/component/validate"
	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/engine/factory"
	"github.com/tigerroll/datafactory/pkg/etl/engine/orchestrator"
	inframetrics "github.com/tigerroll/datafactory/pkg/etl/infrastructure/metrics"
	"github.com/tigerroll/datafactory/pkg/etl/listener"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// Exit codes of a run.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Runner runs the orchestrator once the application has started and keeps the exit code.
type Runner struct {
	orchestrator *orchestrator.Orchestrator
	provider     *config.Provider
	notifier     port.Notifier
	appCtx       context.Context

	done     chan struct{}
	exitCode int
	results  []model.DatasetResult
}

// NewRunner creates the Runner of the application.
func NewRunner(p struct {
	fx.In
	Orchestrator *orchestrator.Orchestrator
	Provider     *config.Provider
	Notifier     port.Notifier   `optional:"true"`
	AppCtx       context.Context `name:"appCtx"`
}) *Runner {
	return &Runner{
		orchestrator: p.Orchestrator,
		provider:     p.Provider,
		notifier:     p.Notifier,
		appCtx:       p.AppCtx,
		done:         make(chan struct{}),
		exitCode:     ExitFailure,
	}
}

// Run processes every dataset and returns the exit code.
func (r *Runner) Run(ctx context.Context) int {
	logger.Infof("Starting Financial Risk Data Processing Pipeline")
	logger.Infof("Project root: %s", r.provider.RootDir())
	if err := r.provider.PrepareDirectories(); err != nil {
		logger.Errorf("Failed to prepare directories: %v", err)
		return ExitFailure
	}
	if dir := r.provider.Engine().LogDir; dir != "" {
		f, err := logger.OpenDailyFile(dir, time.Now())
		if err != nil {
			logger.Warnf("Could not open log file in %s: %v", dir, err)
		} else {
			defer func() {
				logger.SetOutput()
				_ = f.Close()
			}()
		}
	}

	datasets := r.orchestrator.Datasets()
	if len(datasets) == 0 {
		logger.Errorf("No datasets found in configuration")
		return ExitFailure
	}
	logger.Infof("Found %d datasets in configuration: %s", len(datasets), strings.Join(datasets, ", "))

	started := time.Now()
	logger.Infof("Processing started at: %s", started.Format(time.RFC3339))
	r.results = r.orchestrator.Run(ctx)
	elapsed := time.Since(started)
	logger.Infof("Total processing time: %.2f seconds", elapsed.Seconds())
	if r.notifier != nil {
		r.notifier.NotifyRunCompletion(ctx, r.orchestrator.RunID(), r.results, elapsed)
	}
	return ExitCode(r.results)
}

// ExitCode is ExitSuccess when there is at least one result and all of them succeeded.
func ExitCode(results []model.DatasetResult) int {
	succeeded, total := orchestrator.Summary(results)
	if total == 0 || succeeded != total {
		return ExitFailure
	}
	return ExitSuccess
}

// startPipeline runs the pipeline in the background once fx has started,
// then asks fx to shut down with the run's exit code.
func startPipeline(lc fx.Lifecycle, shutdowner fx.Shutdowner, r *Runner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer func() {
					if rec := recover(); rec != nil {
						logger.Errorf("Panic recovered in pipeline run: %v", rec)
						r.exitCode = ExitFailure
					}
					close(r.done)
					logger.Infof("Requesting application shutdown after pipeline completion.")
					if err := shutdowner.Shutdown(fx.ExitCode(r.exitCode)); err != nil {
						logger.Errorf("Failed to shutdown application: %v", err)
					}
				}()
				r.exitCode = r.Run(r.appCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-r.done:
			case <-ctx.Done():
				logger.Warnf("Pipeline did not finish before shutdown: %v", ctx.Err())
			}
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}

// GetApplicationOptions builds the fx options of the pipeline application.
func GetApplicationOptions(appCtx context.Context, opts config.LoadOptions) []fx.Option {
	return []fx.Option{
		fx.Supply(
			opts,
			fx.Annotate(appCtx, fx.As(new(context.Context)), fx.ResultTags(`name:"appCtx"`)),
		),
		logger.Module,
		config.Module,
		inframetrics.Module,
		local.Module,
		dataio.Module,
		cache.Module,
		dbgorm.Module,
		preprocess.Module,
		transform.Module,
		validate.Module,
		fix.Module,
		finalize.Module,
		report.Module,
		listener.Module,
		factory.Module,
		orchestrator.Module,
		fx.Provide(NewRunner),
		fx.Invoke(startPipeline),
	}
}

// RunApplication runs the pipeline application and returns its exit code.
// Construction failures, such as an invalid configuration, return ExitFailure.
func RunApplication(appCtx context.Context, opts config.LoadOptions) int {
	var runner *Runner
	fxApp := fx.New(append(GetApplicationOptions(appCtx, opts), fx.Populate(&runner))...)
	if err := fxApp.Err(); err != nil {
		logger.Errorf("Failed to initialize application: %v", err)
		return ExitFailure
	}

	startCtx, cancel := context.WithTimeout(context.Background(), fxApp.StartTimeout())
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		logger.Errorf("Failed to start application: %v", err)
		return ExitFailure
	}

	signal := <-fxApp.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), fxApp.StopTimeout())
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		logger.Errorf("Failed to stop application cleanly: %v", err)
	}

	select {
	case <-runner.done:
		return runner.exitCode
	default:
		logger.Warnf("Application stopped by %v before the pipeline finished.", signal.Signal)
		return ExitFailure
	}
}
