// Package logging provides the step listener that logs every executor step.
package logging

import (
	"context"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// LoggingStepListener logs the start and the outcome of each step under its dataset.
type LoggingStepListener struct{}

func NewLoggingStepListener() port.StepExecutionListener {
	return &LoggingStepListener{}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.ForDataset(stepExecution.Dataset).Infof("Step '%s' started: %d rows, %d columns",
		stepExecution.StepName, stepExecution.RowsIn, stepExecution.Columns)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	log := logger.ForDataset(stepExecution.Dataset)
	switch stepExecution.Status {
	case model.StepFailed, model.StepAborted:
		log.Warnf("Step '%s' %s after %s: %v", stepExecution.StepName, stepExecution.Status,
			stepExecution.Duration(), stepExecution.Err)
	default:
		log.Infof("Step '%s' %s in %s: %d -> %d rows, %d columns, %d changes", stepExecution.StepName,
			stepExecution.Status, stepExecution.Duration(), stepExecution.RowsIn, stepExecution.RowsOut,
			stepExecution.Columns, stepExecution.Changes)
	}
}

var _ port.StepExecutionListener = (*LoggingStepListener)(nil)
