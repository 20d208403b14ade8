package metrics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	coremetrics "github.com/tigerroll/datafactory/pkg/etl/core/metrics"
	"github.com/tigerroll/datafactory/pkg/etl/listener/metrics"
)

type stepRecorder struct {
	coremetrics.NoOpMetricRecorder
	started []string
	ended   []model.StepStatus
}

func (r *stepRecorder) RecordStepStart(_ context.Context, se *model.StepExecution) {
	r.started = append(r.started, se.StepName)
}

func (r *stepRecorder) RecordStepEnd(_ context.Context, se *model.StepExecution) {
	r.ended = append(r.ended, se.Status)
}

func TestMetricsStepListener(t *testing.T) {
	rec := &stepRecorder{}
	l := metrics.NewMetricsStepListener(rec)
	se := &model.StepExecution{Dataset: "Loan", StepName: "DataCleaning", Status: model.StepStarted}

	l.BeforeStep(context.Background(), se)
	se.Status = model.StepCompleted
	l.AfterStep(context.Background(), se)

	assert.Equal(t, []string{"DataCleaning"}, rec.started)
	assert.Equal(t, []model.StepStatus{model.StepCompleted}, rec.ended)
}

func TestMetricsStepListener_NilRecorder(t *testing.T) {
	l := metrics.NewMetricsStepListener(nil)
	assert.NotPanics(t, func() {
		l.BeforeStep(context.Background(), &model.StepExecution{})
		l.AfterStep(context.Background(), &model.StepExecution{})
	})
}
