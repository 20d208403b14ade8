package logging_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/listener/logging"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		logger.SetLogLevel("INFO")
	})
	logger.SetLogLevel("INFO")
	return &buf
}

func TestLoggingStepListener(t *testing.T) {
	buf := captureLog(t)
	l := logging.NewLoggingStepListener()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	se := &model.StepExecution{
		ID: "1", Dataset: "Loan", StepName: "DataFixer", Status: model.StepStarted,
		StartTime: start, RowsIn: 10, Columns: 4,
	}

	l.BeforeStep(context.Background(), se)
	se.Status = model.StepCompleted
	se.EndTime = start.Add(1500 * time.Millisecond)
	se.RowsOut = 9
	se.Changes = 3
	l.AfterStep(context.Background(), se)

	out := buf.String()
	assert.Contains(t, out, "[INFO] [Loan] Step 'DataFixer' started: 10 rows, 4 columns")
	assert.Contains(t, out, "10 -> 9 rows, 4 columns, 3 changes")
	assert.Contains(t, out, "1.5s")
}

func TestLoggingStepListener_FailedStepWarns(t *testing.T) {
	buf := captureLog(t)
	l := logging.NewLoggingStepListener()
	se := &model.StepExecution{Dataset: "Macro", StepName: "Transformation", Status: model.StepFailed, Err: errors.New("bad column")}

	l.AfterStep(context.Background(), se)

	assert.Contains(t, buf.String(), "[WARN] [Macro] Step 'Transformation'")
	assert.Contains(t, buf.String(), "bad column")
}
