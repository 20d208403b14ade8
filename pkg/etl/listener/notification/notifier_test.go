package notification_test

import (
	"bytes"
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/listener/notification"
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

func TestLogNotifier(t *testing.T) {
	buf := captureLog(t)
	validation := model.NewValidationResult()
	validation.QualityScore = 97.5

	notification.NewLogNotifier().NotifyRunCompletion(context.Background(), "run-1", []model.DatasetResult{
		{Dataset: "Loan", Status: model.DatasetSuccess, FileCount: 2, OutputPath: "out/Loan_cooked.csv", Validation: validation},
		{Dataset: "Fraud", Status: model.DatasetError, FileCount: 0, Error: "No files specified"},
	}, 1500*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "[INFO] [Loan] Run notification: success, 2 file(s), quality score 97.50% -> out/Loan_cooked.csv")
	assert.Contains(t, out, "[WARN] [Fraud] Run notification: error, 0 file(s): No files specified")
	assert.Contains(t, out, "[WARN] [System] Run run-1 finished: 1/2 datasets succeeded in 1.5s")
}

func TestLogNotifier_AllSucceeded(t *testing.T) {
	buf := captureLog(t)

	notification.NewLogNotifier().NotifyRunCompletion(context.Background(), "run-2", []model.DatasetResult{
		{Dataset: "Macro", Status: model.DatasetSuccess, FileCount: 1},
	}, time.Second)

	assert.Contains(t, buf.String(), "quality score n/a")
	assert.Contains(t, buf.String(), "[INFO] [System] Run run-2 finished: 1/1 datasets succeeded in 1s")
}
