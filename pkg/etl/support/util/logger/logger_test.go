package logger_test

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	return &buf
}

func TestSetLogLevelFiltersMessages(t *testing.T) {
	buf := captureLog(t)

	logger.SetLogLevel("warn")
	logger.Infof("hidden %d", 1)
	logger.Warnf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "[WARN] [System] shown 2")
	assert.Equal(t, logger.LevelWarn, logger.GetLogLevel())
}

func TestSetLogLevelUnknownFallsBackToInfo(t *testing.T) {
	captureLog(t)

	logger.SetLogLevel("verbose")
	assert.Equal(t, logger.LevelInfo, logger.GetLogLevel())
}

func TestDatasetLoggerPrefix(t *testing.T) {
	buf := captureLog(t)
	logger.SetLogLevel("DEBUG")

	logger.ForDataset("Loan").Debugf("fixed %d values", 3)
	logger.ForDataset("").Errorf("boom")

	out := buf.String()
	assert.Contains(t, out, "[DEBUG] [Loan] fixed 3 values")
	assert.Contains(t, out, "[ERROR] [System] boom")
}

func TestOpenDailyFileWritesDatedLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Logs")
	day := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	f, err := logger.OpenDailyFile(dir, day)
	require.NoError(t, err)
	logger.Infof("to the file")
	logger.SetOutput()
	require.NoError(t, f.Close())
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	data, err := os.ReadFile(filepath.Join(dir, "2024-03-09_DataFactory.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] [System] to the file")
}
