package exception_test

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
)

func TestNewPipelineError(t *testing.T) {
	err := exception.NewPipelineError("io", "failed to load", io.ErrUnexpectedEOF)

	assert.Equal(t, "[io] failed to load: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotEmpty(t, err.StackTrace)
	assert.True(t, exception.IsPipelineError(err))
	assert.Equal(t, "io", exception.ModuleOf(err))
}

func TestNewPipelineErrorfExtractsTrailingError(t *testing.T) {
	err := exception.NewPipelineErrorf("fix", "strategy %s failed on %d rows", "outlier_fixer", 12, exception.ErrEmptyTable)

	assert.Equal(t, "strategy outlier_fixer failed on 12 rows", err.Message)
	assert.ErrorIs(t, err, exception.ErrEmptyTable)
}

func TestNewPipelineErrorfWithoutError(t *testing.T) {
	err := exception.NewPipelineErrorf("config", "missing key %q", "Datasets")

	assert.Nil(t, err.OriginalErr)
	assert.Equal(t, `[config] missing key "Datasets"`, err.Error())
}

func TestIsErrorOfType(t *testing.T) {
	wrapped := exception.NewPipelineError("registry", "lookup", exception.ErrUnknownStrategy)

	assert.True(t, exception.IsErrorOfType(wrapped, "UnknownStrategy"))
	assert.True(t, exception.IsErrorOfType(wrapped, "lookup"))
	assert.True(t, exception.IsErrorOfType(wrapped, "*exception.PipelineError"))
	assert.False(t, exception.IsErrorOfType(wrapped, "EmptyTable"))
	assert.False(t, exception.IsErrorOfType(nil, "EmptyTable"))
}

func TestIsErrorOfType_MessageMatchIgnoresCase(t *testing.T) {
	mysqlDeadlock := errors.New("Error 1213: Deadlock found when trying to get lock")

	assert.True(t, exception.IsErrorOfType(mysqlDeadlock, "deadlock"))
	assert.True(t, exception.IsErrorOfType(exception.NewPipelineError("sink", "load", mysqlDeadlock), "DEADLOCK"))
	assert.False(t, exception.IsErrorOfType(mysqlDeadlock, "connection reset"))
}

func TestRegisterErrorType(t *testing.T) {
	custom := errors.New("quota exceeded")
	exception.RegisterErrorType("Quota", custom)

	assert.True(t, exception.IsErrorOfType(exception.NewPipelineError("io", "save", custom), "Quota"))
	assert.Panics(t, func() { exception.RegisterErrorType("", custom) })
	assert.Panics(t, func() { exception.RegisterErrorType("Nil", nil) })
}

func TestIsPipelineErrorFalseForPlainErrors(t *testing.T) {
	assert.False(t, exception.IsPipelineError(errors.New("plain")))
	assert.Equal(t, "", exception.ModuleOf(errors.New("plain")))
}
