// Package exception provides the error type and sentinel errors shared by the DataFactory pipeline.
// Strategy and IO failures are wrapped in PipelineError so logs always name the module that failed.
package exception

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

var (
	// ErrEmptyTable is returned when a load or a step yields a table with no rows or columns.
	ErrEmptyTable = errors.New("empty table")
	// ErrUnknownStrategy is returned when a registry lookup misses.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrDuplicateStrategy is returned when a name is registered twice.
	ErrDuplicateStrategy = errors.New("strategy already registered")
	// ErrUnsupportedFormat is returned for file extensions the IO layer cannot handle.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrColumnLength is returned when a column does not match the table's row count.
	ErrColumnLength = errors.New("column length mismatch")
)

// errorRegistry maps names to sentinel errors for IsErrorOfType.
var errorRegistry = map[string]error{
	"EmptyTable":        ErrEmptyTable,
	"UnknownStrategy":   ErrUnknownStrategy,
	"DuplicateStrategy": ErrDuplicateStrategy,
	"UnsupportedFormat": ErrUnsupportedFormat,
	"ColumnLength":      ErrColumnLength,
}

// registryMutex protects access to errorRegistry.
var registryMutex sync.RWMutex

// RegisterErrorType registers a sentinel error under a name.
// It panics when name is empty or prototype is nil.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}
	errorRegistry[name] = prototype
}

// PipelineError is an error raised while processing a dataset.
// It records the module where the error occurred, a message, and the wrapped cause.
type PipelineError struct {
	// Module indicates where the error occurred (e.g., "io", "fix", "executor", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// NewPipelineError creates a new PipelineError.
//
// module: The module where the error occurred.
// message: The error message.
// originalErr: The original error to wrap (may be nil).
func NewPipelineError(module, message string, originalErr error) *PipelineError {
	return &PipelineError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

// NewPipelineErrorf creates a new PipelineError using a format string.
// When the last variadic argument is an error it is extracted as the wrapped cause
// and the remaining arguments are used for fmt.Sprintf.
//
// Example:
// NewPipelineErrorf("io", "failed to read %s", path, err)
// -> message: "failed to read <path>", originalErr: err
func NewPipelineErrorf(module, format string, a ...interface{}) *PipelineError {
	var originalErr error
	args := a
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	return &PipelineError{
		Module:      module,
		Message:     fmt.Sprintf(format, args...),
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Is and errors.As.
func (e *PipelineError) Unwrap() error {
	return e.OriginalErr
}

// IsPipelineError reports whether err (or anything it wraps) is a PipelineError.
func IsPipelineError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe)
}

// ModuleOf returns the module of the outermost PipelineError in err's chain, or "".
func ModuleOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Module
	}
	return ""
}

// IsErrorOfType checks whether an error matches a registered name, a case-insensitive
// message substring, or a Go type name found anywhere in its chain.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	target, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}

	needle := strings.ToLower(errorTypeName)
	for current := err; current != nil; current = errors.Unwrap(current) {
		if strings.Contains(strings.ToLower(current.Error()), needle) {
			return true
		}
		if reflect.TypeOf(current).String() == errorTypeName {
			return true
		}
	}
	return false
}
