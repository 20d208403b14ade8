// Package logger provides the leveled logging utility used across the DataFactory pipeline.
// It wraps the standard `log` package and filters messages by level. Dataset context is
// carried explicitly through DatasetLogger instead of a shared "current dataset" setting.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// LogLevel is a type representing the logging level.
type LogLevel int32

const (
	// LevelDebug is the log level used for detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo is the log level used for general informational messages.
	LevelInfo
	// LevelWarn is the log level used for potential issues or warning messages.
	LevelWarn
	// LevelError is the log level used for error messages.
	LevelError
	// LevelFatal is the log level used for fatal error messages that cause application termination.
	LevelFatal
)

// systemContext is the prefix used when no dataset is bound to a log line.
const systemContext = "System"

// logLevel is the currently set global log level. It is read by concurrent dataset workers.
var logLevel atomic.Int32

func init() {
	logLevel.Store(int32(LevelInfo))
}

// SetLogLevel sets the global log level.
// Valid string values are "DEBUG", "INFO", "WARN", "ERROR", "FATAL" (case-insensitive).
// If an invalid value is specified, the INFO level is used and a notice is printed.
func SetLogLevel(level string) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "INFO":
		logLevel.Store(int32(LevelInfo))
	case "WARN", "WARNING":
		logLevel.Store(int32(LevelWarn))
	case "ERROR":
		logLevel.Store(int32(LevelError))
	case "FATAL":
		logLevel.Store(int32(LevelFatal))
	case "DEBUG":
		logLevel.Store(int32(LevelDebug))
	default:
		fmt.Fprintf(os.Stderr, "Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
		logLevel.Store(int32(LevelInfo))
	}
}

// GetLogLevel returns the current global log level.
func GetLogLevel() LogLevel {
	return LogLevel(logLevel.Load())
}

// SetOutput redirects log output to the given writers in addition to stderr.
// Passing no writers restores stderr only.
func SetOutput(writers ...io.Writer) {
	outs := append([]io.Writer{os.Stderr}, writers...)
	log.SetOutput(io.MultiWriter(outs...))
}

// OpenDailyFile tees log output to "<dir>/<YYYY-MM-DD>_DataFactory.log", appending to
// an existing file of the same day. Close the returned file to stop writing to it.
func OpenDailyFile(dir string, day time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, day.Format("2006-01-02")+"_DataFactory.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	SetOutput(f)
	return f, nil
}

func enabled(level LogLevel) bool {
	return LogLevel(logLevel.Load()) <= level
}

// Debugf formats and outputs a DEBUG level log message.
// It is only output if the current log level is DEBUG.
//
// format: A format string in the same format as `fmt.Printf`.
// v: Arguments to pass to the format string.
func Debugf(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		log.Printf("[DEBUG] ["+systemContext+"] "+format, v...)
	}
}

// Infof formats and outputs an INFO level log message.
//
// format: A format string in the same format as `fmt.Printf`.
// v: Arguments to pass to the format string.
func Infof(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		log.Printf("[INFO] ["+systemContext+"] "+format, v...)
	}
}

// Warnf formats and outputs a WARN level log message.
//
// format: A format string in the same format as `fmt.Printf`.
// v: Arguments to pass to the format string.
func Warnf(format string, v ...interface{}) {
	if enabled(LevelWarn) {
		log.Printf("[WARN] ["+systemContext+"] "+format, v...)
	}
}

// Errorf formats and outputs an ERROR level log message.
//
// format: A format string in the same format as `fmt.Printf`.
// v: Arguments to pass to the format string.
func Errorf(format string, v ...interface{}) {
	if enabled(LevelError) {
		log.Printf("[ERROR] ["+systemContext+"] "+format, v...)
	}
}

// Fatalf formats and outputs a FATAL level log message,
// then terminates the program by calling os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] ["+systemContext+"] "+format, v...)
}

// DatasetLogger writes log lines tagged with a dataset name.
// It is a value type and safe to share between goroutines.
type DatasetLogger struct {
	prefix string
}

// ForDataset returns a logger bound to the given dataset. An empty name binds to the system context.
func ForDataset(dataset string) DatasetLogger {
	if dataset == "" {
		dataset = systemContext
	}
	return DatasetLogger{prefix: "[" + dataset + "] "}
}

// Debugf logs at DEBUG level with the dataset prefix.
func (l DatasetLogger) Debugf(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		log.Printf("[DEBUG] "+l.prefix+format, v...)
	}
}

// Infof logs at INFO level with the dataset prefix.
func (l DatasetLogger) Infof(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		log.Printf("[INFO] "+l.prefix+format, v...)
	}
}

// Warnf logs at WARN level with the dataset prefix.
func (l DatasetLogger) Warnf(format string, v ...interface{}) {
	if enabled(LevelWarn) {
		log.Printf("[WARN] "+l.prefix+format, v...)
	}
}

// Errorf logs at ERROR level with the dataset prefix.
func (l DatasetLogger) Errorf(format string, v ...interface{}) {
	if enabled(LevelError) {
		log.Printf("[ERROR] "+l.prefix+format, v...)
	}
}
