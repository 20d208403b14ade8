package gorm

import (
	"fmt"
	"strings"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// NewGormLogger returns a GORM logger that writes through the pipeline logger.
// SQL statements are logged at DEBUG, everything else at WARN.
func NewGormLogger() gormlogger.Interface {
	level := gormlogger.Warn
	if logger.GetLogLevel() == logger.LevelDebug {
		level = gormlogger.Info
	}
	return gormlogger.New(NewGormWriter(), gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// GormWriter redirects GORM log output to the pipeline logger.
type GormWriter struct{}

// NewGormWriter creates a new instance of GormWriter.
func NewGormWriter() *GormWriter {
	return &GormWriter{}
}

// Printf implements gormlogger.Writer.
func (w *GormWriter) Printf(format string, args ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, args...))
	upper := strings.ToUpper(msg)
	for _, verb := range []string{"SELECT", "INSERT", "CREATE", "DROP", "DELETE", "UPDATE"} {
		if strings.Contains(upper, verb) {
			logger.Debugf("[GORM] %s", msg)
			return
		}
	}
	logger.Warnf("[GORM] %s", msg)
}
