// Package database defines the optional relational sink that receives cooked tables.
package database

import (
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
)

// TableSink loads cooked tables into staging tables named "<table_prefix><dataset>".
type TableSink interface {
	port.Sink
	// Type returns the database type, e.g. "sqlite".
	Type() string
}
