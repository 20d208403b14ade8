// Package gorm implements the staging database sink on top of GORM. Dialects register
// themselves from their own subpackages (sqlite, postgres, mysql) when imported.
package gorm

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/datafactory/pkg/etl/adapter/database/config"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// DialectorFactory generates a gorm.Dialector from a dbconfig.DatabaseConfig.
type DialectorFactory func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for the given database type.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory retrieves the DialectorFactory corresponding to the specified DB type.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return factory, nil
}

// Open establishes a GORM connection for cfg and applies its pool settings.
func Open(cfg dbconfig.DatabaseConfig) (*gorm.DB, error) {
	factory, err := GetDialectorFactory(cfg.Type)
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "unsupported database type", err)
	}
	dialector, err := factory(cfg)
	if err != nil {
		return nil, exception.NewPipelineErrorf(moduleName, "failed to create dialector for %s", cfg.Type, err)
	}
	return OpenDialector(dialector, cfg.Pool)
}

// OpenDialector opens dialector with the pipeline's GORM logger and pool settings.
func OpenDialector(dialector gorm.Dialector, pool dbconfig.PoolConfig) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewGormLogger()})
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to open GORM connection", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to get underlying sql.DB", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}
