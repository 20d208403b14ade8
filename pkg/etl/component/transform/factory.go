// Package transform maps cleaned tables onto their target schema and generates synthetic
// values for target columns no source provides.
package transform

import (
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/registry"
)

const moduleName = "transform"

// Strategy names.
const (
	SchemaTransformation = "schema_transformation"
	DataGeneration       = "data_generation"
)

// Order is the transformation pipeline.
var Order = []string{SchemaTransformation, DataGeneration}

// Factory holds the transformation strategies by name.
type Factory struct {
	strategies *registry.Registry[port.Strategy]
}

// NewFactory registers the built-in strategies. loader reads previously cooked outputs
// when generated IDs should reuse values of other datasets.
func NewFactory(loader port.Loader) *Factory {
	f := &Factory{strategies: registry.New[port.Strategy]("transformation strategy")}
	f.strategies.MustRegister(SchemaTransformation, &SchemaStrategy{})
	f.strategies.MustRegister(DataGeneration, NewDataGenerationStrategy(loader))
	return f
}

// Register adds a custom strategy.
func (f *Factory) Register(name string, s port.Strategy) error {
	return f.strategies.Register(name, s)
}

// Get returns the strategy registered under name.
func (f *Factory) Get(name string) (port.Strategy, error) {
	return f.strategies.Get(name)
}

// Names lists the registered strategies.
func (f *Factory) Names() []string { return f.strategies.Names() }
