// Package preprocess holds the cleaning strategies run before transformation.
package preprocess

import (
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/registry"
)

const moduleName = "preprocess"

// Registry names of the built-in strategies.
const (
	TextCleaning          = "text_cleaning"
	DateTimeProcessing    = "datetime_processing"
	NumericProcessing     = "numeric_processing"
	CategoricalProcessing = "categorical_processing"
	DataConcatenation     = "data_concatenation"
	Cleanup               = "cleanup"
)

// CleaningOrder is the fixed order of the cleaning pipeline; later strategies rely on the
// type conversions of earlier ones.
var CleaningOrder = []string{TextCleaning, DateTimeProcessing, NumericProcessing, CategoricalProcessing}

// Factory builds and caches the preprocessing strategies by name.
type Factory struct {
	strategies *registry.Registry[port.Strategy]
}

// NewFactory registers every built-in strategy. loader feeds data_concatenation.
func NewFactory(loader port.Loader) *Factory {
	f := &Factory{strategies: registry.New[port.Strategy]("preprocessing strategy")}
	f.strategies.MustRegister(TextCleaning, &TextCleaningStrategy{})
	f.strategies.MustRegister(DateTimeProcessing, &DateTimeStrategy{})
	f.strategies.MustRegister(NumericProcessing, &NumericStrategy{})
	f.strategies.MustRegister(CategoricalProcessing, &CategoricalStrategy{})
	f.strategies.MustRegister(DataConcatenation, NewConcatenationStrategy(loader))
	f.strategies.MustRegister(Cleanup, &CleanupStrategy{})
	return f
}

// Register adds a custom strategy. Names must be unique.
func (f *Factory) Register(name string, s port.Strategy) error {
	return f.strategies.Register(name, s)
}

// Get returns the strategy registered under name.
func (f *Factory) Get(name string) (port.Strategy, error) {
	return f.strategies.Get(name)
}

// Names lists the registered strategies.
func (f *Factory) Names() []string {
	return f.strategies.Names()
}
