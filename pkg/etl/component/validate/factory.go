// Package validate holds the validation strategies and the pipeline that combines them
// into one scored result per pass.
package validate

import (
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/registry"
)

const moduleName = "validate"

// Registry names of the built-in validators.
const (
	SchemaValidation = "schema_validation"
	DataQuality      = "data_quality"
	DomainValidation = "domain_validation"
)

// Order is the order validators run in every pass.
var Order = []string{SchemaValidation, DataQuality, DomainValidation}

// Factory builds and caches validators by name.
type Factory struct {
	validators *registry.Registry[port.Validator]
}

// NewFactory registers the built-in validators.
func NewFactory() *Factory {
	f := &Factory{validators: registry.New[port.Validator]("validation strategy")}
	f.validators.MustRegister(SchemaValidation, &SchemaValidator{})
	f.validators.MustRegister(DataQuality, &QualityValidator{})
	f.validators.MustRegister(DomainValidation, &DomainValidator{})
	return f
}

// Register adds a custom validator. Names must be unique.
func (f *Factory) Register(name string, v port.Validator) error {
	return f.validators.Register(name, v)
}

// Get returns the validator registered under name.
func (f *Factory) Get(name string) (port.Validator, error) {
	return f.validators.Get(name)
}

// Names lists the registered validators.
func (f *Factory) Names() []string {
	return f.validators.Names()
}

// Pipeline assembles the validators named in Order.
func (f *Factory) Pipeline() (*Pipeline, error) {
	vs := make([]port.Validator, 0, len(Order))
	for _, name := range Order {
		v, err := f.Get(name)
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	return NewPipeline(vs...), nil
}
