// Package fix holds the strategies that repair the quality problems validation reports.
//
// Every fixer works on a clone of its input, counts the values it actually changed and
// reports that count as the outcome's Changes. Fixers are stateless and may be shared
// between datasets processed in parallel.
package fix

import (
	"strings"

	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/registry"
)

const moduleName = "fix"

// Registry names of the built-in fixers.
const (
	MissingValue = "missing_value_fixer"
	Outlier      = "outlier_fixer"
	Loan         = "loan_fixer"
	Fraud        = "fraud_fixer"
	Market       = "market_fixer"
	Macro        = "macro_fixer"
	Consistency  = "consistency_fixer"
)

// domainFixers maps a dataset-name fragment to its domain fixer, in match order.
var domainFixers = []struct{ fragment, name string }{
	{"loan", Loan},
	{"fraud", Fraud},
	{"market", Market},
	{"macro", Macro},
}

// DomainFixerFor returns the domain fixer of a dataset, matched case-insensitively on its name.
func DomainFixerFor(dataset string) (string, bool) {
	lower := strings.ToLower(dataset)
	for _, d := range domainFixers {
		if strings.Contains(lower, d.fragment) {
			return d.name, true
		}
	}
	return "", false
}

// Factory builds and caches fixers by name.
type Factory struct {
	fixers *registry.Registry[port.Strategy]
}

// NewFactory registers the built-in fixers.
func NewFactory() *Factory {
	f := &Factory{fixers: registry.New[port.Strategy]("fixer")}
	f.fixers.MustRegister(MissingValue, &MissingValueFixer{})
	f.fixers.MustRegister(Outlier, &OutlierFixer{})
	f.fixers.MustRegister(Loan, &LoanFixer{})
	f.fixers.MustRegister(Fraud, &FraudFixer{})
	f.fixers.MustRegister(Market, &MarketFixer{})
	f.fixers.MustRegister(Macro, &MacroFixer{})
	f.fixers.MustRegister(Consistency, &ConsistencyFixer{})
	return f
}

// Register adds a custom fixer. Names must be unique.
func (f *Factory) Register(name string, s port.Strategy) error {
	return f.fixers.Register(name, s)
}

// Get returns the fixer registered under name.
func (f *Factory) Get(name string) (port.Strategy, error) {
	return f.fixers.Get(name)
}

// Names lists the registered fixers.
func (f *Factory) Names() []string {
	return f.fixers.Names()
}

// Chain returns the fixers of a dataset in their required order: general fixers first,
// then at most one domain fixer, and the consistency fixer last.
func (f *Factory) Chain(dataset string) ([]port.Strategy, error) {
	names := []string{MissingValue, Outlier}
	if domain, ok := DomainFixerFor(dataset); ok {
		names = append(names, domain)
	}
	names = append(names, Consistency)

	chain := make([]port.Strategy, 0, len(names))
	for _, name := range names {
		s, err := f.Get(name)
		if err != nil {
			return nil, err
		}
		chain = append(chain, s)
	}
	return chain, nil
}
