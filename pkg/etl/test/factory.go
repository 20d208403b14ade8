// Package test holds builders shared by the pipeline's tests.
package test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
)

// Seed is the random seed of every test context.
const Seed = 42

// Now is the fixed clock of test contexts.
var Now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// NewTestConfig returns the default configuration rooted at root with params overriding
// engine parameters. Datasets are registered in name order.
func NewTestConfig(root string, params map[string]interface{}, datasets map[string]config.DatasetConfig) *config.Config {
	cfg := config.NewConfig(root)
	for k, v := range params {
		cfg.EngineParameters[k] = v
	}
	if len(datasets) > 0 {
		cfg.Datasets = datasets
		cfg.DatasetOrder = make([]string, 0, len(datasets))
		for name := range datasets {
			cfg.DatasetOrder = append(cfg.DatasetOrder, name)
		}
		sort.Strings(cfg.DatasetOrder)
	}
	return cfg
}

// NewTestProvider builds a provider over NewTestConfig with the built-in target schemas.
func NewTestProvider(t *testing.T, root string, params map[string]interface{}, datasets map[string]config.DatasetConfig) *config.Provider {
	t.Helper()
	provider, err := config.NewProvider(NewTestConfig(root, params, datasets), config.DefaultSchemas())
	require.NoError(t, err)
	return provider
}

// NewTestContext returns a seeded context with a fixed clock for dataset.
func NewTestContext(dataset string, provider *config.Provider) *execution.Context {
	return execution.New(dataset, provider, execution.WithSeed(Seed), execution.WithClock(func() time.Time { return Now }))
}

// NewTestStepExecution returns a started step execution.
func NewTestStepExecution(dataset, step string) *model.StepExecution {
	return &model.StepExecution{
		ID:        uuid.New().String(),
		Dataset:   dataset,
		StepName:  step,
		Status:    model.StepStarted,
		StartTime: Now,
	}
}

// StubLoader serves tables by path. Unknown paths fail like a missing file.
type StubLoader struct {
	Tables map[string]*table.Table
	Calls  []string
}

// Load returns a clone of the table registered under path.
func (l *StubLoader) Load(_ context.Context, path string) (*table.Table, error) {
	l.Calls = append(l.Calls, path)
	t, ok := l.Tables[path]
	if !ok {
		return table.Empty(), exception.NewPipelineErrorf("test", "no table at %s", path)
	}
	return t.Clone(), nil
}
