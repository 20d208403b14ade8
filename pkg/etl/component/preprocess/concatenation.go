package preprocess

import (
	"context"
	"path/filepath"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
)

// ConcatenationStrategy builds a dataset from its configured sources placed side by side.
// The input table is ignored.
type ConcatenationStrategy struct {
	loader port.Loader
}

// NewConcatenationStrategy returns a strategy reading sources through loader.
func NewConcatenationStrategy(loader port.Loader) *ConcatenationStrategy {
	return &ConcatenationStrategy{loader: loader}
}

func (s *ConcatenationStrategy) Name() string { return DataConcatenation }

func (s *ConcatenationStrategy) Apply(ctx context.Context, ec *execution.Context, _ *table.Table) (model.Outcome, error) {
	ds, ok := ec.Provider.Dataset(ec.Dataset)
	if !ok || len(ds.Sources) == 0 {
		return model.Outcome{Table: table.Empty()}, exception.NewPipelineErrorf(moduleName,
			"dataset %s has no sources to concatenate", ec.Dataset, exception.ErrEmptyTable)
	}
	engine := ec.Engine()

	var parts []*table.Table
	for _, src := range ds.Sources {
		if err := ctx.Err(); err != nil {
			return model.Outcome{Table: table.Empty()}, err
		}
		path := src
		if !filepath.IsAbs(path) {
			path = filepath.Join(engine.InputDir, src)
		}
		t, err := s.loader.Load(ctx, path)
		if err != nil || t.IsEmpty() {
			ec.Log.Warnf("Skipping source %s: %v", path, err)
			continue
		}
		if engine.NSamples > 0 {
			t = t.Head(engine.NSamples)
		}
		parts = append(parts, t)
	}
	if len(parts) == 0 {
		return model.Outcome{Table: table.Empty()}, exception.NewPipelineErrorf(moduleName,
			"no source of dataset %s could be loaded", ec.Dataset, exception.ErrEmptyTable)
	}
	out := table.HConcat(parts...)
	ec.Log.Infof("Concatenated %d sources into %d rows and %d columns", len(parts), out.NumRows(), out.NumCols())
	return model.Outcome{Table: out, Changes: len(parts)}, nil
}
