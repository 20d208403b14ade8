package factory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datafactory/pkg/etl/component/finalize"
	"github.com/tigerroll/datafactory/pkg/etl/component/fix"
	"github.com/tigerroll/datafactory/pkg/etl/component/preprocess"
	"github.com/tigerroll/datafactory/pkg/etl/component/transform"
	"github.com/tigerroll/datafactory/pkg/etl/component/validate"
	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/engine/factory"
	etltest "github.com/tigerroll/datafactory/pkg/etl/test"
)

type memSaver struct{ saved map[string]*table.Table }

func (s *memSaver) Save(_ context.Context, t *table.Table, path string) error {
	s.saved[path] = t
	return nil
}

func newFactory(t *testing.T, provider *config.Provider, loader port.Loader, saver port.Saver) *factory.PipelineFactory {
	t.Helper()
	pre := preprocess.NewFactory(loader)
	final, err := finalize.New(pre)
	require.NoError(t, err)
	return factory.NewPipelineFactory(factory.Params{
		Provider:   provider,
		Preprocess: pre,
		Transform:  transform.NewFactory(loader),
		Validate:   validate.NewFactory(),
		Fix:        fix.NewFactory(),
		Finalize:   final,
		Loader:     loader,
		Saver:      saver,
	})
}

func stepNames(steps []port.Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name()
	}
	return names
}

func TestCreatePipeline_StepOrder(t *testing.T) {
	provider := etltest.NewTestProvider(t, t.TempDir(), nil, nil)
	f := newFactory(t, provider, &etltest.StubLoader{}, &memSaver{saved: map[string]*table.Table{}})

	e, err := f.CreatePipeline("Loan")
	require.NoError(t, err)
	assert.Equal(t, []string{
		factory.StepCleaning, factory.StepTransformation, factory.StepValidationPre,
		factory.StepFixing, factory.StepValidationPost, factory.StepFinal,
	}, stepNames(e.Steps()))

	kinds := make([]port.StepKind, 0, len(e.Steps()))
	for _, s := range e.Steps() {
		kinds = append(kinds, s.Kind())
	}
	assert.Equal(t, []port.StepKind{
		port.KindCleaning, port.KindTransformation, port.KindValidation,
		port.KindFixing, port.KindValidation, port.KindFinalize,
	}, kinds)
}

func TestCreatePipeline_WithoutPostValidation(t *testing.T) {
	provider := etltest.NewTestProvider(t, t.TempDir(), map[string]interface{}{"validate_after_fixing": false}, nil)
	f := newFactory(t, provider, &etltest.StubLoader{}, &memSaver{saved: map[string]*table.Table{}})

	e, err := f.CreatePipeline("Macro")
	require.NoError(t, err)
	assert.NotContains(t, stepNames(e.Steps()), factory.StepValidationPost)
	assert.Len(t, e.Steps(), 5)
}

func TestCreatePipeline_RunsMacroEndToEnd(t *testing.T) {
	datasets := map[string]config.DatasetConfig{
		"Macro": {
			Sources: []string{"macro.csv"},
			FieldMappings: []map[string]string{
				{"ReportDate": "ReportDate"},
				{"CountryName": "CountryName"},
				{"GDP": "GDP"},
				{"InflationRate": "InflationRate"},
			},
		},
	}
	provider := etltest.NewTestProvider(t, t.TempDir(), map[string]interface{}{"add_data_lineage": false}, datasets)
	// Rows 0 and 1 share ReportDate+CountryName but differ in GDP, so only the key dedup removes row 1.
	loader := &etltest.StubLoader{Tables: map[string]*table.Table{
		"macro.csv": table.MustNew(
			table.NewString("ReportDate", []string{"2020-01-01", "2020-01-01", "2021-01-01", "2022-01-01"}, nil),
			table.NewString("CountryName", []string{"Brazil", "Brazil", "Brazil", "Chile"}, nil),
			table.NewFloat("GDP", []float64{100, 105, 120, 300}),
			table.NewFloat("InflationRate", []float64{3, 4, 400, 2}),
		),
	}}
	saver := &memSaver{saved: map[string]*table.Table{}}
	f := newFactory(t, provider, loader, saver)

	e, err := f.CreatePipeline("Macro")
	require.NoError(t, err)
	ec := etltest.NewTestContext("Macro", provider)
	res := e.Execute(context.Background(), ec, "macro.csv", "out/Macro_cooked.csv")
	require.True(t, res.Success, "%v", res.Err)

	require.NotNil(t, res.Validation)
	assert.Equal(t, 2, res.Validation.ValidationPass, "post-fix validation ran last")
	require.Contains(t, saver.saved, "out/Macro_cooked.csv")

	out := res.Table
	require.True(t, out.Has("CountryName"))
	require.True(t, out.Has("ReportDate"))
	require.True(t, out.Has("GDP"))
	assert.Equal(t, 3, out.NumRows())
	keyCols := []*table.Column{out.Col("ReportDate"), out.Col("CountryName")}
	keys := map[string]bool{}
	for i := 0; i < out.NumRows(); i++ {
		key := table.RowKey(i, keyCols)
		assert.False(t, keys[key], "duplicate ReportDate+CountryName row %d", i)
		keys[key] = true
	}

	gdp := out.Col("GDP")
	var brazilGDP []float64
	for i := 0; i < out.NumRows(); i++ {
		if country, _ := out.Col("CountryName").Str(i); country == "Brazil" {
			brazilGDP = append(brazilGDP, gdp.Float(i))
		}
	}
	assert.Contains(t, brazilGDP, 100.0, "first occurrence kept")
	assert.NotContains(t, brazilGDP, 105.0)

	inflation := out.Col("InflationRate")
	require.NotNil(t, inflation)
	for i := 0; i < inflation.Len(); i++ {
		if !inflation.IsNull(i) {
			assert.LessOrEqual(t, inflation.Float(i), 100.0)
		}
	}
}
